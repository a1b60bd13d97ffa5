package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/Skyrin/go-migrate/e"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ECode040201 = e.Code0402 + "01"
	ECode040202 = e.Code0402 + "02"

	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// setupLogger replaces the global zerolog logger. Every line carries the run id
// of this invocation.
func setupLogger(w io.Writer, level, format string) (runID string, err error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return "", e.NK(e.KindConfig, ECode040201, "Invalid log level: "+level)
	}

	var out io.Writer
	switch strings.ToLower(format) {
	case LogFormatConsole:
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    !isTerminal(w),
		}
	case LogFormatJSON:
		out = w
	default:
		return "", e.NK(e.KindConfig, ECode040202, "Invalid log format: "+format)
	}

	runID = uuid.NewString()
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(out).With().
		Timestamp().
		Str("run_id", runID).
		Logger()

	return runID, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
