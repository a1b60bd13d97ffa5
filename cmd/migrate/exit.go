package main

import (
	"github.com/Skyrin/go-migrate/e"
)

// Process exit codes
const (
	ExitOK        = 0
	ExitUnknown   = 1
	ExitConfig    = 2
	ExitIO        = 3
	ExitFormat    = 4
	ExitExecution = 5
	ExitConflict  = 6
)

// exitCode maps the kind of the error to the process exit code
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	switch e.KindOf(err) {
	case e.KindConfig:
		return ExitConfig
	case e.KindIO:
		return ExitIO
	case e.KindFormat:
		return ExitFormat
	case e.KindExecution:
		return ExitExecution
	case e.KindConflict:
		return ExitConflict
	}

	return ExitUnknown
}
