package migration

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Skyrin/go-migrate/e"
)

const (
	ECode000401 = e.Code0004 + "01"
	ECode000402 = e.Code0004 + "02"
	ECode000403 = e.Code0004 + "03"
	ECode000404 = e.Code0004 + "04"
	ECode000405 = e.Code0004 + "05"
)

// markerRegexp matches a whole "-- up" or "-- down" line
var markerRegexp = regexp.MustCompile(`(?i)^\s*--\s*(up|down)\s*$`)

// Parsed the up and down blocks of a migration file
type Parsed struct {
	Up   string
	Down string
}

// Parse splits the content of a migration file on its marker lines. The up block
// is everything between the up and down markers, the down block runs to the end
// of the content. Anything before the up marker is ignored.
func Parse(name, content string) (p *Parsed, err error) {
	lines := strings.SplitAfter(content, "\n")
	upIdx, downIdx := -1, -1

	for i, line := range lines {
		m := markerRegexp.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
		if m == nil {
			continue
		}

		switch strings.ToLower(m[1]) {
		case "up":
			if upIdx >= 0 {
				return nil, formatErr(ECode000401, e.MsgMigrationMarkerDuplicate, name)
			}
			if downIdx >= 0 {
				return nil, formatErr(ECode000402, e.MsgMigrationMarkerOrder, name)
			}
			upIdx = i
		case "down":
			if downIdx >= 0 {
				return nil, formatErr(ECode000405, e.MsgMigrationMarkerDuplicate, name)
			}
			downIdx = i
		}
	}

	if upIdx < 0 {
		return nil, formatErr(ECode000403, e.MsgMigrationMarkerUpMissing, name)
	}
	if downIdx < 0 {
		return nil, formatErr(ECode000404, e.MsgMigrationMarkerDownMissing, name)
	}

	return &Parsed{
		Up:   strings.TrimSpace(strings.Join(lines[upIdx+1:downIdx], "")),
		Down: strings.TrimSpace(strings.Join(lines[downIdx+1:], "")),
	}, nil
}

func formatErr(code, msg, name string) error {
	return e.NK(e.KindFormat, code, fmt.Sprintf("%s: %s", msg, name))
}
