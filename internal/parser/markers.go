package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect is one of the two interchangeable marker vocabularies. Bundles
// produced as context use CATS markers; bundles meant for application use
// DOGS markers. Both are accepted when parsing.
type Dialect int

const (
	DialectDogs Dialect = iota
	DialectCats
)

// dialects is the order grammars are tried in.
var dialects = []Dialect{DialectDogs, DialectCats}

func (d Dialect) String() string {
	switch d {
	case DialectCats:
		return "CATS"
	default:
		return "DOGS"
	}
}

// Glyph is the sentinel written in front of markers of this dialect.
func (d Dialect) Glyph() string {
	switch d {
	case DialectCats:
		return "🐈"
	default:
		return "🐕"
	}
}

const base64Suffix = "(Content:Base64)"

var markerPatterns = func() map[Dialect]*regexp.Regexp {
	m := make(map[Dialect]*regexp.Regexp, len(dialects))
	for _, d := range dialects {
		m[d] = regexp.MustCompile(`^\s*\S+\s+---\s+` + d.String() + `_((?i:START|END))_FILE:\s*(.+?)\s*---\s*$`)
	}
	return m
}()

// marker is a recognized START or END line.
type marker struct {
	dialect Dialect
	start   bool
	path    string
	binary  bool
}

// parseMarker tries each dialect grammar in turn.
func parseMarker(line string) (marker, bool) {
	for _, d := range dialects {
		match := markerPatterns[d].FindStringSubmatch(line)
		if match == nil {
			continue
		}
		m := marker{
			dialect: d,
			start:   strings.EqualFold(match[1], "START"),
			path:    strings.TrimSpace(match[2]),
		}
		if strings.HasSuffix(m.path, base64Suffix) {
			m.path = strings.TrimSpace(strings.TrimSuffix(m.path, base64Suffix))
			m.binary = m.start
		}
		if m.path == "" {
			return marker{}, false
		}
		return m, true
	}
	return marker{}, false
}

// StartMarker renders a START line in the given dialect.
func StartMarker(d Dialect, path string, binary bool) string {
	if binary {
		return fmt.Sprintf("%s --- %s_START_FILE: %s %s ---", d.Glyph(), d, path, base64Suffix)
	}
	return fmt.Sprintf("%s --- %s_START_FILE: %s ---", d.Glyph(), d, path)
}

// EndMarker renders an END line in the given dialect.
func EndMarker(d Dialect, path string) string {
	return fmt.Sprintf("%s --- %s_END_FILE: %s ---", d.Glyph(), d, path)
}
