package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sokinpui/dogs.go/model"
)

var (
	// ErrMalformedBundle is returned in strict mode for stray, unterminated or mismatched markers.
	ErrMalformedBundle = errors.New("malformed bundle")
	// ErrDuplicatePath is returned in strict mode when a bundle names the same file twice.
	ErrDuplicatePath = errors.New("duplicate path in bundle")
)

// Options controls how permissive parsing is.
type Options struct {
	// Strict turns silently dropped input into ErrMalformedBundle errors.
	Strict bool
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default().With("component", "parser")
}

// ParseBlocks splits bundle text into file blocks in appearance order.
//
// Lines outside a START/END pair are ignored. Without Strict, a START inside
// an open block abandons the open block, and an unterminated block at the end
// of input is dropped.
func ParseBlocks(content string, opts Options) ([]model.FileBlock, error) {
	log := opts.logger()
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")

	var blocks []model.FileBlock
	var current *model.FileBlock

	malformed := func(lineNo int, format string, a ...any) error {
		msg := fmt.Sprintf(format, a...)
		if opts.Strict {
			return fmt.Errorf("line %d: %s: %w", lineNo, msg, ErrMalformedBundle)
		}
		log.Warn("ignoring malformed bundle input", "line", lineNo, "reason", msg)
		return nil
	}

	for i, line := range lines {
		lineNo := i + 1
		m, ok := parseMarker(line)

		if current == nil {
			switch {
			case !ok:
				// Commentary between blocks.
			case m.start:
				current = &model.FileBlock{Path: m.path, IsBinary: m.binary, Line: lineNo}
			default:
				if err := malformed(lineNo, "END marker for %q without START", m.path); err != nil {
					return nil, err
				}
			}
			continue
		}

		if !ok {
			current.RawLines = append(current.RawLines, line)
			continue
		}

		if m.start {
			if err := malformed(current.Line, "block %q is not terminated", current.Path); err != nil {
				return nil, err
			}
			current = &model.FileBlock{Path: m.path, IsBinary: m.binary, Line: lineNo}
			continue
		}

		if m.path != current.Path {
			if err := malformed(lineNo, "END marker for %q closes block %q", m.path, current.Path); err != nil {
				return nil, err
			}
		}
		blocks = append(blocks, *current)
		current = nil
	}

	if current != nil {
		if err := malformed(current.Line, "block %q is not terminated", current.Path); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}
