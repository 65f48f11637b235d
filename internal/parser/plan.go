package parser

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sokinpui/dogs.go/internal/events"
	"github.com/sokinpui/dogs.go/internal/fs"
	"github.com/sokinpui/dogs.go/internal/patcher"
	"github.com/sokinpui/dogs.go/model"
)

// CreatePlan parses bundle content and classifies every block against the
// output root, producing a ChangeSet with all entries pending.
func CreatePlan(content string, resolver *fs.PathResolver, notify *events.Emitter, opts Options) (*model.ChangeSet, error) {
	notify.Emit(events.ParseStart, "root", resolver.Root(), "bytes", len(content))

	blocks, err := ParseBlocks(content, opts)
	if err != nil {
		return nil, err
	}

	b := &builder{resolver: resolver, notify: notify, opts: opts}
	cs := model.NewChangeSet()
	for _, block := range blocks {
		change, err := b.classify(block)
		if err != nil {
			if opts.Strict {
				return nil, fmt.Errorf("%s (line %d): %w", block.Path, block.Line, err)
			}
			opts.logger().Warn("skipping file block", "path", block.Path, "line", block.Line, "error", err)
			notify.Emit(events.ParseFile, "path", block.Path, "skipped", true, "error", err)
			continue
		}

		if cs.Add(change) {
			if opts.Strict {
				return nil, fmt.Errorf("%s: %w", change.Path, ErrDuplicatePath)
			}
			opts.logger().Warn("path repeated in bundle, last block wins", "path", change.Path, "line", block.Line)
		}
		notify.Emit(events.ParseFile,
			"path", change.Path,
			"operation", change.Operation.String(),
			"binary", change.IsBinary,
			"delta", change.Delta)
	}

	notify.Emit(events.ParseComplete, "files", cs.Len(), "blocks", len(blocks))
	return cs, nil
}

type builder struct {
	resolver *fs.PathResolver
	notify   *events.Emitter
	opts     Options
}

func (b *builder) classify(block model.FileBlock) (*model.FileChange, error) {
	target, err := b.resolver.Resolve(block.Path)
	if err != nil {
		return nil, err
	}
	path := b.resolver.Rel(target)
	lines, _ := Normalize(block.RawLines)

	if block.IsBinary {
		data, err := decodeBase64(lines)
		if err != nil {
			return nil, err
		}
		return b.withCurrent(target, &model.FileChange{
			Path:       path,
			NewContent: data,
			IsBinary:   true,
		})
	}

	directive, err := ParseDirective(lines)
	if err != nil {
		return nil, err
	}

	switch {
	case directive == nil:
		return b.withCurrent(target, &model.FileChange{
			Path:       path,
			NewContent: []byte(strings.Join(lines, "\n")),
		})

	case directive.DeleteFile:
		return &model.FileChange{Path: path, Operation: model.OpDelete}, nil

	default:
		current, _, err := fs.ReadIfExists(target)
		if err != nil {
			return nil, err
		}
		patched, err := patcher.Apply(string(current), directive.Commands)
		if err != nil {
			return nil, err
		}
		return b.withCurrent(target, &model.FileChange{
			Path:       path,
			NewContent: []byte(patched),
			Delta:      true,
		})
	}
}

// withCurrent probes the target and sets Operation and OldContent.
func (b *builder) withCurrent(target string, change *model.FileChange) (*model.FileChange, error) {
	current, exists, err := fs.ReadIfExists(target)
	if err != nil {
		return nil, err
	}
	if exists {
		change.Operation = model.OpModify
		change.OldContent = current
	} else {
		change.Operation = model.OpCreate
	}
	return change, nil
}

func decodeBase64(lines []string) ([]byte, error) {
	payload := strings.Join(strings.Fields(strings.Join(lines, "")), "")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 content: %w", err)
	}
	return data, nil
}
