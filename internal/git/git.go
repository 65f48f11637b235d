// Package git runs the git plumbing the verified apply depends on.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds each git invocation when none is configured.
const DefaultTimeout = 30 * time.Second

// Client is the subset of git a transaction needs.
type Client interface {
	IsGitRepository(ctx context.Context) bool
	RevParse(ctx context.Context, ref string) (string, error)
	Status(ctx context.Context) (*Status, error)
	StashPush(ctx context.Context, message string) error
	StashList(ctx context.Context) ([]StashEntry, error)
	StashApply(ctx context.Context, ref string) error
	StashPop(ctx context.Context, ref string) error
	StashDrop(ctx context.Context, ref string) error
}

// Status is the parsed output of `git status --porcelain`.
type Status struct {
	IsClean        bool
	StagedFiles    []string
	ModifiedFiles  []string
	UntrackedFiles []string
}

// StashEntry is one line of `git stash list`.
type StashEntry struct {
	Index   int
	Ref     string
	Message string
}

// CommandClient implements Client with the git binary.
//
// Commands run from repoPath until IsGitRepository has found the work tree
// top level, and from the top level afterwards. A stash can remove repoPath
// when it held only uncommitted files; the top level always survives.
type CommandClient struct {
	repoPath string
	topLevel string
	timeout  time.Duration
}

var _ Client = (*CommandClient)(nil)

// NewClient creates a client rooted at repoPath.
func NewClient(repoPath string, timeout time.Duration) (*CommandClient, error) {
	if !filepath.IsAbs(repoPath) {
		return nil, fmt.Errorf("repoPath must be absolute: %s", repoPath)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandClient{repoPath: repoPath, timeout: timeout}, nil
}

func (g *CommandClient) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoPath
	if g.topLevel != "" {
		cmd.Dir = g.topLevel
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("git %s: timeout after %v", args[0], g.timeout)
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}

func (g *CommandClient) runSilent(ctx context.Context, args ...string) error {
	_, err := g.run(ctx, args...)
	return err
}

// IsGitRepository reports whether the path is inside a work tree and
// remembers the work tree top level.
func (g *CommandClient) IsGitRepository(ctx context.Context) bool {
	out, err := g.run(ctx, "rev-parse", "--is-inside-work-tree", "--show-toplevel")
	if err != nil {
		return false
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 2 || strings.TrimSpace(lines[0]) != "true" {
		return false
	}
	g.topLevel = filepath.FromSlash(strings.TrimSpace(lines[1]))
	return true
}

// RevParse resolves ref to a full object name.
func (g *CommandClient) RevParse(ctx context.Context, ref string) (string, error) {
	sha, err := g.run(ctx, "rev-parse", "--verify", "--quiet", ref)
	if err != nil {
		return "", fmt.Errorf("resolving ref %s: %w", ref, err)
	}
	return strings.TrimSpace(sha), nil
}

// Status reports staged, modified and untracked files.
func (g *CommandClient) Status(ctx context.Context) (*Status, error) {
	out, err := g.run(ctx, "status", "--porcelain", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("getting status: %w", err)
	}
	return parseStatus(out), nil
}

// StashPush stashes tracked and untracked changes under message.
func (g *CommandClient) StashPush(ctx context.Context, message string) error {
	return g.runSilent(ctx, "stash", "push", "--include-untracked", "-m", message)
}

// StashList returns the stash stack, newest first.
func (g *CommandClient) StashList(ctx context.Context) ([]StashEntry, error) {
	out, err := g.run(ctx, "stash", "list")
	if err != nil {
		return nil, fmt.Errorf("listing stashes: %w", err)
	}
	return parseStashList(out), nil
}

// StashApply restores ref into the tree and index without dropping it.
func (g *CommandClient) StashApply(ctx context.Context, ref string) error {
	return g.runSilent(ctx, "stash", "apply", "--index", ref)
}

// StashPop restores ref into the tree and index and drops it.
func (g *CommandClient) StashPop(ctx context.Context, ref string) error {
	return g.runSilent(ctx, "stash", "pop", "--index", ref)
}

// StashDrop removes ref from the stash stack.
func (g *CommandClient) StashDrop(ctx context.Context, ref string) error {
	return g.runSilent(ctx, "stash", "drop", ref)
}

// parseStatus reads porcelain v1 lines: XY path.
func parseStatus(out string) *Status {
	status := &Status{IsClean: strings.TrimSpace(out) == ""}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		x, y := line[0], line[1]
		file := line[3:]
		if i := strings.Index(file, " -> "); i >= 0 {
			file = file[i+4:]
		}
		file = strings.Trim(file, `"`)

		switch {
		case x == '?' && y == '?':
			status.UntrackedFiles = append(status.UntrackedFiles, file)
		default:
			if x != ' ' {
				status.StagedFiles = append(status.StagedFiles, file)
			}
			if y != ' ' {
				status.ModifiedFiles = append(status.ModifiedFiles, file)
			}
		}
	}
	return status
}

var stashLinePattern = regexp.MustCompile(`^(stash@\{(\d+)\}): (?:On|WIP on) [^:]*: (.*)$`)

// parseStashList reads lines like `stash@{0}: On main: message`.
func parseStashList(out string) []StashEntry {
	var entries []StashEntry
	for _, line := range strings.Split(out, "\n") {
		m := stashLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		index, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		entries = append(entries, StashEntry{Index: index, Ref: m[1], Message: m[3]})
	}
	return entries
}
