// Package runner executes verification commands drawn from a fixed allowlist.
//
// Commands are split on whitespace and executed directly, never through a
// shell, so metacharacters have no special meaning. Anything outside the
// allowlist is refused before a process is created.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/sokinpui/dogs.go/model"
)

// DefaultTimeout bounds a verification run when none is configured.
const DefaultTimeout = 10 * time.Minute

// DefaultMaxOutput caps captured bytes per stream.
const DefaultMaxOutput = 1 << 20

var (
	// ErrCommandRejected is returned for commands outside the allowlist.
	ErrCommandRejected = errors.New("command not in verification allowlist")
	// ErrTimeout is returned when a command outlives its deadline.
	ErrTimeout = errors.New("verification command timed out")
)

// argPattern is the charset allowed for trailing arguments.
const argPattern = `([ \t]+[A-Za-z0-9_./:=@,+%-]+)*[ \t]*$`

var allowlist = compile(
	`npm[ \t]+(run[ \t]+)?test`,
	`yarn[ \t]+(run[ \t]+)?test`,
	`pnpm[ \t]+(run[ \t]+)?test`,
	`pytest`,
	`python3?[ \t]+-m[ \t]+pytest`,
	`cargo[ \t]+test`,
	`go[ \t]+test`,
	`make[ \t]+test`,
	`mvn[ \t]+test`,
	`gradle[ \t]+test`,
)

func compile(prefixes ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(prefixes))
	for i, p := range prefixes {
		out[i] = regexp.MustCompile(`^[ \t]*` + p + argPattern)
	}
	return out
}

// optionRule lists the options of one program that load or execute code
// named on the command line.
type optionRule struct {
	options []string
	// bundled programs accept grouped short flags such as -xp.
	bundled bool
}

var deniedOptions = map[string]optionRule{
	"go":      {options: []string{"-exec", "-toolexec", "-overlay", "-modfile", "-o"}},
	"make":    {options: []string{"-f", "--file", "--makefile", "-C", "--directory", "-I", "--include-dir", "-E", "--eval"}, bundled: true},
	"pytest":  {options: []string{"-p", "-c", "--config-file", "-o", "--override-ini", "--rootdir"}, bundled: true},
	"python":  {options: []string{"-p", "-c", "--config-file", "-o", "--override-ini", "--rootdir"}, bundled: true},
	"python3": {options: []string{"-p", "-c", "--config-file", "-o", "--override-ini", "--rootdir"}, bundled: true},
	"cargo":   {options: []string{"--config", "-Z", "--manifest-path"}},
	"npm":     {options: []string{"--script-shell", "--prefix", "--userconfig", "--globalconfig"}},
	"yarn":    {options: []string{"--script-shell", "--cwd"}},
	"pnpm":    {options: []string{"--script-shell", "--dir", "-C"}},
	"mvn":     {options: []string{"-f", "--file", "-s", "--settings", "-gs", "--global-settings"}},
	"gradle":  {options: []string{"-b", "--build-file", "-c", "--settings-file", "-I", "--init-script", "-p", "--project-dir"}},
}

// deniedOption returns the first argument that names an option able to run
// code outside the project's own test setup.
func deniedOption(argv []string) (string, bool) {
	if len(argv) == 0 {
		return "", false
	}
	rule := deniedOptions[argv[0]]
	for _, arg := range argv[1:] {
		name := arg
		if argv[0] == "go" && strings.HasPrefix(name, "--") {
			name = name[1:]
		}
		for _, opt := range rule.options {
			if name == opt || strings.HasPrefix(name, opt+"=") {
				return arg, true
			}
			if rule.bundled && len(opt) == 2 && len(arg) > 2 && arg[0] == '-' && arg[1] != '-' && strings.Contains(arg[1:], opt[1:]) {
				return arg, true
			}
		}
	}
	return "", false
}

// Allowed reports whether command matches an allowlisted pattern and uses
// none of the denied options.
func Allowed(command string) bool {
	if !matches(allowlist, command) {
		return false
	}
	_, denied := deniedOption(strings.Fields(command))
	return !denied
}

func matches(patterns []*regexp.Regexp, command string) bool {
	for _, p := range patterns {
		if p.MatchString(command) {
			return true
		}
	}
	return false
}

// Runner runs allowlisted commands in a working directory.
type Runner struct {
	dir       string
	timeout   time.Duration
	maxOutput int
	allow     []*regexp.Regexp
	logger    *slog.Logger
}

// New creates a Runner executing in dir. A non-positive timeout selects DefaultTimeout.
func New(dir string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		dir:       dir,
		timeout:   timeout,
		maxOutput: DefaultMaxOutput,
		allow:     allowlist,
		logger:    slog.Default().With("component", "runner"),
	}
}

// Run executes command and reports its outcome. A non-zero exit is a failed
// outcome with a nil error; rejection, timeout and start failures also
// return an error.
func (r *Runner) Run(ctx context.Context, command string) (model.VerificationOutcome, error) {
	outcome := model.VerificationOutcome{Command: command, ExitCode: -1}

	if !matches(r.allow, command) {
		outcome.Rejected = true
		outcome.Stderr = fmt.Sprintf("refusing to run %q: not an allowlisted verification command", command)
		r.logger.Warn("verification command rejected", "command", command)
		return outcome, fmt.Errorf("%q: %w", command, ErrCommandRejected)
	}

	argv := strings.Fields(command)
	if opt, denied := deniedOption(argv); denied {
		outcome.Rejected = true
		outcome.Stderr = fmt.Sprintf("refusing to run %q: option %s is not allowed", command, opt)
		r.logger.Warn("verification command rejected", "command", command, "option", opt)
		return outcome, fmt.Errorf("%q: option %s: %w", command, opt, ErrCommandRejected)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.dir
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: r.maxOutput}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: r.maxOutput}

	r.logger.Debug("running verification", "argv", argv, "dir", r.dir, "timeout", r.timeout)
	start := time.Now()
	err := cmd.Run()
	outcome.Duration = time.Since(start)
	outcome.Stdout = stdout.String()
	outcome.Stderr = stderr.String()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		outcome.TimedOut = true
		r.logger.Warn("verification timed out", "command", command, "timeout", r.timeout)
		return outcome, fmt.Errorf("%q after %v: %w", command, r.timeout, ErrTimeout)
	}
	if ctx.Err() != nil {
		return outcome, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		outcome.ExitCode = 0
		outcome.Success = true
	case errors.As(err, &exitErr):
		outcome.ExitCode = exitErr.ExitCode()
	default:
		return outcome, fmt.Errorf("running %q: %w", command, err)
	}

	r.logger.Debug("verification finished", "command", command, "exit_code", outcome.ExitCode, "duration", outcome.Duration)
	return outcome, nil
}

// limitedWriter discards everything past limit bytes.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.limit {
		lw.truncated = true
		return n, nil
	}
	if remaining := lw.limit - lw.written; len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}
	written, err := lw.w.Write(p)
	lw.written += written
	return n, err
}
