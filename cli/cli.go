package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/sokinpui/dogs.go/internal/git"
	"github.com/sokinpui/dogs.go/internal/runner"
)

// FileName is the optional per-tree config file in the output directory.
const FileName = ".dogs.yaml"

// Config holds all the command-line flag values.
type Config struct {
	Interactive  bool
	Yes          bool
	No           bool
	Verify       string
	RevertOnFail bool
	Timeout      time.Duration
	GitTimeout   time.Duration
	Strict       bool
	EventsFile   string
	Nvim         bool
	Verbose      bool
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Timeout:    runner.DefaultTimeout,
		GitTimeout: git.DefaultTimeout,
	}
}

// BindFlags defines the apply flags on fs, storing values into cfg.
// Verbose is left to the caller, which usually binds it as a global flag.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.BoolVarP(&cfg.Interactive, "interactive", "i", false, "Review each change in a terminal UI before applying.")
	fs.BoolVarP(&cfg.Yes, "yes", "y", false, "Accept every change without review.")
	fs.BoolVarP(&cfg.No, "no", "n", false, "Reject every change (dry run).")
	fs.StringVar(&cfg.Verify, "verify", cfg.Verify, "Test command to run after applying (e.g. 'go test ./...'). Requires a git work tree.")
	fs.BoolVar(&cfg.RevertOnFail, "revert-on-fail", cfg.RevertOnFail, "Restore the working tree when verification fails. A restored run exits 0.")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Maximum run time of the verification command.")
	fs.DurationVar(&cfg.GitTimeout, "git-timeout", cfg.GitTimeout, "Maximum run time of each git command.")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "Fail on malformed bundles and duplicate paths instead of skipping.")
	fs.StringVar(&cfg.EventsFile, "events", cfg.EventsFile, "Write progress events as JSON lines to this file.")
	fs.BoolVar(&cfg.Nvim, "nvim", false, "Reload changed buffers in the Neovim at $NVIM.")
}

// FileConfig is the content of .dogs.yaml. Nil fields are unset.
type FileConfig struct {
	Verify        *string        `yaml:"verify"`
	RevertOnFail  *bool          `yaml:"revert_on_fail"`
	VerifyTimeout *time.Duration `yaml:"verify_timeout"`
	GitTimeout    *time.Duration `yaml:"git_timeout"`
	Strict        *bool          `yaml:"strict"`
	EventsFile    *string        `yaml:"events_file"`
}

// LoadFile reads dir/.dogs.yaml. A missing file yields nil and no error.
func LoadFile(dir string) (*FileConfig, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &fc, nil
}

// Merge applies file values for every option not explicitly set in flags.
// flags may be nil, in which case every file value applies.
func (c *Config) Merge(fc *FileConfig, flags *pflag.FlagSet) {
	if fc == nil {
		return
	}
	changed := func(name string) bool {
		return flags != nil && flags.Changed(name)
	}
	if fc.Verify != nil && !changed("verify") {
		c.Verify = *fc.Verify
	}
	if fc.RevertOnFail != nil && !changed("revert-on-fail") {
		c.RevertOnFail = *fc.RevertOnFail
	}
	if fc.VerifyTimeout != nil && !changed("timeout") {
		c.Timeout = *fc.VerifyTimeout
	}
	if fc.GitTimeout != nil && !changed("git-timeout") {
		c.GitTimeout = *fc.GitTimeout
	}
	if fc.Strict != nil && !changed("strict") {
		c.Strict = *fc.Strict
	}
	if fc.EventsFile != nil && !changed("events") {
		c.EventsFile = *fc.EventsFile
	}
}

// Validate checks mutually exclusive and out-of-range options.
func (c *Config) Validate() error {
	modes := 0
	for _, set := range []bool{c.Interactive, c.Yes, c.No} {
		if set {
			modes++
		}
	}
	if modes > 1 {
		return fmt.Errorf("--interactive, --yes and --no are mutually exclusive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("--timeout must be positive, got %s", c.Timeout)
	}
	if c.GitTimeout <= 0 {
		return fmt.Errorf("--git-timeout must be positive, got %s", c.GitTimeout)
	}
	if c.RevertOnFail && c.Verify == "" {
		return fmt.Errorf("--revert-on-fail requires --verify")
	}
	return nil
}
