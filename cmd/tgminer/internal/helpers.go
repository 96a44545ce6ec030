package internal

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/tgminer/pkg/config"
)

const Logo = "⛏"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// Process exit codes, following sysexits.h.
const (
	ExitUsage     = 2
	ExitSoftware  = 4
	ExitNoInput   = 5
	ExitConfig    = 6
	ExitCantCreat = 7
)

// ExitError carries the process exit code for Err.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func Usage(err error) error { return &ExitError{Code: ExitUsage, Err: err} }

func NoInput(err error) error { return &ExitError{Code: ExitNoInput, Err: err} }

func CantCreate(err error) error { return &ExitError{Code: ExitCantCreat, Err: err} }

// ExitCode maps err to a process exit code. Configuration errors that were
// not wrapped in an ExitError exit with ExitConfig, everything else with
// ExitSoftware.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	if errors.Is(err, config.ErrConfig) {
		return ExitConfig
	}
	return ExitSoftware
}

// UsageArgs wraps a positional argument validator so its errors exit with
// ExitUsage.
func UsageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return Usage(err)
		}
		return nil
	}
}

// AddConfigFlag registers the --config flag shared by every command that
// reads the configuration.
func AddConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", "",
		"Config file path (default: $TGMINER_CONFIG or ./"+config.DefaultPath+")")
}

// LoadConfig resolves and loads the configuration. A config file named
// explicitly by flag or environment must exist.
func LoadConfig(flag string) (*config.Config, error) {
	path, explicit := config.ResolvePath(flag)
	if explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, NoInput(fmt.Errorf("cannot find tgminer config file %q", path))
		}
	}
	return config.LoadConfig(path)
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

// GetVersion returns the version string
func GetVersion() string {
	return version
}
