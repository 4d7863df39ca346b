package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dabbu/dabbu-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagStatePath  string
	flagServerURL  string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags is a snapshot of the persistent flags for one invocation.
type CLIFlags struct {
	ConfigPath string
	StatePath  string
	ServerURL  string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries everything a subcommand needs: flags, the resolved
// configuration, and the logger built from it. It is attached to the command
// context by the root PersistentPreRunE.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Out    io.Writer
	Err    io.Writer
}

type cliContextKey struct{}

// errNoCLIContext means a command ran without the root pre-run hook.
var errNoCLIContext = errors.New("internal error: command context not initialized")

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// cliContextFrom returns the CLIContext attached by the root command.
func cliContextFrom(ctx context.Context) (*CLIContext, error) {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		return nil, errNoCLIContext
	}

	return cc, nil
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dabbu",
		Short:   "Dabbu Files API client",
		Long:    "Browse, read, copy, and delete files across cloud drives and local disk through a Dabbu Files API server.",
		Version: version,
		// Errors are printed once by exitOnError.
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: setupCLIContext,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagStatePath, "state", "", "drive state file path")
	cmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Files API server URL")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newCdCmd())
	cmd.AddCommand(newPwdCmd())
	cmd.AddCommand(newCatCmd())
	cmd.AddCommand(newStatCmd())
	cmd.AddCommand(newCpCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newDriveCmd())
	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// setupCLIContext resolves the configuration, builds the logger, and attaches
// a CLIContext plus signal handling to the command context.
func setupCLIContext(cmd *cobra.Command, _ []string) error {
	flags := CLIFlags{
		ConfigPath: flagConfigPath,
		StatePath:  flagStatePath,
		ServerURL:  flagServerURL,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}

	// Config loading logs through a bootstrap logger; the real one depends
	// on the loaded config.
	bootstrap := buildLogger(cmd.ErrOrStderr(), nil, flags)

	resolved, err := config.Resolve(config.ReadEnvOverrides(bootstrap), config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		StatePath:  flags.StatePath,
		ServerURL:  flags.ServerURL,
		Verbose:    flags.Verbose,
		Quiet:      flags.Quiet,
	}, bootstrap)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(cmd.ErrOrStderr(), resolved, flags)

	cc := &CLIContext{
		Flags:  flags,
		Cfg:    resolved,
		Logger: logger,
		Out:    cmd.OutOrStdout(),
		Err:    cmd.ErrOrStderr(),
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}

	cmd.SetContext(withCLIContext(shutdownContext(parent, logger), cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(w io.Writer, cfg *config.Resolved, flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn
	format := "auto"

	if cfg != nil {
		level = parseLevel(cfg.Logging.LogLevel)
		format = cfg.Logging.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if useJSONLogs(format, w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// useJSONLogs decides the handler for format. "auto" picks text for a
// terminal and JSON for anything else (files, pipes, log collectors).
func useJSONLogs(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

// newHTTPClient returns the client used for Files API and token requests.
// A zero network timeout leaves the client without an overall deadline so
// large transfers are not cut off.
func newHTTPClient(cfg *config.Resolved) *http.Client {
	return &http.Client{Timeout: cfg.Network.TimeoutDuration()}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
