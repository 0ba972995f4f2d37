// Package cli implements the atlas commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/atlas-agent/atlas/internal/config"
	"github.com/atlas-agent/atlas/internal/session"
)

// Version is set at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

// app carries the global flags and the loaded configuration to every command.
type app struct {
	dataDir  string
	logLevel string
	format   string

	cfg *config.Config

	// openOpts are appended to every session.Open; tests inject fakes here.
	openOpts []session.Option
}

// NewRootCmd builds the command tree.
func NewRootCmd(opts ...session.Option) *cobra.Command {
	a := &app{openOpts: opts}

	root := &cobra.Command{
		Use:           "atlas",
		Short:         "A desktop conversational agent with encrypted local memory",
		Long:          "Atlas keeps your chat history, memories and todos encrypted on disk, with the keys in the OS keychain.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.dataDir, "data-dir", "d", "", "Data directory (default: $ATLAS_STORAGE_DATA_DIR or <user config dir>/ai-agent)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	root.PersistentFlags().StringVarP(&a.format, "format", "f", "text", "Output format: json or text")

	root.AddCommand(
		a.serveCmd(),
		a.chatCmd(),
		a.historyCmd(),
		a.memoryCmd(),
		a.secretCmd(),
		a.tokenCmd(),
		versionCmd(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) load(cmd *cobra.Command) error {
	overrides := map[string]any{}
	if a.logLevel != "" {
		overrides["log.level"] = a.logLevel
	}

	cfg, err := config.Load(config.Options{DataDir: a.dataDir, Overrides: overrides})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	setupLogger(cfg.Log, cmd.ErrOrStderr())
	return nil
}

func (a *app) openSession(cmd *cobra.Command) (*session.Session, error) {
	opts := append([]session.Option{session.WithPassphrase(passphrasePrompt(cmd))}, a.openOpts...)
	s, err := session.Open(cmd.Context(), a.cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}
	return s, nil
}

// withSession opens a session for the duration of one command.
func (a *app) withSession(fn func(cmd *cobra.Command, s *session.Session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := a.openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd, s, args)
	}
}

func (a *app) printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) jsonOutput() bool {
	return a.format == "json"
}

func setupLogger(cfg config.LogConfig, w io.Writer) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// version needs no config
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "atlas %s\n", Version)
		},
	}
}
