package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/memzapp/memz/internal/config"
)

// cli carries state shared by the subcommands, filled in before any of
// them run.
type cli struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	var noColor bool

	root := &cobra.Command{
		Use:   "memz",
		Short: "Memz: a personal event log with tag analytics",
		Long: `memz keeps named logs of dated, tagged events and shows which tags
come up most and which appear together. Configuration is read from the
environment; see STORE_BACKEND, ALLOWED_EMAILS, REDIS_URL and NATS_URL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if noColor {
				color.NoColor = true
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			setupLogging(cfg)
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output (also NO_COLOR)")

	root.AddCommand(
		c.newServeCmd(),
		c.newMigrateCmd(),
		c.newUserCmd(),
		c.newExportCmd(),
		c.newImportCmd(),
	)
	return root
}

// Status colors. fatih/color turns them off when stdout is not a terminal.
var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

// setupLogging configures the global slog logger. Development uses text
// output for readability, anything else JSON for log aggregation. Logs go
// to stderr so export can write the document to stdout.
func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
