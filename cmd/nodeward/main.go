// Command nodeward supervises a bitcoind node whose configuration is
// compiled from a versioned settings store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nodeward/nodeward/internal/catalog"
	"github.com/nodeward/nodeward/internal/nodever"
	"github.com/nodeward/nodeward/internal/runtimecfg"
	"github.com/nodeward/nodeward/internal/settings"
	"github.com/nodeward/nodeward/internal/store"
	"github.com/nodeward/nodeward/internal/supervise"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "nodeward",
		Short:         "Versioned settings manager and supervisor for bitcoind",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "f", "", "Path to TOML config file (env overrides still apply)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newStatusCmd(flags))
	root.AddCommand(newVersionCmd())
	return root
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Apply stored settings and supervise the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags)
		},
	}
}

func run(flags *rootFlags) error {
	cfg, err := runtimecfg.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := newLogger(flags)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	st := store.NewSettings(cfg.SettingsStorePath())
	manager := supervise.NewManager(cfg, st, logger)
	facade := settings.New(cfg, catalog.NewWithDefaults(), st, manager, logger)

	// A repaired (reinitialized) store means the node must be re-applied
	// with defaults rather than keep running on stale directives.
	health := store.NewHealthChecker(st, logger, store.WithRepairCallback(func() {
		if _, err := facade.Update(nil); err != nil {
			logger.Error("reapplying settings after store repair failed", "error", err)
		}
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := facade.Apply(); err != nil {
		return fmt.Errorf("applying settings: %w", err)
	}

	go health.Run(ctx)

	logger.Info("nodeward running", "data_dir", cfg.DataDir, "version", version)
	<-ctx.Done()

	logger.Info("shutting down")
	status, result := manager.Stop()
	logger.Info("shutdown complete", "result", string(result), "running", status.Running)
	return nil
}

func newStatusCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored settings and resolved node version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := runtimecfg.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			st := store.NewSettings(cfg.SettingsStorePath())
			record, err := st.Read()
			if err != nil {
				return fmt.Errorf("reading settings store: %w", err)
			}

			selector := nodever.Latest
			if v, ok := record[catalog.VersionKey].(string); ok && v != "" {
				selector = v
			}
			resolved, err := nodever.Resolve(selector)
			if err != nil {
				return err
			}

			out := map[string]any{
				"store":    cfg.SettingsStorePath(),
				"selector": selector,
				"version":  resolved,
				"settings": record,
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show nodeward and supported node versions",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nodeward %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "supported bitcoind versions (newest first):\n")
			for _, v := range nodever.Supported {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", v)
			}
		},
	}
}

// newLogger builds the slog root logger from the CLI flags.
func newLogger(flags *rootFlags) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(flags.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", flags.logLevel)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch flags.logFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", flags.logFormat)
	}
}
