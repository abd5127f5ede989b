// Package cli provides the strata command line tool: dependency checks,
// schema migrations and build metadata over a configured storage adapter.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/stratadb/strata/pkg/adapter/factory"
	"github.com/stratadb/strata/pkg/adapter/instrument"
	"github.com/stratadb/strata/pkg/config"
	"github.com/stratadb/strata/pkg/health"
	"github.com/stratadb/strata/pkg/mapper"
	"github.com/stratadb/strata/pkg/migrate"
	"github.com/stratadb/strata/pkg/observability/logger"
	"github.com/stratadb/strata/pkg/resilience"
	"github.com/stratadb/strata/pkg/version"
)

// Options defines the command tree configuration.
type Options struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string
}

// NewRootCommand creates the CLI with check, migrate and version
// subcommands.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "STRATA"
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")

	loadConfig := func() (*config.Config, logger.Logger, error) {
		cfg, err := config.NewViperLoader(cfgPath, opts.EnvPrefix).Load()
		if err != nil {
			return nil, nil, err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return nil, nil, err
		}
		return cfg, log, nil
	}

	rootCmd.AddCommand(newCheckCommand(loadConfig))
	rootCmd.AddCommand(newMigrateCommand(loadConfig))
	rootCmd.AddCommand(newVersionCommand(opts.Name))
	return rootCmd
}

// Execute runs the command tree and exits non-zero on failure.
func Execute(opts Options) {
	if err := NewRootCommand(opts).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCheckCommand(loadConfig func() (*config.Config, logger.Logger, error)) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the configured database is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			adp, err := factory.New(cfg.Database, mapper.NewEntityMapper(), log)
			if err != nil {
				return fmt.Errorf("failed to initialize adapter: %w", err)
			}
			defer adp.Disconnect()

			if cfg.Resilience.Enabled {
				adp = resilience.Wrap(adp, resilience.Options{
					MaxFailures:      cfg.Resilience.MaxFailures,
					Cooldown:         cfg.Resilience.Cooldown,
					OperationTimeout: cfg.Resilience.OperationTimeout,
				})
			}
			if cfg.Metrics.Enabled {
				metrics := instrument.NewMetrics(prometheus.NewRegistry(), cfg.Metrics.Namespace)
				adp = instrument.Wrap(adp, metrics)
			}

			registry := health.NewRegistry()
			registry.Register(health.NewAdapterChecker(cfg.Database.Type, adp, timeout))

			result := registry.Check(ctx)
			for _, check := range result.Checks {
				if check.Status == health.StatusHealthy {
					log.Info("health check passed", "check", check.Name, "duration", check.Duration)
				} else {
					log.Error("health check failed", "check", check.Name, "error", check.Error)
				}
			}
			if !result.IsHealthy() {
				return fmt.Errorf("database is not reachable")
			}
			log.Info("database is reachable", "type", cfg.Database.Type)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall check timeout")
	return cmd
}

func newMigrateCommand(loadConfig func() (*config.Config, logger.Logger, error)) *cobra.Command {
	var (
		dir     string
		steps   int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply, revert or inspect schema migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			subcommand := "up"
			if len(args) > 0 {
				subcommand = args[0]
			}

			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			adp, err := factory.New(cfg.Database, mapper.NewEntityMapper(), log)
			if err != nil {
				return fmt.Errorf("failed to initialize adapter: %w", err)
			}
			defer adp.Disconnect()

			runner, err := migrate.NewRunner(adp, os.DirFS("."), dir, log)
			if err != nil {
				return err
			}

			switch subcommand {
			case "up":
				applied, err := runner.Up(ctx)
				if err != nil {
					return err
				}
				log.Info("migrations applied", "count", applied, "dir", dir)
				return nil
			case "down":
				if steps <= 0 {
					return fmt.Errorf("steps must be greater than zero")
				}
				reverted, err := runner.Down(ctx, steps)
				if err != nil {
					return err
				}
				log.Info("migrations reverted", "count", reverted, "steps", steps, "dir", dir)
				return nil
			case "status":
				status, err := runner.Status(ctx)
				if err != nil {
					return err
				}
				log.Info("migration status", "applied", len(status.Applied), "pending", len(status.Pending), "dir", dir)
				for _, pending := range status.Pending {
					log.Info("migration pending", "version", pending.Version, "name", pending.Name)
				}
				return nil
			default:
				return fmt.Errorf("unknown migrate subcommand %q", subcommand)
			}
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "migrations", "migration files directory")
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "overall migration timeout")
	return cmd
}

func newVersionCommand(serviceName string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build version metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Current(serviceName)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	level, err := logger.ParseLogLevel(cfg.Logger.Level)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Logger.Format)
	if err != nil {
		return nil, err
	}
	log, err := logger.NewZapLogger(logger.Config{Level: level, Format: format})
	if err != nil {
		return nil, err
	}
	return log.With("service", cfg.Service.Name, "environment", cfg.Service.Environment), nil
}
