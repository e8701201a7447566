// Command careops is the Carebeat operations CLI.
//
// Usage:
//
//	carebeat-careops vapid
//	carebeat-careops migrate --file sql/schema.sql
//	carebeat-careops schedulers
//	carebeat-careops tick medicine_reminder
//	carebeat-careops tick --all
//	carebeat-careops escalate --subject 42
//	carebeat-careops maintenance cleanup
//	carebeat-careops maintenance catchup
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/carebeat/internal/app"
	"github.com/albapepper/carebeat/internal/config"
	"github.com/albapepper/carebeat/internal/db"
	"github.com/albapepper/carebeat/internal/push"
	"github.com/albapepper/carebeat/internal/scheduler"
	"github.com/albapepper/carebeat/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "carebeat-careops",
		Short: "Carebeat operations CLI",
	}

	root.AddCommand(vapidCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(schedulersCmd())
	root.AddCommand(tickCmd())
	root.AddCommand(escalateCmd())
	root.AddCommand(maintenanceCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// vapid command
// --------------------------------------------------------------------------

func vapidCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid",
		Short: "Generate a VAPID key pair for Web Push",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema file to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ddl, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read schema: %w", err)
			}
			return runWithPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				start := time.Now()
				if _, err := pool.Exec(ctx, string(ddl)); err != nil {
					return fmt.Errorf("apply schema: %w", err)
				}
				logger.Info("Schema applied", "file", file, "duration", time.Since(start).Round(time.Millisecond))
				return nil
			}, db.WithoutStatements())
		},
	}
	cmd.Flags().StringVar(&file, "file", "sql/schema.sql", "Schema file")
	return cmd
}

// --------------------------------------------------------------------------
// schedulers command
// --------------------------------------------------------------------------

func schedulersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedulers",
		Short: "List schedulers and their tick intervals",
		RunE: func(cmd *cobra.Command, args []string) error {
			set := scheduler.NewSet(scheduler.Deps{Logger: logger}, scheduler.Config{})
			for _, e := range set.Engines() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s every %s\n", e.Name(), e.Interval())
			}
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// tick command
// --------------------------------------------------------------------------

func tickCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tick [scheduler...]",
		Short: "Run one tick of the named schedulers",
		Long: "Runs one evaluation pass now. Names: " + strings.Join([]string{
			scheduler.NameMedicine, scheduler.NameReminder, scheduler.NameWellbeing,
			scheduler.NameInactivity, scheduler.NameRefill,
		}, ", ") + ".",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("name at least one scheduler or pass --all")
			}
			return runWithApp(func(ctx context.Context, a *app.App) error {
				engines, err := selectEngines(a.Schedulers, args, all)
				if err != nil {
					return err
				}
				for _, e := range engines {
					res, _ := e.Tick(ctx)
					attrs := append([]any{"scheduler", e.Name(), "skipped", res.Skipped}, res.LogAttrs()...)
					if res.Err != nil {
						logger.Error("Tick failed", append(attrs, "error", res.Err)...)
						continue
					}
					logger.Info("Tick finished", attrs...)
				}
				// Deliveries run after Tick returns; let them finish before exit.
				for _, e := range engines {
					e.Wait()
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Tick every scheduler")
	return cmd
}

func selectEngines(set *scheduler.Set, names []string, all bool) ([]*scheduler.Engine, error) {
	if all {
		return set.Engines(), nil
	}
	engines := make([]*scheduler.Engine, 0, len(names))
	for _, name := range names {
		e, ok := set.Engine(name)
		if !ok {
			return nil, fmt.Errorf("unknown scheduler %q", name)
		}
		engines = append(engines, e)
	}
	return engines, nil
}

// --------------------------------------------------------------------------
// escalate command
// --------------------------------------------------------------------------

func escalateCmd() *cobra.Command {
	var subjectID string
	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Run the not-well escalation for one elder",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subjectID == "" {
				return fmt.Errorf("--subject is required")
			}
			return runWithApp(func(ctx context.Context, a *app.App) error {
				res, err := a.Escalation.Check(ctx, subjectID)
				if err != nil {
					return err
				}
				logger.Info("Escalation checked",
					"subject", subjectID,
					"not_well", res.NotWell,
					"fired", res.Fired,
					"sent", res.Report.Sent(),
					"failed", res.Report.Failed())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subjectID, "subject", "", "Elder user ID")
	return cmd
}

// --------------------------------------------------------------------------
// maintenance command
// --------------------------------------------------------------------------

func maintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Run maintenance tasks once",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Purge stale push subscriptions and old intake log rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(func(ctx context.Context, a *app.App) error {
				a.Maintenance.Cleanup(ctx)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "catchup",
		Short: "Re-run today's not-well escalations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(func(ctx context.Context, a *app.App) error {
				a.Maintenance.CatchUp(ctx)
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// runWithPool handles config loading, DB connection, and context cancellation.
func runWithPool(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error, opts ...db.Option) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

// runWithApp additionally wires the scheduler and push components.
func runWithApp(fn func(ctx context.Context, a *app.App) error) error {
	return runWithPool(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
		a, err := app.Build(ctx, cfg, store.New(pool.Pool), logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a)
	})
}
