// Package cli implements the odysseyctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pharmacy/internal/app"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/auth"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/catalog"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/inventory"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/shared"
)

const operatorActor = "odysseyctl"

// Seeder bulk-loads reference medications into a pharmacy catalog.
type Seeder interface {
	SeedFromReference(ctx context.Context, pharmacyID string, refs []catalog.ReferenceMedication) (catalog.SeedReport, error)
}

// Reconciler compares cached stock against batches.
type Reconciler interface {
	Reconcile(ctx context.Context, pharmacyID string, repair bool) ([]inventory.Drift, error)
}

// JobTrigger enqueues background jobs.
type JobTrigger interface {
	Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
	Close() error
}

// Runtime supplies the collaborators each command needs. Tests replace the openers.
type Runtime struct {
	LoadConfig func() (*app.Config, error)
	Backend    func(ctx context.Context, cfg *app.Config) (Seeder, Reconciler, func(), error)
	Jobs       func(cfg *app.Config) JobTrigger
}

// DefaultRuntime connects to the configured Postgres and redis.
func DefaultRuntime() Runtime {
	return Runtime{
		LoadConfig: app.LoadConfig,
		Backend: func(ctx context.Context, cfg *app.Config) (Seeder, Reconciler, func(), error) {
			logger := app.NewLogger(cfg)
			pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
			if err != nil {
				return nil, nil, nil, err
			}
			rdb, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
			if err != nil {
				logger.Warn("redis unavailable, reorder cache will not be bumped", slog.Any("error", err))
				rdb = nil
			}
			services := app.BuildServices(cfg, pool, rdb, nil, logger)
			closeFn := func() {
				if rdb != nil {
					_ = rdb.Close()
				}
				pool.Close()
			}
			return services.Catalog, services.Inventory, closeFn, nil
		},
		Jobs: func(cfg *app.Config) JobTrigger {
			return NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		},
	}
}

// NewRootCommand builds the odysseyctl command tree.
func NewRootCommand(rt Runtime) *cobra.Command {
	root := &cobra.Command{
		Use:           "odysseyctl",
		Short:         "Operator tooling for the pharmacy inventory service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newIssueTokenCommand(rt),
		newSeedCommand(rt),
		newReconcileCommand(rt),
		newJobsCommand(rt),
	)
	return root
}

func operatorContext(ctx context.Context, pharmacyID string) context.Context {
	return shared.ContextWithPrincipal(ctx, shared.Principal{ActorID: operatorActor, PharmacyID: pharmacyID, Role: shared.RoleOwner})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newIssueTokenCommand(rt Runtime) *cobra.Command {
	var actor, pharmacy, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Sign a bearer token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.LoadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.AuthTokenTTL
			}
			manager, err := auth.NewManager(cfg.AuthTokenSecret, ttl)
			if err != nil {
				return err
			}
			token, expiresAt, err := manager.Issue(shared.Principal{ActorID: actor, PharmacyID: pharmacy, Role: shared.Role(role)})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"token": token, "expires_at": expiresAt})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id placed in the sub claim")
	cmd.Flags().StringVar(&pharmacy, "pharmacy", "", "pharmacy id the token acts for")
	cmd.Flags().StringVar(&role, "role", string(shared.RolePharmacist), "owner, pharmacist, cashier or auditor")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to AUTH_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("pharmacy")
	return cmd
}

func newSeedCommand(rt Runtime) *cobra.Command {
	var pharmacy, file string
	cmd := &cobra.Command{
		Use:   "seed-catalog",
		Short: "Seed a pharmacy catalog from a JSON reference medication list",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			refs, err := catalog.LoadReference(f)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}
			cfg, err := rt.LoadConfig()
			if err != nil {
				return err
			}
			seeder, _, closeFn, err := rt.Backend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			report, err := seeder.SeedFromReference(operatorContext(cmd.Context(), pharmacy), pharmacy, refs)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&pharmacy, "pharmacy", "", "pharmacy id to seed")
	cmd.Flags().StringVar(&file, "file", "", "path to the reference JSON list")
	_ = cmd.MarkFlagRequired("pharmacy")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newReconcileCommand(rt Runtime) *cobra.Command {
	var pharmacy string
	var repair bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare cached drug stock with batch totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.LoadConfig()
			if err != nil {
				return err
			}
			_, reconciler, closeFn, err := rt.Backend(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()
			drifts, err := reconciler.Reconcile(operatorContext(cmd.Context(), pharmacy), pharmacy, repair)
			if err != nil {
				return err
			}
			if drifts == nil {
				drifts = []inventory.Drift{}
			}
			return writeJSON(cmd.OutOrStdout(), drifts)
		},
	}
	cmd.Flags().StringVar(&pharmacy, "pharmacy", "", "pharmacy id to check")
	cmd.Flags().BoolVar(&repair, "repair", false, "rewrite cached stock from batch totals")
	_ = cmd.MarkFlagRequired("pharmacy")
	return cmd
}

func newJobsCommand(rt Runtime) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect and trigger background jobs"}

	var pharmacy string
	var repair bool
	trigger := &cobra.Command{
		Use:   "trigger <reorder:scan|inventory:reconcile>",
		Short: "Enqueue a job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.LoadConfig()
			if err != nil {
				return err
			}
			client := rt.Jobs(cfg)
			defer client.Close()
			opts := TriggerOptions{PharmacyID: pharmacy}
			if cmd.Flags().Changed("repair") {
				opts.Repair = &repair
			}
			info, err := client.Trigger(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]string{"id": info.ID, "type": info.Type, "queue": info.Queue})
		},
	}
	trigger.Flags().StringVar(&pharmacy, "pharmacy", "", "limit the job to one pharmacy")
	trigger.Flags().BoolVar(&repair, "repair", false, "reconcile only: override RECONCILE_REPAIR")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rt.LoadConfig()
			if err != nil {
				return err
			}
			client := rt.Jobs(cfg)
			defer client.Close()
			s, err := client.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}
	cmd.AddCommand(trigger, stats)
	return cmd
}
