// reportjob runs one pipeline batch job and exits. It backs the cron
// entries that drive rollup, freeze and dispatch on their cadences.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/clock"
	"github.com/flowcoder2025/FlowReport-sub001/internal/config"
	"github.com/flowcoder2025/FlowReport-sub001/internal/events"
	"github.com/flowcoder2025/FlowReport-sub001/internal/freezer"
	"github.com/flowcoder2025/FlowReport-sub001/internal/migration"
	"github.com/flowcoder2025/FlowReport-sub001/internal/observability/logger"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	"github.com/flowcoder2025/FlowReport-sub001/internal/report/deliver"
	"github.com/flowcoder2025/FlowReport-sub001/internal/report/render"
	reportservice "github.com/flowcoder2025/FlowReport-sub001/internal/report/service"
	"github.com/flowcoder2025/FlowReport-sub001/internal/rollup"
	snapshotservice "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/service"
	"github.com/flowcoder2025/FlowReport-sub001/internal/workspace"
	"github.com/flowcoder2025/FlowReport-sub001/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	flagWorkspaceID string
	flagPeriodType  string
	flagPeriodStart string
)

var rootCmd = &cobra.Command{
	Use:   "reportjob",
	Short: "One-shot batch jobs for the reporting pipeline",
}

func init() {
	rollupCmd.Flags().StringVar(&flagWorkspaceID, "workspace", "", "workspace id (required)")
	rollupCmd.Flags().StringVar(&flagPeriodType, "period", "WEEKLY", "target period type (WEEKLY or MONTHLY)")
	rollupCmd.Flags().StringVar(&flagPeriodStart, "start", "", "any instant inside the target bucket (RFC3339 or YYYY-MM-DD, default now)")

	freezeCmd.Flags().StringVar(&flagWorkspaceID, "workspace", "", "workspace id (empty freezes all workspaces)")
	freezeCmd.Flags().StringVar(&flagPeriodType, "period", "", "restrict to one period type")

	rootCmd.AddCommand(rollupCmd, freezeCmd, dispatchCmd)
}

// jobApp wires the services a one-shot invocation needs. The caller
// must defer Close.
type jobApp struct {
	cfg      config.Config
	log      *zap.Logger
	db       *gorm.DB
	node     *snowflake.Node
	outbox   *events.Outbox
	resolver *workspace.Resolver
}

func newJobApp() (*jobApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	conn, err := db.Open(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if err := migration.RunMigrations(sqlDB); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	node, err := snowflake.NewNode(2)
	if err != nil {
		return nil, err
	}
	return &jobApp{
		cfg:      cfg,
		log:      log,
		db:       conn,
		node:     node,
		outbox:   events.NewOutbox(conn, node),
		resolver: workspace.NewResolver(conn),
	}, nil
}

func (a *jobApp) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	a.log.Sync()
}

func (a *jobApp) rollupService() *rollup.Service {
	store := snapshotservice.NewService(snapshotservice.ServiceParam{
		DB:         a.db,
		Log:        a.log,
		GenID:      a.node,
		Clock:      clock.SystemClock{},
		Workspaces: a.resolver,
	})
	return rollup.NewService(rollup.Params{
		Log:        a.log,
		Store:      store,
		Workspaces: a.resolver,
		Outbox:     a.outbox,
		Config:     rollup.Config{BatchSize: a.cfg.Jobs.RollupBatchSize},
	})
}

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Roll fine-grained snapshots up into a coarser bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newJobApp()
		if err != nil {
			return err
		}
		defer app.Close()

		workspaceID, err := snowflake.ParseString(flagWorkspaceID)
		if err != nil || workspaceID == 0 {
			return fmt.Errorf("a valid --workspace is required")
		}
		target, err := period.Parse(flagPeriodType)
		if err != nil {
			return fmt.Errorf("invalid --period: %w", err)
		}
		start := time.Now().UTC()
		if flagPeriodStart != "" {
			start, err = parseInstant(flagPeriodStart)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
		}

		result, err := app.rollupService().Run(context.Background(), workspaceID, target, start)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var freezeCmd = &cobra.Command{
	Use:   "freeze",
	Short: "Create immutable versions of live snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newJobApp()
		if err != nil {
			return err
		}
		defer app.Close()

		svc := freezer.NewService(freezer.Params{
			DB:     app.db,
			Log:    app.log,
			GenID:  app.node,
			Clock:  clock.SystemClock{},
			Outbox: app.outbox,
			Config: freezer.Config{
				BatchSize: app.cfg.Jobs.FreezeBatchSize,
				Window:    app.cfg.Jobs.FreezeWindow.Duration,
			},
		})

		if flagWorkspaceID == "" {
			result, err := freezer.NewWorker(app.db, app.log, svc).RunOnce(context.Background())
			if err != nil {
				return err
			}
			return printJSON(result)
		}

		workspaceID, err := snowflake.ParseString(flagWorkspaceID)
		if err != nil || workspaceID == 0 {
			return fmt.Errorf("invalid --workspace")
		}
		scope := freezer.Scope{WorkspaceID: workspaceID}
		if flagPeriodType != "" {
			scope.PeriodType, err = period.Parse(flagPeriodType)
			if err != nil {
				return fmt.Errorf("invalid --period: %w", err)
			}
		}
		result, err := svc.FreezeScope(context.Background(), scope)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Generate and deliver all due reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newJobApp()
		if err != nil {
			return err
		}
		defer app.Close()

		store := snapshotservice.NewService(snapshotservice.ServiceParam{
			DB:         app.db,
			Log:        app.log,
			GenID:      app.node,
			Clock:      clock.SystemClock{},
			Workspaces: app.resolver,
		})
		svc := reportservice.NewService(reportservice.ServiceParam{
			DB:       app.db,
			Log:      app.log,
			GenID:    app.node,
			Clock:    clock.SystemClock{},
			Store:    store,
			Renderer: render.NewHTMLRenderer(),
			Channels: deliver.NewRegistry(
				deliver.NewWebhookChannel(nil, app.log),
				deliver.NewEmailChannel(nil, app.log),
			),
			Outbox: app.outbox,
			Config: reportservice.Config{
				Workers:             app.cfg.Jobs.DispatchWorkers,
				RenderTimeout:       app.cfg.Jobs.RenderTimeout.Duration,
				DeliveryTimeout:     app.cfg.Jobs.DeliveryTimeout.Duration,
				DeliveryMaxAttempts: app.cfg.Jobs.DeliveryMaxAttempts,
				DeliveryBackoff:     app.cfg.Jobs.DeliveryBackoff.Duration,
			},
		})

		result, err := svc.DispatchDue(context.Background(), time.Now().UTC())
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func parseInstant(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
