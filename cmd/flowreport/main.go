package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/clock"
	"github.com/flowcoder2025/FlowReport-sub001/internal/config"
	"github.com/flowcoder2025/FlowReport-sub001/internal/events"
	"github.com/flowcoder2025/FlowReport-sub001/internal/freezer"
	"github.com/flowcoder2025/FlowReport-sub001/internal/migration"
	"github.com/flowcoder2025/FlowReport-sub001/internal/observability"
	"github.com/flowcoder2025/FlowReport-sub001/internal/report"
	"github.com/flowcoder2025/FlowReport-sub001/internal/rollup"
	"github.com/flowcoder2025/FlowReport-sub001/internal/schedule"
	"github.com/flowcoder2025/FlowReport-sub001/internal/server"
	"github.com/flowcoder2025/FlowReport-sub001/internal/snapshot"
	"github.com/flowcoder2025/FlowReport-sub001/internal/workspace"
	"github.com/flowcoder2025/FlowReport-sub001/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		fx.Invoke(func(conn *gorm.DB) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return migration.RunMigrations(sqlDB)
		}),
		events.Module,
		workspace.Module,
		snapshot.Module,
		rollup.Module,
		freezer.Module,
		schedule.Module,
		report.Module,
		server.Module,
	)
	app.Run()
}
