// Package server exposes the HTTP surface: batch job triggers, snapshot
// reads and writes, and schedule administration.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/flowcoder2025/FlowReport-sub001/internal/clock"
	"github.com/flowcoder2025/FlowReport-sub001/internal/config"
	"github.com/flowcoder2025/FlowReport-sub001/internal/freezer"
	reportservice "github.com/flowcoder2025/FlowReport-sub001/internal/report/service"
	"github.com/flowcoder2025/FlowReport-sub001/internal/rollup"
	scheduledomain "github.com/flowcoder2025/FlowReport-sub001/internal/schedule/domain"
	snapshotdomain "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Cfg       config.Config
	Log       *zap.Logger
	DB        *gorm.DB
	Clock     clock.Clock
	Snapshots snapshotdomain.Store
	Rollup    *rollup.Service
	Freezer   *freezer.Service
	FreezeAll *freezer.Worker
	Dispatch  *reportservice.Service
	Admin     scheduledomain.Admin
}

type Server struct {
	cfg       config.Config
	log       *zap.Logger
	db        *gorm.DB
	clock     clock.Clock
	snapshots snapshotdomain.Store
	rollup    *rollup.Service
	freezer   *freezer.Service
	freezeAll *freezer.Worker
	dispatch  *reportservice.Service
	admin     scheduledomain.Admin
}

func New(p Params) *Server {
	return &Server{
		cfg:       p.Cfg,
		log:       p.Log.Named("server"),
		db:        p.DB,
		clock:     p.Clock,
		snapshots: p.Snapshots,
		rollup:    p.Rollup,
		freezer:   p.Freezer,
		freezeAll: p.FreezeAll,
		dispatch:  p.Dispatch,
		admin:     p.Admin,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		api.POST("/jobs/rollup", s.TriggerRollup)
		api.POST("/jobs/freeze", s.TriggerFreeze)
		api.POST("/jobs/dispatch", s.TriggerDispatch)

		api.POST("/snapshots", s.UpsertSnapshot)
		api.GET("/snapshots", s.QuerySnapshots)

		api.POST("/schedules", s.CreateSchedule)
		api.PATCH("/schedules/:id", s.UpdateSchedule)
		api.GET("/schedules", s.ListSchedules)
		api.POST("/schedules/:id/recipients", s.AddRecipient)
		api.GET("/schedules/:id/recipients", s.ListRecipients)
		api.DELETE("/recipients/:id", s.RemoveRecipient)

		api.GET("/reports", s.ListReports)
	}
	return engine
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
