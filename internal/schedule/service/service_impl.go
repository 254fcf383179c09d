// Package service implements schedule administration on gorm.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/cache"
	"github.com/flowcoder2025/FlowReport-sub001/internal/clock"
	scheduledomain "github.com/flowcoder2025/FlowReport-sub001/internal/schedule/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const locationTTL = 10 * time.Minute

// Config bounds per-schedule fan-out.
type Config struct {
	RecipientLimit int
}

func (c Config) withDefaults() Config {
	if c.RecipientLimit <= 0 {
		c.RecipientLimit = 20
	}
	return c
}

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config Config
}

// Service is the gorm-backed schedule admin.
type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       Config
	locations *cache.TTLCache[string, *time.Location]
}

func NewService(p ServiceParam) scheduledomain.Admin {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("schedule.admin"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config.withDefaults(),
		locations: cache.NewTTLCache[string, *time.Location](),
	}
}

func (s *Service) CreateSchedule(ctx context.Context, req scheduledomain.CreateScheduleRequest) (*scheduledomain.ReportSchedule, error) {
	if req.WorkspaceID == 0 {
		return nil, scheduledomain.ErrScheduleNotFound
	}
	if err := scheduledomain.ValidateRecurrence(req.PeriodType, req.DayParam, req.Hour); err != nil {
		return nil, err
	}
	tz, loc, err := s.loadLocation(req.Timezone)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	nextRun, err := scheduledomain.NextRun(req.PeriodType, req.DayParam, req.Hour, loc, now)
	if err != nil {
		return nil, err
	}

	record := &scheduledomain.ReportSchedule{
		ID:          s.genID.Generate(),
		WorkspaceID: req.WorkspaceID,
		PeriodType:  req.PeriodType,
		DayParam:    req.DayParam,
		Hour:        req.Hour,
		Timezone:    tz,
		IsActive:    true,
		NextRunAt:   nextRun.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&scheduledomain.ReportSchedule{}).
			Where("workspace_id = ? AND period_type = ?", req.WorkspaceID, req.PeriodType).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return scheduledomain.ErrScheduleExists
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("schedule created",
		zap.Int64("schedule_id", record.ID.Int64()),
		zap.Int64("workspace_id", req.WorkspaceID.Int64()),
		zap.String("period_type", string(req.PeriodType)),
		zap.Time("next_run_at", record.NextRunAt),
	)
	return record, nil
}

func (s *Service) UpdateSchedule(ctx context.Context, req scheduledomain.UpdateScheduleRequest) (*scheduledomain.ReportSchedule, error) {
	var record scheduledomain.ReportSchedule
	err := s.db.WithContext(ctx).First(&record, "id = ?", req.ScheduleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, scheduledomain.ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}

	recurrenceChanged := false
	if req.DayParam != nil && *req.DayParam != record.DayParam {
		record.DayParam = *req.DayParam
		recurrenceChanged = true
	}
	if req.Hour != nil && *req.Hour != record.Hour {
		record.Hour = *req.Hour
		recurrenceChanged = true
	}
	if req.Timezone != nil && strings.TrimSpace(*req.Timezone) != record.Timezone {
		record.Timezone = strings.TrimSpace(*req.Timezone)
		recurrenceChanged = true
	}
	if req.IsActive != nil {
		record.IsActive = *req.IsActive
	}

	if err := scheduledomain.ValidateRecurrence(record.PeriodType, record.DayParam, record.Hour); err != nil {
		return nil, err
	}
	tz, loc, err := s.loadLocation(record.Timezone)
	if err != nil {
		return nil, err
	}
	record.Timezone = tz

	now := s.clock.Now()
	if recurrenceChanged {
		nextRun, err := scheduledomain.NextRun(record.PeriodType, record.DayParam, record.Hour, loc, now)
		if err != nil {
			return nil, err
		}
		record.NextRunAt = nextRun.UTC()
	}
	record.UpdatedAt = now

	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Service) ListSchedules(ctx context.Context, workspaceID snowflake.ID) ([]scheduledomain.ReportSchedule, error) {
	var records []scheduledomain.ReportSchedule
	err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("period_type ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) AddRecipient(ctx context.Context, req scheduledomain.AddRecipientRequest) (*scheduledomain.ReportRecipient, error) {
	if err := scheduledomain.ValidateAddress(req.Channel, req.Address); err != nil {
		return nil, err
	}

	record := &scheduledomain.ReportRecipient{
		ID:         s.genID.Generate(),
		ScheduleID: req.ScheduleID,
		Channel:    req.Channel,
		Address:    strings.TrimSpace(req.Address),
		IsActive:   true,
		CreatedAt:  s.clock.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var schedule scheduledomain.ReportSchedule
		err := tx.First(&schedule, "id = ?", req.ScheduleID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return scheduledomain.ErrScheduleNotFound
		}
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&scheduledomain.ReportRecipient{}).
			Where("schedule_id = ? AND is_active = ?", req.ScheduleID, true).
			Count(&count).Error; err != nil {
			return err
		}
		if int(count) >= s.cfg.RecipientLimit {
			return scheduledomain.ErrRecipientLimitExceeded
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) RemoveRecipient(ctx context.Context, recipientID snowflake.ID) error {
	result := s.db.WithContext(ctx).Delete(&scheduledomain.ReportRecipient{}, "id = ?", recipientID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return scheduledomain.ErrRecipientNotFound
	}
	return nil
}

func (s *Service) ListRecipients(ctx context.Context, scheduleID snowflake.ID) ([]scheduledomain.ReportRecipient, error) {
	var records []scheduledomain.ReportRecipient
	err := s.db.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) loadLocation(name string) (string, *time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "UTC"
	}
	if loc, ok := s.locations.Get(name); ok {
		return name, loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return "", nil, scheduledomain.ErrInvalidTimezone
	}
	s.locations.Set(name, loc, locationTTL)
	return name, loc, nil
}
