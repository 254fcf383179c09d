package server

import (
	"net/http"

	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	scheduledomain "github.com/flowcoder2025/FlowReport-sub001/internal/schedule/domain"
	"github.com/gin-gonic/gin"
)

type createScheduleRequest struct {
	WorkspaceID string `json:"workspace_id"`
	PeriodType  string `json:"period_type"`
	DayParam    int    `json:"day_param"`
	Hour        int    `json:"hour"`
	Timezone    string `json:"timezone"`
}

func (s *Server) CreateSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid_request_body")
		return
	}

	workspaceID, ok := parseID(c, req.WorkspaceID, "workspace_id")
	if !ok {
		return
	}
	periodType, err := period.Parse(req.PeriodType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	schedule, err := s.admin.CreateSchedule(c.Request.Context(), scheduledomain.CreateScheduleRequest{
		WorkspaceID: workspaceID,
		PeriodType:  periodType,
		DayParam:    req.DayParam,
		Hour:        req.Hour,
		Timezone:    req.Timezone,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

type updateScheduleRequest struct {
	DayParam *int    `json:"day_param"`
	Hour     *int    `json:"hour"`
	Timezone *string `json:"timezone"`
	IsActive *bool   `json:"is_active"`
}

func (s *Server) UpdateSchedule(c *gin.Context) {
	scheduleID, ok := parseID(c, c.Param("id"), "schedule_id")
	if !ok {
		return
	}

	var req updateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid_request_body")
		return
	}

	schedule, err := s.admin.UpdateSchedule(c.Request.Context(), scheduledomain.UpdateScheduleRequest{
		ScheduleID: scheduleID,
		DayParam:   req.DayParam,
		Hour:       req.Hour,
		Timezone:   req.Timezone,
		IsActive:   req.IsActive,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, schedule)
}

func (s *Server) ListSchedules(c *gin.Context) {
	workspaceID, ok := parseID(c, c.Query("workspace_id"), "workspace_id")
	if !ok {
		return
	}
	schedules, err := s.admin.ListSchedules(c.Request.Context(), workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": schedules})
}

type addRecipientRequest struct {
	Channel string `json:"channel"`
	Address string `json:"address"`
}

func (s *Server) AddRecipient(c *gin.Context) {
	scheduleID, ok := parseID(c, c.Param("id"), "schedule_id")
	if !ok {
		return
	}

	var req addRecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid_request_body")
		return
	}

	recipient, err := s.admin.AddRecipient(c.Request.Context(), scheduledomain.AddRecipientRequest{
		ScheduleID: scheduleID,
		Channel:    scheduledomain.ChannelKind(req.Channel),
		Address:    req.Address,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, recipient)
}

func (s *Server) ListRecipients(c *gin.Context) {
	scheduleID, ok := parseID(c, c.Param("id"), "schedule_id")
	if !ok {
		return
	}
	recipients, err := s.admin.ListRecipients(c.Request.Context(), scheduleID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": recipients})
}

func (s *Server) RemoveRecipient(c *gin.Context) {
	recipientID, ok := parseID(c, c.Param("id"), "recipient_id")
	if !ok {
		return
	}
	if err := s.admin.RemoveRecipient(c.Request.Context(), recipientID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
