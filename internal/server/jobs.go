package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/freezer"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	"github.com/gin-gonic/gin"
)

type rollupRequest struct {
	WorkspaceID string `json:"workspace_id"`
	PeriodType  string `json:"period_type"`
	PeriodStart string `json:"period_start"`
}

func (s *Server) TriggerRollup(c *gin.Context) {
	var req rollupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid_request_body")
		return
	}

	workspaceID, ok := parseID(c, req.WorkspaceID, "workspace_id")
	if !ok {
		return
	}
	target, err := period.Parse(req.PeriodType)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	start, ok := parseTime(c, req.PeriodStart, "period_start")
	if !ok {
		return
	}

	result, err := s.rollup.Run(c.Request.Context(), workspaceID, target, start)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type freezeRequest struct {
	WorkspaceID string `json:"workspace_id"`
	PeriodType  string `json:"period_type"`
}

func (s *Server) TriggerFreeze(c *gin.Context) {
	var req freezeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid_request_body")
		return
	}

	// No workspace means the full cross-tenant sweep.
	if strings.TrimSpace(req.WorkspaceID) == "" {
		result, err := s.freezeAll.RunOnce(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	workspaceID, ok := parseID(c, req.WorkspaceID, "workspace_id")
	if !ok {
		return
	}
	scope := freezer.Scope{WorkspaceID: workspaceID}
	if strings.TrimSpace(req.PeriodType) != "" {
		periodType, err := period.Parse(req.PeriodType)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		scope.PeriodType = periodType
	}

	result, err := s.freezer.FreezeScope(c.Request.Context(), scope)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) TriggerDispatch(c *gin.Context) {
	result, err := s.dispatch.DispatchDue(c.Request.Context(), s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func parseID(c *gin.Context, raw, field string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		invalidRequest(c, "invalid_"+field)
		return 0, false
	}
	return id, true
}

func parseTime(c *gin.Context, raw, field string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	invalidRequest(c, "invalid_"+field)
	return time.Time{}, false
}
