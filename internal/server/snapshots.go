package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/flowcoder2025/FlowReport-sub001/internal/period"
	snapshotdomain "github.com/flowcoder2025/FlowReport-sub001/internal/snapshot/domain"
	"github.com/gin-gonic/gin"
)

type upsertSnapshotRequest struct {
	WorkspaceID  string         `json:"workspace_id"`
	ConnectionID string         `json:"connection_id"`
	PeriodType   string         `json:"period_type"`
	PeriodStart  string         `json:"period_start"`
	Metrics      map[string]any `json:"metrics"`
}

func (s *Server) UpsertSnapshot(c *gin.Context) {
	var req upsertSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, "invalid_request_body")
		return
	}

	workspaceID, ok := parseID(c, req.WorkspaceID, "workspace_id")
	if !ok {
		return
	}
	var connectionID snowflake.ID
	if strings.TrimSpace(req.ConnectionID) != "" {
		connectionID, ok = parseID(c, req.ConnectionID, "connection_id")
		if !ok {
			return
		}
	}
	periodType, err := period.Parse(req.PeriodType)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	start, ok := parseTime(c, req.PeriodStart, "period_start")
	if !ok {
		return
	}

	created, err := s.snapshots.UpsertMerge(c.Request.Context(), snapshotdomain.Identity{
		WorkspaceID:  workspaceID,
		ConnectionID: connectionID,
		PeriodType:   periodType,
		PeriodStart:  start,
	}, req.Metrics)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"created": created})
}

func (s *Server) QuerySnapshots(c *gin.Context) {
	workspaceID, ok := parseID(c, c.Query("workspace_id"), "workspace_id")
	if !ok {
		return
	}
	periodType, err := period.Parse(c.Query("period_type"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	from, ok := parseTime(c, c.Query("from"), "from")
	if !ok {
		return
	}
	to, ok := parseTime(c, c.Query("to"), "to")
	if !ok {
		return
	}

	var connectionIDs []snowflake.ID
	if raw := strings.TrimSpace(c.Query("connection_ids")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, ok := parseID(c, part, "connection_ids")
			if !ok {
				return
			}
			connectionIDs = append(connectionIDs, id)
		}
	}

	records, err := s.snapshots.Query(c.Request.Context(), snapshotdomain.QueryRequest{
		WorkspaceID:   workspaceID,
		PeriodType:    periodType,
		From:          from,
		To:            to,
		ConnectionIDs: connectionIDs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}
