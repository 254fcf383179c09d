package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListReports(c *gin.Context) {
	workspaceID, ok := parseID(c, c.Query("workspace_id"), "workspace_id")
	if !ok {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			invalidRequest(c, "invalid_limit")
			return
		}
		limit = parsed
	}

	reports, err := s.dispatch.ListReports(c.Request.Context(), workspaceID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports})
}
