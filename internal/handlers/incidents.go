package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cardhaven/cardhaven-payments-service/internal/models"
)

// ListIncidents handles GET /api/v1/incidents?status=...
func (h *Handlers) ListIncidents(c *gin.Context) {
	if _, isAdmin := callerIdentity(c); !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}

	status := models.IncidentStatus(c.DefaultQuery("status", string(models.IncidentStatusNeedsManualReview)))
	switch status {
	case models.IncidentStatusNeedsManualReview, models.IncidentStatusAutoRefunded, models.IncidentStatusResolved:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	incidents, err := h.recovery.ListIncidents(c.Request.Context(), status)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// ResolveIncident handles POST /api/v1/incidents/:id/resolve
func (h *Handlers) ResolveIncident(c *gin.Context) {
	operatorID, isAdmin := callerIdentity(c)
	if !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}

	var req struct {
		Method string `json:"method"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Method == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "method is required"})
		return
	}

	incident, err := h.recovery.ResolveIncident(c.Request.Context(), c.Param("id"), req.Method, req.Notes, operatorID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, incident)
}
