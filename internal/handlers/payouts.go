package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cardhaven/cardhaven-payments-service/internal/models"
	"github.com/cardhaven/cardhaven-payments-service/internal/service"
)

// ProcessPayouts handles POST /api/v1/payouts/process. Admin only; also
// invoked by the scheduler through the service directly.
func (h *Handlers) ProcessPayouts(c *gin.Context) {
	if _, isAdmin := callerIdentity(c); !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}

	summary, err := h.payouts.ProcessAutomaticPayouts(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// ProcessSellerPayout handles POST /api/v1/payouts/sellers/:id
func (h *Handlers) ProcessSellerPayout(c *gin.Context) {
	if _, isAdmin := callerIdentity(c); !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}

	var body struct {
		Method      string `json:"method"`
		PeriodStart string `json:"period_start"`
		PeriodEnd   string `json:"period_end"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	req := &service.PayoutRequest{SellerID: c.Param("id")}
	if body.Method != "" {
		method := models.PayoutMethod(body.Method)
		if method != models.PayoutMethodBank && method != models.PayoutMethodPayPal {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payout method"})
			return
		}
		req.Method = method
	}
	var err error
	if req.PeriodStart, err = parseTime(body.PeriodStart); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_start"})
		return
	}
	if req.PeriodEnd, err = parseTime(body.PeriodEnd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid period_end"})
		return
	}

	payout, err := h.payouts.ProcessSinglePayout(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, payout)
}

// GetEligibleSellers handles GET /api/v1/payouts/eligible
func (h *Handlers) GetEligibleSellers(c *gin.Context) {
	if _, isAdmin := callerIdentity(c); !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}

	eligible, err := h.payouts.GetEligibleSellers(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sellers": eligible,
		"count":   len(eligible),
	})
}

// CancelPayout handles POST /api/v1/payouts/:id/cancel
func (h *Handlers) CancelPayout(c *gin.Context) {
	if _, isAdmin := callerIdentity(c); !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}

	payout, err := h.payouts.CancelPayout(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, payout)
}

// RetryPayout handles POST /api/v1/payouts/:id/retry
func (h *Handlers) RetryPayout(c *gin.Context) {
	if _, isAdmin := callerIdentity(c); !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}

	payout, err := h.payouts.RetryPayout(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, payout)
}

// PayoutReport handles GET /api/v1/payouts/report?start=...&end=...
func (h *Handlers) PayoutReport(c *gin.Context) {
	if _, isAdmin := callerIdentity(c); !isAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return
	}

	start, err := parseTime(c.Query("start"))
	if err != nil || start == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start is required (RFC 3339)"})
		return
	}
	end, err := parseTime(c.Query("end"))
	if err != nil || end == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end is required (RFC 3339)"})
		return
	}

	report, err := h.payouts.GeneratePayoutReport(c.Request.Context(), *start, *end)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
