package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cardhaven/cardhaven-payments-service/internal/service"
)

// Checkout handles POST /api/v1/checkout (charge-first flow).
func (h *Handlers) Checkout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorw("Failed to bind checkout request", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.BuyerID == "" {
		if userID, _ := callerIdentity(c); userID != "" {
			req.BuyerID = userID
		}
	}

	result, err := h.checkout.CheckoutChargeFirst(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	if !result.Approved {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"success":        false,
			"error":          result.DeclineReason,
			"payment_status": "declined",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":        true,
		"order":          result.Order,
		"transaction_id": result.TransactionID,
	})
}
