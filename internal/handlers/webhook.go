package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cardhaven/cardhaven-payments-service/internal/gateway"
)

// HeaderGatewaySignature carries the gateway's HMAC over the raw body.
const HeaderGatewaySignature = "X-Gateway-Signature"

// GatewayWebhook handles POST /webhooks/gateway. Once the signature is
// verified and the event dispatched, the gateway gets a 200 even if internal
// processing failed; the conditional writes make its retries harmless.
func (h *Handlers) GatewayWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	signature := c.GetHeader(HeaderGatewaySignature)
	if !h.gateway.VerifyWebhookSignature(payload, signature) {
		h.logger.Warnw("Webhook signature verification failed",
			"remote", c.ClientIP(),
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var event gateway.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	if err := h.webhooks.HandleEvent(c.Request.Context(), &event); err != nil {
		// Acknowledged anyway; the gateway will redeliver and the
		// conditional updates keep the replay safe.
		h.logger.Errorw("Webhook event processing failed",
			"event_id", event.ID,
			"type", event.Type,
			"error", err.Error(),
		)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
