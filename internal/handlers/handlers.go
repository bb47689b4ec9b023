// Package handlers holds the HTTP layer: request binding, caller identity,
// and the mapping from the service error taxonomy to status codes.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/apperrors"
	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/gateway"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/service"
)

// Caller identity headers, set by the API gateway after authentication.
const (
	HeaderUserID    = "X-User-ID"
	HeaderAdminRole = "X-Admin-Role"
)

// Handlers holds all HTTP handlers for the payments service.
type Handlers struct {
	checkout *service.CheckoutService
	payouts  *service.PayoutService
	recovery *service.RecoveryService
	webhooks *gateway.WebhookProcessor
	gateway  gateway.Client
	config   *config.Config
	logger   *zap.SugaredLogger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	checkout *service.CheckoutService,
	payouts *service.PayoutService,
	recovery *service.RecoveryService,
	webhooks *gateway.WebhookProcessor,
	gw gateway.Client,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		checkout: checkout,
		payouts:  payouts,
		recovery: recovery,
		webhooks: webhooks,
		gateway:  gw,
		config:   cfg,
		logger:   logging.NewLogger("handlers"),
	}
}

func callerIdentity(c *gin.Context) (userID string, isAdmin bool) {
	return c.GetHeader(HeaderUserID), c.GetHeader(HeaderAdminRole) == "admin"
}

func handleError(c *gin.Context, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if errors.Is(err, apperrors.ErrForbidden) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Message,
			"field": validationErr.Field,
		})
		return
	}

	var qtyErr *apperrors.InsufficientQuantityError
	if errors.As(err, &qtyErr) {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "insufficient quantity",
			"listing_id": qtyErr.ListingID,
			"requested":  qtyErr.Requested,
			"available":  qtyErr.Available,
		})
		return
	}

	var thresholdErr *apperrors.BelowThresholdError
	if errors.As(err, &thresholdErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":           "earnings below payout threshold",
			"amount_cents":    thresholdErr.Amount,
			"threshold_cents": thresholdErr.Threshold,
		})
		return
	}

	var methodErr *apperrors.NoPayoutMethodError
	if errors.As(err, &methodErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "no payout method configured",
		})
		return
	}

	var unknownErr *apperrors.ChargeOutcomeUnknownError
	if errors.As(err, &unknownErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":        "payment status unknown, do not retry; contact support with this reference",
			"reference":    unknownErr.Reference,
			"do_not_retry": true,
		})
		return
	}

	var criticalErr *apperrors.CriticalInconsistencyError
	if errors.As(err, &criticalErr) {
		// The buyer was charged. Internal details stay internal; the
		// transaction id is their support reference.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":          "your payment succeeded and we are resolving an issue with your order; keep this reference",
			"transaction_id": criticalErr.TransactionID,
			"critical":       true,
		})
		return
	}

	if errors.Is(err, apperrors.ErrGatewayUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment gateway unavailable, please retry"})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
