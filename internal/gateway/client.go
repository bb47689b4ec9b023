package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/apperrors"
	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
)

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)

// HTTPClient talks to the card processor's REST API.
type HTTPClient struct {
	baseURL       string
	apiKey        string
	webhookSecret string
	chargeTimeout time.Duration
	httpClient    *http.Client
	logger        *zap.SugaredLogger
}

// NewHTTPClient creates a gateway client from config.
func NewHTTPClient(cfg config.GatewayConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		chargeTimeout: cfg.ChargeTimeout,
		httpClient:    &http.Client{},
		logger:        logging.NewLogger("gateway-client"),
	}
}

// CreateChargeIntent registers an upcoming charge with the gateway.
func (c *HTTPClient) CreateChargeIntent(ctx context.Context, amount models.Money, billing BillingInfo, orderRef string) (*ChargeIntent, error) {
	payload := map[string]interface{}{
		"amount":    amount.Amount,
		"currency":  amount.Currency,
		"billing":   billing,
		"order_ref": orderRef,
	}

	var intent ChargeIntent
	if err := c.post(ctx, "/v1/charge-intents", payload, &intent); err != nil {
		return nil, err
	}

	c.logger.Infow("Charge intent created", "intent_id", intent.IntentID, "order_ref", orderRef)
	return &intent, nil
}

// ProcessCharge captures a payment. A decline comes back as
// Approved=false; a timeout maps to ChargeOutcomeUnknownError because the
// gateway may have taken the money. Callers must not retry on unknown
// outcome.
func (c *HTTPClient) ProcessCharge(ctx context.Context, card CardDetails, amount models.Money, intentID string) (*ChargeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.chargeTimeout)
	defer cancel()

	payload := map[string]interface{}{
		"card":      card,
		"amount":    amount.Amount,
		"currency":  amount.Currency,
		"intent_id": intentID,
	}

	var result ChargeResult
	if err := c.post(ctx, "/v1/charges", payload, &result); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Errorw("Charge timed out, outcome unknown", "intent_id", intentID)
			return nil, &apperrors.ChargeOutcomeUnknownError{Reference: intentID}
		}
		return nil, err
	}

	if result.Approved {
		c.logger.Infow("Charge approved",
			"intent_id", intentID,
			"transaction_id", result.TransactionID,
			"amount_cents", amount.Amount,
		)
	} else {
		c.logger.Infow("Charge declined",
			"intent_id", intentID,
			"reason", result.DeclineReason,
		)
	}

	return &result, nil
}

// Refund returns money to the buyer for a captured transaction.
func (c *HTTPClient) Refund(ctx context.Context, transactionID string, amount models.Money, reason string) (*RefundResult, error) {
	payload := map[string]interface{}{
		"transaction_id": transactionID,
		"amount":         amount.Amount,
		"currency":       amount.Currency,
		"reason":         reason,
	}

	var result RefundResult
	if err := c.post(ctx, "/v1/refunds", payload, &result); err != nil {
		return nil, err
	}

	c.logger.Infow("Refund issued",
		"transaction_id", transactionID,
		"refund_id", result.RefundID,
		"amount_cents", amount.Amount,
	)
	return &result, nil
}

// DisbursePayout sends accumulated earnings to a seller's bank account or
// PayPal address.
func (c *HTTPClient) DisbursePayout(ctx context.Context, destination string, amount models.Money, method models.PayoutMethod, reference string) (*PayoutResult, error) {
	payload := map[string]interface{}{
		"destination": destination,
		"method":      string(method),
		"amount":      amount.Amount,
		"currency":    amount.Currency,
		"reference":   reference,
	}

	var result PayoutResult
	if err := c.post(ctx, "/v1/payouts", payload, &result); err != nil {
		return nil, err
	}

	c.logger.Infow("Payout disbursed",
		"payout_id", result.PayoutID,
		"reference", reference,
		"amount_cents", amount.Amount,
	)
	return &result, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature the gateway sends
// with each webhook. A missing secret rejects everything rather than
// silently accepting.
func (c *HTTPClient) VerifyWebhookSignature(payload []byte, signature string) bool {
	if c.webhookSecret == "" {
		c.logger.Error("Webhook secret not configured, rejecting event")
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(expected)
	return hmac.Equal(sig, want)
}

func (c *HTTPClient) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return context.DeadlineExceeded
		}
		c.logger.Errorw("Gateway request failed", "path", path, "error", err.Error())
		return fmt.Errorf("%w: %v", apperrors.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: gateway returned status %d", apperrors.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated &&
		resp.StatusCode != http.StatusPaymentRequired {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
