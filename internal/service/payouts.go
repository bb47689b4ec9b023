package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/apperrors"
	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/events"
	"github.com/cardhaven/cardhaven-payments-service/internal/gateway"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/metrics"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
	"github.com/cardhaven/cardhaven-payments-service/internal/notifications"
	"github.com/cardhaven/cardhaven-payments-service/internal/repository"
)

// PayoutRequest drives a single-seller payout. Method overrides the
// seller's configured default when set; period bounds are optional.
type PayoutRequest struct {
	SellerID    string              `json:"seller_id"`
	Method      models.PayoutMethod `json:"method,omitempty"`
	PeriodStart *time.Time          `json:"period_start,omitempty"`
	PeriodEnd   *time.Time          `json:"period_end,omitempty"`
}

// AutoPayoutFailure records why one seller's automatic payout did not go
// through. One seller's failure never aborts the run.
type AutoPayoutFailure struct {
	SellerID string `json:"seller_id"`
	Reason   string `json:"reason"`
}

// AutoPayoutSummary is the aggregate result of an automatic payout run.
type AutoPayoutSummary struct {
	RanAt     time.Time           `json:"ran_at"`
	Eligible  int                 `json:"eligible"`
	Processed int                 `json:"processed"`
	Skipped   int                 `json:"skipped"`
	Failed    int                 `json:"failed"`
	Failures  []AutoPayoutFailure `json:"failures,omitempty"`
}

// PayoutService orchestrates seller payouts: eligibility, disbursement,
// cancel/retry, reporting, and the periodic consistency jobs.
type PayoutService struct {
	payouts   repository.PayoutStore
	orders    repository.OrderStore
	sellers   repository.SellerStore
	earnings  *EarningsService
	gateway   gateway.Client
	notifier  notifications.Sender
	publisher events.Publisher
	cfg       config.PayoutConfig
	logger    *zap.SugaredLogger
}

// NewPayoutService creates a payout service.
func NewPayoutService(
	payouts repository.PayoutStore,
	orders repository.OrderStore,
	sellers repository.SellerStore,
	earnings *EarningsService,
	gw gateway.Client,
	notifier notifications.Sender,
	publisher events.Publisher,
	cfg config.PayoutConfig,
) *PayoutService {
	return &PayoutService{
		payouts:   payouts,
		orders:    orders,
		sellers:   sellers,
		earnings:  earnings,
		gateway:   gw,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		logger:    logging.NewLogger("payout-service"),
	}
}

// GetEligibleSellers runs the earnings calculator for every approved,
// non-suspended seller and returns those whose pending earnings meet their
// threshold. CanAutoProcess additionally requires auto-payout enabled and a
// complete payout method.
func (s *PayoutService) GetEligibleSellers(ctx context.Context) ([]*models.EligibleSeller, error) {
	candidates, err := s.sellers.ListPayoutCandidates(ctx)
	if err != nil {
		return nil, err
	}

	eligible := make([]*models.EligibleSeller, 0)
	for _, seller := range candidates {
		earnings, err := s.earnings.CalculateEarnings(ctx, seller.ID, nil, nil)
		if err != nil {
			s.logger.Errorw("Earnings calculation failed during eligibility scan",
				"seller_id", seller.ID, "error", err.Error())
			continue
		}
		if earnings.TotalEarnings.Amount < s.thresholdFor(seller) {
			continue
		}

		orderIDs := make([]string, 0, len(earnings.OrderDetails))
		for _, detail := range earnings.OrderDetails {
			orderIDs = append(orderIDs, detail.OrderID)
		}
		eligible = append(eligible, &models.EligibleSeller{
			Seller:          seller,
			PendingEarnings: earnings.TotalEarnings,
			OrderIDs:        orderIDs,
			CanAutoProcess:  seller.AutoPayoutEnabled && seller.HasPayoutMethod(),
		})
	}

	return eligible, nil
}

// ProcessSinglePayout computes the seller's pending earnings, records a
// payout covering exactly the orders the calculation consumed, and
// disburses through the gateway. The order set is captured at creation;
// cancel and retry operate on that set, never a recomputed one.
func (s *PayoutService) ProcessSinglePayout(ctx context.Context, req *PayoutRequest) (*models.SellerPayout, error) {
	seller, err := s.sellers.GetByID(ctx, req.SellerID)
	if err != nil {
		return nil, err
	}

	method := req.Method
	if method == "" {
		method = seller.PayoutMethod
	}
	destination := seller.DestinationFor(method)
	if destination == "" {
		return nil, &apperrors.NoPayoutMethodError{SellerID: seller.ID}
	}

	earnings, err := s.earnings.CalculateEarnings(ctx, seller.ID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, err
	}

	threshold := s.thresholdFor(seller)
	if earnings.TotalEarnings.Amount < threshold {
		return nil, &apperrors.BelowThresholdError{
			SellerID:  seller.ID,
			Amount:    earnings.TotalEarnings.Amount,
			Threshold: threshold,
		}
	}

	orderIDs := make([]string, 0, len(earnings.OrderDetails))
	for _, detail := range earnings.OrderDetails {
		orderIDs = append(orderIDs, detail.OrderID)
	}

	now := time.Now()
	payout := &models.SellerPayout{
		ID:          "po_" + uuid.NewString(),
		SellerID:    seller.ID,
		Amount:      earnings.GrossSubtotal,
		NetAmount:   earnings.TotalEarnings,
		Method:      method,
		Status:      models.PayoutStatusPending,
		OrderIDs:    orderIDs,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.payouts.Create(ctx, payout); err != nil {
		return nil, err
	}

	// Bind the orders immediately after the payout row exists. A partial
	// failure here is repaired by the reconciliation job, never left to
	// drift.
	if err := s.orders.MarkPayoutProcessed(ctx, orderIDs, payout.ID); err != nil {
		s.logger.Errorw("Order marking incomplete, reconciliation will repair",
			"payout_id", payout.ID, "error", err.Error())
	}

	if err := s.disburse(ctx, payout, destination); err != nil {
		return payout, err
	}

	s.notifySeller(ctx, seller, payout)
	return payout, nil
}

// disburse sends a payout to the gateway and advances its status. A
// transport failure marks the payout failed and is returned to the caller;
// the order set stays bound for retry.
func (s *PayoutService) disburse(ctx context.Context, payout *models.SellerPayout, destination string) error {
	result, err := s.gateway.DisbursePayout(ctx, destination, payout.NetAmount, payout.Method, payout.ID)
	if err != nil {
		metrics.PayoutsTotal.WithLabelValues("failed").Inc()
		if markErr := s.payouts.MarkFailed(ctx, payout.ID, err.Error()); markErr != nil {
			s.logger.Errorw("Failed to record payout failure",
				"payout_id", payout.ID, "error", markErr.Error())
		}
		payout.Status = models.PayoutStatusFailed
		payout.FailureReason = err.Error()
		if pubErr := s.publisher.PublishPayoutFailed(ctx, payout); pubErr != nil {
			s.logger.Errorw("Payout failed event publish failed", "payout_id", payout.ID, "error", pubErr.Error())
		}
		return err
	}

	if err := s.payouts.SetProcessing(ctx, payout.ID, result.PayoutID); err != nil {
		s.logger.Errorw("Disbursement sent but status update failed",
			"payout_id", payout.ID,
			"gateway_ref", result.PayoutID,
			"error", err.Error(),
		)
		return err
	}
	payout.Status = models.PayoutStatusProcessing
	payout.GatewayPayoutRef = result.PayoutID

	metrics.PayoutsTotal.WithLabelValues("processing").Inc()
	s.logger.Infow("Payout disbursed",
		"payout_id", payout.ID,
		"seller_id", payout.SellerID,
		"net_cents", payout.NetAmount.Amount,
		"gateway_ref", result.PayoutID,
	)
	return nil
}

// ProcessAutomaticPayouts pays every auto-processable eligible seller,
// isolating per-seller failures, then emails the admin one aggregate
// summary.
func (s *PayoutService) ProcessAutomaticPayouts(ctx context.Context) (*AutoPayoutSummary, error) {
	eligible, err := s.GetEligibleSellers(ctx)
	if err != nil {
		return nil, err
	}

	summary := &AutoPayoutSummary{RanAt: time.Now(), Eligible: len(eligible)}
	for _, candidate := range eligible {
		if !candidate.CanAutoProcess {
			summary.Skipped++
			continue
		}
		_, err := s.ProcessSinglePayout(ctx, &PayoutRequest{SellerID: candidate.Seller.ID})
		if err != nil {
			summary.Failed++
			summary.Failures = append(summary.Failures, AutoPayoutFailure{
				SellerID: candidate.Seller.ID,
				Reason:   err.Error(),
			})
			s.logger.Errorw("Automatic payout failed for seller",
				"seller_id", candidate.Seller.ID, "error", err.Error())
			continue
		}
		summary.Processed++
	}

	s.sendAdminSummary(ctx, summary)
	return summary, nil
}

// CancelPayout cancels a pending payout and releases every order it covered.
// Cancelling an already-cancelled payout re-runs the order release, so a
// caller whose first attempt died between the status flip and the release
// can retry to completion.
func (s *PayoutService) CancelPayout(ctx context.Context, payoutID, reason string) (*models.SellerPayout, error) {
	cancelled, err := s.payouts.Cancel(ctx, payoutID, reason)
	if err != nil {
		return nil, err
	}
	if !cancelled {
		payout, err := s.payouts.GetByID(ctx, payoutID)
		if err != nil {
			return nil, err
		}
		if payout.Status != models.PayoutStatusCancelled {
			return nil, apperrors.NewValidationError("status",
				fmt.Sprintf("payout is %s, only pending payouts can be cancelled", payout.Status))
		}
	}

	if err := s.orders.UnmarkPayoutProcessed(ctx, payoutID); err != nil {
		s.logger.Errorw("Failed to release orders for cancelled payout",
			"payout_id", payoutID, "error", err.Error())
		return nil, err
	}

	if cancelled {
		metrics.PayoutsTotal.WithLabelValues("cancelled").Inc()
		s.logger.Infow("Payout cancelled", "payout_id", payoutID, "reason", reason)
	}
	return s.payouts.GetByID(ctx, payoutID)
}

// RetryPayout re-disburses a failed payout with its original amount and
// order set. Earnings are never recomputed; the orders are already bound to
// this payout.
func (s *PayoutService) RetryPayout(ctx context.Context, payoutID string) (*models.SellerPayout, error) {
	payout, reset, err := s.payouts.ResetForRetry(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if !reset {
		current, err := s.payouts.GetByID(ctx, payoutID)
		if err != nil {
			return nil, err
		}
		return nil, apperrors.NewValidationError("status",
			fmt.Sprintf("payout is %s, only failed payouts can be retried", current.Status))
	}

	seller, err := s.sellers.GetByID(ctx, payout.SellerID)
	if err != nil {
		return nil, err
	}
	destination := seller.DestinationFor(payout.Method)
	if destination == "" {
		return nil, &apperrors.NoPayoutMethodError{SellerID: seller.ID}
	}

	s.logger.Infow("Retrying payout",
		"payout_id", payout.ID,
		"seller_id", payout.SellerID,
		"retry_count", payout.RetryCount,
	)

	if err := s.disburse(ctx, payout, destination); err != nil {
		return payout, err
	}
	s.notifySeller(ctx, seller, payout)
	return payout, nil
}

// GeneratePayoutReport aggregates payouts created in the period by status
// and by method.
func (s *PayoutService) GeneratePayoutReport(ctx context.Context, start, end time.Time) (*models.PayoutReport, error) {
	payouts, err := s.payouts.ListByPeriod(ctx, start, end)
	if err != nil {
		return nil, err
	}

	report := &models.PayoutReport{
		PeriodStart:    start,
		PeriodEnd:      end,
		TotalCount:     len(payouts),
		TotalAmount:    models.NewMoneyFromCents(0, s.cfg.Currency),
		ByStatus:       make(map[models.PayoutStatus]int),
		ByMethod:       make(map[models.PayoutMethod]int),
		AmountByStatus: make(map[models.PayoutStatus]models.Money),
	}
	for _, payout := range payouts {
		report.TotalAmount = report.TotalAmount.Add(payout.NetAmount)
		report.ByStatus[payout.Status]++
		report.ByMethod[payout.Method]++
		report.AmountByStatus[payout.Status] = report.AmountByStatus[payout.Status].Add(payout.NetAmount)
	}
	return report, nil
}

// CheckFailedPayouts finds payouts that failed in the trailing 24 hours and
// alerts the admin. Invoked by the scheduler, not the request path.
func (s *PayoutService) CheckFailedPayouts(ctx context.Context) (int, error) {
	failed, err := s.payouts.ListFailedSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		return 0, err
	}
	if len(failed) == 0 {
		return 0, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d payout(s) failed in the last 24 hours:\n\n", len(failed))
	for _, payout := range failed {
		fmt.Fprintf(&b, "- %s seller=%s amount=%s retries=%d reason=%s\n",
			payout.ID, payout.SellerID, payout.NetAmount, payout.RetryCount, payout.FailureReason)
	}

	if err := s.notifier.SendEmail(ctx, s.cfg.AdminEmail, "Failed payouts require attention", b.String()); err != nil {
		s.logger.Errorw("Failed payout alert email failed", "error", err.Error())
	}

	s.logger.Warnw("Failed payouts detected", "count", len(failed))
	return len(failed), nil
}

// ReconcilePayoutOrders repairs orders referenced by a live payout but not
// yet marked payout_processed.
func (s *PayoutService) ReconcilePayoutOrders(ctx context.Context) (int64, error) {
	repaired, err := s.payouts.RepairUnmarkedOrders(ctx)
	if err != nil {
		return 0, err
	}
	if repaired > 0 {
		s.logger.Warnw("Repaired unmarked payout orders", "count", repaired)
	}
	return repaired, nil
}

func (s *PayoutService) thresholdFor(seller *models.Seller) int64 {
	if seller.PayoutThreshold > 0 {
		return seller.PayoutThreshold
	}
	return s.cfg.MinimumThreshold
}

func (s *PayoutService) notifySeller(ctx context.Context, seller *models.Seller, payout *models.SellerPayout) {
	body := fmt.Sprintf(
		"Your payout of %s is on its way via %s.\nPayout reference: %s\nOrders covered: %d",
		payout.NetAmount, payout.Method, payout.ID, len(payout.OrderIDs),
	)
	if err := s.notifier.SendEmail(ctx, seller.Email, "Your CardHaven payout is processing", body); err != nil {
		s.logger.Errorw("Seller payout email failed",
			"payout_id", payout.ID, "seller_id", seller.ID, "error", err.Error())
	}
}

func (s *PayoutService) sendAdminSummary(ctx context.Context, summary *AutoPayoutSummary) {
	var b strings.Builder
	fmt.Fprintf(&b, "Automatic payout run at %s\n\n", summary.RanAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Eligible: %d\nProcessed: %d\nSkipped (no auto-process): %d\nFailed: %d\n",
		summary.Eligible, summary.Processed, summary.Skipped, summary.Failed)
	for _, failure := range summary.Failures {
		fmt.Fprintf(&b, "\n- seller %s: %s", failure.SellerID, failure.Reason)
	}

	if err := s.notifier.SendEmail(ctx, s.cfg.AdminEmail, "Automatic payout run summary", b.String()); err != nil {
		s.logger.Errorw("Admin payout summary email failed", "error", err.Error())
	}
}
