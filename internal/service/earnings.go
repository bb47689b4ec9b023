// Package service holds the business logic of the payments pipeline:
// checkout reconciliation, payment recovery, earnings calculation, and
// payout orchestration. Services expose pure operations; timing lives in
// the scheduler and HTTP concerns in the handlers.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cardhaven/cardhaven-payments-service/internal/config"
	"github.com/cardhaven/cardhaven-payments-service/internal/logging"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
	"github.com/cardhaven/cardhaven-payments-service/internal/repository"
)

// EarningsService computes seller earnings over delivered, not-yet-paid-out
// orders. Accumulation keeps full decimal precision; rounding to cents
// happens once, on the totals.
type EarningsService struct {
	orders         repository.OrderStore
	commissionRate decimal.Decimal
	currency       string
	logger         *zap.SugaredLogger
}

// NewEarningsService creates an earnings calculator.
func NewEarningsService(orders repository.OrderStore, cfg config.PayoutConfig) *EarningsService {
	return &EarningsService{
		orders:         orders,
		commissionRate: decimal.NewFromFloat(cfg.CommissionRate),
		currency:       cfg.Currency,
		logger:         logging.NewLogger("earnings-service"),
	}
}

// CalculateEarnings sums the seller's share of every delivered order not yet
// bound to a payout, optionally bounded by delivery date. Only the seller's
// own items count; an order may mix sellers. Commission is derived as
// gross minus earnings so the two always reconcile exactly.
func (s *EarningsService) CalculateEarnings(ctx context.Context, sellerID string, periodStart, periodEnd *time.Time) (*models.Earnings, error) {
	orders, err := s.orders.DeliveredUnpaidBySeller(ctx, sellerID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	keepRate := decimal.NewFromInt(1).Sub(s.commissionRate)

	grossTotal := decimal.Zero
	earningsTotal := decimal.Zero
	totalItems := 0
	details := make([]models.EarningsOrderDetail, 0, len(orders))

	for _, order := range orders {
		orderGross := decimal.Zero
		itemCount := 0
		for _, item := range order.Items {
			line := decimal.New(item.PriceAtTime.Amount, 0).Mul(decimal.NewFromInt(int64(item.Quantity)))
			orderGross = orderGross.Add(line)
			itemCount += item.Quantity
		}
		orderEarnings := orderGross.Mul(keepRate)

		grossTotal = grossTotal.Add(orderGross)
		earningsTotal = earningsTotal.Add(orderEarnings)
		totalItems += itemCount

		deliveredAt := order.UpdatedAt
		if order.DeliveredAt != nil {
			deliveredAt = *order.DeliveredAt
		}
		details = append(details, models.EarningsOrderDetail{
			OrderID:        order.ID,
			DeliveredAt:    deliveredAt,
			ItemCount:      itemCount,
			GrossSubtotal:  models.NewMoneyFromCents(orderGross.IntPart(), s.currency),
			SellerEarnings: models.NewMoneyFromCents(orderEarnings.Round(0).IntPart(), s.currency),
		})
	}

	grossCents := grossTotal.IntPart()
	earningsCents := earningsTotal.Round(0).IntPart()
	commissionCents := grossCents - earningsCents

	s.logger.Debugw("Earnings calculated",
		"seller_id", sellerID,
		"orders", len(orders),
		"gross_cents", grossCents,
		"earnings_cents", earningsCents,
	)

	return &models.Earnings{
		SellerID:           sellerID,
		TotalEarnings:      models.NewMoneyFromCents(earningsCents, s.currency),
		PlatformCommission: models.NewMoneyFromCents(commissionCents, s.currency),
		GrossSubtotal:      models.NewMoneyFromCents(grossCents, s.currency),
		TotalOrders:        len(orders),
		TotalItems:         totalItems,
		OrderDetails:       details,
	}, nil
}
