package service

import (
	"fmt"
	"strings"

	"github.com/cardhaven/cardhaven-payments-service/internal/apperrors"
	"github.com/cardhaven/cardhaven-payments-service/internal/models"
)

func validateCheckoutRequest(req *CheckoutRequest) error {
	if req.BuyerID == "" {
		return apperrors.NewValidationError("buyer_id", "buyer_id is required")
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return apperrors.NewValidationError("email", "a valid email is required")
	}
	if err := validateItems(req.Items); err != nil {
		return err
	}
	if err := validateAddress("shipping_address", req.ShippingAddress); err != nil {
		return err
	}
	if err := validateAddress("billing_address", req.BillingAddress); err != nil {
		return err
	}
	if req.Card.Token == "" {
		return apperrors.NewValidationError("card.token", "card token is required")
	}
	if req.Card.ExpiryMonth < 1 || req.Card.ExpiryMonth > 12 {
		return apperrors.NewValidationError("card.expiry_month", "expiry month must be between 1 and 12")
	}
	if req.ShippingCents < 0 {
		return apperrors.NewValidationError("shipping_cents", "shipping cost cannot be negative")
	}
	if req.TaxCents < 0 {
		return apperrors.NewValidationError("tax_cents", "tax amount cannot be negative")
	}
	if req.Currency == "" {
		return apperrors.NewValidationError("currency", "currency is required")
	}
	return nil
}

func validateCreateOrderRequest(req *CreateOrderRequest) error {
	if req.BuyerID == "" {
		return apperrors.NewValidationError("buyer_id", "buyer_id is required")
	}
	if err := validateItems(req.Items); err != nil {
		return err
	}
	if err := validateAddress("shipping_address", req.ShippingAddress); err != nil {
		return err
	}
	if err := validateAddress("billing_address", req.BillingAddress); err != nil {
		return err
	}
	if req.SubtotalCents < 0 || req.ShippingCents < 0 || req.TaxCents < 0 {
		return apperrors.NewValidationError("totals", "amounts cannot be negative")
	}
	if req.TotalCents != req.SubtotalCents+req.ShippingCents+req.TaxCents {
		return apperrors.NewValidationError("total_cents", "total must equal subtotal plus shipping plus tax")
	}
	if req.Currency == "" {
		return apperrors.NewValidationError("currency", "currency is required")
	}
	return nil
}

func validateItems(items []CheckoutItem) error {
	if len(items) == 0 {
		return apperrors.NewValidationError("items", "at least one item is required")
	}
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if item.ListingID == "" {
			return apperrors.NewValidationError(fmt.Sprintf("items[%d].listing_id", i), "listing_id is required")
		}
		if item.Quantity <= 0 {
			return apperrors.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "quantity must be positive")
		}
		if seen[item.ListingID] {
			return apperrors.NewValidationError("items", fmt.Sprintf("listing %s appears more than once", item.ListingID))
		}
		seen[item.ListingID] = true
	}
	return nil
}

func validateAddress(field string, addr models.Address) error {
	if addr.Name == "" {
		return apperrors.NewValidationError(field+".name", "name is required")
	}
	if addr.Line1 == "" {
		return apperrors.NewValidationError(field+".line1", "address line is required")
	}
	if addr.City == "" {
		return apperrors.NewValidationError(field+".city", "city is required")
	}
	if addr.PostalCode == "" {
		return apperrors.NewValidationError(field+".postal_code", "postal code is required")
	}
	if addr.Country == "" {
		return apperrors.NewValidationError(field+".country", "country is required")
	}
	return nil
}
