package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AdjustmentScope says which part of the order total an adjustment modifies.
type AdjustmentScope string

// Adjustment scopes.
const (
	AdjustmentScopeOrder    AdjustmentScope = "order"
	AdjustmentScopeShipping AdjustmentScope = "shipping"
	AdjustmentScopeTax      AdjustmentScope = "tax"
)

// IsValidAdjustmentScope checks if a scope string is valid.
func IsValidAdjustmentScope(s string) bool {
	switch AdjustmentScope(s) {
	case AdjustmentScopeOrder, AdjustmentScopeShipping, AdjustmentScopeTax:
		return true
	}
	return false
}

// OrderAdjustment is an order-level credit or charge. Negative amounts are
// discounts.
type OrderAdjustment struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	Scope       AdjustmentScope `json:"scope"`
	AmountCents int64           `json:"amount_cents"`
	Description string          `json:"description"`
	PromotionID *string         `json:"promotion_id,omitempty"`
	Eligible    bool            `json:"eligible"`
	Mandatory   bool            `json:"mandatory"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewOrderAdjustment validates and builds an eligible order adjustment.
func NewOrderAdjustment(orderID string, scope AdjustmentScope, amountCents int64, description string, promotionID *string, mandatory bool) (*OrderAdjustment, error) {
	if !IsValidAdjustmentScope(string(scope)) {
		return nil, ErrAdjustmentInvalidScope
	}
	if strings.TrimSpace(description) == "" {
		return nil, ErrAdjustmentDescriptionRequired
	}
	return &OrderAdjustment{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		Scope:       scope,
		AmountCents: amountCents,
		Description: strings.TrimSpace(description),
		PromotionID: promotionID,
		Eligible:    true,
		Mandatory:   mandatory,
		CreatedAt:   timeNow(),
	}, nil
}

// IsPromotion reports whether a promotion produced the adjustment.
func (a *OrderAdjustment) IsPromotion() bool { return a.PromotionID != nil }

// LineItemAdjustment is a credit or charge against one line item.
type LineItemAdjustment struct {
	ID          string    `json:"id"`
	LineItemID  string    `json:"line_item_id"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
	PromotionID *string   `json:"promotion_id,omitempty"`
	Eligible    bool      `json:"eligible"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewLineItemAdjustment validates and builds an eligible line adjustment.
func NewLineItemAdjustment(lineItemID string, amountCents int64, description string, promotionID *string) (*LineItemAdjustment, error) {
	if strings.TrimSpace(description) == "" {
		return nil, ErrAdjustmentDescriptionRequired
	}
	return &LineItemAdjustment{
		ID:          uuid.New().String(),
		LineItemID:  lineItemID,
		AmountCents: amountCents,
		Description: strings.TrimSpace(description),
		PromotionID: promotionID,
		Eligible:    true,
		CreatedAt:   timeNow(),
	}, nil
}

// IsPromotion reports whether a promotion produced the adjustment.
func (a *LineItemAdjustment) IsPromotion() bool { return a.PromotionID != nil }
