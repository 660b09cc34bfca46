// Package promotion holds the default discount strategy used when applying
// promotions to orders.
package promotion

import (
	"fmt"
	"slices"
	"time"

	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

// Promotion eligibility errors.
var (
	ErrInactive          = apperrors.Conflict("Promotion.Inactive", "promotion is not active")
	ErrNotStarted        = apperrors.Conflict("Promotion.NotStarted", "promotion has not started yet")
	ErrExpired           = apperrors.Conflict("Promotion.Expired", "promotion has expired")
	ErrUsageLimitReached = apperrors.Conflict("Promotion.UsageLimitReached", "promotion usage limit reached")
	ErrMinimumNotMet     = apperrors.Conflict("Promotion.MinimumNotMet", "order does not reach the promotion minimum")
	ErrRulesNotMet       = apperrors.Conflict("Promotion.RulesNotMet", "order does not satisfy the promotion rules")
	ErrNoEligibleItems   = apperrors.Conflict("Promotion.NoEligibleItems", "no line item is eligible for the promotion")
	ErrUnsupportedAction = apperrors.Validation("Promotion.UnsupportedAction", "unsupported promotion action")
)

// Calculator implements domain.PromotionCalculator.
type Calculator struct {
	now func() time.Time
}

// NewCalculator creates a calculator that evaluates promotion windows against
// the wall clock.
func NewCalculator() *Calculator {
	return &Calculator{now: func() time.Time { return time.Now().UTC() }}
}

var _ domain.PromotionCalculator = (*Calculator)(nil)

// Calculate returns negative adjustments. Item discounts are spread over the
// eligible lines in proportion to their subtotal, with the last line taking
// the rounding remainder.
func (c *Calculator) Calculate(promo *domain.Promotion, order *domain.Order) ([]domain.ProposedAdjustment, error) {
	if err := c.checkWindow(promo); err != nil {
		return nil, err
	}

	var orderSubtotal int64
	for _, l := range order.LineItems {
		orderSubtotal += l.Subtotal()
	}
	if promo.MinOrderAmount > 0 && orderSubtotal < promo.MinOrderAmount {
		return nil, ErrMinimumNotMet.WithMessage("order subtotal %d is below %d", orderSubtotal, promo.MinOrderAmount)
	}

	eligible := eligibleLines(promo, order.LineItems)
	if len(eligible) == 0 {
		return nil, ErrNoEligibleItems
	}
	if err := checkQuantityRules(promo, eligible); err != nil {
		return nil, err
	}

	var base int64
	for _, l := range eligible {
		base += l.Subtotal()
	}
	discount := calculateDiscount(promo, base)
	if discount <= 0 {
		return nil, nil
	}

	description := fmt.Sprintf("Promotion %s", promo.Name)
	switch promo.Action {
	case domain.PromotionActionOrderDiscount:
		return []domain.ProposedAdjustment{{
			Scope:       domain.AdjustmentScopeOrder,
			AmountCents: -discount,
			Description: description,
		}}, nil

	case domain.PromotionActionItemDiscount:
		out := make([]domain.ProposedAdjustment, 0, len(eligible))
		remaining := discount
		for idx, l := range eligible {
			share := remaining
			if idx < len(eligible)-1 {
				share = discount * l.Subtotal() / base
			}
			remaining -= share
			if share == 0 {
				continue
			}
			out = append(out, domain.ProposedAdjustment{
				LineItemID:  l.ID,
				AmountCents: -share,
				Description: description,
			})
		}
		return out, nil

	default:
		return nil, ErrUnsupportedAction.WithMessage("unsupported promotion action %q", promo.Action)
	}
}

func (c *Calculator) checkWindow(promo *domain.Promotion) error {
	now := c.now()
	switch {
	case !promo.Active:
		return ErrInactive
	case promo.StartsAt != nil && now.Before(*promo.StartsAt):
		return ErrNotStarted
	case promo.ExpiresAt != nil && now.After(*promo.ExpiresAt):
		return ErrExpired
	case promo.UsageLimit > 0 && promo.UsageCount >= promo.UsageLimit:
		return ErrUsageLimitReached
	}
	return nil
}

func eligibleLines(promo *domain.Promotion, lines []*domain.LineItem) []*domain.LineItem {
	var include, exclude []string
	for _, r := range promo.Rules {
		switch r.Type {
		case domain.RuleProductInclude:
			include = append(include, r.ProductIDs...)
		case domain.RuleProductExclude:
			exclude = append(exclude, r.ProductIDs...)
		}
	}

	matches := func(ids []string, l *domain.LineItem) bool {
		return slices.Contains(ids, l.ProductID) || slices.Contains(ids, l.VariantID)
	}

	var out []*domain.LineItem
	for _, l := range lines {
		if len(include) > 0 && !matches(include, l) {
			continue
		}
		if matches(exclude, l) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func checkQuantityRules(promo *domain.Promotion, eligible []*domain.LineItem) error {
	qty := 0
	for _, l := range eligible {
		qty += l.Quantity
	}
	for _, r := range promo.Rules {
		if r.Type == domain.RuleMinimumQuantity && qty < r.Value {
			return ErrRulesNotMet.WithMessage("requires %d eligible units, order has %d", r.Value, qty)
		}
	}
	return nil
}

// calculateDiscount returns the positive discount for an eligible amount.
// Percentage values are basis points: 1000 = 10%.
func calculateDiscount(promo *domain.Promotion, amount int64) int64 {
	var discount int64
	switch promo.DiscountType {
	case domain.DiscountTypePercentage:
		discount = amount * promo.DiscountValue / 10000
	case domain.DiscountTypeFixedAmount:
		discount = promo.DiscountValue
	}
	if promo.MaxDiscountAmount > 0 && discount > promo.MaxDiscountAmount {
		discount = promo.MaxDiscountAmount
	}
	if discount > amount {
		discount = amount
	}
	return discount
}
