package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Promotion actions.
const (
	PromotionActionOrderDiscount = "order_discount"
	PromotionActionItemDiscount  = "item_discount"
)

// Discount types. Percentage values are in basis points: 1000 = 10%.
const (
	DiscountTypePercentage  = "percentage"
	DiscountTypeFixedAmount = "fixed_amount"
)

// Promotion rule types.
const (
	RuleMinimumQuantity = "minimum_quantity"
	RuleProductInclude  = "product_include"
	RuleProductExclude  = "product_exclude"
)

// Promotion describes a discount an order may receive. The order never
// interprets it; a PromotionCalculator turns it into adjustments.
type Promotion struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Code              string          `json:"code"`
	Action            string          `json:"action"`
	DiscountType      string          `json:"discount_type"`
	DiscountValue     int64           `json:"discount_value"`
	MaxDiscountAmount int64           `json:"max_discount_amount"`
	MinOrderAmount    int64           `json:"min_order_amount"`
	UsageLimit        int             `json:"usage_limit"`
	UsageCount        int             `json:"usage_count"`
	Active            bool            `json:"active"`
	StartsAt          *time.Time      `json:"starts_at,omitempty"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	Rules             []PromotionRule `json:"rules"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewPromotion validates a promotion definition. Code may be empty; the
// caller assigns one.
func NewPromotion(p Promotion) (*Promotion, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, ErrPromotionNameRequired
	}
	if !IsValidPromotionAction(p.Action) {
		return nil, ErrPromotionInvalidAction
	}
	if !IsValidDiscountType(p.DiscountType) || p.DiscountValue <= 0 ||
		(p.DiscountType == DiscountTypePercentage && p.DiscountValue > 10000) {
		return nil, ErrPromotionInvalidDiscount
	}
	if p.MaxDiscountAmount < 0 || p.MinOrderAmount < 0 || p.UsageLimit < 0 {
		return nil, ErrPromotionInvalidDiscount
	}
	if p.StartsAt != nil && p.ExpiresAt != nil && !p.StartsAt.Before(*p.ExpiresAt) {
		return nil, ErrPromotionInvalidWindow
	}
	for _, r := range p.Rules {
		if !IsValidRuleType(r.Type) {
			return nil, ErrPromotionInvalidRule.WithMessage("unknown rule type %q", r.Type)
		}
		if r.Type == RuleMinimumQuantity && r.Value < 1 {
			return nil, ErrPromotionInvalidRule.WithMessage("minimum_quantity must be at least 1")
		}
		if r.Type != RuleMinimumQuantity && len(r.ProductIDs) == 0 {
			return nil, ErrPromotionInvalidRule.WithMessage("%s requires product_ids", r.Type)
		}
	}

	now := timeNow()
	p.ID = uuid.New().String()
	p.Name = strings.TrimSpace(p.Name)
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	p.UsageCount = 0
	if p.Rules == nil {
		p.Rules = []PromotionRule{}
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return &p, nil
}

// PromotionRule narrows which orders or lines a promotion applies to.
type PromotionRule struct {
	Type       string   `json:"type"`
	Value      int      `json:"value,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

// ValidPromotionActions returns all valid promotion actions.
func ValidPromotionActions() []string {
	return []string{PromotionActionOrderDiscount, PromotionActionItemDiscount}
}

// IsValidPromotionAction checks if an action string is valid.
func IsValidPromotionAction(a string) bool {
	for _, v := range ValidPromotionActions() {
		if v == a {
			return true
		}
	}
	return false
}

// IsValidDiscountType checks if a discount type string is valid.
func IsValidDiscountType(t string) bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixedAmount
}

// IsValidRuleType checks if a rule type string is valid.
func IsValidRuleType(t string) bool {
	switch t {
	case RuleMinimumQuantity, RuleProductInclude, RuleProductExclude:
		return true
	}
	return false
}

// ProposedAdjustment is one adjustment a calculator wants applied. An empty
// LineItemID targets the order itself.
type ProposedAdjustment struct {
	LineItemID  string          `json:"line_item_id,omitempty"`
	Scope       AdjustmentScope `json:"scope,omitempty"`
	AmountCents int64           `json:"amount_cents"`
	Description string          `json:"description"`
}

// PromotionCalculator computes the adjustments a promotion grants an order.
type PromotionCalculator interface {
	Calculate(promotion *Promotion, order *Order) ([]ProposedAdjustment, error)
}
