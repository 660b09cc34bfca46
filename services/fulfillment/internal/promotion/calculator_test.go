package promotion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCalculator() *Calculator {
	return &Calculator{now: func() time.Time { return fixedNow }}
}

func newOrderWithLines(t *testing.T, lines ...domain.VariantSnapshot) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder("store-1", "USD", "user-1", "")
	require.NoError(t, err)
	for _, v := range lines {
		_, err := o.AddVariant(v, 1, nil)
		require.NoError(t, err)
	}
	return o
}

func variant(id, productID string, price int64) domain.VariantSnapshot {
	return domain.VariantSnapshot{VariantID: id, ProductID: productID, Name: "Item " + id, SKU: "SKU-" + id, PriceCents: price}
}

func activePromo(action, discountType string, value int64) *domain.Promotion {
	return &domain.Promotion{
		ID:            "promo-1",
		Name:          "Spring",
		Code:          "SPRING",
		Action:        action,
		DiscountType:  discountType,
		DiscountValue: value,
		Active:        true,
	}
}

func TestCalculate_OrderPercentage(t *testing.T) {
	o := newOrderWithLines(t, variant("v1", "p1", 10000))
	promo := activePromo(domain.PromotionActionOrderDiscount, domain.DiscountTypePercentage, 1000)

	got, err := newTestCalculator().Calculate(promo, o)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].LineItemID)
	assert.Equal(t, domain.AdjustmentScopeOrder, got[0].Scope)
	assert.Equal(t, int64(-1000), got[0].AmountCents)
}

func TestCalculate_MaxDiscountCap(t *testing.T) {
	o := newOrderWithLines(t, variant("v1", "p1", 10000))
	promo := activePromo(domain.PromotionActionOrderDiscount, domain.DiscountTypePercentage, 5000)
	promo.MaxDiscountAmount = 1500

	got, err := newTestCalculator().Calculate(promo, o)

	require.NoError(t, err)
	assert.Equal(t, int64(-1500), got[0].AmountCents)
}

func TestCalculate_FixedAmountClampedToBase(t *testing.T) {
	o := newOrderWithLines(t, variant("v1", "p1", 300))
	promo := activePromo(domain.PromotionActionOrderDiscount, domain.DiscountTypeFixedAmount, 1000)

	got, err := newTestCalculator().Calculate(promo, o)

	require.NoError(t, err)
	assert.Equal(t, int64(-300), got[0].AmountCents)
}

func TestCalculate_ItemDiscountSplitsWithRemainder(t *testing.T) {
	o := newOrderWithLines(t, variant("v1", "p1", 1000), variant("v2", "p2", 2000))
	promo := activePromo(domain.PromotionActionItemDiscount, domain.DiscountTypeFixedAmount, 1000)

	got, err := newTestCalculator().Calculate(promo, o)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, o.LineItems[0].ID, got[0].LineItemID)
	assert.Equal(t, int64(-333), got[0].AmountCents)
	assert.Equal(t, int64(-667), got[1].AmountCents)
}

func TestCalculate_IncludeAndExcludeRules(t *testing.T) {
	o := newOrderWithLines(t, variant("v1", "p1", 1000), variant("v2", "p2", 2000), variant("v3", "p3", 4000))
	promo := activePromo(domain.PromotionActionItemDiscount, domain.DiscountTypePercentage, 5000)
	promo.Rules = []domain.PromotionRule{
		{Type: domain.RuleProductInclude, ProductIDs: []string{"p1", "p2"}},
		{Type: domain.RuleProductExclude, ProductIDs: []string{"v2"}},
	}

	got, err := newTestCalculator().Calculate(promo, o)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, o.LineItems[0].ID, got[0].LineItemID)
	assert.Equal(t, int64(-500), got[0].AmountCents)
}

func TestCalculate_Rejections(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	tests := []struct {
		name   string
		mutate func(p *domain.Promotion)
		want   error
	}{
		{"inactive", func(p *domain.Promotion) { p.Active = false }, ErrInactive},
		{"not started", func(p *domain.Promotion) { p.StartsAt = &future }, ErrNotStarted},
		{"expired", func(p *domain.Promotion) { p.ExpiresAt = &past }, ErrExpired},
		{"usage limit", func(p *domain.Promotion) { p.UsageLimit = 5; p.UsageCount = 5 }, ErrUsageLimitReached},
		{"minimum", func(p *domain.Promotion) { p.MinOrderAmount = 5000 }, ErrMinimumNotMet},
		{"quantity rule", func(p *domain.Promotion) {
			p.Rules = []domain.PromotionRule{{Type: domain.RuleMinimumQuantity, Value: 3}}
		}, ErrRulesNotMet},
		{"no eligible items", func(p *domain.Promotion) {
			p.Rules = []domain.PromotionRule{{Type: domain.RuleProductInclude, ProductIDs: []string{"other"}}}
		}, ErrNoEligibleItems},
		{"unknown action", func(p *domain.Promotion) { p.Action = "free_shipping" }, ErrUnsupportedAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrderWithLines(t, variant("v1", "p1", 1000))
			promo := activePromo(domain.PromotionActionOrderDiscount, domain.DiscountTypePercentage, 1000)
			tt.mutate(promo)

			_, err := newTestCalculator().Calculate(promo, o)

			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCalculate_AppliedThroughOrder(t *testing.T) {
	o := newOrderWithLines(t, variant("v1", "p1", 2000))
	promo := activePromo(domain.PromotionActionOrderDiscount, domain.DiscountTypePercentage, 2500)

	require.NoError(t, o.ApplyPromotion(promo, newTestCalculator()))

	assert.Equal(t, int64(1500), o.Total)
	assert.Equal(t, "promo-1", *o.PromotionID)
}
