package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUnit() *InventoryUnit {
	u := NewInventoryUnit("variant-1", ptr("stock-1"), nil, ptr("line-1"))
	u.PullEvents()
	return u
}

func TestNewInventoryUnit_StartsPending(t *testing.T) {
	u := NewInventoryUnit("variant-1", nil, ptr("order-1"), ptr("line-1"))

	assert.Equal(t, UnitStatePending, u.State)
	assert.True(t, u.Pending)
	assert.NotEmpty(t, u.ID)
	assert.Nil(t, u.StockItemID)
	assert.Equal(t, []string{EventInventoryUnitCreated}, eventNames(u.PullEvents()))
}

func TestInventoryUnit_ReserveShipReturn(t *testing.T) {
	u := newTestUnit()

	require.NoError(t, u.Reserve("order-1"))
	assert.Equal(t, UnitStateOnHand, u.State)
	assert.Equal(t, "order-1", *u.OrderID)

	require.NoError(t, u.Ship("shipment-1"))
	assert.Equal(t, UnitStateShipped, u.State)
	assert.Equal(t, "shipment-1", *u.ShipmentID)
	assert.False(t, u.Pending)

	require.NoError(t, u.Return())
	assert.Equal(t, UnitStateReturned, u.State)
	assert.Len(t, u.PullEvents(), 3)
}

func TestInventoryUnit_BackorderThenReserve(t *testing.T) {
	u := newTestUnit()
	require.NoError(t, u.Backorder("order-1"))
	assert.Equal(t, UnitStateBackordered, u.State)

	require.NoError(t, u.Reserve("order-1"))
	assert.Equal(t, UnitStateOnHand, u.State)
}

func TestInventoryUnit_IllegalTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(u *InventoryUnit)
		act   func(u *InventoryUnit) error
	}{
		{"ship pending", func(*InventoryUnit) {}, func(u *InventoryUnit) error { return u.Ship("s") }},
		{"ship backordered", func(u *InventoryUnit) { must(u.Backorder("o")) }, func(u *InventoryUnit) error { return u.Ship("s") }},
		{"return on hand", func(u *InventoryUnit) { must(u.Reserve("o")) }, func(u *InventoryUnit) error { return u.Return() }},
		{"backorder on hand", func(u *InventoryUnit) { must(u.Reserve("o")) }, func(u *InventoryUnit) error { return u.Backorder("o") }},
		{"reserve canceled", func(u *InventoryUnit) { must(u.Cancel()) }, func(u *InventoryUnit) error { return u.Reserve("o") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newTestUnit()
			tt.setup(u)
			before := u.State
			err := tt.act(u)
			assert.ErrorIs(t, err, ErrUnitInvalidStateTransition)
			assert.Equal(t, before, u.State)
		})
	}
}

func TestInventoryUnit_CancelShipped_Fails(t *testing.T) {
	u := newTestUnit()
	require.NoError(t, u.Reserve("order-1"))
	require.NoError(t, u.Ship("shipment-1"))

	assert.ErrorIs(t, u.Cancel(), ErrUnitAlreadyShipped)
	assert.Equal(t, UnitStateShipped, u.State)
}

func TestInventoryUnit_MarkAsDamaged_FromAnyState(t *testing.T) {
	for _, state := range ValidUnitStates() {
		t.Run(string(state), func(t *testing.T) {
			u := newTestUnit()
			u.State = state
			u.MarkAsDamaged()
			assert.Equal(t, UnitStateDamaged, u.State)
		})
	}
}

func TestInventoryUnit_MarkAsDamaged_Twice_NoSecondEvent(t *testing.T) {
	u := newTestUnit()
	u.MarkAsDamaged()
	u.MarkAsDamaged()
	assert.Len(t, u.PullEvents(), 1)
}

func TestInventoryUnit_Finalize_KeepsState(t *testing.T) {
	u := newTestUnit()
	require.NoError(t, u.Backorder("order-1"))

	u.Finalize()

	assert.False(t, u.Pending)
	assert.Equal(t, UnitStateBackordered, u.State)
}

func TestInventoryUnit_SoftDelete(t *testing.T) {
	u := newTestUnit()
	u.Delete()
	first := u.DeletedAt
	u.Delete()
	assert.True(t, u.IsDeleted())
	assert.Equal(t, first, u.DeletedAt)
}

func TestUnitState_Predicates(t *testing.T) {
	assert.True(t, UnitStateOnHand.IsReserved())
	assert.True(t, UnitStateBackordered.IsReserved())
	assert.False(t, UnitStateShipped.IsReserved())
	assert.True(t, UnitStateShipped.IsAllocated())
	assert.False(t, UnitStatePending.IsAllocated())
	assert.True(t, IsValidUnitState("on_hand"))
	assert.False(t, IsValidUnitState("lost"))
}
