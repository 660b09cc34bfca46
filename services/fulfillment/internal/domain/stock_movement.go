package domain

import (
	"time"

	"github.com/google/uuid"
)

// MovementType classifies a ledger entry.
type MovementType string

// Stock movement types.
const (
	MovementReceipt    MovementType = "receipt"
	MovementSale       MovementType = "sale"
	MovementReturn     MovementType = "return"
	MovementLoss       MovementType = "loss"
	MovementTransfer   MovementType = "transfer"
	MovementAdjustment MovementType = "adjustment"
	MovementCorrection MovementType = "correction"
)

// ValidMovementTypes returns all valid movement types.
func ValidMovementTypes() []MovementType {
	return []MovementType{
		MovementReceipt,
		MovementSale,
		MovementReturn,
		MovementLoss,
		MovementTransfer,
		MovementAdjustment,
		MovementCorrection,
	}
}

// IsValidMovementType checks if a movement type string is valid.
func IsValidMovementType(t string) bool {
	for _, v := range ValidMovementTypes() {
		if string(v) == t {
			return true
		}
	}
	return false
}

// StockMovement is an immutable ledger entry. BalanceAfter always equals
// BalanceBefore + Quantity.
type StockMovement struct {
	ID            string       `json:"id"`
	StockItemID   string       `json:"stock_item_id"`
	Quantity      int          `json:"quantity"`
	BalanceBefore int          `json:"balance_before"`
	BalanceAfter  int          `json:"balance_after"`
	Type          MovementType `json:"type"`
	UnitCost      int64        `json:"unit_cost"`
	Reason        string       `json:"reason,omitempty"`
	Reference     string       `json:"reference,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// NewStockMovement builds a ledger entry. Business validation belongs to the
// stock item; the only requirement here is the parent id.
func NewStockMovement(stockItemID string, quantity, balanceBefore int, typ MovementType, unitCost int64, reason, reference string) (*StockMovement, error) {
	if stockItemID == "" {
		return nil, ErrMovementStockItemRequired
	}
	return &StockMovement{
		ID:            uuid.New().String(),
		StockItemID:   stockItemID,
		Quantity:      quantity,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceBefore + quantity,
		Type:          typ,
		UnitCost:      unitCost,
		Reason:        reason,
		Reference:     reference,
		CreatedAt:     timeNow(),
	}, nil
}
