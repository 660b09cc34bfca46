package domain

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ShipmentNumberPrefix starts every shipment number.
const ShipmentNumberPrefix = "H"

// ShipmentState is the lifecycle state of a shipment.
type ShipmentState string

// Shipment states.
const (
	ShipmentStatePending   ShipmentState = "pending"
	ShipmentStateReady     ShipmentState = "ready"
	ShipmentStatePicked    ShipmentState = "picked"
	ShipmentStatePacked    ShipmentState = "packed"
	ShipmentStateShipped   ShipmentState = "shipped"
	ShipmentStateDelivered ShipmentState = "delivered"
	ShipmentStateCanceled  ShipmentState = "canceled"
)

// Shipment groups the units of an order leaving one stock location.
type Shipment struct {
	ID              string        `json:"id"`
	OrderID         string        `json:"order_id"`
	Number          string        `json:"number"`
	StockLocationID string        `json:"stock_location_id"`
	State           ShipmentState `json:"state"`
	TrackingNumber  string        `json:"tracking_number,omitempty"`
	ShippedAt       *time.Time    `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time    `json:"delivered_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewShipment creates a pending shipment.
func NewShipment(orderID, stockLocationID string) (*Shipment, error) {
	if strings.TrimSpace(stockLocationID) == "" {
		return nil, ErrShipmentLocationRequired
	}
	now := timeNow()
	return &Shipment{
		ID:              uuid.New().String(),
		OrderID:         orderID,
		Number:          fmt.Sprintf("%s%s%04d", ShipmentNumberPrefix, now.Format("20060102"), 1000+rand.IntN(9000)), // #nosec G404 -- display number, not a secret
		StockLocationID: stockLocationID,
		State:           ShipmentStatePending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Ready marks the shipment as released to the warehouse.
func (s *Shipment) Ready() error { return s.move(ShipmentStateReady, ShipmentStatePending) }

// Pick marks the shipment's units as picked.
func (s *Shipment) Pick() error { return s.move(ShipmentStatePicked, ShipmentStateReady) }

// Pack marks the shipment as packed.
func (s *Shipment) Pack() error { return s.move(ShipmentStatePacked, ShipmentStatePicked) }

// Ship hands the shipment to the carrier.
func (s *Shipment) Ship(trackingNumber string) error {
	if strings.TrimSpace(trackingNumber) == "" {
		return ErrShipmentTrackingRequired
	}
	if err := s.move(ShipmentStateShipped,
		ShipmentStatePending, ShipmentStateReady, ShipmentStatePicked, ShipmentStatePacked); err != nil {
		return err
	}
	s.TrackingNumber = strings.TrimSpace(trackingNumber)
	s.ShippedAt = ptr(s.UpdatedAt)
	return nil
}

// Deliver records carrier delivery.
func (s *Shipment) Deliver() error {
	if err := s.move(ShipmentStateDelivered, ShipmentStateShipped); err != nil {
		return err
	}
	s.DeliveredAt = ptr(s.UpdatedAt)
	return nil
}

// Cancel withdraws a shipment that has not left yet.
func (s *Shipment) Cancel() error {
	return s.move(ShipmentStateCanceled,
		ShipmentStatePending, ShipmentStateReady, ShipmentStatePicked, ShipmentStatePacked)
}

func (s *Shipment) move(to ShipmentState, from ...ShipmentState) error {
	for _, f := range from {
		if s.State == f {
			s.State = to
			s.UpdatedAt = timeNow()
			return nil
		}
	}
	return ErrShipmentInvalidStateTransition.WithMessage("cannot move shipment from %s to %s", s.State, to)
}
