package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentState is the lifecycle state of a payment.
type PaymentState string

// Payment states.
const (
	PaymentStatePending        PaymentState = "pending"
	PaymentStateAuthorizing    PaymentState = "authorizing"
	PaymentStateAuthorized     PaymentState = "authorized"
	PaymentStateCapturing      PaymentState = "capturing"
	PaymentStateCompleted      PaymentState = "completed"
	PaymentStateRefunded       PaymentState = "refunded"
	PaymentStateFailed         PaymentState = "failed"
	PaymentStateVoid           PaymentState = "void"
	PaymentStateRequiresAction PaymentState = "requires_action"
)

// IsOpen reports whether the payment can still be captured.
func (s PaymentState) IsOpen() bool {
	switch s {
	case PaymentStatePending, PaymentStateAuthorizing, PaymentStateAuthorized,
		PaymentStateCapturing, PaymentStateRequiresAction:
		return true
	}
	return false
}

// Payment is one tender applied to an order.
type Payment struct {
	ID            string       `json:"id"`
	OrderID       string       `json:"order_id"`
	AmountCents   int64        `json:"amount_cents"`
	RefundedCents int64        `json:"refunded_cents"`
	Currency      string       `json:"currency"`
	Method        string       `json:"method"`
	State         PaymentState `json:"state"`
	TransactionID string       `json:"transaction_id,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	AuthorizedAt  *time.Time   `json:"authorized_at,omitempty"`
	CapturedAt    *time.Time   `json:"captured_at,omitempty"`
	VoidedAt      *time.Time   `json:"voided_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// NewPayment creates a pending payment.
func NewPayment(orderID string, amountCents int64, currency, method string) (*Payment, error) {
	if amountCents <= 0 {
		return nil, ErrPaymentInvalidAmount
	}
	now := timeNow()
	return &Payment{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		AmountCents: amountCents,
		Currency:    currency,
		Method:      strings.TrimSpace(method),
		State:       PaymentStatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NetCaptured is the captured amount still held after refunds.
func (p *Payment) NetCaptured() int64 {
	if p.State != PaymentStateCompleted {
		return 0
	}
	return p.AmountCents - p.RefundedCents
}

// RequireAction parks the payment until the customer completes a challenge.
func (p *Payment) RequireAction() error {
	if p.State != PaymentStatePending && p.State != PaymentStateAuthorizing {
		return p.invalid("require action")
	}
	p.State = PaymentStateRequiresAction
	p.UpdatedAt = timeNow()
	return nil
}

// Authorize records a gateway authorization.
func (p *Payment) Authorize(transactionID string) error {
	switch p.State {
	case PaymentStatePending, PaymentStateAuthorizing, PaymentStateRequiresAction:
	default:
		return p.invalid("authorize")
	}
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	now := timeNow()
	p.State = PaymentStateAuthorized
	p.AuthorizedAt = &now
	p.UpdatedAt = now
	return nil
}

// Capture settles the payment. A gateway transaction id is required, either
// passed here or recorded by an earlier authorization.
func (p *Payment) Capture(transactionID string) error {
	switch p.State {
	case PaymentStatePending, PaymentStateAuthorized, PaymentStateCapturing:
	default:
		return p.invalid("capture")
	}
	if transactionID == "" && p.TransactionID == "" {
		return ErrPaymentTransactionIDRequired
	}
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	now := timeNow()
	p.State = PaymentStateCompleted
	p.CapturedAt = &now
	p.UpdatedAt = now
	return nil
}

// Void cancels a payment that has not been settled.
func (p *Payment) Void() error {
	if p.State == PaymentStateCompleted || p.State == PaymentStateRefunded {
		return p.invalid("void")
	}
	now := timeNow()
	p.State = PaymentStateVoid
	p.VoidedAt = &now
	p.UpdatedAt = now
	return nil
}

// Fail records a gateway decline.
func (p *Payment) Fail(reason string) error {
	if p.State == PaymentStateCompleted || p.State == PaymentStateRefunded {
		return p.invalid("fail")
	}
	p.State = PaymentStateFailed
	p.FailureReason = reason
	p.UpdatedAt = timeNow()
	return nil
}

// Refund returns part or all of a captured payment.
func (p *Payment) Refund(amountCents int64) error {
	if p.State != PaymentStateCompleted {
		return p.invalid("refund")
	}
	if amountCents <= 0 || amountCents > p.AmountCents-p.RefundedCents {
		return ErrPaymentInvalidRefund
	}
	p.RefundedCents += amountCents
	if p.RefundedCents == p.AmountCents {
		p.State = PaymentStateRefunded
	}
	p.UpdatedAt = timeNow()
	return nil
}

func (p *Payment) invalid(action string) error {
	return ErrPaymentInvalidStateTransition.WithMessage("cannot %s payment in state %s", action, p.State)
}
