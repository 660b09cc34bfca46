package domain

import (
	"errors"

	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
)

// ErrInvariantViolation marks a structural inconsistency inside an aggregate.
// It is never returned for a rejected business request.
var ErrInvariantViolation = errors.New("aggregate invariant violation")

// Inventory unit errors.
var (
	ErrUnitInvalidStateTransition = apperrors.Conflict("InventoryUnit.InvalidStateTransition", "inventory unit cannot make this state transition")
	ErrUnitAlreadyShipped         = apperrors.Conflict("InventoryUnit.AlreadyShipped", "inventory unit has already shipped")
)

// Stock item errors.
var (
	ErrStockInvalidQuantity        = apperrors.Validation("StockItem.InvalidQuantity", "quantity is invalid for this operation")
	ErrStockQuantityOutOfRange     = apperrors.Validation("StockItem.QuantityOutOfRange", "resulting quantity on hand is outside the allowed range")
	ErrStockInsufficientStock      = apperrors.Conflict("StockItem.InsufficientStock", "insufficient stock available")
	ErrStockBackorderLimitExceeded = apperrors.Conflict("StockItem.BackorderLimitExceeded", "operation exceeds the backorder limit")
	ErrStockInvalidRelease         = apperrors.Conflict("StockItem.InvalidRelease", "cannot release more units than are reserved for the order")
	ErrStockReferenceRequired      = apperrors.Validation("StockItem.ReferenceRequired", "a reference is required")
	ErrStockSKURequired            = apperrors.Validation("StockItem.SkuRequired", "sku is required")
	ErrStockVariantRequired        = apperrors.Validation("StockItem.VariantRequired", "variant_id is required")
	ErrStockLocationRequired       = apperrors.Validation("StockItem.LocationRequired", "stock_location_id is required")
	ErrStockInvalidBackorderLimit  = apperrors.Validation("StockItem.InvalidBackorderLimit", "backorder limit must be between 0 and the maximum")
	ErrStockInvalidUnitCost        = apperrors.Validation("StockItem.InvalidUnitCost", "unit cost must not be negative")
	ErrStockInvalidMovementType    = apperrors.Validation("StockItem.InvalidMovementType", "unknown stock movement type")
	ErrStockOrderRequired          = apperrors.Validation("StockItem.OrderRequired", "order_id is required")
	ErrStockLineItemRequired       = apperrors.Validation("StockItem.LineItemRequired", "line_item_id is required")
	ErrStockDeleted                = apperrors.Conflict("StockItem.Deleted", "stock item is deleted")
	ErrMovementStockItemRequired   = apperrors.Validation("StockMovement.StockItemRequired", "stock movement requires a stock item")
)

// Order errors.
var (
	ErrOrderInvalidStateTransition        = apperrors.Conflict("Order.InvalidStateTransition", "order cannot perform this action in its current state")
	ErrOrderEmptyCart                     = apperrors.Conflict("Order.EmptyCart", "order has no line items")
	ErrOrderAddressMissing                = apperrors.Conflict("Order.AddressMissing", "shipping and billing addresses are required")
	ErrOrderShippingMethodMissing         = apperrors.Conflict("Order.ShippingMethodMissing", "a shipping method must be selected")
	ErrOrderInsufficientPayment           = apperrors.Conflict("Order.InsufficientPayment", "completed payments do not cover the order total")
	ErrOrderIncompleteInventoryAllocation = apperrors.Conflict("Order.IncompleteInventoryAllocation", "not every line item has its inventory allocated")
	ErrOrderCannotCancelCompleted         = apperrors.Conflict("Order.CannotCancelCompleted", "a completed order cannot be canceled")
	ErrOrderInvalidQuantity               = apperrors.Validation("Order.InvalidQuantity", "quantity must be at least 1")
	ErrOrderInvalidPrice                  = apperrors.Validation("Order.InvalidPrice", "price must be between 0 and the maximum")
	ErrOrderInvalidCustomer               = apperrors.Validation("Order.InvalidCustomer", "exactly one of user_id or session_id is required")
	ErrOrderInvalidCurrency               = apperrors.Validation("Order.InvalidCurrency", "currency must be a 3-letter ISO code")
	ErrOrderStoreRequired                 = apperrors.Validation("Order.StoreRequired", "store_id is required")
	ErrOrderVariantRequired               = apperrors.Validation("Order.VariantRequired", "variant id, name and sku are required")
	ErrOrderInvalidShippingCost           = apperrors.Validation("Order.InvalidShippingCost", "shipping cost must not be negative")
	ErrOrderShippingMethodRequired        = apperrors.Validation("Order.ShippingMethodRequired", "shipping_method_id is required")
	ErrOrderAddressInvalid                = apperrors.Validation("Order.AddressInvalid", "address is incomplete")
	ErrOrderCalculatorRequired            = apperrors.Validation("Order.CalculatorRequired", "a promotion calculator is required")
	ErrOrderPromotionRequired             = apperrors.Validation("Order.PromotionRequired", "a promotion is required")
	ErrOrderLineItemNotFound              = apperrors.Conflict("Order.LineItemNotFound", "line item does not belong to this order")
	ErrOrderPaymentNotFound               = apperrors.Conflict("Order.PaymentNotFound", "payment does not belong to this order")
	ErrOrderShipmentNotFound              = apperrors.Conflict("Order.ShipmentNotFound", "shipment does not belong to this order")
	ErrOrderAllocationExceedsQuantity     = apperrors.Conflict("Order.AllocationExceedsQuantity", "allocation exceeds the unallocated units of the line item")
)

// Payment, shipment and adjustment errors.
var (
	ErrPaymentInvalidAmount          = apperrors.Validation("Payment.InvalidAmount", "payment amount must be positive")
	ErrPaymentInvalidStateTransition = apperrors.Conflict("Payment.InvalidStateTransition", "payment cannot make this state transition")
	ErrPaymentTransactionIDRequired  = apperrors.Validation("Payment.TransactionIdRequired", "a gateway transaction id is required")
	ErrPaymentInvalidRefund          = apperrors.Validation("Payment.InvalidRefund", "refund amount must be positive and not exceed the refundable amount")

	ErrShipmentInvalidStateTransition = apperrors.Conflict("Shipment.InvalidStateTransition", "shipment cannot make this state transition")
	ErrShipmentTrackingRequired       = apperrors.Validation("Shipment.TrackingRequired", "a tracking number is required")
	ErrShipmentLocationRequired       = apperrors.Validation("Shipment.LocationRequired", "stock_location_id is required")

	ErrAdjustmentDescriptionRequired = apperrors.Validation("Adjustment.DescriptionRequired", "adjustment description is required")
	ErrAdjustmentInvalidScope        = apperrors.Validation("Adjustment.InvalidScope", "unknown adjustment scope")
)

// Promotion definition errors.
var (
	ErrPromotionNameRequired    = apperrors.Validation("Promotion.NameRequired", "promotion name is required")
	ErrPromotionInvalidAction   = apperrors.Validation("Promotion.InvalidAction", "promotion action must be order_discount or item_discount")
	ErrPromotionInvalidDiscount = apperrors.Validation("Promotion.InvalidDiscount", "discount type or value is invalid")
	ErrPromotionInvalidRule     = apperrors.Validation("Promotion.InvalidRule", "promotion rule is invalid")
	ErrPromotionInvalidWindow   = apperrors.Validation("Promotion.InvalidWindow", "promotion must start before it expires")
)
