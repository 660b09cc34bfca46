package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/commerce-fulfillment/pkg/httputil"
	"github.com/utafrali/commerce-fulfillment/pkg/pagination"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/repository"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateOrderRequest is the JSON request body for starting an order. When
// neither customer id is given, the X-User-ID header set by the gateway is used.
type CreateOrderRequest struct {
	StoreID   string `json:"store_id" validate:"required"`
	Currency  string `json:"currency" validate:"omitempty,len=3"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// AddLineItemRequest is the JSON request body for adding a variant to an order.
type AddLineItemRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=1000000"`
	Price     *int64 `json:"price" validate:"omitempty,gte=0,lte=1000000000000"`
}

// AddressRequest is a postal address.
type AddressRequest struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
	Address1  string `json:"address1" validate:"required,max=255"`
	Address2  string `json:"address2" validate:"max=255"`
	City      string `json:"city" validate:"required,max=100"`
	State     string `json:"state" validate:"max=100"`
	Zipcode   string `json:"zipcode" validate:"required,max=20"`
	Country   string `json:"country" validate:"required,len=2"`
	Phone     string `json:"phone" validate:"max=32"`
}

func (a AddressRequest) toDomain() domain.Address {
	return domain.Address{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Address1:  a.Address1,
		Address2:  a.Address2,
		City:      a.City,
		State:     a.State,
		Zipcode:   a.Zipcode,
		Country:   a.Country,
		Phone:     a.Phone,
	}
}

// SetAddressesRequest is the JSON request body for setting the order addresses.
type SetAddressesRequest struct {
	ShipAddress AddressRequest `json:"ship_address" validate:"required"`
	BillAddress AddressRequest `json:"bill_address" validate:"required"`
}

// SetShippingMethodRequest is the JSON request body for choosing a shipping method.
type SetShippingMethodRequest struct {
	ShippingMethodID string `json:"shipping_method_id" validate:"required"`
	Cost             int64  `json:"cost" validate:"gte=0"`
}

// AllocateRequest is the JSON request body for reserving stock for an order.
type AllocateRequest struct {
	StockLocationID string `json:"stock_location_id" validate:"required"`
}

// AddPaymentRequest is the JSON request body for recording a payment.
type AddPaymentRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Method string `json:"method" validate:"required,max=50"`
}

// PaymentActionRequest is the optional JSON body of a payment action.
type PaymentActionRequest struct {
	TransactionID string `json:"transaction_id" validate:"max=255"`
	Amount        int64  `json:"amount" validate:"gte=0"`
	Reason        string `json:"reason" validate:"max=255"`
}

// AddShipmentRequest is the JSON request body for creating a shipment.
type AddShipmentRequest struct {
	StockLocationID string `json:"stock_location_id" validate:"required"`
}

// ShipShipmentRequest is the optional JSON body for shipping a shipment.
type ShipShipmentRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"max=255"`
}

// ApplyPromotionRequest is the JSON request body for applying a promotion code.
type ApplyPromotionRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// --- Handlers ---

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" && req.SessionID == "" {
		req.UserID = r.Header.Get("X-User-ID")
	}

	order, err := h.service.CreateOrder(r.Context(), service.CreateOrderInput{
		StoreID:   req.StoreID,
		Currency:  req.Currency,
		UserID:    req.UserID,
		SessionID: req.SessionID,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: order})
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	filter := repository.OrderFilter{Page: params.Page, PerPage: params.PerPage}
	if state := r.URL.Query().Get("state"); state != "" {
		filter.State = &state
	}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		filter.UserID = &userID
	}

	orders, total, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(orders, total, params))
}

// GetOrder handles GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), id.String())
	h.respond(w, r, order, err)
}

// GetOrderByNumber handles GET /api/v1/orders/number/{number}
func (h *OrderHandler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrderByNumber(r.Context(), chi.URLParam(r, "number"))
	h.respond(w, r, order, err)
}

// AddLineItem handles POST /api/v1/orders/{id}/line-items
func (h *OrderHandler) AddLineItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req AddLineItemRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.AddLineItem(r.Context(), id.String(), req.VariantID, req.Quantity, req.Price)
	h.respond(w, r, order, err)
}

// RemoveLineItem handles DELETE /api/v1/orders/{id}/line-items/{lineItemID}
func (h *OrderHandler) RemoveLineItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	lineItemID, ok := httputil.ParseUUID(w, chi.URLParam(r, "lineItemID"))
	if !ok {
		return
	}

	order, err := h.service.RemoveLineItem(r.Context(), id.String(), lineItemID.String())
	h.respond(w, r, order, err)
}

// SetAddresses handles PUT /api/v1/orders/{id}/addresses
func (h *OrderHandler) SetAddresses(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req SetAddressesRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.SetAddresses(r.Context(), id.String(), req.ShipAddress.toDomain(), req.BillAddress.toDomain())
	h.respond(w, r, order, err)
}

// SetShippingMethod handles PUT /api/v1/orders/{id}/shipping-method
func (h *OrderHandler) SetShippingMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req SetShippingMethodRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.SetShippingMethod(r.Context(), id.String(), req.ShippingMethodID, req.Cost)
	h.respond(w, r, order, err)
}

// Next handles POST /api/v1/orders/{id}/next
func (h *OrderHandler) Next(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.Next(r.Context(), id.String())
	h.respond(w, r, order, err)
}

// Complete handles POST /api/v1/orders/{id}/complete
func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.Complete(r.Context(), id.String())
	h.respond(w, r, order, err)
}

// Cancel handles POST /api/v1/orders/{id}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.Cancel(r.Context(), id.String())
	h.respond(w, r, order, err)
}

// Allocate handles POST /api/v1/orders/{id}/allocate
func (h *OrderHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req AllocateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.Allocate(r.Context(), id.String(), req.StockLocationID)
	h.respond(w, r, order, err)
}

// AddPayment handles POST /api/v1/orders/{id}/payments
func (h *OrderHandler) AddPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req AddPaymentRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.AddPayment(r.Context(), id.String(), req.Amount, req.Method)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: order})
}

// PaymentAction handles POST /api/v1/orders/{id}/payments/{paymentID}/{action}
func (h *OrderHandler) PaymentAction(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	paymentID, ok := httputil.ParseUUID(w, chi.URLParam(r, "paymentID"))
	if !ok {
		return
	}
	var req PaymentActionRequest
	if !httputil.DecodeOptionalJSON(w, r, &req) {
		return
	}

	order, err := h.service.PaymentAction(r.Context(), id.String(), paymentID.String(), chi.URLParam(r, "action"),
		service.PaymentActionInput{
			TransactionID: req.TransactionID,
			AmountCents:   req.Amount,
			Reason:        req.Reason,
		})
	h.respond(w, r, order, err)
}

// AddShipment handles POST /api/v1/orders/{id}/shipments
func (h *OrderHandler) AddShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req AddShipmentRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.AddShipment(r.Context(), id.String(), req.StockLocationID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: order})
}

// ShipShipment handles POST /api/v1/orders/{id}/shipments/{shipmentID}/ship
func (h *OrderHandler) ShipShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	shipmentID, ok := httputil.ParseUUID(w, chi.URLParam(r, "shipmentID"))
	if !ok {
		return
	}
	var req ShipShipmentRequest
	if !httputil.DecodeOptionalJSON(w, r, &req) {
		return
	}

	order, err := h.service.ShipShipment(r.Context(), id.String(), shipmentID.String(), req.TrackingNumber)
	h.respond(w, r, order, err)
}

// ShipmentAction handles POST /api/v1/orders/{id}/shipments/{shipmentID}/{action}
func (h *OrderHandler) ShipmentAction(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	shipmentID, ok := httputil.ParseUUID(w, chi.URLParam(r, "shipmentID"))
	if !ok {
		return
	}

	order, err := h.service.ShipmentAction(r.Context(), id.String(), shipmentID.String(), chi.URLParam(r, "action"))
	h.respond(w, r, order, err)
}

// ApplyPromotion handles POST /api/v1/orders/{id}/promotions
func (h *OrderHandler) ApplyPromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req ApplyPromotionRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.ApplyPromotion(r.Context(), id.String(), req.Code)
	h.respond(w, r, order, err)
}

// RemovePromotion handles DELETE /api/v1/orders/{id}/promotions
func (h *OrderHandler) RemovePromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	order, err := h.service.RemovePromotion(r.Context(), id.String())
	h.respond(w, r, order, err)
}

func (h *OrderHandler) respond(w http.ResponseWriter, r *http.Request, order *domain.Order, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: order})
}
