package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/commerce-fulfillment/pkg/httputil"
	"github.com/utafrali/commerce-fulfillment/pkg/pagination"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/service"
)

// StockHandler handles HTTP requests for stock item and availability endpoints.
type StockHandler struct {
	inventory   *service.InventoryService
	projections *service.ProjectionService
	logger      *slog.Logger
}

// NewStockHandler creates a new stock HTTP handler.
func NewStockHandler(inventory *service.InventoryService, projections *service.ProjectionService, logger *slog.Logger) *StockHandler {
	return &StockHandler{
		inventory:   inventory,
		projections: projections,
		logger:      logger,
	}
}

// --- Request DTOs ---

// CreateStockItemRequest is the JSON request body for creating a stock item.
type CreateStockItemRequest struct {
	VariantID       string `json:"variant_id" validate:"required,max=64"`
	StockLocationID string `json:"stock_location_id" validate:"required,max=64"`
	SKU             string `json:"sku" validate:"required,max=128"`
	Quantity        int    `json:"quantity" validate:"gte=0,lte=1000000"`
	UnitCost        int64  `json:"unit_cost" validate:"gte=0"`
	Backorderable   bool   `json:"backorderable"`
	BackorderLimit  int    `json:"backorder_limit" validate:"gte=0,lte=1000000"`
}

// AdjustStockRequest is the JSON request body for a ledger adjustment.
type AdjustStockRequest struct {
	Quantity     int    `json:"quantity" validate:"required,gte=-1000000,lte=1000000"`
	MovementType string `json:"movement_type" validate:"required,oneof=receipt sale return loss transfer adjustment correction"`
	UnitCost     int64  `json:"unit_cost" validate:"gte=0"`
	Reason       string `json:"reason" validate:"max=255"`
	Reference    string `json:"reference" validate:"max=255"`
}

// ReserveStockRequest is the JSON request body for reserving stock.
type ReserveStockRequest struct {
	Quantity   int    `json:"quantity" validate:"required,gte=1,lte=1000000"`
	OrderID    string `json:"order_id" validate:"required"`
	LineItemID string `json:"line_item_id"`
}

// ReleaseStockRequest is the JSON request body for releasing a reservation.
type ReleaseStockRequest struct {
	Quantity int    `json:"quantity" validate:"required,gte=1,lte=1000000"`
	OrderID  string `json:"order_id" validate:"required"`
}

// FulfillStockRequest is the JSON request body for a direct sale.
type FulfillStockRequest struct {
	Quantity   int    `json:"quantity" validate:"required,gte=1,lte=1000000"`
	ShipmentID string `json:"shipment_id"`
	Reference  string `json:"reference" validate:"required,max=255"`
	UnitCost   int64  `json:"unit_cost" validate:"gte=0"`
}

// AuditStockRequest is the JSON request body for a stocktake.
type AuditStockRequest struct {
	PhysicalCount int    `json:"physical_count" validate:"gte=0,lte=1000000"`
	Reason        string `json:"reason" validate:"max=255"`
	Reference     string `json:"reference" validate:"required,max=255"`
}

// BackorderPolicyRequest is the JSON request body for changing the backorder policy.
type BackorderPolicyRequest struct {
	Backorderable  *bool `json:"backorderable" validate:"required"`
	BackorderLimit int   `json:"backorder_limit" validate:"gte=0,lte=1000000"`
}

// --- Handlers ---

// CreateStockItem handles POST /api/v1/stock-items
func (h *StockHandler) CreateStockItem(w http.ResponseWriter, r *http.Request) {
	var req CreateStockItemRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	item, err := h.inventory.CreateStockItem(r.Context(), domain.NewStockItemParams{
		VariantID:       req.VariantID,
		StockLocationID: req.StockLocationID,
		SKU:             req.SKU,
		InitialQuantity: req.Quantity,
		UnitCost:        req.UnitCost,
		Backorderable:   req.Backorderable,
		BackorderLimit:  req.BackorderLimit,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: item})
}

// GetStockItem handles GET /api/v1/stock-items/{id}
func (h *StockHandler) GetStockItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	item, err := h.inventory.GetStockItem(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: item})
}

// AdjustStock handles POST /api/v1/stock-items/{id}/adjust
func (h *StockHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req AdjustStockRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	item, err := h.inventory.AdjustStock(r.Context(), id.String(), service.AdjustStockInput{
		Quantity:     req.Quantity,
		MovementType: domain.MovementType(req.MovementType),
		UnitCost:     req.UnitCost,
		Reason:       req.Reason,
		Reference:    req.Reference,
	})
	h.respond(w, r, item, err)
}

// ReserveStock handles POST /api/v1/stock-items/{id}/reserve
func (h *StockHandler) ReserveStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req ReserveStockRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	item, err := h.inventory.Reserve(r.Context(), id.String(), req.Quantity, req.OrderID, req.LineItemID)
	h.respond(w, r, item, err)
}

// ReleaseStock handles POST /api/v1/stock-items/{id}/release
func (h *StockHandler) ReleaseStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req ReleaseStockRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	item, err := h.inventory.Release(r.Context(), id.String(), req.Quantity, req.OrderID)
	h.respond(w, r, item, err)
}

// FulfillStock handles POST /api/v1/stock-items/{id}/fulfill
func (h *StockHandler) FulfillStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req FulfillStockRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	item, err := h.inventory.Fulfill(r.Context(), id.String(), req.Quantity, req.ShipmentID, req.Reference, req.UnitCost)
	h.respond(w, r, item, err)
}

// AuditStock handles POST /api/v1/stock-items/{id}/audit
func (h *StockHandler) AuditStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req AuditStockRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	item, err := h.inventory.Audit(r.Context(), id.String(), req.PhysicalCount, req.Reason, req.Reference)
	h.respond(w, r, item, err)
}

// SetBackorderPolicy handles PUT /api/v1/stock-items/{id}/backorder-policy
func (h *StockHandler) SetBackorderPolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req BackorderPolicyRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	item, err := h.inventory.SetBackorderPolicy(r.Context(), id.String(), *req.Backorderable, req.BackorderLimit)
	h.respond(w, r, item, err)
}

// DeleteStockItem handles DELETE /api/v1/stock-items/{id}
func (h *StockHandler) DeleteStockItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	item, err := h.inventory.DeleteStockItem(r.Context(), id.String())
	h.respond(w, r, item, err)
}

// RestoreStockItem handles POST /api/v1/stock-items/{id}/restore
func (h *StockHandler) RestoreStockItem(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	item, err := h.inventory.RestoreStockItem(r.Context(), id.String())
	h.respond(w, r, item, err)
}

// ListMovements handles GET /api/v1/stock-items/{id}/movements
func (h *StockHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	params := pagination.FromRequest(r)

	movements, total, err := h.inventory.ListMovements(r.Context(), id.String(), params.Page, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(movements, total, params))
}

// GetVariantSummary handles GET /api/v1/variants/{variantID}/summary
func (h *StockHandler) GetVariantSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.projections.GetSummary(r.Context(), chi.URLParam(r, "variantID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: summary})
}

// RebuildVariantSummary handles POST /api/v1/variants/{variantID}/summary/rebuild
func (h *StockHandler) RebuildVariantSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.projections.Rebuild(r.Context(), chi.URLParam(r, "variantID"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: summary})
}

func (h *StockHandler) respond(w http.ResponseWriter, r *http.Request, item *domain.StockItem, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: item})
}
