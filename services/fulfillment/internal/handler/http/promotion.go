package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/commerce-fulfillment/pkg/httputil"
	"github.com/utafrali/commerce-fulfillment/pkg/pagination"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/service"
)

// PromotionHandler handles HTTP requests for promotion endpoints.
type PromotionHandler struct {
	service *service.PromotionService
	logger  *slog.Logger
}

// NewPromotionHandler creates a new promotion HTTP handler.
func NewPromotionHandler(svc *service.PromotionService, logger *slog.Logger) *PromotionHandler {
	return &PromotionHandler{
		service: svc,
		logger:  logger,
	}
}

// PromotionRuleRequest is one eligibility rule of a promotion.
type PromotionRuleRequest struct {
	Type       string   `json:"type" validate:"required,oneof=minimum_quantity product_include product_exclude"`
	Value      int      `json:"value" validate:"gte=0"`
	ProductIDs []string `json:"product_ids" validate:"omitempty,dive,required"`
}

// CreatePromotionRequest is the JSON request body for defining a promotion.
type CreatePromotionRequest struct {
	Name              string                 `json:"name" validate:"required,max=255"`
	Code              string                 `json:"code" validate:"omitempty,max=64"`
	Action            string                 `json:"action" validate:"required,oneof=order_discount item_discount"`
	DiscountType      string                 `json:"discount_type" validate:"required,oneof=percentage fixed_amount"`
	DiscountValue     int64                  `json:"discount_value" validate:"required,gt=0"`
	MaxDiscountAmount int64                  `json:"max_discount_amount" validate:"gte=0"`
	MinOrderAmount    int64                  `json:"min_order_amount" validate:"gte=0"`
	UsageLimit        int                    `json:"usage_limit" validate:"gte=0"`
	Active            *bool                  `json:"active"`
	StartsAt          *time.Time             `json:"starts_at"`
	ExpiresAt         *time.Time             `json:"expires_at"`
	Rules             []PromotionRuleRequest `json:"rules" validate:"omitempty,dive"`
}

// CreatePromotion handles POST /api/v1/promotions
func (h *PromotionHandler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req CreatePromotionRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	rules := make([]domain.PromotionRule, 0, len(req.Rules))
	for _, rule := range req.Rules {
		rules = append(rules, domain.PromotionRule{Type: rule.Type, Value: rule.Value, ProductIDs: rule.ProductIDs})
	}

	promo, err := h.service.CreatePromotion(r.Context(), domain.Promotion{
		Name:              req.Name,
		Code:              req.Code,
		Action:            req.Action,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MaxDiscountAmount: req.MaxDiscountAmount,
		MinOrderAmount:    req.MinOrderAmount,
		UsageLimit:        req.UsageLimit,
		Active:            active,
		StartsAt:          req.StartsAt,
		ExpiresAt:         req.ExpiresAt,
		Rules:             rules,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: promo})
}

// ListPromotions handles GET /api/v1/promotions
func (h *PromotionHandler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	promos, total, err := h.service.ListPromotions(r.Context(), params.Page, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(promos, total, params))
}

// GetPromotion handles GET /api/v1/promotions/{id}
func (h *PromotionHandler) GetPromotion(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	promo, err := h.service.GetPromotion(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: promo})
}

// GetPromotionByCode handles GET /api/v1/promotions/code/{code}
func (h *PromotionHandler) GetPromotionByCode(w http.ResponseWriter, r *http.Request) {
	promo, err := h.service.GetPromotionByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: promo})
}
