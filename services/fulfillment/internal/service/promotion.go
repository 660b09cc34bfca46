package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/utafrali/commerce-fulfillment/pkg/slug"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/repository"
)

// PromotionService manages promotion definitions.
type PromotionService struct {
	repo   repository.PromotionRepository
	logger *slog.Logger
}

// NewPromotionService creates a new promotion service.
func NewPromotionService(repo repository.PromotionRepository, logger *slog.Logger) *PromotionService {
	return &PromotionService{repo: repo, logger: logger}
}

// CreatePromotion validates and stores a promotion. A promotion without a
// code gets one derived from its name.
func (s *PromotionService) CreatePromotion(ctx context.Context, in domain.Promotion) (*domain.Promotion, error) {
	p, err := domain.NewPromotion(in)
	if err != nil {
		return nil, err
	}
	if p.Code == "" {
		p.Code = generateCode(p.Name)
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create promotion: %w", err)
	}

	s.logger.InfoContext(ctx, "promotion created",
		slog.String("promotion_id", p.ID),
		slog.String("code", p.Code),
		slog.String("action", p.Action),
	)
	return p, nil
}

// GetPromotion retrieves a promotion by ID.
func (s *PromotionService) GetPromotion(ctx context.Context, id string) (*domain.Promotion, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get promotion: %w", err)
	}
	return p, nil
}

// GetPromotionByCode retrieves a promotion by code, ignoring case.
func (s *PromotionService) GetPromotionByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	p, err := s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("get promotion by code: %w", err)
	}
	return p, nil
}

// ListPromotions returns a page of promotions.
func (s *PromotionService) ListPromotions(ctx context.Context, page, perPage int) ([]*domain.Promotion, int, error) {
	promotions, total, err := s.repo.List(ctx, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list promotions: %w", err)
	}
	return promotions, total, nil
}

// codeBaseMaxLen bounds the name-derived part of a generated code.
const codeBaseMaxLen = 24

// generateCode builds a code like SPRING-SALE-3F9A from a promotion name.
func generateCode(name string) string {
	base := slug.Code(name, codeBaseMaxLen)
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	if base == "" {
		return "PROMO-" + suffix
	}
	return base + "-" + suffix
}
