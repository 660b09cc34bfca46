// Package catalog resolves product variants from the catalog service.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/utafrali/commerce-fulfillment/pkg/errors"
	"github.com/utafrali/commerce-fulfillment/pkg/httpclient"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/domain"
)

const serviceName = "catalog"

// HTTPDoer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy it; the correlation id of ctx is
// forwarded by them.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// CircuitOpenFallback replaces the breaker's ErrCircuitOpen with a retryable
// 503 so callers see a structured error.
func CircuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("catalog service is temporarily unavailable, please retry")
}

type variantPayload struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Price     *int64 `json:"price"`
	IsActive  bool   `json:"is_active"`
}

type variantResponse struct {
	Data *variantPayload `json:"data"`
}

// Client looks up variants over HTTP.
type Client struct {
	http    HTTPDoer
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a catalog client rooted at baseURL.
func NewClient(doer HTTPDoer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// GetVariant fetches the snapshot data of a variant. A missing variant maps
// to NotFound; an inactive or unpriced one is rejected as invalid input.
func (c *Client) GetVariant(ctx context.Context, variantID string) (*domain.VariantSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/variants/"+url.PathEscape(variantID), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create variant request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		c.logger.WarnContext(ctx, "catalog request failed",
			slog.String("variant_id", variantID),
			slog.String("error", err.Error()),
		)
		if apperrors.Code(err) != "" {
			return nil, err
		}
		return nil, &apperrors.AppError{
			Code:    "SERVICE_UNAVAILABLE",
			Message: "catalog service is unavailable",
			Status:  http.StatusServiceUnavailable,
			Err:     fmt.Errorf("%w: %w", apperrors.ErrServiceUnavail, err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("variant", variantID)
	case resp.StatusCode != http.StatusOK:
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}

	var body variantResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode variant response: %w", err)
	}
	v := body.Data
	if v == nil {
		return nil, apperrors.NotFound("variant", variantID)
	}
	if !v.IsActive {
		return nil, apperrors.InvalidInput(fmt.Sprintf("variant %s is not active", variantID))
	}
	if v.Price == nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("variant %s has no price", variantID))
	}

	return &domain.VariantSnapshot{
		VariantID:  v.ID,
		ProductID:  v.ProductID,
		Name:       v.Name,
		SKU:        v.SKU,
		PriceCents: *v.Price,
	}, nil
}
