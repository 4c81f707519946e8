package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/shopcraft/selection/internal/domain"
	"github.com/shopcraft/selection/pkg/httpclient"
)

const maxResponseBytes = 4 << 20 // 4 MB

// Doer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy this.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client talks to the remote catalog/pricing service and returns canonical
// domain values. All responses pass through the normalizer, so either field
// casing convention is accepted.
type Client struct {
	http    Doer
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a catalog client for the given upstream base URL
// (e.g. "http://catalog:5000/api").
func NewClient(doer Doer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: baseURL,
		logger:  logger,
	}
}

// FetchProduct retrieves and normalizes the full catalog payload for a product.
func (c *Client) FetchProduct(ctx context.Context, productID string) (*domain.Product, error) {
	raw, err := c.get(ctx, fmt.Sprintf("%s/products/%s", c.baseURL, url.PathEscape(productID)))
	if err != nil {
		return nil, fmt.Errorf("fetch product %s: %w", productID, err)
	}
	return NormalizeProduct(raw)
}

// VariantByAttributes asks the remote service for the authoritative variant
// matching the (color, size) pair.
func (c *Client) VariantByAttributes(ctx context.Context, productID, color, size string) (*domain.Variant, error) {
	query := url.Values{}
	query.Set("color", color)
	query.Set("size", size)

	endpoint := fmt.Sprintf("%s/products/%s/variant-by-attributes?%s",
		c.baseURL, url.PathEscape(productID), query.Encode())

	raw, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("variant lookup %s (%s/%s): %w", productID, color, size, err)
	}
	return NormalizeVariant(raw)
}

// pricingRequest is the body for the remote pricing endpoint.
type pricingRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// Pricing asks the remote service for the authoritative price of a variant at
// the given quantity.
func (c *Client) Pricing(ctx context.Context, productID, variantID string, quantity int) (*domain.PriceQuote, error) {
	body, err := json.Marshal(pricingRequest{VariantID: variantID, Quantity: quantity})
	if err != nil {
		return nil, fmt.Errorf("marshal pricing request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/products/%s/pricing", c.baseURL, url.PathEscape(productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create pricing request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("pricing %s/%s: %w", productID, variantID, err)
	}

	unit, total, err := NormalizePricing(raw)
	if err != nil {
		return nil, err
	}

	return &domain.PriceQuote{
		UnitPrice:  unit,
		TotalPrice: total,
		Quantity:   quantity,
		Source:     domain.QuoteSourceRemote,
	}, nil
}

// Ping checks upstream reachability for the readiness probe. Any HTTP
// response, including an error status, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/ping", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("catalog unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	if !httpclient.IsSuccess(resp.StatusCode) {
		return nil, httpclient.ParseResponseError(resp, "catalog")
	}

	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return raw, nil
}
