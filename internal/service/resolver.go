package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopcraft/selection/internal/domain"
	apperrors "github.com/shopcraft/selection/pkg/errors"
)

// CatalogClient is the remote catalog/pricing dependency of the selection
// service.
type CatalogClient interface {
	FetchProduct(ctx context.Context, productID string) (*domain.Product, error)
	VariantByAttributes(ctx context.Context, productID, color, size string) (*domain.Variant, error)
	Pricing(ctx context.Context, productID, variantID string, quantity int) (*domain.PriceQuote, error)
}

// loadProduct fetches the product remote-first: a successful remote load
// refreshes the cache; when the remote catalog fails, the last cached
// snapshot is served instead. A remote 404 is authoritative and is never
// papered over by the cache.
func (s *SelectionService) loadProduct(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := s.catalog.FetchProduct(ctx, productID)
	if err == nil {
		recordResolution(resolutionKindProduct, resolutionSourceRemote, resolutionOutcomeOK)
		if cacheErr := s.cache.Set(ctx, product); cacheErr != nil {
			s.logger.WarnContext(ctx, "failed to cache product snapshot",
				slog.String("product_id", productID),
				slog.String("error", cacheErr.Error()),
			)
		}
		return product, nil
	}

	if errors.Is(err, apperrors.ErrNotFound) {
		recordResolution(resolutionKindProduct, resolutionSourceRemote, resolutionOutcomeUnavailable)
		return nil, err
	}

	cached, cacheErr := s.cache.Get(ctx, productID)
	if cacheErr != nil {
		recordResolution(resolutionKindProduct, resolutionSourceNone, resolutionOutcomeUnavailable)
		return nil, fmt.Errorf("load product %s: %w", productID, err)
	}

	recordResolution(resolutionKindProduct, resolutionSourceLocal, resolutionOutcomeOK)
	s.logger.WarnContext(ctx, "remote catalog unavailable, serving cached product",
		slog.String("product_id", productID),
		slog.String("error", err.Error()),
	)
	return cached, nil
}

// resolveVariant finds the variant for a (color, size) pair, remote-first
// with a local fallback over the product's own variant list. Returns the
// serving source alongside the variant.
func (s *SelectionService) resolveVariant(ctx context.Context, product *domain.Product, color, size string) (*domain.Variant, string, error) {
	variant, err := s.catalog.VariantByAttributes(ctx, product.ID, color, size)
	if err == nil {
		recordResolution(resolutionKindVariant, resolutionSourceRemote, resolutionOutcomeOK)
		return variant, resolutionSourceRemote, nil
	}

	s.logger.DebugContext(ctx, "remote variant resolution failed, trying local",
		slog.String("product_id", product.ID),
		slog.String("color", color),
		slog.String("size", size),
		slog.String("error", err.Error()),
	)

	if local := product.VariantByAttributes(color, size); local != nil {
		recordResolution(resolutionKindVariant, resolutionSourceLocal, resolutionOutcomeOK)
		return local, resolutionSourceLocal, nil
	}

	recordResolution(resolutionKindVariant, resolutionSourceNone, resolutionOutcomeUnavailable)
	return nil, resolutionSourceNone, apperrors.VariantUnavailable(color, size)
}
