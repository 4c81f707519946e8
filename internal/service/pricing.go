package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/shopcraft/selection/internal/domain"
	apperrors "github.com/shopcraft/selection/pkg/errors"
)

// priceQuote computes the quote for a variant at a quantity, remote-first
// with the variant's own price tiers as the local fallback. The remote
// answer is authoritative even when it disagrees with local tiers.
func (s *SelectionService) priceQuote(ctx context.Context, productID string, variant *domain.Variant, quantity int) (*domain.PriceQuote, error) {
	if quantity < domain.MinQuantity || quantity > domain.MaxQuantity {
		quantity = domain.MinQuantity
	}

	quote, err := s.catalog.Pricing(ctx, productID, variant.ID, quantity)
	if err == nil {
		recordResolution(resolutionKindPrice, resolutionSourceRemote, resolutionOutcomeOK)
		return quote, nil
	}

	s.logger.DebugContext(ctx, "remote pricing failed, trying tier fallback",
		slog.String("product_id", productID),
		slog.String("variant_id", variant.ID),
		slog.Int("quantity", quantity),
		slog.String("error", err.Error()),
	)

	if tier := variant.TierFor(quantity); tier != nil {
		recordResolution(resolutionKindPrice, resolutionSourceLocal, resolutionOutcomeOK)
		unit := tier.Price
		return &domain.PriceQuote{
			UnitPrice:  unit,
			TotalPrice: unit.Mul(decimal.NewFromInt(int64(quantity))),
			Quantity:   quantity,
			Source:     domain.QuoteSourceTier,
		}, nil
	}

	recordResolution(resolutionKindPrice, resolutionSourceNone, resolutionOutcomeUnavailable)
	return nil, apperrors.PriceUnavailable(variant.ID)
}
