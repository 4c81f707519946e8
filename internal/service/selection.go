package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/shopcraft/selection/internal/domain"
	"github.com/shopcraft/selection/internal/event"
	"github.com/shopcraft/selection/internal/repository"
	apperrors "github.com/shopcraft/selection/pkg/errors"
)

// SelectionService implements the business logic for product selection
// sessions: mutation, snap-to-available repair, and remote-first variant and
// price resolution.
type SelectionService struct {
	repo     repository.SessionRepository
	cache    repository.ProductCache
	catalog  CatalogClient
	producer *event.Producer
	logger   *slog.Logger
}

// NewSelectionService creates a new selection service.
func NewSelectionService(
	repo repository.SessionRepository,
	cache repository.ProductCache,
	catalog CatalogClient,
	producer *event.Producer,
	logger *slog.Logger,
) *SelectionService {
	return &SelectionService{
		repo:     repo,
		cache:    cache,
		catalog:  catalog,
		producer: producer,
		logger:   logger,
	}
}

// StartSession loads a product, creates a selection session with default
// color, size, and quantity, and resolves the initial variant and quote.
func (s *SelectionService) StartSession(ctx context.Context, productID string) (*domain.SelectionState, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}

	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	state := domain.NewSelectionState(uuid.NewString(), product, time.Now().UTC())
	s.applyResolution(ctx, product, state)

	if err := s.repo.SaveIfRevision(ctx, state, -1); err != nil {
		return nil, fmt.Errorf("save new session: %w", err)
	}

	s.publishUpdated(ctx, state, true)

	s.logger.InfoContext(ctx, "selection session started",
		slog.String("session_id", state.SessionID),
		slog.String("product_id", productID),
		slog.String("color", state.SelectedColor),
		slog.String("size", state.SelectedSize),
	)

	return state, nil
}

// GetSession retrieves the current selection state for a session.
func (s *SelectionService) GetSession(ctx context.Context, sessionID string) (*domain.SelectionState, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}
	return s.repo.Get(ctx, sessionID)
}

// GetProduct returns the canonical product, remote-first with cache fallback.
func (s *SelectionService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	if productID == "" {
		return nil, apperrors.InvalidInput("product id is required")
	}
	return s.loadProduct(ctx, productID)
}

// SelectColor sets the session's color. If the current size does not exist in
// any variant of the new color, the size snaps to the first size available
// for that color; a color with no sizes at all leaves the size unset and the
// selection unresolved. The variant and quote are then re-resolved.
func (s *SelectionService) SelectColor(ctx context.Context, sessionID, color string) (*domain.SelectionState, error) {
	if color == "" {
		return nil, apperrors.InvalidInput("color is required")
	}

	return s.mutate(ctx, sessionID, func(product *domain.Product, state *domain.SelectionState) error {
		if !slices.Contains(colorAxis(product), color) {
			return apperrors.InvalidInput(fmt.Sprintf("unknown color %q", color))
		}

		state.SelectedColor = color

		if len(product.Variants) > 0 {
			sizes := product.SizesForColor(color)
			switch {
			case len(sizes) == 0:
				state.SelectedSize = ""
			case !slices.Contains(sizes, state.SelectedSize):
				state.SelectedSize = sizes[0]
			}
		}

		return nil
	})
}

// SelectSize sets the session's size. If the current color does not exist in
// any variant of the new size, the color snaps to the first color available
// for that size. The variant and quote are then re-resolved.
func (s *SelectionService) SelectSize(ctx context.Context, sessionID, size string) (*domain.SelectionState, error) {
	if size == "" {
		return nil, apperrors.InvalidInput("size is required")
	}

	return s.mutate(ctx, sessionID, func(product *domain.Product, state *domain.SelectionState) error {
		if !slices.Contains(sizeAxis(product), size) {
			return apperrors.InvalidInput(fmt.Sprintf("unknown size %q", size))
		}

		state.SelectedSize = size

		if len(product.Variants) > 0 {
			colors := product.ColorsForSize(size)
			switch {
			case len(colors) == 0:
				state.SelectedColor = ""
			case !slices.Contains(colors, state.SelectedColor):
				state.SelectedColor = colors[0]
			}
		}

		return nil
	})
}

// SetQuantity sets the session's quantity, clamped into the allowed range.
// The variant is untouched; only the quote is recomputed.
func (s *SelectionService) SetQuantity(ctx context.Context, sessionID string, quantity int) (*domain.SelectionState, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}

	state, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	expected := state.Revision

	state.Quantity = domain.ClampQuantity(quantity)

	quoteUpdated := false
	if state.SelectedVariant != nil {
		quote, quoteErr := s.priceQuote(ctx, state.ProductID, state.SelectedVariant, state.Quantity)
		if quoteErr != nil {
			state.QuoteStale = state.Quote != nil
		} else {
			state.Quote = quote
			state.QuoteStale = false
			quoteUpdated = true
		}
	}

	if err := s.saveMutation(ctx, state, expected); err != nil {
		if errors.Is(err, repository.ErrRevisionConflict) {
			return s.lostRace(ctx, sessionID)
		}
		return nil, err
	}

	s.publishUpdated(ctx, state, quoteUpdated)

	s.logger.InfoContext(ctx, "selection quantity updated",
		slog.String("session_id", sessionID),
		slog.Int("quantity", state.Quantity),
	)

	return state, nil
}

// EndSession removes a selection session.
func (s *SelectionService) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperrors.InvalidInput("session id is required")
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// mutate runs an attribute mutation: load state and product, apply the
// change, repair, re-resolve, and save with optimistic concurrency. A save
// losing the revision race discards its result and returns the winning
// state instead.
func (s *SelectionService) mutate(ctx context.Context, sessionID string, apply func(*domain.Product, *domain.SelectionState) error) (*domain.SelectionState, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidInput("session id is required")
	}

	state, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	expected := state.Revision

	product, err := s.loadProduct(ctx, state.ProductID)
	if err != nil {
		return nil, err
	}

	if err := apply(product, state); err != nil {
		return nil, err
	}

	quoteUpdated := s.applyResolution(ctx, product, state)

	if err := s.saveMutation(ctx, state, expected); err != nil {
		if errors.Is(err, repository.ErrRevisionConflict) {
			return s.lostRace(ctx, sessionID)
		}
		return nil, err
	}

	s.publishUpdated(ctx, state, quoteUpdated)

	s.logger.InfoContext(ctx, "selection updated",
		slog.String("session_id", sessionID),
		slog.String("color", state.SelectedColor),
		slog.String("size", state.SelectedSize),
		slog.Bool("variant_stale", state.VariantStale),
	)

	return state, nil
}

// applyResolution resolves the variant and quote for the state's current
// attributes. On failure the previous variant and quote are kept and marked
// stale rather than cleared. Reports whether a fresh quote was attached.
func (s *SelectionService) applyResolution(ctx context.Context, product *domain.Product, state *domain.SelectionState) bool {
	variant, _, err := s.resolveVariant(ctx, product, state.SelectedColor, state.SelectedSize)
	if err != nil {
		state.VariantStale = true
		state.QuoteStale = state.Quote != nil
		return false
	}

	state.SelectedVariant = variant
	state.VariantStale = false

	quote, err := s.priceQuote(ctx, product.ID, variant, state.Quantity)
	if err != nil {
		state.QuoteStale = state.Quote != nil
		return false
	}

	state.Quote = quote
	state.QuoteStale = false
	return true
}

// saveMutation bumps the revision and saves. A lost revision race surfaces
// as repository.ErrRevisionConflict for the caller to resolve.
func (s *SelectionService) saveMutation(ctx context.Context, state *domain.SelectionState, expected int64) error {
	state.Revision = expected + 1
	state.UpdatedAt = time.Now().UTC()

	if err := s.repo.SaveIfRevision(ctx, state, expected); err != nil {
		if errors.Is(err, repository.ErrRevisionConflict) {
			return err
		}
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

// lostRace handles a save that lost the revision race to a concurrent
// mutation. The stale result is discarded and the winning state returned,
// so the last selection the store accepted is what the caller sees.
func (s *SelectionService) lostRace(ctx context.Context, sessionID string) (*domain.SelectionState, error) {
	current, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "stale selection discarded, newer mutation won",
		slog.String("session_id", sessionID),
		slog.Int64("revision", current.Revision),
	)

	return current, nil
}

// publishUpdated publishes change events best-effort; a broker outage never
// fails the user-facing operation.
func (s *SelectionService) publishUpdated(ctx context.Context, state *domain.SelectionState, quoteUpdated bool) {
	if err := s.producer.PublishSelectionUpdated(ctx, state); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish selection.updated event",
			slog.String("session_id", state.SessionID),
			slog.String("error", err.Error()),
		)
	}

	if !quoteUpdated {
		return
	}
	if err := s.producer.PublishQuoteUpdated(ctx, state); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish selection.quote_updated event",
			slog.String("session_id", state.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

// colorAxis is the product's declared color list, falling back to the colors
// derived from variants.
func colorAxis(product *domain.Product) []string {
	if len(product.Colors) > 0 {
		return product.Colors
	}
	return product.AvailableColors()
}

// sizeAxis is the product's declared size list, falling back to the sizes
// derived from variants.
func sizeAxis(product *domain.Product) []string {
	if len(product.Sizes) > 0 {
		return product.Sizes
	}
	return product.AvailableSizes()
}
