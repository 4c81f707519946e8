package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quantity bounds for a selection. Out-of-range values are clamped, never
// propagated downstream.
const (
	MinQuantity = 1
	MaxQuantity = 999
)

// Price quote sources.
const (
	QuoteSourceRemote = "remote"
	QuoteSourceTier   = "tier"
)

// PriceQuote is the priced outcome of a resolved selection.
type PriceQuote struct {
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Quantity   int             `json:"quantity"`
	Source     string          `json:"source"`
}

// SelectionState holds a session's current color, size, quantity, resolved
// variant, and active price quote. It is owned by the selection service and
// mutated only through its operations; Product data it references is shared
// read-only.
//
// SelectedVariant and Quote are sticky: when a resolution fails they keep
// their previous value and the corresponding stale flag is set, so the
// rendering collaborator never sees a transient empty state.
type SelectionState struct {
	SessionID       string      `json:"session_id"`
	ProductID       string      `json:"product_id"`
	SelectedColor   string      `json:"selected_color,omitempty"`
	SelectedSize    string      `json:"selected_size,omitempty"`
	Quantity        int         `json:"quantity"`
	SelectedVariant *Variant    `json:"selected_variant,omitempty"`
	Quote           *PriceQuote `json:"quote,omitempty"`
	VariantStale    bool        `json:"variant_stale,omitempty"`
	QuoteStale      bool        `json:"quote_stale,omitempty"`

	// Revision increments on every applied mutation. A resolution computed
	// against revision N is discarded if the stored state has moved past N
	// by the time it completes (last selection wins).
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSelectionState creates the initial selection for a freshly loaded
// product. Defaults come from the product's declared attribute lists when
// present, otherwise from the first variant carrying the attribute; either
// may end up unset for a product without that axis. Quantity starts at 1.
// Pure; performs no remote lookups.
func NewSelectionState(sessionID string, product *Product, now time.Time) *SelectionState {
	state := &SelectionState{
		SessionID: sessionID,
		ProductID: product.ID,
		Quantity:  MinQuantity,
		Revision:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if len(product.Colors) > 0 {
		state.SelectedColor = product.Colors[0]
	} else if colors := product.AvailableColors(); len(colors) > 0 {
		state.SelectedColor = colors[0]
	}

	if len(product.Sizes) > 0 {
		state.SelectedSize = product.Sizes[0]
	} else if sizes := product.AvailableSizes(); len(sizes) > 0 {
		state.SelectedSize = sizes[0]
	}

	return state
}

// ClampQuantity forces a quantity into [MinQuantity, MaxQuantity].
func ClampQuantity(q int) int {
	if q < MinQuantity {
		return MinQuantity
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return q
}
