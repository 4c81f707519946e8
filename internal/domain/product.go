package domain

import (
	"github.com/shopspring/decimal"
)

// Product is the canonical in-memory representation of a catalog product.
// It is produced once per load by the catalog normalizer; all other
// components read it and never re-check alternate payload shapes.
// Immutable after normalization.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Colors      []string  `json:"colors,omitempty"`
	Sizes       []string  `json:"sizes,omitempty"`
	Variants    []Variant `json:"variants"`
}

// Variant is one concretely purchasable color/size combination of a product.
// The set of (Color, Size) pairs across a product's variants need not form a
// full cross-product; some combinations legitimately do not exist.
type Variant struct {
	ID       string      `json:"id"`
	Name     string      `json:"name,omitempty"`
	Number   string      `json:"number,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
	Color    string      `json:"color,omitempty"`
	Size     string      `json:"size,omitempty"`
	Tiers    []PriceTier `json:"tiers,omitempty"`
}

// PriceTier is an inclusive quantity range with a per-unit price. Tiers of a
// variant are non-overlapping; for any quantity at most one matches, and the
// first tier is the designated fallback when none does.
type PriceTier struct {
	From  int             `json:"from"`
	To    int             `json:"to"`
	Price decimal.Decimal `json:"price"`
}

// Contains reports whether the quantity falls within the tier's range.
func (t PriceTier) Contains(quantity int) bool {
	return quantity >= t.From && quantity <= t.To
}

// VariantByAttributes returns the variant exactly matching the (color, size)
// pair, or nil when no such variant exists.
func (p *Product) VariantByAttributes(color, size string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].Color == color && p.Variants[i].Size == size {
			return &p.Variants[i]
		}
	}
	return nil
}

// AvailableColors returns the distinct colors declared across variants, in
// variant declaration order. Empty color values are skipped.
func (p *Product) AvailableColors() []string {
	return distinctAttribute(p.Variants, func(v *Variant) string { return v.Color })
}

// AvailableSizes returns the distinct sizes declared across variants, in
// variant declaration order. Empty size values are skipped.
func (p *Product) AvailableSizes() []string {
	return distinctAttribute(p.Variants, func(v *Variant) string { return v.Size })
}

// SizesForColor returns the distinct sizes available for the given color, in
// variant declaration order. The slice is empty when no variant has the color.
func (p *Product) SizesForColor(color string) []string {
	var sizes []string
	seen := make(map[string]struct{})
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.Color != color || v.Size == "" {
			continue
		}
		if _, ok := seen[v.Size]; ok {
			continue
		}
		seen[v.Size] = struct{}{}
		sizes = append(sizes, v.Size)
	}
	return sizes
}

// ColorsForSize returns the distinct colors available for the given size, in
// variant declaration order.
func (p *Product) ColorsForSize(size string) []string {
	var colors []string
	seen := make(map[string]struct{})
	for i := range p.Variants {
		v := &p.Variants[i]
		if v.Size != size || v.Color == "" {
			continue
		}
		if _, ok := seen[v.Color]; ok {
			continue
		}
		seen[v.Color] = struct{}{}
		colors = append(colors, v.Color)
	}
	return colors
}

// TierFor returns the price tier covering the quantity, falling back to the
// first tier when no range matches. Returns nil when the variant has no tiers.
func (v *Variant) TierFor(quantity int) *PriceTier {
	if len(v.Tiers) == 0 {
		return nil
	}
	for i := range v.Tiers {
		if v.Tiers[i].Contains(quantity) {
			return &v.Tiers[i]
		}
	}
	return &v.Tiers[0]
}

func distinctAttribute(variants []Variant, attr func(*Variant) string) []string {
	var values []string
	seen := make(map[string]struct{})
	for i := range variants {
		val := attr(&variants[i])
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		values = append(values, val)
	}
	return values
}
