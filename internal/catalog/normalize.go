// Package catalog ingests payloads from the remote catalog/pricing service
// and converts them into the canonical schema in internal/domain.
//
// The remote service emits field names in either lowerCamel or PascalCase
// depending on the endpoint and deployment; normalization checks both
// conventions exactly once, here, so no downstream component ever re-checks
// alternate field names.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/shopcraft/selection/internal/domain"
	apperrors "github.com/shopcraft/selection/pkg/errors"
)

// NormalizeProduct converts a raw catalog payload into a canonical Product.
// Missing optional fields never fail; a payload that is not a well-formed
// JSON object, or that lacks a product ID, yields ErrMalformedCatalog.
// A missing variants key yields an empty variant sequence.
func NormalizeProduct(raw []byte) (*domain.Product, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, apperrors.MalformedCatalog(err)
	}

	p := &domain.Product{
		ID:          pickString(obj, "id", "Id"),
		Name:        pickString(obj, "name", "Name"),
		Description: pickString(obj, "description", "Description"),
		ImageURL:    productImageURL(obj),
		Variants:    []domain.Variant{},
	}
	if p.ID == "" {
		return nil, apperrors.MalformedCatalog(fmt.Errorf("missing product id"))
	}

	if attrs := pickObject(obj, "attributes", "Attributes"); attrs != nil {
		p.Colors = attributeNames(attrs, "colors", "Colors")
		p.Sizes = attributeNames(attrs, "sizes", "Sizes")
	}

	for _, rawVariant := range pickArray(obj, "variants", "Variants") {
		vObj, ok := rawVariant.(map[string]any)
		if !ok {
			continue
		}
		p.Variants = append(p.Variants, normalizeVariantObject(vObj))
	}

	return p, nil
}

// NormalizeVariant converts a raw single-variant payload (as returned by the
// variant-by-attributes endpoint) into a canonical Variant.
func NormalizeVariant(raw []byte) (*domain.Variant, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, apperrors.MalformedCatalog(err)
	}

	v := normalizeVariantObject(obj)
	if v.ID == "" {
		return nil, apperrors.MalformedCatalog(fmt.Errorf("missing variant id"))
	}
	return &v, nil
}

// NormalizePricing extracts unit and total prices from a raw pricing payload,
// accepting snake_case, lowerCamel, or PascalCase keys.
func NormalizePricing(raw []byte) (unit, total decimal.Decimal, err error) {
	obj, decodeErr := decodeObject(raw)
	if decodeErr != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("pricing payload: %w", decodeErr)
	}

	unit, ok := pickDecimal(obj, "unit_price", "unitPrice", "UnitPrice")
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("pricing payload: missing unit price")
	}
	total, ok = pickDecimal(obj, "total_price", "totalPrice", "TotalPrice")
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("pricing payload: missing total price")
	}
	return unit, total, nil
}

func normalizeVariantObject(obj map[string]any) domain.Variant {
	v := domain.Variant{
		ID:       pickString(obj, "id", "Id"),
		Name:     pickString(obj, "name", "Name"),
		Number:   pickString(obj, "number", "Number"),
		ImageURL: pickString(obj, "imageUrl", "ImageUrl"),
	}

	// Flat color/size fields win over the nested attributes object.
	v.Color = pickString(obj, "color", "Color")
	v.Size = pickString(obj, "size", "Size")
	if attrs := pickObject(obj, "attributes", "Attributes"); attrs != nil {
		if v.Color == "" {
			v.Color = pickString(attrs, "color", "Color")
		}
		if v.Size == "" {
			v.Size = pickString(attrs, "size", "Size")
		}
	}

	for _, rawTier := range pickArray(obj, "prices", "Prices") {
		tObj, ok := rawTier.(map[string]any)
		if !ok {
			continue
		}
		tier, ok := normalizeTier(tObj)
		if !ok {
			continue
		}
		v.Tiers = append(v.Tiers, tier)
	}

	return v
}

func normalizeTier(obj map[string]any) (domain.PriceTier, bool) {
	price, ok := pickDecimal(obj, "price", "Price")
	if !ok || price.IsNegative() {
		return domain.PriceTier{}, false
	}

	tier := domain.PriceTier{Price: price}

	// Quantity range comes either nested under a quantity object or flat.
	if qty := pickObject(obj, "quantity", "Quantity"); qty != nil {
		tier.From = pickInt(qty, "from", "From")
		tier.To = pickInt(qty, "to", "To")
	} else {
		tier.From = pickInt(obj, "from", "From")
		tier.To = pickInt(obj, "to", "To")
	}

	return tier, true
}

func productImageURL(obj map[string]any) string {
	if url := pickString(obj, "mainImage", "MainImage"); url != "" {
		return url
	}
	if images := pickArray(obj, "images", "Images"); len(images) > 0 {
		if url, ok := images[0].(string); ok {
			return url
		}
	}
	return pickString(obj, "imageUrl", "ImageUrl")
}

// attributeNames flattens a declared attribute list whose entries are either
// plain strings or objects with a name field.
func attributeNames(attrs map[string]any, keys ...string) []string {
	var names []string
	for _, entry := range pickArray(attrs, keys...) {
		switch val := entry.(type) {
		case string:
			if val != "" {
				names = append(names, val)
			}
		case map[string]any:
			if name := pickString(val, "name", "Name"); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("payload is null")
	}
	return obj, nil
}

// pickString returns the first non-empty string value among the keys.
func pickString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func pickObject(obj map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if m, ok := obj[key].(map[string]any); ok {
			return m
		}
	}
	return nil
}

func pickArray(obj map[string]any, keys ...string) []any {
	for _, key := range keys {
		if a, ok := obj[key].([]any); ok {
			return a
		}
	}
	return nil
}

func pickDecimal(obj map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, key := range keys {
		if n, ok := obj[key].(json.Number); ok {
			if d, err := decimal.NewFromString(n.String()); err == nil {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

func pickInt(obj map[string]any, keys ...string) int {
	for _, key := range keys {
		if n, ok := obj[key].(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		}
	}
	return 0
}
