package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopcraft/selection/internal/domain"
	"github.com/shopcraft/selection/internal/event"
	redisrepo "github.com/shopcraft/selection/internal/repository/redis"
	apperrors "github.com/shopcraft/selection/pkg/errors"
	pkgkafka "github.com/shopcraft/selection/pkg/kafka"
	"github.com/shopcraft/selection/pkg/logger"
)

// fakeCatalog is a controllable in-memory stand-in for the remote catalog.
type fakeCatalog struct {
	product    *domain.Product
	productErr error
	variantErr error
	pricingErr error

	// pricingOverride, when set, wins over tier-derived remote pricing.
	pricingOverride *domain.PriceQuote

	// remoteVariant, when set, is served for matching attributes even when
	// the product carries no local variant data.
	remoteVariant *domain.Variant

	// onFetch runs at the start of FetchProduct, letting tests interleave
	// concurrent writes with a mutation in flight.
	onFetch func()
}

func (f *fakeCatalog) FetchProduct(_ context.Context, productID string) (*domain.Product, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.productErr != nil {
		return nil, f.productErr
	}
	if f.product == nil || f.product.ID != productID {
		return nil, apperrors.NotFound("product", productID)
	}
	return f.product, nil
}

func (f *fakeCatalog) VariantByAttributes(_ context.Context, productID, color, size string) (*domain.Variant, error) {
	if f.variantErr != nil {
		return nil, f.variantErr
	}
	if f.remoteVariant != nil && f.remoteVariant.Color == color && f.remoteVariant.Size == size {
		return f.remoteVariant, nil
	}
	if f.product == nil || f.product.ID != productID {
		return nil, apperrors.NotFound("product", productID)
	}
	v := f.product.VariantByAttributes(color, size)
	if v == nil {
		return nil, apperrors.NotFound("variant", color+"/"+size)
	}
	return v, nil
}

func (f *fakeCatalog) Pricing(_ context.Context, _, variantID string, quantity int) (*domain.PriceQuote, error) {
	if f.pricingErr != nil {
		return nil, f.pricingErr
	}
	if f.pricingOverride != nil {
		q := *f.pricingOverride
		q.Quantity = quantity
		return &q, nil
	}
	for i := range f.product.Variants {
		v := &f.product.Variants[i]
		if v.ID != variantID {
			continue
		}
		tier := v.TierFor(quantity)
		if tier == nil {
			return nil, apperrors.PriceUnavailable(variantID)
		}
		return &domain.PriceQuote{
			UnitPrice:  tier.Price,
			TotalPrice: tier.Price.Mul(decimal.NewFromInt(int64(quantity))),
			Quantity:   quantity,
			Source:     domain.QuoteSourceRemote,
		}, nil
	}
	return nil, apperrors.NotFound("variant", variantID)
}

func testProduct() *domain.Product {
	return &domain.Product{
		ID:     "prod-1",
		Name:   "Trail Jacket",
		Colors: []string{"Blue", "Red"},
		Sizes:  []string{"S", "M"},
		Variants: []domain.Variant{
			{
				ID: "v-blue-s", Color: "Blue", Size: "S",
				Tiers: []domain.PriceTier{
					{From: 1, To: 9, Price: decimal.NewFromInt(12)},
					{From: 10, To: 99, Price: decimal.NewFromInt(8)},
				},
			},
			{
				ID: "v-blue-m", Color: "Blue", Size: "M",
				Tiers: []domain.PriceTier{
					{From: 1, To: 9, Price: decimal.NewFromInt(14)},
				},
			},
			{
				ID: "v-red-m", Color: "Red", Size: "M",
				Tiers: []domain.PriceTier{
					{From: 1, To: 9, Price: decimal.NewFromInt(15)},
				},
			},
		},
	}
}

func setupService(t *testing.T, catalog *fakeCatalog) (*SelectionService, *redisrepo.SessionRepository) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := logger.New("selection-test", "error")
	repo := redisrepo.NewSessionRepository(client, time.Hour)
	cache := redisrepo.NewProductCache(client, time.Hour)

	// Kafka producer pointing at nothing; publishes fail and are logged only.
	kafkaProducer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig([]string{"localhost:9092"}), log)
	producer := event.NewProducer(kafkaProducer, log)

	return NewSelectionService(repo, cache, catalog, producer, log), repo
}

func TestStartSession_Defaults(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)

	state, err := svc.StartSession(context.Background(), "prod-1")
	require.NoError(t, err)

	assert.NotEmpty(t, state.SessionID)
	assert.Equal(t, "Blue", state.SelectedColor)
	assert.Equal(t, "S", state.SelectedSize)
	assert.Equal(t, 1, state.Quantity)
	assert.Equal(t, int64(0), state.Revision)

	require.NotNil(t, state.SelectedVariant)
	assert.Equal(t, "v-blue-s", state.SelectedVariant.ID)
	assert.False(t, state.VariantStale)

	require.NotNil(t, state.Quote)
	assert.True(t, state.Quote.UnitPrice.Equal(decimal.NewFromInt(12)))
	assert.True(t, state.Quote.TotalPrice.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, domain.QuoteSourceRemote, state.Quote.Source)
}

func TestStartSession_ProductNotFound(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)

	_, err := svc.StartSession(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStartSession_CacheFallbackWhenRemoteDown(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	// First load populates the cache.
	_, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)

	// Remote goes down; a new session is still served from the cached
	// snapshot with tier pricing.
	catalog.productErr = apperrors.ServiceUnavailable("catalog down")
	catalog.variantErr = apperrors.ServiceUnavailable("catalog down")
	catalog.pricingErr = apperrors.ServiceUnavailable("catalog down")

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)
	require.NotNil(t, state.SelectedVariant)
	assert.Equal(t, "v-blue-s", state.SelectedVariant.ID)
	require.NotNil(t, state.Quote)
	assert.Equal(t, domain.QuoteSourceTier, state.Quote.Source)
}

func TestSelectColor_SnapsSizeToAvailable(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, "S", state.SelectedSize)

	// Red has no S variant, so the size snaps to M.
	state, err = svc.SelectColor(ctx, state.SessionID, "Red")
	require.NoError(t, err)

	assert.Equal(t, "Red", state.SelectedColor)
	assert.Equal(t, "M", state.SelectedSize)
	require.NotNil(t, state.SelectedVariant)
	assert.Equal(t, "v-red-m", state.SelectedVariant.ID)
	assert.False(t, state.VariantStale)
	assert.Equal(t, int64(1), state.Revision)
}

func TestSelectColor_KeepsCompatibleSize(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)

	state, err = svc.SelectSize(ctx, state.SessionID, "M")
	require.NoError(t, err)
	require.Equal(t, "M", state.SelectedSize)

	state, err = svc.SelectColor(ctx, state.SessionID, "Red")
	require.NoError(t, err)
	assert.Equal(t, "M", state.SelectedSize)
	assert.Equal(t, "v-red-m", state.SelectedVariant.ID)
}

func TestSelectColor_Unknown(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)

	_, err = svc.SelectColor(ctx, state.SessionID, "Chartreuse")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSelectSize_SnapsColorToAvailable(t *testing.T) {
	product := testProduct()
	// Only Red exists in size L.
	product.Sizes = []string{"S", "M", "L"}
	product.Variants = append(product.Variants, domain.Variant{
		ID: "v-red-l", Color: "Red", Size: "L",
		Tiers: []domain.PriceTier{{From: 1, To: 9, Price: decimal.NewFromInt(16)}},
	})
	catalog := &fakeCatalog{product: product}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)
	require.Equal(t, "Blue", state.SelectedColor)

	state, err = svc.SelectSize(ctx, state.SessionID, "L")
	require.NoError(t, err)
	assert.Equal(t, "Red", state.SelectedColor)
	assert.Equal(t, "v-red-l", state.SelectedVariant.ID)
}

func TestSelectColor_RemoteDown_LocalFallback(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)

	catalog.variantErr = apperrors.ServiceUnavailable("catalog down")
	catalog.pricingErr = apperrors.ServiceUnavailable("pricing down")

	state, err = svc.SelectColor(ctx, state.SessionID, "Red")
	require.NoError(t, err)

	require.NotNil(t, state.SelectedVariant)
	assert.Equal(t, "v-red-m", state.SelectedVariant.ID)
	assert.False(t, state.VariantStale)
	require.NotNil(t, state.Quote)
	assert.Equal(t, domain.QuoteSourceTier, state.Quote.Source)
	assert.True(t, state.Quote.UnitPrice.Equal(decimal.NewFromInt(15)))
}

func TestSetQuantity_TierFallbackPricing(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)

	catalog.pricingErr = apperrors.ServiceUnavailable("pricing down")

	// Quantity 15 falls in the 10-99 tier at unit price 8.
	state, err = svc.SetQuantity(ctx, state.SessionID, 15)
	require.NoError(t, err)

	assert.Equal(t, 15, state.Quantity)
	require.NotNil(t, state.Quote)
	assert.Equal(t, domain.QuoteSourceTier, state.Quote.Source)
	assert.True(t, state.Quote.UnitPrice.Equal(decimal.NewFromInt(8)))
	assert.True(t, state.Quote.TotalPrice.Equal(decimal.NewFromInt(120)))
	assert.False(t, state.QuoteStale)
}

func TestSetQuantity_Clamps(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)

	state, err = svc.SetQuantity(ctx, state.SessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Quantity)

	state, err = svc.SetQuantity(ctx, state.SessionID, 1000)
	require.NoError(t, err)
	assert.Equal(t, 999, state.Quantity)
	require.NotNil(t, state.Quote)
	assert.Equal(t, 999, state.Quote.Quantity)
}

func TestSetQuantity_RemotePricingAuthoritative(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	// Remote price disagrees with local tiers; the remote answer wins.
	catalog.pricingOverride = &domain.PriceQuote{
		UnitPrice:  decimal.RequireFromString("11.50"),
		TotalPrice: decimal.RequireFromString("34.50"),
		Source:     domain.QuoteSourceRemote,
	}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)

	state, err = svc.SetQuantity(ctx, state.SessionID, 3)
	require.NoError(t, err)

	require.NotNil(t, state.Quote)
	assert.Equal(t, domain.QuoteSourceRemote, state.Quote.Source)
	assert.True(t, state.Quote.UnitPrice.Equal(decimal.RequireFromString("11.50")))
}

func TestSelection_StickyVariantOnResolutionFailure(t *testing.T) {
	product := testProduct()
	catalog := &fakeCatalog{product: product}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)
	previousVariant := state.SelectedVariant.ID
	previousTotal := state.Quote.TotalPrice

	// Remote is down and Red/S exists in no local variant either: the
	// selection applies but keeps the previous variant and quote, marked
	// stale.
	catalog.variantErr = apperrors.ServiceUnavailable("catalog down")
	product.Variants = product.Variants[:1] // only Blue/S remains locally

	state, err = svc.SelectSize(ctx, state.SessionID, "M")
	require.NoError(t, err)

	assert.Equal(t, "M", state.SelectedSize)
	assert.True(t, state.VariantStale)
	assert.True(t, state.QuoteStale)
	require.NotNil(t, state.SelectedVariant)
	assert.Equal(t, previousVariant, state.SelectedVariant.ID)
	assert.True(t, state.Quote.TotalPrice.Equal(previousTotal))
	assert.Equal(t, int64(1), state.Revision)
}

func TestSelection_StaleFlagsClearOnRecovery(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)

	catalog.variantErr = apperrors.ServiceUnavailable("down")
	catalog.product = &domain.Product{ID: "prod-1", Colors: []string{"Blue", "Red"}, Sizes: []string{"S", "M"}}

	state, err = svc.SelectColor(ctx, state.SessionID, "Red")
	require.NoError(t, err)
	require.True(t, state.VariantStale)

	// Remote recovers.
	catalog.product = testProduct()
	catalog.variantErr = nil

	state, err = svc.SelectColor(ctx, state.SessionID, "Red")
	require.NoError(t, err)
	assert.False(t, state.VariantStale)
	assert.False(t, state.QuoteStale)
	assert.Equal(t, "v-red-m", state.SelectedVariant.ID)
}

func TestMutation_ConcurrentWriterWins(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, repo := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)

	// Another writer moves the stored state forward between this mutation's
	// read and its save; the slower mutation loses and gets the winner's
	// state back.
	catalog.onFetch = func() {
		concurrent, getErr := repo.Get(ctx, state.SessionID)
		require.NoError(t, getErr)
		concurrent.Revision++
		concurrent.Quantity = 7
		require.NoError(t, repo.Save(ctx, concurrent))
		catalog.onFetch = nil
	}

	returned, err := svc.SelectColor(ctx, state.SessionID, "Red")
	require.NoError(t, err)
	assert.Equal(t, "Blue", returned.SelectedColor)
	assert.Equal(t, 7, returned.Quantity)
	assert.Equal(t, int64(1), returned.Revision)

	got, err := repo.Get(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Blue", got.SelectedColor)
	assert.Equal(t, int64(1), got.Revision)
}

func TestGetSession_NotFound(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)

	_, err := svc.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestEndSession(t *testing.T) {
	catalog := &fakeCatalog{product: testProduct()}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)

	require.NoError(t, svc.EndSession(ctx, state.SessionID))

	_, err = svc.GetSession(ctx, state.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSelectColor_NoSizesForColor(t *testing.T) {
	product := testProduct()
	// Red variants removed entirely: color Red is declared but has no
	// purchasable size.
	product.Variants = product.Variants[:2]
	catalog := &fakeCatalog{product: product}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-1")
	require.NoError(t, err)

	state, err = svc.SelectColor(ctx, state.SessionID, "Red")
	require.NoError(t, err)

	assert.Equal(t, "Red", state.SelectedColor)
	assert.Empty(t, state.SelectedSize)
	assert.True(t, state.VariantStale)
}

func tierlessProduct() *domain.Product {
	return &domain.Product{
		ID:     "prod-2",
		Name:   "Canvas Tote",
		Colors: []string{"Natural"},
		Sizes:  []string{"One Size"},
		Variants: []domain.Variant{
			{ID: "v-tote", Color: "Natural", Size: "One Size"},
		},
	}
}

func TestStartSession_NoTiersAndRemotePricingDown(t *testing.T) {
	catalog := &fakeCatalog{
		product:    tierlessProduct(),
		pricingErr: apperrors.ServiceUnavailable("pricing down"),
	}
	svc, _ := setupService(t, catalog)

	state, err := svc.StartSession(context.Background(), "prod-2")
	require.NoError(t, err)

	require.NotNil(t, state.SelectedVariant)
	assert.Equal(t, "v-tote", state.SelectedVariant.ID)
	assert.False(t, state.VariantStale)

	// No remote price and no tiers to fall back on: no quote at all, and
	// nothing to mark stale.
	assert.Nil(t, state.Quote)
	assert.False(t, state.QuoteStale)
}

func TestSetQuantity_NoTiersRetainsPriorQuote(t *testing.T) {
	catalog := &fakeCatalog{
		product: tierlessProduct(),
		pricingOverride: &domain.PriceQuote{
			UnitPrice:  decimal.RequireFromString("19.90"),
			TotalPrice: decimal.RequireFromString("19.90"),
			Source:     domain.QuoteSourceRemote,
		},
	}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-2")
	require.NoError(t, err)
	require.NotNil(t, state.Quote)

	catalog.pricingOverride = nil
	catalog.pricingErr = apperrors.ServiceUnavailable("pricing down")

	got, err := svc.SetQuantity(ctx, state.SessionID, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, got.Quantity)
	require.NotNil(t, got.Quote)
	assert.True(t, got.Quote.UnitPrice.Equal(decimal.RequireFromString("19.90")))
	assert.True(t, got.QuoteStale)
	assert.Equal(t, int64(1), got.Revision)
}

func TestSelect_RemoteOnlyVariantsKeepAttributes(t *testing.T) {
	catalog := &fakeCatalog{
		product: &domain.Product{
			ID:     "prod-3",
			Name:   "Alpine Shell",
			Colors: []string{"Blue", "Red"},
			Sizes:  []string{"S", "M"},
		},
		remoteVariant: &domain.Variant{ID: "v-remote-red-m", Color: "Red", Size: "M"},
	}
	svc, _ := setupService(t, catalog)
	ctx := context.Background()

	state, err := svc.StartSession(ctx, "prod-3")
	require.NoError(t, err)
	assert.Equal(t, "Blue", state.SelectedColor)
	assert.Equal(t, "S", state.SelectedSize)
	assert.True(t, state.VariantStale)

	// Without local variant data there is nothing to snap against, so the
	// chosen attributes stand and resolution is left to the remote catalog.
	got, err := svc.SelectSize(ctx, state.SessionID, "M")
	require.NoError(t, err)
	assert.Equal(t, "Blue", got.SelectedColor)
	assert.Equal(t, "M", got.SelectedSize)

	got, err = svc.SelectColor(ctx, got.SessionID, "Red")
	require.NoError(t, err)
	assert.Equal(t, "M", got.SelectedSize)
	require.NotNil(t, got.SelectedVariant)
	assert.Equal(t, "v-remote-red-m", got.SelectedVariant.ID)
	assert.False(t, got.VariantStale)
}
