package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopcraft/selection/internal/domain"
	"github.com/shopcraft/selection/internal/repository"
	apperrors "github.com/shopcraft/selection/pkg/errors"
)

func setupSessionRepo(t *testing.T) (*SessionRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionRepository(client, time.Hour), mr
}

func sampleState() *domain.SelectionState {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.SelectionState{
		SessionID:     "sess-001",
		ProductID:     "prod-1",
		SelectedColor: "Blue",
		SelectedSize:  "S",
		Quantity:      2,
		SelectedVariant: &domain.Variant{
			ID:    "v-1",
			Color: "Blue",
			Size:  "S",
		},
		Quote: &domain.PriceQuote{
			UnitPrice:  decimal.NewFromInt(12),
			TotalPrice: decimal.NewFromInt(24),
			Quantity:   2,
			Source:     domain.QuoteSourceRemote,
		},
		Revision:  3,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSessionRepository_SaveAndGet(t *testing.T) {
	repo, _ := setupSessionRepo(t)
	ctx := context.Background()

	state := sampleState()
	require.NoError(t, repo.Save(ctx, state))

	got, err := repo.Get(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, state.SessionID, got.SessionID)
	assert.Equal(t, "Blue", got.SelectedColor)
	assert.Equal(t, int64(3), got.Revision)
	require.NotNil(t, got.Quote)
	assert.True(t, got.Quote.TotalPrice.Equal(decimal.NewFromInt(24)))
}

func TestSessionRepository_Get_NotFound(t *testing.T) {
	repo, _ := setupSessionRepo(t)

	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionRepository_Save_SetsTTL(t *testing.T) {
	repo, mr := setupSessionRepo(t)

	require.NoError(t, repo.Save(context.Background(), sampleState()))

	ttl := mr.TTL(sessionKeyPrefix + "sess-001")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Hour)
}

func TestSessionRepository_SaveIfRevision_FirstWrite(t *testing.T) {
	repo, _ := setupSessionRepo(t)
	ctx := context.Background()

	state := sampleState()
	state.Revision = 0
	require.NoError(t, repo.SaveIfRevision(ctx, state, -1))

	got, err := repo.Get(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Revision)
}

func TestSessionRepository_SaveIfRevision_FirstWriteConflict(t *testing.T) {
	repo, _ := setupSessionRepo(t)
	ctx := context.Background()

	existing := sampleState()
	require.NoError(t, repo.Save(ctx, existing))

	fresh := sampleState()
	fresh.Revision = 0
	err := repo.SaveIfRevision(ctx, fresh, -1)
	assert.ErrorIs(t, err, repository.ErrRevisionConflict)
}

func TestSessionRepository_SaveIfRevision_Matches(t *testing.T) {
	repo, _ := setupSessionRepo(t)
	ctx := context.Background()

	state := sampleState()
	require.NoError(t, repo.Save(ctx, state))

	updated := sampleState()
	updated.Revision = 4
	updated.SelectedSize = "M"
	require.NoError(t, repo.SaveIfRevision(ctx, updated, 3))

	got, err := repo.Get(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "M", got.SelectedSize)
	assert.Equal(t, int64(4), got.Revision)
}

func TestSessionRepository_SaveIfRevision_StaleDiscarded(t *testing.T) {
	repo, _ := setupSessionRepo(t)
	ctx := context.Background()

	state := sampleState()
	require.NoError(t, repo.Save(ctx, state))

	// A resolution computed against revision 2 arrives after the stored
	// state already moved to 3. It must be rejected and leave the stored
	// state untouched.
	stale := sampleState()
	stale.Revision = 3
	stale.SelectedColor = "Red"
	err := repo.SaveIfRevision(ctx, stale, 2)
	assert.ErrorIs(t, err, repository.ErrRevisionConflict)

	got, err := repo.Get(ctx, state.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Blue", got.SelectedColor)
	assert.Equal(t, int64(3), got.Revision)
}

func TestSessionRepository_Delete(t *testing.T) {
	repo, _ := setupSessionRepo(t)
	ctx := context.Background()

	state := sampleState()
	require.NoError(t, repo.Save(ctx, state))
	require.NoError(t, repo.Delete(ctx, state.SessionID))

	_, err := repo.Get(ctx, state.SessionID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionRepository_Get_CorruptPayload(t *testing.T) {
	repo, mr := setupSessionRepo(t)

	require.NoError(t, mr.Set(sessionKeyPrefix+"sess-bad", "{not json"))

	_, err := repo.Get(context.Background(), "sess-bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSessionRepository_RoundTripPreservesJSON(t *testing.T) {
	repo, mr := setupSessionRepo(t)
	ctx := context.Background()

	state := sampleState()
	require.NoError(t, repo.Save(ctx, state))

	raw, err := mr.Get(sessionKeyPrefix + state.SessionID)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, float64(3), decoded["revision"])
}
