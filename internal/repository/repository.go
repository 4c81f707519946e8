package repository

import (
	"context"
	"errors"

	"github.com/shopcraft/selection/internal/domain"
)

// ErrRevisionConflict is returned by SaveIfRevision when the stored state has
// moved past the expected revision. The caller's resolution is stale and must
// be discarded.
var ErrRevisionConflict = errors.New("selection revision conflict")

// SessionRepository persists per-session selection state.
type SessionRepository interface {
	Get(ctx context.Context, sessionID string) (*domain.SelectionState, error)
	// Save stores the state unconditionally, bumping UpdatedAt handling to
	// the caller.
	Save(ctx context.Context, state *domain.SelectionState) error
	// SaveIfRevision stores the state only if the currently stored revision
	// equals expected (or no state exists and expected is the state's own
	// revision minus one). Returns ErrRevisionConflict otherwise.
	SaveIfRevision(ctx context.Context, state *domain.SelectionState, expected int64) error
	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}

// ProductCache keeps the latest normalized catalog snapshot per product so
// selections keep working while the remote catalog is unreachable.
type ProductCache interface {
	Get(ctx context.Context, productID string) (*domain.Product, error)
	Set(ctx context.Context, product *domain.Product) error
}
