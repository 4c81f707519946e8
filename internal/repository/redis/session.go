package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopcraft/selection/internal/domain"
	"github.com/shopcraft/selection/internal/repository"
	apperrors "github.com/shopcraft/selection/pkg/errors"
)

const sessionKeyPrefix = "selection:session:"

// saveIfRevisionScript compares the revision of the stored JSON against the
// expected value before overwriting. A missing key is treated as revision -1
// so the first write (revision 0, expected -1) succeeds.
var saveIfRevisionScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local expected = tonumber(ARGV[2])
if current == false then
  if expected ~= -1 then
    return 0
  end
else
  local decoded = cjson.decode(current)
  if tonumber(decoded['revision']) ~= expected then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// SessionRepository implements repository.SessionRepository using Redis.
type SessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionRepository creates a Redis-backed session repository. Sessions
// expire after the given TTL and every save refreshes it.
func NewSessionRepository(client *redis.Client, ttl time.Duration) *SessionRepository {
	return &SessionRepository{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a selection state by session ID.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.SelectionState, error) {
	key := sessionKeyPrefix + sessionID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("session", sessionID)
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var state domain.SelectionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &state, nil
}

// Save persists a selection state unconditionally with the configured TTL.
func (r *SessionRepository) Save(ctx context.Context, state *domain.SelectionState) error {
	key := sessionKeyPrefix + state.SessionID

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}

	return nil
}

// SaveIfRevision persists the state only if the stored revision still equals
// expected. Pass -1 for a session that must not exist yet.
func (r *SessionRepository) SaveIfRevision(ctx context.Context, state *domain.SelectionState, expected int64) error {
	key := sessionKeyPrefix + state.SessionID

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := saveIfRevisionScript.Run(ctx, r.client,
		[]string{key}, data, expected, r.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis cas session: %w", err)
	}
	if ok == 0 {
		return repository.ErrRevisionConflict
	}

	return nil
}

// Delete removes a selection state by session ID.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	key := sessionKeyPrefix + sessionID

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}

	return nil
}

// Ping checks Redis connectivity for the readiness probe.
func (r *SessionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
