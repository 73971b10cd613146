package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrIdempotencyInFlight means a request with the same key is still running.
var ErrIdempotencyInFlight = errors.New("idempotent request still in progress")

const idempotencyPending = "pending"

// StoredResponse is the replayable outcome of a finished request.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// IdempotencyStore remembers write responses by client-supplied key so a
// retried request replays the first outcome instead of posting twice.
type IdempotencyStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewIdempotencyStore constructs the store. Keys live for ttl.
func NewIdempotencyStore(client redis.UniversalClient, ledgerID string, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, prefix: "books:" + ledgerID + ":idem:", ttl: ttl}
}

// Begin reserves key. It returns the stored response when the key already
// completed, ErrIdempotencyInFlight when it is reserved, and nil, nil when
// the caller now owns the key.
func (s *IdempotencyStore) Begin(ctx context.Context, key string) (*StoredResponse, error) {
	if key == "" {
		return nil, errors.New("idempotency key required")
	}
	ok, err := s.client.SetNX(ctx, s.prefix+key, idempotencyPending, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency: reserve: %w", err)
	}
	if ok {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; try once more.
		return s.Begin(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: load: %w", err)
	}
	if string(raw) == idempotencyPending {
		return nil, ErrIdempotencyInFlight
	}
	var stored StoredResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("idempotency: decode: %w", err)
	}
	return &stored, nil
}

// Complete records the response for key.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, resp StoredResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, payload, s.ttl).Err()
}

// Release removes a reservation, typically after a failure worth retrying.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	return s.client.Del(ctx, s.prefix+key).Err()
}
