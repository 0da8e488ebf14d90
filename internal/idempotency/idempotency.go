// Package idempotency replays stored responses for repeated POST requests.
package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/merchpit/internal/adapters/redis"
)

var ErrInFlight = errors.New("request with this idempotency key is in progress")

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Idempotency struct {
	store   Store
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl, lockTTL: 30 * time.Second}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

// Begin returns the stored response for key, if any. Otherwise it claims key
// for the caller, who must call Finish when done.
func (i *Idempotency) Begin(ctx context.Context, key string) (*Response, error) {
	if stored, err := i.Get(ctx, key); err != nil || stored != nil {
		return stored, err
	}
	ok, err := i.store.Lock(ctx, key, i.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInFlight
	}
	return nil, nil
}

// Finish stores resp for replay and releases the claim. Server errors are
// not stored so the client can retry them.
func (i *Idempotency) Finish(ctx context.Context, key string, resp Response) error {
	defer i.store.Unlock(ctx, key)
	if resp.Status >= 500 {
		return nil
	}
	return i.Set(ctx, key, resp)
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.store.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, ContentType: stored.ContentType, Result: stored.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.store.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
}
