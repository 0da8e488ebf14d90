package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StubGateway stands in for a real processor: every charge succeeds after a
// delay drawn from [minDelay, maxDelay].
type StubGateway struct {
	minDelay time.Duration
	maxDelay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewStubGateway(minDelay, maxDelay time.Duration) *StubGateway {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &StubGateway{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *StubGateway) Charge(ctx context.Context, req ChargeRequest) (string, error) {
	timer := time.NewTimer(g.delay())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", contextError(ctx.Err())
	case <-timer.C:
		return "txn_" + uuid.NewString(), nil
	}
}

func (g *StubGateway) Refund(ctx context.Context, token string) error {
	return ctx.Err()
}

func (g *StubGateway) delay() time.Duration {
	spread := g.maxDelay - g.minDelay
	if spread <= 0 {
		return g.minDelay
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.minDelay + time.Duration(g.rng.Int63n(int64(spread)+1))
}
