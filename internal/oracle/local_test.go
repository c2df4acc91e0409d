package oracle

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/lox/roulette/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type answer struct {
	signer     ledger.Identity
	round      uint64
	randomness Seed
}

type fakeResolver struct {
	mu      sync.Mutex
	answers []answer
	err     error
}

func (f *fakeResolver) AdvanceRound(_ context.Context, signer ledger.Identity, round uint64, randomness Seed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer{signer, round, randomness})
	return f.err
}

func (f *fakeResolver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.answers)
}

func newLocal(t *testing.T, seed int64) (*Local, *quartz.Mock, *fakeResolver) {
	t.Helper()
	clock := quartz.NewMock(t)
	o := NewLocal(LocalConfig{
		Identity: "oracle",
		Delay:    2 * time.Second,
		Seed:     seed,
		Clock:    clock,
		Logger:   log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel}),
	})
	r := &fakeResolver{}
	o.Bind(r)
	return o, clock, r
}

func request(round uint64) Request {
	return Request{ID: uuid.New(), Round: round, CallerSeed: Seed{byte(round)}, Resolver: "oracle"}
}

func TestLocalDeliversAfterDelay(t *testing.T) {
	ctx := context.Background()
	o, clock, resolver := newLocal(t, 42)

	req := request(1)
	require.NoError(t, o.RequestRandomness(ctx, req))
	assert.Equal(t, 1, o.Pending())

	clock.Advance(time.Second).MustWait(ctx)
	assert.Zero(t, resolver.count())

	clock.Advance(time.Second).MustWait(ctx)
	require.Equal(t, 1, resolver.count())
	got := resolver.answers[0]
	assert.Equal(t, ledger.Identity("oracle"), got.signer)
	assert.Equal(t, uint64(1), got.round)
	assert.Equal(t, o.Randomness(req), got.randomness)
	assert.Zero(t, o.Pending())

	// Delivered requests are not answered again.
	require.NoError(t, o.RequestRandomness(ctx, req))
	assert.Zero(t, o.Pending())
}

func TestLocalDeduplicatesPendingRequests(t *testing.T) {
	ctx := context.Background()
	o, clock, resolver := newLocal(t, 42)

	req := request(1)
	require.NoError(t, o.RequestRandomness(ctx, req))
	require.NoError(t, o.RequestRandomness(ctx, req))
	assert.Equal(t, 1, o.Pending())

	clock.Advance(2 * time.Second).MustWait(ctx)
	assert.Equal(t, 1, resolver.count())
}

func TestLocalRetriesAfterFailedDelivery(t *testing.T) {
	ctx := context.Background()
	o, clock, resolver := newLocal(t, 42)
	resolver.err = errors.New("store unavailable")

	req := request(3)
	require.NoError(t, o.RequestRandomness(ctx, req))
	clock.Advance(2 * time.Second).MustWait(ctx)
	require.Equal(t, 1, resolver.count())

	resolver.mu.Lock()
	resolver.err = nil
	resolver.mu.Unlock()

	require.NoError(t, o.RequestRandomness(ctx, req))
	clock.Advance(2 * time.Second).MustWait(ctx)
	assert.Equal(t, 2, resolver.count())
}

func TestLocalRandomness(t *testing.T) {
	a, _, _ := newLocal(t, 7)
	b, _, _ := newLocal(t, 7)
	c, _, _ := newLocal(t, 8)

	req := request(1)
	assert.Equal(t, a.Randomness(req), b.Randomness(req), "same seed, same answer")
	assert.NotEqual(t, a.Randomness(req), c.Randomness(req))

	other := req
	other.ID = uuid.New()
	assert.NotEqual(t, a.Randomness(req), a.Randomness(other))
}

func TestLocalRequiresResolver(t *testing.T) {
	o := NewLocal(LocalConfig{Identity: "oracle", Clock: quartz.NewMock(t)})
	err := o.RequestRandomness(context.Background(), request(1))
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestLocalStopCancelsPending(t *testing.T) {
	ctx := context.Background()
	o, _, resolver := newLocal(t, 1)
	require.NoError(t, o.RequestRandomness(ctx, request(1)))
	o.Stop()
	assert.Zero(t, o.Pending())
	assert.Zero(t, resolver.count())
}

func TestSeedText(t *testing.T) {
	t.Parallel()

	seed := Seed{0xde, 0xad, 0xbe, 0xef}
	text, err := seed.MarshalText()
	require.NoError(t, err)
	assert.Len(t, text, 64)

	var parsed Seed
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, seed, parsed)

	_, err = ParseSeed("abcd")
	assert.Error(t, err)
	_, err = ParseSeed("zz")
	assert.Error(t, err)
}
