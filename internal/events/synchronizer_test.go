package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet_sync/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) handle(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func newSync(t *testing.T, process string, tr Transport) (*Synchronizer, *recorder) {
	t.Helper()
	s := New(Options{ProcessID: process, ChannelPrefix: "test.", Transport: tr})
	rec := &recorder{}
	s.Subscribe(rec.handle)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, s.Start(ctx))
	return s, rec
}

func TestSelfPublishedEventIsIgnored(t *testing.T) {
	bus := NewMemoryBus()
	p1, rec := newSync(t, "p1", bus.Endpoint())

	p1.Publish(context.Background(), domain.Event{Type: domain.EventBalanceChanged, AccountID: "acc-1"})

	assert.Empty(t, rec.all())
}

func TestEventReachesOtherProcess(t *testing.T) {
	bus := NewMemoryBus()
	p1, rec1 := newSync(t, "p1", bus.Endpoint())
	_, rec2 := newSync(t, "p2", bus.Endpoint())

	p1.Publish(context.Background(), domain.Event{
		Type:      domain.EventBalanceChanged,
		AccountID: "acc-1",
		Amount:    decimal.NewFromInt(42),
	})

	assert.Empty(t, rec1.all())
	got := rec2.all()
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].Origin)
	assert.Equal(t, domain.EventBalanceChanged, got[0].Type)
	assert.NotEmpty(t, got[0].ID)
	assert.True(t, decimal.NewFromInt(42).Equal(got[0].Amount))
}

func TestRedeliveredEventAppliedOnce(t *testing.T) {
	bus := NewMemoryBus()
	p1, _ := newSync(t, "p1", bus.Endpoint())
	_, rec := newSync(t, "p2", bus.Endpoint())

	ev := domain.Event{ID: "fixed", Type: domain.EventGenericNotification, AccountID: "acc-1", Message: "hi"}
	p1.Publish(context.Background(), ev)
	p1.Publish(context.Background(), ev)

	assert.Len(t, rec.all(), 1)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	bus := NewMemoryBus()
	_, rec := newSync(t, "p2", bus.Endpoint())

	require.NoError(t, bus.Endpoint().Publish(context.Background(), "test.balance_changed", []byte("{not json")))

	assert.Empty(t, rec.all())
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := NewMemoryBus()
	p1, _ := newSync(t, "p1", bus.Endpoint())

	s := New(Options{ProcessID: "p2", ChannelPrefix: "test.", Transport: bus.Endpoint()})
	s.Subscribe(func(context.Context, domain.Event) { panic("boom") })
	rec := &recorder{}
	s.Subscribe(rec.handle)
	require.NoError(t, s.Start(context.Background()))

	p1.Publish(context.Background(), domain.Event{Type: domain.EventAccountActivated, AccountID: "acc-1"})

	assert.Len(t, rec.all(), 1)
}

func TestFailedPublishIsSwallowed(t *testing.T) {
	bus := NewMemoryBus()
	endpoint := bus.Endpoint()
	endpoint.SetFail(errors.New("bus down"))
	p1, _ := newSync(t, "p1", endpoint)
	_, rec := newSync(t, "p2", bus.Endpoint())

	assert.NotPanics(t, func() {
		p1.Publish(context.Background(), domain.Event{Type: domain.EventBalanceChanged, AccountID: "acc-1"})
	})
	assert.Empty(t, rec.all())
}

func TestStartTwiceFails(t *testing.T) {
	s, _ := newSync(t, "p1", NewMemoryBus().Endpoint())
	assert.ErrorIs(t, s.Start(context.Background()), ErrStarted)
}

func TestRedisTransportDeliversAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}
	t1 := NewRedisTransport(newClient())
	t2 := NewRedisTransport(newClient())
	t.Cleanup(func() { _ = t1.Close(); _ = t2.Close() })

	p1, _ := newSync(t, "p1", t1)
	_, rec := newSync(t, "p2", t2)

	p1.Publish(context.Background(), domain.Event{Type: domain.EventPaymentNotification, AccountID: "acc-2", Counterparty: "acc-1"})

	assert.Eventually(t, func() bool { return len(rec.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "acc-1", rec.all()[0].Counterparty)
}

func TestSeenSetForgetsOldest(t *testing.T) {
	s := newSeenSet(2)
	assert.True(t, s.addIfAbsent("a"))
	assert.True(t, s.addIfAbsent("b"))
	assert.False(t, s.addIfAbsent("a"))
	assert.True(t, s.addIfAbsent("c"))
	assert.True(t, s.addIfAbsent("a"))
	assert.False(t, s.addIfAbsent("c"))
}
