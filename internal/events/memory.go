package events

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a closed in-memory endpoint
var ErrClosed = errors.New("events: transport closed")

// MemoryBus is an in-process bus. Every endpoint sees every message,
// including its own, and delivery happens on the publishing goroutine.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]memorySub
}

type memorySub struct {
	channels map[string]struct{}
	deliver  Deliver
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[int]memorySub{}}
}

// Endpoint returns a transport attached to the bus
func (b *MemoryBus) Endpoint() *MemoryTransport {
	return &MemoryTransport{bus: b}
}

func (b *MemoryBus) publish(channel string, payload []byte) {
	b.mu.RLock()
	var targets []Deliver
	for _, sub := range b.subs {
		if _, ok := sub.channels[channel]; ok {
			targets = append(targets, sub.deliver)
		}
	}
	b.mu.RUnlock()

	for _, deliver := range targets {
		deliver(channel, append([]byte(nil), payload...))
	}
}

func (b *MemoryBus) add(channels []string, deliver Deliver) int {
	set := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		set[c] = struct{}{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[b.nextID] = memorySub{channels: set, deliver: deliver}
	return b.nextID
}

func (b *MemoryBus) remove(id int) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// MemoryTransport is one process' view of a MemoryBus
type MemoryTransport struct {
	bus *MemoryBus

	mu     sync.Mutex
	ids    []int
	closed bool
	fail   error
}

// SetFail makes every publish return err, simulating an unreachable bus.
// A nil err restores delivery.
func (t *MemoryTransport) SetFail(err error) {
	t.mu.Lock()
	t.fail = err
	t.mu.Unlock()
}

func (t *MemoryTransport) Publish(_ context.Context, channel string, payload []byte) error {
	t.mu.Lock()
	closed, fail := t.closed, t.fail
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if fail != nil {
		return fail
	}
	t.bus.publish(channel, payload)
	return nil
}

func (t *MemoryTransport) Subscribe(ctx context.Context, channels []string, deliver Deliver) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	id := t.bus.add(channels, deliver)
	t.ids = append(t.ids, id)
	go func() {
		<-ctx.Done()
		t.bus.remove(id)
	}()
	return nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.ids {
		t.bus.remove(id)
	}
	t.ids = nil
	t.closed = true
	return nil
}
