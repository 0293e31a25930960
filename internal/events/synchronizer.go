package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wallet_sync/internal/domain"
	"wallet_sync/internal/metrics"
)

// ErrStarted is returned when Start is called twice
var ErrStarted = errors.New("events: synchronizer already started")

// Handler applies an event published by another process. Handlers must be
// idempotent and must not assume ordering between accounts.
type Handler func(ctx context.Context, ev domain.Event)

// Options configure a Synchronizer
type Options struct {
	ProcessID     string
	ChannelPrefix string
	Transport     Transport
	SeenSize      int // Number of recent event ids kept for dedupe
	Log           logrus.FieldLogger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Synchronizer publishes local events and dispatches remote ones
type Synchronizer struct {
	opts Options
	log  logrus.FieldLogger
	seen *seenSet

	mu       sync.RWMutex
	handlers []Handler
	ctx      context.Context
	started  bool
}

func New(opts Options) *Synchronizer {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SeenSize <= 0 {
		opts.SeenSize = 4096
	}
	return &Synchronizer{
		opts: opts,
		log:  opts.Log.WithFields(logrus.Fields{"component": "events", "process": opts.ProcessID}),
		seen: newSeenSet(opts.SeenSize),
	}
}

// Channel returns the channel events of type t travel on
func (s *Synchronizer) Channel(t domain.EventType) string {
	return s.opts.ChannelPrefix + string(t)
}

// Subscribe registers a handler for remote events
func (s *Synchronizer) Subscribe(h Handler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// Start subscribes to every event channel. Remote events are dispatched until
// ctx is done.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrStarted
	}
	s.started = true
	s.ctx = ctx
	s.mu.Unlock()

	channels := make([]string, 0, len(domain.EventTypes))
	for _, t := range domain.EventTypes {
		channels = append(channels, s.Channel(t))
	}
	if err := s.opts.Transport.Subscribe(ctx, channels, s.receive); err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("subscribe to %s: %w", strings.Join(channels, ","), err)
	}
	s.log.WithField("channels", len(channels)).Info("Event synchronizer started")
	return nil
}

// Publish stamps ev with an id, this process as origin and, unless the
// caller set one, the current time. A failed publish is logged and otherwise
// ignored.
func (s *Synchronizer) Publish(ctx context.Context, ev domain.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString() // Receivers dedupe on it
	}
	ev.Origin = s.opts.ProcessID // Receivers drop their own events
	if ev.Timestamp == 0 {
		ev.Timestamp = s.opts.Now().UnixMilli()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.opts.Metrics.EventPublished(string(ev.Type), "failed")
		s.log.WithFields(logrus.Fields{"type": ev.Type, "error": err.Error()}).Error("Failed to encode event")
		return
	}
	if err := s.opts.Transport.Publish(ctx, s.Channel(ev.Type), payload); err != nil {
		s.opts.Metrics.EventPublished(string(ev.Type), "failed")
		s.opts.Metrics.DistributedFailure("event_publish")
		s.log.WithFields(logrus.Fields{
			"type":       ev.Type,
			"account_id": ev.AccountID,
			"error":      err.Error(),
		}).Warn("Failed to publish event, other processes will converge later")
		return
	}
	s.opts.Metrics.EventPublished(string(ev.Type), "ok")
}

func (s *Synchronizer) receive(channel string, payload []byte) {
	var ev domain.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.opts.Metrics.EventReceived("unknown", "malformed")
		s.log.WithFields(logrus.Fields{"channel": channel, "error": err.Error()}).Warn("Dropping malformed event")
		return
	}
	if ev.Origin == s.opts.ProcessID {
		s.opts.Metrics.EventReceived(string(ev.Type), "self")
		return // Already applied locally when it was published
	}
	if ev.ID != "" && !s.seen.addIfAbsent(ev.ID) {
		s.opts.Metrics.EventReceived(string(ev.Type), "duplicate")
		return // Redelivery of an applied event
	}

	s.mu.RLock()
	handlers := s.handlers // Snapshot, handlers only ever append
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	for _, h := range handlers {
		s.dispatch(ctx, h, ev)
	}
	s.opts.Metrics.EventReceived(string(ev.Type), "applied")
}

func (s *Synchronizer) dispatch(ctx context.Context, h Handler, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{
				"type":       ev.Type,
				"account_id": ev.AccountID,
				"origin":     ev.Origin,
				"panic":      fmt.Sprint(r),
			}).Error("Event handler panicked")
		}
	}()
	h(ctx, ev)
}

// Close detaches from the transport
func (s *Synchronizer) Close() error {
	return s.opts.Transport.Close()
}
