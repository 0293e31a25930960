package events

import (
	"context"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSTransport carries events over core NATS subjects
type NATSTransport struct {
	nc *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// ConnectNATS dials a NATS server that reconnects forever
func ConnectNATS(url string, log logrus.FieldLogger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithField("error", err.Error()).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	)
}

func NewNATSTransport(nc *nats.Conn) *NATSTransport {
	return &NATSTransport{nc: nc}
}

func (t *NATSTransport) Publish(_ context.Context, channel string, payload []byte) error {
	return t.nc.Publish(channel, payload)
}

func (t *NATSTransport) Subscribe(ctx context.Context, channels []string, deliver Deliver) error {
	subs := make([]*nats.Subscription, 0, len(channels))
	for _, channel := range channels {
		sub, err := t.nc.Subscribe(channel, func(msg *nats.Msg) {
			deliver(msg.Subject, msg.Data)
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return err
		}
		subs = append(subs, sub)
	}
	if err := t.nc.FlushWithContext(ctx); err != nil { // Subscriptions are live once the server has seen them
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		return err
	}

	t.mu.Lock()
	t.subs = append(t.subs, subs...)
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()
	return nil
}

func (t *NATSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.subs {
		_ = s.Unsubscribe()
	}
	t.subs = nil
	return t.nc.Drain()
}
