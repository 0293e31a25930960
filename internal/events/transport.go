// Package events broadcasts account events between processes and applies the
// ones other processes publish. Delivery is best effort: no replay and no
// ordering across channels.
package events

import "context"

// Deliver receives one raw message from a subscribed channel
type Deliver func(channel string, payload []byte)

// Transport is a named-channel pub/sub bus
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe starts delivering messages of the given channels until ctx
	// is done or the transport is closed.
	Subscribe(ctx context.Context, channels []string, deliver Deliver) error
	Close() error
}
