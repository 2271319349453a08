package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/bhunjadi/pagination/encoding"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// DefaultSubjectPrefix is used when no subject prefix is configured
const DefaultSubjectPrefix = "pagination.changes"

// Conn is the subset of *nats.Conn used by the bridge
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

// NatsBridge shares change signals between processes that serve the same
// backing store. Local writes are published to <prefix>.<collection>; writes
// from other nodes are delivered into the local hub.
type NatsBridge struct {
	hub    *Hub
	nc     Conn
	sub    *nats.Subscription
	prefix string
}

// NewNatsBridge connects to NATS and wires the bridge into hub
func NewNatsBridge(url, prefix string, hub *Hub) (*NatsBridge, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	b, err := newBridge(nc, prefix, hub)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

func newBridge(nc Conn, prefix string, hub *Hub) (*NatsBridge, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	b := &NatsBridge{
		hub:    hub,
		nc:     nc,
		prefix: strings.TrimSuffix(prefix, "."),
	}

	sub, err := nc.Subscribe(b.prefix+".>", func(msg *nats.Msg) {
		b.receive(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s.>: %w", b.prefix, err)
	}
	b.sub = sub

	hub.AddRelay(b)

	log.Info().Str("prefix", b.prefix).Msg("NATS change bridge enabled")
	return b, nil
}

// Relay publishes a locally originated signal to peers
func (b *NatsBridge) Relay(sig Signal) {
	data, err := encoding.Marshal(sig)
	if err != nil {
		log.Error().Err(err).Str("collection", sig.Collection).Msg("Failed to encode change signal")
		return
	}

	if err := b.nc.Publish(b.subject(sig.Collection), data); err != nil {
		log.Warn().Err(err).Str("collection", sig.Collection).Msg("Failed to relay change signal")
	}
}

// receive handles a signal published by any node, including this one
func (b *NatsBridge) receive(data []byte) {
	var sig Signal
	if err := encoding.Unmarshal(data, &sig); err != nil {
		log.Warn().Err(err).Msg("Dropping malformed change signal")
		return
	}

	if sig.Origin == b.hub.nodeID {
		return
	}

	b.hub.Deliver(sig)
}

func (b *NatsBridge) subject(collection string) string {
	return b.prefix + "." + sanitizeSubjectToken(collection)
}

// Close unsubscribes and closes the NATS connection
func (b *NatsBridge) Close() error {
	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Msg("Failed to unsubscribe change bridge")
		}
	}
	b.nc.Close()
	return nil
}

// sanitizeSubjectToken replaces characters NATS treats as subject syntax
func sanitizeSubjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, s)
}
