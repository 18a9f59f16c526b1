// Package events announces bundle swaps so other replicas can drop their resident bundle.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "rag.bundle.swapped"

// BundleEvent describes a completed Build.
type BundleEvent struct {
	Bundle     string    `json:"bundle"`
	Generation string    `json:"generation"`
	Count      int       `json:"count"`
	Source     string    `json:"source,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher announces bundle swaps to other processes.
type Publisher interface {
	BundleSwapped(ctx context.Context, ev BundleEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) BundleSwapped(context.Context, BundleEvent) error { return nil }

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATS publishes events as JSON with trace context in the message headers.
type NATS struct {
	nc      *nats.Conn
	subject string
}

// Connect dials url and returns a publisher for subject.
func Connect(url, subject string) (*NATS, error) {
	nc, err := nats.Connect(url, nats.Name("docqa"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return NewNATS(nc, subject), nil
}

// NewNATS publishes on subject over an existing connection; an empty subject uses DefaultSubject.
func NewNATS(nc *nats.Conn, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{nc: nc, subject: subject}
}

// BundleSwapped publishes ev as JSON with the span context in the headers.
func (n *NATS) BundleSwapped(ctx context.Context, ev BundleEvent) error {
	msg, err := newMsg(ctx, n.subject, ev)
	if err != nil {
		return err
	}
	return n.nc.PublishMsg(msg)
}

// Subscribe calls handler for every event on the publisher's subject.
// Malformed messages are logged and dropped.
func (n *NATS) Subscribe(handler func(context.Context, BundleEvent)) (*nats.Subscription, error) {
	return n.nc.Subscribe(n.subject, func(msg *nats.Msg) {
		ev, ctx, err := decodeMsg(msg)
		if err != nil {
			slog.Warn("dropping malformed bundle event", "subject", msg.Subject, "err", err)
			return
		}
		handler(ctx, ev)
	})
}

// Close closes the connection.
func (n *NATS) Close() {
	n.nc.Close()
}

func newMsg(ctx context.Context, subject string, ev BundleEvent) (*nats.Msg, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

func decodeMsg(msg *nats.Msg) (BundleEvent, context.Context, error) {
	var ev BundleEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		return BundleEvent{}, nil, err
	}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
	return ev, ctx, nil
}
