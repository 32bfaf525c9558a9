package client

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/enactgo/enact/events"
)

type options struct {
	clock              clock.Clock
	notifier           events.Notifier
	definitionCacheTTL time.Duration
}

type Option func(*options)

// WithClock replaces the wall clock. Timestamps and deadlines are derived
// from it, tests inject a mock clock here.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithNotifier sets the notifier lifecycle events are published to. Defaults
// to a dispatcher without subscribers.
func WithNotifier(n events.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithDefinitionCacheTTL sets how long active workflow definitions are
// cached. Definitions are immutable once a workflow is active, the TTL only
// bounds staleness after a retire from another process.
func WithDefinitionCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.definitionCacheTTL = ttl
	}
}
