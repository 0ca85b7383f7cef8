// Package store provides focused, single-concern data access stores
// for the querymesh schema repository.
//
// Each store owns one domain (sources, versions, ontology) and embeds
// shared helpers (Pool, logger, event broadcaster) via the Base struct.
// Stores never import each other.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/dbpool"
)

const defaultQueryTimeout = 30 * time.Second

// Broadcaster publishes store events to connected operator clients.
// Implemented by the websocket hub; nil disables event publishing.
type Broadcaster interface {
	BroadcastEvent(eventType string, data json.RawMessage)
}

// Base contains shared dependencies for all stores.
// Embed this in each store struct.
type Base struct {
	Pool   *dbpool.Pool
	Log    *logrus.Logger
	Events Broadcaster
}

// withTimeout creates a context with the default query timeout.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// publish sends a best-effort event to the hub after a committed write.
func (b *Base) publish(eventType string, payload any) {
	if b.Events == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		b.Log.WithError(err).Warn("failed to marshal " + eventType + " event")

		return
	}

	b.Events.BroadcastEvent(eventType, data)
}
