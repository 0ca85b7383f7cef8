// Package introspect reads live backend structure into normalized
// schema documents. One Worker implementation exists per backend kind;
// the rest of the core never branches on kind.
package introspect

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/models"
)

// Per-entity read budget. One slow or hung entity must not stall the
// whole introspection pass.
const defaultEntityTimeout = 15 * time.Second

// Scope narrows an introspection pass. An empty scope reads the whole
// source; a named entity re-reads just that entity (partial reindex
// after a push notification). Workers that cannot scope a read fall
// back to a full pass.
type Scope struct {
	Entity string
}

// Worker reads a backend's live structure. Implementations must
// tolerate partial failures: an unreadable entity is omitted from the
// document with a warning rather than aborting the pass. A partial
// schema is preferable to a stale one, but the omission is surfaced via
// SchemaDocument.Warnings so callers never treat partial as unchanged.
type Worker interface {
	Kind() models.SourceKind
	Introspect(ctx context.Context, scope Scope) (*models.SchemaDocument, error)
	// Close releases backend connections held by the worker.
	Close(ctx context.Context) error
}

// ChangeFeed is the optional push capability. Workers that implement it
// deliver structural-change notifications; absence signals
// fallback-to-polling.
type ChangeFeed interface {
	// Subscribe blocks, invoking onChange for each structural-change
	// notification until the context is cancelled or the feed fails.
	// The entity argument may be empty when the feed cannot attribute
	// the change.
	Subscribe(ctx context.Context, onChange func(entity string)) error
}

// Factory builds a Worker for a registered source.
type Factory struct {
	Log           *logrus.Logger
	EntityTimeout time.Duration
}

// New constructs the backend-appropriate worker for the source.
func (f *Factory) New(source *models.DataSource) (Worker, error) {
	timeout := f.EntityTimeout
	if timeout <= 0 {
		timeout = defaultEntityTimeout
	}

	switch source.Kind {
	case models.KindRelational:
		return newRelationalWorker(source, f.Log, timeout), nil
	case models.KindDocument:
		return newDocumentWorker(source, f.Log, timeout), nil
	case models.KindVector:
		return newVectorWorker(source, f.Log, timeout)
	case models.KindMessageStore:
		return newStreamWorker(source, f.Log, timeout)
	default:
		return nil, fmt.Errorf("no introspection worker for kind %q: %w", source.Kind, models.ErrInvalidKind)
	}
}
