// Package watch runs change-detection watchers, one per data source.
// Push-capable backends get a native change feed with a polling safety
// net; everything else polls on an interval. All drift funnels through
// the fingerprint comparison and the schema store's single-writer
// version recording.
package watch

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/fingerprint"
	"github.com/querymesh/querymesh/internal/introspect"
	"github.com/querymesh/querymesh/internal/metrics"
	"github.com/querymesh/querymesh/internal/models"
)

// Watcher states.
const (
	StateIdle     = "idle"
	StateChecking = "checking"
	StateUpdating = "updating"
)

const (
	defaultPollInterval = 30 * time.Minute
	defaultCheckTimeout = 2 * time.Minute

	// Push feed reconnect backoff bounds.
	initialBackoff    = 1 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 2
)

// SchemaStore is the store surface a watcher depends on.
type SchemaStore interface {
	GetCurrentSchema(ctx context.Context, sourceID string) (*models.SchemaVersion, error)
	RecordSchemaVersion(ctx context.Context, sourceID string, doc *models.SchemaDocument, fp string, expectedSeq int64, force bool) (*models.SchemaVersion, bool, error)
	TouchLastChecked(ctx context.Context, sourceID string) error
}

// Watcher tracks one data source. State machine:
// Idle -> Checking -> {Updating | Idle}. A check stuck past the check
// timeout is cancelled, logged, and the watcher returns to Idle; it
// never blocks other watchers.
type Watcher struct {
	source *models.DataSource
	worker introspect.Worker
	store  SchemaStore
	log    *logrus.Logger

	pollInterval time.Duration
	checkTimeout time.Duration

	// checkMu serializes check cycles for this source. A force request
	// arriving mid-check waits here for the in-flight check, then
	// issues its own forced write.
	checkMu sync.Mutex
	state   atomic.Value // string

	// kicks carries scoped re-introspection requests from the push feed.
	kicks chan introspect.Scope

	pushActive atomic.Bool
}

// NewWatcher creates a watcher for the source. Zero durations select
// defaults.
func NewWatcher(source *models.DataSource, worker introspect.Worker, store SchemaStore, log *logrus.Logger, pollInterval, checkTimeout time.Duration) *Watcher {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if checkTimeout <= 0 {
		checkTimeout = defaultCheckTimeout
	}

	w := &Watcher{
		source:       source,
		worker:       worker,
		store:        store,
		log:          log,
		pollInterval: pollInterval,
		checkTimeout: checkTimeout,
		kicks:        make(chan introspect.Scope, 1),
	}
	w.state.Store(StateIdle)

	return w
}

// Source returns the watched data source.
func (w *Watcher) Source() *models.DataSource { return w.source }

// State returns the current state machine state.
func (w *Watcher) State() string { return w.state.Load().(string) }

// PushActive reports whether a native change feed is currently
// subscribed. False means polling is the only detection path.
func (w *Watcher) PushActive() bool { return w.pushActive.Load() }

// Run drives the watcher until the context is cancelled: an immediate
// startup check (resuming from the store's last recorded version), the
// universal fallback poll, and — when the worker supports it — the
// native push feed.
func (w *Watcher) Run(ctx context.Context) {
	if feed, ok := w.worker.(introspect.ChangeFeed); ok {
		go w.runFeed(ctx, feed)
	}

	w.runCheck(ctx, false, introspect.Scope{})

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runCheck(ctx, false, introspect.Scope{})
		case scope := <-w.kicks:
			w.runCheck(ctx, false, scope)
		}
	}
}

// ForceCheck bypasses the fingerprint comparison and always records a
// new version. If a check is in flight it waits for completion rather
// than re-triggering it.
func (w *Watcher) ForceCheck(ctx context.Context) error {
	return w.check(ctx, true, introspect.Scope{})
}

// runFeed keeps the push subscription alive, reconnecting with
// exponential backoff and jitter. Push can silently fail (replica-set
// requirement not met, trigger permissions missing); the fallback poll
// covers those gaps.
func (w *Watcher) runFeed(ctx context.Context, feed introspect.ChangeFeed) {
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		w.pushActive.Store(true)
		err := feed.Subscribe(ctx, w.kick)
		w.pushActive.Store(false)

		if err == nil || ctx.Err() != nil {
			return
		}

		w.log.WithError(err).WithFields(logrus.Fields{
			"source_id": w.source.ID,
			"retry_in":  backoff,
		}).Warn("change feed lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff)
	}
}

// kick requests a scoped re-introspection. Coalesces: if a kick is
// already pending, the new one widens it to a full pass.
func (w *Watcher) kick(entity string) {
	scope := introspect.Scope{Entity: entity}

	select {
	case w.kicks <- scope:
	default:
		// A kick is pending; drain and replace with a full-source pass
		// so neither change is lost.
		select {
		case <-w.kicks:
		default:
		}
		select {
		case w.kicks <- introspect.Scope{}:
		default:
		}
	}
}

// runCheck wraps check for scheduled paths where errors are logged,
// not propagated: the next tick retries. Never a tight retry loop.
func (w *Watcher) runCheck(ctx context.Context, force bool, scope introspect.Scope) {
	if err := w.check(ctx, force, scope); err != nil && ctx.Err() == nil {
		w.log.WithError(err).WithField("source_id", w.source.ID).Warn("check cycle failed")
	}
}

// check is one full cycle: read live structure, fingerprint, and
// compare-and-record. The store's per-source lock is held only inside
// RecordSchemaVersion, never across the live backend read.
func (w *Watcher) check(ctx context.Context, force bool, scope introspect.Scope) error {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	w.state.Store(StateChecking)
	defer w.state.Store(StateIdle)

	ctx, cancel := context.WithTimeout(ctx, w.checkTimeout)
	defer cancel()

	var (
		expectedSeq int64
		current     *models.SchemaVersion
	)

	current, err := w.store.GetCurrentSchema(ctx, w.source.ID)
	switch {
	case err == nil:
		expectedSeq = current.Seq
	case errors.Is(err, models.ErrVersionNotFound):
		current = nil
	default:
		metrics.WatcherChecks.WithLabelValues(w.source.ID, "failed").Inc()

		return err
	}

	// A scoped kick with no recorded baseline has nothing to merge
	// into; widen to a full pass so the first version covers the whole
	// source instead of the single kicked entity.
	if scope.Entity != "" && current == nil {
		scope = introspect.Scope{}
	}

	doc, err := w.worker.Introspect(ctx, scope)
	if err != nil {
		metrics.WatcherChecks.WithLabelValues(w.source.ID, "failed").Inc()

		return err
	}

	// A scoped pass read a single entity; merge it into the last known
	// document so the fingerprint still covers the whole source.
	if scope.Entity != "" && current != nil {
		doc = mergeScoped(&current.Document, doc, scope.Entity)
	}

	if doc.Partial() {
		w.log.WithFields(logrus.Fields{
			"source_id": w.source.ID,
			"omitted":   len(doc.Warnings),
		}).Warn("partial introspection, some entities omitted")
	}

	fp := fingerprint.Compute(doc)

	if !force && current != nil && current.Fingerprint == fp {
		metrics.WatcherChecks.WithLabelValues(w.source.ID, "unchanged").Inc()

		if err := w.store.TouchLastChecked(ctx, w.source.ID); err != nil {
			w.log.WithError(err).WithField("source_id", w.source.ID).Warn("failed to record check time")
		}

		return nil
	}

	w.state.Store(StateUpdating)

	version, created, err := w.store.RecordSchemaVersion(ctx, w.source.ID, doc, fp, expectedSeq, force)
	if errors.Is(err, models.ErrVersionConflict) {
		// Another writer advanced the version between our read and
		// write. Re-read and retry the compare-and-write exactly once;
		// a second conflict surfaces rather than live-locking.
		version, created, err = w.retryAfterConflict(ctx, doc, fp, force)
	}

	if err != nil {
		metrics.WatcherChecks.WithLabelValues(w.source.ID, "failed").Inc()

		return err
	}

	if created {
		metrics.WatcherChecks.WithLabelValues(w.source.ID, "updated").Inc()
		w.log.WithFields(logrus.Fields{
			"source_id":   w.source.ID,
			"seq":         version.Seq,
			"fingerprint": fp[:12],
			"entities":    len(doc.Entities),
			"forced":      force,
		}).Info("schema version recorded")
	} else {
		metrics.WatcherChecks.WithLabelValues(w.source.ID, "unchanged").Inc()
	}

	return nil
}

func (w *Watcher) retryAfterConflict(ctx context.Context, doc *models.SchemaDocument, fp string, force bool) (*models.SchemaVersion, bool, error) {
	current, err := w.store.GetCurrentSchema(ctx, w.source.ID)
	if err != nil && !errors.Is(err, models.ErrVersionNotFound) {
		return nil, false, err
	}

	var expectedSeq int64
	if current != nil {
		// The concurrent writer may have recorded our exact structure.
		if !force && current.Fingerprint == fp {
			return current, false, nil
		}
		expectedSeq = current.Seq
	}

	return w.store.RecordSchemaVersion(ctx, w.source.ID, doc, fp, expectedSeq, force)
}

// mergeScoped overlays a single-entity read onto the previous document.
// An empty scoped read means the entity was dropped.
func mergeScoped(previous *models.SchemaDocument, scoped *models.SchemaDocument, entity string) *models.SchemaDocument {
	merged := &models.SchemaDocument{Warnings: scoped.Warnings}

	var replacement *models.Entity
	for i := range scoped.Entities {
		if scoped.Entities[i].Name == entity {
			replacement = &scoped.Entities[i]

			break
		}
	}

	replaced := false

	for _, e := range previous.Entities {
		if e.Name == entity {
			replaced = true
			if replacement != nil {
				merged.Entities = append(merged.Entities, *replacement)
			}
			// replacement == nil: entity dropped, omit it.

			continue
		}
		merged.Entities = append(merged.Entities, e)
	}

	if !replaced && replacement != nil {
		merged.Entities = append(merged.Entities, *replacement)
	}

	return merged
}

// nextBackoff doubles the current backoff with ±25% jitter, capped at
// maxBackoff. Jitter prevents thundering herd on reconnect.
func nextBackoff(current time.Duration) time.Duration {
	next := current * backoffMultiplier
	if next > maxBackoff {
		next = maxBackoff
	}

	jitter := float64(next) * (0.75 + rand.Float64()*0.5) //nolint:gosec // jitter doesn't need crypto rand.

	return time.Duration(jitter)
}
