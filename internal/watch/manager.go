package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/querymesh/querymesh/internal/introspect"
	"github.com/querymesh/querymesh/internal/models"
)

// SourceLister loads the registered sources a manager should watch.
type SourceLister interface {
	ListSources(ctx context.Context, filter models.SourceFilter) ([]models.DataSource, error)
}

// WorkerFactory builds introspection workers per source. Satisfied by
// *introspect.Factory; tests inject fakes.
type WorkerFactory interface {
	New(source *models.DataSource) (introspect.Worker, error)
}

// WatcherStatus is a point-in-time view of one watcher for the
// operator surface.
type WatcherStatus struct {
	SourceID   string `json:"source_id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	State      string `json:"state"`
	PushActive bool   `json:"push_active"`
}

// Manager owns the watcher set with an explicit start/stop lifecycle.
// Tests instantiate independent managers; there is no process-wide
// scheduling state.
type Manager struct {
	log     *logrus.Logger
	store   SchemaStore
	sources SourceLister
	factory WorkerFactory

	pollInterval time.Duration
	checkTimeout time.Duration

	mu       sync.Mutex
	watchers map[string]*managedWatcher
	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
}

type managedWatcher struct {
	watcher *Watcher
	worker  introspect.Worker
	cancel  context.CancelFunc
}

// NewManager creates a manager. Zero durations select the watcher
// defaults.
func NewManager(store SchemaStore, sources SourceLister, factory WorkerFactory, log *logrus.Logger, pollInterval, checkTimeout time.Duration) *Manager {
	return &Manager{
		log:          log,
		store:        store,
		sources:      sources,
		factory:      factory,
		pollInterval: pollInterval,
		checkTimeout: checkTimeout,
		watchers:     make(map[string]*managedWatcher),
	}
}

// Start loads registered sources and launches one watcher per source.
// Each watcher resumes from the store's last recorded version.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()

		return fmt.Errorf("watch manager already started")
	}
	m.baseCtx, m.cancel = context.WithCancel(ctx)
	m.started = true
	m.mu.Unlock()

	sources, err := m.sources.ListSources(ctx, models.SourceFilter{})
	if err != nil {
		return fmt.Errorf("loading sources for watching: %w", err)
	}

	for i := range sources {
		if err := m.AddSource(&sources[i]); err != nil {
			m.log.WithError(err).WithField("source_id", sources[i].ID).Error("failed to start watcher")
		}
	}

	m.log.WithField("watchers", len(sources)).Info("watch manager started")

	return nil
}

// AddSource launches a watcher for a newly registered source.
func (m *Manager) AddSource(source *models.DataSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return fmt.Errorf("watch manager not started")
	}

	if _, exists := m.watchers[source.ID]; exists {
		return nil
	}

	worker, err := m.factory.New(source)
	if err != nil {
		return fmt.Errorf("creating introspection worker: %w", err)
	}

	watcher := NewWatcher(source, worker, m.store, m.log, m.pollInterval, m.checkTimeout)
	ctx, cancel := context.WithCancel(m.baseCtx)

	m.watchers[source.ID] = &managedWatcher{watcher: watcher, worker: worker, cancel: cancel}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		watcher.Run(ctx)
	}()

	return nil
}

// RemoveSource stops and discards the watcher for a deregistered source.
func (m *Manager) RemoveSource(ctx context.Context, sourceID string) {
	m.mu.Lock()
	mw, ok := m.watchers[sourceID]
	if ok {
		delete(m.watchers, sourceID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	mw.cancel()

	if err := mw.worker.Close(ctx); err != nil {
		m.log.WithError(err).WithField("source_id", sourceID).Warn("closing introspection worker")
	}
}

// ForceCheck runs an operator-invoked forced reindex for one source.
// It waits for any in-flight check, then always writes a new version.
func (m *Manager) ForceCheck(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	mw, ok := m.watchers[sourceID]
	m.mu.Unlock()

	if !ok {
		return models.ErrSourceNotFound
	}

	return mw.watcher.ForceCheck(ctx)
}

// ForceCheckAll forces a reindex of every watched source in parallel.
// One failing source does not stop the others; the first error is
// returned after all checks finish.
func (m *Manager) ForceCheckAll(ctx context.Context) error {
	m.mu.Lock()
	watchers := make([]*Watcher, 0, len(m.watchers))
	for _, mw := range m.watchers {
		watchers = append(watchers, mw.watcher)
	}
	m.mu.Unlock()

	// A plain group: one source failing must not cancel the siblings'
	// in-flight checks, so no derived context here.
	var g errgroup.Group

	for _, w := range watchers {
		g.Go(func() error {
			if err := w.ForceCheck(ctx); err != nil {
				m.log.WithError(err).WithField("source_id", w.Source().ID).Warn("forced check failed")

				return err
			}

			return nil
		})
	}

	return g.Wait()
}

// Status reports the state of every watcher.
func (m *Manager) Status() []WatcherStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]WatcherStatus, 0, len(m.watchers))

	for _, mw := range m.watchers {
		src := mw.watcher.Source()
		statuses = append(statuses, WatcherStatus{
			SourceID:   src.ID,
			Name:       src.Name,
			Kind:       string(src.Kind),
			State:      mw.watcher.State(),
			PushActive: mw.watcher.PushActive(),
		})
	}

	return statuses
}

// Stop cancels all watchers and waits for them to drain.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()

		return
	}
	m.started = false
	cancel := m.cancel
	workers := make([]introspect.Worker, 0, len(m.watchers))
	for _, mw := range m.watchers {
		workers = append(workers, mw.worker)
	}
	m.watchers = make(map[string]*managedWatcher)
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	for _, worker := range workers {
		if err := worker.Close(ctx); err != nil {
			m.log.WithError(err).Warn("closing introspection worker")
		}
	}

	m.log.Info("watch manager stopped")
}
