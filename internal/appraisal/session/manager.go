package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/appraisal/wizard"
	"loan-appraiser/internal/common/logger"
)

// Manager hands out one live controller per session id. Controllers are cached in
// process so the submission guard holds across concurrent requests; every mutation
// is written through to the Store, and the stored version decides which copy wins.
type Manager struct {
	store  Store
	opts   []wizard.Option
	logger logger.Logger

	mu   sync.Mutex
	live map[string]*wizard.Controller
}

func NewManager(store Store, log logger.Logger, opts ...wizard.Option) *Manager {
	return &Manager{
		store:  store,
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "session"}),
		live:   make(map[string]*wizard.Controller),
	}
}

// Start creates a session for lt and persists its initial state.
func (m *Manager) Start(ctx context.Context, lt loantype.LoanType) (string, *wizard.Controller, error) {
	c, err := wizard.New(lt, m.opts...)
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()
	if err := m.store.Save(ctx, id, c.State()); err != nil {
		return "", nil, err
	}

	m.mu.Lock()
	m.live[id] = c
	m.mu.Unlock()

	m.logger.Info("Session started", map[string]interface{}{"sessionId": id, "loanType": string(lt)})
	return id, c, nil
}

// Get returns the live controller for id. The store stays authoritative: a cached
// controller is rebuilt when another replica has saved a newer version, and dropped
// when the stored session is gone. A controller with a submission in flight is kept.
func (m *Manager) Get(ctx context.Context, id string) (*wizard.Controller, error) {
	m.mu.Lock()
	cached, ok := m.live[id]
	m.mu.Unlock()

	state, err := m.store.Load(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		if ok {
			m.forget(id, cached)
		}
		return nil, err
	case err != nil && ok:
		m.logger.Warn("Session store unavailable, serving cached session", map[string]interface{}{
			"sessionId": id,
			"error":     err.Error(),
		})
		return cached, nil
	case err != nil:
		return nil, err
	}

	if ok && (cached.Submitting() || state.Version <= cached.State().Version) {
		return cached, nil
	}

	c, err := wizard.Restore(state, m.opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, found := m.live[id]; found && existing != cached {
		return existing, nil
	}
	m.live[id] = c
	if ok {
		m.logger.Debug("Session refreshed from store", map[string]interface{}{
			"sessionId": id,
			"version":   state.Version,
		})
	}
	return c, nil
}

func (m *Manager) forget(id string, c *wizard.Controller) {
	m.mu.Lock()
	if m.live[id] == c {
		delete(m.live, id)
	}
	m.mu.Unlock()
	c.Close()
}

// Persist writes the controller's current state through to the store.
func (m *Manager) Persist(ctx context.Context, id string, c *wizard.Controller) error {
	return m.store.Save(ctx, id, c.State())
}

// Discard aborts any in-flight submission and forgets the session.
func (m *Manager) Discard(ctx context.Context, id string) error {
	m.mu.Lock()
	c, ok := m.live[id]
	delete(m.live, id)
	m.mu.Unlock()

	if ok {
		c.Close()
	}
	return m.store.Delete(ctx, id)
}

// Close aborts every in-flight submission.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.live {
		c.Close()
		delete(m.live, id)
	}
}

// Prune drops cached controllers whose stored session has expired. Controllers with a
// submission in flight are kept.
func (m *Manager) Prune(ctx context.Context) int {
	m.mu.Lock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	pruned := 0
	for _, id := range ids {
		if _, err := m.store.Load(ctx, id); !errors.Is(err, ErrNotFound) {
			continue
		}
		m.mu.Lock()
		if c, ok := m.live[id]; ok && !c.Submitting() {
			delete(m.live, id)
			pruned++
		}
		m.mu.Unlock()
	}
	if pruned > 0 {
		m.logger.Debug("Pruned expired sessions", map[string]interface{}{"count": pruned})
	}
	return pruned
}

// Live returns the number of sessions cached in this process.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}
