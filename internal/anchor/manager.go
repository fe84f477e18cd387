package anchor

import (
	"sync"
	"time"

	"sak/internal/metrics"
	"sak/pkg/errors"
	"sak/pkg/logger"

	"github.com/google/uuid"
)

const DefaultSessionTTL = 30 * time.Minute

// ManagerConfig holds per-variant wizard options. Wallet is filled in per
// session.
type ManagerConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Standard      Options
	BankStyle     Options
	Logger        logger.Logger
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

type session struct {
	wizard   *Wizard
	lastSeen time.Time
}

// Manager keeps wizard sessions by id and expires idle ones.
type Manager struct {
	cfg     ManagerConfig
	logger  logger.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
	stop     chan struct{}
	stopOnce sync.Once
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NopMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		sessions: make(map[uuid.UUID]*session),
		stop:     make(chan struct{}),
	}
}

// Create opens a new wizard for the wallet.
func (m *Manager) Create(variant Variant, wallet string) (uuid.UUID, *Wizard, error) {
	var opts Options
	switch variant {
	case VariantStandard:
		opts = m.cfg.Standard
	case VariantBankStyle:
		opts = m.cfg.BankStyle
	default:
		return uuid.Nil, nil, errors.ErrInvalidVariant
	}
	opts.Wallet = wallet
	if opts.Logger == nil {
		opts.Logger = m.logger
	}
	if opts.Metrics == nil {
		opts.Metrics = m.metrics
	}

	id := uuid.New()
	w := NewWizard(variant, opts)

	m.mu.Lock()
	m.sessions[id] = &session{wizard: w, lastSeen: m.cfg.Now()}
	n := len(m.sessions)
	m.mu.Unlock()

	m.metrics.OpenSessions.Set(float64(n))
	m.logger.Info("Wizard session opened", map[string]interface{}{
		"event":      "anchor_session_opened",
		"session_id": id.String(),
		"variant":    string(variant),
	})
	return id, w, nil
}

// Get returns a live session and refreshes its idle timer.
func (m *Manager) Get(id uuid.UUID) (*Wizard, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && m.expired(s) {
		delete(m.sessions, id)
		ok = false
		defer s.wizard.Close()
	}
	if ok {
		s.lastSeen = m.cfg.Now()
	}
	n := len(m.sessions)
	m.mu.Unlock()

	m.metrics.OpenSessions.Set(float64(n))
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return s.wizard, nil
}

func (m *Manager) Delete(id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return errors.ErrSessionNotFound
	}
	s.wizard.Close()
	m.metrics.OpenSessions.Set(float64(n))
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes idle sessions and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	var stale []*session
	for id, s := range m.sessions {
		if m.expired(s) {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range stale {
		s.wizard.Close()
	}
	m.metrics.OpenSessions.Set(float64(n))
	if len(stale) > 0 {
		m.logger.Debug("Expired wizard sessions", map[string]interface{}{
			"removed": len(stale),
			"open":    n,
		})
	}
	return len(stale)
}

func (m *Manager) expired(s *session) bool {
	return m.cfg.Now().Sub(s.lastSeen) > m.cfg.TTL
}

// Start runs the sweeper until Stop is called.
func (m *Manager) Start() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	go func() {
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.stop:
				ticker.Stop()
				return
			}
		}
	}()
	m.logger.Info("Wizard session sweeper started", map[string]interface{}{
		"ttl": m.cfg.TTL.String(),
	})
}

// Stop halts the sweeper and closes every session.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.wizard.Close()
	}
	m.metrics.OpenSessions.Set(0)
}
