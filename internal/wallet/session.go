// ==============================================================================
// WALLET SESSION - internal/wallet/session.go
// ==============================================================================
// Connection lifecycle for a Stellar wallet: Disconnected -> Connecting ->
// Connected | Disconnected(error). The session owns its persisted state and
// must be closed when no longer used.
// ==============================================================================

package wallet

import (
	"context"
	"sync"

	"sak/pkg/domain"
	"sak/pkg/errors"
	"sak/pkg/logger"
)

// MockPublicKey is returned when the session runs in mock mode.
const MockPublicKey = "GCSAKMOCKWALLETAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAADEMO"

// State is a snapshot of the session.
type State struct {
	PublicKey    string `json:"publicKey,omitempty"`
	WalletID     string `json:"walletId,omitempty"`
	IsConnected  bool   `json:"isConnected"`
	IsConnecting bool   `json:"isConnecting"`
	Error        string `json:"error,omitempty"`
}

type Config struct {
	// UseMock skips the agent and connects with MockPublicKey.
	UseMock bool
	Logger  logger.Logger
}

type Session struct {
	agent  Agent
	store  StateStore
	mock   bool
	logger logger.Logger

	// persistMu orders store writes; gen counts disconnects so a Connect
	// that started before one does not commit.
	persistMu sync.Mutex
	mu        sync.Mutex
	state     State
	gen       uint64
	closed    bool
}

func NewSession(agent Agent, store StateStore, cfg Config) *Session {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Session{
		agent:  agent,
		store:  store,
		mock:   cfg.UseMock,
		logger: l,
	}
}

// Restore loads persisted state. Only a well-formed key is restored; anything
// else leaves the session disconnected without an error.
func (s *Session) Restore(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	p, err := s.store.Load(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load wallet state")
	}
	if p == nil || !domain.IsValidStellarPublicKey(p.PublicKey) {
		return nil
	}

	s.mu.Lock()
	s.state = State{PublicKey: p.PublicKey, WalletID: p.WalletID, IsConnected: true}
	s.mu.Unlock()

	s.logger.Debug("Wallet session restored", map[string]interface{}{
		"event":      "wallet_restored",
		"public_key": ShortenPublicKey(p.PublicKey, 4),
	})
	return nil
}

// Connect asks the agent for access and persists the resulting address.
func (s *Session) Connect(ctx context.Context, walletID string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errors.ErrSessionClosed
	}
	if s.state.IsConnecting {
		s.mu.Unlock()
		return "", errors.ErrConnectInProgress
	}
	s.state = State{IsConnecting: true}
	gen := s.gen
	s.mu.Unlock()

	address, err := s.resolveAddress(ctx, walletID)
	if err == nil && !domain.IsValidStellarPublicKey(address) {
		err = errors.ErrInvalidPublicKey
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if s.stale(gen) {
		s.logger.Info("Wallet connection dropped after disconnect", map[string]interface{}{
			"event":     "wallet_connect_cancelled",
			"wallet_id": walletID,
		})
		return "", errors.ErrConnectCancelled
	}
	if err == nil {
		err = s.store.Save(ctx, Persisted{PublicKey: address, WalletID: walletID})
		if err != nil {
			err = errors.Wrap(err, "failed to persist wallet state")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = State{Error: err.Error()}
		s.logger.Warn("Wallet connection failed", map[string]interface{}{
			"event":     "wallet_connect_failed",
			"wallet_id": walletID,
			"error":     err.Error(),
		})
		return "", err
	}
	s.state = State{PublicKey: address, WalletID: walletID, IsConnected: true}
	s.logger.Info("Wallet connected", map[string]interface{}{
		"event":      "wallet_connected",
		"wallet_id":  walletID,
		"public_key": ShortenPublicKey(address, 4),
		"mock":       s.mock,
	})
	return address, nil
}

func (s *Session) resolveAddress(ctx context.Context, walletID string) (string, error) {
	if s.mock {
		return MockPublicKey, nil
	}
	if s.agent == nil {
		return "", errors.ErrWalletUnavailable
	}
	available, err := s.agent.IsAvailable(ctx)
	if err != nil {
		return "", err
	}
	if !available {
		return "", errors.ErrWalletUnavailable
	}
	if err := s.agent.RequestAccess(ctx, walletID); err != nil {
		return "", err
	}
	return s.agent.GetAddress(ctx)
}

// Disconnect clears memory and persisted state. Calling it twice is a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := s.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "failed to clear wallet state")
	}
	s.mu.Lock()
	s.gen++
	s.state = State{}
	s.mu.Unlock()
	return nil
}

func (s *Session) stale(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PublicKey returns the connected address or ErrNotConnected.
func (s *Session) PublicKey() (string, error) {
	st := s.State()
	if !st.IsConnected {
		return "", errors.ErrNotConnected
	}
	return st.PublicKey, nil
}

// Close disposes the session. Persisted state is kept for the next Restore.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrSessionClosed
	}
	return nil
}

// ShortenPublicKey renders a key as its first and last chars characters.
func ShortenPublicKey(key string, chars int) string {
	if chars <= 0 || len(key) <= chars*2 {
		return key
	}
	return key[:chars] + "..." + key[len(key)-chars:]
}
