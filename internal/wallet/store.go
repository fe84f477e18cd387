package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/creachadair/atomicfile"
	"github.com/redis/go-redis/v9"
)

// Persisted is what survives between sessions.
type Persisted struct {
	PublicKey string `json:"stellar_public_key"`
	WalletID  string `json:"wallet_id,omitempty"`
}

// StateStore keeps the persisted wallet state. Load returns nil, nil when empty.
type StateStore interface {
	Load(ctx context.Context) (*Persisted, error)
	Save(ctx context.Context, p Persisted) error
	Clear(ctx context.Context) error
}

// ==============================================================================
// MEMORY
// ==============================================================================

type MemoryStateStore struct {
	mu sync.Mutex
	p  *Persisted
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (m *MemoryStateStore) Load(context.Context) (*Persisted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.p == nil {
		return nil, nil
	}
	c := *m.p
	return &c, nil
}

func (m *MemoryStateStore) Save(_ context.Context, p Persisted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p = &p
	return nil
}

func (m *MemoryStateStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.p = nil
	return nil
}

// ==============================================================================
// FILE
// ==============================================================================

// FileStateStore keeps state in a JSON file replaced atomically on save.
type FileStateStore struct {
	path string
}

func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

func (f *FileStateStore) Load(context.Context) (*Persisted, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		// A corrupt file is treated as empty.
		return nil, nil
	}
	return &p, nil
}

func (f *FileStateStore) Save(_ context.Context, p Persisted) error {
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	_, err = atomicfile.WriteAll(f.path, bytes.NewReader(raw), 0o600)
	return err
}

func (f *FileStateStore) Clear(context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ==============================================================================
// REDIS
// ==============================================================================

// RedisStateStore keeps one session's state under a key with a sliding TTL.
type RedisStateStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisStateStore(client *redis.Client, sessionID string, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, key: "wallet:session:" + sessionID, ttl: ttl}
}

func (r *RedisStateStore) Load(ctx context.Context) (*Persisted, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil
	}
	r.client.Expire(ctx, r.key, r.ttl)
	return &p, nil
}

func (r *RedisStateStore) Save(ctx context.Context, p Persisted) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, raw, r.ttl).Err()
}

func (r *RedisStateStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
