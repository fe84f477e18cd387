package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"sak/internal/security"
	"sak/pkg/domain"
	"sak/pkg/errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const apiKeyPrefix = "sak_live_"

// AnchorRepository defines storage operations for anchors and their keys
type AnchorRepository interface {
	Create(ctx context.Context, anchor *domain.Anchor) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Anchor, error)
	FindByAPIKeyIndex(ctx context.Context, index string) (*domain.Anchor, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type APIKeyService struct {
	repo     AnchorRepository
	indexKey []byte
	cost     int
}

// NewAPIKeyService keys the lookup index with indexKey. Changing it
// invalidates every issued key.
func NewAPIKeyService(repo AnchorRepository, indexKey []byte) *APIKeyService {
	return &APIKeyService{repo: repo, indexKey: indexKey, cost: bcrypt.DefaultCost}
}

// CreateAnchor registers an anchor and returns its raw API key. The raw key
// is not stored and cannot be recovered.
func (s *APIKeyService) CreateAnchor(ctx context.Context, name string) (*domain.Anchor, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", errors.New("anchor name is required")
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return nil, "", errors.Wrap(err, "failed to generate random bytes")
	}
	rawKey := apiKeyPrefix + hex.EncodeToString(keyBytes)

	hash, err := bcrypt.GenerateFromPassword(keyDigest(rawKey), s.cost)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to hash api key")
	}

	anchor := &domain.Anchor{
		ID:          uuid.New(),
		Name:        name,
		APIKeyIndex: security.BlindIndex(s.indexKey, rawKey),
		APIKeyHash:  string(hash),
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, anchor); err != nil {
		return nil, "", err
	}
	return anchor, rawKey, nil
}

// ValidateKey resolves an active anchor from a raw key.
func (s *APIKeyService) ValidateKey(ctx context.Context, rawKey string) (*domain.Anchor, error) {
	if !strings.HasPrefix(rawKey, apiKeyPrefix) {
		return nil, errors.ErrInvalidCredentials
	}

	anchor, err := s.repo.FindByAPIKeyIndex(ctx, security.BlindIndex(s.indexKey, rawKey))
	if errors.Is(err, errors.ErrAnchorNotFound) {
		return nil, errors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(anchor.APIKeyHash), keyDigest(rawKey)); err != nil {
		return nil, errors.ErrInvalidCredentials
	}
	return anchor, nil
}

// keyDigest is the bcrypt input for a raw key. Raw keys are longer than the
// 72 bytes bcrypt accepts.
func keyDigest(rawKey string) []byte {
	sum := sha256.Sum256([]byte(rawKey))
	return []byte(hex.EncodeToString(sum[:]))
}

func (s *APIKeyService) RevokeAnchor(ctx context.Context, id uuid.UUID) error {
	return s.repo.Deactivate(ctx, id)
}
