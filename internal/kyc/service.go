// ==============================================================================
// KYC SERVICE - internal/kyc/service.go
// ==============================================================================
// Wallet-keyed façade over record stores used by the HTTP layer and the CLI.
// ==============================================================================

package kyc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sak/internal/metrics"
	"sak/pkg/domain"
	"sak/pkg/errors"
	"sak/pkg/logger"
)

// UserRepository resolves wallets to users.
type UserRepository interface {
	FindOrCreateByPublicKey(ctx context.Context, publicKey string) (*domain.User, error)
	// FindByPublicKey returns errors.ErrUserNotFound when absent.
	FindByPublicKey(ctx context.Context, publicKey string) (*domain.User, error)
}

// EventPublisher announces record status changes.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.KYCStatusEvent) error
}

// StatusCache holds per-wallet status summaries. Any Get error is treated as a miss.
type StatusCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

const statusCacheTTL = 5 * time.Minute

type Service struct {
	repo    Repository
	users   UserRepository
	storage FileStorage
	events  EventPublisher
	cache   StatusCache
	locks   *KeyedMutex
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	maxFileSizeMB int
}

type ServiceConfig struct {
	Events        EventPublisher
	Cache         StatusCache
	Logger        logger.Logger
	Metrics       *metrics.Metrics
	MaxFileSizeMB int
	Now           func() time.Time
}

func NewService(repo Repository, users UserRepository, storage FileStorage, cfg ServiceConfig) *Service {
	s := &Service{
		repo:          repo,
		users:         users,
		storage:       storage,
		events:        cfg.Events,
		cache:         cfg.Cache,
		locks:         NewKeyedMutex(),
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		now:           cfg.Now,
		maxFileSizeMB: cfg.MaxFileSizeMB,
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	if s.metrics == nil {
		s.metrics = metrics.NopMetrics()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.maxFileSizeMB <= 0 {
		s.maxFileSizeMB = DefaultMaxFileSizeMB
	}
	return s
}

// StoreFor returns a loaded record store for the wallet, creating the user on first sight.
func (s *Service) StoreFor(ctx context.Context, wallet string) (*RecordStore, error) {
	if !domain.IsValidStellarPublicKey(wallet) {
		return nil, errors.ErrInvalidPublicKey
	}
	user, err := s.users.FindOrCreateByPublicKey(ctx, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve user")
	}
	store := s.newStore(user)
	if err := store.Refresh(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// existingStore is StoreFor without user creation; read paths must not create users.
func (s *Service) existingStore(ctx context.Context, wallet string) (*RecordStore, error) {
	if !domain.IsValidStellarPublicKey(wallet) {
		return nil, errors.ErrInvalidPublicKey
	}
	user, err := s.users.FindByPublicKey(ctx, wallet)
	if err != nil {
		return nil, err
	}
	store := s.newStore(user)
	if err := store.Refresh(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Service) newStore(user *domain.User) *RecordStore {
	return NewRecordStore(s.repo, s.storage, user.ID,
		WithLocks(s.locks),
		WithLogger(s.logger),
		WithMetrics(s.metrics),
		WithClock(s.now),
	)
}

// Submit validates data for the tier and stores a pending record.
func (s *Service) Submit(ctx context.Context, wallet string, tier domain.KYCTier, data domain.KYCData) (*domain.KYCRecord, error) {
	if !tier.Valid() {
		return nil, errors.ErrInvalidTier
	}
	if fields := ValidateAt(tier, data, s.now()); len(fields) > 0 {
		s.metrics.Submissions.With("tier", string(tier), "result", "rejected_validation").Add(1)
		return nil, &ValidationError{Fields: fields}
	}

	store, err := s.StoreFor(ctx, wallet)
	if err != nil {
		return nil, err
	}
	previous := store.Status(tier)

	rec, err := store.CreateKycRecord(ctx, tier, data)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, wallet)
	s.publish(ctx, wallet, tier, previous, rec.Status)
	return rec, nil
}

// WalletStatus is the anchor-facing summary of all tiers.
type WalletStatus struct {
	Wallet      string              `json:"wallet"`
	KYC         domain.TierStatuses `json:"kyc"`
	LastUpdated *time.Time          `json:"lastUpdated"`
}

func (s *Service) Status(ctx context.Context, wallet string) (*WalletStatus, error) {
	var cached WalletStatus
	if s.cache != nil && s.cache.Get(ctx, statusCacheKey(wallet), &cached) == nil {
		return &cached, nil
	}

	store, err := s.existingStore(ctx, wallet)
	if errors.Is(err, errors.ErrUserNotFound) {
		return &WalletStatus{Wallet: wallet, KYC: domain.StatusesFromRecords(nil)}, nil
	}
	if err != nil {
		return nil, err
	}

	out := &WalletStatus{Wallet: wallet, KYC: store.Statuses()}
	for _, r := range store.Records() {
		updated := r.UpdatedAt
		if out.LastUpdated == nil || updated.After(*out.LastUpdated) {
			out.LastUpdated = &updated
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statusCacheKey(wallet), out, statusCacheTTL); err != nil {
			s.logger.Warn("Failed to cache kyc status", map[string]interface{}{
				"event":  "kyc_status_cache_failed",
				"wallet": wallet,
				"error":  err.Error(),
			})
		}
	}
	return out, nil
}

type TierStatus struct {
	Tier        domain.KYCTier   `json:"tier"`
	Status      domain.KYCStatus `json:"status"`
	UpdatedAt   *time.Time       `json:"updatedAt"`
	ValidatedBy *string          `json:"validatedBy"`
}

func (s *Service) TierStatus(ctx context.Context, wallet string, tier domain.KYCTier) (*TierStatus, error) {
	if !tier.Valid() {
		return nil, errors.ErrInvalidTier
	}
	out := &TierStatus{Tier: tier, Status: domain.StatusNotSubmitted}

	store, err := s.existingStore(ctx, wallet)
	if errors.Is(err, errors.ErrUserNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	if rec, ok := store.GetKycByType(tier); ok {
		out.Status = rec.Status
		updated := rec.UpdatedAt
		out.UpdatedAt = &updated
		if rec.Status == domain.StatusValidated {
			out.ValidatedBy = rec.ReviewedBy
		}
	}
	return out, nil
}

// Verify marks the tier validated on behalf of an anchor.
func (s *Service) Verify(ctx context.Context, wallet string, tier domain.KYCTier, verifiedBy, notes string) (*domain.KYCRecord, error) {
	return s.review(ctx, wallet, tier, domain.StatusValidated, verifiedBy, notes)
}

// Reject marks the tier rejected. Reason and details are kept as review notes.
func (s *Service) Reject(ctx context.Context, wallet string, tier domain.KYCTier, reason, rejectedBy, details string) (*domain.KYCRecord, error) {
	notes := strings.TrimSpace(reason)
	if d := strings.TrimSpace(details); d != "" {
		notes = fmt.Sprintf("%s: %s", notes, d)
	}
	return s.review(ctx, wallet, tier, domain.StatusRejected, rejectedBy, notes)
}

func (s *Service) review(ctx context.Context, wallet string, tier domain.KYCTier, to domain.KYCStatus, by, notes string) (*domain.KYCRecord, error) {
	if !tier.Valid() {
		return nil, errors.ErrInvalidTier
	}
	store, err := s.existingStore(ctx, wallet)
	if errors.Is(err, errors.ErrUserNotFound) {
		return nil, errors.ErrKYCRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	rec, previous, err := store.Review(ctx, tier, to, by, notes)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, wallet)
	s.publish(ctx, wallet, tier, previous, rec.Status)
	return rec, nil
}

// Metadata returns non-identifying facts per submitted tier.
func (s *Service) Metadata(ctx context.Context, wallet string) (map[domain.KYCTier]domain.TierMetadata, error) {
	out := map[domain.KYCTier]domain.TierMetadata{}
	store, err := s.existingStore(ctx, wallet)
	if errors.Is(err, errors.ErrUserNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	for _, r := range store.Records() {
		submitted := r.CreatedAt
		md := domain.TierMetadata{
			Status:      r.Status,
			SubmittedAt: &submitted,
			ValidatedAt: r.ValidatedAt,
		}
		switch r.KYCType {
		case domain.KYCTierBase:
			md.DocumentType = "national_id"
			md.IssuanceCountry = strings.ToUpper(r.Data.Text(domain.FieldCountry))
			md.VerificationMethod = "manual"
		case domain.KYCTierSepa:
			md.DocumentType = "bank_statement"
			if iban := NormalizeIBAN(r.Data.Text(domain.FieldIBAN)); len(iban) >= 2 {
				md.IssuanceCountry = iban[:2]
			}
			md.VerificationMethod = "manual"
		case domain.KYCTierAAA:
			md.VerificationMethod = "zk_proof"
		}
		out[r.KYCType] = md
	}
	return out, nil
}

// Dashboard is the per-wallet overview shown to end users.
type Dashboard struct {
	Wallet   string              `json:"wallet"`
	Statuses domain.TierStatuses `json:"statuses"`
	Progress float64             `json:"progress"`
}

func (s *Service) Dashboard(ctx context.Context, wallet string) (*Dashboard, error) {
	store, err := s.StoreFor(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Wallet: wallet, Statuses: store.Statuses(), Progress: store.Progress()}, nil
}

// FileRejection is returned when an upload fails the size or type rules.
type FileRejection struct {
	Message string
}

func (e *FileRejection) Error() string { return e.Message }

// Upload checks the file against the tier's accepted kinds and stores it.
func (s *Service) Upload(ctx context.Context, wallet string, tier domain.KYCTier, fileName, contentType string, data []byte) (*UploadResult, error) {
	allowed := AllowedExtensions(FileKindImage, FileKindPDF, FileKindVideo)
	if msg := ValidateFile(fileName, int64(len(data)), allowed, s.maxFileSizeMB); msg != "" {
		return nil, &FileRejection{Message: msg}
	}
	store, err := s.StoreFor(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return store.UploadFile(ctx, tier, fileName, contentType, data)
}

// DeleteFile removes a document. Only paths under the wallet's own prefix are accepted.
func (s *Service) DeleteFile(ctx context.Context, wallet, path string) error {
	store, err := s.StoreFor(ctx, wallet)
	if err != nil {
		return err
	}
	prefix := store.UserID().String() + "/"
	if !strings.HasPrefix(path, prefix) || strings.Contains(path, "..") {
		return fmt.Errorf("%w: %w", errors.ErrDeleteFailed, errors.ErrForeignPath)
	}
	return store.DeleteFile(ctx, path)
}

func (s *Service) publish(ctx context.Context, wallet string, tier domain.KYCTier, previous, next domain.KYCStatus) {
	if s.events == nil {
		return
	}
	event := domain.KYCStatusEvent{
		Event:          domain.EventForStatus(next),
		Wallet:         wallet,
		Tier:           tier,
		NewStatus:      next,
		PreviousStatus: previous,
		Timestamp:      s.now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish kyc status event", map[string]interface{}{
			"event":  "kyc_event_publish_failed",
			"wallet": wallet,
			"tier":   tier,
			"error":  err.Error(),
		})
	}
}

func (s *Service) invalidate(ctx context.Context, wallet string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statusCacheKey(wallet)); err != nil {
		s.logger.Warn("Failed to invalidate kyc status cache", map[string]interface{}{
			"event":  "kyc_status_cache_invalidate_failed",
			"wallet": wallet,
			"error":  err.Error(),
		})
	}
}

func statusCacheKey(wallet string) string {
	return "kyc:status:" + wallet
}
