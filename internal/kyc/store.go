// ==============================================================================
// KYC RECORD STORE - internal/kyc/store.go
// ==============================================================================
// Per-user view over persisted KYC records with a local cache, file uploads and
// serialized writes per (user, tier).
// ==============================================================================

package kyc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sak/internal/metrics"
	"sak/pkg/domain"
	"sak/pkg/errors"
	"sak/pkg/logger"

	"github.com/google/uuid"
)

// ==============================================================================
// PORTS
// ==============================================================================

// Repository persists KYC records.
type Repository interface {
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.KYCRecord, error)
	// FindByUserAndTier returns errors.ErrKYCRecordNotFound when absent.
	FindByUserAndTier(ctx context.Context, userID uuid.UUID, tier domain.KYCTier) (*domain.KYCRecord, error)
	// Save inserts the record or replaces the one held for the same (user, tier).
	// ID and CreatedAt are set from the stored row.
	Save(ctx context.Context, record *domain.KYCRecord) error
	// Update writes status, data and review fields of an existing record by ID.
	Update(ctx context.Context, record *domain.KYCRecord) error
}

// FileStorage stores uploaded documents and serves them at a public URL.
type FileStorage interface {
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, path string) error
}

type UploadResult struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// ==============================================================================
// KEYED LOCKS
// ==============================================================================

// KeyedMutex hands out one mutex per key. Entries are dropped when unused.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// ==============================================================================
// RECORD STORE
// ==============================================================================

type RecordStore struct {
	repo    Repository
	storage FileStorage
	userID  uuid.UUID
	locks   *KeyedMutex
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	records []*domain.KYCRecord
}

type StoreOption func(*RecordStore)

// WithLocks shares the write locks between stores so that two stores for the
// same user still serialize their writes.
func WithLocks(l *KeyedMutex) StoreOption {
	return func(s *RecordStore) { s.locks = l }
}

func WithLogger(l logger.Logger) StoreOption {
	return func(s *RecordStore) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) StoreOption {
	return func(s *RecordStore) { s.metrics = m }
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *RecordStore) { s.now = now }
}

func NewRecordStore(repo Repository, storage FileStorage, userID uuid.UUID, opts ...StoreOption) *RecordStore {
	s := &RecordStore{
		repo:    repo,
		storage: storage,
		userID:  userID,
		locks:   NewKeyedMutex(),
		logger:  logger.NewNop(),
		metrics: metrics.NopMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RecordStore) UserID() uuid.UUID { return s.userID }

// Refresh replaces the cache with every record stored for the user.
func (s *RecordStore) Refresh(ctx context.Context) error {
	records, err := s.repo.FindByUser(ctx, s.userID)
	if err != nil {
		return errors.Wrap(err, "failed to load kyc records")
	}
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

// Records returns copies of the cached records.
func (s *RecordStore) Records() []*domain.KYCRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.KYCRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, copyRecord(r))
	}
	return out
}

// GetKycByType looks the tier up in the cache only.
func (s *RecordStore) GetKycByType(tier domain.KYCTier) (*domain.KYCRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.KYCType == tier {
			return copyRecord(r), true
		}
	}
	return nil, false
}

func (s *RecordStore) Status(tier domain.KYCTier) domain.KYCStatus {
	if r, ok := s.GetKycByType(tier); ok {
		return r.Status
	}
	return domain.StatusNotSubmitted
}

func (s *RecordStore) Statuses() domain.TierStatuses {
	return domain.StatusesFromRecords(s.Records())
}

// Progress is the dashboard completion percentage: validated tiers out of three.
func (s *RecordStore) Progress() float64 {
	return Progress(s.Statuses())
}

// CreateKycRecord stores a pending record for the tier, replacing a pending or
// rejected one. A validated tier cannot be submitted again.
func (s *RecordStore) CreateKycRecord(ctx context.Context, tier domain.KYCTier, data domain.KYCData) (*domain.KYCRecord, error) {
	if !tier.Valid() {
		return nil, errors.ErrInvalidTier
	}

	unlock := s.locks.Lock(s.lockKey(tier))
	defer unlock()

	existing, err := s.current(ctx, tier)
	if err != nil {
		s.metrics.Submissions.With("tier", string(tier), "result", "error").Add(1)
		return nil, err
	}
	if existing.IsValidated() {
		s.metrics.Submissions.With("tier", string(tier), "result", "already_validated").Add(1)
		return nil, errors.ErrAlreadyValidated
	}

	now := s.now().UTC()
	record := &domain.KYCRecord{
		ID:        uuid.New(),
		UserID:    s.userID,
		KYCType:   tier,
		Status:    domain.StatusPending,
		Data:      data.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.Save(ctx, record); err != nil {
		s.metrics.Submissions.With("tier", string(tier), "result", "error").Add(1)
		s.logger.Error("Failed to save kyc record", map[string]interface{}{
			"event":   "kyc_record_save_failed",
			"user_id": s.userID.String(),
			"tier":    tier,
			"error":   err.Error(),
		})
		return nil, errors.Wrap(err, "failed to save kyc record")
	}

	s.mu.Lock()
	s.records = append(removeTier(s.records, tier), record)
	s.mu.Unlock()

	s.metrics.Submissions.With("tier", string(tier), "result", "created").Add(1)
	s.logger.Info("KYC record created", map[string]interface{}{
		"event":     "kyc_record_created",
		"user_id":   s.userID.String(),
		"tier":      tier,
		"record_id": record.ID.String(),
	})

	return copyRecord(record), nil
}

// UpdateKycRecord merges partial into the record's data and optionally moves it
// to status. Every move to validated stamps a fresh ValidatedAt, even when the
// record already was validated.
func (s *RecordStore) UpdateKycRecord(ctx context.Context, tier domain.KYCTier, partial domain.KYCData, status *domain.KYCStatus) (*domain.KYCRecord, error) {
	return s.update(ctx, tier, func(r *domain.KYCRecord, now time.Time) error {
		r.Data = MergeData(r.Data, partial)
		if status != nil {
			setStatus(r, *status, now)
		}
		return nil
	})
}

// Review moves a record to validated or rejected on behalf of a reviewer and
// returns the record together with its previous status.
func (s *RecordStore) Review(ctx context.Context, tier domain.KYCTier, to domain.KYCStatus, reviewer, notes string) (*domain.KYCRecord, domain.KYCStatus, error) {
	var previous domain.KYCStatus
	rec, err := s.update(ctx, tier, func(r *domain.KYCRecord, now time.Time) error {
		previous = r.Status
		if err := checkReviewTransition(r.Status, to); err != nil {
			return err
		}
		setStatus(r, to, now)
		if reviewer != "" {
			r.ReviewedBy = &reviewer
		}
		if notes != "" {
			r.ReviewNotes = &notes
		}
		return nil
	})
	return rec, previous, err
}

// setStatus moves r to status. ValidatedAt is set only while r is validated.
func setStatus(r *domain.KYCRecord, status domain.KYCStatus, now time.Time) {
	r.Status = status
	if status == domain.StatusValidated {
		stamped := now
		r.ValidatedAt = &stamped
		return
	}
	r.ValidatedAt = nil
}

func (s *RecordStore) update(ctx context.Context, tier domain.KYCTier, mutate func(*domain.KYCRecord, time.Time) error) (*domain.KYCRecord, error) {
	if !tier.Valid() {
		return nil, errors.ErrInvalidTier
	}

	unlock := s.locks.Lock(s.lockKey(tier))
	defer unlock()

	existing, err := s.current(ctx, tier)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.ErrKYCRecordNotFound
	}

	previous := existing.Status
	now := s.now().UTC()
	updated := copyRecord(existing)
	if err := mutate(updated, now); err != nil {
		return nil, err
	}
	updated.UpdatedAt = now

	if err := s.repo.Update(ctx, updated); err != nil {
		if errors.Is(err, errors.ErrKYCRecordNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to update kyc record")
	}

	s.mu.Lock()
	s.records = replaceByID(s.records, updated)
	s.mu.Unlock()

	if updated.Status != previous {
		s.metrics.StatusTransitions.With("tier", string(tier), "status", string(updated.Status)).Add(1)
	}
	s.logger.Info("KYC record updated", map[string]interface{}{
		"event":       "kyc_record_updated",
		"user_id":     s.userID.String(),
		"tier":        tier,
		"record_id":   updated.ID.String(),
		"from_status": previous,
		"to_status":   updated.Status,
	})

	return copyRecord(updated), nil
}

// UploadFile stores a document under {user}/{tier}/{unixMillis}.{ext}. Records
// are not touched; callers attach the returned URL to their form data.
func (s *RecordStore) UploadFile(ctx context.Context, tier domain.KYCTier, fileName, contentType string, data []byte) (*UploadResult, error) {
	if !tier.Valid() {
		return nil, errors.ErrInvalidTier
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if ext == "" {
		ext = "bin"
	}
	path := fmt.Sprintf("%s/%s/%d.%s", s.userID.String(), tier, s.now().UnixMilli(), ext)

	url, err := s.storage.Upload(ctx, path, contentType, data)
	if err != nil {
		s.metrics.FileOperations.With("operation", "upload", "result", "error").Add(1)
		s.logger.Error("File upload failed", map[string]interface{}{
			"event":   "kyc_file_upload_failed",
			"user_id": s.userID.String(),
			"tier":    tier,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", errors.ErrUploadFailed, err)
	}

	s.metrics.FileOperations.With("operation", "upload", "result", "ok").Add(1)
	return &UploadResult{Path: path, URL: url}, nil
}

func (s *RecordStore) DeleteFile(ctx context.Context, path string) error {
	if err := s.storage.Delete(ctx, path); err != nil {
		s.metrics.FileOperations.With("operation", "delete", "result", "error").Add(1)
		return fmt.Errorf("%w: %v", errors.ErrDeleteFailed, err)
	}
	s.metrics.FileOperations.With("operation", "delete", "result", "ok").Add(1)
	return nil
}

// current returns the record for tier, preferring the stored copy so that
// writes from other processes are seen. A nil record means not submitted.
func (s *RecordStore) current(ctx context.Context, tier domain.KYCTier) (*domain.KYCRecord, error) {
	rec, err := s.repo.FindByUserAndTier(ctx, s.userID, tier)
	switch {
	case err == nil:
		s.mu.Lock()
		s.records = replaceByID(removeTierExcept(s.records, tier, rec.ID), rec)
		s.mu.Unlock()
		return rec, nil
	case errors.Is(err, errors.ErrKYCRecordNotFound):
		s.mu.Lock()
		s.records = removeTier(s.records, tier)
		s.mu.Unlock()
		return nil, nil
	default:
		return nil, errors.Wrap(err, "failed to load kyc record")
	}
}

func (s *RecordStore) lockKey(tier domain.KYCTier) string {
	return s.userID.String() + "/" + string(tier)
}

// Progress is the share of validated tiers as a percentage.
func Progress(statuses domain.TierStatuses) float64 {
	validated := 0
	for _, t := range domain.AllTiers {
		if statuses[t] == domain.StatusValidated {
			validated++
		}
	}
	return float64(validated) / float64(len(domain.AllTiers)) * 100
}

func removeTier(records []*domain.KYCRecord, tier domain.KYCTier) []*domain.KYCRecord {
	out := records[:0:0]
	for _, r := range records {
		if r.KYCType != tier {
			out = append(out, r)
		}
	}
	return out
}

func removeTierExcept(records []*domain.KYCRecord, tier domain.KYCTier, keep uuid.UUID) []*domain.KYCRecord {
	out := records[:0:0]
	for _, r := range records {
		if r.KYCType != tier || r.ID == keep {
			out = append(out, r)
		}
	}
	return out
}

func replaceByID(records []*domain.KYCRecord, rec *domain.KYCRecord) []*domain.KYCRecord {
	out := make([]*domain.KYCRecord, 0, len(records)+1)
	replaced := false
	for _, r := range records {
		if r.ID == rec.ID {
			out = append(out, rec)
			replaced = true
			continue
		}
		out = append(out, r)
	}
	if !replaced {
		out = append(out, rec)
	}
	return out
}

func copyRecord(r *domain.KYCRecord) *domain.KYCRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Data = r.Data.Clone()
	if r.ValidatedAt != nil {
		t := *r.ValidatedAt
		c.ValidatedAt = &t
	}
	return &c
}
