package kyc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sak/pkg/domain"
	"sak/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// --- Mocks ---

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.KYCRecord, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KYCRecord), args.Error(1)
}

func (m *MockRepository) FindByUserAndTier(ctx context.Context, userID uuid.UUID, tier domain.KYCTier) (*domain.KYCRecord, error) {
	args := m.Called(ctx, userID, tier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KYCRecord), args.Error(1)
}

func (m *MockRepository) Save(ctx context.Context, record *domain.KYCRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRepository) Update(ctx context.Context, record *domain.KYCRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Upload(ctx context.Context, path, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, path, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event domain.KYCStatusEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// --- Fakes ---

// memRepository is a stateful Repository keyed by (user, tier).
type memRepository struct {
	mu      sync.Mutex
	records map[string]*domain.KYCRecord
	saves   int
}

func newMemRepository() *memRepository {
	return &memRepository{records: map[string]*domain.KYCRecord{}}
}

func memKey(userID uuid.UUID, tier domain.KYCTier) string {
	return fmt.Sprintf("%s/%s", userID, tier)
}

func (r *memRepository) FindByUser(_ context.Context, userID uuid.UUID) ([]*domain.KYCRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.KYCRecord
	for _, t := range domain.AllTiers {
		if rec, ok := r.records[memKey(userID, t)]; ok {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

func (r *memRepository) FindByUserAndTier(_ context.Context, userID uuid.UUID, tier domain.KYCTier) (*domain.KYCRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[memKey(userID, tier)]
	if !ok {
		return nil, errors.ErrKYCRecordNotFound
	}
	return copyRecord(rec), nil
}

func (r *memRepository) Save(_ context.Context, record *domain.KYCRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	key := memKey(record.UserID, record.KYCType)
	if existing, ok := r.records[key]; ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	}
	r.records[key] = copyRecord(record)
	return nil
}

func (r *memRepository) Update(_ context.Context, record *domain.KYCRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := memKey(record.UserID, record.KYCType)
	existing, ok := r.records[key]
	if !ok || existing.ID != record.ID {
		return errors.ErrKYCRecordNotFound
	}
	r.records[key] = copyRecord(record)
	return nil
}

// memUsers is a stateful UserRepository.
type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]*domain.User{}}
}

func (u *memUsers) FindOrCreateByPublicKey(_ context.Context, key string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if usr, ok := u.users[key]; ok {
		return usr, nil
	}
	usr := &domain.User{ID: uuid.New(), StellarPublicKey: key, CreatedAt: time.Now()}
	u.users[key] = usr
	return usr, nil
}

func (u *memUsers) FindByPublicKey(_ context.Context, key string) (*domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if usr, ok := u.users[key]; ok {
		return usr, nil
	}
	return nil, errors.ErrUserNotFound
}

// --- Fixtures ---

const testWallet = "GBRPYHIL2CI3FNQ4BXLFMNDLFJUNPU2HY3ZMFSHONUCEOASW7QC7OX2H"

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func baseData() domain.KYCData {
	return domain.KYCData{
		domain.FieldFullName:      "Ana Gomez",
		domain.FieldDateOfBirth:   "1990-04-02",
		domain.FieldCountry:       "ES",
		domain.FieldEmail:         "ana@example.com",
		domain.FieldDocumentIDURL: "https://files.example.com/kyc-files/u/base/1.png",
	}
}

func sepaData() domain.KYCData {
	d := baseData()
	d[domain.FieldSelfieURL] = "https://files.example.com/kyc-files/u/sepa/2.png"
	d[domain.FieldProofOfAddressURL] = "https://files.example.com/kyc-files/u/sepa/3.pdf"
	d[domain.FieldIBAN] = "ES91 2100 0418 4502 0005 1332"
	return d
}

func aaaData() domain.KYCData {
	d := sepaData()
	d[domain.FieldAdditionalDocumentURL] = "https://files.example.com/kyc-files/u/aaa/4.pdf"
	d[domain.FieldProofOfFundsURL] = "https://files.example.com/kyc-files/u/aaa/5.pdf"
	d[domain.FieldAMLScreeningResult] = "OK"
	return d
}
