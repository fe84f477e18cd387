// ==============================================================================
// KYC RECORD REPOSITORY
// ==============================================================================
// One row per (user, tier). The data column holds the JSON document, sealed
// by the configured security.Sealer.
// ==============================================================================

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"sak/internal/security"
	"sak/pkg/domain"
	"sak/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type KYCRepository struct {
	db     *sqlx.DB
	sealer security.Sealer
}

func NewKYCRepository(db *sqlx.DB, sealer security.Sealer) *KYCRepository {
	if sealer == nil {
		sealer = security.PlainSealer{}
	}
	return &KYCRepository{db: db, sealer: sealer}
}

// kycRow is a kyc_records row before the document is opened.
type kycRow struct {
	ID          uuid.UUID        `db:"id"`
	UserID      uuid.UUID        `db:"user_id"`
	KYCType     domain.KYCTier   `db:"kyc_type"`
	Status      domain.KYCStatus `db:"status"`
	RawData     string           `db:"data"`
	ValidatedAt *time.Time       `db:"validated_at"`
	ReviewedBy  *string          `db:"reviewed_by"`
	ReviewNotes *string          `db:"review_notes"`
	CreatedAt   time.Time        `db:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at"`
}

const kycColumns = `id, user_id, kyc_type, status, data, validated_at, reviewed_by, review_notes, created_at, updated_at`

func (r *KYCRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.KYCRecord, error) {
	query := `SELECT ` + kycColumns + ` FROM kyc_records WHERE user_id = $1 ORDER BY created_at`

	var rows []kycRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "failed to list kyc records")
	}

	out := make([]*domain.KYCRecord, 0, len(rows))
	for i := range rows {
		rec, err := r.toRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *KYCRepository) FindByUserAndTier(ctx context.Context, userID uuid.UUID, tier domain.KYCTier) (*domain.KYCRecord, error) {
	query := `SELECT ` + kycColumns + ` FROM kyc_records WHERE user_id = $1 AND kyc_type = $2`

	var row kycRow
	err := r.db.GetContext(ctx, &row, query, userID, tier)
	if err == sql.ErrNoRows {
		return nil, errors.ErrKYCRecordNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get kyc record")
	}
	return r.toRecord(&row)
}

// Save upserts on (user_id, kyc_type). The stored row keeps its original id
// and created_at, which are copied back into record.
func (r *KYCRepository) Save(ctx context.Context, record *domain.KYCRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	data, err := r.seal(record.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO kyc_records (
			id, user_id, kyc_type, status, data, validated_at,
			reviewed_by, review_notes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (user_id, kyc_type) DO UPDATE SET
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			validated_at = EXCLUDED.validated_at,
			reviewed_by = EXCLUDED.reviewed_by,
			review_notes = EXCLUDED.review_notes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err = r.db.QueryRowxContext(ctx, query,
		record.ID, record.UserID, record.KYCType, record.Status, data, record.ValidatedAt,
		record.ReviewedBy, record.ReviewNotes, record.CreatedAt, record.UpdatedAt,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to save kyc record")
	}
	return nil
}

func (r *KYCRepository) Update(ctx context.Context, record *domain.KYCRecord) error {
	data, err := r.seal(record.Data)
	if err != nil {
		return err
	}

	query := `
		UPDATE kyc_records SET
			status = $1,
			data = $2,
			validated_at = $3,
			reviewed_by = $4,
			review_notes = $5,
			updated_at = $6
		WHERE id = $7
	`

	res, err := r.db.ExecContext(ctx, query,
		record.Status, data, record.ValidatedAt, record.ReviewedBy, record.ReviewNotes,
		record.UpdatedAt, record.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update kyc record")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrKYCRecordNotFound
	}
	return nil
}

// CountByStatus reports how many records sit in each status, for readiness
// and ops tooling.
func (r *KYCRepository) CountByStatus(ctx context.Context) (map[domain.KYCStatus]int, error) {
	var rows []struct {
		Status domain.KYCStatus `db:"status"`
		Count  int              `db:"count"`
	}
	err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM kyc_records GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count kyc records")
	}
	out := make(map[domain.KYCStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *KYCRepository) seal(data domain.KYCData) (string, error) {
	if data == nil {
		data = domain.KYCData{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode kyc data")
	}
	sealed, err := r.sealer.Seal(raw)
	if err != nil {
		return "", errors.Wrap(err, "failed to seal kyc data")
	}
	return sealed, nil
}

func (r *KYCRepository) toRecord(row *kycRow) (*domain.KYCRecord, error) {
	raw, err := r.sealer.Open(row.RawData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open kyc data")
	}
	data := domain.KYCData{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, errors.Wrap(err, "failed to decode kyc data")
		}
	}
	return &domain.KYCRecord{
		ID:          row.ID,
		UserID:      row.UserID,
		KYCType:     row.KYCType,
		Status:      row.Status,
		Data:        data,
		ValidatedAt: row.ValidatedAt,
		ReviewedBy:  row.ReviewedBy,
		ReviewNotes: row.ReviewNotes,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}
