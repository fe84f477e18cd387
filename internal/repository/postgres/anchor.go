package postgres

import (
	"context"
	"database/sql"

	"sak/pkg/domain"
	"sak/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type AnchorRepository struct {
	db *sqlx.DB
}

func NewAnchorRepository(db *sqlx.DB) *AnchorRepository {
	return &AnchorRepository{db: db}
}

func (r *AnchorRepository) Create(ctx context.Context, anchor *domain.Anchor) error {
	query := `
		INSERT INTO anchors (
			id, name, api_key_index, api_key_hash, active, created_at
		) VALUES (
			:id, :name, :api_key_index, :api_key_hash, :active, :created_at
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, anchor)
	if err != nil {
		return errors.Wrap(err, "failed to create anchor")
	}
	return nil
}

func (r *AnchorRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Anchor, error) {
	var anchor domain.Anchor
	err := r.db.GetContext(ctx, &anchor, `SELECT * FROM anchors WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrAnchorNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get anchor")
	}
	return &anchor, nil
}

// FindByAPIKeyIndex looks up an active anchor by the blind index of its key.
func (r *AnchorRepository) FindByAPIKeyIndex(ctx context.Context, index string) (*domain.Anchor, error) {
	var anchor domain.Anchor
	err := r.db.GetContext(ctx, &anchor,
		`SELECT * FROM anchors WHERE api_key_index = $1 AND active = true`, index)
	if err == sql.ErrNoRows {
		return nil, errors.ErrAnchorNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get anchor")
	}
	return &anchor, nil
}

func (r *AnchorRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE anchors SET active = false WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to deactivate anchor")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrAnchorNotFound
	}
	return nil
}

// ==============================================================================
// WEBHOOKS
// ==============================================================================

type WebhookRepository struct {
	db *sqlx.DB
}

func NewWebhookRepository(db *sqlx.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

type webhookRow struct {
	domain.Webhook
	EventList pq.StringArray `db:"events"`
}

func (row *webhookRow) toWebhook() *domain.Webhook {
	w := row.Webhook
	w.Events = []string(row.EventList)
	return &w
}

func (r *WebhookRepository) Create(ctx context.Context, w *domain.Webhook) error {
	query := `
		INSERT INTO anchor_webhooks (
			id, anchor_id, url, events, secret, active, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.AnchorID, w.URL, pq.Array(w.Events), w.Secret, w.Active, w.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create webhook")
	}
	return nil
}

func (r *WebhookRepository) ListByAnchor(ctx context.Context, anchorID uuid.UUID) ([]*domain.Webhook, error) {
	return r.list(ctx, `SELECT * FROM anchor_webhooks WHERE anchor_id = $1 ORDER BY created_at`, anchorID)
}

// ListForEvent returns the active webhooks subscribed to event.
func (r *WebhookRepository) ListForEvent(ctx context.Context, event string) ([]*domain.Webhook, error) {
	return r.list(ctx,
		`SELECT * FROM anchor_webhooks WHERE active = true AND $1 = ANY(events) ORDER BY created_at`, event)
}

func (r *WebhookRepository) Delete(ctx context.Context, anchorID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM anchor_webhooks WHERE id = $1 AND anchor_id = $2`, id, anchorID)
	if err != nil {
		return errors.Wrap(err, "failed to delete webhook")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrWebhookNotFound
	}
	return nil
}

func (r *WebhookRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Webhook, error) {
	var rows []webhookRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list webhooks")
	}
	out := make([]*domain.Webhook, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toWebhook())
	}
	return out, nil
}
