package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// TombstoneRepository — журнал жестких удалений. Только дополняется,
// чистится фоновой задачей по TTL.
type TombstoneRepository struct {
	db *sqlx.DB
}

func NewTombstoneRepository(db *sqlx.DB) *TombstoneRepository {
	return &TombstoneRepository{db: db}
}

func (r *TombstoneRepository) Record(ctx context.Context, recordType, recordID string) error {
	// Повторное жесткое удаление того же id просто освежает отметку
	query := `
        INSERT INTO tombstones (record_type, record_id, deleted_at)
        VALUES ($1, $2, CURRENT_TIMESTAMP)
        ON CONFLICT (record_type, record_id) DO UPDATE SET deleted_at = CURRENT_TIMESTAMP`

	_, err := r.db.ExecContext(ctx, query, recordType, recordID)
	if err != nil {
		return fmt.Errorf("failed to record tombstone: %w", err)
	}

	return nil
}

func (r *TombstoneRepository) ListSince(ctx context.Context, recordType string, since *time.Time, ids []string) ([]string, error) {
	query := `
        SELECT record_id FROM tombstones
        WHERE record_type = $1
        AND ($2::timestamptz IS NULL OR deleted_at > $2)
        AND ($3::text[] IS NULL OR record_id = ANY($3))
        ORDER BY deleted_at`

	var recordIDs []string
	err := r.db.SelectContext(ctx, &recordIDs, query, recordType, since, pq.StringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstones: %w", err)
	}

	return recordIDs, nil
}

// CurrentTimestamp читает часы базы. Водяные знаки синхронизации обязаны
// идти из того же источника времени, что и updated_at строк: при расхождении
// часов приложения и базы запись, закоммиченная сразу после pull, могла бы
// получить отметку раньше водяного знака и навсегда выпасть из ленты.
func (r *TombstoneRepository) CurrentTimestamp(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := r.db.GetContext(ctx, &now, `SELECT CURRENT_TIMESTAMP`); err != nil {
		return time.Time{}, fmt.Errorf("failed to read store clock: %w", err)
	}

	return now, nil
}

// DeleteExpired выкидывает надгробия старше TTL. Клиент, не тянувший
// изменения дольше TTL, обязан делать полную пересинхронизацию.
func (r *TombstoneRepository) DeleteExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	query := `DELETE FROM tombstones WHERE deleted_at < CURRENT_TIMESTAMP - $1::interval`

	result, err := r.db.ExecContext(ctx, query, ttl.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tombstones: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}
