package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/shopkart/internal/domain/settings"
)

const (
	loadSettingsSQL = `SELECT key, value FROM settings`

	upsertSettingSQL = `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
)

var _ settings.Repository = (*SettingsRepository)(nil)

// SettingsRepository stores store settings as key/value rows.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository returns a SettingsRepository that uses the given pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Load returns all rows as a map.
func (r *SettingsRepository) Load(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, loadSettingsSQL)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return values, nil
}

// Save upserts every key in values atomically.
func (r *SettingsRepository) Save(ctx context.Context, values map[string]string) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for k, v := range values {
			batch.Queue(upsertSettingSQL, k, v)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
