package sqlrepo

import (
	"context"
)

type SettingsRepository struct {
	handle
}

func (r *SettingsRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	if err := r.queryRow(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v); err != nil {
		return nil, classify("get setting "+key, err)
	}
	return v, nil
}

func (r *SettingsRepository) Put(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := r.exec(ctx, query, key, value)
	return classify("put setting "+key, err)
}

func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	_, err := r.exec(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return classify("delete setting "+key, err)
}
