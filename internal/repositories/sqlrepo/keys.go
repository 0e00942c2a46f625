package sqlrepo

import (
	"context"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

type KeyRepository struct {
	handle
}

func (r *KeyRepository) Insert(ctx context.Context, k models.P2PKKey) error {
	query := `INSERT INTO p2pk_keys (public_key, private_key, used, used_count, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.exec(ctx, query, k.PublicKey, k.PrivateKey, k.Used, k.UsedCount, toMillis(k.CreatedAt))
	return classify("insert key", err)
}

func (r *KeyRepository) Update(ctx context.Context, k models.P2PKKey) error {
	res, err := r.exec(ctx, `UPDATE p2pk_keys SET used = ?, used_count = ? WHERE public_key = ?`, k.Used, k.UsedCount, k.PublicKey)
	if err != nil {
		return classify("update key", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("get rows affected", err)
	}
	if n == 0 {
		return classify("update key", common.ErrNotFound)
	}
	return nil
}

const keyColumns = `public_key, private_key, used, used_count, created_at`

func (r *KeyRepository) GetByPublicKey(ctx context.Context, pub string) (models.P2PKKey, error) {
	k, err := scanKey(r.queryRow(ctx, `SELECT `+keyColumns+` FROM p2pk_keys WHERE public_key = ?`, pub))
	if err != nil {
		return models.P2PKKey{}, classify("select key", err)
	}
	return k, nil
}

func (r *KeyRepository) List(ctx context.Context) ([]models.P2PKKey, error) {
	rows, err := r.query(ctx, `SELECT `+keyColumns+` FROM p2pk_keys ORDER BY created_at`)
	if err != nil {
		return nil, classify("select keys", err)
	}
	defer rows.Close()

	var result []models.P2PKKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, classify("scan key", err)
		}
		result = append(result, k)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("select keys", err)
	}
	return result, nil
}

func (r *KeyRepository) Delete(ctx context.Context, pub string) error {
	_, err := r.exec(ctx, `DELETE FROM p2pk_keys WHERE public_key = ?`, pub)
	return classify("delete key", err)
}

func scanKey(s scanner) (models.P2PKKey, error) {
	var (
		k  models.P2PKKey
		ts int64
	)
	if err := s.Scan(&k.PublicKey, &k.PrivateKey, &k.Used, &k.UsedCount, &ts); err != nil {
		return models.P2PKKey{}, err
	}
	k.CreatedAt = fromMillis(ts)
	return k, nil
}
