package sqlrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

type PendingTokenRepository struct {
	handle
}

func (r *PendingTokenRepository) Upsert(ctx context.Context, p models.PendingToken) error {
	proofs, err := json.Marshal(p.Proofs)
	if err != nil {
		return fmt.Errorf("failed to encode proofs: %w", err)
	}
	query := `INSERT INTO pending_tokens (id, token, amount, mint, proofs, created_at, tx_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET token = excluded.token,
			amount = excluded.amount,
			mint = excluded.mint,
			proofs = excluded.proofs,
			created_at = excluded.created_at,
			tx_id = excluded.tx_id`
	_, err = r.exec(ctx, query, p.ID, p.Token, p.Amount, p.MintURL, string(proofs), toMillis(p.CreatedAt), p.TxID)
	return classify("upsert pending token", err)
}

const pendingColumns = `id, token, amount, mint, proofs, created_at, tx_id`

func (r *PendingTokenRepository) GetByID(ctx context.Context, id string) (models.PendingToken, error) {
	row := r.queryRow(ctx, `SELECT `+pendingColumns+` FROM pending_tokens WHERE id = ?`, id)
	p, err := scanPending(row)
	if err != nil {
		return models.PendingToken{}, classify("select pending token", err)
	}
	return p, nil
}

func (r *PendingTokenRepository) List(ctx context.Context) ([]models.PendingToken, error) {
	rows, err := r.query(ctx, `SELECT `+pendingColumns+` FROM pending_tokens ORDER BY created_at`)
	if err != nil {
		return nil, classify("select pending tokens", err)
	}
	defer rows.Close()

	var result []models.PendingToken
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, classify("scan pending token", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("select pending tokens", err)
	}
	return result, nil
}

// Delete removes a pending token; a missing id is not an error.
func (r *PendingTokenRepository) Delete(ctx context.Context, id string) error {
	_, err := r.exec(ctx, `DELETE FROM pending_tokens WHERE id = ?`, id)
	return classify("delete pending token", err)
}

func scanPending(s scanner) (models.PendingToken, error) {
	var (
		p      models.PendingToken
		proofs string
		ts     int64
	)
	if err := s.Scan(&p.ID, &p.Token, &p.Amount, &p.MintURL, &proofs, &ts, &p.TxID); err != nil {
		return models.PendingToken{}, err
	}
	if err := json.Unmarshal([]byte(proofs), &p.Proofs); err != nil {
		return models.PendingToken{}, fmt.Errorf("%w: pending token %s: %v", common.ErrDecode, p.ID, err)
	}
	p.Proofs = p.Proofs.WithMint(p.MintURL)
	p.CreatedAt = fromMillis(ts)
	return p, nil
}
