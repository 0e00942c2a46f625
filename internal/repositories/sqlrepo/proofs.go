package sqlrepo

import (
	"context"

	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

// ProofRepository stores plaintext proofs, one row per (mint, secret).
type ProofRepository struct {
	handle
}

// Replace deletes every row for mint and inserts proofs in one transaction.
func (r *ProofRepository) Replace(ctx context.Context, mint string, proofs models.Proofs) error {
	return r.atomic(ctx, func(ctx context.Context, h handle) error {
		if _, err := h.exec(ctx, `DELETE FROM proofs WHERE mint = ?`, mint); err != nil {
			return classify("clear proofs", err)
		}
		query := `INSERT INTO proofs (mint, secret, amount, keyset_id, c, witness)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(mint, secret) DO UPDATE SET amount = excluded.amount,
				keyset_id = excluded.keyset_id,
				c = excluded.c,
				witness = excluded.witness`
		for _, p := range proofs {
			if _, err := h.exec(ctx, query, mint, p.Secret, p.Amount, p.ID, p.C, p.Witness); err != nil {
				return classify("insert proof", err)
			}
		}
		return nil
	})
}

func (r *ProofRepository) ListByMint(ctx context.Context, mint string) (models.Proofs, error) {
	rows, err := r.query(ctx, `SELECT amount, keyset_id, secret, c, witness FROM proofs WHERE mint = ? ORDER BY amount, secret`, mint)
	if err != nil {
		return nil, classify("select proofs", err)
	}
	defer rows.Close()

	var result models.Proofs
	for rows.Next() {
		p := models.Proof{Mint: mint}
		if err := rows.Scan(&p.Amount, &p.ID, &p.Secret, &p.C, &p.Witness); err != nil {
			return nil, classify("scan proof", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("select proofs", err)
	}
	return result, nil
}

func (r *ProofRepository) Mints(ctx context.Context) ([]string, error) {
	rows, err := r.query(ctx, `SELECT DISTINCT mint FROM proofs ORDER BY mint`)
	if err != nil {
		return nil, classify("select mints", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, classify("scan mint", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("select mints", err)
	}
	return result, nil
}
