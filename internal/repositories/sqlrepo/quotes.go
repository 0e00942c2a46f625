package sqlrepo

import (
	"context"

	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

type QuoteRepository struct {
	handle
}

func (r *QuoteRepository) Upsert(ctx context.Context, q models.MintQuote) error {
	query := `INSERT INTO mint_quotes (id, mint, amount, request, state, expires_at, created_at, tx_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state,
			expires_at = excluded.expires_at,
			tx_id = excluded.tx_id`
	_, err := r.exec(ctx, query, q.ID, q.MintURL, q.Amount, q.Request, string(q.State),
		toMillis(q.ExpiresAt), toMillis(q.CreatedAt), q.TxID)
	return classify("upsert quote", err)
}

func (r *QuoteRepository) List(ctx context.Context) ([]models.MintQuote, error) {
	rows, err := r.query(ctx, `SELECT id, mint, amount, request, state, expires_at, created_at, tx_id FROM mint_quotes ORDER BY created_at`)
	if err != nil {
		return nil, classify("select quotes", err)
	}
	defer rows.Close()

	var result []models.MintQuote
	for rows.Next() {
		var (
			q               models.MintQuote
			state           string
			expires, create int64
		)
		if err := rows.Scan(&q.ID, &q.MintURL, &q.Amount, &q.Request, &state, &expires, &create, &q.TxID); err != nil {
			return nil, classify("scan quote", err)
		}
		q.State, q.ExpiresAt, q.CreatedAt = models.QuoteState(state), fromMillis(expires), fromMillis(create)
		result = append(result, q)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("select quotes", err)
	}
	return result, nil
}

func (r *QuoteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.exec(ctx, `DELETE FROM mint_quotes WHERE id = ?`, id)
	return classify("delete quote", err)
}
