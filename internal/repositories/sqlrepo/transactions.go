package sqlrepo

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/nutkeeper/internal/models"
)

type TransactionRepository struct {
	handle
}

func (r *TransactionRepository) Insert(ctx context.Context, t models.Transaction) error {
	query := `INSERT INTO transactions (id, type, amount, note, mint, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.exec(ctx, query, t.ID, string(t.Type), t.Amount, t.Note, t.Mint, string(t.Status), toMillis(t.Timestamp))
	return classify("insert transaction", err)
}

// UpdateStatus only touches the row when the status actually differs. A
// missing id is reported as common.ErrNotFound.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, status models.TxStatus) (bool, error) {
	res, err := r.exec(ctx, `UPDATE transactions SET status = ? WHERE id = ? AND status <> ?`, string(status), id, string(status))
	if err != nil {
		return false, classify("update transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("get rows affected", err)
	}
	if n > 0 {
		return true, nil
	}
	var one int
	if err := r.queryRow(ctx, `SELECT 1 FROM transactions WHERE id = ?`, id).Scan(&one); err != nil {
		return false, classify("update transaction", err)
	}
	return false, nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	row := r.queryRow(ctx, `SELECT id, type, amount, note, mint, status, created_at FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return models.Transaction{}, classify("select transaction", err)
	}
	return t, nil
}

func (r *TransactionRepository) List(ctx context.Context) ([]models.Transaction, error) {
	rows, err := r.query(ctx, `SELECT id, type, amount, note, mint, status, created_at FROM transactions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, classify("select transactions", err)
	}
	defer rows.Close()

	var result []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, classify("scan transaction", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("select transactions", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

var _ scanner = (*sql.Row)(nil)

func scanTransaction(s scanner) (models.Transaction, error) {
	var (
		t       models.Transaction
		typ, st string
		ts      int64
	)
	if err := s.Scan(&t.ID, &typ, &t.Amount, &t.Note, &t.Mint, &st, &ts); err != nil {
		return models.Transaction{}, err
	}
	t.Type, t.Status, t.Timestamp = models.TxType(typ), models.TxStatus(st), fromMillis(ts)
	return t, nil
}
