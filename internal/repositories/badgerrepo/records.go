package badgerrepo

import (
	"context"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

type proofRecord struct {
	Mint     string `badgerhold:"index"`
	Secret   string
	Amount   int64
	KeysetID string
	C        string
	Witness  string
}

func proofKey(mint, secret string) string { return mint + "|" + secret }

type ProofRepository struct{ s *Store }

func (r *ProofRepository) Replace(ctx context.Context, mint string, proofs models.Proofs) error {
	return r.s.update("replace proofs", func(txn *badger.Txn) error {
		if err := r.s.db.TxDeleteMatching(txn, proofRecord{}, byMint(mint)); err != nil {
			return err
		}
		for _, p := range proofs {
			rec := proofRecord{Mint: mint, Secret: p.Secret, Amount: p.Amount, KeysetID: p.ID, C: p.C, Witness: p.Witness}
			if err := r.s.db.TxUpsert(txn, proofKey(mint, p.Secret), &rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ProofRepository) ListByMint(ctx context.Context, mint string) (models.Proofs, error) {
	var recs []proofRecord
	err := r.s.view("select proofs", func(txn *badger.Txn) error {
		return r.s.db.TxFind(txn, &recs, byMint(mint))
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Amount != recs[j].Amount {
			return recs[i].Amount < recs[j].Amount
		}
		return recs[i].Secret < recs[j].Secret
	})

	var out models.Proofs
	for _, rec := range recs {
		out = append(out, models.Proof{Amount: rec.Amount, ID: rec.KeysetID, Secret: rec.Secret, C: rec.C, Witness: rec.Witness, Mint: rec.Mint})
	}
	return out, nil
}

func (r *ProofRepository) Mints(ctx context.Context) ([]string, error) {
	var recs []proofRecord
	err := r.s.view("select mints", func(txn *badger.Txn) error {
		return r.s.db.TxFind(txn, &recs, nil)
	})
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, rec := range recs {
		if _, ok := seen[rec.Mint]; !ok {
			seen[rec.Mint] = struct{}{}
			out = append(out, rec.Mint)
		}
	}
	sort.Strings(out)
	return out, nil
}

func byMint(mint string) *badgerhold.Query {
	return badgerhold.Where("Mint").Eq(mint).Index("Mint")
}

type TransactionRepository struct{ s *Store }

func (r *TransactionRepository) Insert(ctx context.Context, t models.Transaction) error {
	return r.s.update("insert transaction", func(txn *badger.Txn) error {
		return r.s.db.TxInsert(txn, t.ID, &t)
	})
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id string, status models.TxStatus) (bool, error) {
	changed := false
	err := r.s.update("update transaction", func(txn *badger.Txn) error {
		var t models.Transaction
		if err := r.s.db.TxGet(txn, id, &t); err != nil {
			return err
		}
		if t.Status == status {
			return nil
		}
		t.Status = status
		changed = true
		return r.s.db.TxUpdate(txn, id, &t)
	})
	return changed, err
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	var t models.Transaction
	err := r.s.view("select transaction", func(txn *badger.Txn) error {
		return r.s.db.TxGet(txn, id, &t)
	})
	return t, err
}

func (r *TransactionRepository) List(ctx context.Context) ([]models.Transaction, error) {
	var out []models.Transaction
	err := r.s.view("select transactions", func(txn *badger.Txn) error {
		return r.s.db.TxFind(txn, &out, nil)
	})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

type PendingTokenRepository struct{ s *Store }

func (r *PendingTokenRepository) Upsert(ctx context.Context, p models.PendingToken) error {
	return r.s.update("upsert pending token", func(txn *badger.Txn) error {
		return r.s.db.TxUpsert(txn, p.ID, &p)
	})
}

func (r *PendingTokenRepository) GetByID(ctx context.Context, id string) (models.PendingToken, error) {
	var p models.PendingToken
	err := r.s.view("select pending token", func(txn *badger.Txn) error {
		return r.s.db.TxGet(txn, id, &p)
	})
	p.Proofs = p.Proofs.WithMint(p.MintURL)
	return p, err
}

func (r *PendingTokenRepository) List(ctx context.Context) ([]models.PendingToken, error) {
	var out []models.PendingToken
	err := r.s.view("select pending tokens", func(txn *badger.Txn) error {
		return r.s.db.TxFind(txn, &out, nil)
	})
	for i := range out {
		out[i].Proofs = out[i].Proofs.WithMint(out[i].MintURL)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *PendingTokenRepository) Delete(ctx context.Context, id string) error {
	return r.s.update("delete pending token", func(txn *badger.Txn) error {
		return ignoreNotFound(r.s.db.TxDelete(txn, id, models.PendingToken{}))
	})
}

type QuoteRepository struct{ s *Store }

func (r *QuoteRepository) Upsert(ctx context.Context, q models.MintQuote) error {
	return r.s.update("upsert quote", func(txn *badger.Txn) error {
		return r.s.db.TxUpsert(txn, q.ID, &q)
	})
}

func (r *QuoteRepository) List(ctx context.Context) ([]models.MintQuote, error) {
	var out []models.MintQuote
	err := r.s.view("select quotes", func(txn *badger.Txn) error {
		return r.s.db.TxFind(txn, &out, nil)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *QuoteRepository) Delete(ctx context.Context, id string) error {
	return r.s.update("delete quote", func(txn *badger.Txn) error {
		return ignoreNotFound(r.s.db.TxDelete(txn, id, models.MintQuote{}))
	})
}

type settingRecord struct {
	Value []byte
}

type SettingsRepository struct{ s *Store }

func (r *SettingsRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var rec settingRecord
	err := r.s.view("get setting "+key, func(txn *badger.Txn) error {
		return r.s.db.TxGet(txn, key, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec.Value, nil
}

func (r *SettingsRepository) Put(ctx context.Context, key string, value []byte) error {
	return r.s.update("put setting "+key, func(txn *badger.Txn) error {
		return r.s.db.TxUpsert(txn, key, &settingRecord{Value: value})
	})
}

func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	return r.s.update("delete setting "+key, func(txn *badger.Txn) error {
		return ignoreNotFound(r.s.db.TxDelete(txn, key, settingRecord{}))
	})
}

type KeyRepository struct{ s *Store }

func (r *KeyRepository) Insert(ctx context.Context, k models.P2PKKey) error {
	return r.s.update("insert key", func(txn *badger.Txn) error {
		return r.s.db.TxInsert(txn, k.PublicKey, &k)
	})
}

func (r *KeyRepository) Update(ctx context.Context, k models.P2PKKey) error {
	return r.s.update("update key", func(txn *badger.Txn) error {
		var cur models.P2PKKey
		if err := r.s.db.TxGet(txn, k.PublicKey, &cur); err != nil {
			return err
		}
		cur.Used, cur.UsedCount = k.Used, k.UsedCount
		return r.s.db.TxUpdate(txn, k.PublicKey, &cur)
	})
}

func (r *KeyRepository) GetByPublicKey(ctx context.Context, pub string) (models.P2PKKey, error) {
	var k models.P2PKKey
	err := r.s.view("select key", func(txn *badger.Txn) error {
		return r.s.db.TxGet(txn, pub, &k)
	})
	return k, err
}

func (r *KeyRepository) List(ctx context.Context) ([]models.P2PKKey, error) {
	var out []models.P2PKKey
	err := r.s.view("select keys", func(txn *badger.Txn) error {
		return r.s.db.TxFind(txn, &out, nil)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *KeyRepository) Delete(ctx context.Context, pub string) error {
	return r.s.update("delete key", func(txn *badger.Txn) error {
		return ignoreNotFound(r.s.db.TxDelete(txn, pub, models.P2PKKey{}))
	})
}

func ignoreNotFound(err error) error {
	if err == badgerhold.ErrNotFound {
		return nil
	}
	return err
}
