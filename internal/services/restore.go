package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/mint"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/repositories"
	"github.com/dmitrijs2005/nutkeeper/internal/seed"
	"github.com/dmitrijs2005/nutkeeper/internal/token"
	"golang.org/x/time/rate"
)

const (
	DefaultRestoreBatch = 200
	// DefaultMaxEmpty consecutive empty batches end a keyset scan. Proofs
	// beyond a wider gap of unused indexes are not found.
	DefaultMaxEmpty = 2

	restoreRate  = rate.Limit(10)
	restoreBurst = 5
)

// Progress is reported after every restore batch.
type Progress struct {
	Mint    string
	Keyset  string
	Batch   int
	Start   uint32
	Found   int
	Empties int
}

type RestoreOptions struct {
	BatchSize uint32
	MaxEmpty  int
	Progress  func(Progress)
}

func (o RestoreOptions) withDefaults() RestoreOptions {
	if o.BatchSize == 0 {
		o.BatchSize = DefaultRestoreBatch
	}
	if o.MaxEmpty <= 0 {
		o.MaxEmpty = DefaultMaxEmpty
	}
	if o.Progress == nil {
		o.Progress = func(Progress) {}
	}
	return o
}

// MintReport is the restore outcome for one mint. Bundle is nil when no
// new unspent proofs were found. Err may be set alongside a Bundle when
// only some keysets failed.
type MintReport struct {
	Mint   string
	Bundle *models.RestoredBundle
	Err    error
}

type Report struct {
	Mints []MintReport
}

// Bundles returns every non-empty bundle in mint order.
func (r Report) Bundles() []models.RestoredBundle {
	var out []models.RestoredBundle
	for _, m := range r.Mints {
		if m.Bundle != nil {
			out = append(out, *m.Bundle)
		}
	}
	return out
}

func (r Report) Total() int64 {
	var total int64
	for _, b := range r.Bundles() {
		total += b.Amount
	}
	return total
}

// RestoreEngine recovers proofs derived from a seed phrase. It only reports
// what it finds; merging into the wallet is the caller's decision.
type RestoreEngine interface {
	Restore(ctx context.Context, mnemonic string, mints []string, opts RestoreOptions) (Report, error)
}

// DialerFactory builds a dialer whose clients derive outputs from seed.
type DialerFactory func(seed []byte) (mint.Dialer, error)

// PoolDialers derives restore dialers from pool, each throttled by its own
// limiter to perSecond requests. Zero means the default rate.
func PoolDialers(pool *mint.Pool, perSecond float64) DialerFactory {
	limit := restoreRate
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return func(seed []byte) (mint.Dialer, error) {
		return pool.ForSeed(seed, rate.NewLimiter(limit, restoreBurst))
	}
}

type restoreEngine struct {
	dialers  DialerFactory
	proofs   ProofStore
	pending  repositories.PendingTokenRepository
	settings repositories.SettingsRepository
	clock    Clock
	log      logging.Logger
}

func NewRestoreEngine(dialers DialerFactory, proofs ProofStore, pending repositories.PendingTokenRepository,
	settings repositories.SettingsRepository, clock Clock, log logging.Logger) RestoreEngine {
	return &restoreEngine{
		dialers:  dialers,
		proofs:   proofs,
		pending:  pending,
		settings: settings,
		clock:    clock,
		log:      log.With("component", "restore"),
	}
}

func (e *restoreEngine) Restore(ctx context.Context, mnemonic string, mints []string, opts RestoreOptions) (Report, error) {
	opts = opts.withDefaults()
	if e.dialers == nil {
		return Report{}, errors.New("restore is not configured")
	}

	keys, err := seed.FromMnemonic(mnemonic)
	if err != nil {
		return Report{}, err
	}
	defer keys.Wipe()

	dialer, err := e.dialers(keys.Seed())
	if err != nil {
		return Report{}, fmt.Errorf("failed to prepare mint clients: %w", err)
	}

	seen, err := e.knownSecrets(ctx)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, raw := range mints {
		m, err := mint.NormalizeURL(raw)
		if err != nil {
			report.Mints = append(report.Mints, MintReport{Mint: raw, Err: err})
			continue
		}
		found, err := e.scanMint(ctx, dialer, m, seen, opts)
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		rep := MintReport{Mint: m, Err: err}
		if err != nil {
			e.log.Warn(ctx, "restore failed", "mint", m, "error", err)
		}
		if len(found) > 0 {
			b, err := e.bundle(m, found)
			if err != nil {
				rep.Err = errors.Join(rep.Err, err)
			} else {
				rep.Bundle = &b
			}
		}
		report.Mints = append(report.Mints, rep)
	}
	return report, nil
}

// knownSecrets collects secrets the wallet already holds, has handed out
// or has stashed from an earlier restore, so a restore never reports them
// again.
func (e *restoreEngine) knownSecrets(ctx context.Context) (map[string]struct{}, error) {
	seen := map[string]struct{}{}

	all, err := e.proofs.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, ps := range all {
		for _, p := range ps {
			seen[p.Secret] = struct{}{}
		}
	}

	pending, err := e.pending.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error retrieving pending tokens: %w", err)
	}
	for _, pt := range pending {
		for _, p := range pt.Proofs {
			seen[p.Secret] = struct{}{}
		}
	}

	stash := map[string]models.RestoredBundle{}
	if _, err := getJSON(ctx, e.settings, keyRestored, &stash); err != nil {
		return nil, fmt.Errorf("error retrieving restored tokens: %w", err)
	}
	for _, b := range stash {
		for _, p := range b.Proofs {
			seen[p.Secret] = struct{}{}
		}
	}
	return seen, nil
}

func (e *restoreEngine) scanMint(ctx context.Context, dialer mint.Dialer, m string, seen map[string]struct{}, opts RestoreOptions) (models.Proofs, error) {
	c, err := dialer.Dial(m)
	if err != nil {
		return nil, err
	}
	keysets, err := c.GetKeysets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load keysets: %w", err)
	}

	var (
		found models.Proofs
		errs  []error
	)
	for _, ks := range keysets {
		got, err := e.scanKeyset(ctx, c, m, ks.ID, seen, opts)
		found = append(found, got...)
		if err != nil {
			if ctx.Err() != nil {
				return found, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("keyset %s: %w", ks.ID, err))
		}
	}
	return found, errors.Join(errs...)
}

func (e *restoreEngine) scanKeyset(ctx context.Context, c mint.Client, m, keysetID string, seen map[string]struct{}, opts RestoreOptions) (models.Proofs, error) {
	var found models.Proofs
	empties := 0

	for batch, start := 0, uint32(0); empties < opts.MaxEmpty; batch, start = batch+1, start+opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return found, err
		}

		restored, err := c.Restore(ctx, keysetID, start, opts.BatchSize)
		if err != nil {
			return found, err
		}

		if len(restored) == 0 {
			empties++
		} else {
			empties = 0
			unspent, err := filterUnspent(ctx, c, restored)
			if err != nil {
				return found, err
			}
			for _, p := range unspent {
				if _, dup := seen[p.Secret]; dup {
					continue
				}
				seen[p.Secret] = struct{}{}
				found = append(found, p)
			}
		}

		opts.Progress(Progress{Mint: m, Keyset: keysetID, Batch: batch, Start: start, Found: len(found), Empties: empties})
		e.log.Debug(ctx, "restore batch", "mint", m, "keyset", keysetID, "start", start, "restored", len(restored), "found", len(found))
	}
	return found, nil
}

// filterUnspent keeps the proofs c reports as unspent.
func filterUnspent(ctx context.Context, c mint.Client, proofs models.Proofs) (models.Proofs, error) {
	states, err := c.CheckProofsStates(ctx, proofs)
	if err != nil {
		return nil, err
	}
	if len(states) != len(proofs) {
		return nil, fmt.Errorf("mint returned %d states for %d proofs", len(states), len(proofs))
	}
	out := make(models.Proofs, 0, len(proofs))
	for i, p := range proofs {
		if states[i].State == models.ProofUnspent {
			out = append(out, p)
		}
	}
	return out, nil
}

func (e *restoreEngine) bundle(m string, proofs models.Proofs) (models.RestoredBundle, error) {
	proofs = proofs.WithMint(m)
	encoded, err := token.Encode(token.Token{Mint: m, Unit: common.Unit, Proofs: proofs})
	if err != nil {
		return models.RestoredBundle{}, fmt.Errorf("failed to encode restored token: %w", err)
	}
	return models.RestoredBundle{
		Mint:       m,
		Token:      encoded,
		Proofs:     proofs,
		Amount:     proofs.Amount(),
		ProofCount: len(proofs),
		Timestamp:  e.clock.now(),
	}, nil
}
