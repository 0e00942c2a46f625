package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/models"
	"github.com/dmitrijs2005/nutkeeper/internal/price"
	"github.com/dmitrijs2005/nutkeeper/internal/scheduler"
	"github.com/dmitrijs2005/nutkeeper/internal/services"
)

// Wallet is the part of services.Wallet the shell drives.
type Wallet interface {
	Init(ctx context.Context) error
	HasSeed(ctx context.Context) bool
	CreateSeed(ctx context.Context) (string, error)
	SeedPhrase(ctx context.Context) (string, error)

	AddMint(ctx context.Context, url string) (models.MintInfo, error)
	RemoveMint(ctx context.Context, url string) error
	Mints(ctx context.Context) ([]string, error)
	DefaultMint(ctx context.Context) (string, error)
	SetDefaultMint(ctx context.Context, url string) error
	MintInfo(ctx context.Context, url string) (models.MintInfo, error)

	Balance(ctx context.Context) (models.BalanceSnapshot, error)
	Transactions(ctx context.Context) ([]models.Transaction, error)
	PendingTokens(ctx context.Context) ([]models.PendingToken, error)
	Quotes(ctx context.Context) ([]models.MintQuote, error)
	CheckQuotes(ctx context.Context) error
	CheckPendingTokens(ctx context.Context) error

	RequestMint(ctx context.Context, mintURL string, amount int64) (models.MintQuote, error)
	Receive(ctx context.Context, encoded string) (int64, error)
	Send(ctx context.Context, mintURL string, amount int64, lockTo string) (models.PendingToken, error)
	PayInvoice(ctx context.Context, mintURL, invoice string) (models.MeltQuote, error)
	PayAddress(ctx context.Context, mintURL, address string, amount int64) (models.MeltQuote, error)
	Reclaim(ctx context.Context, id string) (int64, error)
	DeletePending(ctx context.Context, id string) error
	CheckProofs(ctx context.Context, mintURL string) (int64, error)

	Restore(ctx context.Context, mnemonic string, mints []string, autoAdd bool, opts services.RestoreOptions) (services.Report, error)
	RestoredBundles(ctx context.Context) ([]models.RestoredBundle, error)
	ClaimRestored(ctx context.Context, mint string) (int64, error)
	DiscardRestored(ctx context.Context, mint string) error

	Keys() services.KeyService
	ClearAll(ctx context.Context) error
}

// Backups moves the sealed wallet state to and from remote storage.
type Backups interface {
	Export(ctx context.Context) (string, error)
	Import(ctx context.Context) (models.ImportSummary, error)
}

// Options wire an App. Wallet is required; Price, Backup and Scheduler are
// optional.
type Options struct {
	Wallet    Wallet
	Price     price.Service
	Backup    Backups
	Scheduler *scheduler.Coordinator

	// RestoreMints are scanned on restore in addition to the known mints.
	RestoreMints    []string
	Restore         services.RestoreOptions
	AutoAddRestored bool

	In  io.Reader
	Out io.Writer
}

type App struct {
	wallet   Wallet
	price    price.Service
	backup   Backups
	sched    *scheduler.Coordinator
	commands []command

	restoreMints []string
	restoreOpts  services.RestoreOptions
	autoAdd      bool

	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(o Options) *App {
	a := &App{
		wallet:       o.Wallet,
		price:        o.Price,
		backup:       o.Backup,
		sched:        o.Scheduler,
		restoreMints: o.RestoreMints,
		restoreOpts:  o.Restore,
		autoAdd:      o.AutoAddRestored,
		in:           o.In,
		out:          o.Out,
	}
	if a.in == nil {
		a.in = os.Stdin
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	a.reader = bufio.NewReader(a.in)
	a.commands = a.table()
	return a
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// Run executes args as a single command, or starts the shell when args is
// empty.
func (a *App) Run(ctx context.Context, args []string) error {
	if err := a.wallet.Init(ctx); err != nil {
		return fmt.Errorf("error initializing wallet: %w", err)
	}

	if len(args) > 0 {
		return a.exec(ctx, args[0], args[1:])
	}

	printlnFn("Welcome to nutkeeper (type 'help' for commands)")
	if !a.wallet.HasSeed(ctx) {
		printlnFn("No seed yet: run 'newseed' or 'restore' first.")
	}

	if a.sched != nil {
		if err := a.sched.Start(ctx); err != nil {
			return err
		}
		defer a.sched.Stop()
	}

	runREPL(ctx, a, func() string { return a.status(ctx) }, bufio.NewScanner(a.reader))
	return nil
}

func (a *App) status(ctx context.Context) string {
	var parts []string
	if !a.wallet.HasSeed(ctx) {
		parts = append(parts, "no seed")
	}
	if m, err := a.wallet.DefaultMint(ctx); err == nil {
		parts = append(parts, shortMint(m))
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func shortMint(u string) string {
	u = strings.TrimPrefix(u, "https://")
	return strings.TrimPrefix(u, "http://")
}

// exec runs one command. Errors are returned, not printed.
func (a *App) exec(ctx context.Context, name string, args []string) error {
	cmd, ok := a.lookup(name)
	if !ok {
		return fmt.Errorf("unknown command: %s", name)
	}
	if cmd.needsSeed && !a.wallet.HasSeed(ctx) {
		return fmt.Errorf("%w: run 'newseed' or 'restore' first", common.ErrNoSeed)
	}
	err := cmd.run(ctx, args)
	if errors.Is(err, errUsage) {
		return fmt.Errorf("usage: %s %s", cmd.name, cmd.usage)
	}
	return err
}

func (a *App) lookup(name string) (command, bool) {
	for _, c := range a.commands {
		if c.name == name || c.alias == name {
			return c, true
		}
	}
	return command{}, false
}
