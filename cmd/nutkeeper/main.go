package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/dmitrijs2005/nutkeeper/internal/backup"
	"github.com/dmitrijs2005/nutkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/nutkeeper/internal/cli"
	"github.com/dmitrijs2005/nutkeeper/internal/config"
	"github.com/dmitrijs2005/nutkeeper/internal/lnaddr"
	"github.com/dmitrijs2005/nutkeeper/internal/logging"
	"github.com/dmitrijs2005/nutkeeper/internal/mint"
	"github.com/dmitrijs2005/nutkeeper/internal/price"
	"github.com/dmitrijs2005/nutkeeper/internal/scheduler"
	"github.com/dmitrijs2005/nutkeeper/internal/services"
	"github.com/dmitrijs2005/nutkeeper/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flagArgs, args := splitArgs(os.Args[1:])
	cfg, err := config.LoadConfig(flagArgs)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if len(args) == 0 {
		buildinfo.PrintBuildData(os.Stdout)
	}

	if err := run(ctx, cfg, args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	store, err := storage.Open(ctx, storage.Options{
		Backend:     cfg.Storage,
		DataDir:     cfg.DataDir,
		PostgresDSN: cfg.PostgresDSN,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("error opening storage: %w", err)
	}
	defer store.Close()

	pool := mint.NewPool(mint.Options{
		HTTP:            &http.Client{Timeout: cfg.MintTimeout},
		Counters:        services.NewCounters(store.Settings()),
		Logger:          logger,
		BreakerFailures: cfg.BreakerFailures,
	})

	wallet := services.NewWallet(services.Config{
		Store:         store,
		Pool:          pool,
		Logger:        logger,
		Notifier:      cli.PrintNotifier(os.Stdout),
		EncryptProofs: cfg.EncryptProofs,
		Address:       lnaddr.NewResolver(lnaddr.WithLogger(logger)),
		Restore:       services.PoolDialers(pool, cfg.RestoreRate),
	})

	sched := scheduler.New(logger)
	tasks := []scheduler.Task{
		{Name: "mint-quotes", Interval: cfg.QuotePollInterval, Run: wallet.CheckQuotes},
		{Name: "pending-tokens", Interval: cfg.TokenPollInterval, Run: wallet.CheckPendingTokens},
	}

	var prices price.Service
	if cfg.Price.Enabled {
		prices = price.NewService(price.Options{
			BaseURL:  cfg.Price.URL,
			Currency: cfg.Price.Currency,
			Settings: store.Settings(),
			Logger:   logger,
		})
		tasks = append(tasks, scheduler.Task{Name: "price", Interval: cfg.Price.Interval, Run: func(ctx context.Context) error {
			_, err := prices.Refresh(ctx)
			return err
		}})
	}
	for _, t := range tasks {
		if err := sched.Add(t); err != nil {
			return err
		}
	}

	var backups cli.Backups
	if cfg.Backup.Enabled() {
		objects, err := backup.NewS3Store(ctx, backup.S3Config{
			Bucket:    cfg.Backup.Bucket,
			Region:    cfg.Backup.Region,
			Endpoint:  cfg.Backup.Endpoint,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		})
		if err != nil {
			return err
		}
		backups = backup.NewService(wallet, objects, logger)
	}

	ensureMints(ctx, wallet, cfg, logger)

	app := cli.NewApp(cli.Options{
		Wallet:       wallet,
		Price:        prices,
		Backup:       backups,
		Scheduler:    sched,
		RestoreMints: cfg.Mints,
		Restore: services.RestoreOptions{
			BatchSize: uint32(cfg.RestoreBatch),
			MaxEmpty:  cfg.RestoreMaxEmpty,
		},
		AutoAddRestored: cfg.AutoAddRestored,
	})
	return app.Run(ctx, args)
}

// ensureMints registers configured mints the wallet does not know yet and
// applies the configured default. Unreachable mints are only logged.
func ensureMints(ctx context.Context, w *services.Wallet, cfg *config.Config, log logging.Logger) {
	known, err := w.Mints(ctx)
	if err != nil {
		log.Warn(ctx, "failed to list mints", "error", err)
		return
	}

	wanted := slices.Clone(cfg.Mints)
	if cfg.DefaultMint != "" {
		wanted = append(wanted, cfg.DefaultMint)
	}
	for _, m := range wanted {
		u, err := mint.NormalizeURL(m)
		if err != nil {
			log.Warn(ctx, "ignoring configured mint", "mint", m, "error", err)
			continue
		}
		if slices.Contains(known, u) {
			continue
		}
		if _, err := w.AddMint(ctx, u); err != nil {
			log.Warn(ctx, "failed to add configured mint", "mint", u, "error", err)
			continue
		}
		known = append(known, u)
	}

	if cfg.DefaultMint != "" {
		if err := w.SetDefaultMint(ctx, cfg.DefaultMint); err != nil {
			log.Warn(ctx, "failed to set default mint", "mint", cfg.DefaultMint, "error", err)
		}
	}
}

// splitArgs separates the leading configuration flags from the command
// and its own arguments.
func splitArgs(args []string) (flags, command []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if len(a) < 2 || a[0] != '-' {
			return args[:i], args[i:]
		}
		switch a {
		case "-c", "-config", "--config", "-d", "-s", "-p", "-m", "-l":
			i++
		}
	}
	return args, nil
}
