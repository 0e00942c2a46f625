package cli

import (
	"context"
	"errors"
	"flag"
	"io"
	"strconv"
	"strings"
)

var errUsage = errors.New("usage")

type command struct {
	name      string
	alias     string
	usage     string
	summary   string
	needsSeed bool
	run       func(ctx context.Context, args []string) error
}

func (a *App) table() []command {
	return []command{
		{name: "balance", alias: "b", summary: "show balance per mint", run: a.balance},
		{name: "history", alias: "h", summary: "list transactions", run: a.history},
		{name: "mints", summary: "list known mints", run: a.listMints},
		{name: "addmint", usage: "<url>", summary: "add a mint", run: a.addMint},
		{name: "rmmint", usage: "<url>", summary: "remove an empty mint", run: a.removeMint},
		{name: "default", usage: "<url>", summary: "set the default mint", run: a.setDefault},
		{name: "info", usage: "[url]", summary: "show mint info", run: a.mintInfo},

		{name: "invoice", alias: "i", usage: "[-m mint] <amount>", summary: "request a Lightning invoice to mint ecash", needsSeed: true, run: a.invoice},
		{name: "quotes", summary: "list mint quotes awaiting payment", run: a.quotes},
		{name: "receive", alias: "r", usage: "[token]", summary: "redeem an ecash token", needsSeed: true, run: a.receive},
		{name: "send", alias: "s", usage: "[-m mint] [-lock pubkey] [-b] <amount>", summary: "create an ecash token", needsSeed: true, run: a.send},
		{name: "pay", usage: "[-m mint] <invoice | user@domain amount>", summary: "pay a Lightning invoice or address", needsSeed: true, run: a.pay},
		{name: "pending", summary: "list sent tokens not yet claimed", run: a.pending},
		{name: "reclaim", usage: "<id>", summary: "take back an unclaimed token", needsSeed: true, run: a.reclaim},
		{name: "forget", usage: "<id>", summary: "drop a pending token record", run: a.forget},
		{name: "check", summary: "poll quotes and pending tokens now", run: a.check},
		{name: "verify", usage: "[-m mint]", summary: "drop proofs the mint reports spent", run: a.verify},

		{name: "keys", summary: "list P2PK keys", run: a.listKeys},
		{name: "genkey", summary: "generate a P2PK key", run: a.genKey},
		{name: "importkey", summary: "import a P2PK private key (hex or nsec)", run: a.importKey},
		{name: "rmkey", usage: "<pubkey>", summary: "delete a P2PK key", run: a.removeKey},

		{name: "newseed", summary: "create a wallet seed", run: a.newSeed},
		{name: "seed", summary: "show the seed phrase", needsSeed: true, run: a.showSeed},
		{name: "restore", usage: "[mint...]", summary: "recover proofs from a seed phrase", run: a.restore},
		{name: "restored", summary: "list recovered, unclaimed proofs", run: a.restored},
		{name: "claim", usage: "[mint]", summary: "add recovered proofs to the wallet", run: a.claim},
		{name: "discard", usage: "<mint>", summary: "drop recovered proofs for a mint", run: a.discard},

		{name: "price", summary: "show the BTC price", run: a.showPrice},
		{name: "backup", summary: "upload an encrypted backup", needsSeed: true, run: a.backupExport},
		{name: "import", summary: "merge the encrypted backup for this seed", needsSeed: true, run: a.backupImport},
		{name: "wipe", summary: "delete all wallet data", run: a.wipe},
	}
}

func (a *App) help() string {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, c := range a.commands {
		name := c.name
		if c.alias != "" {
			name += " (" + c.alias + ")"
		}
		if c.usage != "" {
			name += " " + c.usage
		}
		b.WriteString("  " + padRight(name, 46) + c.summary + "\n")
	}
	b.WriteString("  exit | quit")
	return b.String()
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s + " "
	}
	return s + strings.Repeat(" ", n-len(s))
}

// flags builds a silent flag set for a command; callers add their flags
// and parse.
func flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.New("amount must be a positive number of sats")
	}
	return n, nil
}

func oneArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", errUsage
	}
	return args[0], nil
}
