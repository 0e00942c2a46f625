package config

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/nutkeeper/internal/flagx"
)

var (
	valueFlags = []string{"-d", "-s", "-p", "-m", "-l"}
	boolFlags  = []string{"-e"}
)

// boolArgs picks bool flags out of args. Unlike FilterArgs it never takes
// the following argument as the flag's value.
func boolArgs(args []string) []string {
	var out []string
	for _, a := range args {
		for _, f := range boolFlags {
			if a == f || strings.HasPrefix(a, f+"=") {
				out = append(out, a)
			}
		}
	}
	return out
}

// parseFlags overlays cfg with the short flags it knows. Other arguments
// are filtered out first so the REPL and -c do not trip the parser.
func parseFlags(cfg *Config, args []string) error {
	filtered := append(boolArgs(args), flagx.FilterArgs(args, valueFlags)...)

	fs := flag.NewFlagSet("nutkeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.Storage, "s", cfg.Storage, "storage backend (sqlite|postgres|badger|memory)")
	fs.StringVar(&cfg.PostgresDSN, "p", cfg.PostgresDSN, "postgres DSN")
	fs.StringVar(&cfg.DefaultMint, "m", cfg.DefaultMint, "default mint URL")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.EncryptProofs, "e", cfg.EncryptProofs, "encrypt proofs at rest")

	if err := fs.Parse(filtered); err != nil {
		return fmt.Errorf("error parsing flags: %w", err)
	}
	return nil
}
