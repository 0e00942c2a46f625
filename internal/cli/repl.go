package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the surface the REPL needs; App satisfies it and tests
// provide a stub.
type execIface interface {
	exec(ctx context.Context, name string, args []string) error
	help() string
}

// runREPL reads a line from scanner, runs its first token as a command with
// the rest as arguments and reports errors. It returns on EOF, on "exit" or
// "quit", or when ctx is cancelled.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("nut %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch cmd := parts[0]; cmd {
		case "help", "?":
			printlnFn(a.help())
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			if err := a.exec(ctx, cmd, parts[1:]); err != nil {
				printlnFn("Error:", err)
			}
		}
	}
}
