// Package cli implements the interactive nutkeeper shell.
//
// Run without arguments the App starts a read–eval–print loop and the
// background scheduler; with arguments it executes a single command and
// exits. Commands are listed by "help".
//
// Secrets (mnemonics, private keys) are read from the terminal without
// echo through golang.org/x/term.
package cli
