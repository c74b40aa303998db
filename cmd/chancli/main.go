package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/iov-one/offchain"
)

// commands is a register of all available commands. The name is matched with
// the first argument given.
//
// A command function reads from input and writes to output. Given args are
// the command line arguments without the program and command names, each
// command parses them with its own flag set.
var commands = map[string]func(input io.Reader, output io.Writer, args []string) error{
	"balance": cmdBalance,
	"demo":    cmdDemo,
	"keyaddr": cmdKeyaddr,
	"keygen":  cmdKeygen,
	"serve":   cmdServe,
	"version": cmdVersion,
}

func main() {
	if len(os.Args) == 1 {
		fmt.Fprintf(os.Stderr, "%s runs and talks to off-chain payment channels.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s <command> [<flags>]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		fmt.Fprintf(os.Stderr, "Run '%s <command> -help' to learn more about each command.\n", os.Args[0])
		os.Exit(2)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "\nAvailable commands are:\n\t%s\n", strings.Join(availableCmds(), "\n\t"))
		os.Exit(2)
	}

	if err := run(os.Stdin, os.Stdout, os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func availableCmds() []string {
	available := make([]string, 0, len(commands))
	for name := range commands {
		available = append(available, name)
	}
	sort.Strings(available)
	return available
}

func cmdVersion(in io.Reader, out io.Writer, args []string) error {
	_, err := fmt.Fprintln(out, offchain.Version())
	return err
}

// env returns the value of the environment variable or fallback when unset.
func env(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}
