package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/arbordb/arbor/common"
)

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive REPL against --db",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(runShell)
		},
	}
}

func runShell(e *btreeEngine) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "arbor> ",
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(rl.Stdout(), "arborctl shell — put/get/delete/iterate [prefix]/verify/exit")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if err := dispatchShellCommand(rl, e, fields); err != nil {
			if errors.Is(err, errShellExit) {
				return nil
			}
			fmt.Fprintln(rl.Stderr(), "error:", err)
		}
	}
}

var errShellExit = errors.New("shell exit")

func dispatchShellCommand(rl *readline.Instance, e *btreeEngine, fields []string) error {
	switch fields[0] {
	case "exit", "quit":
		return errShellExit
	case "put":
		if len(fields) != 3 {
			return fmt.Errorf("usage: put <key> <value>")
		}
		return e.Put([]byte(fields[1]), []byte(fields[2]))
	case "get":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get <key>")
		}
		v, err := e.Get([]byte(fields[1]))
		if errors.Is(err, common.ErrNotFound) {
			fmt.Fprintln(rl.Stdout(), "(not found)")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(rl.Stdout(), string(v))
		return nil
	case "delete":
		if len(fields) != 2 {
			return fmt.Errorf("usage: delete <key>")
		}
		err := e.Delete([]byte(fields[1]))
		if errors.Is(err, common.ErrNotFound) {
			fmt.Fprintln(rl.Stdout(), "(not found)")
			return nil
		}
		return err
	case "iterate":
		prefix := ""
		if len(fields) == 2 {
			prefix = fields[1]
		}
		it, err := newByteIterator(e, prefix)
		if err != nil {
			return err
		}
		for it.Next() {
			fmt.Fprintf(rl.Stdout(), "%s\t%s\n", it.Key(), it.Value())
		}
		return it.Error()
	case "verify":
		blocks, used, err := e.alloc.Verify()
		if err != nil {
			return err
		}
		fmt.Fprintf(rl.Stdout(), "ok: %d blocks, %d bytes in use\n", blocks, used)
		return nil
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}
