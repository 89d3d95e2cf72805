package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arbordb/arbor/common"
)

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new, empty heap file at --db",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(dbPath); err == nil {
				return fmt.Errorf("%s already exists", dbPath)
			}
			return withEngine(func(e *btreeEngine) error {
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (block size %d)\n", dbPath, blockSize)
				return nil
			})
		},
	}
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Insert or overwrite a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *btreeEngine) error {
				return e.Put([]byte(args[0]), []byte(args[1]))
			})
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Look up a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *btreeEngine) error {
				v, err := e.Get([]byte(args[0]))
				if errors.Is(err, common.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "(not found)")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(v))
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *btreeEngine) error {
				err := e.Delete([]byte(args[0]))
				if errors.Is(err, common.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "(not found)")
					return nil
				}
				return err
			})
		},
	}
}

func newIterateCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "iterate",
		Short: "Walk keys in ascending order, optionally restricted to a prefix",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *btreeEngine) error {
				it, err := newByteIterator(e, prefix)
				if err != nil {
					return err
				}
				for it.Next() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", it.Key(), it.Value())
				}
				return it.Error()
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "restrict the scan to keys with this prefix")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Walk the heap linearly, checking every block's header/footer invariant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *btreeEngine) error {
				blocks, used, err := e.alloc.Verify()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %d blocks, %d bytes in use, file size %d\n", blocks, used, e.bf.Size())
				return nil
			})
		},
	}
}
