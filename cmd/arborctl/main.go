// Command arborctl is a small operator front end for an arbor heap
// file: point operations, prefix scans, structural verification, an
// interactive shell, and a benchmark runner, all driven from one
// FileAllocator-backed BTree2.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/arbordb/arbor/store"
)

var (
	dbPath    string
	verbose   bool
	blockSize int64
	poolSize  int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "arborctl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "arborctl",
		Short: "Inspect and drive an arbor B-Tree heap file",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			store.SetLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "arbor.db", "path to the heap file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")
	root.PersistentFlags().Int64Var(&blockSize, "block-size", 4096, "fixed-block size for a newly created heap")
	root.PersistentFlags().IntVar(&poolSize, "pool-size", 4096, "node cache capacity")

	root.AddCommand(
		newCreateCmd(),
		newPutCmd(),
		newGetCmd(),
		newDeleteCmd(),
		newIterateCmd(),
		newVerifyCmd(),
		newShellCmd(),
		newBenchCmd(),
	)
	return root
}

func engineConfig() store.Config {
	cfg := store.DefaultConfig(dbPath)
	cfg.FixedBlockSize = blockSize
	cfg.FixedPoolSize = poolSize
	return cfg
}

func withEngine(fn func(e *btreeEngine) error) error {
	e, err := openEngine(dbPath, engineConfig(), store.NewMetrics(nil))
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}
