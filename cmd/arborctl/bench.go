package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arbordb/arbor/common/benchmark"
)

func newBenchCmd() *cobra.Command {
	var (
		numKeys     int
		keySize     int
		valueSize   int
		preload     int
		duration    time.Duration
		concurrency int
		workload    string
		seed        int64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the workload benchmark harness against --db",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *btreeEngine) error {
				cfg := benchmark.Config{
					Name:            "arborctl",
					WorkloadType:    benchmark.WorkloadType(workload),
					KeyDistribution: benchmark.DistUniform,
					NumKeys:         numKeys,
					KeySize:         keySize,
					ValueSize:       valueSize,
					Duration:        duration,
					Concurrency:     concurrency,
					PreloadKeys:     preload,
					Seed:            seed,
				}
				b := benchmark.NewBenchmark(e, cfg)
				result, err := b.Run()
				if err != nil {
					return err
				}
				printResult(cmd, result)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&numKeys, "keys", 10000, "unique keys in the dataset")
	cmd.Flags().IntVar(&keySize, "key-size", 16, "key size in bytes")
	cmd.Flags().IntVar(&valueSize, "value-size", 100, "value size in bytes")
	cmd.Flags().IntVar(&preload, "preload", 1000, "keys to load before measuring")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long to run the measured phase")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "concurrent workers")
	cmd.Flags().StringVar(&workload, "workload", string(benchmark.WorkloadBalanced), "write-heavy|read-heavy|balanced|read-only|write-only")
	cmd.Flags().Int64Var(&seed, "seed", 1, "key-generator random seed")
	return cmd
}

func printResult(cmd *cobra.Command, r *benchmark.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ops: %d total (%d writes, %d reads) over %v — %.0f ops/sec\n",
		r.TotalOps, r.WriteOps, r.ReadOps, r.Duration, r.OpsPerSec)
	fmt.Fprintf(out, "write latency: p50=%v p95=%v p99=%v\n", r.WriteLatency.P50, r.WriteLatency.P95, r.WriteLatency.P99)
	fmt.Fprintf(out, "read latency:  p50=%v p95=%v p99=%v\n", r.ReadLatency.P50, r.ReadLatency.P95, r.ReadLatency.P99)
	fmt.Fprintf(out, "space amplification: %.2fx, disk: %.2f MB\n", r.SpaceAmplification, r.TotalDiskMB)
}
