package main

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qgemm/internal/logger"
	"github.com/samcharles93/qgemm/pkg/q4gemm"
	"github.com/samcharles93/qgemm/pkg/q4gemm/q4ref"
)

func benchCmd() *cli.Command {
	var (
		countM     int64
		countN     int64
		countK     int64
		warmupRuns int64
		benchRuns  int64
		seed       int64
	)

	flags := append(commonKernelFlags(),
		&cli.Int64Flag{
			Name:        "m",
			Usage:       "activation row count",
			Value:       4,
			Destination: &countM,
		},
		&cli.Int64Flag{
			Name:        "n",
			Usage:       "output column count",
			Value:       4096,
			Destination: &countN,
		},
		&cli.Int64Flag{
			Name:        "k",
			Usage:       "reduction dimension",
			Value:       4096,
			Destination: &countK,
		},
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       1,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of benchmark runs",
			Value:       5,
			Destination: &benchRuns,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "seed for the generated inputs",
			Value:       42,
			Destination: &seed,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Benchmark the packed kernels on a synthetic shape",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyKernelConfig(cmd, LoadConfig())

			if err := validateBlkLenFlag(blkLen); err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			ct, err := parseComputeType(computeType)
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}

			m, n, k, blk := int(countM), int(countN), int(countK), int(blkLen)
			if m <= 0 || n <= 0 || k <= 0 {
				return cli.Exit("error: m, n and k must be positive", 1)
			}

			rng := rand.New(rand.NewSource(seed))
			a := make([]float32, m*k)
			bf := make([]float32, k*n)
			for i := range a {
				a[i] = (rng.Float32() - 0.5) * 2
			}
			for i := range bf {
				bf[i] = (rng.Float32() - 0.5) * 2
			}

			log.Info("preparing packed weights", "m", m, "n", n, "k", k, "blk_len", blk, "compute", ct.String())
			refData, scales := q4ref.QuantizeBSymmetric(bf, n, k, blk)
			packed := make([]byte, q4gemm.PackedQuantBSize(n, k, blk))
			q4gemm.PackQuantB(n, k, blk, ct, refData, packed, nil)

			blockCountK := q4gemm.BlockCountK(k, blk)
			c := make([]float32, m*n)

			run := func() time.Duration {
				start := time.Now()
				switch ct {
				case q4gemm.CompInt8:
					stride := blockCountK * q4gemm.Q8BlkSize(blk)
					workspace := make([]byte, q4gemm.WorkspaceSize(m, k, blk, q4gemm.CompInt8))
					for i := 0; i < m; i++ {
						q4gemm.QuantizeARow(blk, a[i*k:(i+1)*k], k, workspace[i*stride:(i+1)*stride])
					}
					q4gemm.GemmInt8Kernel(blk, workspace, packed, scales, nil, c, m, n, blockCountK, n, nil)
				default:
					for i := 0; i < m; i++ {
						q4gemm.GemmFp32M1Kernel(blk, a[i*k:(i+1)*k], packed, scales, nil, c[i*n:(i+1)*n], n, k, blockCountK, nil)
					}
				}
				return time.Since(start)
			}

			fmt.Println("=== qgemm bench ===")
			fmt.Printf("Shape:     %dx%dx%d, blk_len %d, %s\n", m, n, k, blk, ct)
			fmt.Printf("CPUs:      %d (GOMAXPROCS %d)\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))
			fmt.Printf("Warmup:    %d runs\n", warmupRuns)
			fmt.Printf("Runs:      %d\n", benchRuns)
			fmt.Println()

			for i := 0; i < int(warmupRuns); i++ {
				run()
			}

			flops := 2 * float64(m) * float64(n) * float64(k)
			fmt.Printf("%-6s %12s %10s\n", "Run", "Duration", "GFLOP/s")
			var sum float64
			for i := 0; i < int(benchRuns); i++ {
				d := run()
				gflops := flops / d.Seconds() / 1e9
				sum += gflops
				fmt.Printf("%-6d %12s %10.2f\n", i+1, d.Round(time.Microsecond), gflops)
			}
			fmt.Printf("\n%-6s %12s %10.2f\n", "Avg", "", sum/float64(benchRuns))

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))

			return nil
		},
	}
}
