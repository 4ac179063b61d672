package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qgemm/internal/conformance"
	"github.com/samcharles93/qgemm/internal/logger"
)

func verifyCmd() *cli.Command {
	var (
		seed       int64
		tolerance  float64
		jsonOutput bool
	)

	return &cli.Command{
		Name:  "verify",
		Usage: "Run the kernel agreement suite against the reference path",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "seed for the generated inputs",
				Value:       1,
				Destination: &seed,
			},
			&cli.Float64Flag{
				Name:        "tolerance",
				Usage:       "maximum allowed relative error",
				Value:       conformance.DefaultTolerance,
				Destination: &tolerance,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit the full report as JSON",
				Destination: &jsonOutput,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyVerifyConfig(cmd, LoadConfig(), &seed, &tolerance)

			cases := conformance.DefaultCases()
			log.Info("running agreement suite", "cases", len(cases), "seed", seed, "tolerance", tolerance)

			report, err := conformance.Run(cases, seed, tolerance)
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return cli.Exit("error: encode report: "+err.Error(), 1)
				}
			} else {
				printReport(report)
			}

			if !report.Pass {
				return cli.Exit("verification failed", 1)
			}
			return nil
		},
	}
}

func printReport(report *conformance.Report) {
	fmt.Printf("run:       %s\n", report.ID)
	fmt.Printf("seed:      %d\n", report.Seed)
	fmt.Printf("tolerance: %g\n", report.Tolerance)
	fmt.Println()
	fmt.Printf("%-8s %5s %5s %5s %5s %4s %5s %12s %5s\n",
		"compute", "m", "n", "k", "blk", "zp", "bias", "max_rel_err", "pass")

	failed := 0
	for _, r := range report.Cases {
		if !r.Pass {
			failed++
		}
		fmt.Printf("%-8s %5d %5d %5d %5d %4v %5v %12.3e %5v\n",
			r.Compute, r.M, r.N, r.K, r.BlkLen, r.ZeroPoints, r.Bias, r.MaxRelErr, r.Pass)
	}

	fmt.Println()
	if failed == 0 {
		fmt.Printf("all %d cases passed\n", len(report.Cases))
	} else {
		fmt.Printf("%d of %d cases failed\n", failed, len(report.Cases))
	}
}
