package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/qgemm/internal/logger"
	"github.com/samcharles93/qgemm/pkg/q4gemm"
)

var (
	blkLen      int64
	computeType string
	workers     int64
	logLevel    string
	logFormat   string
)

func commonKernelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "blk-len",
			Aliases:     []string{"b"},
			Usage:       "quantization block length (multiple of 16)",
			Value:       32,
			Destination: &blkLen,
		},
		&cli.StringFlag{
			Name:        "compute",
			Usage:       "compute path (fp32, int8)",
			Value:       "fp32",
			Destination: &computeType,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Aliases:     []string{"w"},
			Usage:       "worker count for parallel packing (0 = GOMAXPROCS)",
			Destination: &workers,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
	}
}

func buildLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "pretty":
		return logger.Pretty(os.Stderr, level)
	default:
		return logger.Default()
	}
}

func parseComputeType(s string) (q4gemm.ComputeType, error) {
	switch s {
	case "fp32":
		return q4gemm.CompFp32, nil
	case "int8":
		return q4gemm.CompInt8, nil
	default:
		return 0, fmt.Errorf("unknown compute path %q (want fp32 or int8)", s)
	}
}

func validateBlkLenFlag(v int64) error {
	if v < q4gemm.MinBlkLen || v%q4gemm.MinBlkLen != 0 {
		return fmt.Errorf("blk-len %d must be a positive multiple of %d", v, q4gemm.MinBlkLen)
	}
	return nil
}
