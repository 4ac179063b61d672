package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sys/unix"

	"github.com/samcharles93/qgemm/internal/logger"
	"github.com/samcharles93/qgemm/internal/parallel"
	"github.com/samcharles93/qgemm/pkg/q4gemm"
	"github.com/samcharles93/qgemm/pkg/q4gemm/q4ref"
)

// Packed weight container, little-endian:
//
//	magic "Q4W1" | version u32 | n u32 | k u32 | blkLen u32 |
//	compute u32 | hasZeroPoints u32 | scales f32[n*blockCountK] |
//	zeroPoints byte[n*ZeroPointsSize] (if present) | packed data
const packMagic = "Q4W1"

func packCmd() *cli.Command {
	var (
		countN     int64
		countK     int64
		zeroPoints bool
		output     string
	)

	flags := append(commonKernelFlags(),
		&cli.Int64Flag{
			Name:        "n",
			Usage:       "weight matrix column count",
			Required:    true,
			Destination: &countN,
		},
		&cli.Int64Flag{
			Name:        "k",
			Usage:       "weight matrix row count (reduction dimension)",
			Required:    true,
			Destination: &countK,
		},
		&cli.BoolFlag{
			Name:        "zero-points",
			Usage:       "derive asymmetric per-block zero points",
			Destination: &zeroPoints,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "output file path",
			Destination: &output,
		},
	)

	return &cli.Command{
		Name:      "pack",
		Usage:     "Quantize a raw float32 weight file and pack it for the kernels",
		ArgsUsage: "<weights.f32>",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyKernelConfig(cmd, LoadConfig())

			if cmd.Args().Len() != 1 {
				return cli.Exit("error: expected exactly one input file", 1)
			}
			input := cmd.Args().First()
			if err := validateBlkLenFlag(blkLen); err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			ct, err := parseComputeType(computeType)
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			if output == "" {
				output = input + ".q4w"
			}

			n, k, blk := int(countN), int(countK), int(blkLen)
			weights, cleanup, err := readFloat32File(input, k*n)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read weights: %v", err), 1)
			}
			defer cleanup()

			log.Info("quantizing", "n", n, "k", k, "blk_len", blk, "compute", ct.String(), "zero_points", zeroPoints)
			start := time.Now()

			var (
				refData []byte
				scales  []float32
				zps     []byte
			)
			if zeroPoints {
				refData, scales, zps = q4ref.QuantizeB(weights, n, k, blk)
			} else {
				refData, scales = q4ref.QuantizeBSymmetric(weights, n, k, blk)
			}

			pool := parallel.New(int(workers))
			defer pool.Close()

			packed := make([]byte, q4gemm.PackedQuantBSize(n, k, blk))
			q4gemm.PackQuantB(n, k, blk, ct, refData, packed, pool)

			if err := writePackedFile(output, n, k, blk, ct, scales, zps, packed); err != nil {
				return cli.Exit(fmt.Sprintf("error: write %s: %v", output, err), 1)
			}

			log.Info("packed", "output", output, "bytes", len(packed), "duration", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

// readFloat32File maps the input read-only and decodes count little-endian
// float32 values. The returned cleanup releases the mapping; it falls back
// to a plain read where mmap is unavailable.
func readFloat32File(path string, count int) ([]float32, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	want := int64(count) * 4
	if stat.Size() != want {
		return nil, nil, fmt.Errorf("file holds %d bytes, want %d (k*n float32 values)", stat.Size(), want)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(want), unix.PROT_READ, unix.MAP_SHARED)
	cleanup := func() {}
	if err == nil {
		cleanup = func() { _ = unix.Munmap(data) }
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
	}

	out := make([]float32, count)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, cleanup, nil
}

func writePackedFile(path string, n, k, blk int, ct q4gemm.ComputeType, scales []float32, zps []byte, packed []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	hasZP := uint32(0)
	if zps != nil {
		hasZP = 1
	}
	header := make([]byte, 0, 28)
	header = append(header, packMagic...)
	for _, v := range []uint32{1, uint32(n), uint32(k), uint32(blk), uint32(ct), hasZP} {
		header = binary.LittleEndian.AppendUint32(header, v)
	}
	if _, err := w.Write(header); err != nil {
		_ = f.Close()
		return err
	}

	buf := make([]byte, 4)
	for _, s := range scales {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(s))
		if _, err := w.Write(buf); err != nil {
			_ = f.Close()
			return err
		}
	}
	if zps != nil {
		if _, err := w.Write(zps); err != nil {
			_ = f.Close()
			return err
		}
	}
	if _, err := w.Write(packed); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
