// Package conformance runs the kernel agreement suite: for a set of
// problem shapes it quantizes seeded random inputs, runs the packed
// kernels and compares the output against the double-precision reference
// path. The verify command and the conformance server both drive it.
package conformance

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/qgemm/internal/tensor"
	"github.com/samcharles93/qgemm/pkg/q4gemm"
	"github.com/samcharles93/qgemm/pkg/q4gemm/q4ref"
)

// Compute path names accepted in a Case.
const (
	ComputeFp32    = "fp32"
	ComputeInt8    = "int8"
	ComputeDequant = "dequant"
)

// Case describes one agreement check: a GEMM shape, a block length, a
// compute path and the quantization options applied to B.
type Case struct {
	M          int    `json:"m"`
	N          int    `json:"n"`
	K          int    `json:"k"`
	BlkLen     int    `json:"blk_len"`
	Compute    string `json:"compute"`
	ZeroPoints bool   `json:"zero_points"`
	Bias       bool   `json:"bias"`
}

func (c Case) String() string {
	return fmt.Sprintf("%s m=%d n=%d k=%d blk=%d zp=%v bias=%v",
		c.Compute, c.M, c.N, c.K, c.BlkLen, c.ZeroPoints, c.Bias)
}

// Validate reports whether the case describes a runnable problem.
func (c Case) Validate() error {
	if c.M <= 0 || c.N <= 0 || c.K <= 0 {
		return fmt.Errorf("conformance: non-positive shape %dx%dx%d", c.M, c.N, c.K)
	}
	if c.BlkLen < q4gemm.MinBlkLen || c.BlkLen%q4gemm.MinBlkLen != 0 {
		return fmt.Errorf("conformance: block length %d is not a multiple of %d", c.BlkLen, q4gemm.MinBlkLen)
	}
	switch c.Compute {
	case ComputeFp32, ComputeInt8, ComputeDequant:
		return nil
	default:
		return fmt.Errorf("conformance: unknown compute path %q", c.Compute)
	}
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Case
	MaxRelErr float64 `json:"max_rel_err"`
	Pass      bool    `json:"pass"`
}

// Report aggregates a full suite run.
type Report struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Seed      int64        `json:"seed"`
	Tolerance float64      `json:"tolerance"`
	Cases     []CaseResult `json:"cases"`
	Pass      bool         `json:"pass"`
}

// DefaultTolerance bounds the relative error of kernel output against the
// float64 reference on the same quantized operands.
const DefaultTolerance = 1e-3

// DefaultCases returns the standard shape sweep: ragged and aligned K,
// tile-boundary N values, all three compute paths, with and without zero
// points and bias.
func DefaultCases() []Case {
	var cases []Case
	shapes := []struct{ m, n, k int }{
		{1, 1, 1},
		{1, 4, 64},
		{2, 5, 17},
		{3, 7, 129},
		{5, 16, 256},
	}
	for _, compute := range []string{ComputeFp32, ComputeInt8, ComputeDequant} {
		for _, blkLen := range []int{16, 32, 64} {
			for _, s := range shapes {
				cases = append(cases,
					Case{M: s.m, N: s.n, K: s.k, BlkLen: blkLen, Compute: compute},
					Case{M: s.m, N: s.n, K: s.k, BlkLen: blkLen, Compute: compute, ZeroPoints: true, Bias: true},
				)
			}
		}
	}
	return cases
}

// Run executes every case on seeded random inputs and returns the
// aggregated report. A case that fails validation aborts the run with an
// error; a case that exceeds the tolerance only marks the report as
// failed.
func Run(cases []Case, seed int64, tolerance float64) (*Report, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	report := &Report{
		ID:        "verify_" + uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Seed:      seed,
		Tolerance: tolerance,
		Cases:     make([]CaseResult, 0, len(cases)),
		Pass:      true,
	}

	for i, c := range cases {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		rng := rand.New(rand.NewSource(seed + int64(i)))
		a := randomSlice(rng, c.M*c.K)
		b := randomSlice(rng, c.K*c.N)
		var bias []float32
		if c.Bias {
			bias = randomSlice(rng, c.N)
		}

		ex := execute(c, a, b, bias)
		maxRelErr := ex.maxRelErr(c, bias)

		result := CaseResult{Case: c, MaxRelErr: maxRelErr, Pass: maxRelErr <= tolerance}
		if !result.Pass {
			report.Pass = false
		}
		report.Cases = append(report.Cases, result)
	}
	return report, nil
}

// Execute runs the case's kernel path on caller-supplied operands: a is
// row-major M x K activations, b is row-major K x N float weights which
// are quantized to 4-bit blocks before the kernel runs. bias may be nil
// or hold N values. Returns the row-major M x N output.
func Execute(c Case, a, b, bias []float32) ([]float32, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if len(a) != c.M*c.K {
		return nil, fmt.Errorf("conformance: a holds %d values, want %d", len(a), c.M*c.K)
	}
	if len(b) != c.K*c.N {
		return nil, fmt.Errorf("conformance: b holds %d values, want %d", len(b), c.K*c.N)
	}
	if bias != nil && len(bias) != c.N {
		return nil, fmt.Errorf("conformance: bias holds %d values, want %d", len(bias), c.N)
	}
	return execute(c, a, b, bias).got, nil
}

// execution carries the kernel output plus the operands the reference
// path should consume: B after quantization, and A after int8 rounding
// when the int8 kernel ran.
type execution struct {
	got  []float32
	bDeq []float32
	aRef []float32
}

func execute(c Case, a, b, bias []float32) execution {
	var (
		refData []byte
		scales  []float32
		zps     []byte
	)
	if c.ZeroPoints {
		refData, scales, zps = q4ref.QuantizeB(b, c.N, c.K, c.BlkLen)
	} else {
		refData, scales = q4ref.QuantizeBSymmetric(b, c.N, c.K, c.BlkLen)
	}

	ct := q4gemm.CompFp32
	if c.Compute == ComputeInt8 {
		ct = q4gemm.CompInt8
	}
	packed := make([]byte, q4gemm.PackedQuantBSize(c.N, c.K, c.BlkLen))
	q4gemm.PackQuantB(c.N, c.K, c.BlkLen, ct, refData, packed, nil)

	blockCountK := q4gemm.BlockCountK(c.K, c.BlkLen)
	ex := execution{
		got:  make([]float32, c.M*c.N),
		bDeq: q4ref.DequantB(refData, scales, zps, c.N, c.K, c.BlkLen),
		aRef: a,
	}

	switch c.Compute {
	case ComputeFp32:
		for i := 0; i < c.M; i++ {
			q4gemm.GemmFp32M1Kernel(c.BlkLen, a[i*c.K:(i+1)*c.K], packed, scales, zps, ex.got[i*c.N:(i+1)*c.N], c.N, c.K, blockCountK, bias)
		}

	case ComputeInt8:
		stride := blockCountK * q4gemm.Q8BlkSize(c.BlkLen)
		workspace := make([]byte, q4gemm.WorkspaceSize(c.M, c.K, c.BlkLen, q4gemm.CompInt8))
		for i := 0; i < c.M; i++ {
			q4gemm.QuantizeARow(c.BlkLen, a[i*c.K:(i+1)*c.K], c.K, workspace[i*stride:(i+1)*stride])
		}
		q4gemm.GemmInt8Kernel(c.BlkLen, workspace, packed, scales, zps, ex.got, c.M, c.N, blockCountK, c.N, bias)

		// The reference consumes the int8-rounded activations, so the
		// comparison isolates kernel arithmetic from quantization loss.
		ex.aRef = requantizeA(a, c.M, c.K, c.BlkLen)

	case ComputeDequant:
		kPadded := (c.K + 15) &^ 15
		fp := make([]float32, kPadded*c.N)
		q4gemm.DequantB(c.BlkLen, fp, packed, scales, zps, c.N, c.K, blockCountK)

		A := tensor.NewMatFromData(c.M, c.K, a)
		B := tensor.NewMatFromData(c.K, c.N, fp)
		C := tensor.NewMat(c.M, c.N)
		tensor.Gemm(&C, &A, &B, 1)
		copy(ex.got, C.Data)
		if bias != nil {
			for i := 0; i < c.M; i++ {
				for j := 0; j < c.N; j++ {
					ex.got[i*c.N+j] += bias[j]
				}
			}
		}
	}
	return ex
}

func (ex execution) maxRelErr(c Case, bias []float32) float64 {
	want := make([]float64, c.M*c.N)
	q4ref.Gemm(c.M, c.N, c.K, ex.aRef, c.K, ex.bDeq, bias, want)

	var maxRelErr float64
	for i := range ex.got {
		err := math.Abs(float64(ex.got[i]) - want[i])
		rel := err / math.Max(1, math.Abs(want[i]))
		if rel > maxRelErr {
			maxRelErr = rel
		}
	}
	return maxRelErr
}

// requantizeA rounds activations through the int8 block representation:
// per block, scale = amax/127 and value = round(v/scale)*scale, matching
// the activation quantizer's semantics.
func requantizeA(a []float32, m, k, blkLen int) []float32 {
	out := make([]float32, len(a))
	for i := 0; i < m; i++ {
		row := a[i*k : (i+1)*k]
		dst := out[i*k : (i+1)*k]
		for kk := 0; kk < k; kk += blkLen {
			blk := row[kk:min(kk+blkLen, k)]

			var amax float32
			for _, v := range blk {
				if v < 0 {
					v = -v
				}
				if v > amax {
					amax = v
				}
			}
			scale := amax / 127
			if scale == 0 {
				continue
			}
			for j, v := range blk {
				dst[kk+j] = float32(math.Round(float64(v/scale))) * scale
			}
		}
	}
	return out
}

func randomSlice(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = (rng.Float32() - 0.5) * 2
	}
	return out
}
