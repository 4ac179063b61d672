package q4gemm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/samcharles93/qgemm/pkg/q4gemm/q4ref"
)

func TestGemmFp32AgreesWithReference(t *testing.T) {
	rng := rand.New(rand.NewSource(31))

	for _, blkLen := range []int{16, 32, 64} {
		for _, countK := range []int{1, 17, 64, 129} {
			for _, countN := range []int{1, 3, 4, 5, 7, 16} {
				for _, withZP := range []bool{false, true} {
					for _, withBias := range []bool{false, true} {
						a := randFloats(rng, countK)
						b := randFloats(rng, countK*countN)
						var bias []float32
						if withBias {
							bias = randFloats(rng, countN)
						}

						packed, scales, zps, refData := quantizePacked(t, b, countN, countK, blkLen, CompFp32, withZP)
						bDeq := q4ref.DequantB(refData, scales, zps, countN, countK, blkLen)

						want := make([]float64, countN)
						q4ref.Gemm(1, countN, countK, a, countK, bDeq, bias, want)

						got := make([]float32, countN)
						GemmFp32M1Kernel(blkLen, a, packed, scales, zps, got, countN, countK, BlockCountK(countK, blkLen), bias)

						assertCloseSlice(t, got, want, 1e-3)
					}
				}
			}
		}
	}
}

func TestGemmFp32TileBoundaryBitIdentical(t *testing.T) {
	// A 5-column problem ends with a single-column remainder; those
	// columns must be bit-identical to the same columns computed inside
	// full 4-column tiles of a wider problem.
	const (
		blkLen = 32
		countK = 67
		narrow = 5
		wide   = 8
	)
	rng := rand.New(rand.NewSource(41))
	a := randFloats(rng, countK)
	b := randFloats(rng, countK*wide)

	packed, scales, zps, _ := quantizePacked(t, b, wide, countK, blkLen, CompFp32, true)
	blockCountK := BlockCountK(countK, blkLen)

	wideOut := make([]float32, wide)
	GemmFp32M1Kernel(blkLen, a, packed, scales, zps, wideOut, wide, countK, blockCountK, nil)

	narrowOut := make([]float32, narrow)
	GemmFp32M1Kernel(blkLen, a, packed, scales, zps, narrowOut, narrow, countK, blockCountK, nil)

	for n := 0; n < narrow; n++ {
		if math.Float32bits(narrowOut[n]) != math.Float32bits(wideOut[n]) {
			t.Fatalf("column %d: narrow %g (%#08x) differs from wide %g (%#08x)",
				n, narrowOut[n], math.Float32bits(narrowOut[n]), wideOut[n], math.Float32bits(wideOut[n]))
		}
	}
}

func TestGemmFp32ZeroScaleBlocks(t *testing.T) {
	// All-zero B quantizes to scale-0 blocks; output must be exactly the
	// bias, not NaN.
	const (
		blkLen = 16
		countK = 48
		countN = 4
	)
	rng := rand.New(rand.NewSource(51))
	a := randFloats(rng, countK)
	b := make([]float32, countK*countN)
	bias := []float32{1, -2, 3, -4}

	packed, scales, zps, _ := quantizePacked(t, b, countN, countK, blkLen, CompFp32, true)

	got := make([]float32, countN)
	GemmFp32M1Kernel(blkLen, a, packed, scales, zps, got, countN, countK, BlockCountK(countK, blkLen), bias)

	for n := range got {
		if got[n] != bias[n] {
			t.Fatalf("column %d: got %g want %g", n, got[n], bias[n])
		}
	}
}
