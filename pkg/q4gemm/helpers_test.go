package q4gemm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/samcharles93/qgemm/pkg/q4gemm/q4ref"
)

func randFloats(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = (rng.Float32() - 0.5) * 2
	}
	return out
}

// quantizePacked quantizes a row-major countK x countN float matrix with
// the reference quantizer and packs it for the given compute type.
// Returns the packed data, the scales, the zero points (nil when
// symmetric) and the sequential reference data.
func quantizePacked(t *testing.T, b []float32, countN, countK, blkLen int, ct ComputeType, withZP bool) ([]byte, []float32, []byte, []byte) {
	t.Helper()

	var (
		refData []byte
		scales  []float32
		zps     []byte
	)
	if withZP {
		refData, scales, zps = q4ref.QuantizeB(b, countN, countK, blkLen)
	} else {
		refData, scales = q4ref.QuantizeBSymmetric(b, countN, countK, blkLen)
	}

	packed := make([]byte, PackedQuantBSize(countN, countK, blkLen))
	PackQuantB(countN, countK, blkLen, ct, refData, packed, nil)
	return packed, scales, zps, refData
}

func assertCloseSlice(t *testing.T, got []float32, want []float64, tolerance float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		err := math.Abs(float64(got[i]) - want[i])
		rel := err / math.Max(1, math.Abs(want[i]))
		if rel > tolerance {
			t.Fatalf("element %d: got %g want %g (rel err %g > %g)", i, got[i], want[i], rel, tolerance)
		}
	}
}
