package q4gemm

import (
	"math/rand"
	"testing"

	"github.com/samcharles93/qgemm/pkg/q4gemm/q4ref"
)

func TestDequantizeValueExact(t *testing.T) {
	// 0.25 * (5 - 2) = 0.75, exactly representable.
	if got := DequantizeValue(5, 0.25, 2); got != 0.75 {
		t.Fatalf("got %g want 0.75", got)
	}

	// The bit-constructed conversion must agree with the plain integer
	// formula for every nibble and zero point.
	for nib := byte(0); nib < 16; nib++ {
		for zp := byte(0); zp < 16; zp++ {
			want := 0.5 * float32(int(nib)-int(zp))
			if got := DequantizeValue(nib, 0.5, zp); got != want {
				t.Fatalf("nibble %d zp %d: got %g want %g", nib, zp, got, want)
			}
		}
	}
}

func TestDequantBMatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(21))

	for _, blkLen := range []int{16, 32, 64} {
		for _, countK := range []int{1, 17, blkLen, 2*blkLen + 3} {
			for _, withZP := range []bool{false, true} {
				const countN = 5
				b := randFloats(rng, countK*countN)
				packed, scales, zps, refData := quantizePacked(t, b, countN, countK, blkLen, CompFp32, withZP)

				want := q4ref.DequantB(refData, scales, zps, countN, countK, blkLen)

				kPadded := (countK + 15) &^ 15
				got := make([]float32, kPadded*countN)
				for i := range got {
					got[i] = 999
				}
				blockCountK := BlockCountK(countK, blkLen)
				DequantB(blkLen, got, packed, scales, zps, countN, countK, blockCountK)

				for i := 0; i < countK*countN; i++ {
					if got[i] != want[i] {
						t.Fatalf("blkLen=%d k=%d zp=%v: element %d: got %g want %g", blkLen, countK, withZP, i, got[i], want[i])
					}
				}
				for i := countK * countN; i < kPadded*countN; i++ {
					if got[i] != 0 {
						t.Fatalf("blkLen=%d k=%d: padding element %d not zeroed: %g", blkLen, countK, i, got[i])
					}
				}
			}
		}
	}
}

func TestDequantBDefaultZeroPoint(t *testing.T) {
	// Without zero point data every block decodes around the implicit
	// center 8.
	const (
		blkLen = 16
		countK = 16
		countN = 1
	)
	refData := make([]byte, PackedQuantBSize(countN, countK, blkLen))
	for i := range refData {
		refData[i] = byte(2*i) | byte(2*i+1)<<4 // values 0..15
	}
	scales := []float32{1}

	packed := make([]byte, len(refData))
	PackQuantB(countN, countK, blkLen, CompFp32, refData, packed, nil)

	got := make([]float32, countK*countN)
	DequantB(blkLen, got, packed, scales, nil, countN, countK, 1)

	for i := 0; i < countK; i++ {
		want := float32(i - 8)
		if got[i] != want {
			t.Fatalf("element %d: got %g want %g", i, got[i], want)
		}
	}
}
