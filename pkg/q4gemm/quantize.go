package q4gemm

import (
	"math"

	"simd/archsimd"
)

// QuantizeARow converts one row of float32 activations into the Q8 block
// format consumed by the int8 kernel: one block per blkLen elements, each
// holding a float32 scale and blkLen int8 codes.
//
// Per block, scale = amax/127 where amax is the maximum absolute value of
// the block's valid elements, and code = round(x/scale) with ties away
// from zero. An all-zero block stores scale 0 and all-zero codes. Block
// positions past countK are zero-filled so the integer dot products never
// read stale bytes.
//
// quantA must hold BlockCountK(countK, blkLen) * Q8BlkSize(blkLen) bytes.
// The function is pure: identical input yields identical output bytes.
func QuantizeARow(blkLen int, a []float32, countK int, quantA []byte) {
	validateBlkLen(blkLen)

	q8Size := Q8BlkSize(blkLen)
	for k := 0; k < countK; k += blkLen {
		kBlkLen := min(countK-k, blkLen)
		blk := quantA[(k/blkLen)*q8Size:]
		quantizeBlock(blkLen, a[k:k+kBlkLen], blk[:q8Size])
	}
}

func quantizeBlock(blkLen int, src []float32, blk []byte) {
	amax := blockAbsMax(src)

	const rangeMax = 127.0
	scale := amax / rangeMax
	recip := float32(0)
	if scale != 0 {
		recip = 1 / scale
	}
	q8BlkSetScale(blk, scale)

	data := q8BlkData(blk, blkLen)
	for i, v := range src {
		// Values are bounded to the int8 range by construction of the
		// scale; no clamp is needed.
		data[i] = byte(int8(math.Round(float64(v * recip))))
	}
	clear(data[len(src):])
}

// blockAbsMax returns the maximum absolute value of src, reducing 16
// elements at a time.
func blockAbsMax(src []float32) float32 {
	var amax float32
	i := 0

	if cpu.HasAVX2 && len(src) >= 16 {
		var zero, m0, m1 archsimd.Float32x8
		for ; i+16 <= len(src); i += 16 {
			v0 := archsimd.LoadFloat32x8Slice(src[i:])
			v1 := archsimd.LoadFloat32x8Slice(src[i+8:])
			m0 = m0.Max(v0.Max(zero.Sub(v0)))
			m1 = m1.Max(v1.Max(zero.Sub(v1)))
		}
		m0 = m0.Max(m1)

		var tmp [8]float32
		m0.Store(&tmp)
		for _, v := range tmp {
			if v > amax {
				amax = v
			}
		}
	}

	for ; i < len(src); i++ {
		v := src[i]
		if v < 0 {
			v = -v
		}
		if v > amax {
			amax = v
		}
	}
	return amax
}
