// Package q4ref provides portable reference implementations of the 4-bit
// block quantization scheme: a float-to-nibble quantizer producing the
// sequential source layout consumed by PackQuantB, a straightforward
// dequantizer, and a double-precision GEMM. The kernels in the parent
// package are validated against these.
package q4ref

import "math"

// BlockCountK mirrors the block geometry of the kernel package.
func BlockCountK(k, blkLen int) int {
	return (k + blkLen - 1) / blkLen
}

// Nibble returns the 4-bit value of element (kIdx, n) from data in the
// sequential reference layout: column-major blocks, two adjacent values
// per byte, low nibble first.
func Nibble(data []byte, blkLen, blockCountK, n, kIdx int) byte {
	blkSize := blkLen / 2
	blk := data[(n*blockCountK+kIdx/blkLen)*blkSize:]
	b := blk[(kIdx%blkLen)/2]
	if kIdx&1 == 1 {
		return b >> 4
	}
	return b & 0x0F
}

// ZeroPoint returns the packed 4-bit zero point of block (n, kBlk).
func ZeroPoint(zeroPoints []byte, blockCountK, n, kBlk int) byte {
	strideZP := (blockCountK + 1) / 2
	b := zeroPoints[n*strideZP+kBlk/2]
	if kBlk&1 == 1 {
		return b >> 4
	}
	return b & 0x0F
}

// QuantizeB quantizes a row-major countK x countN float32 matrix to 4-bit
// blocks in the sequential reference layout, deriving an asymmetric scale
// and 4-bit zero point from each block's min/max range.
func QuantizeB(b []float32, countN, countK, blkLen int) (data []byte, scales []float32, zeroPoints []byte) {
	return quantizeB(b, countN, countK, blkLen, false)
}

// QuantizeBSymmetric quantizes with scale = amax/7 per block around the
// implicit zero point 8; no zero-point data is produced.
func QuantizeBSymmetric(b []float32, countN, countK, blkLen int) (data []byte, scales []float32) {
	data, scales, _ = quantizeB(b, countN, countK, blkLen, true)
	return data, scales
}

func quantizeB(b []float32, countN, countK, blkLen int, symmetric bool) ([]byte, []float32, []byte) {
	blockCountK := BlockCountK(countK, blkLen)
	blkSize := blkLen / 2
	strideZP := (blockCountK + 1) / 2

	data := make([]byte, countN*blockCountK*blkSize)
	scales := make([]float32, countN*blockCountK)
	var zeroPoints []byte
	if !symmetric {
		zeroPoints = make([]byte, countN*strideZP)
	}

	for n := 0; n < countN; n++ {
		for kBlk := 0; kBlk < blockCountK; kBlk++ {
			kBase := kBlk * blkLen
			kLen := countK - kBase
			if kLen > blkLen {
				kLen = blkLen
			}

			scale, zp := blockParams(b, countN, n, kBase, kLen, symmetric)
			scales[n*blockCountK+kBlk] = scale
			if !symmetric {
				setZeroPoint(zeroPoints[n*strideZP:], kBlk, zp)
			}

			blk := data[(n*blockCountK+kBlk)*blkSize:]
			for i := 0; i < blkLen; i++ {
				q := zp // pad positions encode the zero point exactly
				if i < kLen {
					q = quantizeValue(b[(kBase+i)*countN+n], scale, zp)
				}
				if i&1 == 0 {
					blk[i/2] = q & 0x0F
				} else {
					blk[i/2] |= q << 4
				}
			}
		}
	}
	return data, scales, zeroPoints
}

func blockParams(b []float32, countN, n, kBase, kLen int, symmetric bool) (float32, byte) {
	vmin, vmax := float32(0), float32(0)
	for i := 0; i < kLen; i++ {
		v := b[(kBase+i)*countN+n]
		if v < vmin {
			vmin = v
		}
		if v > vmax {
			vmax = v
		}
	}

	if symmetric {
		amax := vmax
		if -vmin > amax {
			amax = -vmin
		}
		return amax / 7, 8
	}

	scale := (vmax - vmin) / 15
	zp := byte(8)
	if scale != 0 {
		zp = byte(clamp(math.Round(float64(-vmin/scale)), 0, 15))
	}
	return scale, zp
}

func quantizeValue(v, scale float32, zp byte) byte {
	if scale == 0 {
		return zp
	}
	return byte(clamp(math.Round(float64(v/scale))+float64(zp), 0, 15))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func setZeroPoint(zp []byte, kBlk int, v byte) {
	if kBlk&1 == 1 {
		zp[kBlk/2] |= v << 4
	} else {
		zp[kBlk/2] |= v & 0x0F
	}
}

// DequantB decodes reference-layout data into a row-major countK x countN
// float32 matrix. zeroPoints may be nil for symmetric weights.
func DequantB(data []byte, scales []float32, zeroPoints []byte, countN, countK, blkLen int) []float32 {
	blockCountK := BlockCountK(countK, blkLen)
	out := make([]float32, countK*countN)
	for n := 0; n < countN; n++ {
		for kIdx := 0; kIdx < countK; kIdx++ {
			kBlk := kIdx / blkLen
			scale := scales[n*blockCountK+kBlk]
			zp := byte(8)
			if zeroPoints != nil {
				zp = ZeroPoint(zeroPoints, blockCountK, n, kBlk)
			}
			nib := Nibble(data, blkLen, blockCountK, n, kIdx)
			out[kIdx*countN+n] = scale * float32(int(nib)-int(zp))
		}
	}
	return out
}

// Gemm computes C = A*B (+ bias) in float64: A is row-major m x k with
// row stride lda, B is row-major k x n (typically a dequantized weight
// matrix), C is row-major m x n.
func Gemm(m, n, k int, a []float32, lda int, b []float32, bias []float32, c []float64) {
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float64
			for kk := 0; kk < k; kk++ {
				sum += float64(a[i*lda+kk]) * float64(b[kk*n+j])
			}
			if bias != nil {
				sum += float64(bias[j])
			}
			c[i*n+j] = sum
		}
	}
}
