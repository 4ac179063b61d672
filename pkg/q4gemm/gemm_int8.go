package q4gemm

import "simd/archsimd"

// GemmInt8Kernel computes C = A*B (+ bias) where A is the block-quantized
// int8 workspace produced by QuantizeARow (one row of blocks per output
// row) and B is packed 4-bit data in the CompInt8 layout.
//
// Output is tiled 2 rows x 2 columns with 1x1 fallbacks on both
// boundaries. Integer partial sums from different blocks are not
// comparable, because each (row, col) pair carries its own combined scale
// per block; every block's exact integer dot product is converted to
// float and rescaled before it is folded into the running accumulator.
//
// c is written with row stride ldc. Returns the number of rows computed.
func GemmInt8Kernel(blkLen int, quantA []byte, quantB []byte, quantBScale []float32, zeroPoints []byte, c []float32, countM, countN, blockCountK, ldc int, bias []float32) int {
	validateBlkLen(blkLen)

	k := int8Kernel{
		blkLen:      blkLen,
		blkSize:     blkDataSize(blkLen),
		q8Size:      Q8BlkSize(blkLen),
		blockCountK: blockCountK,
		strideData:  blockCountK * blkDataSize(blkLen),
		strideZP:    ZeroPointsSize(blockCountK),
		a0:          make([]int8, blkLen),
		a1:          make([]int8, blkLen),
		b0:          make([]int8, blkLen),
		b1:          make([]int8, blkLen),
	}
	strideQuantA := blockCountK * k.q8Size

	m := 0
	for ; m+2 <= countM; m += 2 {
		aRow0 := quantA[m*strideQuantA:]
		aRow1 := quantA[(m+1)*strideQuantA:]

		n := 0
		for ; n+2 <= countN; n += 2 {
			k.compute2x2(aRow0, aRow1, quantB, quantBScale, zeroPoints, c, m, n, ldc, bias)
		}
		for ; n < countN; n++ {
			c[m*ldc+n] = k.compute1x1(aRow0, quantB, quantBScale, zeroPoints, n, colBias(bias, n))
			c[(m+1)*ldc+n] = k.compute1x1(aRow1, quantB, quantBScale, zeroPoints, n, colBias(bias, n))
		}
	}
	if m < countM {
		aRow := quantA[m*strideQuantA:]
		for n := 0; n < countN; n++ {
			c[m*ldc+n] = k.compute1x1(aRow, quantB, quantBScale, zeroPoints, n, colBias(bias, n))
		}
	}
	return countM
}

type int8Kernel struct {
	blkLen      int
	blkSize     int
	q8Size      int
	blockCountK int
	strideData  int
	strideZP    int

	// per-call staging buffers for unpacked int8 codes
	a0, a1, b0, b1 []int8
}

func (k *int8Kernel) compute2x2(aRow0, aRow1, quantB []byte, quantBScale []float32, zeroPoints []byte, c []float32, m, n, ldc int, bias []float32) {
	bCol0 := quantB[n*k.strideData:]
	bCol1 := quantB[(n+1)*k.strideData:]
	bScale0 := quantBScale[n*k.blockCountK:]
	bScale1 := quantBScale[(n+1)*k.blockCountK:]

	var acc00, acc01, acc10, acc11 float32

	for kBlk := 0; kBlk < k.blockCountK; kBlk++ {
		aBlk0 := aRow0[kBlk*k.q8Size:]
		aBlk1 := aRow1[kBlk*k.q8Size:]

		// combined scales, one per (row, col) pair
		aScale0 := q8BlkScale(aBlk0)
		aScale1 := q8BlkScale(aBlk1)
		scale00 := aScale0 * bScale0[kBlk]
		scale01 := aScale0 * bScale1[kBlk]
		scale10 := aScale1 * bScale0[kBlk]
		scale11 := aScale1 * bScale1[kBlk]

		zp0 := k.colZeroPoint(zeroPoints, n, kBlk)
		zp1 := k.colZeroPoint(zeroPoints, n+1, kBlk)

		int8Codes(q8BlkData(aBlk0, k.blkLen), k.a0)
		int8Codes(q8BlkData(aBlk1, k.blkLen), k.a1)
		k.unpackB(bCol0[kBlk*k.blkSize:], zp0, k.b0)
		k.unpackB(bCol1[kBlk*k.blkSize:], zp1, k.b1)

		acc00 += float32(dotInt8(k.a0, k.b0)) * scale00
		acc01 += float32(dotInt8(k.a0, k.b1)) * scale01
		acc10 += float32(dotInt8(k.a1, k.b0)) * scale10
		acc11 += float32(dotInt8(k.a1, k.b1)) * scale11
	}

	if bias != nil {
		acc00 += bias[n]
		acc01 += bias[n+1]
		acc10 += bias[n]
		acc11 += bias[n+1]
	}

	c[m*ldc+n] = acc00
	c[m*ldc+n+1] = acc01
	c[(m+1)*ldc+n] = acc10
	c[(m+1)*ldc+n+1] = acc11
}

func (k *int8Kernel) compute1x1(aRow, quantB []byte, quantBScale []float32, zeroPoints []byte, n int, bias []float32) float32 {
	bCol := quantB[n*k.strideData:]
	bScale := quantBScale[n*k.blockCountK:]

	var acc float32
	for kBlk := 0; kBlk < k.blockCountK; kBlk++ {
		aBlk := aRow[kBlk*k.q8Size:]
		scale := q8BlkScale(aBlk) * bScale[kBlk]
		zp := k.colZeroPoint(zeroPoints, n, kBlk)

		int8Codes(q8BlkData(aBlk, k.blkLen), k.a0)
		k.unpackB(bCol[kBlk*k.blkSize:], zp, k.b0)

		acc += float32(dotInt8(k.a0, k.b0)) * scale
	}
	if bias != nil {
		acc += bias[0]
	}
	return acc
}

func (k *int8Kernel) colZeroPoint(zeroPoints []byte, n, kBlk int) int8 {
	if zeroPoints == nil {
		return defaultZeroPoint
	}
	return int8(zeroPointAt(zeroPoints[n*k.strideZP:], kBlk))
}

// unpackB decodes one packed block into zero-point-subtracted int8 codes.
// The CompInt8 layout interleaves per sub-block: with 32-value sub-blocks
// byte m holds value m in the low nibble and value m+16 in the high
// nibble; the minimum block length uses 16-value sub-blocks (m and m+8).
func (k *int8Kernel) unpackB(packed []byte, zp int8, dst []int8) {
	if k.blkLen == MinBlkLen {
		for m := 0; m < 8; m++ {
			b := packed[m]
			dst[m] = int8(b&0x0F) - zp
			dst[m+8] = int8(b>>4) - zp
		}
		return
	}
	for sub := 0; sub < k.blkLen/32; sub++ {
		p := packed[sub*16:]
		d := dst[sub*32:]
		for m := 0; m < 16; m++ {
			b := p[m]
			d[m] = int8(b&0x0F) - zp
			d[m+16] = int8(b>>4) - zp
		}
	}
}

func int8Codes(src []byte, dst []int8) {
	for i, b := range src {
		dst[i] = int8(b)
	}
}

// dotInt8 computes the exact widening dot product of two equal-length
// int8 vectors. Lengths are multiples of 16.
func dotInt8(a, b []int8) int32 {
	if cpu.HasAVX2 {
		return dotInt8SIMD(a, b)
	}
	return dotInt8Scalar(a, b)
}

func dotInt8Scalar(a, b []int8) int32 {
	var sum int32
	for i := range a {
		sum += int32(a[i]) * int32(b[i])
	}
	return sum
}

func dotInt8SIMD(a, b []int8) int32 {
	var acc archsimd.Int32x8
	i := 0
	for ; i+16 <= len(a); i += 16 {
		va := archsimd.LoadInt8x16Slice(a[i:]).ExtendToInt16()
		vb := archsimd.LoadInt8x16Slice(b[i:]).ExtendToInt16()
		acc = acc.Add(va.DotProductPairs(vb))
	}

	var tmp [8]int32
	acc.Store(&tmp)
	sum := tmp[0] + tmp[1] + tmp[2] + tmp[3] + tmp[4] + tmp[5] + tmp[6] + tmp[7]
	for ; i < len(a); i++ {
		sum += int32(a[i]) * int32(b[i])
	}
	return sum
}
