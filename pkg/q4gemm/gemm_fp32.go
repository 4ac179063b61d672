package q4gemm

import "simd/archsimd"

// GemmFp32M1Kernel computes one output row of C = A*B (+ bias) for a
// single float32 activation row against packed 4-bit B. Columns are
// processed in tiles of four with a single-column fallback for the
// remainder; both tile widths run the same per-column computation, so
// boundary columns are bit-identical to what a full tile would produce.
//
// c receives countN values. bias may be nil; zeroPoints may be nil for
// symmetric weights.
func GemmFp32M1Kernel(blkLen int, a []float32, quantB []byte, quantBScale []float32, zeroPoints []byte, c []float32, countN, countK, blockCountK int, bias []float32) {
	validateBlkLen(blkLen)

	const nCols = 4

	strideData := blockCountK * blkDataSize(blkLen)
	strideScale := blockCountK
	strideZP := ZeroPointsSize(blockCountK)

	n := 0
	for ; n+nCols <= countN; n += nCols {
		computeDotProducts(nCols, blkLen, a, quantB[n*strideData:], quantBScale[n*strideScale:], colZeroPoints(zeroPoints, n, strideZP), c[n:], countK, strideData, strideScale, strideZP, colBias(bias, n))
	}
	for ; n < countN; n++ {
		computeDotProducts(1, blkLen, a, quantB[n*strideData:], quantBScale[n*strideScale:], colZeroPoints(zeroPoints, n, strideZP), c[n:], countK, strideData, strideScale, strideZP, colBias(bias, n))
	}
}

func colZeroPoints(zeroPoints []byte, n, strideZP int) []byte {
	if zeroPoints == nil {
		return nil
	}
	return zeroPoints[n*strideZP:]
}

func colBias(bias []float32, n int) []float32 {
	if bias == nil {
		return nil
	}
	return bias[n:]
}

// computeDotProducts accumulates nCols adjacent output columns over the
// full K range. nCols is 1 or 4; the per-column arithmetic is identical
// for both widths.
func computeDotProducts(nCols, blkLen int, aRow []float32, bData []byte, bScale []float32, bZeroPoint []byte, sum []float32, countK, strideData, strideScale, strideZP int, bias []float32) {
	if cpu.HasAVX2 {
		computeDotProductsSIMD(nCols, blkLen, aRow, bData, bScale, bZeroPoint, sum, countK, strideData, strideScale, strideZP, bias)
		return
	}
	computeDotProductsScalar(nCols, blkLen, aRow, bData, bScale, bZeroPoint, sum, countK, strideData, strideScale, strideZP, bias)
}

func computeDotProductsSIMD(nCols, blkLen int, aRow []float32, bData []byte, bScale []float32, bZeroPoint []byte, sum []float32, countK, strideData, strideScale, strideZP int, bias []float32) {
	blkSize := blkDataSize(blkLen)

	var acc [4]archsimd.Float32x8

	var scale [4]float32
	var offset [4]float32
	var av, bv [16]float32

	zpIdx := 0 // half-byte index into the packed zero points
	for k := 0; k < countK; k += blkLen {
		kBlkLen := min(countK-k, blkLen)
		blkOff := (k / blkLen) * blkSize

		for i := 0; i < nCols; i++ {
			scale[i] = bScale[i*strideScale+k/blkLen]
			offset[i] = fp32ConversionOffset + defaultZeroPoint
			if bZeroPoint != nil {
				zp := bZeroPoint[i*strideZP+zpIdx/2]
				if zpIdx&1 == 1 {
					offset[i] = fp32ConversionOffset + float32(zp>>4)
				} else {
					offset[i] = fp32ConversionOffset + float32(zp&0x0F)
				}
			}
		}

		for kk := 0; kk < kBlkLen; kk += 16 {
			kSubBlkLen := min(kBlkLen-kk, 16)
			loadFloatData16(aRow[k+kk:], kSubBlkLen, &av)
			avLo := archsimd.LoadFloat32x8Slice(av[:])
			avHi := archsimd.LoadFloat32x8Slice(av[8:])

			for i := 0; i < nCols; i++ {
				decodeSubBlk16(bData[i*strideData+blkOff+kk/2:], offset[i], scale[i], &bv)
				bvLo := archsimd.LoadFloat32x8Slice(bv[:])
				bvHi := archsimd.LoadFloat32x8Slice(bv[8:])
				acc[i] = avLo.MulAdd(bvLo, acc[i])
				acc[i] = avHi.MulAdd(bvHi, acc[i])
			}
		}

		if bZeroPoint != nil {
			zpIdx++
		}
	}

	var tmp [8]float32
	for i := 0; i < nCols; i++ {
		acc[i].Store(&tmp)
		s := tmp[0] + tmp[1] + tmp[2] + tmp[3] + tmp[4] + tmp[5] + tmp[6] + tmp[7]
		if bias != nil {
			s += bias[i]
		}
		sum[i] = s
	}
}

func computeDotProductsScalar(nCols, blkLen int, aRow []float32, bData []byte, bScale []float32, bZeroPoint []byte, sum []float32, countK, strideData, strideScale, strideZP int, bias []float32) {
	blkSize := blkDataSize(blkLen)

	var acc [4][8]float32

	var scale [4]float32
	var offset [4]float32
	var av, bv [16]float32

	zpIdx := 0
	for k := 0; k < countK; k += blkLen {
		kBlkLen := min(countK-k, blkLen)
		blkOff := (k / blkLen) * blkSize

		for i := 0; i < nCols; i++ {
			scale[i] = bScale[i*strideScale+k/blkLen]
			offset[i] = fp32ConversionOffset + defaultZeroPoint
			if bZeroPoint != nil {
				zp := bZeroPoint[i*strideZP+zpIdx/2]
				if zpIdx&1 == 1 {
					offset[i] = fp32ConversionOffset + float32(zp>>4)
				} else {
					offset[i] = fp32ConversionOffset + float32(zp&0x0F)
				}
			}
		}

		for kk := 0; kk < kBlkLen; kk += 16 {
			kSubBlkLen := min(kBlkLen-kk, 16)
			loadFloatData16(aRow[k+kk:], kSubBlkLen, &av)

			for i := 0; i < nCols; i++ {
				decodeSubBlk16(bData[i*strideData+blkOff+kk/2:], offset[i], scale[i], &bv)
				for j := 0; j < 8; j++ {
					acc[i][j] += av[j] * bv[j]
					acc[i][j] += av[j+8] * bv[j+8]
				}
			}
		}

		if bZeroPoint != nil {
			zpIdx++
		}
	}

	for i := 0; i < nCols; i++ {
		s := acc[i][0] + acc[i][1] + acc[i][2] + acc[i][3] + acc[i][4] + acc[i][5] + acc[i][6] + acc[i][7]
		if bias != nil {
			s += bias[i]
		}
		sum[i] = s
	}
}

// loadFloatData16 copies count values into dst and zeroes the rest.
func loadFloatData16(src []float32, count int, dst *[16]float32) {
	*dst = [16]float32{}
	copy(dst[:count], src[:count])
}

// decodeSubBlk16 decodes one 16-value sub-block of packed B into floats:
// scale * (value - offset), offset already including the zero point and
// the conversion constant. Bytes 0..7 carry values 0..7 in the low
// nibbles and values 8..15 in the high nibbles.
func decodeSubBlk16(packed []byte, offset, scale float32, dst *[16]float32) {
	for m := 0; m < 8; m++ {
		b := packed[m]
		dst[m] = scale * (nibbleToFloat(b&0x0F) - offset)
		dst[m+8] = scale * (nibbleToFloat(b>>4) - offset)
	}
}
