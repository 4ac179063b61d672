package q4gemm

import "math"

// Nibble to float conversion happens in two steps:
//  1. Map the 4-bit value from [0, 15] to a float in [16.0, 31.0] by
//     placing it directly into the top mantissa bits of a float whose
//     sign and exponent are fixed. 2^4 * (1 + nibble/16) = 16 + nibble.
//  2. Subtract 16 plus the zero point.
//
// This trades an integer-to-float conversion for an OR, a shift and a
// subtraction.

// fp32HighHalfTemplate is the high 16 bits of the template float:
// sign 0, exponent 131 (2^4), empty mantissa. The nibble is OR'd into
// bits 3..6 before widening.
const fp32HighHalfTemplate uint16 = 0b0_10000011_0000000

// fp32ConversionOffset is subtracted together with the zero point to
// recenter the [16, 31] template range.
const fp32ConversionOffset float32 = 16.0

// defaultZeroPoint is the implicit symmetric center used when no zero
// point data is present.
const defaultZeroPoint = 8

func nibbleToFloat(nib byte) float32 {
	return math.Float32frombits((uint32(fp32HighHalfTemplate) | uint32(nib)<<3) << 16)
}

// DequantizeValue decodes a single 4-bit weight value:
// scale * (nibble - zeroPoint).
func DequantizeValue(nibble byte, scale float32, zeroPoint byte) float32 {
	return scale * (nibbleToFloat(nibble) - (fp32ConversionOffset + float32(zeroPoint)))
}

// DequantB materializes packed 4-bit weight data as a row-major float32
// matrix with countN columns, so a conventional dense float GEMM can
// consume it. Rows are produced sixteen at a time; fpData must hold
// ceil(countK/16)*16 * countN elements and rows past countK are zeroed.
//
// quantB must be in the CompFp32 packed layout produced by PackQuantB.
// zeroPoints may be nil for symmetric weights.
func DequantB(blkLen int, fpData []float32, quantB []byte, quantBScale []float32, zeroPoints []byte, countN, countK, blockCountK int) {
	validateBlkLen(blkLen)

	strideData := blockCountK * blkDataSize(blkLen)
	strideZP := ZeroPointsSize(blockCountK)

	kPadded := (countK + 15) &^ 15
	if kPadded > countK {
		clear(fpData[countK*countN : kPadded*countN])
	}

	for n := 0; n < countN; n++ {
		colData := quantB[n*strideData:]
		colScale := quantBScale[n*blockCountK:]

		var colZP []byte
		if zeroPoints != nil {
			colZP = zeroPoints[n*strideZP:]
		}

		for kBlk := 0; kBlk < blockCountK; kBlk++ {
			scale := colScale[kBlk]
			offset := fp32ConversionOffset + defaultZeroPoint
			if colZP != nil {
				offset = fp32ConversionOffset + float32(zeroPointAt(colZP, kBlk))
			}

			kBase := kBlk * blkLen
			kkLen := min(countK-kBase, blkLen)
			blkData := colData[kBlk*blkDataSize(blkLen):]

			// Sub-blocks of 16: bytes 0..7 hold values 0..7 in the low
			// nibbles and values 8..15 in the high nibbles.
			for kk := 0; kk < kkLen; kk++ {
				sub := kk / 16 * 8
				var nib byte
				if kk%16 < 8 {
					nib = blkData[sub+kk%16] & 0x0F
				} else {
					nib = blkData[sub+kk%16-8] >> 4
				}
				fpData[(kBase+kk)*countN+n] = scale * (nibbleToFloat(nib) - offset)
			}
		}
	}
}

// zeroPointAt extracts the packed 4-bit zero point of block kBlk: even
// block indices occupy the low nibble, odd the high nibble.
func zeroPointAt(zp []byte, kBlk int) byte {
	b := zp[kBlk/2]
	if kBlk&1 == 1 {
		return b >> 4
	}
	return b & 0x0F
}
