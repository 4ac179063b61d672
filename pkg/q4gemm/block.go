// Package q4gemm implements block-quantized 4-bit matrix multiplication
// kernels.
//
// Weights (B) are stored column by column as fixed-length blocks along the
// K dimension, each block holding BlkLen 4-bit values packed two per byte
// plus one float32 scale and an optional packed 4-bit zero point.
// Activations (A) stay in float32 and are either consumed directly by the
// fp32 kernel or quantized per block to int8 for the int8 kernel.
//
// Packed B, its scales and its zero points are produced once by
// PackQuantB and are read-only afterwards; they form a private layout
// shared between the packer and the kernels and are not a stable
// interchange format.
package q4gemm

import (
	"encoding/binary"
	"math"
)

// BlkBitWidth is the weight quantization width. Only 4-bit weights are
// supported.
const BlkBitWidth = 4

// MinBlkLen is the smallest supported block length. Block lengths must be
// multiples of MinBlkLen.
const MinBlkLen = 16

// BlockCountK returns the number of quantization blocks covering a
// reduction dimension of k elements.
func BlockCountK(k, blkLen int) int {
	return (k + blkLen - 1) / blkLen
}

// blkDataSize returns the packed byte count of one block of quantized
// weight data.
func blkDataSize(blkLen int) int {
	return blkLen * BlkBitWidth / 8
}

// ZeroPointsSize returns the byte count of the packed per-block zero
// points for one column: two 4-bit zero points per byte.
func ZeroPointsSize(blockCountK int) int {
	return (blockCountK + 1) / 2
}

// PackedQuantBSize returns the byte count of the packed weight data for an
// n x k matrix quantized with the given block length.
func PackedQuantBSize(n, k, blkLen int) int {
	validateBlkLen(blkLen)
	return n * BlockCountK(k, blkLen) * blkDataSize(blkLen)
}

func validateBlkLen(blkLen int) {
	if blkLen < MinBlkLen || blkLen%MinBlkLen != 0 {
		panic("q4gemm: block length must be a positive multiple of 16")
	}
}

// Q8 block layout: a float32 scale header followed by blkLen int8 codes.
// The quantized-A workspace is a dense sequence of these blocks, one per
// (row, k-block) pair.

const q8BlkScaleSize = 4

// Q8BlkSize returns the byte count of one quantized activation block.
func Q8BlkSize(blkLen int) int {
	return q8BlkScaleSize + blkLen
}

// Q8BlkAlignment returns the required alignment of the quantized
// activation workspace. The float32 scale header sets it.
func Q8BlkAlignment() int {
	return q8BlkScaleSize
}

func q8BlkScale(blk []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(blk))
}

func q8BlkSetScale(blk []byte, scale float32) {
	binary.LittleEndian.PutUint32(blk, math.Float32bits(scale))
}

func q8BlkData(blk []byte, blkLen int) []byte {
	return blk[q8BlkScaleSize : q8BlkScaleSize+blkLen]
}
