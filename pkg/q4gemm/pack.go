package q4gemm

// ThreadPool runs n independent tasks over the index range [0, n) and
// returns once all of them have completed. Implementations may run tasks
// on any number of goroutines in any order; tasks must not depend on one
// another.
type ThreadPool interface {
	Run(n int, task func(i int))
}

// packSubBlkLen returns the sub-block width the packed layout is
// interleaved for. The int8 kernels consume 32-value groups except at the
// minimum block length; the fp32 kernel always consumes 16-value groups.
func packSubBlkLen(blkLen int, ct ComputeType) int {
	if ct == CompInt8 && blkLen != MinBlkLen {
		return 32
	}
	return 16
}

// PackQuantB rewrites quantized weight data from the sequential reference
// layout (two adjacent values per byte) into the interleaved kernel
// layout.
//
// Within each sub-block of subBlkLen values, source value i and source
// value i+subBlkLen/2 are packed into one byte, low nibble first:
//
//	src: | v0 v1 | v2 v3 | ... | v14 v15 |
//	dst: | v0 v8 | v1 v9 | ... | v7  v15 |   (subBlkLen == 16)
//
// so that the kernels can split one contiguous load into the two nibble
// halves with a mask and a shift instead of a gather.
//
// Each of the n*BlockCountK blocks is rewritten independently; when pool
// is non-nil the blocks are distributed across it, otherwise they are
// processed serially. src and dst must each hold PackedQuantBSize bytes
// and must not alias.
func PackQuantB(n, k, blkLen int, ct ComputeType, src, dst []byte, pool ThreadPool) {
	validateBlkLen(blkLen)

	blockCountK := BlockCountK(k, blkLen)
	blkSize := blkDataSize(blkLen)
	subBlkLen := packSubBlkLen(blkLen, ct)
	iterations := n * blockCountK

	task := func(i int) {
		off := i * blkSize
		packBlock(src[off:off+blkSize], dst[off:off+blkSize], blkLen, subBlkLen)
	}

	if pool == nil {
		for i := 0; i < iterations; i++ {
			task(i)
		}
		return
	}
	pool.Run(iterations, task)
}

// UnpackQuantB is the inverse of PackQuantB, recovering the sequential
// reference layout from packed kernel data.
func UnpackQuantB(n, k, blkLen int, ct ComputeType, src, dst []byte) {
	validateBlkLen(blkLen)

	blockCountK := BlockCountK(k, blkLen)
	blkSize := blkDataSize(blkLen)
	subBlkLen := packSubBlkLen(blkLen, ct)

	for i := 0; i < n*blockCountK; i++ {
		off := i * blkSize
		unpackBlock(src[off:off+blkSize], dst[off:off+blkSize], blkLen, subBlkLen)
	}
}

func packBlock(src, dst []byte, blkLen, subBlkLen int) {
	subBlkDataSize := subBlkLen / 2
	bytePairCount := subBlkLen / 4

	for kk := 0; kk < blkLen; kk += subBlkLen {
		srcSub := src[kk/2:]
		dstSub := dst[kk/2:]
		for p := 0; p < bytePairCount; p++ {
			s0 := srcSub[p]
			s1 := srcSub[p+subBlkDataSize/2]
			dstSub[2*p] = (s0 & 0x0F) | ((s1 & 0x0F) << 4)
			dstSub[2*p+1] = (s0 >> 4) | ((s1 >> 4) << 4)
		}
	}
}

func unpackBlock(src, dst []byte, blkLen, subBlkLen int) {
	subBlkDataSize := subBlkLen / 2
	bytePairCount := subBlkLen / 4

	for kk := 0; kk < blkLen; kk += subBlkLen {
		srcSub := src[kk/2:]
		dstSub := dst[kk/2:]
		for p := 0; p < bytePairCount; p++ {
			d0 := srcSub[2*p]
			d1 := srcSub[2*p+1]
			dstSub[p] = (d0 & 0x0F) | ((d1 & 0x0F) << 4)
			dstSub[p+subBlkDataSize/2] = (d0 >> 4) | ((d1 >> 4) << 4)
		}
	}
}
