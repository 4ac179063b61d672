package q4gemm

// ComputeType selects the activation representation used by the compute
// kernels.
type ComputeType int

const (
	// CompFp32 keeps activations in float32 and dequantizes B inside the
	// kernel.
	CompFp32 ComputeType = iota
	// CompInt8 quantizes activations to int8 blocks and computes integer
	// dot products rescaled per block.
	CompInt8
)

func (ct ComputeType) String() string {
	switch ct {
	case CompFp32:
		return "fp32"
	case CompInt8:
		return "int8"
	default:
		return "unknown"
	}
}

// WorkspaceSize returns the per-call scratch byte count required for an
// m x k activation matrix. The fp32 path needs no scratch. The int8 path
// needs room for the block-quantized copy of A.
func WorkspaceSize(m, k, blkLen int, ct ComputeType) int {
	validateBlkLen(blkLen)
	switch ct {
	case CompInt8:
		return m * BlockCountK(k, blkLen) * Q8BlkSize(blkLen)
	default:
		return 0
	}
}

// WorkspaceAlignment returns the required alignment of the scratch buffer
// for the given compute type.
func WorkspaceAlignment(ct ComputeType) int {
	switch ct {
	case CompInt8:
		return Q8BlkAlignment()
	default:
		return 1
	}
}
