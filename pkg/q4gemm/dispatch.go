package q4gemm

import "sync"

// Dispatch exposes the kernel entry points as a plain table of function
// references. It is built once, is immutable afterwards, and is passed by
// reference to consumers that select operations at runtime (the caller's
// operator layer binds against the table, not against package symbols).
type Dispatch struct {
	PackQuantBDataSize func(n, k, blkLen int) int
	PackQuantBData     func(n, k, blkLen int, ct ComputeType, src, dst []byte, pool ThreadPool)

	WorkspaceSize      func(m, k, blkLen int, ct ComputeType) int
	WorkspaceAlignment func(ct ComputeType) int

	GemmM1KernelFp32 func(blkLen int, a []float32, quantB []byte, quantBScale []float32, zeroPoints []byte, c []float32, countN, countK, blockCountK int, bias []float32)
	DequantBFp32     func(blkLen int, fpData []float32, quantB []byte, quantBScale []float32, zeroPoints []byte, countN, countK, blockCountK int)

	GemmKernelInt8   func(blkLen int, quantA []byte, quantB []byte, quantBScale []float32, zeroPoints []byte, c []float32, countM, countN, blockCountK, ldc int, bias []float32) int
	QuantizeARowInt8 func(blkLen int, a []float32, countK int, quantA []byte)
}

var (
	dispatchOnce sync.Once
	dispatch     *Dispatch
)

// DefaultDispatch returns the process-wide dispatch table, constructing
// it on first use. The returned table must not be modified.
func DefaultDispatch() *Dispatch {
	dispatchOnce.Do(func() {
		dispatch = &Dispatch{
			PackQuantBDataSize: PackedQuantBSize,
			PackQuantBData:     PackQuantB,

			WorkspaceSize:      WorkspaceSize,
			WorkspaceAlignment: WorkspaceAlignment,

			GemmM1KernelFp32: GemmFp32M1Kernel,
			DequantBFp32:     DequantB,

			GemmKernelInt8:   GemmInt8Kernel,
			QuantizeARowInt8: QuantizeARow,
		}
	})
	return dispatch
}
