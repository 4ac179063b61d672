package tensor

import (
	"runtime"

	"simd/archsimd"
)

const (
	tileM = 32
	tileN = 64
	tileK = 32
)

// Gemm computes C = A*B using a blocked algorithm, parallelising across
// ranges of output rows. workers <= 0 selects GOMAXPROCS. C is
// overwritten.
func Gemm(C, A, B *Mat, workers int) {
	if A.C != B.R || C.R != A.R || C.C != B.C {
		panic("gemm: dimension mismatch")
	}
	if C.R == 0 || C.C == 0 {
		return
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > C.R {
		workers = C.R
	}
	if workers <= 1 {
		gemmRangeRows(C, A, B, 0, C.R)
		return
	}

	chunk := (C.R + workers - 1) / workers
	done := make(chan struct{}, workers)
	launched := 0
	for w := 0; w < workers; w++ {
		rs := w * chunk
		re := min(rs+chunk, C.R)
		if rs >= re {
			break
		}
		launched++
		go func(rs, re int) {
			gemmRangeRows(C, A, B, rs, re)
			done <- struct{}{}
		}(rs, re)
	}
	for range launched {
		<-done
	}
}

// gemmRangeRows performs a blocked GEMM on a contiguous range of rows of C.
func gemmRangeRows(C, A, B *Mat, rs, re int) {
	cStride := C.Stride
	n := C.C
	cData := C.Data

	for i := rs; i < re; i++ {
		base := i * cStride
		clear(cData[base : base+n])
	}

	k := A.C
	aStride := A.Stride
	bStride := B.Stride
	aData := A.Data
	bData := B.Data

	for i0 := rs; i0 < re; i0 += tileM {
		iMax := min(i0+tileM, re)
		for k0 := 0; k0 < k; k0 += tileK {
			kMax := min(k0+tileK, k)
			for j0 := 0; j0 < n; j0 += tileN {
				jMax := min(j0+tileN, n)
				blockUpdate(cData, aData, bData, cStride, aStride, bStride, i0, iMax, j0, jMax, k0, kMax)
			}
		}
	}
}

func blockUpdate(cData, aData, bData []float32, cStride, aStride, bStride int, i0, iMax, j0, jMax, k0, kMax int) {
	if cpu.HasAVX2 {
		blockUpdateSIMD(cData, aData, bData, cStride, aStride, bStride, i0, iMax, j0, jMax, k0, kMax)
		return
	}
	blockUpdateScalar(cData, aData, bData, cStride, aStride, bStride, i0, iMax, j0, jMax, k0, kMax)
}

func blockUpdateScalar(cData, aData, bData []float32, cStride, aStride, bStride int, i0, iMax, j0, jMax, k0, kMax int) {
	width := jMax - j0
	for i := i0; i < iMax; i++ {
		aRow := aData[i*aStride:]
		cOff := i*cStride + j0
		cRow := cData[cOff : cOff+width]

		for kk := k0; kk < kMax; kk++ {
			aik := aRow[kk]
			bOff := kk*bStride + j0
			bRow := bData[bOff : bOff+width]

			j := 0
			for ; j+3 < width; j += 4 {
				cRow[j+0] += aik * bRow[j+0]
				cRow[j+1] += aik * bRow[j+1]
				cRow[j+2] += aik * bRow[j+2]
				cRow[j+3] += aik * bRow[j+3]
			}
			for ; j < width; j++ {
				cRow[j] += aik * bRow[j]
			}
		}
	}
}

func blockUpdateSIMD(cData, aData, bData []float32, cStride, aStride, bStride int, i0, iMax, j0, jMax, k0, kMax int) {
	width := jMax - j0
	for i := i0; i < iMax; i++ {
		aRow := aData[i*aStride:]
		cOff := i*cStride + j0
		cRow := cData[cOff : cOff+width]

		j := 0
		for ; j+16 <= width; j += 16 {
			acc0 := archsimd.LoadFloat32x8Slice(cRow[j:])
			acc1 := archsimd.LoadFloat32x8Slice(cRow[j+8:])

			for kk := k0; kk < kMax; kk++ {
				vaik := archsimd.BroadcastFloat32x8(aRow[kk])
				bOff := kk*bStride + j0 + j
				vb0 := archsimd.LoadFloat32x8Slice(bData[bOff:])
				acc0 = vb0.MulAdd(vaik, acc0)
				vb1 := archsimd.LoadFloat32x8Slice(bData[bOff+8:])
				acc1 = vb1.MulAdd(vaik, acc1)
			}

			acc0.StoreSlice(cRow[j:])
			acc1.StoreSlice(cRow[j+8:])
		}
		for ; j+8 <= width; j += 8 {
			acc := archsimd.LoadFloat32x8Slice(cRow[j:])
			for kk := k0; kk < kMax; kk++ {
				vaik := archsimd.BroadcastFloat32x8(aRow[kk])
				bOff := kk*bStride + j0 + j
				vb := archsimd.LoadFloat32x8Slice(bData[bOff:])
				acc = vb.MulAdd(vaik, acc)
			}
			acc.StoreSlice(cRow[j:])
		}
		for ; j < width; j++ {
			for kk := k0; kk < kMax; kk++ {
				cRow[j] += aRow[kk] * bData[kk*bStride+j0+j]
			}
		}
	}
}
