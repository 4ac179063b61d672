package q4gemm

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/samcharles93/qgemm/internal/parallel"
)

func TestPackInterleave16(t *testing.T) {
	// One block of 16 sequential values 0..15 in the reference layout.
	src := make([]byte, 8)
	for p := 0; p < 8; p++ {
		src[p] = byte(2*p) | byte(2*p+1)<<4
	}

	dst := make([]byte, 8)
	PackQuantB(1, 16, 16, CompFp32, src, dst, nil)

	// Value m lands in the low nibble of byte m, value m+8 in the high.
	for m := 0; m < 8; m++ {
		want := byte(m) | byte(m+8)<<4
		if dst[m] != want {
			t.Fatalf("byte %d: got %#02x want %#02x", m, dst[m], want)
		}
	}
}

func TestPackRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for _, blkLen := range []int{16, 32, 64, 128} {
		for _, ct := range []ComputeType{CompFp32, CompInt8} {
			for _, k := range []int{blkLen, blkLen + 1, 3*blkLen - 5, 200} {
				const n = 3
				src := make([]byte, PackedQuantBSize(n, k, blkLen))
				rng.Read(src)

				packed := make([]byte, len(src))
				PackQuantB(n, k, blkLen, ct, src, packed, nil)

				unpacked := make([]byte, len(src))
				UnpackQuantB(n, k, blkLen, ct, packed, unpacked)

				if !bytes.Equal(src, unpacked) {
					t.Fatalf("blkLen=%d ct=%s k=%d: round trip mismatch", blkLen, ct, k)
				}
			}
		}
	}
}

func TestPackParallelMatchesSerial(t *testing.T) {
	const (
		n      = 7
		k      = 131
		blkLen = 32
	)
	rng := rand.New(rand.NewSource(5))
	src := make([]byte, PackedQuantBSize(n, k, blkLen))
	rng.Read(src)

	serial := make([]byte, len(src))
	PackQuantB(n, k, blkLen, CompInt8, src, serial, nil)

	pool := parallel.New(4)
	defer pool.Close()

	concurrent := make([]byte, len(src))
	PackQuantB(n, k, blkLen, CompInt8, src, concurrent, pool)

	if !bytes.Equal(serial, concurrent) {
		t.Fatal("parallel pack differs from serial pack")
	}
}

func TestPackLayoutDiffersByComputeType(t *testing.T) {
	// BlkLen 32 interleaves with 16-value sub-blocks for fp32 and a single
	// 32-value sub-block for int8; the packed bytes must differ.
	const (
		n      = 1
		k      = 32
		blkLen = 32
	)
	src := make([]byte, PackedQuantBSize(n, k, blkLen))
	for i := range src {
		src[i] = byte(i * 7)
	}

	fp32 := make([]byte, len(src))
	int8p := make([]byte, len(src))
	PackQuantB(n, k, blkLen, CompFp32, src, fp32, nil)
	PackQuantB(n, k, blkLen, CompInt8, src, int8p, nil)

	if bytes.Equal(fp32, int8p) {
		t.Fatal("expected different layouts for fp32 and int8 at blkLen 32")
	}
}

func TestPackedQuantBSize(t *testing.T) {
	tests := []struct {
		n, k, blkLen int
		want         int
	}{
		{1, 16, 16, 8},
		{1, 17, 16, 16},
		{4, 64, 32, 4 * 2 * 16},
		{3, 100, 64, 3 * 2 * 32},
	}
	for _, tc := range tests {
		if got := PackedQuantBSize(tc.n, tc.k, tc.blkLen); got != tc.want {
			t.Errorf("PackedQuantBSize(%d, %d, %d): got %d want %d", tc.n, tc.k, tc.blkLen, got, tc.want)
		}
	}
}

func TestBadBlkLenPanics(t *testing.T) {
	for _, blkLen := range []int{0, -16, 8, 17, 24} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("blkLen=%d: expected panic", blkLen)
				}
			}()
			PackedQuantBSize(1, 16, blkLen)
		}()
	}
}
