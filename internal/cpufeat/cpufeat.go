// Package cpufeat reports the SIMD capabilities the kernels probe at
// startup, for diagnostics output.
package cpufeat

import (
	"runtime"

	"simd/archsimd"
)

// Info describes the running machine and its detected vector features.
type Info struct {
	GoVersion string          `json:"go_version"`
	GoOS      string          `json:"go_os"`
	GoArch    string          `json:"go_arch"`
	CPUs      int             `json:"cpus"`
	Features  map[string]bool `json:"features"`
}

// Collect probes the CPU feature flags relevant to the kernels.
func Collect() Info {
	return Info{
		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		Features: map[string]bool{
			"AVX":        archsimd.X86.AVX(),
			"AVX2":       archsimd.X86.AVX2(),
			"FMA":        archsimd.X86.FMA(),
			"AVX512":     archsimd.X86.AVX512(),
			"AVX512VNNI": archsimd.X86.AVX512VNNI(),
			"AVXVNNI":    archsimd.X86.AVXVNNI(),
		},
	}
}
