// Package cpudetection provides a coarse CPU feature probe used to pick a
// default crypto backend (AES-NI hosts prefer AES-GCM; others prefer
// XChaCha20-Poly1305, which needs no hardware acceleration to be fast).
package cpudetection

import (
	"runtime"
	"strings"

	"github.com/teefs/secobjfs/internal/tlog"
)

// CPUFeatures represents detected CPU capabilities.
type CPUFeatures struct {
	AESNI bool
	AVX2  bool
	NEON  bool
	Arch  string
}

// CPUDetector provides CPU feature detection.
type CPUDetector struct {
	features *CPUFeatures
}

// New creates a new CPUDetector instance.
func New() *CPUDetector {
	cd := &CPUDetector{}
	cd.detectFeatures()
	return cd
}

// GetFeatures returns the detected CPU features.
func (cd *CPUDetector) GetFeatures() *CPUFeatures {
	return cd.features
}

func (cd *CPUDetector) detectFeatures() {
	cd.features = &CPUFeatures{Arch: runtime.GOARCH}

	// Best-effort heuristic: real CPUID probing is out of scope for a
	// TEE-side library that should stay portable across secure-world
	// build targets. Assume the common case for each architecture.
	switch cd.features.Arch {
	case "amd64":
		cd.features.AESNI = true
		cd.features.AVX2 = true
	case "arm64":
		cd.features.NEON = true
	}

	tlog.Debug.Printf("cpudetection: arch=%s aesni=%v avx2=%v neon=%v",
		cd.features.Arch, cd.features.AESNI, cd.features.AVX2, cd.features.NEON)
}

// String returns a human-readable description of CPU features.
func (cd *CPUDetector) String() string {
	f := cd.features
	var parts []string
	parts = append(parts, "arch:"+f.Arch)
	if f.AESNI {
		parts = append(parts, "AES-NI")
	}
	if f.AVX2 {
		parts = append(parts, "AVX2")
	}
	if f.NEON {
		parts = append(parts, "NEON")
	}
	return strings.Join(parts, ", ")
}
