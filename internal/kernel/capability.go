package kernel

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// ISA identifies the widest SIMD instruction set detected on the host.
// It selects the distance-kernel variant at package init and is exposed so
// callers can log what the host is capable of.
type ISA uint8

const (
	// Generic means no relevant SIMD extension was detected.
	Generic ISA = iota
	// NEON is ARM64 ASIMD.
	NEON
	// AVX2 is x86-64 AVX2 with FMA.
	AVX2
	// AVX512 is x86-64 AVX-512F.
	AVX512
)

func (i ISA) String() string {
	switch i {
	case Generic:
		return "generic"
	case NEON:
		return "neon"
	case AVX2:
		return "avx2"
	case AVX512:
		return "avx512"
	default:
		return "unknown"
	}
}

// Detect reports the widest SIMD capability of the host CPU.
func Detect() ISA {
	switch runtime.GOARCH {
	case "amd64":
		if cpu.X86.HasAVX512F {
			return AVX512
		}
		if cpu.X86.HasAVX2 && cpu.X86.HasFMA {
			return AVX2
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			return NEON
		}
	}
	return Generic
}
