// pkg/platform/detect.go
package platform

import (
	"fmt"
	"runtime"
)

// Platform represents the detected system platform
type Platform struct {
	OS   string // linux, darwin, freebsd
	Arch string // Go architecture name: amd64, arm64, 386, arm
}

// Detect detects the current platform. Only unix-like systems with an XDG
// desktop layout are supported.
func Detect() (*Platform, error) {
	p := Current()
	switch p.OS {
	case "linux", "freebsd", "openbsd", "netbsd", "darwin":
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported operating system: %s", p.OS)
	}
}

// Current returns the running platform without validation
func Current() *Platform {
	return &Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// Machine returns the uname -m style name used by most vendor downloads
func (p *Platform) Machine() string {
	switch p.Arch {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	case "arm":
		return "armv7l"
	case "ppc64le":
		return "ppc64le"
	case "s390x":
		return "s390x"
	case "riscv64":
		return "riscv64"
	default:
		return p.Arch
	}
}

// DebArch returns the Debian architecture name
func (p *Platform) DebArch() string {
	switch p.Arch {
	case "amd64":
		return "amd64"
	case "386":
		return "i386"
	case "arm64":
		return "arm64"
	case "arm":
		// Default to armhf for ARM 32-bit
		return "armhf"
	case "ppc64le":
		return "ppc64el"
	default:
		return p.Arch
	}
}

// String returns a string representation of the platform
func (p *Platform) String() string {
	return fmt.Sprintf("%s/%s", p.OS, p.Arch)
}
