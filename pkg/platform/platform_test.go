package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchNames(t *testing.T) {
	tests := []struct {
		arch, machine, deb string
	}{
		{"amd64", "x86_64", "amd64"},
		{"arm64", "aarch64", "arm64"},
		{"386", "i686", "i386"},
		{"arm", "armv7l", "armhf"},
		{"ppc64le", "ppc64le", "ppc64el"},
	}
	for _, tt := range tests {
		p := &Platform{OS: "linux", Arch: tt.arch}
		assert.Equal(t, tt.machine, p.Machine(), tt.arch)
		assert.Equal(t, tt.deb, p.DebArch(), tt.arch)
	}
}

func TestExpand(t *testing.T) {
	p := &Platform{OS: "linux", Arch: "amd64"}
	got := p.Expand("https://dl.example.com/{version}/tool-{version}-{os}-{machine}_{debarch}.tar.gz", "4.1.0")
	assert.Equal(t, "https://dl.example.com/4.1.0/tool-4.1.0-linux-x86_64_amd64.tar.gz", got)

	assert.True(t, HasVersionPlaceholder("a/{version}/b"))
	assert.False(t, HasVersionPlaceholder("a/latest/b"))
}

func TestDetect(t *testing.T) {
	p := Current()
	assert.NotEmpty(t, p.OS)
	assert.Equal(t, p.OS+"/"+p.Arch, p.String())
}
