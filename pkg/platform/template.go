package platform

import "strings"

// Expand substitutes the placeholders a descriptor url_pattern may carry:
// {version}, {os}, {arch} (Go name), {machine} (uname -m) and {debarch}.
func (p *Platform) Expand(pattern, version string) string {
	r := strings.NewReplacer(
		"{version}", version,
		"{os}", p.OS,
		"{arch}", p.Arch,
		"{machine}", p.Machine(),
		"{debarch}", p.DebArch(),
	)
	return r.Replace(pattern)
}

// HasVersionPlaceholder reports whether pattern needs a concrete version
func HasVersionPlaceholder(pattern string) bool {
	return strings.Contains(pattern, "{version}")
}
