package resolve

import (
	"github.com/arc-language/benpak/pkg/core"
	goversion "github.com/hashicorp/go-version"
)

// IsNewer reports whether latest is strictly newer than installed. Unknown
// versions are never newer; unparseable ones are compared for inequality.
func IsNewer(installed, latest string) bool {
	if !Known(installed) || !Known(latest) {
		return false
	}

	vInstalled, errInstalled := goversion.NewVersion(installed)
	vLatest, errLatest := goversion.NewVersion(latest)
	if errInstalled != nil || errLatest != nil {
		return installed != latest
	}
	return vInstalled.LessThan(vLatest)
}

// Known reports whether v is a concrete version
func Known(v string) bool {
	return v != "" && v != core.VersionUnknown && v != "unknown"
}
