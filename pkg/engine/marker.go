package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/dchest/safefile"
	"go.trai.ch/zerr"
)

// versionMarker records inside each tree the version it was extracted from,
// so a tree can be matched against its install record after a crash
const versionMarker = ".benpak-version"

func writeVersionMarker(tree, version string) error {
	path := filepath.Join(tree, versionMarker)
	if err := safefile.WriteFile(path, []byte(version+"\n"), 0o644); err != nil {
		return core.E(core.KindFilesystem, "writing version marker", zerr.With(err, "path", path))
	}
	return nil
}

// readVersionMarker returns "" when the tree carries no marker
func readVersionMarker(tree string) string {
	data, err := os.ReadFile(filepath.Join(tree, versionMarker))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// describes reports whether the tree at rec.InstallPath is the one rec was
// written for. Trees without a marker are trusted.
func describes(rec *core.InstallRecord) bool {
	v := readVersionMarker(rec.InstallPath)
	return v == "" || v == rec.InstalledVersion
}
