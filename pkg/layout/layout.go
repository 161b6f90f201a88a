// Package layout locates launch targets inside extracted install trees.
package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/arc-language/benpak/pkg/core"
	securejoin "github.com/cyphar/filepath-securejoin"
)

// PackageLayout defines where binaries are usually found within an extracted
// package. Paths are relative and may contain one "*" segment.
type PackageLayout struct {
	Binaries []string
}

// For returns the layout typical for an archive kind
func For(kind core.ArchiveKind) PackageLayout {
	switch kind {
	case core.ArchiveDeb:
		// .deb packages contain: usr/bin/code -> ../share/code/bin/code
		return PackageLayout{
			Binaries: []string{
				filepath.Join("usr", "bin"),
				filepath.Join("usr", "local", "bin"),
				"bin",
				filepath.Join("opt", "*"),
				filepath.Join("opt", "*", "bin"),
				filepath.Join("usr", "share", "*"),
				filepath.Join("usr", "lib", "*"),
			},
		}
	default:
		// vendor tarballs usually put the launcher at the top or under bin/
		return PackageLayout{
			Binaries: []string{".", "bin", "*", filepath.Join("*", "bin")},
		}
	}
}

// FindExecutable returns the absolute path of the launch target named name
// inside root. An exact relative path wins; otherwise the layout directories
// and then the whole tree are searched for an executable whose base name
// equals, or starts with, the base of name (case-insensitive).
func FindExecutable(root, name string, kind core.ArchiveKind) (string, error) {
	if name == "" {
		return "", core.E(core.KindConfiguration, "locating executable", errors.New("no executable name"))
	}

	if p, ok := resolveRegular(root, name); ok {
		if err := ensureExecutable(p); err != nil {
			return "", err
		}
		return p, nil
	}

	base := strings.ToLower(filepath.Base(name))

	for _, dir := range For(kind).Binaries {
		matches, _ := filepath.Glob(filepath.Join(root, dir))
		for _, d := range matches {
			entries, err := os.ReadDir(d)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if strings.ToLower(e.Name()) != base {
					continue
				}
				rel, err := filepath.Rel(root, filepath.Join(d, e.Name()))
				if err != nil {
					continue
				}
				if p, ok := resolveRegular(root, rel); ok && isExecutable(p) {
					return p, nil
				}
			}
		}
	}

	if p := walkFor(root, base); p != "" {
		return p, nil
	}

	return "", core.E(core.KindConfiguration, "locating executable",
		fmt.Errorf("no executable matching %q under %s", name, root))
}

// walkFor scans the tree in lexical order. Exact name matches beat prefix
// matches.
func walkFor(root, base string) string {
	var exact, prefix string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "DEBIAN" && filepath.Dir(path) == root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if name != base && !strings.HasPrefix(name, base) {
			return nil
		}
		if !isExecutable(path) {
			return nil
		}
		if name == base {
			exact = path
			return filepath.SkipAll
		}
		if prefix == "" {
			prefix = path
		}
		return nil
	})
	if exact != "" {
		return exact
	}
	return prefix
}

// resolveRegular follows symlinks scoped to root, so absolute link targets
// such as /usr/share/app/bin/app resolve inside the tree
func resolveRegular(root, rel string) (string, bool) {
	p, err := securejoin.SecureJoin(root, rel)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return p, true
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return core.E(core.KindFilesystem, "locating executable", err)
	}
	if info.Mode().Perm()&0o111 != 0 {
		return nil
	}
	if err := os.Chmod(path, info.Mode().Perm()|0o755); err != nil {
		return core.E(core.KindFilesystem, "marking executable", err)
	}
	return nil
}
