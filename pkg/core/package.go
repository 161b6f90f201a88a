// pkg/core/package.go
package core

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ArchiveKind is the format family of a downloaded artifact
type ArchiveKind string

const (
	ArchiveTarGz    ArchiveKind = "tar.gz"
	ArchiveTarXz    ArchiveKind = "tar.xz"
	ArchiveDeb      ArchiveKind = "deb"
	ArchiveAppImage ArchiveKind = "appimage"
	ArchiveCustom   ArchiveKind = "custom"
)

// VersionUnknown is recorded when no concrete version could be resolved
const VersionUnknown = "latest"

// ParseArchiveKind normalizes the spellings found in descriptor files
func ParseArchiveKind(s string) (ArchiveKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tar.gz", "tar_gz", "targz", "tgz":
		return ArchiveTarGz, nil
	case "tar.xz", "tar_xz", "tarxz", "txz":
		return ArchiveTarXz, nil
	case "deb", ".deb", "debian":
		return ArchiveDeb, nil
	case "appimage", ".appimage":
		return ArchiveAppImage, nil
	case "custom":
		return ArchiveCustom, nil
	}
	return "", fmt.Errorf("unknown archive kind %q", s)
}

// UnmarshalText lets JSON, YAML and TOML decoders accept aliases
func (k *ArchiveKind) UnmarshalText(text []byte) error {
	parsed, err := ParseArchiveKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Resolver names understood by the resolve package
const (
	ResolverStatic   = "static"
	ResolverRedirect = "redirect"
	ResolverGitHub   = "github"
)

// Descriptor describes one installable package. Values are treated as immutable
// once loaded.
type Descriptor struct {
	ID          string      `json:"id" yaml:"id" toml:"id"`
	Name        string      `json:"name" yaml:"name" toml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`
	Icon        string      `json:"icon,omitempty" yaml:"icon,omitempty" toml:"icon"`
	Kind        ArchiveKind `json:"archive" yaml:"archive" toml:"archive"`
	Extractor   string      `json:"extractor,omitempty" yaml:"extractor,omitempty" toml:"extractor"`
	URLPattern  string      `json:"url_pattern" yaml:"url_pattern" toml:"url_pattern"`
	Executable  string      `json:"executable,omitempty" yaml:"executable,omitempty" toml:"executable"`

	// Version is the last known version; it doubles as the fallback when a
	// dynamic resolver fails.
	Version      string `json:"version,omitempty" yaml:"version,omitempty" toml:"version"`
	Resolver     string `json:"resolver,omitempty" yaml:"resolver,omitempty" toml:"resolver"`
	Repository   string `json:"repository,omitempty" yaml:"repository,omitempty" toml:"repository"`
	AssetPattern string `json:"asset_pattern,omitempty" yaml:"asset_pattern,omitempty" toml:"asset_pattern"`

	// VersionPattern extracts a version from a resolved file name; the first
	// capture group wins.
	VersionPattern string `json:"version_pattern,omitempty" yaml:"version_pattern,omitempty" toml:"version_pattern"`

	// SHA256 pins the artifact of Version; it is not checked when a newer
	// version is resolved.
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty" toml:"sha256"`

	StripComponents *int     `json:"strip_components,omitempty" yaml:"strip_components,omitempty" toml:"strip_components"`
	Categories      []string `json:"categories,omitempty" yaml:"categories,omitempty" toml:"categories"`
	Terminal        bool     `json:"terminal,omitempty" yaml:"terminal,omitempty" toml:"terminal"`

	// Source is the file the descriptor was loaded from, empty for built-ins.
	Source string `json:"-" yaml:"-" toml:"-"`
}

var sha256Pattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Validate checks the fields the engine depends on
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("missing id")
	}
	if d.ID != filepath.Base(d.ID) || d.ID == "." || d.ID == ".." || strings.HasPrefix(d.ID, ".") {
		return fmt.Errorf("id %q is not a plain name", d.ID)
	}
	if d.URLPattern == "" {
		return fmt.Errorf("missing url_pattern")
	}
	switch d.Kind {
	case ArchiveTarGz, ArchiveTarXz, ArchiveDeb:
		if d.Executable == "" {
			return fmt.Errorf("missing executable")
		}
	case ArchiveAppImage:
	case ArchiveCustom:
		if d.Extractor == "" {
			return fmt.Errorf("custom archive requires an extractor name")
		}
	case "":
		return fmt.Errorf("missing archive kind")
	default:
		return fmt.Errorf("unknown archive kind %q", d.Kind)
	}
	switch d.Resolver {
	case "", ResolverStatic, ResolverRedirect:
	case ResolverGitHub:
		if d.Repository == "" {
			return fmt.Errorf("github resolver requires repository")
		}
	default:
		return fmt.Errorf("unknown resolver %q", d.Resolver)
	}
	if d.VersionPattern != "" {
		if _, err := regexp.Compile(d.VersionPattern); err != nil {
			return fmt.Errorf("version_pattern: %w", err)
		}
	}
	if d.AssetPattern != "" {
		if _, err := regexp.Compile(d.AssetPattern); err != nil {
			return fmt.Errorf("asset_pattern: %w", err)
		}
	}
	if d.SHA256 != "" && !sha256Pattern.MatchString(d.SHA256) {
		return fmt.Errorf("sha256 must be 64 hex characters")
	}
	if d.StripComponents != nil && *d.StripComponents < 0 {
		return fmt.Errorf("strip_components must not be negative")
	}
	return nil
}

// DisplayName returns Name, falling back to ID
func (d *Descriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// InstallRecord is the persisted state of one installed package
type InstallRecord struct {
	PackageID        string    `json:"package_id"`
	InstalledVersion string    `json:"installed_version"`
	InstallPath      string    `json:"install_path"`
	InstalledAt      time.Time `json:"installed_at"`
	Executable       string    `json:"executable,omitempty"`
	Launcher         string    `json:"launcher,omitempty"`
}

// Complete reports whether every required field is present
func (r *InstallRecord) Complete() bool {
	return r.PackageID != "" && r.InstalledVersion != "" && r.InstallPath != "" && !r.InstalledAt.IsZero()
}

// Resolution is a concrete download location for a descriptor
type Resolution struct {
	Version string
	URL     string
}

// Artifact is a fetched file on local disk
type Artifact struct {
	Path   string
	URL    string
	Size   int64
	SHA256 string // hex digest of the downloaded bytes
}
