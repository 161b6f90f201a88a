// Package launcher exposes installed packages to the desktop environment.
package launcher

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/dchest/safefile"
	"github.com/rs/zerolog"
	"go.trai.ch/zerr"
)

// System is the minimal interface needed for launcher operations
type System interface {
	MkdirAll(path string, perm os.FileMode) error
	ReadFile(path string) ([]byte, error)
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error
	Lstat(path string) (os.FileInfo, error)
	Symlink(oldname, newname string) error
	Remove(path string) error
}

// RealSystem implements System using actual system calls
type RealSystem struct{}

func (RealSystem) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (RealSystem) ReadFile(path string) ([]byte, error)         { return os.ReadFile(path) }
func (RealSystem) Lstat(path string) (os.FileInfo, error)       { return os.Lstat(path) }
func (RealSystem) Symlink(oldname, newname string) error        { return os.Symlink(oldname, newname) }
func (RealSystem) Remove(path string) error                     { return os.Remove(path) }

// WriteFileAtomic writes data to path through a temporary file and rename
func (RealSystem) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return safefile.WriteFile(path, data, perm)
}

// Config configures a Desktop launcher writer
type Config struct {
	ApplicationsDir string // where <id>.desktop is written
	BinDir          string // where the <id> symlink is placed
	Entries         bool   // write .desktop entries
	Symlinks        bool   // link executables into BinDir
	System          System
	Logger          zerolog.Logger
}

// Desktop writes freedesktop.org launcher entries and PATH symlinks
type Desktop struct {
	cfg    Config
	sys    System
	logger zerolog.Logger
}

// New creates a Desktop launcher writer
func New(cfg *Config) *Desktop {
	c := *cfg
	sys := c.System
	if sys == nil {
		sys = RealSystem{}
	}
	return &Desktop{
		cfg:    c,
		sys:    sys,
		logger: c.Logger.With().Str("component", "launcher").Logger(),
	}
}

// EntryPath is the launcher file for packageID
func (d *Desktop) EntryPath(packageID string) string {
	return filepath.Join(d.cfg.ApplicationsDir, packageID+".desktop")
}

// LinkPath is the PATH symlink for packageID
func (d *Desktop) LinkPath(packageID string) string {
	return filepath.Join(d.cfg.BinDir, packageID)
}

// Create writes the entry and symlink for packageID. The returned identity is
// the entry path, or empty when entries are disabled. Both steps are attempted
// even if the first fails.
func (d *Desktop) Create(packageID, executablePath string, desc *core.Descriptor) (string, error) {
	var (
		identity string
		errs     []error
	)

	if d.cfg.Entries {
		path := d.EntryPath(packageID)
		if err := d.writeEntry(path, Render(executablePath, desc)); err != nil {
			errs = append(errs, err)
		} else {
			identity = path
		}
	}

	if d.cfg.Symlinks {
		if err := d.link(packageID, executablePath); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return identity, &core.Error{Kind: core.KindFilesystem, Op: "creating launcher", Package: packageID, Err: errors.Join(errs...)}
	}
	return identity, nil
}

// Remove deletes the entry and symlink. Missing files are ignored, and a
// BinDir entry that is not a symlink is left alone.
func (d *Desktop) Remove(packageID string) error {
	var errs []error

	if err := d.sys.Remove(d.EntryPath(packageID)); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}

	link := d.LinkPath(packageID)
	if info, err := d.sys.Lstat(link); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if err := d.sys.Remove(link); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return &core.Error{Kind: core.KindFilesystem, Op: "removing launcher", Package: packageID, Err: errors.Join(errs...)}
	}
	return nil
}

func (d *Desktop) writeEntry(path string, content []byte) error {
	if existing, err := d.sys.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		d.logger.Debug().Str("path", path).Msg("launcher entry unchanged")
		return nil
	}
	if err := d.sys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerr.With(zerr.Wrap(err, "creating applications directory"), "path", path)
	}
	if err := d.sys.WriteFileAtomic(path, content, 0o644); err != nil {
		return zerr.With(zerr.Wrap(err, "writing launcher entry"), "path", path)
	}
	d.logger.Debug().Str("path", path).Msg("launcher entry written")
	return nil
}

func (d *Desktop) link(packageID, executablePath string) error {
	link := d.LinkPath(packageID)
	if err := d.sys.MkdirAll(d.cfg.BinDir, 0o755); err != nil {
		return zerr.With(zerr.Wrap(err, "creating bin directory"), "path", d.cfg.BinDir)
	}

	if info, err := d.sys.Lstat(link); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return zerr.With(zerr.New("refusing to replace a file that is not a symlink"), "path", link)
		}
		if err := d.sys.Remove(link); err != nil {
			return zerr.With(zerr.Wrap(err, "replacing symlink"), "path", link)
		}
	}

	if err := d.sys.Symlink(executablePath, link); err != nil {
		return zerr.With(zerr.Wrap(err, "creating symlink"), "path", link)
	}
	return nil
}

// Render produces the .desktop entry for an executable
func Render(executablePath string, desc *core.Descriptor) []byte {
	icon := desc.Icon
	if icon == "" {
		icon = desc.ID
	}
	categories := "Utility;"
	if len(desc.Categories) > 0 {
		categories = strings.Join(desc.Categories, ";") + ";"
	}

	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s\n", escapeValue(desc.DisplayName()))
	if desc.Description != "" {
		fmt.Fprintf(&b, "Comment=%s\n", escapeValue(desc.Description))
	}
	fmt.Fprintf(&b, "Exec=%s\n", quoteExec(executablePath))
	fmt.Fprintf(&b, "Icon=%s\n", escapeValue(icon))
	fmt.Fprintf(&b, "Terminal=%t\n", desc.Terminal)
	fmt.Fprintf(&b, "Categories=%s\n", categories)
	fmt.Fprintf(&b, "X-Benpak-Package=%s\n", desc.ID)
	return []byte(b.String())
}

func escapeValue(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "\n", "\\n", "\t", "\\t", "\r", "\\r")
	return r.Replace(s)
}

// quoteExec applies the Exec key quoting rules: reserved characters force
// double quotes, and '%' is always doubled
func quoteExec(path string) string {
	path = strings.ReplaceAll(path, "%", "%%")
	if !strings.ContainsAny(path, " \t\n\"'\\><~|&;$*?#()`") {
		return path
	}
	r := strings.NewReplacer(`\`, `\\\\`, `"`, `\\"`, "`", "\\\\`", "$", `\\$`)
	return `"` + r.Replace(path) + `"`
}
