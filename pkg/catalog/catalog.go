// Package catalog loads package descriptors from the built-in set and from
// descriptor directories on disk.
package catalog

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/arc-language/benpak/pkg/core"
	"github.com/rs/zerolog"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.json
var builtinFS embed.FS

const builtinRoot = "builtin"

// Options controls Load
type Options struct {
	// Dirs are scanned in order before the built-ins, so a file on disk
	// replaces a built-in of the same id. Missing directories are skipped.
	Dirs []string

	// NoBuiltin skips the embedded descriptors
	NoBuiltin bool

	Logger zerolog.Logger
}

// Catalog is an immutable set of validated descriptors keyed by id
type Catalog struct {
	descs    map[string]*core.Descriptor
	problems []error
}

type source struct {
	name string // display path
	read func() ([]byte, error)
}

type parsed struct {
	desc *core.Descriptor
	err  error
}

// Load parses every descriptor file. A file that fails to parse or validate is
// skipped and reported by Problems. When two files declare the same id the
// first one loaded wins.
func Load(ctx context.Context, opts Options) (*Catalog, error) {
	logger := opts.Logger.With().Str("component", "catalog").Logger()

	var sources []source
	for _, dir := range opts.Dirs {
		ds, err := dirSources(dir)
		if err != nil {
			return nil, err
		}
		sources = append(sources, ds...)
	}
	if !opts.NoBuiltin {
		bs, err := builtinSources()
		if err != nil {
			return nil, err
		}
		sources = append(sources, bs...)
	}

	results := make([]parsed, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			desc, err := parseSource(src)
			results[i] = parsed{desc: desc, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &core.Error{Kind: core.KindCancelled, Op: "loading catalog", Err: err}
	}

	c := &Catalog{descs: make(map[string]*core.Descriptor)}
	for i, r := range results {
		if r.err != nil {
			logger.Warn().Err(r.err).Str("file", sources[i].name).Msg("skipping descriptor")
			c.problems = append(c.problems, r.err)
			continue
		}
		if first, dup := c.descs[r.desc.ID]; dup {
			err := core.E(core.KindConfiguration, "loading descriptor",
				zerr.With(fmt.Errorf("duplicate id %q, already defined by %s", r.desc.ID, origin(first)), "file", sources[i].name))
			logger.Warn().Err(err).Msg("skipping descriptor")
			c.problems = append(c.problems, err)
			continue
		}
		c.descs[r.desc.ID] = r.desc
	}

	logger.Debug().Int("packages", len(c.descs)).Int("problems", len(c.problems)).Msg("catalog loaded")
	return c, nil
}

// New builds a catalog from descriptors already in memory
func New(descs ...*core.Descriptor) (*Catalog, error) {
	c := &Catalog{descs: make(map[string]*core.Descriptor)}
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, core.WithPackage(err, d.ID, core.KindConfiguration)
		}
		if _, dup := c.descs[d.ID]; dup {
			return nil, &core.Error{Kind: core.KindConfiguration, Op: "building catalog", Package: d.ID, Err: errors.New("duplicate id")}
		}
		c.descs[d.ID] = d
	}
	return c, nil
}

// Get returns the descriptor for id, or nil
func (c *Catalog) Get(id string) *core.Descriptor {
	return c.descs[id]
}

// All returns every descriptor ordered by id
func (c *Catalog) All() []*core.Descriptor {
	out := make([]*core.Descriptor, 0, len(c.descs))
	for _, d := range c.descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search matches query case-insensitively against id, name, description and
// categories
func (c *Catalog) Search(query string) []*core.Descriptor {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return c.All()
	}
	var out []*core.Descriptor
	for _, d := range c.All() {
		if matches(d, q) {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of descriptors
func (c *Catalog) Len() int {
	return len(c.descs)
}

// Problems returns the errors for files that were skipped
func (c *Catalog) Problems() []error {
	return c.problems
}

func matches(d *core.Descriptor, q string) bool {
	fields := append([]string{d.ID, d.Name, d.Description}, d.Categories...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func origin(d *core.Descriptor) string {
	if d.Source == "" {
		return "built-in"
	}
	return d.Source
}

func builtinSources() ([]source, error) {
	entries, err := fs.ReadDir(builtinFS, builtinRoot)
	if err != nil {
		return nil, core.E(core.KindConfiguration, "reading built-in descriptors", err)
	}
	var out []source
	for _, e := range entries {
		name := path.Join(builtinRoot, e.Name())
		out = append(out, source{
			name: name,
			read: func() ([]byte, error) { return builtinFS.ReadFile(name) },
		})
	}
	return out, nil
}

func dirSources(dir string) ([]source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.E(core.KindFilesystem, "reading descriptor directory", zerr.With(err, "path", dir))
	}
	var out []source
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || formatOf(e.Name()) == "" {
			continue
		}
		p := filepath.Join(dir, e.Name())
		out = append(out, source{
			name: p,
			read: func() ([]byte, error) { return os.ReadFile(p) },
		})
	}
	return out, nil
}

func formatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return ""
	}
}

func parseSource(src source) (*core.Descriptor, error) {
	data, err := src.read()
	if err != nil {
		return nil, core.E(core.KindFilesystem, "reading descriptor", zerr.With(err, "file", src.name))
	}
	desc, err := Parse(src.name, data)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(src.name, builtinRoot+"/") {
		desc.Source = src.name
	}
	return desc, nil
}

// Parse decodes and validates one descriptor. The format is chosen by the
// extension of name.
func Parse(name string, data []byte) (*core.Descriptor, error) {
	var (
		desc core.Descriptor
		err  error
	)
	switch formatOf(name) {
	case "json":
		err = json.Unmarshal(data, &desc)
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(&desc)
	case "toml":
		_, err = toml.Decode(string(data), &desc)
	default:
		err = fmt.Errorf("unsupported descriptor extension %q", filepath.Ext(name))
	}
	if err != nil {
		return nil, core.E(core.KindConfiguration, "parsing descriptor", zerr.With(err, "file", name))
	}
	if err := desc.Validate(); err != nil {
		return nil, &core.Error{Kind: core.KindConfiguration, Op: "validating descriptor", Package: desc.ID,
			Err: zerr.With(err, "file", name)}
	}
	return &desc, nil
}
