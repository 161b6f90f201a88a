// Package resolve turns descriptors into concrete download locations.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/arc-language/benpak/pkg/fetch"
	"github.com/arc-language/benpak/pkg/platform"
	"github.com/rs/zerolog"
)

// DefaultGitHubAPI is the public GitHub REST endpoint
const DefaultGitHubAPI = "https://api.github.com"

// Config configures a Resolver
type Config struct {
	Client    *fetch.Client
	Platform  *platform.Platform
	GitHubAPI string
	Token     string // optional GitHub token
	Logger    zerolog.Logger
}

// Resolver dispatches on Descriptor.Resolver. When a dynamic resolver fails and
// the descriptor carries a last-known version, that version is used instead.
type Resolver struct {
	client    *fetch.Client
	platform  *platform.Platform
	githubAPI string
	token     string
	logger    zerolog.Logger
}

// New creates a Resolver
func New(cfg *Config) *Resolver {
	if cfg == nil {
		cfg = &Config{Logger: zerolog.Nop()}
	}
	r := &Resolver{
		client:    cfg.Client,
		platform:  cfg.Platform,
		githubAPI: cfg.GitHubAPI,
		token:     cfg.Token,
		logger:    cfg.Logger.With().Str("component", "resolve").Logger(),
	}
	if r.client == nil {
		r.client = fetch.NewClient()
	}
	if r.platform == nil {
		r.platform = platform.Current()
	}
	if r.githubAPI == "" {
		r.githubAPI = DefaultGitHubAPI
	}
	return r
}

// Resolve returns the version and URL to install for desc
func (r *Resolver) Resolve(ctx context.Context, desc *core.Descriptor) (*core.Resolution, error) {
	var (
		res *core.Resolution
		err error
	)

	switch desc.Resolver {
	case "", core.ResolverStatic:
		return r.static(desc)
	case core.ResolverRedirect:
		res, err = r.redirect(ctx, desc)
	case core.ResolverGitHub:
		res, err = r.github(ctx, desc)
	default:
		return nil, &core.Error{Kind: core.KindConfiguration, Op: "resolve", Package: desc.ID, Err: fmt.Errorf("unknown resolver %q", desc.Resolver)}
	}
	if err == nil {
		return res, nil
	}
	if errors.Is(err, core.ErrCancelled) || desc.Version == "" {
		return nil, core.WithPackage(err, desc.ID, core.KindNetwork)
	}

	r.logger.Warn().Err(err).Str("package", desc.ID).Str("version", desc.Version).
		Msg("version resolution failed, using last known version")
	return r.static(desc)
}

func (r *Resolver) static(desc *core.Descriptor) (*core.Resolution, error) {
	version := desc.Version
	if version == "" {
		if platform.HasVersionPlaceholder(desc.URLPattern) {
			return nil, &core.Error{Kind: core.KindConfiguration, Op: "resolve", Package: desc.ID,
				Err: errors.New("url_pattern needs {version} but no version is known")}
		}
		version = core.VersionUnknown
	}
	return &core.Resolution{
		Version: version,
		URL:     r.platform.Expand(desc.URLPattern, version),
	}, nil
}
