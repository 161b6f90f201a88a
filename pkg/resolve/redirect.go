package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"

	"github.com/arc-language/benpak/pkg/core"
	"go.trai.ch/zerr"
)

var defaultVersionPattern = regexp.MustCompile(`(\d+\.\d+\.\d+)`)

// redirect probes the download URL without following redirects. Vendors that
// serve "latest" links answer with a redirect whose target names the version.
func (r *Resolver) redirect(ctx context.Context, desc *core.Descriptor) (*core.Resolution, error) {
	start := r.platform.Expand(desc.URLPattern, core.VersionUnknown)

	resp, err := r.client.Head(ctx, start, false)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	final := start
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc, err := resp.Location()
		if err != nil {
			return nil, core.E(core.KindNetwork, "resolve", zerr.With(zerr.Wrap(err, "redirect without location"), "url", start))
		}
		final = loc.String()
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusMethodNotAllowed:
		// some CDNs reject HEAD; the URL itself is still usable
	default:
		err := zerr.New(fmt.Sprintf("unexpected status: %d", resp.StatusCode))
		return nil, core.E(core.KindNetwork, "resolve", zerr.With(err, "url", start))
	}

	pattern := defaultVersionPattern
	if desc.VersionPattern != "" {
		p, err := regexp.Compile(desc.VersionPattern)
		if err != nil {
			return nil, core.E(core.KindConfiguration, "resolve", err)
		}
		pattern = p
	}

	version := MatchVersion(pattern, fileName(final))
	if version == "" {
		version = core.VersionUnknown
	}
	r.logger.Debug().Str("package", desc.ID).Str("url", final).Str("version", version).Msg("resolved by redirect")

	return &core.Resolution{Version: version, URL: final}, nil
}

// MatchVersion returns the first capture group of pattern in s, or the whole
// match when the pattern has no groups
func MatchVersion(pattern *regexp.Regexp, s string) string {
	m := pattern.FindStringSubmatch(s)
	switch {
	case m == nil:
		return ""
	case len(m) > 1:
		return m[1]
	default:
		return m[0]
	}
}

func fileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}
	return path.Base(u.Path)
}
