package resolve

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/arc-language/benpak/pkg/core"
	"github.com/arc-language/benpak/pkg/platform"
	"go.trai.ch/zerr"
)

// Release is the subset of the GitHub release payload we read
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Asset is a downloadable file attached to a release
type Asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

func (r *Resolver) github(ctx context.Context, desc *core.Descriptor) (*core.Resolution, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/releases/latest", strings.TrimRight(r.githubAPI, "/"), desc.Repository)
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if r.token != "" {
		headers["Authorization"] = "Bearer " + r.token
	}

	var rel Release
	if err := r.client.GetJSON(ctx, endpoint, headers, &rel); err != nil {
		return nil, err
	}
	if rel.TagName == "" {
		return nil, core.E(core.KindNetwork, "resolve", zerr.With(zerr.New("release has no tag"), "url", endpoint))
	}
	version := strings.TrimPrefix(rel.TagName, "v")

	asset, err := selectAsset(&rel, desc, r.platform, version)
	if err != nil {
		return nil, err
	}
	r.logger.Debug().Str("package", desc.ID).Str("asset", asset.Name).Str("version", version).Msg("resolved from github release")

	return &core.Resolution{Version: version, URL: asset.BrowserDownloadURL}, nil
}

// selectAsset prefers asset_pattern, then an asset whose name matches the
// expanded url_pattern file name
func selectAsset(rel *Release, desc *core.Descriptor, p *platform.Platform, version string) (*Asset, error) {
	if desc.AssetPattern != "" {
		re, err := regexp.Compile(p.Expand(desc.AssetPattern, regexp.QuoteMeta(version)))
		if err != nil {
			return nil, core.E(core.KindConfiguration, "resolve", zerr.Wrap(err, "asset_pattern"))
		}
		for i := range rel.Assets {
			if re.MatchString(rel.Assets[i].Name) {
				return &rel.Assets[i], nil
			}
		}
		return nil, core.E(core.KindConfiguration, "resolve",
			zerr.With(zerr.New("no release asset matches asset_pattern"), "pattern", re.String()))
	}

	want := fileName(p.Expand(desc.URLPattern, version))
	for i := range rel.Assets {
		if rel.Assets[i].Name == want {
			return &rel.Assets[i], nil
		}
	}
	return &Asset{Name: want, BrowserDownloadURL: p.Expand(desc.URLPattern, version)}, nil
}
