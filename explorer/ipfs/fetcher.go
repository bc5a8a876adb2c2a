// Package ipfs retrieves round, program and project metadata pinned on IPFS.
package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/fetch"
	"github.com/rs/zerolog"
)

const (
	// DefaultGateway is the pinning service gateway used when none is configured.
	DefaultGateway = "gitcoin.mypinata.cloud"
	// DefaultBannerImage is served when a project has no banner pinned.
	DefaultBannerImage = "/assets/default_banner.png"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "ipfs").Logger()
}

// Fetcher reads JSON documents from a fixed gateway.
type Fetcher struct {
	baseURL       string
	defaultBanner string
	http          *fetch.Client
}

// NewFetcher creates a fetcher for gateway. gateway is a bare host
// ("gitcoin.mypinata.cloud"), which is served over https; a value that already carries a
// scheme is used as is.
func NewFetcher(gateway string, opts ...fetch.Option) *Fetcher {
	if gateway == "" {
		gateway = DefaultGateway
	}
	base := strings.TrimSuffix(gateway, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return &Fetcher{
		baseURL:       base,
		defaultBanner: DefaultBannerImage,
		http:          fetch.NewClient(fetch.ServiceIPFS, opts...),
	}
}

// WithDefaultBanner sets the image returned by BannerURL for projects without a banner.
func (f *Fetcher) WithDefaultBanner(path string) *Fetcher {
	if path != "" {
		f.defaultBanner = path
	}
	return f
}

// URL returns the gateway URL of cid. A cid may carry a path inside the DAG
// (bafy.../metadata.json); each segment is escaped on its own.
func (f *Fetcher) URL(cid string) string {
	segments := strings.Split(cid, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf("%s/ipfs/%s", f.baseURL, strings.Join(segments, "/"))
}

// FetchMetadata returns the JSON document stored under cid. Non-2xx statuses come back
// as *fetch.StatusError.
func (f *Fetcher) FetchMetadata(ctx context.Context, cid string) (json.RawMessage, error) {
	if cid == "" {
		return nil, fmt.Errorf("empty content identifier")
	}
	body, err := f.http.Get(ctx, f.URL(cid), nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("ipfs document %s is not valid JSON", cid)
	}
	log.Debug().Str("cid", cid).Int("bytes", len(body)).Msg("Fetched metadata")
	return json.RawMessage(body), nil
}

// FetchInto fetches cid and unmarshals it into v.
func (f *Fetcher) FetchInto(ctx context.Context, cid string, v any) error {
	raw, err := f.FetchMetadata(ctx, cid)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode ipfs document %s: %w", cid, err)
	}
	return nil
}

// BannerURL returns the gateway URL of a project banner, or the default banner when the
// project has none.
func (f *Fetcher) BannerURL(bannerCid string) string {
	if bannerCid == "" {
		return f.defaultBanner
	}
	return f.URL(bannerCid)
}
