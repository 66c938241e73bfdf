package crates

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/matzehuels/cratesig/pkg/buildinfo"
	"github.com/matzehuels/cratesig/pkg/httputil"
	"github.com/matzehuels/cratesig/pkg/integrations"
)

const (
	// DefaultAPIURL is the crates.io API root.
	DefaultAPIURL = "https://crates.io/api/v1"

	// DefaultStaticURL serves crate archives.
	DefaultStaticURL = "https://static.crates.io/crates"

	// PageSize is the largest page crates.io accepts for listings.
	PageSize = 100
)

// CrateInfo holds metadata for a Rust crate from crates.io.
//
// Version is max_stable_version; for crates that only ever published
// pre-releases it falls back to max_version.
type CrateInfo struct {
	Name      string // Crate name (e.g., "serde")
	Version   string // Latest stable version (e.g., "1.0.193")
	Downloads int    // Total download count across all versions
}

// Download describes a crate archive stored on disk.
type Download struct {
	Name        string
	Version     string
	ArchivePath string // {dir}/{name}-{version}.crate
}

// Client provides access to the crates.io package registry API.
//
// Note: crates.io requires a User-Agent header; this client sets one automatically.
type Client struct {
	*integrations.Client
	baseURL   string
	staticURL string
}

// Options configures a [Client]. Empty URLs select the public crates.io
// endpoints; the zero Retry makes a single attempt per request.
type Options struct {
	APIURL    string
	StaticURL string
	Retry     httputil.Policy
}

// NewClient creates a crates.io client.
func NewClient(opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.StaticURL == "" {
		opts.StaticURL = DefaultStaticURL
	}
	headers := map[string]string{"User-Agent": buildinfo.UserAgent()}
	return &Client{
		Client:    integrations.NewClient(opts.Retry, headers),
		baseURL:   opts.APIURL,
		staticURL: opts.StaticURL,
	}
}

// ListTopCrates returns the ids of the n most downloaded crates, ordered by
// all-time downloads as reported by the registry.
//
// Pages are requested until n ids are collected or a short page signals the
// end of the listing. Ids that reappear on a later page (rankings can shift
// between requests) are skipped. The result has exactly min(n, available)
// entries; n <= 0 returns nil without contacting the registry.
func (c *Client) ListTopCrates(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	ids := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for page := 1; len(ids) < n; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(PageSize))
		q.Set("sort", "downloads")

		var data listResponse
		if err := c.Get(ctx, c.baseURL+"/crates?"+q.Encode(), &data); err != nil {
			return nil, fmt.Errorf("list crates page %d: %w", page, err)
		}

		for _, cr := range data.Crates {
			if seen[cr.ID] || len(ids) == n {
				continue
			}
			seen[cr.ID] = true
			ids = append(ids, cr.ID)
		}
		if len(data.Crates) < PageSize {
			break
		}
	}
	return ids, nil
}

// FetchCrate retrieves metadata for a crate.
//
// Returns [integrations.ErrNotFound] (wrapped) if the crate doesn't exist and
// [integrations.ErrNetwork] for other HTTP failures.
func (c *Client) FetchCrate(ctx context.Context, name string) (*CrateInfo, error) {
	var data crateResponse
	if err := c.Get(ctx, fmt.Sprintf("%s/crates/%s", c.baseURL, integrations.URLEncode(name)), &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: crate %s", err, name)
		}
		return nil, err
	}

	version := data.Crate.MaxStableVersion
	if version == "" {
		version = data.Crate.MaxVersion
	}
	if version == "" {
		return nil, fmt.Errorf("crate %s: registry reported no version", name)
	}

	return &CrateInfo{
		Name:      data.Crate.ID,
		Version:   version,
		Downloads: data.Crate.Downloads,
	}, nil
}

// ArchiveURL returns the static download URL for a crate version.
func (c *Client) ArchiveURL(name, version string) string {
	return fmt.Sprintf("%s/%s/%s-%s.crate", c.staticURL, name, name, version)
}

// DownloadCrate downloads the source archive of name into dir.
// An empty version resolves to the latest stable release via [FetchCrate].
func (c *Client) DownloadCrate(ctx context.Context, name, version, dir string) (*Download, error) {
	if version == "" {
		info, err := c.FetchCrate(ctx, name)
		if err != nil {
			return nil, err
		}
		version = info.Version
	}

	dest := filepath.Join(dir, fmt.Sprintf("%s-%s.crate", name, version))
	if err := c.Download(ctx, c.ArchiveURL(name, version), dest); err != nil {
		return nil, fmt.Errorf("download %s %s: %w", name, version, err)
	}
	return &Download{Name: name, Version: version, ArchivePath: dest}, nil
}

type listResponse struct {
	Crates []struct {
		ID string `json:"id"`
	} `json:"crates"`
}

type crateResponse struct {
	Crate struct {
		ID               string `json:"id"`
		MaxVersion       string `json:"max_version"`
		MaxStableVersion string `json:"max_stable_version"`
		Downloads        int    `json:"downloads"`
	} `json:"crate"`
}
