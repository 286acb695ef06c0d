// Package catalog fetches and parses the remote catalog page listing
// available archive versions, and resolves the published digest files
// linked next to each entry.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bunburya/uzak/internal/archive"
	"github.com/bunburya/uzak/internal/util"
)

// UserAgent identifies this application to the catalog server
const UserAgent = "uzak/1.0 (https://github.com/bunburya/uzak)"

// Source produces catalog records and resolves published digests.
// Implemented by Client; the sync engine depends only on this contract.
type Source interface {
	Records(ctx context.Context) ([]archive.Record, error)
	ResolveDigest(ctx context.Context, rec *archive.Record) error
}

// Client fetches the catalog page over HTTP and parses it.
type Client struct {
	pageURL    string
	httpClient *http.Client
}

// NewClient creates a catalog client for the given page URL.
func NewClient(pageURL string) *Client {
	return &Client{
		pageURL: pageURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Records fetches the catalog page and returns every archive entry it
// lists. Entries with unparseable date or size columns are returned
// with zero values rather than dropped; identity columns must parse.
func (c *Client) Records(ctx context.Context) ([]archive.Record, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog page returned status %d", resp.StatusCode)
	}

	base, err := url.Parse(c.pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog URL %q: %w", c.pageURL, err)
	}

	return ParsePage(resp.Body, base)
}

// ResolveDigest fetches the digest file linked from a record and fills
// in its SHA256 field. Digest files carry "<hex>  <filename>" lines.
func (c *Client) ResolveDigest(ctx context.Context, rec *archive.Record) error {
	if rec.SHA256 != "" {
		return nil
	}
	if rec.SHA256URL == "" {
		return fmt.Errorf("no digest link for %s", rec.Reference)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", rec.SHA256URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch digest: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("digest fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("failed to read digest: %w", err)
	}

	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		return fmt.Errorf("empty digest file for %s", rec.Reference)
	}
	digest := strings.ToLower(fields[0])
	if len(digest) != 64 {
		return fmt.Errorf("malformed digest %q for %s", digest, rec.Reference)
	}
	rec.SHA256 = digest
	util.DebugLog("Resolved digest for %s: %s", rec.Reference, digest)
	return nil
}
