package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"otapatch/internal/safety"
)

const (
	// maxReleaseJSONSize bounds the release metadata response.
	maxReleaseJSONSize = 4 << 20
	// maxAssetSize bounds a downloaded asset (the Magisk apk is the
	// largest expected asset at ~30MB).
	maxAssetSize = 512 << 20
)

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

// Release is the subset of the release-host "latest release" response the
// tool acquirer needs.
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// HTTPError represents a non-success HTTP response from the release host.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Status)
}

// Client fetches release metadata and asset bytes from a release host.
// There is deliberately no retry layer: failures surface to the caller.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     *slog.Logger
}

// NewClient creates a release client. baseURL is the API root, e.g.
// "https://api.github.com".
func NewClient(baseURL, userAgent string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: safety.NewHTTPClient(timeout),
		baseURL:    baseURL,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// Latest fetches the latest release for a "owner/name" repository.
func (c *Client) Latest(ctx context.Context, repo string) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.baseURL, repo)
	c.logger.Debug("fetching latest release", "repo", repo, "url", url)

	body, err := c.get(ctx, url, maxReleaseJSONSize)
	if err != nil {
		return nil, fmt.Errorf("fetching latest release for %s: %w", repo, err)
	}

	var rel Release
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, fmt.Errorf("parsing release metadata for %s: %w", repo, err)
	}

	c.logger.Debug("fetched latest release",
		"repo", repo, "tag", rel.TagName, "assets", len(rel.Assets))
	return &rel, nil
}

// DownloadAsset fetches the asset bytes into memory. Assets are held in
// memory because the zip post-processing needs random access anyway.
func (c *Client) DownloadAsset(ctx context.Context, asset Asset) ([]byte, error) {
	c.logger.Info("downloading asset", "name", asset.Name)

	body, err := c.get(ctx, asset.DownloadURL, maxAssetSize)
	if err != nil {
		return nil, fmt.Errorf("downloading asset %s: %w", asset.Name, err)
	}
	return body, nil
}

// get performs a single GET and returns the bounded body. Non-2xx
// responses become *HTTPError.
func (c *Client) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	return safety.ReadAllWithLimit(resp.Body, limit)
}
