package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultEFPBaseURL is the public EFP indexer API.
	DefaultEFPBaseURL = "https://api.ethfollow.xyz/api/v1"

	// DefaultEFPPageSize is the page size used for following-list scans.
	// Membership checks paginate with this bound instead of requesting
	// the whole list in one call.
	DefaultEFPPageSize = 100

	// maxEFPPages caps a membership scan. A list longer than
	// pageSize*maxEFPPages fails the check with an error rather than
	// hammering the API indefinitely.
	maxEFPPages = 1000
)

// EFPClient queries the Ethereum Follow Protocol indexer API.
type EFPClient struct {
	baseURL    string
	httpClient *http.Client
	pageSize   int
	timeout    time.Duration
}

// EFPOption configures an EFPClient.
type EFPOption func(*EFPClient)

// WithEFPBaseURL sets a custom API base URL (useful for tests).
func WithEFPBaseURL(u string) EFPOption {
	return func(c *EFPClient) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithEFPHTTPClient sets a custom HTTP client.
func WithEFPHTTPClient(hc *http.Client) EFPOption {
	return func(c *EFPClient) {
		c.httpClient = hc
	}
}

// WithEFPTimeout overrides the per-call timeout.
func WithEFPTimeout(d time.Duration) EFPOption {
	return func(c *EFPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithEFPPageSize sets the page size for following-list scans.
func WithEFPPageSize(n int) EFPOption {
	return func(c *EFPClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewEFPClient creates an EFP API client.
func NewEFPClient(opts ...EFPOption) *EFPClient {
	c := &EFPClient{
		baseURL:    DefaultEFPBaseURL,
		httpClient: http.DefaultClient,
		pageSize:   DefaultEFPPageSize,
		timeout:    DefaultRPCTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type efpStats struct {
	FollowersCount int64 `json:"followers_count"`
	FollowingCount int64 `json:"following_count"`
}

type efpFollowingPage struct {
	Following []struct {
		Address string `json:"address"`
	} `json:"following"`
}

// FollowerCount returns how many accounts follow the address.
func (c *EFPClient) FollowerCount(ctx context.Context, address string) (int64, error) {
	endpoint := fmt.Sprintf("%s/users/%s/stats", c.baseURL, url.PathEscape(address))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return 0, err
	}

	var stats efpStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return 0, fmt.Errorf("failed to decode EFP stats: %w", err)
	}
	return stats.FollowersCount, nil
}

// Follows reports whether follower's following list contains target.
// The list is scanned page by page with a bounded page size, stopping
// early on a match or on a short page.
func (c *EFPClient) Follows(ctx context.Context, follower, target string) (bool, error) {
	for page := 0; page < maxEFPPages; page++ {
		endpoint := fmt.Sprintf("%s/users/%s/following?limit=%s&offset=%s",
			c.baseURL,
			url.PathEscape(follower),
			strconv.Itoa(c.pageSize),
			strconv.Itoa(page*c.pageSize))

		body, err := c.get(ctx, endpoint)
		if err != nil {
			return false, err
		}

		var result efpFollowingPage
		if err := json.Unmarshal(body, &result); err != nil {
			return false, fmt.Errorf("failed to decode EFP following page: %w", err)
		}

		for _, entry := range result.Following {
			if strings.EqualFold(entry.Address, target) {
				return true, nil
			}
		}

		if len(result.Following) < c.pageSize {
			return false, nil
		}
	}
	return false, fmt.Errorf("EFP following list exceeds %d entries", c.pageSize*maxEFPPages)
}

// get performs one bounded API call. A timed-out call surfaces as an
// error, which the checkers turn into a failed check.
func (c *EFPClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("EFP request failed: %w", err)
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read EFP response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("EFP API returned status %d", resp.StatusCode)
	}
	return body, nil
}
