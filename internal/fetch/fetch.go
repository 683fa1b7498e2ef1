// Package fetch implements the statement fetcher of spec.md §4.2:
// retrieving entity configurations from an entity's well-known path and
// subordinate statements from an authority's fetch endpoint.
//
// Grounded on _examples/Mindburn-Labs-helm/core/pkg/util/resiliency/client.go's
// EnhancedClient shape (a named wrapper around *http.Client), trimmed of
// its retry loop and circuit breaker — spec.md §4.2 and §7 are explicit
// that this fetcher never retries, and failures are branch-local to
// whichever resolver/crawler recursion invoked it, not the fetcher's
// concern to suppress.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"
)

// Fetcher retrieves raw compact-serialized signed tokens over HTTP. It
// does not interpret the response body; callers verify it.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
}

// New constructs a Fetcher. ratePerSecond/burst bound the outbound request
// rate (a token-bucket throttle, not a retry policy and not a cap on
// requests in flight) so that a pathological or malicious federation tree
// cannot cause an unbounded burst of fetches during a single resolve or
// crawl.
func New(client *http.Client, ratePerSecond float64, burst int) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 50
	}
	if burst <= 0 {
		burst = 10
	}
	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// EntityConfigurationPath is the well-known path entity configurations are
// published at. spec.md §4.2.
const EntityConfigurationPath = "/.well-known/openid-federation"

// FetchEntityConfiguration issues a GET to
// {entityID}/.well-known/openid-federation and returns the raw compact
// token body.
func (f *Fetcher) FetchEntityConfiguration(ctx context.Context, entityID string) (string, error) {
	u, err := url.Parse(entityID)
	if err != nil {
		return "", fmt.Errorf("fetch: invalid entity id %q: %w", entityID, err)
	}
	u.Path = joinPath(u.Path, ".well-known/openid-federation")
	return f.get(ctx, u.String())
}

// FetchSubordinateStatement issues a GET to {fetchEndpoint}?sub={sub} and
// returns the raw compact token body.
func (f *Fetcher) FetchSubordinateStatement(ctx context.Context, fetchEndpoint, sub string) (string, error) {
	u, err := url.Parse(fetchEndpoint)
	if err != nil {
		return "", fmt.Errorf("fetch: invalid fetch endpoint %q: %w", fetchEndpoint, err)
	}
	q := u.Query()
	q.Set("sub", sub)
	u.RawQuery = q.Encode()
	return f.get(ctx, u.String())
}

// FetchList issues a GET to a federation_list_endpoint and returns the raw
// response body (spec.md §6 "/list"). Like every other egress path here,
// it is rate-limited and unretried.
func (f *Fetcher) FetchList(ctx context.Context, listEndpoint string) (string, error) {
	u, err := url.Parse(listEndpoint)
	if err != nil {
		return "", fmt.Errorf("fetch: invalid list endpoint %q: %w", listEndpoint, err)
	}
	return f.get(ctx, u.String())
}

func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("fetch: rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch: read body from %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch: %s: unexpected status %d", url, resp.StatusCode)
	}

	return string(body), nil
}

func joinPath(base, suffix string) string {
	if base == "" {
		return "/" + suffix
	}
	if base[len(base)-1] == '/' {
		return base + suffix
	}
	return base + "/" + suffix
}
