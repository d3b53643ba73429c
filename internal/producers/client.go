package producers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 5 << 20 // 5 MB
	successStatus      = "success"
)

// NewHTTPClient returns the traced client used for backend queries.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   defaultHTTPTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// backend is a Prometheus-compatible or Loki HTTP API.
type backend struct {
	endpoint   string
	tenantID   string
	httpClient *http.Client
}

// get issues a GET to apiPath under the endpoint and returns the "data"
// object of a successful response.
func (b *backend) get(ctx context.Context, apiPath string, params url.Values) (gjson.Result, error) {
	u, err := url.Parse(b.endpoint)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("invalid endpoint: %w", err)
	}
	u.Path = path.Join(u.Path, apiPath)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("create request: %w", err)
	}
	if b.tenantID != "" {
		req.Header.Set("X-Scope-OrgID", b.tenantID)
	}

	resp, err := b.httpClient.Do(req) //nolint:gosec // endpoint comes from config, query values are url-encoded
	if err != nil {
		return gjson.Result{}, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("backend returned %d: %s", resp.StatusCode, truncate(string(body), 512))
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("unparsable response: %s", truncate(string(body), 512))
	}
	if status := gjson.GetBytes(body, "status").String(); status != successStatus {
		return gjson.Result{}, fmt.Errorf("query status %q: %s", status, gjson.GetBytes(body, "error").String())
	}
	return gjson.GetBytes(body, "data"), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
