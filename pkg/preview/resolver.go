package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jzx17/resilience/pkg/classify"
	"github.com/jzx17/resilience/pkg/types"
)

// HTTPResolver is a URLProvider backed by a storage signing endpoint.
// It POSTs {"expiresIn": seconds} to <endpoint>/<path> and reads {"signedURL": "..."}.
type HTTPResolver struct {
	endpoint  *url.URL
	client    *http.Client
	token     string
	expiresIn time.Duration
}

// ResolverOption configures an HTTPResolver
type ResolverOption func(*HTTPResolver)

// WithResolverClient sets the HTTP client
func WithResolverClient(client *http.Client) ResolverOption {
	return func(r *HTTPResolver) {
		r.client = client
	}
}

// WithToken sends token as a bearer credential
func WithToken(token string) ResolverOption {
	return func(r *HTTPResolver) {
		r.token = token
	}
}

// WithExpiry sets the lifetime requested for signed URLs
func WithExpiry(d time.Duration) ResolverOption {
	return func(r *HTTPResolver) {
		r.expiresIn = d
	}
}

// NewHTTPResolver creates a resolver for the signing endpoint
func NewHTTPResolver(endpoint string, opts ...ResolverOption) (*HTTPResolver, error) {
	u, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing signing endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: signing endpoint %q is not absolute", types.ErrInvalidConfig, endpoint)
	}

	r := &HTTPResolver{
		endpoint:  u,
		client:    http.DefaultClient,
		expiresIn: time.Hour,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type signRequest struct {
	ExpiresIn int64 `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// ResourceURL requests a signed URL for path. Failures come back as classified
// faults: 401/403 are auth, transport errors are network or timeout, 404 is
// permanent and 429/503 carry the server's Retry-After.
func (r *HTTPResolver) ResourceURL(ctx context.Context, path string) (string, error) {
	body, err := json.Marshal(signRequest{ExpiresIn: int64(r.expiresIn / time.Second)})
	if err != nil {
		return "", err
	}

	target := r.endpoint.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		kind := classify.Error(err)
		if kind != classify.Timeout {
			kind = classify.Network
		}
		return "", classify.NewFault(kind, fmt.Sprintf("fetching signed url for %s: %v", path, err), err)
	}
	defer resp.Body.Close()

	if err := statusError(resp, path); err != nil {
		return "", err
	}

	var out signResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", classify.NewFault(classify.Other, fmt.Sprintf("decoding signed url for %s: %v", path, err), err)
	}
	if out.SignedURL == "" {
		return "", classify.NewFault(classify.Other, "signing endpoint returned no url for "+path, nil)
	}

	signed, err := url.Parse(out.SignedURL)
	if err != nil {
		return "", classify.NewFault(classify.Other, fmt.Sprintf("invalid signed url for %s: %v", path, err), err)
	}
	// relative answers are resolved against the signing endpoint
	return r.endpoint.ResolveReference(signed).String(), nil
}

func statusError(resp *http.Response, path string) error {
	code := resp.StatusCode
	switch {
	case code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return classify.NewFault(classify.Auth, fmt.Sprintf("auth rejected for %s: status %d", path, code), nil)
	case code == http.StatusNotFound:
		return types.Permanent(classify.NewFault(classify.Other, "object not found: "+path, nil))
	case code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable:
		fault := classify.NewFault(classify.Network, fmt.Sprintf("signing service unavailable: status %d", code), nil)
		if after := retryAfter(resp.Header.Get("Retry-After")); after > 0 {
			return &types.RetryAfterError{Err: fault, RetryAfter: after}
		}
		return fault
	default:
		msg := fmt.Sprintf("signing %s failed: status %d", path, code)
		return classify.NewFault(classify.Classify(msg), msg, nil)
	}
}

// retryAfter parses the delay-seconds form of Retry-After
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
