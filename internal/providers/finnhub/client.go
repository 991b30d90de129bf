package finnhub

import (
	"net/http"
	"net/url"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=finnhub_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultBaseURL = "https://finnhub.io/api/v1"

// Option is a configuration option for the adapter.
type Option func(*Adapter)

// WithBaseURL overrides the API base URL (tests point this at httptest).
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) {
		a.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(a *Adapter) {
		a.httpClient = httpClient
	}
}

// New creates the Finnhub adapter. An empty token is allowed: the adapter
// then reports ErrNotConfigured on use so the resolver can skip it.
func New(token string, options ...Option) *Adapter {
	a := &Adapter{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		query:      url.Values{},
	}
	if token != "" {
		a.query.Set("token", token)
	}
	for _, option := range options {
		option(a)
	}
	return a
}
