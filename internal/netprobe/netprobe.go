// Package netprobe answers one question: does this host currently have a
// route to the internet?
package netprobe

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"portfolioquotes/internal/httpx"
)

const (
	// DefaultEndpoint is a lightweight, highly available target. Any HTTP
	// response at all proves reachability; the body is never read.
	DefaultEndpoint = "https://www.google.com/generate_204"
	DefaultTimeout  = 3 * time.Second
)

// Prober checks network reachability with a bounded-timeout request.
// A 401 (or any other status) still counts as online: the point is the
// network path, not credential validity. Results are not cached.
type Prober struct {
	Endpoint string
	Timeout  time.Duration

	client *httpx.Client
	log    zerolog.Logger
}

func New(endpoint string, timeout time.Duration, log zerolog.Logger) *Prober {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		Endpoint: endpoint,
		Timeout:  timeout,
		client:   httpx.New(timeout),
		log:      log.With().Str("component", "netprobe").Logger(),
	}
}

// IsOnline reports whether the probe endpoint answered within the timeout.
func (p *Prober) IsOnline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.Endpoint, http.NoBody)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(ctx, req)
	if err != nil {
		p.log.Debug().Err(err).Msg("probe failed, treating as offline")
		return false
	}
	defer resp.Body.Close()
	return true
}
