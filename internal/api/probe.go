package api

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// Probe answers whether the backend is reachable right now. Sync operations
// consult it first and degrade to local-only work when it says no.
type Probe interface {
	Online() bool
}

// HTTPProbe checks reachability with a short GET against the backend's
// health endpoint.
type HTTPProbe struct {
	http *resty.Client
}

// NewHTTPProbe builds a probe for the given base URL.
func NewHTTPProbe(baseURL string) *HTTPProbe {
	return &HTTPProbe{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(3 * time.Second),
	}
}

// Online reports whether the health endpoint answered 200 in time.
func (p *HTTPProbe) Online() bool {
	resp, err := p.http.R().Get("/health")
	return err == nil && resp.StatusCode() == 200
}

// StaticProbe is a fixed-answer probe for tests and forced-offline modes.
type StaticProbe bool

// Online returns the fixed answer.
func (p StaticProbe) Online() bool { return bool(p) }
