// Package adapters holds the shared HTTP client shape used by every source
// adapter (C10): an injected *http.Client, an injected rate limiter, and a
// base URL, following the teacher's "small struct + constructor + method
// set" shape used for its own service clients.
package adapters

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client is embedded by each of the three source adapters.
type Client struct {
	HTTP    *http.Client
	Limiter *rate.Limiter
	BaseURL string
}

// New constructs a Client with sane defaults; callers override BaseURL and
// the rate limit per adapter instance. A requestsPerSecond <= 0 disables
// rate limiting.
func New(baseURL string, requestsPerSecond float64, burst int) *Client {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Client{
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Limiter: rate.NewLimiter(limit, burst),
		BaseURL: baseURL,
	}
}
