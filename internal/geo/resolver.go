// Package geo resolves a coarse human-readable location for prompt
// context. Resolution is strictly best effort; every failure path yields
// an empty string and the caller proceeds without location.
package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nexalabs/nexa-server/domain/repositories"
)

const (
	defaultEndpoint = "http://ip-api.com/json"
	requestTimeout  = 3 * time.Second
)

// Resolver looks up the server's coarse location from an IP geolocation
// service. The result is cached for the process lifetime; the deployment
// does not move.
type Resolver struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger

	mu     sync.Mutex
	cached string
	done   bool
}

var _ repositories.LocationResolver = (*Resolver)(nil)

// NewResolverFromEnv creates a resolver using GEO_ENDPOINT when set.
func NewResolverFromEnv(logger *zap.Logger) *Resolver {
	endpoint := os.Getenv("GEO_ENDPOINT")
	if endpoint == "" {
		endpoint = defaultEndpoint
		logger.Info("Using default geolocation endpoint", zap.String("endpoint", endpoint))
	}
	return &Resolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger,
	}
}

type geoResponse struct {
	Status  string `json:"status"`
	City    string `json:"city"`
	Country string `json:"country"`
}

// Resolve returns "City, Country", or "" when the lookup fails. Every
// connection resolves on login, so the lookup is serialized and concurrent
// callers behind the first one reuse its result.
func (r *Resolver) Resolve(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return r.cached
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		r.logger.Warn("Failed to build geolocation request", zap.Error(err))
		return ""
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warn("Geolocation lookup failed", zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("Geolocation lookup rejected", zap.Int("status", resp.StatusCode))
		return ""
	}

	var body geoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.logger.Warn("Failed to decode geolocation response", zap.Error(err))
		return ""
	}
	if body.Status != "success" || body.City == "" {
		return ""
	}

	r.cached = body.City + ", " + body.Country
	r.done = true
	return r.cached
}
