// Package geo resolves a player's billing country.
package geo

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/sndworks/boombox/internal/infra/cloud"
)

// API is the subset of the backend client the resolver needs.
type API interface {
	Call(ctx context.Context, playerID, method, path string, body any) ([]byte, error)
}

// Resolver looks up a player's billing country via the backend's region
// endpoint. Results are cached for the process lifetime; a player's billing
// country does not change mid-session.
type Resolver struct {
	api API

	mu    sync.RWMutex
	cache map[string]string
}

// New creates a new region resolver.
func New(api API) *Resolver {
	return &Resolver{
		api:   api,
		cache: make(map[string]string),
	}
}

type regionResponse struct {
	Country string `json:"country"`
}

// CountryFor returns the ISO country code for a player.
func (r *Resolver) CountryFor(ctx context.Context, playerID string) (string, error) {
	r.mu.RLock()
	if country, ok := r.cache[playerID]; ok {
		r.mu.RUnlock()
		return country, nil
	}
	r.mu.RUnlock()

	body, err := r.api.Call(ctx, playerID, http.MethodGet, "/v1/players/"+playerID+"/region", nil)
	if err != nil {
		return "", err
	}

	var resp regionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "failed to parse region response")
	}
	if resp.Country == "" {
		return "", errors.Wrap(cloud.ErrMissingField, "region response missing country")
	}

	r.mu.Lock()
	r.cache[playerID] = resp.Country
	r.mu.Unlock()

	zlog.Debug().Msgf("resolved region: player_id=%s country=%s", playerID, resp.Country)
	return resp.Country, nil
}
