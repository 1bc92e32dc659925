// Package auth provides per-player bearer tokens for the licensing backend.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// expirySlack is subtracted from the reported token lifetime so a token is
// refreshed before the backend actually rejects it.
const expirySlack = 60 * time.Second

// Config represents token provider configuration.
type Config struct {
	AppID   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Provider exchanges a player identity for a bearer token and caches the
// result until expiry.
type Provider struct {
	appID      string
	apiKey     string
	baseURL    string
	httpClient *http.Client

	mu     sync.RWMutex
	tokens map[string]*oauth2.Token

	now func() time.Time
}

// New creates a new token provider.
func New(cfg Config) (*Provider, error) {
	if cfg.AppID == "" || cfg.APIKey == "" {
		return nil, errors.New("app id and api key are required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Provider{
		appID:      cfg.AppID,
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     make(map[string]*oauth2.Token),
		now:        time.Now,
	}, nil
}

type tokenRequest struct {
	AppID    string `json:"appId"`
	APIKey   string `json:"apiKey"`
	PlayerID string `json:"playerId"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

// Token returns a valid bearer token for the given player, fetching a new one
// if none is cached or the cached one has expired.
func (p *Provider) Token(ctx context.Context, playerID string) (string, error) {
	if playerID == "" {
		return "", errors.New("player id is required")
	}

	p.mu.RLock()
	tok, ok := p.tokens[playerID]
	p.mu.RUnlock()
	if ok && tok.Expiry.After(p.now()) {
		return tok.AccessToken, nil
	}

	tok, err := p.fetch(ctx, playerID)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.tokens[playerID] = tok
	p.mu.Unlock()

	zlog.Debug().Msgf("fetched token: player_id=%s expiry=%v", playerID, tok.Expiry)
	return tok.AccessToken, nil
}

// Invalidate drops the cached token for a player.
func (p *Provider) Invalidate(playerID string) {
	p.mu.Lock()
	delete(p.tokens, playerID)
	p.mu.Unlock()
}

func (p *Provider) fetch(ctx context.Context, playerID string) (*oauth2.Token, error) {
	payload, err := json.Marshal(tokenRequest{
		AppID:    p.appID,
		APIKey:   p.apiKey,
		PlayerID: playerID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode token request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/auth/token", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send token request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read token response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Newf("token exchange failed: status=%d body=%s", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, errors.Wrap(err, "failed to parse token response")
	}
	if tr.AccessToken == "" {
		return nil, errors.New("token response missing accessToken")
	}

	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime > expirySlack {
		lifetime -= expirySlack
	}

	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		Expiry:      p.now().Add(lifetime),
	}, nil
}
