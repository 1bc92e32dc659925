// Package cloud provides a client for the music-licensing backend API.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/sndworks/boombox/internal/domain/playlist"
	"github.com/sndworks/boombox/internal/domain/telemetry"
	"github.com/sndworks/boombox/internal/domain/track"
)

// ErrMissingField indicates a well-formed backend response that lacks a field
// the integration depends on.
var ErrMissingField = errors.New("response missing expected field")

// APIError represents a non-success response from the backend.
type APIError struct {
	Status  int    // HTTP status code
	Code    string // Backend error code, if any
	Message string // Backend error message, if any
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// TokenSource supplies a bearer token for a player.
type TokenSource interface {
	Token(ctx context.Context, playerID string) (string, error)
}

// Config represents cloud client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is a licensing backend API client. It performs no retries; failures
// propagate to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// New creates a new backend client.
func New(cfg Config, tokens TokenSource) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}, nil
}

// Call issues an authenticated request on behalf of a player and returns the
// raw response body. Non-2xx responses are returned as *APIError.
func (c *Client) Call(ctx context.Context, playerID, method, path string, body any) ([]byte, error) {
	token, err := c.tokens.Token(ctx, playerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to obtain token")
	}
	return c.do(ctx, method, path, body, token)
}

// CallUnauthenticated issues a request without a bearer token. Used for the
// payment confirmation endpoint.
func (c *Client) CallUnauthenticated(ctx context.Context, method, path string, body any) ([]byte, error) {
	return c.do(ctx, method, path, body, "")
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &errBody) == nil {
			apiErr.Code = errBody.Code
			apiErr.Message = errBody.Message
		}
		zlog.Warn().Msgf("backend call failed: method=%s path=%s status=%d code=%s", method, path, resp.StatusCode, apiErr.Code)
		return nil, apiErr
	}

	return respBody, nil
}

// rawTrack is the backend's track representation.
type rawTrack struct {
	TrackID  string         `json:"trackId"`
	Title    string         `json:"title"`
	Artists  []string       `json:"artists"`
	AssetKey string         `json:"assetKey"`
	Liked    bool           `json:"liked"`
	Custom   map[string]any `json:"custom"`
}

// rawLicensing mirrors the custom metadata block.
type rawLicensing struct {
	Licensor    string   `mapstructure:"licensor"`
	Territories []string `mapstructure:"territories"`
	Catalog     string   `mapstructure:"catalog"`
}

// convertTrack converts a backend track to the domain entity, decoding the
// loosely-typed custom block into licensing metadata.
func convertTrack(rt *rawTrack) (*track.Track, error) {
	if rt.TrackID == "" {
		return nil, errors.Wrap(ErrMissingField, "track missing trackId")
	}

	var lic rawLicensing
	if rt.Custom != nil {
		if err := mapstructure.Decode(rt.Custom, &lic); err != nil {
			zlog.Debug().Msgf("ignoring undecodable custom metadata: track_id=%s err=%v", rt.TrackID, err)
		}
	}

	return &track.Track{
		ID:       rt.TrackID,
		Title:    rt.Title,
		Artists:  rt.Artists,
		AssetKey: rt.AssetKey,
		Liked:    rt.Liked,
		Licensing: track.Licensing{
			Licensor:    lic.Licensor,
			Territories: lic.Territories,
			Catalog:     lic.Catalog,
		},
	}, nil
}

type startSessionRequest struct {
	PlaylistID string `json:"playlistId"`
	Format     string `json:"format"`
}

type startSessionResponse struct {
	SessionID string    `json:"sessionId"`
	Track     *rawTrack `json:"track"`
}

// StartSession starts a playlist session for a player and returns the session
// ID issued by the backend together with the first track.
func (c *Client) StartSession(ctx context.Context, playerID, playlistID, format string) (string, *track.Track, error) {
	body, err := c.Call(ctx, playerID, http.MethodPost, "/v1/playback/session/start", startSessionRequest{
		PlaylistID: playlistID,
		Format:     format,
	})
	if err != nil {
		return "", nil, err
	}

	var resp startSessionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", nil, errors.Wrap(err, "failed to parse start session response")
	}
	if resp.SessionID == "" {
		return "", nil, errors.Wrap(ErrMissingField, "start session response missing sessionId")
	}
	if resp.Track == nil {
		return "", nil, errors.Wrap(ErrMissingField, "start session response missing track")
	}

	t, err := convertTrack(resp.Track)
	if err != nil {
		return "", nil, err
	}
	return resp.SessionID, t, nil
}

// TransitionRequest is the payload for next-track and skip-track calls.
type TransitionRequest struct {
	SessionID  string                `json:"sessionId"`
	Format     string                `json:"format"`
	Statistics []telemetry.Statistic `json:"statistics"`
}

type transitionResponse struct {
	Track *rawTrack `json:"track"`
}

// NextTrack advances the session to the next track, reporting accumulated
// statistics for the finished one.
func (c *Client) NextTrack(ctx context.Context, playerID string, req TransitionRequest) (*track.Track, error) {
	return c.transition(ctx, playerID, "/v1/playback/session/next", req)
}

// SkipTrack skips the current track. Same contract as NextTrack against a
// distinct endpoint.
func (c *Client) SkipTrack(ctx context.Context, playerID string, req TransitionRequest) (*track.Track, error) {
	return c.transition(ctx, playerID, "/v1/playback/session/skip", req)
}

func (c *Client) transition(ctx context.Context, playerID, path string, req TransitionRequest) (*track.Track, error) {
	body, err := c.Call(ctx, playerID, http.MethodPost, path, req)
	if err != nil {
		return nil, err
	}

	var resp transitionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to parse transition response")
	}
	if resp.Track == nil {
		return nil, errors.Wrap(ErrMissingField, "transition response missing track")
	}
	return convertTrack(resp.Track)
}

type rawPlaylist struct {
	PlaylistID  string `json:"playlistId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TrackCount  int    `json:"trackCount"`
	ImageURL    string `json:"imageUrl"`
}

type playlistsResponse struct {
	Playlists *[]rawPlaylist `json:"playlists"`
}

// GetPlaylists fetches the playlists available to a player.
func (c *Client) GetPlaylists(ctx context.Context, playerID string) ([]playlist.Playlist, error) {
	body, err := c.Call(ctx, playerID, http.MethodGet, "/v1/playlists", nil)
	if err != nil {
		return nil, err
	}

	var resp playlistsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to parse playlists response")
	}
	if resp.Playlists == nil {
		return nil, errors.Wrap(ErrMissingField, "playlists response missing playlists")
	}

	playlists := make([]playlist.Playlist, 0, len(*resp.Playlists))
	for _, rp := range *resp.Playlists {
		playlists = append(playlists, playlist.Playlist{
			ID:          rp.PlaylistID,
			Name:        rp.Name,
			Description: rp.Description,
			TrackCount:  rp.TrackCount,
			ImageURL:    rp.ImageURL,
		})
	}
	return playlists, nil
}

type purchaseRequest struct {
	ClientReference string `json:"clientReference"`
}

type purchaseResponse struct {
	TransactionID string `json:"transactionId"`
}

// PurchaseBundle creates a purchase transaction for an entitlement bundle and
// returns the backend transaction ID.
func (c *Client) PurchaseBundle(ctx context.Context, playerID, bundleID, clientRef string) (string, error) {
	body, err := c.Call(ctx, playerID, http.MethodPost, "/v1/bundles/"+bundleID+"/purchase", purchaseRequest{
		ClientReference: clientRef,
	})
	if err != nil {
		return "", err
	}

	var resp purchaseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "failed to parse purchase response")
	}
	if resp.TransactionID == "" {
		return "", errors.Wrap(ErrMissingField, "purchase response missing transactionId")
	}
	return resp.TransactionID, nil
}

// ConfirmPaymentRequest is the payload for the payment confirmation endpoint.
type ConfirmPaymentRequest struct {
	TransactionID string `json:"transactionId"`
	Country       string `json:"country"`
	PayType       string `json:"payType"`
	BillingType   string `json:"billingType"`
}

// ConfirmPayment confirms a purchase transaction against the payment backend.
// The endpoint takes no bearer token.
func (c *Client) ConfirmPayment(ctx context.Context, req ConfirmPaymentRequest) error {
	_, err := c.CallUnauthenticated(ctx, http.MethodPost, "/v1/payments/confirm", req)
	return err
}
