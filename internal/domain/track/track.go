// Package track provides the Track domain entity.
package track

// Licensing holds server-internal licensing metadata carried in the raw
// track's custom field. It never leaves the process.
type Licensing struct {
	Licensor    string   // Rights holder name
	Territories []string // ISO country codes the track is cleared for
	Catalog     string   // Licensor catalog reference
}

// Track represents a track as returned by the licensing backend.
// AssetKey is the raw decryption key and must not be handed to clients.
type Track struct {
	ID        string    // Backend track ID
	Title     string    // Track title
	Artists   []string  // Artist names
	AssetKey  string    // Raw asset decryption key
	Liked     bool      // Like state for the requesting player
	Licensing Licensing // Server-internal metadata, dropped from projections
}

// ClientTrack is the projection handed to the game client. The raw asset key
// is replaced by a per-player sealed variant and internal metadata is dropped.
type ClientTrack struct {
	ID        string   `json:"trackId"`
	Title     string   `json:"title"`
	Artists   []string `json:"artists"`
	SealedKey string   `json:"assetKey"`
	Liked     bool     `json:"liked"`
}

// Project builds the client-facing projection with the given sealed key.
func (t *Track) Project(sealedKey string) ClientTrack {
	return ClientTrack{
		ID:        t.ID,
		Title:     t.Title,
		Artists:   t.Artists,
		SealedKey: sealedKey,
		Liked:     t.Liked,
	}
}

// ClearedFor checks if the track is cleared for the given country.
// An empty territory list means worldwide clearance.
func (t *Track) ClearedFor(country string) bool {
	if len(t.Licensing.Territories) == 0 {
		return true
	}
	for _, c := range t.Licensing.Territories {
		if c == country {
			return true
		}
	}
	return false
}
