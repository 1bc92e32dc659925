// Package playlist provides the Playlist domain entity.
package playlist

// Playlist represents a playlist as known to the licensing backend.
type Playlist struct {
	ID          string // Backend playlist ID
	Name        string // Playlist name
	Description string // Playlist description
	TrackCount  int    // Number of tracks, as reported by the backend
	ImageURL    string // Cover image URL
}

// Catalog maps playlist IDs to playlists for one player. It is populated by
// an entitlement-gated fetch and consulted when validating session playlists.
type Catalog map[string]Playlist

// Contains checks if the catalog knows the given playlist ID.
func (c Catalog) Contains(playlistID string) bool {
	_, ok := c[playlistID]
	return ok
}

// IDs returns all playlist IDs in the catalog.
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	return ids
}
