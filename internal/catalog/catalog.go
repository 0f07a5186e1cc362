// Package catalog defines the music catalog model shared by sources, the
// play queue and the UIs.
package catalog

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrEndOfData is returned by paginated sequences once no further items exist.
	ErrEndOfData = errors.New("end of data")
	// ErrNotFound is returned when the catalog has no such resource.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited is returned when the catalog rejects a request with 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrTemporary is returned for gateway and availability errors worth retrying later.
	ErrTemporary = errors.New("temporary failure")
	// ErrParse is returned when a catalog response is missing required fields.
	ErrParse = errors.New("malformed catalog response")
)

// Track is a single playable catalog entry.
type Track struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Artist       string `json:"artist,omitempty"`
	Album        string `json:"album,omitempty"`
	Duration     int    `json:"duration,omitempty"` // seconds
	Instrumental bool   `json:"instrumental,omitempty"`
	GenreID      string `json:"genre_id,omitempty"`
	PageURL      string `json:"page_url,omitempty"`
	DownloadURL  string `json:"download_url,omitempty"`
}

// DisplayName returns "Artist - Title", or just the title when the artist is unknown.
func (t Track) DisplayName() string {
	if t.Artist == "" {
		return t.Title
	}
	return t.Artist + " - " + t.Title
}

// Genre is a catalog genre. Genres without a parent are top-level ("parent") genres.
type Genre struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Handle   string `json:"handle,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// IsParent reports whether the genre is top-level.
func (g Genre) IsParent() bool {
	return g.ParentID == "" || g.ParentID == "0"
}

// FilterValue implements list.Item for the genre picker.
func (g Genre) FilterValue() string {
	return strings.ToLower(g.Title)
}

// Page is one page of a paginated catalog listing.
type Page[T any] struct {
	Items      []T
	Page       int // page number as reported by the source
	TotalPages int // 0 when the source does not declare it
}

// GenreLister lists every genre in the catalog.
type GenreLister interface {
	Genres(ctx context.Context) ([]Genre, error)
}

// TrackLister fetches one page of tracks for a genre.
type TrackLister interface {
	Tracks(ctx context.Context, genreID string, page int) (Page[Track], error)
}

// StreamResolver resolves the direct download URL of a track.
type StreamResolver interface {
	StreamURL(ctx context.Context, t Track) (string, error)
}

// Fetcher downloads raw bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Source is the full content source used by the player.
type Source interface {
	GenreLister
	TrackLister
	StreamResolver
	Fetcher
}
