package fma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/olivier-w/fmap/internal/catalog"
	"github.com/olivier-w/fmap/internal/pager"
)

// envelope is the paginated wrapper of every API listing.
type envelope[T any] struct {
	Dataset    []T     `json:"dataset"`
	Page       flexInt `json:"page"`
	TotalPages flexInt `json:"total_pages"`
}

type apiGenre struct {
	ID       flexString `json:"genre_id"`
	ParentID flexString `json:"genre_parent_id"`
	Title    string     `json:"genre_title"`
	Handle   string     `json:"genre_handle"`
}

type apiTrack struct {
	ID           flexString `json:"track_id"`
	Title        string     `json:"track_title"`
	ArtistName   string     `json:"artist_name"`
	AlbumTitle   string     `json:"album_title"`
	Duration     duration   `json:"track_duration"`
	Instrumental flexInt    `json:"track_instrumental"`
	URL          string     `json:"track_url"`
	ListenURL    string     `json:"track_listen_url"`
}

// flexInt decodes numbers that may arrive as JSON strings, empty or null.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("number %q: %w", s, catalog.ErrParse)
	}
	*n = flexInt(v)
	return nil
}

// flexString decodes ids that may arrive as JSON numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

// duration decodes "mm:ss", "hh:mm:ss" or a plain number of seconds.
type duration int

func (d *duration) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	total := 0
	for _, part := range strings.Split(s, ":") {
		v, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("duration %q: %w", s, catalog.ErrParse)
		}
		total = total*60 + v
	}
	*d = duration(total)
	return nil
}

func decode[T any](body []byte) (envelope[T], error) {
	var env envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		if errors.Is(err, catalog.ErrParse) {
			return env, err
		}
		return env, fmt.Errorf("parse response: %v: %w", err, catalog.ErrParse)
	}
	return env, nil
}

func (g apiGenre) genre() (catalog.Genre, error) {
	if g.ID == "" || g.Title == "" {
		return catalog.Genre{}, fmt.Errorf("genre without id or title: %w", catalog.ErrParse)
	}
	return catalog.Genre{
		ID:       string(g.ID),
		Title:    g.Title,
		Handle:   g.Handle,
		ParentID: string(g.ParentID),
	}, nil
}

func (t apiTrack) track(genreID string) (catalog.Track, error) {
	if t.ID == "" || t.Title == "" {
		return catalog.Track{}, fmt.Errorf("track without id or title: %w", catalog.ErrParse)
	}
	download := t.ListenURL
	if download == "" && t.URL != "" {
		download = strings.TrimSuffix(t.URL, "/") + "/download"
	}
	return catalog.Track{
		ID:           string(t.ID),
		Title:        t.Title,
		Artist:       t.ArtistName,
		Album:        t.AlbumTitle,
		Duration:     int(t.Duration),
		Instrumental: t.Instrumental != 0,
		GenreID:      genreID,
		PageURL:      t.URL,
		DownloadURL:  download,
	}, nil
}

// Genres lists every genre, walking all API pages.
func (c *Client) Genres(ctx context.Context) ([]catalog.Genre, error) {
	p := pager.New(c.genrePage)
	var genres []catalog.Genre
	for {
		items, err := p.NextPage(ctx)
		if errors.Is(err, catalog.ErrEndOfData) {
			break
		}
		if err != nil {
			return nil, err
		}
		genres = append(genres, items...)
	}
	log.Debug().Int("count", len(genres)).Msg("listed genres")
	return genres, nil
}

func (c *Client) genrePage(ctx context.Context, page int) (catalog.Page[catalog.Genre], error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	body, err := c.getBytes(ctx, c.apiQuery("genres.json", params))
	if err != nil {
		return catalog.Page[catalog.Genre]{}, fmt.Errorf("fetching genre page %d: %w", page, err)
	}
	env, err := decode[apiGenre](body)
	if err != nil {
		return catalog.Page[catalog.Genre]{}, fmt.Errorf("genre page %d: %w", page, err)
	}

	out := catalog.Page[catalog.Genre]{Page: int(env.Page), TotalPages: int(env.TotalPages)}
	for _, g := range env.Dataset {
		genre, err := g.genre()
		if err != nil {
			return catalog.Page[catalog.Genre]{}, err
		}
		out.Items = append(out.Items, genre)
	}
	if out.Page == 0 {
		out.Page = page
	}
	return out, nil
}

// Tracks fetches one page of tracks for a genre.
func (c *Client) Tracks(ctx context.Context, genreID string, page int) (catalog.Page[catalog.Track], error) {
	params := url.Values{}
	params.Set("genre_id", genreID)
	params.Set("page", strconv.Itoa(page))
	body, err := c.getBytes(ctx, c.apiQuery("tracks.json", params))
	if err != nil {
		return catalog.Page[catalog.Track]{}, fmt.Errorf("fetching page %d: %w", page, err)
	}
	env, err := decode[apiTrack](body)
	if err != nil {
		return catalog.Page[catalog.Track]{}, fmt.Errorf("track page %d: %w", page, err)
	}

	out := catalog.Page[catalog.Track]{Page: int(env.Page), TotalPages: int(env.TotalPages)}
	for _, t := range env.Dataset {
		track, err := t.track(genreID)
		if err != nil {
			log.Warn().Err(err).Str("genre", genreID).Int("page", page).Msg("skipping malformed track")
			continue
		}
		out.Items = append(out.Items, track)
	}
	if len(env.Dataset) > 0 && len(out.Items) == 0 {
		return catalog.Page[catalog.Track]{}, fmt.Errorf("track page %d: no usable tracks: %w", page, catalog.ErrParse)
	}
	if out.Page == 0 {
		out.Page = page
	}
	log.Debug().Str("genre", genreID).Int("page", out.Page).Int("total", out.TotalPages).Int("count", len(out.Items)).Msg("fetched tracks")
	return out, nil
}
