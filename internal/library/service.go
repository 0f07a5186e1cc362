// Package library puts a persistent cache and genre lookup in front of a
// catalog source.
package library

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/rs/zerolog/log"
	"github.com/sahilm/fuzzy"

	"github.com/olivier-w/fmap/internal/catalog"
)

// ErrNoGenres is returned when a genre lookup has nothing to choose from.
var ErrNoGenres = errors.New("no genres")

// similarityThreshold is the JaroWinkler score a title needs to count as a
// typo match when fuzzy matching finds nothing.
const similarityThreshold = 0.8

// Store is the persistent cache the service reads through.
type Store interface {
	GetGenres() ([]catalog.Genre, bool)
	SaveGenres([]catalog.Genre) error
	GetTracks(genreID string, page int) (catalog.Page[catalog.Track], bool)
	SaveTracks(genreID string, page int, p catalog.Page[catalog.Track]) error
	InvalidateGenre(genreID string)
}

// Service is a catalog.Source that caches genres and track pages.
type Service struct {
	src   catalog.Source
	store Store

	mu     sync.Mutex
	genres []catalog.Genre
}

// NewService creates a Service. store may be nil to disable persistence.
func NewService(src catalog.Source, store Store) *Service {
	return &Service{src: src, store: store}
}

// Genres returns every genre, from memory, then the store, then the source.
func (s *Service) Genres(ctx context.Context) ([]catalog.Genre, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.genres != nil {
		return s.genres, nil
	}
	if s.store != nil {
		if genres, ok := s.store.GetGenres(); ok && len(genres) > 0 {
			log.Debug().Int("count", len(genres)).Msg("genres from cache")
			s.genres = genres
			return genres, nil
		}
	}

	genres, err := s.src.Genres(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch genres")
		return nil, err
	}
	sort.SliceStable(genres, func(i, j int) bool {
		return strings.ToLower(genres[i].Title) < strings.ToLower(genres[j].Title)
	})
	if s.store != nil {
		if err := s.store.SaveGenres(genres); err != nil {
			log.Error().Err(err).Msg("failed to save genres")
		}
	}
	log.Debug().Int("count", len(genres)).Msg("fetched genres")
	s.genres = genres
	return genres, nil
}

// ParentGenres returns the top-level genres.
func (s *Service) ParentGenres(ctx context.Context) ([]catalog.Genre, error) {
	genres, err := s.Genres(ctx)
	if err != nil {
		return nil, err
	}
	var parents []catalog.Genre
	for _, g := range genres {
		if g.IsParent() {
			parents = append(parents, g)
		}
	}
	return parents, nil
}

// genreIndex implements fuzzy.Source over lowercase genre titles.
type genreIndex []catalog.Genre

func (idx genreIndex) String(i int) string { return strings.ToLower(idx[i].Title) }
func (idx genreIndex) Len() int            { return len(idx) }

// SearchGenres returns genres whose title matches term, best match first.
// When no title contains the term's letters in order, titles close to it
// by JaroWinkler similarity are returned instead.
func (s *Service) SearchGenres(ctx context.Context, term string) ([]catalog.Genre, error) {
	genres, err := s.Genres(ctx)
	if err != nil {
		return nil, err
	}
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return genres, nil
	}

	idx := genreIndex(genres)
	matches := fuzzy.FindFrom(term, idx)
	if len(matches) > 0 {
		out := make([]catalog.Genre, len(matches))
		for i, m := range matches {
			out[i] = idx[m.Index]
		}
		return out, nil
	}

	type scored struct {
		genre catalog.Genre
		score float64
	}
	jw := metrics.NewJaroWinkler()
	var near []scored
	for _, g := range genres {
		if sim := strutil.Similarity(term, strings.ToLower(g.Title), jw); sim >= similarityThreshold {
			near = append(near, scored{g, sim})
		}
	}
	sort.SliceStable(near, func(i, j int) bool { return near[i].score > near[j].score })
	out := make([]catalog.Genre, len(near))
	for i, c := range near {
		out[i] = c.genre
	}
	return out, nil
}

// RandomGenre picks a genre at random, optionally among top-level genres only.
func (s *Service) RandomGenre(ctx context.Context, parentsOnly bool) (catalog.Genre, error) {
	var (
		genres []catalog.Genre
		err    error
	)
	if parentsOnly {
		genres, err = s.ParentGenres(ctx)
	} else {
		genres, err = s.Genres(ctx)
	}
	if err != nil {
		return catalog.Genre{}, err
	}
	if len(genres) == 0 {
		return catalog.Genre{}, ErrNoGenres
	}
	return genres[rand.IntN(len(genres))], nil
}

// Tracks returns a track page, from the store when fresh. A first page
// fetched from the source drops the genre's other cached pages, since the
// remote listing may have shifted underneath them.
func (s *Service) Tracks(ctx context.Context, genreID string, page int) (catalog.Page[catalog.Track], error) {
	if s.store != nil {
		if p, ok := s.store.GetTracks(genreID, page); ok {
			log.Debug().Str("genre", genreID).Int("page", page).Msg("tracks from cache")
			return p, nil
		}
	}

	p, err := s.src.Tracks(ctx, genreID, page)
	if err != nil {
		return p, err
	}
	if s.store != nil && page == 1 {
		s.store.InvalidateGenre(genreID)
	}
	if s.store != nil && len(p.Items) > 0 {
		if err := s.store.SaveTracks(genreID, page, p); err != nil {
			log.Error().Err(err).Str("genre", genreID).Int("page", page).Msg("failed to save tracks")
		}
	}
	return p, nil
}

// StreamURL resolves the direct download URL of a track.
func (s *Service) StreamURL(ctx context.Context, t catalog.Track) (string, error) {
	return s.src.StreamURL(ctx, t)
}

// Fetch downloads raw bytes.
func (s *Service) Fetch(ctx context.Context, url string) ([]byte, error) {
	return s.src.Fetch(ctx, url)
}
