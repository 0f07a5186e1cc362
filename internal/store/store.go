// Package store caches catalog responses across sessions in a bbolt database.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/olivier-w/fmap/internal/catalog"
)

var (
	bucketGenres = []byte("genres")
	bucketPages  = []byte("pages")
)

// entry stamps every stored value so stale data can be refused.
type entry struct {
	SavedAt time.Time       `json:"saved_at"`
	Data    json.RawMessage `json:"data"`
}

// CatalogStore keeps genres and track pages. Reads are served from an
// in-memory layer promoted on access; writes go to both layers. Entries
// older than the TTL are treated as missing.
type CatalogStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	cache map[string][]byte
}

// Open opens (or creates) catalog.db under dir. An empty dir gives a
// memory-only store. A zero ttl never expires entries.
func Open(dir string, ttl time.Duration) (*CatalogStore, error) {
	s := &CatalogStore{ttl: ttl, now: time.Now, cache: make(map[string][]byte)}
	if dir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dir, "catalog.db"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketGenres, bucketPages} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s.db = db
	return s, nil
}

// Close closes the database.
func (s *CatalogStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *CatalogStore) get(bucket []byte, key string, dest any) bool {
	cacheKey := string(bucket) + ":" + key

	s.mu.RLock()
	data, ok := s.cache[cacheKey]
	s.mu.RUnlock()

	if !ok {
		if s.db == nil {
			return false
		}
		s.db.View(func(tx *bolt.Tx) error {
			if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
				data = make([]byte, len(v))
				copy(data, v)
			}
			return nil
		})
		if data == nil {
			return false
		}
		s.mu.Lock()
		s.cache[cacheKey] = data
		s.mu.Unlock()
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		log.Warn().Err(err).Str("key", cacheKey).Msg("dropping unreadable cache entry")
		return false
	}
	if s.ttl > 0 && s.now().Sub(e.SavedAt) > s.ttl {
		return false
	}
	return json.Unmarshal(e.Data, dest) == nil
}

func (s *CatalogStore) set(bucket []byte, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry{SavedAt: s.now(), Data: raw})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache[string(bucket)+":"+key] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *CatalogStore) deletePrefix(bucket []byte, prefix string) {
	s.mu.Lock()
	cachePrefix := string(bucket) + ":" + prefix
	for k := range s.cache {
		if strings.HasPrefix(k, cachePrefix) {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetGenres returns the cached genre list.
func (s *CatalogStore) GetGenres() ([]catalog.Genre, bool) {
	var genres []catalog.Genre
	ok := s.get(bucketGenres, "list", &genres)
	return genres, ok
}

// SaveGenres stores the genre list.
func (s *CatalogStore) SaveGenres(genres []catalog.Genre) error {
	return s.set(bucketGenres, "list", genres)
}

func pageKey(genreID string, page int) string {
	return fmt.Sprintf("genre:%s:page:%d", genreID, page)
}

// GetTracks returns a cached track page.
func (s *CatalogStore) GetTracks(genreID string, page int) (catalog.Page[catalog.Track], bool) {
	var p catalog.Page[catalog.Track]
	ok := s.get(bucketPages, pageKey(genreID, page), &p)
	return p, ok
}

// SaveTracks stores a track page.
func (s *CatalogStore) SaveTracks(genreID string, page int, p catalog.Page[catalog.Track]) error {
	return s.set(bucketPages, pageKey(genreID, page), p)
}

// InvalidateGenre drops every cached page of a genre.
func (s *CatalogStore) InvalidateGenre(genreID string) {
	s.deletePrefix(bucketPages, "genre:"+genreID+":")
}

// InvalidateAll drops everything.
func (s *CatalogStore) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string][]byte)
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketGenres, bucketPages} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}
