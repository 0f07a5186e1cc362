// Package category keeps per-category track id lists in flat files,
// one id per line, under a data directory.
package category

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// ErrWrite wraps any failure to persist a category file.
var ErrWrite = errors.New("category write failed")

// Name identifies a category file.
type Name string

const (
	Favourites Name = "favourites"
	Hates      Name = "hates"
	Endeds     Name = "endeds"
	Skipped    Name = "skipped"
	Failed     Name = "failed"
	// Grabbed holds the search result URLs already downloaded by the harvester.
	Grabbed Name = "grabbed"
)

// Names lists every category.
var Names = []Name{Favourites, Hates, Endeds, Skipped, Failed, Grabbed}

// ParseName maps a user-supplied word to a category, ignoring case.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Names, n) {
		return n, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// AllowsDuplicates reports whether the category is a log (repeats kept)
// rather than a set.
func (n Name) AllowsDuplicates() bool {
	switch n {
	case Endeds, Skipped, Failed:
		return true
	}
	return false
}

// Store is a read-through cache over the category files. After a successful
// write the cache holds exactly what was written; after a failed write the
// entry is dropped so the next read goes back to disk.
type Store struct {
	fs  afero.Fs
	dir string

	mu    sync.Mutex
	cache map[Name][]string
}

// New creates a Store rooted at dir on fsys.
func New(fsys afero.Fs, dir string) *Store {
	return &Store{
		fs:    fsys,
		dir:   dir,
		cache: make(map[Name][]string),
	}
}

// NewOS creates a Store on the real filesystem.
func NewOS(dir string) *Store {
	return New(afero.NewOsFs(), dir)
}

// Path returns the file backing a category.
func (s *Store) Path(name Name) string {
	return filepath.Join(s.dir, string(name)+".txt")
}

// Contains reports whether id is recorded in the category.
func (s *Store) Contains(name Name, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked(name)
	if err != nil {
		return false, err
	}
	return slices.Contains(items, id), nil
}

// Items returns a copy of the category's ids in file order.
func (s *Store) Items(name Name) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked(name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(items), nil
}

// Append records id in the category and rewrites its file. When
// allowDuplicates is false and id is already present nothing is written.
func (s *Store) Append(name Name, id string, allowDuplicates bool) error {
	if id == "" || strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("invalid id %q for category %s", id, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked(name)
	if err != nil {
		return err
	}
	if !allowDuplicates && slices.Contains(items, id) {
		return nil
	}

	next := append(slices.Clone(items), id)
	if err := s.writeLocked(name, next); err != nil {
		delete(s.cache, name)
		log.Error().Err(err).Str("category", string(name)).Str("id", id).Msg("category write failed")
		return fmt.Errorf("%w: %s: %w", ErrWrite, name, err)
	}
	s.cache[name] = next

	log.Debug().Str("category", string(name)).Str("id", id).Int("size", len(next)).Msg("category appended")
	return nil
}

func (s *Store) loadLocked(name Name) ([]string, error) {
	if items, ok := s.cache[name]; ok {
		return items, nil
	}

	data, err := afero.ReadFile(s.fs, s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.cache[name] = nil
			return nil, nil
		}
		return nil, fmt.Errorf("reading category %s: %w", name, err)
	}

	items := parseLines(string(data))
	s.cache[name] = items
	return items, nil
}

func (s *Store) writeLocked(name Name, items []string) error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data := strings.Join(items, "\n")
	if data != "" {
		data += "\n"
	}
	return afero.WriteFile(s.fs, s.Path(name), []byte(data), 0o644)
}

func parseLines(data string) []string {
	var items []string
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		items = append(items, line)
	}
	return items
}
