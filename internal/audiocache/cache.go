// Package audiocache stores downloaded tracks as <dir>/<id>.mp3.
package audiocache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/olivier-w/fmap/internal/catalog"
)

// ErrWrite wraps local failures to store a downloaded track.
var ErrWrite = errors.New("audio cache write failed")

// Source resolves and downloads track audio.
type Source interface {
	catalog.StreamResolver
	catalog.Fetcher
}

// Cache maps track ids to local audio files, downloading on first use.
type Cache struct {
	fs  afero.Fs
	dir string
	src Source
}

// New creates a Cache rooted at dir.
func New(fsys afero.Fs, dir string, src Source) *Cache {
	return &Cache{fs: fsys, dir: dir, src: src}
}

// PathFor returns where the track with id is (or would be) cached.
func (c *Cache) PathFor(id string) string {
	return filepath.Join(c.dir, id+".mp3")
}

// Has reports whether the track is already cached. Tracks that are not
// cached yet count as new.
func (c *Cache) Has(id string) bool {
	if !validID(id) {
		return false
	}
	ok, err := afero.Exists(c.fs, c.PathFor(id))
	return err == nil && ok
}

// Path returns the local file for t, downloading it first when absent.
// Network errors are returned as is; storage errors wrap ErrWrite.
func (c *Cache) Path(ctx context.Context, t catalog.Track) (string, error) {
	if !validID(t.ID) {
		return "", fmt.Errorf("invalid track id %q", t.ID)
	}
	path := c.PathFor(t.ID)
	if c.Has(t.ID) {
		return path, nil
	}

	streamURL, err := c.src.StreamURL(ctx, t)
	if err != nil {
		return "", fmt.Errorf("resolving stream for %s: %w", t.ID, err)
	}
	data, err := c.src.Fetch(ctx, streamURL)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", t.ID, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("downloading %s: empty response", t.ID)
	}

	if err := c.store(path, t, data); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}
	log.Info().Str("id", t.ID).Int("bytes", len(data)).Str("path", path).Msg("track cached")
	return path, nil
}

// Remove deletes a cached track, for example after it failed to decode.
func (c *Cache) Remove(id string) error {
	if !validID(id) {
		return nil
	}
	err := c.fs.Remove(c.PathFor(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (c *Cache) store(path string, t catalog.Track, data []byte) error {
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.%s.part", path, uuid.NewString())
	f, err := c.fs.Create(tmp)
	if err != nil {
		return err
	}
	cleanup := func() { c.fs.Remove(tmp) }

	if !bytes.HasPrefix(data, []byte("ID3")) && t.Title != "" {
		tag := id3v2.NewEmptyTag()
		tag.SetDefaultEncoding(id3v2.EncodingUTF8)
		tag.SetTitle(t.Title)
		if t.Artist != "" {
			tag.SetArtist(t.Artist)
		}
		if t.Album != "" {
			tag.SetAlbum(t.Album)
		}
		if _, err := tag.WriteTo(f); err != nil {
			f.Close()
			cleanup()
			return fmt.Errorf("writing tag: %w", err)
		}
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return err
	}
	if err := c.fs.Rename(tmp, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
