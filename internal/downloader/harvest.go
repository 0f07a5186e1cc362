// Package downloader harvests search results from the catalog site into a
// local download directory.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/olivier-w/fmap/internal/catalog"
	"github.com/olivier-w/fmap/internal/category"
	"github.com/olivier-w/fmap/internal/player"
)

// ErrWrite wraps local failures to store a harvested file.
var ErrWrite = errors.New("download write failed")

// Results is a lazy sequence of search result URLs.
type Results interface {
	Summary(ctx context.Context) (string, error)
	Next(ctx context.Context) (string, error)
}

// Remote resolves and downloads result URLs.
type Remote interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
	Nap(ctx context.Context) error
}

// Categories records which results were already grabbed.
type Categories interface {
	Contains(name category.Name, id string) (bool, error)
	Append(name category.Name, id string, allowDuplicates bool) error
}

// Report summarises a harvest.
type Report struct {
	Summary    string
	Downloaded int
	Skipped    int
	Failed     int
}

// Harvester downloads every search result it has not grabbed before.
type Harvester struct {
	remote Remote
	store  Categories
	fs     afero.Fs
	dir    string

	// OnStatus, when set, receives one line per processed result.
	OnStatus func(string)
}

// NewHarvester creates a Harvester writing under dir.
func NewHarvester(remote Remote, store Categories, fsys afero.Fs, dir string) *Harvester {
	return &Harvester{remote: remote, store: store, fs: fsys, dir: dir}
}

func (h *Harvester) status(format string, args ...any) {
	if h.OnStatus != nil {
		h.OnStatus(fmt.Sprintf(format, args...))
	}
}

// Harvest walks results to the end. A failed download is reported and the
// harvest moves on; a local write failure stops it.
func (h *Harvester) Harvest(ctx context.Context, results Results) (Report, error) {
	var rep Report

	summary, err := results.Summary(ctx)
	if err != nil {
		return rep, err
	}
	rep.Summary = summary
	h.status("%s", summary)

	for {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		u, err := results.Next(ctx)
		if errors.Is(err, catalog.ErrEndOfData) {
			return rep, nil
		}
		if err != nil {
			return rep, err
		}

		done, err := h.store.Contains(category.Grabbed, u)
		if err != nil {
			return rep, err
		}
		if done {
			rep.Skipped++
			log.Debug().Str("url", u).Msg("already grabbed")
			continue
		}

		dest, err := h.Grab(ctx, u)
		switch {
		case errors.Is(err, ErrWrite), errors.Is(err, category.ErrWrite):
			return rep, err
		case errors.Is(err, context.Canceled):
			return rep, err
		case err != nil:
			rep.Failed++
			log.Warn().Err(err).Str("url", u).Msg("failed to download")
			h.status("failed %s: %v", u, err)
			continue
		}
		rep.Downloaded++
		h.status("%s", dest)

		if err := h.remote.Nap(ctx); err != nil {
			return rep, err
		}
	}
}

// Grab resolves and downloads one result URL, records it in the grabbed
// category and returns a display line for it.
func (h *Harvester) Grab(ctx context.Context, u string) (string, error) {
	full, err := h.remote.Resolve(ctx, u)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", u, err)
	}
	data, err := h.remote.Fetch(ctx, full)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", full, err)
	}

	dest := DestPath(h.dir, full)
	if err := h.write(dest, data); err != nil {
		return "", err
	}
	if err := h.store.Append(category.Grabbed, u, false); err != nil {
		return "", err
	}

	meta := player.ParseMetadata(data, dest)
	log.Info().Str("path", dest).Str("track", meta.Name()).Msg("grabbed")
	return fmt.Sprintf("%s -> %s", meta.Name(), dest), nil
}

// write stores data at dest through a temp file so a partial download
// never takes the final name.
func (h *Harvester) write(dest string, data []byte) error {
	if err := h.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	tmp := dest + "." + uuid.NewString() + ".part"
	if err := afero.WriteFile(h.fs, tmp, data, 0o644); err != nil {
		h.fs.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := h.fs.Rename(tmp, dest); err != nil {
		h.fs.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}
