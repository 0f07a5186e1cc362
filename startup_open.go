package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/olivier-w/fmap/internal/audiocache"
	"github.com/olivier-w/fmap/internal/catalog/fma"
	"github.com/olivier-w/fmap/internal/category"
	"github.com/olivier-w/fmap/internal/config"
	"github.com/olivier-w/fmap/internal/downloader"
	"github.com/olivier-w/fmap/internal/library"
	"github.com/olivier-w/fmap/internal/mpd"
	"github.com/olivier-w/fmap/internal/playback"
	"github.com/olivier-w/fmap/internal/player"
	"github.com/olivier-w/fmap/internal/queue"
	"github.com/olivier-w/fmap/internal/store"
	"github.com/olivier-w/fmap/internal/ui"
)

const closeTimeout = 2 * time.Second

// app holds every long-lived component of a session.
type app struct {
	cfg        *config.Config
	client     *fma.Client
	catalog    *store.CatalogStore
	library    *library.Service
	categories *category.Store
	cache      *audiocache.Cache
	queue      *queue.Queue
	controller *playback.Controller
	loop       *playback.Loop
	closers    []func() error
}

// openCatalog opens the catalog side: HTTP client, cached catalog store,
// category files and the library service. It does not touch audio output.
func openCatalog(cfg *config.Config) (*app, error) {
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	opts := []fma.Option{
		fma.WithAPIURL(cfg.Catalog.APIURL),
		fma.WithSiteURL(cfg.Catalog.SiteURL),
		fma.WithAPIKey(cfg.Catalog.APIKey),
		fma.WithPageLimit(cfg.Catalog.PageLimit),
		fma.WithNap(cfg.Catalog.NapMin, cfg.Catalog.NapMax),
	}
	if cfg.Catalog.RequestInterval > 0 {
		opts = append(opts, fma.WithLimiter(rate.NewLimiter(rate.Every(cfg.Catalog.RequestInterval), 1)))
	}
	client := fma.NewClient(opts...)

	st, err := store.Open(cfg.Paths.DataDir, cfg.Catalog.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("opening catalog store: %w", err)
	}

	a := &app{
		cfg:        cfg,
		client:     client,
		catalog:    st,
		library:    library.NewService(client, st),
		categories: category.NewOS(cfg.Paths.DataDir),
	}
	a.closers = append(a.closers, st.Close)
	return a, nil
}

// openPlayback adds the queue, audio cache, backend and the playback loop.
func (a *app) openPlayback() {
	backend, closeBackend := openBackend(a.cfg)
	a.closers = append(a.closers, closeBackend)

	a.cache = audiocache.New(afero.NewOsFs(), a.cfg.Paths.CacheDir, a.library)
	a.queue = queue.New(a.library)
	a.queue.SetShuffle(a.cfg.Playback.Shuffle)

	settings := playback.NewSettings(a.cfg.Playback.OnlyNew, a.cfg.Playback.OnlyInstrumental)
	a.controller = playback.NewController(a.queue, a.categories, a.cache, backend, settings)
	a.loop = playback.NewLoop(a.controller, a.cfg.Playback.PollInterval)
}

func openBackend(cfg *config.Config) (playback.Backend, func() error) {
	switch cfg.Playback.Backend {
	case config.BackendMPD:
		b := mpd.New(cfg.MPD.Network, cfg.MPD.Addr, cfg.MPD.Password, 0)
		if err := b.Connect(); err != nil {
			// Load reconnects, so a daemon started later is still picked up.
			log.Warn().Err(err).Str("addr", cfg.MPD.Addr).Msg("mpd not reachable yet")
		}
		return b, b.Close
	default:
		e := player.NewEngine()
		e.AdjustVolume(cfg.Playback.Volume - e.Volume())
		return e, func() error {
			e.Close()
			return nil
		}
	}
}

// harvester builds the grab pipeline writing into the download directory.
func (a *app) harvester() (*downloader.Harvester, error) {
	if err := os.MkdirAll(a.cfg.Paths.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", a.cfg.Paths.DownloadDir, err)
	}
	return downloader.NewHarvester(a.client, a.categories, afero.NewOsFs(), a.cfg.Paths.DownloadDir), nil
}

// warm loads the parent genres so the genre picker opens without a round trip.
func (a *app) warm(ctx context.Context, status func(string)) error {
	status("Loading genres...")
	genres, err := a.library.ParentGenres(ctx)
	if err != nil {
		return fmt.Errorf("loading genres: %w", err)
	}
	status(fmt.Sprintf("%d genres", len(genres)))
	return nil
}

// buildPlaybackModel warms the catalog and returns the now-playing model.
func buildPlaybackModel(ctx context.Context, a *app, status func(string)) (ui.Model, error) {
	if err := a.warm(ctx, status); err != nil {
		// The picker retries on demand; a cold start is not fatal.
		if errors.Is(err, context.Canceled) {
			return ui.Model{}, err
		}
		log.Warn().Err(err).Msg("genre warm-up failed")
	}
	return ui.New(ctx, a.controller, a.loop, a.library), nil
}

// Close stops the playback loop and releases the backend and catalog store.
func (a *app) Close() {
	if a.loop != nil && a.loop.Running() {
		a.loop.Stop()
		select {
		case <-a.loop.Done():
		case <-time.After(closeTimeout):
			log.Warn().Msg("playback loop did not stop in time")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Debug().Err(err).Msg("closing")
		}
	}
}
