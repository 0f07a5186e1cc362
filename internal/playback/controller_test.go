package playback

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/olivier-w/fmap/internal/audiocache"
	"github.com/olivier-w/fmap/internal/catalog"
	"github.com/olivier-w/fmap/internal/category"
	"github.com/olivier-w/fmap/internal/queue"
)

type stubLister struct {
	pages map[string][][]catalog.Track
}

func (s *stubLister) Tracks(_ context.Context, genreID string, page int) (catalog.Page[catalog.Track], error) {
	pages := s.pages[genreID]
	if page > len(pages) {
		return catalog.Page[catalog.Track]{Page: page, TotalPages: len(pages)}, nil
	}
	return catalog.Page[catalog.Track]{Items: pages[page-1], Page: page, TotalPages: len(pages)}, nil
}

type fakeBackend struct {
	mu       sync.Mutex
	loads    []string
	gen      uint64
	pauses   int
	resumes  int
	stops    int
	failLoad map[string]bool
	events   chan Event
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{failLoad: map[string]bool{}, events: make(chan Event, 8)}
}

func (b *fakeBackend) Load(path string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLoad[path] {
		return 0, errors.New("cannot decode")
	}
	b.gen++
	b.loads = append(b.loads, path)
	return b.gen, nil
}

func (b *fakeBackend) Pause() error  { b.pauses++; return nil }
func (b *fakeBackend) Resume() error { b.resumes++; return nil }
func (b *fakeBackend) Stop() error   { b.stops++; return nil }

func (b *fakeBackend) Events() <-chan Event { return b.events }

func (b *fakeBackend) loaded() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.loads...)
}

type fakeCache struct {
	cached   map[string]bool
	failing  map[string]error
	removed  []string
	requests []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{cached: map[string]bool{}, failing: map[string]error{}}
}

func (c *fakeCache) Has(id string) bool { return c.cached[id] }

func (c *fakeCache) Path(_ context.Context, t catalog.Track) (string, error) {
	c.requests = append(c.requests, t.ID)
	if err := c.failing[t.ID]; err != nil {
		return "", err
	}
	c.cached[t.ID] = true
	return "/cache/" + t.ID + ".mp3", nil
}

func (c *fakeCache) Remove(id string) error {
	c.removed = append(c.removed, id)
	delete(c.cached, id)
	return nil
}

type writeFailFs struct {
	afero.Fs
	fail bool
}

func (f *writeFailFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if f.fail && flag&os.O_WRONLY != 0 {
		return nil, os.ErrPermission
	}
	return f.Fs.OpenFile(name, flag, perm)
}

type harness struct {
	ctrl    *Controller
	backend *fakeBackend
	cache   *fakeCache
	store   *category.Store
	fs      *writeFailFs
}

func track(id string, instrumental bool) catalog.Track {
	return catalog.Track{ID: id, Title: "Track " + id, Instrumental: instrumental}
}

func newHarness(t *testing.T, pages ...[]catalog.Track) *harness {
	t.Helper()
	lister := &stubLister{pages: map[string][][]catalog.Track{"g": pages}}
	q := queue.New(lister)
	q.SetGenre(catalog.Genre{ID: "g", Title: "Genre"})

	fsys := &writeFailFs{Fs: afero.NewMemMapFs()}
	store := category.New(fsys, "/data")
	b := newFakeBackend()
	c := newFakeCache()
	return &harness{
		ctrl:    NewController(q, store, c, b, NewSettings(false, false)),
		backend: b,
		cache:   c,
		store:   store,
		fs:      fsys,
	}
}

func (h *harness) items(t *testing.T, name category.Name) []string {
	t.Helper()
	items, err := h.store.Items(name)
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	return items
}

func TestHatedOnlyTrackEndsQueueWithoutLoad(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", false)})
	h.store.Append(category.Hates, "A", false)

	err := h.ctrl.RequestPlay(context.Background())
	if !errors.Is(err, queue.ErrEndOfQueue) {
		t.Fatalf("expected ErrEndOfQueue, got %v", err)
	}
	if len(h.backend.loaded()) != 0 {
		t.Fatalf("expected no load, got %v", h.backend.loaded())
	}
	if h.ctrl.State() != Stopped {
		t.Fatalf("expected stopped, got %s", h.ctrl.State())
	}
}

func TestAdmissionChainSkipsHatedAndNonInstrumental(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", true), track("B", true), track("C", false)})
	h.store.Append(category.Hates, "A", false)
	h.ctrl.Settings().SetOnlyInstrumental(true)

	if err := h.ctrl.RequestPlay(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.backend.loaded(); !reflect.DeepEqual(got, []string{"/cache/B.mp3"}) {
		t.Fatalf("expected B loaded, got %v", got)
	}
	if len(h.items(t, category.Skipped)) != 0 {
		t.Fatal("policy skips must not be recorded as skipped")
	}
	if h.ctrl.Snapshot().Track.ID != "B" {
		t.Fatalf("expected B current, got %q", h.ctrl.Snapshot().Track.ID)
	}
}

func TestOnlyInstrumentalSkipsToNextPage(t *testing.T) {
	h := newHarness(t,
		[]catalog.Track{track("A", false)},
		[]catalog.Track{track("B", true)},
	)
	h.ctrl.Settings().SetOnlyInstrumental(true)

	if err := h.ctrl.RequestPlay(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.backend.loaded(); !reflect.DeepEqual(got, []string{"/cache/B.mp3"}) {
		t.Fatalf("expected B from page 2, got %v", got)
	}
}

func TestOnlyNewSkipsCachedTracks(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", false), track("B", false)})
	h.cache.cached["A"] = true
	h.ctrl.Settings().SetOnlyNew(true)

	if err := h.ctrl.RequestPlay(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.backend.loaded(); !reflect.DeepEqual(got, []string{"/cache/B.mp3"}) {
		t.Fatalf("expected B, got %v", got)
	}
}

func TestTrackEndedRecordsAndAdvances(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("B", false), track("C", false)})
	h.ctrl.RequestPlay(context.Background())

	if err := h.ctrl.OnTrackEnded(context.Background(), h.backend.gen); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.items(t, category.Endeds); !reflect.DeepEqual(got, []string{"B"}) {
		t.Fatalf("expected endeds [B], got %v", got)
	}
	if got := h.backend.loaded(); !reflect.DeepEqual(got, []string{"/cache/B.mp3", "/cache/C.mp3"}) {
		t.Fatalf("expected C loaded after B, got %v", got)
	}
	if len(h.items(t, category.Skipped)) != 0 {
		t.Fatal("natural ends must not be recorded as skipped")
	}
	if snap := h.ctrl.Snapshot(); snap.Page != 1 || snap.Index != 1 {
		t.Fatalf("expected page 1 index 1, got %d/%d", snap.Page, snap.Index)
	}
}

func TestStaleTrackEndIgnored(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", false), track("B", false)})
	h.ctrl.RequestPlay(context.Background())

	if err := h.ctrl.OnTrackEnded(context.Background(), h.backend.gen+7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.items(t, category.Endeds)) != 0 || len(h.backend.loaded()) != 1 {
		t.Fatal("expected stale event to change nothing")
	}
}

func TestRequestNextRecordsSkipped(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", false), track("B", false)})
	h.ctrl.RequestPlay(context.Background())

	if err := h.ctrl.RequestNext(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.items(t, category.Skipped); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("expected skipped [A], got %v", got)
	}
	if got := h.backend.loaded(); len(got) != 2 || got[1] != "/cache/B.mp3" {
		t.Fatalf("expected B loaded, got %v", got)
	}
	if h.backend.stops == 0 {
		t.Fatal("expected backend stopped before the next load")
	}
}

func TestDownloadFailureRecordsFailedAndAdvances(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", false), track("B", false)})
	h.cache.failing["A"] = errors.New("connection reset")

	if err := h.ctrl.RequestPlay(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.items(t, category.Failed); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("expected failed [A], got %v", got)
	}
	if got := h.backend.loaded(); !reflect.DeepEqual(got, []string{"/cache/B.mp3"}) {
		t.Fatalf("expected B loaded, got %v", got)
	}
}

func TestLoadFailureRecordsFailedAndDropsCachedFile(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", false), track("B", false)})
	h.backend.failLoad["/cache/A.mp3"] = true

	if err := h.ctrl.RequestPlay(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := h.items(t, category.Failed); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("expected failed [A], got %v", got)
	}
	if !reflect.DeepEqual(h.cache.removed, []string{"A"}) {
		t.Fatalf("expected cached A removed, got %v", h.cache.removed)
	}
}

func TestCacheWriteFailureAborts(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", false), track("B", false)})
	h.cache.failing["A"] = audiocache.ErrWrite

	err := h.ctrl.RequestPlay(context.Background())
	if !errors.Is(err, audiocache.ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}
	if len(h.backend.loaded()) != 0 {
		t.Fatal("expected no load after storage failure")
	}
	if h.ctrl.Snapshot().Err == nil {
		t.Fatal("expected error surfaced in snapshot")
	}
}

func TestCategoryWriteFailureAbortsNext(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", false), track("B", false)})
	h.ctrl.RequestPlay(context.Background())

	h.fs.fail = true
	err := h.ctrl.RequestNext(context.Background())
	if !errors.Is(err, category.ErrWrite) {
		t.Fatalf("expected category.ErrWrite, got %v", err)
	}
	if len(h.backend.loaded()) != 1 {
		t.Fatalf("expected no further load, got %v", h.backend.loaded())
	}
	if h.ctrl.State() != Stopped {
		t.Fatalf("expected stopped after storage failure, got %s", h.ctrl.State())
	}
}

func TestPauseToggles(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", false)})

	// Pause while stopped plays.
	if err := h.ctrl.RequestPause(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ctrl.State() != Playing || len(h.backend.loaded()) != 1 {
		t.Fatalf("expected playing A, got %s", h.ctrl.State())
	}

	h.ctrl.RequestPause(context.Background())
	if h.ctrl.State() != Paused || h.backend.pauses != 1 {
		t.Fatalf("expected paused, got %s", h.ctrl.State())
	}

	// Play while paused resumes instead of reloading.
	h.ctrl.RequestPlay(context.Background())
	if h.ctrl.State() != Playing || h.backend.resumes != 1 || len(h.backend.loaded()) != 1 {
		t.Fatalf("expected resumed playback, got %s with %d loads", h.ctrl.State(), len(h.backend.loaded()))
	}
}

func TestRequestPlayWhilePlayingIsNoop(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", false), track("B", false)})
	h.ctrl.RequestPlay(context.Background())
	h.ctrl.RequestPlay(context.Background())
	if len(h.backend.loaded()) != 1 {
		t.Fatalf("expected a single load, got %v", h.backend.loaded())
	}
}

func TestSetGenreRestartsOnNextPlay(t *testing.T) {
	lister := &stubLister{pages: map[string][][]catalog.Track{
		"g1": {{track("A", false)}},
		"g2": {{track("X", false)}},
	}}
	q := queue.New(lister)
	q.SetGenre(catalog.Genre{ID: "g1"})
	b := newFakeBackend()
	c := NewController(q, category.New(afero.NewMemMapFs(), "/data"), newFakeCache(), b, nil)
	c.RequestPlay(context.Background())

	c.SetGenre(catalog.Genre{ID: "g2", Title: "Other"})
	if err := c.RequestPlay(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := b.loaded(); !reflect.DeepEqual(got, []string{"/cache/A.mp3", "/cache/X.mp3"}) {
		t.Fatalf("expected X after genre change, got %v", got)
	}
	if c.Snapshot().Genre.ID != "g2" {
		t.Fatalf("expected g2 in snapshot, got %q", c.Snapshot().Genre.ID)
	}
}

func TestFavouriteAndHateMarkCurrentTrack(t *testing.T) {
	h := newHarness(t, []catalog.Track{track("A", false)})
	h.ctrl.RequestPlay(context.Background())

	h.ctrl.Favourite()
	h.ctrl.Favourite()
	h.ctrl.Hate()
	if got := h.items(t, category.Favourites); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("expected favourites [A], got %v", got)
	}
	if got := h.items(t, category.Hates); !reflect.DeepEqual(got, []string{"A"}) {
		t.Fatalf("expected hates [A], got %v", got)
	}
}

func TestToggleSettings(t *testing.T) {
	h := newHarness(t)
	if !h.ctrl.ToggleOnlyNew() || !h.ctrl.Snapshot().Settings.OnlyNew {
		t.Fatal("expected only_new on")
	}
	if !h.ctrl.ToggleOnlyInstrumental() || h.ctrl.ToggleOnlyInstrumental() {
		t.Fatal("expected only_instrumental to toggle on then off")
	}
}
