package queue

import (
	"context"
	"errors"
	"math/rand"

	"github.com/olivier-w/fmap/internal/catalog"
	"github.com/olivier-w/fmap/internal/pager"
)

// ErrEndOfQueue is returned once the genre has no further tracks.
var ErrEndOfQueue = errors.New("end of queue")

// Status is the outcome of a non-fetching queue lookup.
type Status int

const (
	StatusTrack Status = iota
	StatusNeedMoreData
	StatusEndOfQueue
)

func (s Status) String() string {
	switch s {
	case StatusTrack:
		return "track"
	case StatusNeedMoreData:
		return "need-more-data"
	case StatusEndOfQueue:
		return "end-of-queue"
	}
	return "unknown"
}

// Result is what TryCurrent and TryAdvance return. Track is only set for StatusTrack.
type Result struct {
	Status Status
	Track  catalog.Track
}

// Queue walks the tracks of one genre page by page. The index only moves
// forward; running off the end of the buffered page pulls the next page.
// It is not safe for concurrent use; the playback controller serialises access.
type Queue struct {
	lister  catalog.TrackLister
	pager   *pager.Pager[catalog.Track]
	genre   catalog.Genre
	tracks  []catalog.Track
	current int
	shuffle bool
}

// New creates a Queue with no genre selected.
func New(lister catalog.TrackLister) *Queue {
	return &Queue{
		lister: lister,
		pager:  pager.New[catalog.Track](nil),
	}
}

// SetShuffle makes every fetched page play in random order.
func (q *Queue) SetShuffle(on bool) {
	q.shuffle = on
}

// SetGenre switches to a new genre. Nothing is fetched until the next lookup.
func (q *Queue) SetGenre(g catalog.Genre) {
	q.genre = g
	q.pager.Reset(func(ctx context.Context, page int) (catalog.Page[catalog.Track], error) {
		return q.lister.Tracks(ctx, g.ID, page)
	})
	q.tracks = nil
	q.current = 0
}

// Genre returns the selected genre.
func (q *Queue) Genre() catalog.Genre {
	return q.genre
}

// TryCurrent looks up the current track without fetching.
func (q *Queue) TryCurrent() Result {
	if q.current < len(q.tracks) {
		return Result{Status: StatusTrack, Track: q.tracks[q.current]}
	}
	if q.pager.State() == pager.Exhausted {
		return Result{Status: StatusEndOfQueue}
	}
	return Result{Status: StatusNeedMoreData}
}

// TryAdvance moves to the next index and looks it up without fetching.
func (q *Queue) TryAdvance() Result {
	q.current++
	return q.TryCurrent()
}

// Current returns the current track, fetching the next page when the buffer
// has run out. Exhaustion is reported as ErrEndOfQueue.
func (q *Queue) Current(ctx context.Context) (catalog.Track, error) {
	res := q.TryCurrent()
	if res.Status == StatusNeedMoreData {
		if err := q.fetch(ctx); err != nil {
			return catalog.Track{}, err
		}
		res = q.TryCurrent()
	}
	switch res.Status {
	case StatusTrack:
		return res.Track, nil
	case StatusEndOfQueue:
		return catalog.Track{}, ErrEndOfQueue
	}
	// A non-empty page always resets the index to a valid track.
	return catalog.Track{}, ErrEndOfQueue
}

// Advance moves to the next track, fetching as needed.
func (q *Queue) Advance(ctx context.Context) (catalog.Track, error) {
	q.current++
	return q.Current(ctx)
}

// Position returns the page and index within the page of the current track.
func (q *Queue) Position() (page, index int) {
	return q.pager.Page(), q.current
}

func (q *Queue) fetch(ctx context.Context) error {
	items, err := q.pager.NextPage(ctx)
	if err != nil {
		if errors.Is(err, catalog.ErrEndOfData) {
			q.tracks = nil
			q.current = 0
			return nil
		}
		return err
	}
	tracks := make([]catalog.Track, len(items))
	copy(tracks, items)
	if q.shuffle {
		rand.Shuffle(len(tracks), func(i, j int) {
			tracks[i], tracks[j] = tracks[j], tracks[i]
		})
	}
	q.tracks = tracks
	q.current = 0
	return nil
}
