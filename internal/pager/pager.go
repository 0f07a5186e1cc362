// Package pager turns a page-numbered fetch function into a forward-only
// sequence of pages.
package pager

import (
	"context"
	"errors"
	"fmt"

	"github.com/olivier-w/fmap/internal/catalog"
)

// State is the pager's position in its lifecycle.
type State int

const (
	Idle State = iota
	Fetching
	HasPage
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case HasPage:
		return "has-page"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// FetchFunc fetches a 1-based page.
type FetchFunc[T any] func(ctx context.Context, page int) (catalog.Page[T], error)

// Pager requests pages 1, 2, 3... until the source runs out.
// It is not safe for concurrent use; callers serialise access.
type Pager[T any] struct {
	fetch FetchFunc[T]
	state State
	page  int // last page successfully fetched, 0 before the first
	total int // 0 while unknown
	items []T
}

// New creates an idle pager over fetch.
func New[T any](fetch FetchFunc[T]) *Pager[T] {
	return &Pager[T]{fetch: fetch}
}

// NextPage fetches the page after the current one and makes it the buffered page.
// It returns catalog.ErrEndOfData once the source is exhausted. A failed fetch
// leaves the pager where it was, so the same page is requested again next time.
func (p *Pager[T]) NextPage(ctx context.Context) ([]T, error) {
	if p.state == Exhausted {
		return nil, catalog.ErrEndOfData
	}
	if p.fetch == nil {
		p.exhaust()
		return nil, catalog.ErrEndOfData
	}

	requested := p.page + 1
	if p.total > 0 && requested > p.total {
		p.exhaust()
		return nil, catalog.ErrEndOfData
	}

	prev := p.state
	p.state = Fetching
	res, err := p.fetch(ctx, requested)
	if err != nil {
		if errors.Is(err, catalog.ErrEndOfData) {
			p.exhaust()
			return nil, catalog.ErrEndOfData
		}
		p.state = prev
		return nil, fmt.Errorf("fetching page %d: %w", requested, err)
	}

	// A source that answers with an earlier page has wrapped around.
	if (res.Page > 0 && res.Page < requested) || len(res.Items) == 0 {
		p.exhaust()
		return nil, catalog.ErrEndOfData
	}

	p.items = res.Items
	p.page = requested
	if res.TotalPages > 0 {
		p.total = res.TotalPages
	}
	p.state = HasPage
	return p.items, nil
}

// Reset rewinds the pager for a new filter. A nil fetch keeps the current one.
func (p *Pager[T]) Reset(fetch FetchFunc[T]) {
	if fetch != nil {
		p.fetch = fetch
	}
	p.state = Idle
	p.page = 0
	p.total = 0
	p.items = nil
}

func (p *Pager[T]) exhaust() {
	p.state = Exhausted
	p.items = nil
}

// State returns the current lifecycle state.
func (p *Pager[T]) State() State { return p.state }

// Page returns the last page fetched, 0 before the first.
func (p *Pager[T]) Page() int { return p.page }

// TotalPages returns the declared page count, 0 while unknown.
func (p *Pager[T]) TotalPages() int { return p.total }

// Items returns the buffered page.
func (p *Pager[T]) Items() []T { return p.items }
