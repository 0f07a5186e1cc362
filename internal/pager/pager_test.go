package pager

import (
	"context"
	"errors"
	"testing"

	"github.com/olivier-w/fmap/internal/catalog"
)

type stubSource struct {
	pages    map[int]catalog.Page[string]
	errs     map[int]error
	requests []int
}

func (s *stubSource) fetch(_ context.Context, page int) (catalog.Page[string], error) {
	s.requests = append(s.requests, page)
	if err := s.errs[page]; err != nil {
		delete(s.errs, page)
		return catalog.Page[string]{}, err
	}
	return s.pages[page], nil
}

func TestNextPageStopsAtDeclaredTotal(t *testing.T) {
	src := &stubSource{pages: map[int]catalog.Page[string]{
		1: {Items: []string{"a", "b"}, Page: 1, TotalPages: 2},
		2: {Items: []string{"c"}, Page: 2, TotalPages: 2},
	}}
	p := New(src.fetch)

	for _, want := range []int{1, 2} {
		if _, err := p.NextPage(context.Background()); err != nil {
			t.Fatalf("page %d: unexpected error: %v", want, err)
		}
		if p.Page() != want {
			t.Fatalf("expected page %d, got %d", want, p.Page())
		}
	}

	if _, err := p.NextPage(context.Background()); !errors.Is(err, catalog.ErrEndOfData) {
		t.Fatalf("expected ErrEndOfData, got %v", err)
	}
	if p.State() != Exhausted {
		t.Fatalf("expected exhausted, got %s", p.State())
	}
	if len(src.requests) != 2 {
		t.Fatalf("expected no request beyond the declared total, got %v", src.requests)
	}
}

func TestNextPageExhaustsWhenSourceReportsEarlierPage(t *testing.T) {
	src := &stubSource{pages: map[int]catalog.Page[string]{
		1: {Items: []string{"a"}, Page: 1},
		2: {Items: []string{"a"}, Page: 1},
	}}
	p := New(src.fetch)

	if _, err := p.NextPage(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.NextPage(context.Background()); !errors.Is(err, catalog.ErrEndOfData) {
		t.Fatalf("expected ErrEndOfData on wrapped page, got %v", err)
	}
	if _, err := p.NextPage(context.Background()); !errors.Is(err, catalog.ErrEndOfData) {
		t.Fatalf("expected exhausted pager to stay exhausted, got %v", err)
	}
	if len(src.requests) != 2 {
		t.Fatalf("expected 2 requests, got %v", src.requests)
	}
}

func TestNextPageExhaustsOnEmptyPage(t *testing.T) {
	src := &stubSource{pages: map[int]catalog.Page[string]{
		1: {Page: 1},
	}}
	p := New(src.fetch)

	if _, err := p.NextPage(context.Background()); !errors.Is(err, catalog.ErrEndOfData) {
		t.Fatalf("expected ErrEndOfData, got %v", err)
	}
	if p.State() != Exhausted {
		t.Fatalf("expected exhausted, got %s", p.State())
	}
}

func TestNextPageAdvancesByOneWhenSourceSkipsAhead(t *testing.T) {
	src := &stubSource{pages: map[int]catalog.Page[string]{
		1: {Items: []string{"a"}, Page: 5},
		2: {Items: []string{"b"}, Page: 9},
	}}
	p := New(src.fetch)

	p.NextPage(context.Background())
	p.NextPage(context.Background())
	if p.Page() != 2 {
		t.Fatalf("expected local counter 2, got %d", p.Page())
	}
	if src.requests[1] != 2 {
		t.Fatalf("expected second request for page 2, got %d", src.requests[1])
	}
}

func TestNextPageErrorKeepsCounter(t *testing.T) {
	boom := errors.New("boom")
	src := &stubSource{
		pages: map[int]catalog.Page[string]{1: {Items: []string{"a"}, Page: 1}},
		errs:  map[int]error{1: boom},
	}
	p := New(src.fetch)

	if _, err := p.NextPage(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
	if p.State() != Idle || p.Page() != 0 {
		t.Fatalf("expected idle at page 0 after error, got %s at %d", p.State(), p.Page())
	}

	items, err := p.NextPage(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if len(items) != 1 || items[0] != "a" {
		t.Fatalf("expected retried page 1, got %v", items)
	}
}

func TestNextPageSourceEndOfDataExhausts(t *testing.T) {
	src := &stubSource{errs: map[int]error{1: catalog.ErrEndOfData}}
	p := New(src.fetch)

	if _, err := p.NextPage(context.Background()); !errors.Is(err, catalog.ErrEndOfData) {
		t.Fatalf("expected ErrEndOfData, got %v", err)
	}
	if p.State() != Exhausted {
		t.Fatalf("expected exhausted, got %s", p.State())
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	src := &stubSource{pages: map[int]catalog.Page[string]{
		1: {Items: []string{"a"}, Page: 1, TotalPages: 1},
	}}
	p := New(src.fetch)
	p.NextPage(context.Background())
	p.NextPage(context.Background())

	p.Reset(nil)
	if p.State() != Idle || p.Page() != 0 || p.TotalPages() != 0 || p.Items() != nil {
		t.Fatalf("expected clean idle pager, got state=%s page=%d total=%d items=%v",
			p.State(), p.Page(), p.TotalPages(), p.Items())
	}
	if _, err := p.NextPage(context.Background()); err != nil {
		t.Fatalf("expected page 1 again after reset, got %v", err)
	}
}

func TestNextPageYieldsEveryItemOnce(t *testing.T) {
	src := &stubSource{pages: map[int]catalog.Page[string]{
		1: {Items: []string{"a", "b"}, Page: 1, TotalPages: 3},
		2: {Items: []string{"c", "d"}, Page: 2, TotalPages: 3},
		3: {Items: []string{"e", "f"}, Page: 3, TotalPages: 3},
	}}
	p := New(src.fetch)

	var got []string
	for {
		items, err := p.NextPage(context.Background())
		if errors.Is(err, catalog.ErrEndOfData) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, items...)
	}
	if len(got) != 6 {
		t.Fatalf("expected 6 items, got %v", got)
	}
	if p.State() != Exhausted {
		t.Fatalf("expected Exhausted, got %v", p.State())
	}
	if len(src.requests) != 3 {
		t.Fatalf("expected 3 fetches, got %v", src.requests)
	}
}
