package fma

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/olivier-w/fmap/internal/catalog"
	"github.com/olivier-w/fmap/internal/pager"
)

// SearchResults is a lazy sequence of download URLs from the site search.
// A results page is fetched only once the previous one is used up.
type SearchResults struct {
	c     *Client
	first string

	pager   *pager.Pager[string]
	next    string
	summary string
	items   []string
}

// SearchURL builds the site search URL for term.
func (c *Client) SearchURL(term string) string {
	words := strings.Fields(term)
	for i, w := range words {
		words[i] = url.QueryEscape(w)
	}
	return c.siteURL + "/search/?quicksearch=" + strings.Join(words, "+")
}

// Search starts a search for term. Nothing is fetched until Next or Summary.
func (c *Client) Search(term string) *SearchResults {
	r := &SearchResults{c: c, first: c.SearchURL(term)}
	r.pager = pager.New(r.fetchPage)
	return r
}

// Summary returns the header text of the first results page, fetching it
// if needed.
func (r *SearchResults) Summary(ctx context.Context) (string, error) {
	if r.pager.State() == pager.Idle {
		items, err := r.pager.NextPage(ctx)
		if err != nil && !errors.Is(err, catalog.ErrEndOfData) {
			return "", err
		}
		r.items = append(r.items, items...)
	}
	return r.summary, nil
}

// Next returns the next download URL, or catalog.ErrEndOfData.
func (r *SearchResults) Next(ctx context.Context) (string, error) {
	for len(r.items) == 0 {
		items, err := r.pager.NextPage(ctx)
		if err != nil {
			return "", err
		}
		r.items = items
	}
	u := r.items[0]
	r.items = r.items[1:]
	return u, nil
}

func (r *SearchResults) fetchPage(ctx context.Context, page int) (catalog.Page[string], error) {
	target := r.first
	if page > 1 {
		if r.next == "" {
			return catalog.Page[string]{}, catalog.ErrEndOfData
		}
		target = r.next
		if err := r.c.Nap(ctx); err != nil {
			return catalog.Page[string]{}, err
		}
	}

	body, err := r.c.getBytes(ctx, target)
	if err != nil {
		return catalog.Page[string]{}, fmt.Errorf("fetching search page %d: %w", page, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return catalog.Page[string]{}, fmt.Errorf("search page %d: %v: %w", page, err, catalog.ErrParse)
	}

	if page == 1 {
		r.summary = strings.TrimSpace(doc.Find("#page-header").First().Text())
	}

	var urls []string
	doc.Find(".js-download").Each(func(_ int, s *goquery.Selection) {
		if u, ok := s.Attr("data-url"); ok && u != "" {
			if abs := resolveRef(target, strings.TrimSuffix(u, "overlay")); abs != "" {
				urls = append(urls, abs)
			}
		}
	})
	rand.Shuffle(len(urls), func(i, j int) { urls[i], urls[j] = urls[j], urls[i] })

	r.next = nextLink(doc, target)
	out := catalog.Page[string]{Items: urls, Page: page}
	if r.next == "" {
		out.TotalPages = page
	}
	log.Debug().Int("page", page).Int("count", len(urls)).Bool("more", r.next != "").Msg("fetched search page")
	return out, nil
}

// nextLink finds the pagination link labelled NEXT and resolves it
// against the page it was found on.
func nextLink(doc *goquery.Document, base string) string {
	var href string
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(s.Text(), "NEXT") {
			return true
		}
		href, _ = s.Attr("href")
		return href == ""
	})
	if href == "" {
		return ""
	}
	return resolveRef(base, href)
}

// resolveRef makes href absolute against base. Unparseable links give "".
func resolveRef(base, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}
