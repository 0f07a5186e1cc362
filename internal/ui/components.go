package ui

import (
	"sort"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/harmonica"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

func renderProgressBar(ratio float64, width int) string {
	if width < 10 {
		width = 10
	}
	barWidth := width - 2

	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	filled := int(ratio * float64(barWidth))
	return strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)
}

func renderFlag(name string, on bool) string {
	if on {
		return flagOnStyle.Render("[x] " + name)
	}
	return statusStyle.Render("[ ] " + name)
}

// progressSpring eases the progress bar towards the playback position so
// coarse backend updates do not make it jump.
type progressSpring struct {
	spring harmonica.Spring
	pos    float64
	vel    float64
}

func newProgressSpring() progressSpring {
	fps := int(1 / tickInterval.Seconds())
	return progressSpring{spring: harmonica.NewSpring(harmonica.FPS(fps), 8.0, 1.0)}
}

// step moves one frame towards target and returns the new position.
func (s *progressSpring) step(target float64) float64 {
	// Jumps backwards (a new track) snap instead of sliding.
	if target < s.pos-0.05 {
		s.pos, s.vel = target, 0
		return s.pos
	}
	s.pos, s.vel = s.spring.Update(s.pos, s.vel, target)
	return s.pos
}

// genreFilter ranks list items with fuzzysearch, best match first.
func genreFilter(term string, targets []string) []list.Rank {
	ranks := fuzzy.RankFindFold(term, targets)
	sort.Stable(ranks)

	out := make([]list.Rank, len(ranks))
	for i, r := range ranks {
		out[i] = list.Rank{
			Index:          r.OriginalIndex,
			MatchedIndexes: matchedIndexes(term, r.Target),
		}
	}
	return out
}

// matchedIndexes returns the rune positions of target that spell term in
// order, for highlighting.
func matchedIndexes(term, target string) []int {
	want := []rune(strings.ToLower(term))
	if len(want) == 0 {
		return nil
	}
	var idx []int
	j := 0
	for i, r := range []rune(target) {
		if j < len(want) && unicode.ToLower(r) == want[j] {
			idx = append(idx, i)
			j++
		}
	}
	return idx
}
