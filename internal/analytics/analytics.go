package analytics

import "slices"

// Chart sizes used by the stats views.
const (
	// TopChart is the number of bars on the per-log frequency chart.
	TopChart = 8

	// TopSummary is the number of tags on the log summary leaderboard.
	TopSummary = 10

	// TopCoTags is the number of co-occurrence badges shown next to a search.
	TopCoTags = 5

	// TopDistribution is the number of slices in the tag distribution.
	TopDistribution = 6
)

// TagCount is one row of a ranking.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Ranking is a list of tag counts ordered by count descending. Ties keep the
// order in which the tags were first seen in the input.
type Ranking []TagCount

// Top returns a copy of at most n leading entries. n <= 0 copies the full
// ranking.
func (r Ranking) Top(n int) Ranking {
	if n <= 0 || n > len(r) {
		n = len(r)
	}
	return slices.Clone(r[:n])
}

// Counts returns the ranking as a tag -> count mapping.
func (r Ranking) Counts() map[string]int {
	m := make(map[string]int, len(r))
	for _, tc := range r {
		m[tc.Tag] = tc.Count
	}
	return m
}

// Total sums the counts of every entry.
func (r Ranking) Total() int {
	total := 0
	for _, tc := range r {
		total += tc.Count
	}
	return total
}

// counter accumulates per-tag counts while remembering first-seen order.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

// add counts each distinct non-empty tag of one event once, skipping skip.
func (c *counter) add(tags []string, skip string) {
	var seen map[string]struct{}
	if len(tags) > 1 {
		seen = make(map[string]struct{}, len(tags))
	}
	for _, t := range tags {
		if t == "" || t == skip {
			continue
		}
		if seen != nil {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
		}
		if _, ok := c.counts[t]; !ok {
			c.order = append(c.order, t)
		}
		c.counts[t]++
	}
}

func (c *counter) ranking() Ranking {
	r := make(Ranking, 0, len(c.order))
	for _, t := range c.order {
		r = append(r, TagCount{Tag: t, Count: c.counts[t]})
	}
	slices.SortStableFunc(r, func(a, b TagCount) int {
		return b.Count - a.Count
	})
	return r
}

// Frequency counts, for every distinct tag, the number of events carrying it.
// tagSets holds one tag list per event in snapshot order; a nil list is an
// event without tags.
func Frequency(tagSets [][]string) Ranking {
	c := newCounter()
	for _, tags := range tagSets {
		c.add(tags, "")
	}
	return c.ranking()
}

// CoOccurrence restricts tagSets to the events carrying query and counts
// every other tag over that subset. query is normalized before matching and
// never appears in the result. A query matching nothing yields an empty,
// non-nil ranking.
func CoOccurrence(tagSets [][]string, query string) Ranking {
	q := NormalizeTag(query)
	c := newCounter()
	if q == "" {
		return c.ranking()
	}
	for _, tags := range tagSets {
		if !Contains(tags, q) {
			continue
		}
		c.add(tags, q)
	}
	return c.ranking()
}

// Matching returns the indexes of the tag sets that carry query, in input order.
func Matching(tagSets [][]string, query string) []int {
	q := NormalizeTag(query)
	if q == "" {
		return nil
	}
	var idx []int
	for i, tags := range tagSets {
		if Contains(tags, q) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Summary bundles everything the stats view renders for one log.
type Summary struct {
	EventCount  int     `json:"event_count"`
	Frequency   Ranking `json:"frequency"`
	Query       string  `json:"query,omitempty"`
	CoOccurring Ranking `json:"co_occurring,omitempty"`
	Matches     []int   `json:"-"`
}

// Summarize computes the frequency ranking and, when query is non-empty, the
// co-occurrence ranking and matching event indexes.
func Summarize(tagSets [][]string, query string) Summary {
	s := Summary{
		EventCount: len(tagSets),
		Frequency:  Frequency(tagSets),
		Query:      NormalizeTag(query),
	}
	if s.Query != "" {
		s.CoOccurring = CoOccurrence(tagSets, s.Query)
		s.Matches = Matching(tagSets, s.Query)
	}
	return s
}
