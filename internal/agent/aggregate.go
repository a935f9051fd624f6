package agent

import (
	"sort"

	"github.com/dc-codes426/newsapi-ai/internal/helpers"
	"github.com/dc-codes426/newsapi-ai/internal/news"
)

// aggregator accumulates articles across all tool calls of one query,
// deduplicating by normalized URL. First occurrence wins; later duplicates
// are dropped, not merged.
type aggregator struct {
	seen     map[string]struct{}
	articles []news.Article
}

func newAggregator() *aggregator {
	return &aggregator{seen: make(map[string]struct{})}
}

func (a *aggregator) add(articles []news.Article) {
	for _, art := range articles {
		key, err := helpers.NormalizeURL(art.URL)
		if err != nil {
			key = art.URL
		}
		if _, dup := a.seen[key]; dup {
			continue
		}
		a.seen[key] = struct{}{}
		a.articles = append(a.articles, art)
	}
}

// result orders and truncates. Order: provider relevance desc when
// present, then publishedAt desc, ties keep first-seen order. Truncation
// to maxResults happens last so the kept set is deterministic.
// TotalResults counts unique articles before truncation.
func (a *aggregator) result(maxResults int) AggregatedResult {
	ordered := make([]news.Article, len(a.articles))
	copy(ordered, a.articles)

	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := ordered[i].Relevance, ordered[j].Relevance
		switch {
		case ri != nil && rj != nil:
			if *ri != *rj {
				return *ri > *rj
			}
		case ri != nil:
			return true
		case rj != nil:
			return false
		}
		if !ordered[i].PublishedAt.Equal(ordered[j].PublishedAt) {
			return ordered[i].PublishedAt.After(ordered[j].PublishedAt)
		}
		return false
	})

	total := len(ordered)
	if maxResults > 0 && len(ordered) > maxResults {
		ordered = ordered[:maxResults]
	}
	return AggregatedResult{Articles: ordered, TotalResults: total}
}
