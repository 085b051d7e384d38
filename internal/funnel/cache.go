package funnel

import (
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Johnmelogay/reparai-app-sub000/internal/ai"
)

const defaultCacheSize = 256

// CacheKey builds a deterministic key for a (domain, answers, free text)
// triple. Answer map order does not affect the key.
func CacheKey(domain string, answers map[string]string, text string) string {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(domain)
	b.WriteByte('\x1e')
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('\x1f')
		b.WriteString(answers[k])
		b.WriteByte('\x1e')
	}
	b.WriteString(text)
	return b.String()
}

// QuestionCache memoizes generation results. Bounded because the caches
// are shared by every funnel the service runs, not scoped to one session.
type QuestionCache struct {
	c *lru.Cache[string, ai.GenerateResult]
}

func NewQuestionCache(size int) *QuestionCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, _ := lru.New[string, ai.GenerateResult](size)
	return &QuestionCache{c: c}
}

func (q *QuestionCache) Lookup(key string) (ai.GenerateResult, bool) {
	return q.c.Get(key)
}

func (q *QuestionCache) Store(key string, res ai.GenerateResult) {
	q.c.Add(key, res)
}

// AnalysisCache memoizes finalizer results using the same key strategy;
// the ephemeral request id is deliberately not part of the key.
type AnalysisCache struct {
	c *lru.Cache[string, ai.AnalyzeResult]
}

func NewAnalysisCache(size int) *AnalysisCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, _ := lru.New[string, ai.AnalyzeResult](size)
	return &AnalysisCache{c: c}
}

func (a *AnalysisCache) Lookup(key string) (ai.AnalyzeResult, bool) {
	return a.c.Get(key)
}

func (a *AnalysisCache) Store(key string, res ai.AnalyzeResult) {
	a.c.Add(key, res)
}
