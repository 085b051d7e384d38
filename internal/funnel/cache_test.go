package funnel

import (
	"context"
	"testing"

	"github.com/Johnmelogay/reparai-app-sub000/internal/ai"
	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
)

func TestCacheKeyOrderIndependent(t *testing.T) {
	a := CacheKey("casa", map[string]string{"q1": "sim", "q2": "nao"}, "geladeira")
	b := CacheKey("casa", map[string]string{"q2": "nao", "q1": "sim"}, "geladeira")
	if a != b {
		t.Fatalf("key depends on map order: %q vs %q", a, b)
	}
}

func TestCacheKeyDistinguishesInputs(t *testing.T) {
	base := CacheKey("casa", map[string]string{"q1": "sim"}, "geladeira")
	cases := []string{
		CacheKey("mobilidade", map[string]string{"q1": "sim"}, "geladeira"),
		CacheKey("casa", map[string]string{"q1": "nao"}, "geladeira"),
		CacheKey("casa", map[string]string{"q1": "sim"}, "fogão"),
		CacheKey("casa", nil, "geladeira"),
	}
	for i, k := range cases {
		if k == base {
			t.Fatalf("case %d collided with base key", i)
		}
	}
}

func TestGenerationCachedAcrossSessions(t *testing.T) {
	calls := 0
	gen := genFunc(func(ctx context.Context, req ai.GenerateRequest) (ai.GenerateResult, error) {
		calls++
		return ai.GenerateResult{
			Questions:  []models.DiagnosticQuestion{triQuestion("q1", "O equipamento liga?")},
			Confidence: 0.2,
		}, nil
	})
	cfg := Config{
		Generator:  gen,
		Classifier: okClassifier(),
		Questions:  NewQuestionCache(16),
		Analyses:   NewAnalysisCache(16),
	}

	s1 := NewSession("fnl_a", "casa", "geladeira não gela", cfg)
	if _, err := s1.Start(context.Background()); err != nil {
		t.Fatalf("start s1: %v", err)
	}
	s2 := NewSession("fnl_b", "casa", "geladeira não gela", cfg)
	if _, err := s2.Start(context.Background()); err != nil {
		t.Fatalf("start s2: %v", err)
	}

	if calls != 1 {
		t.Fatalf("expected identical triple to hit cache, got %d collaborator calls", calls)
	}
}

func TestQuestionCacheBounded(t *testing.T) {
	c := NewQuestionCache(2)
	c.Store("a", ai.GenerateResult{Confidence: 0.1})
	c.Store("b", ai.GenerateResult{Confidence: 0.2})
	c.Store("c", ai.GenerateResult{Confidence: 0.3})

	if _, ok := c.Lookup("a"); ok {
		t.Fatalf("oldest entry should have been evicted")
	}
	if _, ok := c.Lookup("c"); !ok {
		t.Fatalf("newest entry missing")
	}
}

func TestFailedGenerationNotCached(t *testing.T) {
	calls := 0
	gen := genFunc(func(ctx context.Context, req ai.GenerateRequest) (ai.GenerateResult, error) {
		calls++
		if calls == 1 {
			// Malformed: select without options must be rejected.
			return ai.GenerateResult{
				Questions:  []models.DiagnosticQuestion{{ID: "q1", Text: "Qual equipamento?", Type: models.QuestionTypeSelect}},
				Confidence: 0.2,
			}, nil
		}
		return ai.GenerateResult{
			Questions:  []models.DiagnosticQuestion{selectQuestion("q1", "Qual equipamento?")},
			Confidence: 0.2,
		}, nil
	})

	s := newTestSession(gen, okClassifier())
	if _, err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected failure for malformed response")
	}
	snap, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("malformed response must not be cached, got %d calls", calls)
	}
	if snap.State != StateAwaitingAnswer {
		t.Fatalf("expected AWAITING_ANSWER, got %s", snap.State)
	}
}
