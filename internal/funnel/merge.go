package funnel

import (
	"fmt"
	"strings"

	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
)

// Merge appends candidate questions to the history, dropping any candidate
// whose text matches an existing question case-insensitively. A candidate
// whose id collides with history but whose text differs is kept with a
// rewritten id so answer-map keys stay unique. Pure function.
func Merge(history, candidates []models.DiagnosticQuestion) []models.DiagnosticQuestion {
	out := make([]models.DiagnosticQuestion, len(history))
	copy(out, history)

	seenText := make(map[string]struct{}, len(history))
	seenID := make(map[string]struct{}, len(history))
	for _, q := range history {
		seenText[normalizeText(q.Text)] = struct{}{}
		seenID[q.ID] = struct{}{}
	}

	for _, cand := range candidates {
		text := normalizeText(cand.Text)
		if _, dup := seenText[text]; dup {
			continue
		}
		if _, taken := seenID[cand.ID]; taken {
			cand.ID = rewriteID(cand.ID, seenID)
		}
		seenText[text] = struct{}{}
		seenID[cand.ID] = struct{}{}
		out = append(out, cand)
	}
	return out
}

func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func rewriteID(id string, taken map[string]struct{}) string {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", id, n)
		if _, exists := taken[candidate]; !exists {
			return candidate
		}
	}
}
