package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
)

// GenerateRequest is the contract of the question-generation collaborator.
type GenerateRequest struct {
	Domain        string            `json:"domain"`
	Answers       map[string]string `json:"answers"`
	UserText      string            `json:"userText,omitempty"`
	MinConfidence float64           `json:"min_confidence"`
}

type GenerateResult struct {
	Questions  []models.DiagnosticQuestion `json:"questions"`
	Confidence float64                     `json:"confidence"`
}

// AnalyzeRequest is the contract of the classification collaborator.
type AnalyzeRequest struct {
	RequestID string            `json:"requestId,omitempty"`
	Category  string            `json:"category"`
	Answers   map[string]string `json:"answers"`
	UserText  string            `json:"userText,omitempty"`
	Lat       *float64          `json:"lat,omitempty"`
	Lng       *float64          `json:"lng,omitempty"`
}

type AnalyzeResult struct {
	Analysis  models.ClassificationResult `json:"analysis"`
	Providers []models.Provider           `json:"providers,omitempty"`
}

type Generator interface {
	GenerateQuestions(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

type Classifier interface {
	AnalyzeRequest(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error)
}

// Validate rejects malformed collaborator responses at the boundary so
// callers can treat them as a generation failure instead of propagating
// undefined shapes downstream.
func (r GenerateResult) Validate() error {
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", r.Confidence)
	}
	for i, q := range r.Questions {
		if strings.TrimSpace(q.ID) == "" {
			return fmt.Errorf("question %d: empty id", i)
		}
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("question %q: empty text", q.ID)
		}
		switch q.Type {
		case models.QuestionTypeBoolean, models.QuestionTypeTri:
		case models.QuestionTypeSelect:
			if len(q.Options) == 0 {
				return fmt.Errorf("question %q: select without options", q.ID)
			}
		default:
			return fmt.Errorf("question %q: unknown type %q", q.ID, q.Type)
		}
	}
	return nil
}
