package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	QuestionTypeBoolean = "boolean"
	QuestionTypeSelect  = "select"
	QuestionTypeTri     = "tri"
)

type QuestionOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// DiagnosticQuestion is a single prompt produced by the generation
// collaborator. Immutable once merged into a funnel history, except for
// id rewriting on collision.
type DiagnosticQuestion struct {
	ID      string           `json:"id"`
	Text    string           `json:"text"`
	Type    string           `json:"type"`
	Options []QuestionOption `json:"options,omitempty"`
}

// ClassificationResult is the three-dimensional taxonomy produced by the
// analysis collaborator once a funnel finishes.
type ClassificationResult struct {
	Domain             string   `json:"domain"`
	AssetType          string   `json:"asset_type"`
	ServiceType        string   `json:"service_type"`
	IssueTags          []string `json:"issue_tags"`
	ProblemGuess       string   `json:"problem_guess"`
	SummaryForProvider string   `json:"summary_for_provider"`
	Confidence         float64  `json:"confidence"`
}

type Provider struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	City        string    `json:"city"`
	Address     string    `json:"address"`
	Skills      []string  `json:"skills"`
	Lat         *float64  `json:"lat"`
	Lon         *float64  `json:"lon"`
	CurrentLoad int       `json:"current_load"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ServiceRequest is a submitted ticket derived from a finished funnel.
type ServiceRequest struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Domain      string            `json:"domain"`
	City        string            `json:"city"`
	Address     string            `json:"address"`
	Description string            `json:"description"`
	Answers     map[string]string `json:"answers,omitempty"`
	Lat         *float64          `json:"lat"`
	Lon         *float64          `json:"lon"`
	Status      string            `json:"status"`
}

type Match struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	ProviderID *string   `json:"provider_id"`
	City       string    `json:"city"`
	Status     string    `json:"status"`
	ReasonCode string    `json:"reason_code"`
	ReasonText string    `json:"reason_text"`
	Reasoning  []byte    `json:"reasoning"`
	MatchedAt  time.Time `json:"matched_at"`
}

const (
	MaxIssueTags          = 5
	MaxProviderSummaryLen = 200
)

// NormalizeClassification maps collaborator output onto the canonical
// taxonomy vocabulary and enforces the output bounds.
func NormalizeClassification(c ClassificationResult) ClassificationResult {
	c.Domain = NormalizeDomain(c.Domain)
	c.ServiceType = NormalizeServiceType(c.ServiceType)
	c.AssetType = strings.TrimSpace(strings.ToLower(c.AssetType))
	if len(c.IssueTags) > MaxIssueTags {
		c.IssueTags = c.IssueTags[:MaxIssueTags]
	}
	for i, tag := range c.IssueTags {
		c.IssueTags[i] = strings.TrimSpace(strings.ToLower(tag))
	}
	// The bound is characters, not bytes; slicing by byte index would
	// split a multi-byte rune in accented Portuguese text.
	if utf8.RuneCountInString(c.SummaryForProvider) > MaxProviderSummaryLen {
		runes := []rune(c.SummaryForProvider)
		c.SummaryForProvider = string(runes[:MaxProviderSummaryLen])
	}
	return c
}

func NormalizeDomain(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "casa", "home", "residencial":
		return "casa"
	case "mobilidade", "mobility", "veiculo", "veículo":
		return "mobilidade"
	case "tecnologia", "tech", "eletronicos", "eletrônicos":
		return "tecnologia"
	default:
		return v
	}
}

func NormalizeServiceType(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "mecanico", "mecânico", "mechanical":
		return "mechanical"
	case "eletrico", "elétrico", "electrical":
		return "electrical"
	case "hidraulico", "hidráulico", "hydraulic":
		return "hydraulic"
	case "instalacao", "instalação", "installation":
		return "installation"
	case "manutencao", "manutenção", "maintenance":
		return "maintenance"
	case "diagnostico", "diagnóstico", "diagnostic":
		return "diagnostic"
	default:
		return v
	}
}
