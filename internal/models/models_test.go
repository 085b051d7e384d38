package models

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNormalizeClassificationSummaryRuneBound(t *testing.T) {
	// 200 runes but 201 bytes; must come through intact.
	exact := strings.Repeat("a", 199) + "ã"
	out := NormalizeClassification(ClassificationResult{SummaryForProvider: exact})
	if out.SummaryForProvider != exact {
		t.Fatalf("200-rune summary must not be truncated, got %d runes", utf8.RuneCountInString(out.SummaryForProvider))
	}

	long := strings.Repeat("ç", MaxProviderSummaryLen+40)
	out = NormalizeClassification(ClassificationResult{SummaryForProvider: long})
	if got := utf8.RuneCountInString(out.SummaryForProvider); got != MaxProviderSummaryLen {
		t.Fatalf("expected %d runes after truncation, got %d", MaxProviderSummaryLen, got)
	}
	if !utf8.ValidString(out.SummaryForProvider) {
		t.Fatalf("truncation split a rune: %q", out.SummaryForProvider[len(out.SummaryForProvider)-4:])
	}
}

func TestNormalizeClassificationCapsIssueTags(t *testing.T) {
	tags := []string{" Ruido ", "VAZAMENTO", "desgaste", "queda", "nao_liga", "extra"}
	out := NormalizeClassification(ClassificationResult{IssueTags: tags})
	if len(out.IssueTags) != MaxIssueTags {
		t.Fatalf("expected %d tags, got %d", MaxIssueTags, len(out.IssueTags))
	}
	if out.IssueTags[0] != "ruido" || out.IssueTags[1] != "vazamento" {
		t.Fatalf("tags not normalized: %v", out.IssueTags)
	}
}

func TestNormalizeDomainVariants(t *testing.T) {
	cases := map[string]string{
		"Casa":     "casa",
		"veículo":  "mobilidade",
		"tech":     "tecnologia",
		"jardim":   "jardim",
		" CASA ":   "casa",
		"Mobility": "mobilidade",
	}
	for in, want := range cases {
		if got := NormalizeDomain(in); got != want {
			t.Fatalf("NormalizeDomain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeServiceTypeVariants(t *testing.T) {
	if got := NormalizeServiceType("Hidráulico"); got != "hydraulic" {
		t.Fatalf("expected hydraulic, got %q", got)
	}
	if got := NormalizeServiceType("solda"); got != "solda" {
		t.Fatalf("unknown types pass through lowered, got %q", got)
	}
}
