package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
)

// LLMAdapter implements both collaborators directly against an
// OpenAI-compatible chat completions endpoint, for deployments without
// the dedicated serverless functions.
type LLMAdapter struct {
	BaseURL   string
	Model     string
	APIKey    string
	MaxTokens int
	Client    *http.Client
}

type RateLimitError struct {
	RetryAfter time.Duration
}

func (r RateLimitError) Error() string {
	if r.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", r.RetryAfter)
	}
	return "rate limited"
}

func (a LLMAdapter) GenerateQuestions(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	prompt := buildGeneratePrompt(req)
	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return GenerateResult{}, err
	}
	var out GenerateResult
	if err := json.Unmarshal(extractJSON(raw), &out); err != nil {
		return GenerateResult{}, fmt.Errorf("unparseable generation response: %w", err)
	}
	if err := out.Validate(); err != nil {
		return GenerateResult{}, fmt.Errorf("malformed generation response: %w", err)
	}
	return out, nil
}

func (a LLMAdapter) AnalyzeRequest(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error) {
	prompt := buildAnalyzePrompt(req)
	raw, err := a.complete(ctx, prompt)
	if err != nil {
		return AnalyzeResult{}, err
	}
	var analysis models.ClassificationResult
	if err := json.Unmarshal(extractJSON(raw), &analysis); err != nil {
		return AnalyzeResult{}, fmt.Errorf("unparseable analysis response: %w", err)
	}
	return AnalyzeResult{Analysis: analysis}, nil
}

func buildGeneratePrompt(req GenerateRequest) string {
	var b strings.Builder
	b.WriteString("Você é um assistente de diagnóstico de serviços de reparo.\n")
	fmt.Fprintf(&b, "Domínio: %s\n", req.Domain)
	if req.UserText != "" {
		fmt.Fprintf(&b, "Descrição do cliente: %s\n", req.UserText)
	}
	if len(req.Answers) > 0 {
		b.WriteString("Respostas anteriores:\n")
		for _, k := range sortedKeys(req.Answers) {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.Answers[k])
		}
	}
	fmt.Fprintf(&b, "Gere até 2 novas perguntas de diagnóstico (tipos: boolean, select, tri; "+
		"select exige options) e uma confiança em [0,1]. Não repita perguntas já feitas. "+
		"Se a confiança for >= %.2f, retorne uma lista vazia de perguntas.\n", req.MinConfidence)
	b.WriteString(`Responda apenas JSON: {"questions":[{"id":"...","text":"...","type":"...","options":[{"label":"...","value":"..."}]}],"confidence":0.0}`)
	return b.String()
}

func buildAnalyzePrompt(req AnalyzeRequest) string {
	var b strings.Builder
	b.WriteString("Classifique a solicitação de reparo abaixo.\n")
	fmt.Fprintf(&b, "Domínio: %s\n", req.Category)
	if req.UserText != "" {
		fmt.Fprintf(&b, "Descrição do cliente: %s\n", req.UserText)
	}
	for _, k := range sortedKeys(req.Answers) {
		fmt.Fprintf(&b, "- %s: %s\n", k, req.Answers[k])
	}
	b.WriteString(`Responda apenas JSON: {"domain":"...","asset_type":"...","service_type":"...",` +
		`"issue_tags":["..."],"problem_guess":"...","summary_for_provider":"...","confidence":0.0}` +
		"\nsummary_for_provider com no máximo 200 caracteres; no máximo 5 issue_tags.")
	return b.String()
}

func (a LLMAdapter) complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(a.BaseURL) == "" {
		return "", fmt.Errorf("LLM_BASE_URL is not set")
	}
	if strings.TrimSpace(a.Model) == "" {
		return "", fmt.Errorf("LLM_MODEL is not set")
	}

	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	payload := struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature,omitempty"`
		MaxTokens   int     `json:"max_tokens,omitempty"`
		Messages    []msg   `json:"messages"`
	}{
		Model:     a.Model,
		MaxTokens: a.MaxTokens,
		Messages:  []msg{{Role: "user", Content: prompt}},
	}

	b, _ := json.Marshal(payload)
	url := strings.TrimRight(a.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(a.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	client := a.Client
	if client == nil {
		timeout := 45 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
				timeout = remaining
			}
		}
		client = &http.Client{Timeout: timeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("llm request timed out")
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("llm request timed out")
		}
		return "", fmt.Errorf("llm request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			if d := extractRetryAfter(errBody); d > 0 {
				return "", RateLimitError{RetryAfter: d}
			}
			return "", RateLimitError{}
		}
		return "", fmt.Errorf("llm http error: %s: %v", resp.Status, errBody)
	}

	var res struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", err
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("empty llm response")
	}
	return res.Choices[0].Message.Content, nil
}

// extractJSON strips markdown fences and surrounding prose so the body
// can be unmarshalled directly.
func extractJSON(content string) []byte {
	s := strings.TrimSpace(content)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	s = strings.TrimSpace(s)
	start := strings.IndexAny(s, "{[")
	if start > 0 {
		s = s[start:]
	}
	return []byte(s)
}

func extractRetryAfter(errBody map[string]any) time.Duration {
	errObj, ok := errBody["error"].(map[string]any)
	if !ok {
		return 0
	}
	details, ok := errObj["details"].([]any)
	if !ok {
		return 0
	}
	for _, d := range details {
		m, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := m["@type"].(string); ok && strings.Contains(t, "RetryInfo") {
			if s, ok := m["retryDelay"].(string); ok {
				if dur, err := time.ParseDuration(s); err == nil {
					return dur
				}
			}
		}
	}
	return 0
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
