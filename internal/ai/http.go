package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPGenerator calls the generate-questions serverless function.
type HTTPGenerator struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

// HTTPClassifier calls the analyze-request serverless function.
type HTTPClassifier struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
}

type functionError struct {
	Error string `json:"error"`
}

func (g HTTPGenerator) GenerateQuestions(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	var out GenerateResult
	if err := postJSON(ctx, g.Client, g.Timeout, g.BaseURL, "/generate-questions", req, &out); err != nil {
		return GenerateResult{}, err
	}
	if err := out.Validate(); err != nil {
		return GenerateResult{}, fmt.Errorf("malformed generation response: %w", err)
	}
	return out, nil
}

func (c HTTPClassifier) AnalyzeRequest(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error) {
	var out AnalyzeResult
	if err := postJSON(ctx, c.Client, c.Timeout, c.BaseURL, "/analyze-request", req, &out); err != nil {
		return AnalyzeResult{}, err
	}
	return out, nil
}

func postJSON(ctx context.Context, client *http.Client, timeout time.Duration, baseURL, path string, payload any, out any) error {
	if client == nil {
		if timeout <= 0 {
			timeout = 12 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	b, _ := json.Marshal(payload)
	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var fe functionError
		_ = json.NewDecoder(resp.Body).Decode(&fe)
		if fe.Error != "" {
			return fmt.Errorf("ai function error: %s", fe.Error)
		}
		return fmt.Errorf("ai function http error: %s", resp.Status)
	}

	body, err := decodeOrFunctionError(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// Functions can answer 200 with an {"error": ...} body; treat that as a
// failure too.
func decodeOrFunctionError(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	var fe functionError
	if err := json.Unmarshal(buf.Bytes(), &fe); err == nil && fe.Error != "" {
		return nil, fmt.Errorf("ai function error: %s", fe.Error)
	}
	return buf.Bytes(), nil
}
