package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Johnmelogay/reparai-app-sub000/internal/ai"
	"github.com/Johnmelogay/reparai-app-sub000/internal/funnel"
	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
)

type genFunc func(ctx context.Context, req ai.GenerateRequest) (ai.GenerateResult, error)

func (f genFunc) GenerateQuestions(ctx context.Context, req ai.GenerateRequest) (ai.GenerateResult, error) {
	return f(ctx, req)
}

type classFunc func(ctx context.Context, req ai.AnalyzeRequest) (ai.AnalyzeResult, error)

func (f classFunc) AnalyzeRequest(ctx context.Context, req ai.AnalyzeRequest) (ai.AnalyzeResult, error) {
	return f(ctx, req)
}

func okClassifier() classFunc {
	return func(ctx context.Context, req ai.AnalyzeRequest) (ai.AnalyzeResult, error) {
		return ai.AnalyzeResult{
			Analysis: models.ClassificationResult{
				Domain:             "casa",
				ServiceType:        "hydraulic",
				ProblemGuess:       "vazamento",
				SummaryForProvider: "Vazamento na cozinha",
				Confidence:         0.9,
			},
		}, nil
	}
}

func newFunnelRouter(gen ai.Generator, class ai.Classifier) (*gin.Engine, *funnel.Registry) {
	gin.SetMode(gin.TestMode)
	registry := funnel.NewRegistry(funnel.Config{
		Generator:  gen,
		Classifier: class,
		Logger:     zerolog.Nop(),
	})
	h := &Handler{Funnels: registry, Logger: zerolog.Nop()}

	r := gin.New()
	r.POST("/api/funnel", h.FunnelStart)
	r.GET("/api/funnel/:id", h.FunnelGet)
	r.POST("/api/funnel/:id/answer", h.FunnelAnswer)
	r.POST("/api/funnel/:id/manual", h.FunnelManualText)
	r.POST("/api/funnel/:id/redo", h.FunnelRedo)
	r.DELETE("/api/funnel/:id", h.FunnelCancel)
	return r, registry
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, decoded
}

func TestFunnelFlowOverHTTP(t *testing.T) {
	calls := 0
	gen := genFunc(func(ctx context.Context, req ai.GenerateRequest) (ai.GenerateResult, error) {
		calls++
		if calls == 1 {
			return ai.GenerateResult{
				Questions: []models.DiagnosticQuestion{{
					ID:   "q1",
					Text: "Onde está o vazamento?",
					Type: models.QuestionTypeSelect,
					Options: []models.QuestionOption{
						{Value: "cozinha", Label: "Cozinha"},
						{Value: "banheiro", Label: "Banheiro"},
					},
				}},
				Confidence: 0.3,
			}, nil
		}
		return ai.GenerateResult{Confidence: 0.9}, nil
	})
	r, _ := newFunnelRouter(gen, okClassifier())

	w, body := doJSON(t, r, http.MethodPost, "/api/funnel", `{"domain":"casa","text":"torneira pingando"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if body["state"] != string(funnel.StateAwaitingAnswer) {
		t.Fatalf("expected AWAITING_ANSWER, got %v", body["state"])
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("missing funnel id in %v", body)
	}
	current, ok := body["current_question"].(map[string]any)
	if !ok || current["id"] != "q1" {
		t.Fatalf("expected current_question q1, got %v", body["current_question"])
	}

	w, body = doJSON(t, r, http.MethodPost, "/api/funnel/"+id+"/answer", `{"question_id":"q1","value":"cozinha"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("answer: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body["state"] != string(funnel.StateFinished) {
		t.Fatalf("expected FINISHED, got %v", body["state"])
	}
	if body["result"] == nil {
		t.Fatalf("expected classification result, got %v", body)
	}
	if calls != 2 {
		t.Fatalf("expected 2 generator calls, got %d", calls)
	}
}

func TestFunnelManualAnswerOverHTTP(t *testing.T) {
	gen := genFunc(func(ctx context.Context, req ai.GenerateRequest) (ai.GenerateResult, error) {
		if len(req.Answers) == 0 {
			return ai.GenerateResult{
				Questions: []models.DiagnosticQuestion{{
					ID:   "q1",
					Text: "Qual o problema?",
					Type: models.QuestionTypeSelect,
					Options: []models.QuestionOption{
						{Value: "vazamento", Label: "Vazamento"},
						{Value: funnel.ManualAnswer, Label: "Outro"},
					},
				}},
				Confidence: 0.2,
			}, nil
		}
		return ai.GenerateResult{Confidence: 0.85}, nil
	})
	r, _ := newFunnelRouter(gen, okClassifier())

	_, body := doJSON(t, r, http.MethodPost, "/api/funnel", `{"domain":"casa"}`)
	id := body["id"].(string)

	w, body := doJSON(t, r, http.MethodPost, "/api/funnel/"+id+"/answer", `{"question_id":"q1","value":"outro"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sentinel answer: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body["manual_pending"] != true {
		t.Fatalf("expected manual_pending=true, got %v", body)
	}

	w, _ = doJSON(t, r, http.MethodPost, "/api/funnel/"+id+"/answer", `{"question_id":"q1","value":"vazamento"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("answer during manual capture: expected 409, got %d", w.Code)
	}

	w, body = doJSON(t, r, http.MethodPost, "/api/funnel/"+id+"/manual", `{"text":"porta do armário soltou"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("manual: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body["state"] != string(funnel.StateFinished) {
		t.Fatalf("expected FINISHED after manual text, got %v", body["state"])
	}
}

func TestFunnelGenerationFailureIsRetryable(t *testing.T) {
	calls := 0
	gen := genFunc(func(ctx context.Context, req ai.GenerateRequest) (ai.GenerateResult, error) {
		calls++
		if calls == 1 {
			return ai.GenerateResult{}, errors.New("upstream down")
		}
		return ai.GenerateResult{Confidence: 0.9}, nil
	})
	r, _ := newFunnelRouter(gen, okClassifier())

	w, body := doJSON(t, r, http.MethodPost, "/api/funnel", `{"domain":"casa"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", w.Code, w.Body.String())
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj == nil || errObj["code"] != "AI_ERROR" {
		t.Fatalf("expected AI_ERROR envelope, got %v", body)
	}
}

func TestFunnelNotFound(t *testing.T) {
	r, _ := newFunnelRouter(&ai.MockGenerator{}, &ai.MockClassifier{})

	w, body := doJSON(t, r, http.MethodGet, "/api/funnel/fnl_missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj == nil || errObj["code"] != "FUNNEL_NOT_FOUND" {
		t.Fatalf("expected FUNNEL_NOT_FOUND envelope, got %v", body)
	}
}

func TestFunnelCancelRemovesSession(t *testing.T) {
	r, registry := newFunnelRouter(&ai.MockGenerator{}, &ai.MockClassifier{})

	_, body := doJSON(t, r, http.MethodPost, "/api/funnel", `{"domain":"casa"}`)
	id := body["id"].(string)

	w, _ := doJSON(t, r, http.MethodDelete, "/api/funnel/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", w.Code)
	}
	if _, ok := registry.Get(id); ok {
		t.Fatalf("session still registered after cancel")
	}
}

func TestParseProvidersCSV(t *testing.T) {
	content := "provider_id,name,city,address,skills,current_load,lat,lon\n" +
		"p1,Oficina do Zé,Recife,Rua da Aurora 100,mobilidade;mechanical,2,-8.05,-34.9\n" +
		"p2,Hidro Silva,Recife,,casa;hydraulic,,,\n"
	fh := makeMultipartFile(t, "providers", "providers.csv", content)

	providers, errs := parseProvidersCSV(fh)
	if len(errs) > 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(providers))
	}
	if providers[0].CurrentLoad != 2 {
		t.Fatalf("expected current_load=2, got %d", providers[0].CurrentLoad)
	}
	if providers[0].Lat == nil || *providers[0].Lat != -8.05 {
		t.Fatalf("expected lat=-8.05, got %v", providers[0].Lat)
	}
	if len(providers[0].Skills) != 2 || providers[0].Skills[1] != "mechanical" {
		t.Fatalf("unexpected skills: %v", providers[0].Skills)
	}
	if providers[1].Lat != nil || providers[1].CurrentLoad != 0 {
		t.Fatalf("expected empty optionals for p2, got %+v", providers[1])
	}
}

func TestParseProvidersCSV_MissingRequired(t *testing.T) {
	content := "provider_id,name,city,skills\n,Sem ID,Recife,casa\n"
	fh := makeMultipartFile(t, "providers", "providers.csv", content)

	providers, errs := parseProvidersCSV(fh)
	if len(providers) != 0 {
		t.Fatalf("expected no providers, got %d", len(providers))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
}

func TestParseProvidersCSV_PipeSkills(t *testing.T) {
	content := "id,name,city,skills\np1,Oficina,Recife,casa|electrical\n"
	fh := makeMultipartFile(t, "providers", "providers.csv", content)

	providers, errs := parseProvidersCSV(fh)
	if len(errs) > 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(providers) != 1 || len(providers[0].Skills) != 2 {
		t.Fatalf("unexpected parse result: %+v", providers)
	}
}

func makeMultipartFile(t *testing.T, fieldName, filename, content string) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write content: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	reader := multipart.NewReader(&buf, writer.Boundary())
	form, err := reader.ReadForm(int64(buf.Len()))
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	files := form.File[fieldName]
	if len(files) == 0 {
		t.Fatalf("no file headers found")
	}
	return files[0]
}
