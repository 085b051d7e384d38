package funnel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Johnmelogay/reparai-app-sub000/internal/ai"
	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
)

type State string

const (
	StateColdStart      State = "COLD_START"
	StateAwaitingAnswer State = "AWAITING_ANSWER"
	StateGenerating     State = "GENERATING"
	StateFinished       State = "FINISHED"
)

// ManualAnswer is the reserved answer value that suspends the flow to
// collect free text for the current question.
const ManualAnswer = "outro"

var (
	ErrBusy            = errors.New("funnel: generation already in flight")
	ErrFinished        = errors.New("funnel: already finished")
	ErrNotAwaiting     = errors.New("funnel: not awaiting an answer")
	ErrNotFinished     = errors.New("funnel: not finished yet")
	ErrWrongQuestion   = errors.New("funnel: answer does not target the current question")
	ErrManualPending   = errors.New("funnel: manual text capture pending")
	ErrNoManualPending = errors.New("funnel: no manual text capture pending")
	ErrCanceled        = errors.New("funnel: session canceled")
)

// GenerationError marks a retryable collaborator failure. The answer that
// triggered the call stays recorded, so a retry repeats only the call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "funnel: generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

type Params struct {
	ConfidenceThreshold float64
	MaxQuestions        int
}

func DefaultParams() Params {
	return Params{ConfidenceThreshold: 0.7, MaxQuestions: 5}
}

// Config carries the collaborators and caches shared by every session.
type Config struct {
	Params     Params
	Generator  ai.Generator
	Classifier ai.Classifier
	Questions  *QuestionCache
	Analyses   *AnalysisCache
	Logger     zerolog.Logger

	// Idle lifetime of registry sessions; zero means the default.
	SessionTTL time.Duration
}

// Session is the funnel state machine for one request draft. All mutation
// goes through its methods; a mutex serializes them and the epoch counter
// discards results of calls that were in flight when the user backed out.
type Session struct {
	id       string
	domain   string
	userText string

	mu            sync.Mutex
	state         State
	answers       map[string]string
	history       []models.DiagnosticQuestion
	step          int
	confidence    float64
	manualPending bool
	result        *models.ClassificationResult
	epoch         uint64

	params     Params
	gen        ai.Generator
	classifier ai.Classifier
	questions  *QuestionCache
	analyses   *AnalysisCache
	logger     zerolog.Logger
}

// Snapshot is an immutable view handed to callers; it never aliases
// session-internal state.
type Snapshot struct {
	ID            string                       `json:"id"`
	Domain        string                       `json:"domain"`
	UserText      string                       `json:"user_text,omitempty"`
	State         State                        `json:"state"`
	Step          int                          `json:"step"`
	Current       *models.DiagnosticQuestion   `json:"current_question,omitempty"`
	History       []models.DiagnosticQuestion  `json:"history"`
	Answers       map[string]string            `json:"answers"`
	Confidence    float64                      `json:"confidence"`
	ManualPending bool                         `json:"manual_pending"`
	Result        *models.ClassificationResult `json:"result,omitempty"`
}

func NewSession(id, domain, userText string, cfg Config) *Session {
	params := cfg.Params
	if params.ConfidenceThreshold <= 0 {
		params.ConfidenceThreshold = DefaultParams().ConfidenceThreshold
	}
	if params.MaxQuestions <= 0 {
		params.MaxQuestions = DefaultParams().MaxQuestions
	}
	questions := cfg.Questions
	if questions == nil {
		questions = NewQuestionCache(0)
	}
	analyses := cfg.Analyses
	if analyses == nil {
		analyses = NewAnalysisCache(0)
	}
	return &Session{
		id:         id,
		domain:     models.NormalizeDomain(domain),
		userText:   strings.TrimSpace(userText),
		state:      StateColdStart,
		answers:    map[string]string{},
		params:     params,
		gen:        cfg.Generator,
		classifier: cfg.Classifier,
		questions:  questions,
		analyses:   analyses,
		logger:     cfg.Logger,
	}
}

func (s *Session) ID() string { return s.id }

// Start runs the cold-start generation. A session resumed with existing
// history goes straight back to awaiting without a new call.
func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	switch s.state {
	case StateGenerating:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrBusy
	case StateFinished:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	if len(s.history) > 0 {
		s.state = StateAwaitingAnswer
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	return s.generateAndAdvance(ctx, cloneAnswers(s.answers))
}

// Answer records the user's answer for the current question and either
// advances locally or fetches more questions. The reserved value "outro"
// suspends the flow for manual text capture instead of advancing.
func (s *Session) Answer(ctx context.Context, questionID, value string) (Snapshot, error) {
	s.mu.Lock()
	if err := s.checkAwaitingLocked(); err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, err
	}
	if s.manualPending {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrManualPending
	}
	current := s.history[s.step]
	if questionID != "" && questionID != current.ID {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrWrongQuestion
	}
	if value == ManualAnswer {
		s.manualPending = true
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	return s.recordAndAdvance(ctx, current.ID, value)
}

// SubmitManualText confirms the free text collected after a ManualAnswer
// and feeds it through the same transition logic as a regular answer.
func (s *Session) SubmitManualText(ctx context.Context, text string) (Snapshot, error) {
	s.mu.Lock()
	if err := s.checkAwaitingLocked(); err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, err
	}
	if !s.manualPending {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrNoManualPending
	}
	s.manualPending = false
	current := s.history[s.step]
	return s.recordAndAdvance(ctx, current.ID, strings.TrimSpace(text))
}

// Redo restarts the funnel from scratch. Any in-flight collaborator result
// is discarded when it returns.
func (s *Session) Redo() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.state = StateColdStart
	s.answers = map[string]string{}
	s.history = nil
	s.step = 0
	s.confidence = 0
	s.manualPending = false
	s.result = nil
	return s.snapshotLocked()
}

// Cancel invalidates the session: whatever is in flight will not be
// applied on return.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) checkAwaitingLocked() error {
	switch s.state {
	case StateGenerating:
		return ErrBusy
	case StateFinished:
		return ErrFinished
	case StateAwaitingAnswer:
		return nil
	default:
		return ErrNotAwaiting
	}
}

// recordAndAdvance requires the mutex held; it releases it before return.
func (s *Session) recordAndAdvance(ctx context.Context, questionID, value string) (Snapshot, error) {
	s.answers[questionID] = value
	if s.step < len(s.history)-1 {
		s.step++
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	// Last in-memory question answered; more are needed before advancing.
	return s.generateAndAdvance(ctx, cloneAnswers(s.answers))
}

// generateAndAdvance requires the mutex held; it releases it before return.
// The answers snapshot is passed explicitly so the call never reads state
// that may move underneath it.
func (s *Session) generateAndAdvance(ctx context.Context, answers map[string]string) (Snapshot, error) {
	s.state = StateGenerating
	epoch := s.epoch
	domain, userText := s.domain, s.userText
	key := CacheKey(domain, answers, userText)
	s.mu.Unlock()

	res, cached := s.questions.Lookup(key)
	var err error
	if !cached {
		res, err = s.gen.GenerateQuestions(ctx, ai.GenerateRequest{
			Domain:        domain,
			Answers:       answers,
			UserText:      userText,
			MinConfidence: s.params.ConfidenceThreshold,
		})
		if err == nil {
			err = res.Validate()
		}
		if err == nil {
			s.questions.Store(key, res)
		}
	}

	s.mu.Lock()
	if s.epoch != epoch {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, ErrCanceled
	}
	if err != nil {
		// Retryable: the just-given answer stays recorded.
		if len(s.history) == 0 {
			s.state = StateColdStart
		} else {
			s.state = StateAwaitingAnswer
		}
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, &GenerationError{Err: err}
	}

	s.confidence = res.Confidence
	merged := Merge(s.history, res.Questions)
	if len(merged) > s.params.MaxQuestions {
		merged = merged[:s.params.MaxQuestions]
	}
	netNew := len(merged) - len(s.history)

	switch {
	case res.Confidence >= s.params.ConfidenceThreshold:
		return s.finalize(ctx)
	case len(s.history) >= s.params.MaxQuestions:
		// Hard cap: terminate regardless of confidence.
		return s.finalize(ctx)
	case netNew == 0:
		// Collaborator cannot make further progress; force finish
		// instead of looping.
		s.logger.Warn().Str("funnel_id", s.id).Float64("confidence", res.Confidence).
			Msg("no new questions below threshold, forcing finish")
		return s.finalize(ctx)
	default:
		firstNew := len(s.history)
		s.history = merged
		s.step = firstNew
		s.state = StateAwaitingAnswer
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
}

// finalize requires the mutex held; it releases it before return. Analysis
// failure is non-fatal: the funnel still finishes, just without a result.
func (s *Session) finalize(ctx context.Context) (Snapshot, error) {
	s.state = StateFinished
	epoch := s.epoch
	answers := cloneAnswers(s.answers)
	domain, userText := s.domain, s.userText
	key := CacheKey(domain, answers, userText)
	s.mu.Unlock()

	res, cached := s.analyses.Lookup(key)
	var err error
	if !cached {
		res, err = s.classifier.AnalyzeRequest(ctx, ai.AnalyzeRequest{
			Category: domain,
			Answers:  answers,
			UserText: userText,
		})
		if err == nil {
			s.analyses.Store(key, res)
		}
	}

	s.mu.Lock()
	if s.epoch == epoch {
		if err != nil {
			s.logger.Warn().Str("funnel_id", s.id).Err(err).
				Msg("classification failed, finishing without result")
			s.result = nil
		} else {
			analysis := models.NormalizeClassification(res.Analysis)
			s.result = &analysis
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return snap, nil
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:            s.id,
		Domain:        s.domain,
		UserText:      s.userText,
		State:         s.state,
		Step:          s.step,
		History:       make([]models.DiagnosticQuestion, len(s.history)),
		Answers:       cloneAnswers(s.answers),
		Confidence:    s.confidence,
		ManualPending: s.manualPending,
	}
	copy(snap.History, s.history)
	if s.state == StateAwaitingAnswer && s.step < len(s.history) {
		q := s.history[s.step]
		snap.Current = &q
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}

func cloneAnswers(answers map[string]string) map[string]string {
	out := make(map[string]string, len(answers))
	for k, v := range answers {
		out[k] = v
	}
	return out
}
