package handlers

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Johnmelogay/reparai-app-sub000/internal/db"
	"github.com/Johnmelogay/reparai-app-sub000/internal/funnel"
	"github.com/Johnmelogay/reparai-app-sub000/internal/geocode"
	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
	"github.com/Johnmelogay/reparai-app-sub000/internal/service"
)

type Handler struct {
	Store          *db.Store
	Funnels        *funnel.Registry
	Geocoder       geocode.Geocoder
	Validator      *validator.Validate
	Logger         zerolog.Logger
	AdminKey       string
	CountryDefault string
	AITimeout      time.Duration
}

type startFunnelRequest struct {
	Domain string `json:"domain" binding:"required"`
	Text   string `json:"text"`
}

type answerRequest struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value" binding:"required"`
}

type manualTextRequest struct {
	Text string `json:"text" binding:"required"`
}

type submitRequest struct {
	City    string   `json:"city" validate:"required"`
	Address string   `json:"address"`
	Lat     *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng     *float64 `json:"lng" validate:"omitempty,longitude"`
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Start a diagnostic funnel
// @Tags funnel
// @Accept json
// @Produce json
// @Success 201 {object} funnel.Snapshot
// @Failure 400 {object} map[string]any
// @Router /api/funnel [post]
func (h *Handler) FunnelStart(c *gin.Context) {
	var body startFunnelRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "domain is required", err.Error())
		return
	}

	s := h.Funnels.Create(body.Domain, body.Text)
	ctx, cancel := h.aiContext(c)
	defer cancel()

	snap, err := s.Start(ctx)
	if err != nil {
		h.funnelError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (h *Handler) FunnelGet(c *gin.Context) {
	s, ok := h.Funnels.Get(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "FUNNEL_NOT_FOUND", "Unknown funnel session", nil)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// @Summary Answer the current funnel question
// @Tags funnel
// @Accept json
// @Produce json
// @Success 200 {object} funnel.Snapshot
// @Failure 409 {object} map[string]any
// @Router /api/funnel/{id}/answer [post]
func (h *Handler) FunnelAnswer(c *gin.Context) {
	s, ok := h.Funnels.Get(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "FUNNEL_NOT_FOUND", "Unknown funnel session", nil)
		return
	}
	var body answerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "value is required", err.Error())
		return
	}

	ctx, cancel := h.aiContext(c)
	defer cancel()

	snap, err := s.Answer(ctx, body.QuestionID, body.Value)
	if err != nil {
		h.funnelError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) FunnelManualText(c *gin.Context) {
	s, ok := h.Funnels.Get(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "FUNNEL_NOT_FOUND", "Unknown funnel session", nil)
		return
	}
	var body manualTextRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "text is required", err.Error())
		return
	}

	ctx, cancel := h.aiContext(c)
	defer cancel()

	snap, err := s.SubmitManualText(ctx, body.Text)
	if err != nil {
		h.funnelError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) FunnelRedo(c *gin.Context) {
	s, ok := h.Funnels.Get(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "FUNNEL_NOT_FOUND", "Unknown funnel session", nil)
		return
	}
	s.Redo()

	ctx, cancel := h.aiContext(c)
	defer cancel()
	snap, err := s.Start(ctx)
	if err != nil {
		h.funnelError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) FunnelCancel(c *gin.Context) {
	if !h.Funnels.Remove(c.Param("id")) {
		writeError(c, http.StatusNotFound, "FUNNEL_NOT_FOUND", "Unknown funnel session", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "canceled"})
}

// @Summary Submit a finished funnel as a service request
// @Tags requests
// @Accept json
// @Produce json
// @Success 201 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/funnel/{id}/submit [post]
func (h *Handler) FunnelSubmit(c *gin.Context) {
	s, ok := h.Funnels.Get(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "FUNNEL_NOT_FOUND", "Unknown funnel session", nil)
		return
	}
	var body submitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid submit payload", err.Error())
		return
	}
	if err := h.Validator.Struct(body); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid submit payload", err.Error())
		return
	}

	submitter := service.SubmitService{Store: h.Store, Logger: h.Logger}
	req, match, err := submitter.Submit(c.Request.Context(), s.Snapshot(), service.SubmitInput{
		City:    body.City,
		Address: body.Address,
		Lat:     body.Lat,
		Lng:     body.Lng,
	})
	if err != nil {
		if errors.Is(err, funnel.ErrNotFinished) {
			writeError(c, http.StatusConflict, "FUNNEL_NOT_FINISHED", "Funnel has not finished yet", nil)
			return
		}
		h.Logger.Error().Err(err).Msg("submit failed")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to submit request", err.Error())
		return
	}

	h.Funnels.Remove(s.ID())
	c.JSON(http.StatusCreated, gin.H{
		"request": req,
		"match":   match,
	})
}

func (h *Handler) RequestsList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	items, err := h.Store.ListRequests(c.Request.Context(),
		c.Query("status"), c.Query("city"), c.Query("domain"), c.Query("q"), limit, offset)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list requests", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) RequestDetails(c *gin.Context) {
	details, err := h.Store.GetRequestDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "REQUEST_NOT_FOUND", "Unknown request", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load request", err.Error())
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) ProvidersList(c *gin.Context) {
	providers, err := h.Store.ListProviders(c.Request.Context(), c.Query("city"), c.Query("skill"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list providers", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": providers})
}

type ImportSummary struct {
	Parsed   int      `json:"parsed"`
	Inserted int      `json:"inserted"`
	Geocoded int      `json:"geocoded"`
	Errors   []string `json:"errors"`
}

// @Summary Import providers CSV
// @Tags providers
// @Accept multipart/form-data
// @Produce json
// @Param providers formData file true "providers.csv"
// @Success 200 {object} ImportSummary
// @Failure 400 {object} map[string]any
// @Router /api/providers/import [post]
func (h *Handler) ProvidersImport(c *gin.Context) {
	file, err := c.FormFile("providers")
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "providers file required", nil)
		return
	}
	if !validateExt(file.Filename) {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "file must be .csv", nil)
		return
	}

	providers, errs := parseProvidersCSV(file)
	summary := ImportSummary{Parsed: len(providers), Errors: errs}
	if len(errs) > 0 {
		writeError(c, http.StatusBadRequest, "CSV_PARSE_ERROR", "CSV validation errors", errs)
		return
	}

	ctx := c.Request.Context()
	geocoded := 0
	if h.Geocoder != nil {
		for i := range providers {
			if !geocode.ShouldGeocode(providers[i], false) {
				continue
			}
			query := geocode.BuildGeocodeQuery(h.CountryDefault, providers[i].City, providers[i].Address)
			lat, lon, _, _, gerr := h.Geocoder.Geocode(ctx, query)
			if gerr != nil {
				h.Logger.Warn().Err(gerr).Str("provider_id", providers[i].ID).Msg("geocode failed")
				continue
			}
			providers[i].Lat = &lat
			providers[i].Lon = &lon
			geocoded++
		}
	}
	summary.Geocoded = geocoded

	err = h.Store.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `TRUNCATE providers RESTART IDENTITY CASCADE`)
		return err
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to reset providers", err.Error())
		return
	}

	inserted, err := h.Store.InsertProviders(ctx, providers)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to insert providers", err.Error())
		return
	}
	summary.Inserted = int(inserted)
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) RegeocodeProviders(c *gin.Context) {
	if h.Geocoder == nil {
		writeError(c, http.StatusServiceUnavailable, "GEOCODER_UNAVAILABLE", "Geocoder not configured", nil)
		return
	}
	force := c.Query("force") == "1" || strings.EqualFold(c.Query("force"), "true")

	ctx := c.Request.Context()
	providers, err := h.Store.ListProviders(ctx, "", "")
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list providers", err.Error())
		return
	}

	updated := 0
	failed := 0
	for _, p := range providers {
		if !geocode.ShouldGeocode(p, force) {
			continue
		}
		query := geocode.BuildGeocodeQuery(h.CountryDefault, p.City, p.Address)
		lat, lon, _, _, gerr := h.Geocoder.Geocode(ctx, query)
		if gerr != nil {
			failed++
			h.Logger.Warn().Err(gerr).Str("provider_id", p.ID).Msg("geocode failed")
			continue
		}
		if err := h.Store.UpdateProviderCoords(ctx, p.ID, lat, lon); err != nil {
			failed++
			continue
		}
		updated++
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated, "failed": failed})
}

func (h *Handler) aiContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := h.AITimeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

func (h *Handler) funnelError(c *gin.Context, err error) {
	var genErr *funnel.GenerationError
	switch {
	case errors.As(err, &genErr):
		// Retryable: the recorded answer is kept, the client repeats
		// the same action.
		writeError(c, http.StatusBadGateway, "AI_ERROR", "Question generation failed", gin.H{"retryable": true})
	case errors.Is(err, funnel.ErrBusy):
		writeError(c, http.StatusConflict, "GENERATION_IN_FLIGHT", "A generation call is already running", nil)
	case errors.Is(err, funnel.ErrFinished):
		writeError(c, http.StatusConflict, "FUNNEL_FINISHED", "Funnel already finished", nil)
	case errors.Is(err, funnel.ErrCanceled):
		writeError(c, http.StatusConflict, "FUNNEL_CANCELED", "Funnel was canceled", nil)
	case errors.Is(err, funnel.ErrWrongQuestion):
		writeError(c, http.StatusBadRequest, "WRONG_QUESTION", "Answer does not target the current question", nil)
	case errors.Is(err, funnel.ErrManualPending):
		writeError(c, http.StatusConflict, "MANUAL_PENDING", "Manual text capture pending, confirm it first", nil)
	case errors.Is(err, funnel.ErrNoManualPending):
		writeError(c, http.StatusBadRequest, "NO_MANUAL_PENDING", "No manual text capture pending", nil)
	case errors.Is(err, funnel.ErrNotAwaiting):
		writeError(c, http.StatusConflict, "NOT_AWAITING", "Funnel is not awaiting an answer", nil)
	default:
		h.Logger.Error().Err(err).Msg("funnel error")
		writeError(c, http.StatusInternalServerError, "FUNNEL_ERROR", "Unexpected funnel error", err.Error())
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	payload := gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
	if details != nil {
		payload["error"].(gin.H)["details"] = details
	}
	c.AbortWithStatusJSON(status, payload)
}

func validateExt(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".csv")
}

func parseProvidersCSV(file *multipart.FileHeader) ([]models.Provider, []string) {
	f, err := file.Open()
	if err != nil {
		return nil, []string{"providers: " + err.Error()}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	headers, err := reader.Read()
	if err != nil {
		return nil, []string{"providers: missing header row"}
	}
	idx := headerIndex(headers)

	var providers []models.Provider
	var errs []string
	line := 1
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			errs = append(errs, "providers line "+strconv.Itoa(line)+": "+err.Error())
			continue
		}

		id := getFieldAny(rec, idx, "provider_id", "id")
		name := getField(rec, idx, "name")
		if id == "" || name == "" {
			errs = append(errs, "providers line "+strconv.Itoa(line)+": id and name required")
			continue
		}

		p := models.Provider{
			ID:        id,
			Name:      name,
			City:      strings.TrimSpace(getField(rec, idx, "city")),
			Address:   strings.TrimSpace(getField(rec, idx, "address")),
			Skills:    splitSkills(getField(rec, idx, "skills")),
			UpdatedAt: time.Now().UTC(),
		}
		if raw := getField(rec, idx, "current_load"); raw != "" {
			if load, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				p.CurrentLoad = load
			}
		}
		if raw := getField(rec, idx, "lat"); raw != "" {
			if lat, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
				p.Lat = &lat
			}
		}
		if raw := getField(rec, idx, "lon"); raw != "" {
			if lon, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
				p.Lon = &lon
			}
		}
		providers = append(providers, p)
	}
	return providers, errs
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[normalizeHeader(h)] = i
	}
	return idx
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
}

func getField(rec []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func getFieldAny(rec []string, idx map[string]int, names ...string) string {
	for _, name := range names {
		if v := getField(rec, idx, name); v != "" {
			return v
		}
	}
	return ""
}

func splitSkills(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	sep := ";"
	if !strings.Contains(raw, ";") && strings.Contains(raw, "|") {
		sep = "|"
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
