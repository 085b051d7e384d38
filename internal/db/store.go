package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) InsertProviders(ctx context.Context, providers []models.Provider) (int64, error) {
	rows := make([][]any, 0, len(providers))
	for _, p := range providers {
		rows = append(rows, []any{p.ID, p.Name, p.City, p.Address, p.Skills, p.Lat, p.Lon, p.CurrentLoad, p.UpdatedAt})
	}
	copyCount, err := s.Pool.CopyFrom(ctx, pgx.Identifier{"providers"}, []string{"id", "name", "city", "address", "skills", "lat", "lon", "current_load", "updated_at"}, pgx.CopyFromRows(rows))
	return copyCount, err
}

func (s *Store) ListProviders(ctx context.Context, city string, skill string) ([]models.Provider, error) {
	query := `SELECT id, name, city, address, skills, lat, lon, current_load, updated_at FROM providers`
	var args []any
	var wheres []string
	if city != "" {
		args = append(args, city)
		wheres = append(wheres, fmt.Sprintf("city = $%d", len(args)))
	}
	if skill != "" {
		args = append(args, skill)
		wheres = append(wheres, fmt.Sprintf("$%d = ANY(skills)", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY current_load ASC, id ASC"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Provider
	for rows.Next() {
		var p models.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.City, &p.Address, &p.Skills, &p.Lat, &p.Lon, &p.CurrentLoad, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProviderLoad(ctx context.Context, tx pgx.Tx, providerID string, delta int) error {
	_, err := tx.Exec(ctx, `UPDATE providers SET current_load = current_load + $1, updated_at = NOW() WHERE id = $2`, delta, providerID)
	return err
}

func (s *Store) UpdateProviderCoords(ctx context.Context, providerID string, lat, lon float64) error {
	_, err := s.Pool.Exec(ctx, `UPDATE providers SET lat = $1, lon = $2, updated_at = NOW() WHERE id = $3`, lat, lon, providerID)
	return err
}

func (s *Store) InsertRequest(ctx context.Context, tx pgx.Tx, r models.ServiceRequest) error {
	answersJSON, _ := json.Marshal(r.Answers)
	_, err := tx.Exec(ctx, `
		INSERT INTO requests (id, created_at, domain, city, address, description, answers, lat, lon, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, r.ID, r.CreatedAt, r.Domain, r.City, r.Address, r.Description, answersJSON, r.Lat, r.Lon, r.Status)
	return err
}

func (s *Store) UpsertClassification(ctx context.Context, tx pgx.Tx, requestID string, c models.ClassificationResult) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO classifications (request_id, domain, asset_type, service_type, issue_tags, problem_guess, summary_for_provider, confidence, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		ON CONFLICT (request_id) DO UPDATE SET
			domain = EXCLUDED.domain,
			asset_type = EXCLUDED.asset_type,
			service_type = EXCLUDED.service_type,
			issue_tags = EXCLUDED.issue_tags,
			problem_guess = EXCLUDED.problem_guess,
			summary_for_provider = EXCLUDED.summary_for_provider,
			confidence = EXCLUDED.confidence,
			created_at = EXCLUDED.created_at
	`, requestID, c.Domain, c.AssetType, c.ServiceType, c.IssueTags, c.ProblemGuess, c.SummaryForProvider, c.Confidence)
	return err
}

func (s *Store) UpsertMatch(ctx context.Context, tx pgx.Tx, m models.Match) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO matches (request_id, provider_id, city, status, reason_code, reason_text, reasoning, matched_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (request_id) DO UPDATE SET
			provider_id = EXCLUDED.provider_id,
			city = EXCLUDED.city,
			status = EXCLUDED.status,
			reason_code = EXCLUDED.reason_code,
			reason_text = EXCLUDED.reason_text,
			reasoning = EXCLUDED.reasoning,
			matched_at = EXCLUDED.matched_at
	`, m.RequestID, m.ProviderID, m.City, m.Status, m.ReasonCode, m.ReasonText, m.Reasoning, m.MatchedAt)
	return err
}

func (s *Store) ListRequests(ctx context.Context, status, city, domain, q string, limit, offset int) ([]map[string]any, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT r.id, r.created_at, r.domain, r.city, r.address, r.description, r.status,
		m.status, m.provider_id, m.reason_code,
		c.asset_type, c.service_type, c.problem_guess, c.confidence
		FROM requests r
		LEFT JOIN matches m ON m.request_id = r.id
		LEFT JOIN classifications c ON c.request_id = r.id`
	var args []any
	var wheres []string
	if status != "" {
		args = append(args, status)
		wheres = append(wheres, fmt.Sprintf("m.status = $%d", len(args)))
	}
	if city != "" {
		args = append(args, city)
		wheres = append(wheres, fmt.Sprintf("r.city = $%d", len(args)))
	}
	if domain != "" {
		args = append(args, domain)
		wheres = append(wheres, fmt.Sprintf("r.domain = $%d", len(args)))
	}
	if q != "" {
		args = append(args, "%"+q+"%")
		wheres = append(wheres, fmt.Sprintf("(r.description ILIKE $%d OR r.id ILIKE $%d)", len(args), len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += " ORDER BY r.created_at DESC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var (
			id           string
			createdAt    time.Time
			reqDomain    string
			reqCity      string
			address      string
			description  string
			reqStatus    string
			matchStatus  *string
			providerID   *string
			reasonCode   *string
			assetType    *string
			serviceType  *string
			problemGuess *string
			confidence   *float64
		)
		if err := rows.Scan(&id, &createdAt, &reqDomain, &reqCity, &address, &description, &reqStatus, &matchStatus, &providerID, &reasonCode, &assetType, &serviceType, &problemGuess, &confidence); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"id":            id,
			"created_at":    createdAt,
			"domain":        reqDomain,
			"city":          reqCity,
			"address":       address,
			"description":   description,
			"status":        reqStatus,
			"match_status":  matchStatus,
			"provider_id":   providerID,
			"reason_code":   reasonCode,
			"asset_type":    assetType,
			"service_type":  serviceType,
			"problem_guess": problemGuess,
			"confidence":    confidence,
		})
	}
	return out, rows.Err()
}

func (s *Store) GetRequestDetails(ctx context.Context, requestID string) (map[string]any, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT r.id, r.created_at, r.domain, r.city, r.address, r.description, r.answers, r.lat, r.lon, r.status,
			m.request_id, m.provider_id, m.city, m.status, m.reason_code, m.reason_text, m.reasoning, m.matched_at,
			c.domain, c.asset_type, c.service_type, c.issue_tags, c.problem_guess, c.summary_for_provider, c.confidence
		FROM requests r
		LEFT JOIN matches m ON m.request_id = r.id
		LEFT JOIN classifications c ON c.request_id = r.id
		WHERE r.id = $1
	`, requestID)

	var (
		r           models.ServiceRequest
		answersJSON []byte

		mRequestID *string
		providerID *string
		mCity      *string
		mStatus    *string
		reasonCode *string
		reasonText *string
		reasoning  []byte
		matchedAt  *time.Time

		cDomain      *string
		assetType    *string
		serviceType  *string
		issueTags    []string
		problemGuess *string
		summary      *string
		confidence   *float64
	)

	if err := row.Scan(
		&r.ID, &r.CreatedAt, &r.Domain, &r.City, &r.Address, &r.Description, &answersJSON, &r.Lat, &r.Lon, &r.Status,
		&mRequestID, &providerID, &mCity, &mStatus, &reasonCode, &reasonText, &reasoning, &matchedAt,
		&cDomain, &assetType, &serviceType, &issueTags, &problemGuess, &summary, &confidence,
	); err != nil {
		return nil, err
	}

	if len(answersJSON) > 0 {
		_ = json.Unmarshal(answersJSON, &r.Answers)
	}

	result := map[string]any{
		"request": r,
	}
	if mRequestID != nil {
		var reasoningValue any
		if len(reasoning) > 0 {
			var tmp any
			if err := json.Unmarshal(reasoning, &tmp); err == nil {
				reasoningValue = tmp
			}
		}
		result["match"] = map[string]any{
			"provider_id": providerID,
			"city":        mCity,
			"status":      mStatus,
			"reason_code": reasonCode,
			"reason_text": reasonText,
			"reasoning":   reasoningValue,
			"matched_at":  matchedAt,
		}
	}
	if cDomain != nil {
		result["ai_result"] = map[string]any{
			"domain":               derefString(cDomain),
			"asset_type":           derefString(assetType),
			"service_type":         derefString(serviceType),
			"issue_tags":           issueTags,
			"problem_guess":        derefString(problemGuess),
			"summary_for_provider": derefString(summary),
			"confidence":           derefFloat(confidence),
		}
	}
	return result, nil
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
