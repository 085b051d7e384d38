package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/Johnmelogay/reparai-app-sub000/internal/db"
	"github.com/Johnmelogay/reparai-app-sub000/internal/funnel"
	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
	"github.com/Johnmelogay/reparai-app-sub000/internal/utils"
)

// SubmitService turns a finished funnel into a persisted service request
// with its classification and provider match written in one transaction.
type SubmitService struct {
	Store  *db.Store
	Logger zerolog.Logger
}

type SubmitInput struct {
	City    string
	Address string
	Lat     *float64
	Lng     *float64
}

func (s *SubmitService) Submit(ctx context.Context, snap funnel.Snapshot, in SubmitInput) (models.ServiceRequest, models.Match, error) {
	if snap.State != funnel.StateFinished {
		return models.ServiceRequest{}, models.Match{}, funnel.ErrNotFinished
	}

	now := time.Now().UTC()
	req := models.ServiceRequest{
		ID:          fmt.Sprintf("req_%d_%d", now.UnixNano(), rand.Intn(100000)),
		CreatedAt:   now,
		Domain:      models.NormalizeDomain(snap.Domain),
		City:        strings.TrimSpace(in.City),
		Address:     strings.TrimSpace(in.Address),
		Description: snap.UserText,
		Answers:     snap.Answers,
		Lat:         in.Lat,
		Lon:         in.Lng,
		Status:      "OPEN",
	}

	local, err := s.Store.ListProviders(ctx, req.City, "")
	if err != nil {
		return models.ServiceRequest{}, models.Match{}, err
	}
	global, err := s.Store.ListProviders(ctx, "", "")
	if err != nil {
		return models.ServiceRequest{}, models.Match{}, err
	}

	cross := EvaluateCrossCity(local, global, req, snap.Result)
	match := models.Match{
		RequestID:  req.ID,
		City:       req.City,
		ReasonCode: cross.ReasonCode,
		ReasonText: cross.ReasonText,
		MatchedAt:  now,
	}

	var picked *models.Provider
	if cross.Assigned {
		eligible := cross.Local.Eligible
		if cross.CrossCity {
			eligible = cross.Global.Eligible
		}
		assignee, top2 := PickProvider(req.ID, eligible)
		hashMod := int(utils.HashStringToUint64(req.ID) % uint64(len(top2)))
		reasoning := buildMatchReasoning(req.City, snap.Result, cross, top2, &assignee, hashMod)
		match.Reasoning, _ = json.Marshal(reasoning)
		match.ProviderID = &assignee.ID
		match.Status = StatusMatched
		picked = &assignee
	} else {
		reasoning := buildMatchReasoning(req.City, snap.Result, cross, nil, nil, 0)
		match.Reasoning, _ = json.Marshal(reasoning)
		match.Status = StatusUnmatched
	}

	err = s.Store.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.Store.InsertRequest(ctx, tx, req); err != nil {
			return err
		}
		if snap.Result != nil {
			if err := s.Store.UpsertClassification(ctx, tx, req.ID, *snap.Result); err != nil {
				return err
			}
		}
		if err := s.Store.UpsertMatch(ctx, tx, match); err != nil {
			return err
		}
		if picked != nil {
			return s.Store.UpdateProviderLoad(ctx, tx, picked.ID, 1)
		}
		return nil
	})
	if err != nil {
		return models.ServiceRequest{}, models.Match{}, err
	}

	s.Logger.Info().
		Str("request_id", req.ID).
		Str("status", match.Status).
		Str("reason_code", match.ReasonCode).
		Msg("request submitted")
	return req, match, nil
}
