package service

import (
	"sort"
	"strings"

	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
	"github.com/Johnmelogay/reparai-app-sub000/internal/utils"
)

const (
	StatusMatched   = "MATCHED"
	StatusUnmatched = "UNMATCHED"

	// Geo filtering only applies when the classification is confident
	// enough and both sides have coordinates.
	GeoConfidenceFloor = 0.70
	MaxMatchRadiusKm   = 25.0
)

type EligibilityResult struct {
	Eligible    []models.Provider
	ReasonCode  string
	ReasonText  string
	Stages      []EligibilityStage
	NeedsDomain string
	NeedsSvc    string
}

type EligibilityStage struct {
	Name       string
	Candidates []models.Provider
}

// FilterEligibleProviders narrows the candidate pool in stages so an
// unmatched request can report exactly which rule emptied it. A nil
// classification degrades to domain-only matching.
func FilterEligibleProviders(providers []models.Provider, req models.ServiceRequest, analysis *models.ClassificationResult) EligibilityResult {
	needsDomain := models.NormalizeDomain(req.Domain)
	needsSvc := ""
	if analysis != nil {
		needsSvc = models.NormalizeServiceType(analysis.ServiceType)
	}

	result := EligibilityResult{
		NeedsDomain: needsDomain,
		NeedsSvc:    needsSvc,
	}

	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "city_candidates",
		Candidates: providers,
	})

	if len(providers) == 0 {
		result.ReasonCode = "NO_PROVIDERS_IN_CITY"
		result.ReasonText = "No providers in request city"
		return result
	}

	afterDomain := providers
	if needsDomain != "" {
		afterDomain = filterProviders(afterDomain, func(p models.Provider) bool {
			return hasSkill(p.Skills, needsDomain)
		})
	}
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "domain_rule",
		Candidates: afterDomain,
	})
	if needsDomain != "" && len(afterDomain) == 0 {
		result.ReasonCode = "DOMAIN_SKILL_NO_MATCH"
		result.ReasonText = "No provider covers domain " + needsDomain
		return result
	}

	afterSvc := afterDomain
	if needsSvc != "" {
		afterSvc = filterProviders(afterSvc, func(p models.Provider) bool {
			return hasSkill(p.Skills, needsSvc)
		})
	}
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "service_rule",
		Candidates: afterSvc,
	})
	if needsSvc != "" && len(afterSvc) == 0 {
		result.ReasonCode = "SERVICE_SKILL_NO_MATCH"
		result.ReasonText = "No provider covers service type " + needsSvc
		return result
	}

	afterRadius := afterSvc
	useGeo := req.Lat != nil && req.Lon != nil && analysis != nil && analysis.Confidence >= GeoConfidenceFloor
	if useGeo {
		afterRadius = filterProviders(afterRadius, func(p models.Provider) bool {
			if p.Lat == nil || p.Lon == nil {
				return true
			}
			return utils.HaversineKm(*req.Lat, *req.Lon, *p.Lat, *p.Lon) <= MaxMatchRadiusKm
		})
	}
	result.Stages = append(result.Stages, EligibilityStage{
		Name:       "radius_rule",
		Candidates: afterRadius,
	})
	if useGeo && len(afterRadius) == 0 {
		result.ReasonCode = "OUT_OF_RADIUS"
		result.ReasonText = "No eligible provider within radius"
		return result
	}

	result.Eligible = afterRadius
	return result
}

// PickProvider sorts by load and breaks ties on id, then hashes the
// request id over the top two so repeated runs stay deterministic.
// The input slice is left untouched; it still backs the eligibility
// stages recorded in the reasoning payload.
func PickProvider(requestID string, eligible []models.Provider) (models.Provider, []models.Provider) {
	sorted := make([]models.Provider, len(eligible))
	copy(sorted, eligible)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CurrentLoad == sorted[j].CurrentLoad {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CurrentLoad < sorted[j].CurrentLoad
	})

	if len(sorted) <= 2 {
		idx := int(utils.HashStringToUint64(requestID) % uint64(len(sorted)))
		return sorted[idx], sorted
	}

	top2 := sorted[:2]
	idx := int(utils.HashStringToUint64(requestID) % 2)
	return top2[idx], top2
}

type CrossCityResult struct {
	Assigned   bool
	CrossCity  bool
	Local      EligibilityResult
	Global     EligibilityResult
	ReasonCode string
	ReasonText string
}

// EvaluateCrossCity retries eligibility against the full provider pool
// when the request city has no eligible provider.
func EvaluateCrossCity(local, global []models.Provider, req models.ServiceRequest, analysis *models.ClassificationResult) CrossCityResult {
	localRes := FilterEligibleProviders(local, req, analysis)
	if len(localRes.Eligible) > 0 {
		return CrossCityResult{
			Assigned:   true,
			Local:      localRes,
			ReasonCode: "MATCHED_LOCAL",
			ReasonText: "Matched in request city",
		}
	}

	globalRes := FilterEligibleProviders(global, req, analysis)
	if len(globalRes.Eligible) > 0 {
		return CrossCityResult{
			Assigned:   true,
			CrossCity:  true,
			Local:      localRes,
			Global:     globalRes,
			ReasonCode: "MATCHED_CROSS_CITY",
			ReasonText: "Matched outside request city",
		}
	}

	return CrossCityResult{
		Local:      localRes,
		Global:     globalRes,
		ReasonCode: "NO_ELIGIBLE_PROVIDERS_GLOBAL",
		ReasonText: "No eligible provider anywhere",
	}
}

func hasSkill(skills []string, target string) bool {
	for _, s := range skills {
		if strings.EqualFold(strings.TrimSpace(s), target) {
			return true
		}
	}
	return false
}

func filterProviders(providers []models.Provider, keep func(models.Provider) bool) []models.Provider {
	out := make([]models.Provider, 0, len(providers))
	for _, p := range providers {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func buildMatchReasoning(city string, analysis *models.ClassificationResult, cross CrossCityResult, top2 []models.Provider, picked *models.Provider, hashMod int) map[string]any {
	attempts := []map[string]any{
		buildAttempt("LOCAL", city, cross.Local, false),
	}
	if cross.CrossCity || !cross.Assigned {
		attempts = append(attempts, buildAttempt("GLOBAL", "", cross.Global, true))
	}

	var top2Payload []map[string]any
	for _, p := range top2 {
		top2Payload = append(top2Payload, map[string]any{
			"provider_id": p.ID,
			"load":        p.CurrentLoad,
		})
	}

	var pickedPayload map[string]any
	if picked != nil {
		pickedPayload = map[string]any{
			"provider_id": picked.ID,
			"method":      "deterministic_round_robin",
			"hash_mod":    hashMod,
		}
	}

	reasoning := map[string]any{
		"city_selected":       city,
		"attempts":            attempts,
		"top2":                top2Payload,
		"picked":              pickedPayload,
		"fallback_cross_city": cross.CrossCity,
	}
	if analysis != nil {
		reasoning["ai_result"] = map[string]any{
			"asset_type":   analysis.AssetType,
			"service_type": analysis.ServiceType,
			"confidence":   analysis.Confidence,
		}
	}
	return reasoning
}

func buildAttempt(scope string, city string, elig EligibilityResult, fallbackUsed bool) map[string]any {
	counts := map[string]any{
		"in_city":       stageCount(elig, "city_candidates"),
		"after_domain":  stageCount(elig, "domain_rule"),
		"after_service": stageCount(elig, "service_rule"),
		"after_radius":  stageCount(elig, "radius_rule"),
	}
	attempt := map[string]any{
		"scope":  scope,
		"counts": counts,
	}
	if city != "" {
		attempt["city"] = city
	}
	if fallbackUsed {
		attempt["fallback_used"] = true
	}
	if len(elig.Eligible) == 0 {
		failed := elig.ReasonCode
		if failed == "" {
			failed = "NO_ELIGIBLE_PROVIDERS"
		}
		attempt["failed_reason_code"] = failed
	}
	return attempt
}

func stageCount(elig EligibilityResult, name string) int {
	for _, stage := range elig.Stages {
		if stage.Name == name {
			return len(stage.Candidates)
		}
	}
	return 0
}
