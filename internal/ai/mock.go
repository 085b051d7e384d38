package ai

import (
	"context"
	"fmt"

	"github.com/Johnmelogay/reparai-app-sub000/internal/models"
	"github.com/Johnmelogay/reparai-app-sub000/internal/utils"
)

// MockGenerator walks a fixed per-domain question bank with confidence
// rising as answers accumulate. Deterministic, no network.
type MockGenerator struct {
	ModelVersion string
}

var mockBanks = map[string][]models.DiagnosticQuestion{
	"casa": {
		{ID: "q_equipamento", Text: "Qual equipamento precisa de reparo?", Type: models.QuestionTypeSelect, Options: []models.QuestionOption{
			{Label: "Geladeira", Value: "geladeira"},
			{Label: "Máquina de lavar", Value: "maquina_lavar"},
			{Label: "Ar-condicionado", Value: "ar_condicionado"},
			{Label: "Outro", Value: "outro"},
		}},
		{ID: "q_liga", Text: "O equipamento liga normalmente?", Type: models.QuestionTypeTri},
		{ID: "q_ruido", Text: "Faz algum ruído fora do comum?", Type: models.QuestionTypeBoolean},
		{ID: "q_vazamento", Text: "Há vazamento de água visível?", Type: models.QuestionTypeBoolean},
		{ID: "q_recente", Text: "O problema começou na última semana?", Type: models.QuestionTypeTri},
	},
	"mobilidade": {
		{ID: "q_veiculo", Text: "Qual veículo precisa de serviço?", Type: models.QuestionTypeSelect, Options: []models.QuestionOption{
			{Label: "Bicicleta", Value: "bicicleta"},
			{Label: "Moto", Value: "moto"},
			{Label: "Carro", Value: "carro"},
			{Label: "Outro", Value: "outro"},
		}},
		{ID: "q_movimento", Text: "O problema aparece em movimento?", Type: models.QuestionTypeBoolean},
		{ID: "q_freio", Text: "Os freios respondem normalmente?", Type: models.QuestionTypeTri},
		{ID: "q_barulho", Text: "Há barulho ao pedalar ou acelerar?", Type: models.QuestionTypeBoolean},
		{ID: "q_queda", Text: "Houve queda ou impacto recente?", Type: models.QuestionTypeTri},
	},
	"tecnologia": {
		{ID: "q_aparelho", Text: "Qual aparelho apresenta o problema?", Type: models.QuestionTypeSelect, Options: []models.QuestionOption{
			{Label: "Celular", Value: "celular"},
			{Label: "Notebook", Value: "notebook"},
			{Label: "Televisão", Value: "televisao"},
			{Label: "Outro", Value: "outro"},
		}},
		{ID: "q_liga_tec", Text: "O aparelho liga?", Type: models.QuestionTypeTri},
		{ID: "q_tela", Text: "A tela está danificada?", Type: models.QuestionTypeBoolean},
		{ID: "q_agua", Text: "Teve contato com água?", Type: models.QuestionTypeTri},
		{ID: "q_software", Text: "O problema parece ser de software?", Type: models.QuestionTypeTri},
	},
}

func (m MockGenerator) GenerateQuestions(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	bank, ok := mockBanks[models.NormalizeDomain(req.Domain)]
	if !ok {
		bank = mockBanks["casa"]
	}

	answered := len(req.Answers)
	confidence := 0.15 + 0.2*float64(answered)
	if confidence > 0.95 {
		confidence = 0.95
	}

	if answered >= len(bank) {
		return GenerateResult{Confidence: confidence}, nil
	}
	next := bank[answered]
	return GenerateResult{
		Questions:  []models.DiagnosticQuestion{next},
		Confidence: confidence,
	}, nil
}

// MockClassifier derives a stable taxonomy from a hash of the inputs,
// mirroring what the analyze function returns in shape.
type MockClassifier struct {
	ModelVersion string
}

func (m MockClassifier) AnalyzeRequest(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error) {
	seed := req.Category + "|" + req.UserText
	for k, v := range req.Answers {
		seed += "|" + k + "=" + v
	}
	h := utils.HashStringToUint64(seed)

	assets := map[string][]string{
		"casa":       {"geladeira", "maquina_lavar", "ar_condicionado"},
		"mobilidade": {"bicicleta", "moto", "carro"},
		"tecnologia": {"celular", "notebook", "televisao"},
	}
	services := []string{"mechanical", "electrical", "hydraulic", "installation", "maintenance", "diagnostic"}
	tags := []string{"nao_liga", "ruido", "vazamento", "desgaste", "queda"}

	domain := models.NormalizeDomain(req.Category)
	pool, ok := assets[domain]
	if !ok {
		pool = assets["casa"]
	}
	asset := pool[int(h%uint64(len(pool)))]
	service := services[int((h/7)%uint64(len(services)))]

	confidence := 0.78
	if h%5 == 0 {
		confidence = 0.64
	}

	analysis := models.ClassificationResult{
		Domain:       domain,
		AssetType:    asset,
		ServiceType:  service,
		IssueTags:    []string{tags[int((h/13)%uint64(len(tags)))], tags[int((h/17)%uint64(len(tags)))]},
		ProblemGuess: fmt.Sprintf("Possível problema de %s em %s", service, asset),
		SummaryForProvider: fmt.Sprintf(
			"Cliente relata problema em %s (%s). Serviço provável: %s.", asset, domain, service),
		Confidence: confidence,
	}
	return AnalyzeResult{Analysis: analysis}, nil
}
