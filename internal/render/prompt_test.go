package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/models"
)

func promptPack(t *testing.T) *models.EvidencePack {
	t.Helper()
	pack := models.NewEvidencePack("deep-dive-20260106-nvda", "2026-01-06", "NVDA", []string{"quote"})
	now := time.Now()
	require.NoError(t, pack.Put(models.NewFact("quote", map[string]interface{}{"price": 190.25}, models.SourceMarketData, now)))
	require.NoError(t, pack.Put(models.NewMissingFact("ev_ebitda", now)))
	require.NoError(t, pack.Seal(now))
	return pack
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	spec := &models.ArticleSpec{
		Kind:             models.ArticleDeepDive,
		Entity:           "NVDA",
		RequiredSections: []string{"Investment Summary", "Valuation"},
		Cardinality:      models.Cardinality{Competitors: 3},
	}
	pack := promptPack(t)

	_, first, err := BuildPrompt(PromptInput{Spec: spec, Pack: pack})
	require.NoError(t, err)
	_, second, err := BuildPrompt(PromptInput{Spec: spec, Pack: pack})
	require.NoError(t, err)
	assert.Equal(t, first, second, "same pack must produce identical prompt bytes")

	assert.Contains(t, first, "Investment Summary")
	assert.Contains(t, first, "at least 3 competitor rows")
	assert.Contains(t, first, `"missing": true`, "missing facts are declared, never filled in")
}

func TestBuildPrompt_ValuationSection(t *testing.T) {
	spec := &models.ArticleSpec{Kind: models.ArticleDeepDive, Entity: "NVDA"}
	pack := promptPack(t)

	set := &models.ValuationSet{
		Entity:   "NVDA",
		AsOfDate: "2026-01-06",
		Horizons: map[models.Horizon]*models.HorizonValuation{
			models.HorizonMedium: {
				Horizon: models.HorizonMedium,
				Bear:    models.ScenarioValuation{Scenario: models.ScenarioBear, Horizon: models.HorizonMedium, TargetPrice: 50, Method: "forward-multiple"},
				Base:    models.ScenarioValuation{Scenario: models.ScenarioBase, Horizon: models.HorizonMedium, TargetPrice: 75, Method: "forward-multiple"},
				Bull:    models.ScenarioValuation{Scenario: models.ScenarioBull, Horizon: models.HorizonMedium, TargetPrice: 100, Method: "forward-multiple"},
			},
		},
		Omitted:     map[models.Horizon]string{models.HorizonLong: "no FCF facts"},
		Sensitivity: models.NewSensitivityGrid([]float64{4, 5, 6}, []float64{10, 15, 20}),
	}

	_, prompt, err := BuildPrompt(PromptInput{Spec: spec, Pack: pack, Valuation: set})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Bear 50.00 / Base 75.00 / Bull 100.00")
	assert.Contains(t, prompt, `unavailable (no FCF facts)`)
	assert.Contains(t, prompt, "| $5.00 | $50.00 | $75.00 | $100.00 |")
}
