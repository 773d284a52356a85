package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/models"
)

func newTestSelector(market *fakeMarket) *Selector {
	return NewSelector(market, arbor.NewLogger())
}

func TestBindResolvesAllKinds(t *testing.T) {
	s := newTestSelector(selectionMarket())

	bound, err := s.Bind(context.Background(), DefaultSpecs(), models.RunOptions{Date: testDate})
	require.NoError(t, err)
	require.Len(t, bound, 3)

	dd := bound[models.ArticleDeepDive]
	assert.Equal(t, "NVDA", dd.Spec.Entity)
	assert.Equal(t, []string{"NVDA"}, dd.Spec.EntityTickers)
	assert.NotEmpty(t, dd.Reason)

	theme := bound[models.ArticleThemeTrend]
	assert.NotEmpty(t, theme.Spec.Entity)
	assert.NotEmpty(t, theme.Spec.EntityTickers)
	nameReq := theme.Spec.Requirement("theme_name")
	require.NotNil(t, nameReq)
	assert.NotNil(t, nameReq.StaticDefault)

	brief := bound[models.ArticleDailyBrief]
	assert.Equal(t, models.ArticleDailyBrief, brief.Spec.Kind)
}

func TestBindSkipsDeepDiveWithoutCandidates(t *testing.T) {
	market := selectionMarket()
	market.movers = nil
	s := newTestSelector(market)

	bound, err := s.Bind(context.Background(), DefaultSpecs(), models.RunOptions{Date: testDate})
	require.NoError(t, err)

	_, ok := bound[models.ArticleDeepDive]
	assert.False(t, ok)
	_, ok = bound[models.ArticleDailyBrief]
	assert.True(t, ok)
}

func TestBindIgnoresMoversOutsideUniverse(t *testing.T) {
	market := selectionMarket()
	market.movers = []models.StockCandidate{
		{Ticker: "ZZZZ", PriceMovePct: 15, NewsCount: 5, HasEstimates: true, HasFinancials: true},
	}
	s := newTestSelector(market)

	bound, err := s.Bind(context.Background(), DefaultSpecs(), models.RunOptions{Date: testDate})
	require.NoError(t, err)

	_, ok := bound[models.ArticleDeepDive]
	assert.False(t, ok)
}

func TestBindHonorsOnlyFilter(t *testing.T) {
	s := newTestSelector(selectionMarket())

	bound, err := s.Bind(context.Background(), DefaultSpecs(), models.RunOptions{
		Date: testDate,
		Only: []models.ArticleKind{models.ArticleDailyBrief},
	})
	require.NoError(t, err)
	require.Len(t, bound, 1)
	_, ok := bound[models.ArticleDailyBrief]
	assert.True(t, ok)
}

func TestBindClonesSpecs(t *testing.T) {
	specs := DefaultSpecs()
	s := newTestSelector(selectionMarket())

	bound, err := s.Bind(context.Background(), specs, models.RunOptions{Date: testDate})
	require.NoError(t, err)

	// Binding must not leak entities back into the loaded specs.
	bound[models.ArticleDeepDive].Spec.Entity = "MUTATED"
	assert.Empty(t, specs[models.ArticleDeepDive].Entity)

	themeSpec := specs[models.ArticleThemeTrend]
	assert.Nil(t, themeSpec.Requirement("theme_name").StaticDefault)
}

func TestWatchUniverseFallsBackToDefault(t *testing.T) {
	universe := watchUniverse(map[models.ArticleKind]*models.ArticleSpec{})
	assert.True(t, universe["NVDA"])

	custom := map[models.ArticleKind]*models.ArticleSpec{
		models.ArticleDailyBrief: {Kind: models.ArticleDailyBrief, EntityTickers: []string{"ibm"}},
	}
	universe = watchUniverse(custom)
	assert.True(t, universe["IBM"])
	assert.False(t, universe["NVDA"])
}

func TestPublishOrderPutsBriefLast(t *testing.T) {
	require.Len(t, publishOrder, 3)
	assert.Equal(t, models.ArticleDailyBrief, publishOrder[len(publishOrder)-1])
}
