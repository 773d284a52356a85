// Package evidence assembles the per-article evidence pack: every fact
// the writer may cite, fetched through the adapters under per-key
// degradation policies, sealed and persisted before rendering starts.
//
// The builder is the only component that talks to adapters during a
// run. Fetched keys fan out with bounded concurrency; computed keys are
// derived afterwards from facts already in the pack, so derivations
// always reference resolvable inputs.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
)

// Adapter names a KeyRequirement may declare.
const (
	AdapterMarketData  = "fmp"
	AdapterFilings     = "edgar"
	AdapterTranscripts = "transcripts"
	AdapterComputed    = "computed"
	AdapterStatic      = "static"
)

// Builder resolves article specs into sealed evidence packs.
type Builder struct {
	market      interfaces.MarketDataAdapter
	filings     interfaces.FilingsAdapter
	transcripts interfaces.TranscriptAdapter
	cache       interfaces.FactCache
	artifacts   interfaces.ArtifactStore
	logger      arbor.ILogger

	maxAttempts   int
	backoffBase   time.Duration
	backoffMax    time.Duration
	maxConcurrent int
	cacheTTL      time.Duration
	maxStaleDays  int
	keyTimeout    time.Duration
}

// NewBuilder wires the evidence builder from fetch config and the run's
// adapters and stores.
func NewBuilder(
	config *common.FetchConfig,
	market interfaces.MarketDataAdapter,
	filings interfaces.FilingsAdapter,
	transcripts interfaces.TranscriptAdapter,
	cache interfaces.FactCache,
	artifacts interfaces.ArtifactStore,
	logger arbor.ILogger,
) *Builder {
	b := &Builder{
		market:        market,
		filings:       filings,
		transcripts:   transcripts,
		cache:         cache,
		artifacts:     artifacts,
		logger:        logger,
		maxAttempts:   config.MaxAttempts,
		backoffBase:   common.Duration(config.BackoffBase, 500*time.Millisecond),
		backoffMax:    common.Duration(config.BackoffMax, 8*time.Second),
		maxConcurrent: config.MaxConcurrent,
		maxStaleDays:  config.MaxStaleDays,
		cacheTTL:      common.Duration(config.CacheTTL, 5*time.Minute),
		keyTimeout:    common.Duration(config.AdapterTimeout, 20*time.Second),
	}
	if b.maxAttempts < 1 {
		b.maxAttempts = 1
	}
	if b.maxConcurrent < 1 {
		b.maxConcurrent = 1
	}
	return b
}

// Build assembles, seals and persists the evidence pack for one article.
// Every required key resolves to a fact; keys that cannot be fetched
// degrade per their declared policy and are at worst marked missing.
// The pack seals regardless, and whether missing keys block publication
// is the QA gate's decision, not the builder's.
func (b *Builder) Build(ctx context.Context, spec *models.ArticleSpec, asOf time.Time) (*models.EvidencePack, error) {
	if spec == nil || len(spec.Requirements) == 0 {
		return nil, fmt.Errorf("article spec declares no requirements")
	}

	slug := spec.Slug(asOf)
	asOfDate := asOf.Format("2006-01-02")
	pack := models.NewEvidencePack(slug, asOfDate, spec.Entity, spec.RequiredKeys())

	// A re-run for the same (date, slug) is a fetch correction and gets
	// the next version; the earlier pack stays untouched for audit.
	if prior, err := b.artifacts.LatestPack(ctx, asOfDate, slug); err == nil {
		pack.Version = prior.Version + 1
	} else if !errors.Is(err, interfaces.ErrArtifactNotFound) {
		return nil, fmt.Errorf("failed to check prior pack versions: %w", err)
	}

	start := time.Now()
	b.logger.Info().
		Str("article", slug).
		Int("version", pack.Version).
		Int("keys", len(spec.Requirements)).
		Msg("Building evidence pack")

	// Fetched keys fan out; computed keys run afterwards in declaration
	// order so their inputs are already in the pack.
	facts := make([]*models.Fact, len(spec.Requirements))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.maxConcurrent)
	for i := range spec.Requirements {
		req := &spec.Requirements[i]
		if req.Adapter == AdapterComputed {
			continue
		}
		idx := i
		g.Go(func() error {
			facts[idx] = b.resolveKey(gctx, spec, req, asOfDate, asOf)
			return nil
		})
	}
	_ = g.Wait() // workers report through the facts slice, never errors

	for i := range spec.Requirements {
		req := &spec.Requirements[i]
		fact := facts[i]
		if req.Adapter == AdapterComputed {
			fact = b.computeKey(pack, spec, req, asOf)
		}
		if fact == nil {
			fact = models.NewMissingFact(req.Key, asOf)
		}
		if err := pack.Put(fact); err != nil {
			return nil, fmt.Errorf("failed to add fact %s: %w", req.Key, err)
		}
	}

	if err := pack.Seal(time.Now()); err != nil {
		return nil, fmt.Errorf("failed to seal evidence pack: %w", err)
	}
	if err := b.artifacts.SavePack(ctx, pack); err != nil {
		return nil, fmt.Errorf("failed to persist evidence pack %s v%d: %w", slug, pack.Version, err)
	}

	missing := pack.MissingKeys()
	b.logger.Info().
		Str("article", slug).
		Str("hash", pack.ContentHash).
		Int("facts", len(pack.Facts)).
		Int("missing", len(missing)).
		Float64("duration_sec", time.Since(start).Seconds()).
		Msg("Evidence pack sealed")
	if len(missing) > 0 {
		b.logger.Warn().
			Str("article", slug).
			Str("keys", strings.Join(missing, ",")).
			Msg("Evidence pack sealed with missing required keys")
	}
	return pack, nil
}

// resolveKey obtains one fetched fact: fresh cache first, then the live
// adapter with retry, then the key's degradation policy. Never returns
// nil and never fabricates a value.
func (b *Builder) resolveKey(ctx context.Context, spec *models.ArticleSpec, req *models.KeyRequirement, asOfDate string, asOf time.Time) *models.Fact {
	if req.Adapter == AdapterStatic {
		return b.staticFact(req, asOf)
	}

	entity := cacheEntity(spec, req)
	if cached, err := b.cache.GetFresh(ctx, entity, req.Field, asOfDate, b.cacheTTL); err == nil {
		b.logger.Debug().Str("key", req.Key).Str("entity", entity).Msg("Fact cache hit")
		return rekeyed(cached, req.Key)
	}

	value, source, err := b.fetchWithRetry(ctx, spec, req, asOf)
	if err == nil {
		fact := models.NewFact(req.Key, value, source, asOf)
		if cacheErr := b.cache.Put(ctx, entity, req.Field, asOfDate, fact); cacheErr != nil {
			b.logger.Warn().Err(cacheErr).Str("key", req.Key).Msg("Failed to cache fact")
		}
		return fact
	}
	return b.degrade(ctx, req, entity, err, asOf)
}

// fetchWithRetry calls the adapter under the per-key timeout. Only the
// retry policy grants more than one attempt, and only transient failures
// consume them; a not-found will not improve by asking again.
func (b *Builder) fetchWithRetry(ctx context.Context, spec *models.ArticleSpec, req *models.KeyRequirement, asOf time.Time) (interface{}, models.FactSource, error) {
	attempts := 1
	if req.Policy == models.DegradeRetry {
		attempts = b.maxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, b.keyTimeout)
		value, source, err := b.fetch(callCtx, spec, req, asOf)
		cancel()
		if err == nil {
			return value, source, nil
		}
		lastErr = err

		fetchErr, ok := interfaces.AsFetchError(err)
		if !ok || !fetchErr.Transient() || attempt == attempts {
			break
		}
		delay := b.backoff(attempt)
		if fetchErr.RetryAfter > delay {
			delay = fetchErr.RetryAfter
		}
		b.logger.Warn().
			Err(err).
			Str("key", req.Key).
			Int("attempt", attempt).
			Str("retry_in", delay.String()).
			Msg("Fetch failed, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	return nil, "", lastErr
}

// backoff doubles from the base each retry, capped at the ceiling.
func (b *Builder) backoff(attempt int) time.Duration {
	delay := b.backoffBase * time.Duration(1<<uint(attempt-1))
	if delay > b.backoffMax {
		delay = b.backoffMax
	}
	return delay
}

// degrade applies the key's declared policy after the live fetch failed.
func (b *Builder) degrade(ctx context.Context, req *models.KeyRequirement, entity string, fetchErr error, asOf time.Time) *models.Fact {
	switch req.Policy {
	case models.DegradeStaleCache:
		maxStale := req.MaxStaleDays
		if maxStale <= 0 {
			maxStale = b.maxStaleDays
		}
		if cached, err := b.cache.GetLatest(ctx, entity, req.Field, maxStale); err == nil {
			b.logger.Warn().
				Err(fetchErr).
				Str("key", req.Key).
				Str("cached_as_of", cached.AsOf.Format("2006-01-02")).
				Msg("Substituting stale cached value")
			fact := rekeyed(cached, req.Key)
			fact.Stale = true
			return fact
		}
		b.logger.Warn().Err(fetchErr).Str("key", req.Key).Int("max_stale_days", maxStale).Msg("No usable cache entry, marking missing")

	case models.DegradeStaticDefault:
		if req.StaticDefault != nil {
			b.logger.Warn().Err(fetchErr).Str("key", req.Key).Msg("Substituting static default")
			return models.NewFact(req.Key, req.StaticDefault, models.SourceStaticConfig, asOf)
		}
		b.logger.Warn().Err(fetchErr).Str("key", req.Key).Msg("No static default configured, marking missing")

	default:
		b.logger.Warn().Err(fetchErr).Str("key", req.Key).Str("policy", string(req.Policy)).Msg("Marking fact missing")
	}
	return models.NewMissingFact(req.Key, asOf)
}

// staticFact resolves a static requirement. The value is either declared
// in the article spec file or bound at selection time via SetStatic.
func (b *Builder) staticFact(req *models.KeyRequirement, asOf time.Time) *models.Fact {
	if req.StaticDefault == nil {
		b.logger.Warn().Str("key", req.Key).Msg("Static requirement has no value bound")
		return models.NewMissingFact(req.Key, asOf)
	}
	return models.NewFact(req.Key, req.StaticDefault, models.SourceStaticConfig, asOf)
}

// marketFields are market-wide regardless of the article's entity, so
// their cached values are shared across articles.
var marketFields = map[string]bool{
	"market_snapshot":    true,
	"sector_performance": true,
	"movers":             true,
}

// cacheEntity picks the cache partition for a requirement.
func cacheEntity(spec *models.ArticleSpec, req *models.KeyRequirement) string {
	if marketFields[req.Field] {
		return "market"
	}
	if spec.Entity != "" {
		return spec.Entity
	}
	return "market"
}

// rekeyed copies a cached fact under the requirement's key. Cache
// entries are stored per adapter field; specs may name the key
// differently.
func rekeyed(f *models.Fact, key string) *models.Fact {
	copied := *f
	copied.Key = key
	return &copied
}
