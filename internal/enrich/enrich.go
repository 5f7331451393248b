// Package enrich combines the encyclopedia and knowledge-graph lookups for
// a scientific name into one record, under a fixed precedence policy.
package enrich

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pozuelo/bioscan/internal/cache"
	"github.com/pozuelo/bioscan/internal/wiki"
)

// NoDescription is the literal served when no encyclopedic summary exists.
const NoDescription = "No hay descripción disponible"

// Enrichment is the merged record for one scientific name. Empty strings
// stand for absent values; CommonNames is never nil.
type Enrichment struct {
	Description  string   `json:"description"`
	Image        string   `json:"image"`
	CommonNames  []string `json:"commonNames"`
	Distribution string   `json:"distribution"`
	WikiURL      string   `json:"wikiUrl"`
}

// SummaryProvider yields an encyclopedic summary, or nil when unavailable.
type SummaryProvider interface {
	Summary(ctx context.Context, scientificName string) *wiki.PageSummary
}

// FactsProvider yields structured facts; it degrades to an empty result
// instead of failing.
type FactsProvider interface {
	Query(ctx context.Context, scientificName string) *wiki.EntityFacts
}

// Service coordinates the two knowledge lookups and caches merged records.
type Service struct {
	wikipedia SummaryProvider
	wikidata  FactsProvider
	cache     cache.Cache
	logger    *zap.Logger
}

// NewService creates an enrichment coordinator.
func NewService(wikipedia SummaryProvider, wikidata FactsProvider, c cache.Cache, logger *zap.Logger) *Service {
	return &Service{
		wikipedia: wikipedia,
		wikidata:  wikidata,
		cache:     c,
		logger:    logger,
	}
}

// Enrich returns the enrichment record for a scientific name. The two
// lookups are independent network round trips, so they run concurrently and
// total latency is the slower of the two, not their sum. Neither branch can
// abort the other; each fails soft on its own. The result is always
// structurally valid, possibly sparse.
func (s *Service) Enrich(ctx context.Context, scientificName string) *Enrichment {
	key := "enrich:" + scientificName

	var cached Enrichment
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		return &cached
	}

	var (
		summary *wiki.PageSummary
		facts   *wiki.EntityFacts
		wg      sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		summary = s.wikipedia.Summary(ctx, scientificName)
	}()
	go func() {
		defer wg.Done()
		facts = s.wikidata.Query(ctx, scientificName)
	}()
	wg.Wait()

	merged := merge(summary, facts)
	cache.SetJSON(ctx, s.cache, key, merged)

	s.logger.Info("species enriched",
		zap.String("species", scientificName),
		zap.Bool("has_summary", summary != nil),
		zap.Int("common_names", len(merged.CommonNames)))
	return merged
}

// merge applies the precedence policy: description and wikiUrl come from the
// encyclopedia, common names and distribution from the knowledge graph, and
// the image prefers the encyclopedia thumbnail over the graph's reference
// image.
func merge(summary *wiki.PageSummary, facts *wiki.EntityFacts) *Enrichment {
	e := &Enrichment{
		Description: NoDescription,
		CommonNames: []string{},
	}
	if summary != nil {
		if summary.Description != "" {
			e.Description = summary.Description
		}
		e.Image = summary.Thumbnail
		e.WikiURL = summary.URL
	}
	if facts != nil {
		if len(facts.CommonNames) > 0 {
			e.CommonNames = facts.CommonNames
		}
		e.Distribution = facts.Distribution
		if e.Image == "" {
			e.Image = facts.Image
		}
	}
	return e
}
