package wiki

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/pozuelo/bioscan/internal/cache"
)

// EntityFacts is the knowledge-graph slice of an enrichment record.
// Err carries the upstream failure message when the lookup degraded to an
// empty result; it is never cached.
type EntityFacts struct {
	CommonNames  []string `json:"commonNames"`
	Distribution string   `json:"distribution"`
	Image        string   `json:"image"`
	Err          string   `json:"error,omitempty"`
}

// Wikidata queries the Wikidata SPARQL endpoint for species facts.
type Wikidata struct {
	http      *resty.Client
	endpoint  string
	userAgent string
	cache     cache.Cache
	logger    *zap.Logger
}

// NewWikidata creates an adapter for a SPARQL endpoint. The endpoint
// requires a descriptive User-Agent.
func NewWikidata(endpoint, userAgent string, c cache.Cache, logger *zap.Logger) *Wikidata {
	return &Wikidata{
		http:      resty.New(),
		endpoint:  endpoint,
		userAgent: userAgent,
		cache:     c,
		logger:    logger,
	}
}

type sparqlValue struct {
	Value string `json:"value"`
}

type sparqlResponse struct {
	Results struct {
		Bindings []struct {
			CommonName   sparqlValue `json:"commonName"`
			Distribution sparqlValue `json:"distribution"`
			Image        sparqlValue `json:"image"`
		} `json:"bindings"`
	} `json:"results"`
}

// speciesQuery matches entities whose taxon name (P225) equals the input,
// optionally joining Spanish common names (P1843), endemic distribution
// (P183) and a reference image (P18).
func speciesQuery(scientificName string) string {
	escaped := strings.ReplaceAll(scientificName, `"`, `\"`)
	return fmt.Sprintf(`
SELECT DISTINCT ?item ?commonName ?distribution ?image
WHERE {
  ?item wdt:P225 "%s".
  OPTIONAL { ?item wdt:P1843 ?commonName. FILTER(LANG(?commonName) = "es") }
  OPTIONAL { ?item wdt:P183 ?distribution. }
  OPTIONAL { ?item wdt:P18 ?image. }
}`, escaped)
}

// Query returns structured facts for a scientific name. On upstream failure
// it returns an empty result with Err set rather than an error. Common names
// are deduplicated preserving first appearance; distribution and image come
// from the first result row only (result order is not otherwise constrained).
func (w *Wikidata) Query(ctx context.Context, scientificName string) *EntityFacts {
	key := "graph:" + scientificName

	var cached EntityFacts
	if cache.GetJSON(ctx, w.cache, key, &cached) {
		return &cached
	}

	var body sparqlResponse
	resp, err := w.http.R().
		SetContext(ctx).
		SetQueryParam("query", speciesQuery(scientificName)).
		SetQueryParam("format", "json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", w.userAgent).
		SetResult(&body).
		Get(w.endpoint)
	if err != nil {
		w.logger.Warn("wikidata query failed",
			zap.String("species", scientificName), zap.Error(err))
		return &EntityFacts{CommonNames: []string{}, Err: err.Error()}
	}
	if resp.IsError() {
		w.logger.Warn("wikidata query rejected",
			zap.String("species", scientificName), zap.Int("status", resp.StatusCode()))
		return &EntityFacts{
			CommonNames: []string{},
			Err:         fmt.Sprintf("sparql status %d", resp.StatusCode()),
		}
	}

	facts := &EntityFacts{CommonNames: []string{}}
	seen := make(map[string]bool)
	for _, b := range body.Results.Bindings {
		if name := b.CommonName.Value; name != "" && !seen[name] {
			seen[name] = true
			facts.CommonNames = append(facts.CommonNames, name)
		}
	}
	if len(body.Results.Bindings) > 0 {
		first := body.Results.Bindings[0]
		facts.Distribution = first.Distribution.Value
		facts.Image = first.Image.Value
	}

	cache.SetJSON(ctx, w.cache, key, facts)
	return facts
}
