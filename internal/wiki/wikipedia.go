// Package wiki looks up encyclopedic and structured knowledge-graph data
// for a scientific name. Both adapters fail soft: enrichment is best-effort
// supplementary data, never the primary result.
package wiki

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/pozuelo/bioscan/internal/cache"
)

// PageSummary is the encyclopedic slice of an enrichment record.
type PageSummary struct {
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	URL         string `json:"url"`
}

// Wikipedia fetches page summaries from the Wikipedia REST API.
type Wikipedia struct {
	http    *resty.Client
	baseURL string
	lang    string
	cache   cache.Cache
	logger  *zap.Logger
}

// NewWikipedia creates an adapter for the given language edition.
func NewWikipedia(lang string, c cache.Cache, logger *zap.Logger) *Wikipedia {
	return &Wikipedia{
		http:    resty.New(),
		baseURL: fmt.Sprintf("https://%s.wikipedia.org/api/rest_v1", lang),
		lang:    lang,
		cache:   c,
		logger:  logger,
	}
}

// SetBaseURL overrides the API base URL. Used by tests.
func (w *Wikipedia) SetBaseURL(u string) { w.baseURL = u }

type summaryResponse struct {
	Extract   string `json:"extract"`
	Thumbnail struct {
		Source string `json:"source"`
	} `json:"thumbnail"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// Summary returns the page summary for a scientific name, or nil when the
// page does not exist or the service is unreachable. Successful lookups
// are cached; absence is an expected outcome, not an error.
func (w *Wikipedia) Summary(ctx context.Context, scientificName string) *PageSummary {
	key := "wiki:" + w.lang + ":" + scientificName

	var cached PageSummary
	if cache.GetJSON(ctx, w.cache, key, &cached) {
		return &cached
	}

	var body summaryResponse
	resp, err := w.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get(w.baseURL + "/page/summary/" + url.PathEscape(scientificName))
	if err != nil {
		w.logger.Warn("wikipedia lookup failed",
			zap.String("species", scientificName), zap.Error(err))
		return nil
	}
	if resp.IsError() {
		w.logger.Debug("wikipedia page not available",
			zap.String("species", scientificName), zap.Int("status", resp.StatusCode()))
		return nil
	}

	summary := &PageSummary{
		Description: body.Extract,
		Thumbnail:   body.Thumbnail.Source,
		URL:         body.ContentURLs.Desktop.Page,
	}
	cache.SetJSON(ctx, w.cache, key, summary)
	return summary
}
