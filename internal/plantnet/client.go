// Package plantnet identifies plant species from photographs through the
// PlantNet API and normalizes its ranked candidate list into a single
// identification record.
package plantnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/pozuelo/bioscan/internal/upstream"
)

// ErrNoMatch is returned when the classifier finds zero candidates.
var ErrNoMatch = errors.New("no species match found")

const defaultDescription = "No hay descripción disponible"

// Identification is the normalized result of one classification call.
type Identification struct {
	Species     string   `json:"species"`
	Confidence  int      `json:"confidence"`
	Family      string   `json:"family"`
	Genus       string   `json:"genus"`
	CommonNames []string `json:"commonNames"`
	Description string   `json:"description"`
}

// Client calls the PlantNet identify endpoint.
type Client struct {
	http     *resty.Client
	endpoint string
	apiKey   string
	logger   *zap.Logger
}

// NewClient creates a PlantNet client for the given endpoint and API key.
func NewClient(endpoint, apiKey string, logger *zap.Logger) *Client {
	return &Client{
		http:     resty.New(),
		endpoint: endpoint,
		apiKey:   apiKey,
		logger:   logger,
	}
}

// identifyResponse mirrors the ranked candidate list the API returns.
type identifyResponse struct {
	Results []struct {
		Score   float64 `json:"score"`
		Species struct {
			ScientificNameWithoutAuthor string   `json:"scientificNameWithoutAuthor"`
			CommonNames                 []string `json:"commonNames"`
			Description                 string   `json:"description"`
			Genus                       struct {
				ScientificNameWithoutAuthor string `json:"scientificNameWithoutAuthor"`
			} `json:"genus"`
			Family struct {
				ScientificNameWithoutAuthor string `json:"scientificNameWithoutAuthor"`
			} `json:"family"`
		} `json:"species"`
	} `json:"results"`
}

// Identify uploads an image and returns the first (highest-ranked) match.
// No secondary ranking or confidence threshold is applied, and results are
// not cached: each uploaded image is unique. A single attempt is made.
func (c *Client) Identify(ctx context.Context, image io.Reader, filename, mimeType string) (*Identification, error) {
	if filename == "" {
		filename = "image.jpg"
	}

	var result identifyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("api-key", c.apiKey).
		SetMultipartField("images", filename, mimeType, image).
		SetResult(&result).
		Post(c.endpoint)
	if err != nil {
		return nil, &upstream.Error{Service: "plantnet", Err: err}
	}
	if resp.IsError() {
		return nil, &upstream.Error{
			Service: "plantnet",
			Status:  resp.StatusCode(),
			Err:     fmt.Errorf("identify failed: %s", resp.String()),
		}
	}

	if len(result.Results) == 0 {
		return nil, ErrNoMatch
	}

	best := result.Results[0]
	id := &Identification{
		Species:     best.Species.ScientificNameWithoutAuthor,
		Confidence:  int(math.Round(best.Score * 100)),
		Family:      best.Species.Family.ScientificNameWithoutAuthor,
		Genus:       best.Species.Genus.ScientificNameWithoutAuthor,
		CommonNames: best.Species.CommonNames,
		Description: best.Species.Description,
	}
	if id.CommonNames == nil {
		id.CommonNames = []string{}
	}
	if id.Description == "" {
		id.Description = defaultDescription
	}

	c.logger.Info("species identified",
		zap.String("species", id.Species),
		zap.Int("confidence", id.Confidence))
	return id, nil
}
