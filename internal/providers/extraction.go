package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"legal-doc-intelligence/internal/config"
	"legal-doc-intelligence/internal/pipelineerr"
)

// ExtractedEntity/Event/Citation mirror the wire shape the extraction
// provider returns; internal/pipeline/extract.go maps these onto
// models.EntityMention / models.Event / models.Citation, resolving
// canonical identity and act registry status itself rather than
// trusting the provider's raw output as final.
type ExtractedEntity struct {
	SurfaceForm string `json:"surface_form"`
	EntityType  string `json:"entity_type"`
}

type ExtractedEvent struct {
	EventDateText string `json:"event_date_text"`
	Description   string `json:"description"`
	EventType     string `json:"event_type"`
}

type ExtractedCitation struct {
	ActName string `json:"act_name"`
	Section string `json:"section"`
	RawText string `json:"raw_text"`
}

type extractionRequest struct {
	Text string `json:"text"`
	Page int    `json:"page"`
}

type ExtractionResponse struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Events    []ExtractedEvent    `json:"events"`
	Citations []ExtractedCitation `json:"citations"`
	Error     string              `json:"error,omitempty"`
}

// ExtractionClient calls the configured LLM-backed extraction provider
// on one chunk's text at a time.
type ExtractionClient struct {
	*guardedClient
	baseURL    string
	httpClient *http.Client
}

func NewExtractionClient(cfg *config.Config) *ExtractionClient {
	return &ExtractionClient{
		guardedClient: newGuardedClient("extraction", cfg.ExtractionProviderRPM, time.Duration(cfg.ExtractionProviderMinDelayS*float64(time.Second))),
		baseURL:       cfg.ExtractionProviderURL,
		httpClient:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *ExtractionClient) Extract(ctx context.Context, text string, page int) (*ExtractionResponse, error) {
	result, err := c.call(ctx, func() (interface{}, error) {
		payload, err := json.Marshal(extractionRequest{Text: text, Page: page})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, "extraction provider request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, pipelineerr.RateLimited(pipelineerr.CodeQuotaExceeded, "extraction provider rate limited this request", nil)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, fmt.Sprintf("extraction provider returned status %d: %s", resp.StatusCode, string(body)), nil)
		}

		var extResp ExtractionResponse
		if err := json.NewDecoder(resp.Body).Decode(&extResp); err != nil {
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, "failed to decode extraction response", err)
		}
		if extResp.Error != "" {
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, "extraction provider reported failure: "+extResp.Error, nil)
		}
		return &extResp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ExtractionResponse), nil
}
