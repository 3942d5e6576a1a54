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

type embeddingRequest struct {
	Texts []string `json:"texts"`
}

type embeddingResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// EmbeddingClient batches chunk text into the configured embedding
// provider, returning one vector per input text in order.
type EmbeddingClient struct {
	*guardedClient
	baseURL    string
	httpClient *http.Client
}

func NewEmbeddingClient(cfg *config.Config) *EmbeddingClient {
	return &EmbeddingClient{
		guardedClient: newGuardedClient("embedding", cfg.EmbeddingProviderRPM, time.Duration(cfg.EmbeddingProviderMinDelayS*float64(time.Second))),
		baseURL:       cfg.EmbeddingProviderURL,
		httpClient:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	result, err := c.call(ctx, func() (interface{}, error) {
		payload, err := json.Marshal(embeddingRequest{Texts: texts})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, "embedding provider request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, pipelineerr.RateLimited(pipelineerr.CodeQuotaExceeded, "embedding provider rate limited this request", nil)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, fmt.Sprintf("embedding provider returned status %d: %s", resp.StatusCode, string(body)), nil)
		}

		var embResp embeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, "failed to decode embedding response", err)
		}
		if embResp.Error != "" {
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, "embedding provider reported failure: "+embResp.Error, nil)
		}
		if len(embResp.Embeddings) != len(texts) {
			return nil, pipelineerr.Integrity("EMBEDDING_COUNT_MISMATCH", "embedding provider returned a different vector count than inputs", nil)
		}
		return embResp.Embeddings, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([][]float32), nil
}
