package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"legal-doc-intelligence/internal/config"
	"legal-doc-intelligence/internal/pipelineerr"
)

// OCRResult is one recognized text span returned by the OCR provider,
// carrying the normalized bounding box the linking stage anchors back
// to the source page.
type OCRResult struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Page       int       `json:"page"`
	BBox       []float64 `json:"bbox"` // [x, y, w, h] normalized 0..1
}

type OCRResponse struct {
	Success      bool        `json:"success"`
	Results      []OCRResult `json:"results"`
	QualityScore float64     `json:"quality_score"`
	Error        string      `json:"error,omitempty"`
}

// OCRClient calls the configured OCR provider for a single page range,
// guarded by a rate limiter and circuit breaker.
type OCRClient struct {
	*guardedClient
	baseURL    string
	httpClient *http.Client
}

func NewOCRClient(cfg *config.Config) *OCRClient {
	return &OCRClient{
		guardedClient: newGuardedClient("ocr", cfg.OCRProviderRPM, time.Duration(cfg.OCRProviderMinDelayS*float64(time.Second))),
		baseURL:       cfg.OCRProviderURL,
		httpClient:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// ExtractPages sends the page range's PDF bytes to the OCR provider and
// returns per-span results with bounding boxes; callers pass the
// already-split chunk's bytes, not the whole document.
func (c *OCRClient) ExtractPages(ctx context.Context, filename string, pdfBytes []byte) (*OCRResponse, error) {
	result, err := c.call(ctx, func() (interface{}, error) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		fw, err := writer.CreateFormFile("file", filename)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(fw, bytes.NewReader(pdfBytes)); err != nil {
			return nil, err
		}
		if err := writer.Close(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr/extract", &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, "ocr provider request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, pipelineerr.RateLimited(pipelineerr.CodeQuotaExceeded, "ocr provider rate limited this request", nil)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, fmt.Sprintf("ocr provider returned status %d: %s", resp.StatusCode, string(body)), nil)
		}

		var ocrResp OCRResponse
		if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, "failed to decode ocr response", err)
		}
		if !ocrResp.Success {
			return nil, pipelineerr.Transient(pipelineerr.CodeExternalService, "ocr provider reported failure: "+ocrResp.Error, nil)
		}
		return &ocrResp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*OCRResponse), nil
}
