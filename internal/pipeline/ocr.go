package pipeline

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/internal/blobstore"
	"legal-doc-intelligence/internal/providers"
	storepkg "legal-doc-intelligence/internal/store"
	"legal-doc-intelligence/models"
)

// ocrChunkLock is the slice of internal/lockcache this stage depends on.
type ocrChunkLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ocrProvider is the slice of internal/providers this stage depends on.
type ocrProvider interface {
	ExtractPages(ctx context.Context, filename string, pdfBytes []byte) (*providers.OCRResponse, error)
}

// ocrStore is the slice of internal/store this stage depends on.
type ocrStore interface {
	ClaimOCRChunk(ctx context.Context, matterID, documentID primitive.ObjectID, chunkIndex int, staleBefore time.Time) (*models.OCRChunk, error)
	CompleteOCRChunk(ctx context.Context, matterID, documentID primitive.ObjectID, chunkIndex int, storagePath, checksum string) error
	FailOCRChunk(ctx context.Context, matterID, documentID primitive.ObjectID, chunkIndex int, errMsg string) error
}

// RunOCRChunkStage is the ocr_chunk operation: it acquires the chunk's
// distributed lock, re-checks (and atomically claims) the chunk row
// for idempotency against duplicate task deliveries, calls the OCR
// provider on that page range's PDF bytes, and persists the result to
// the blob store before transitioning the chunk row to completed. A
// claim miss (already completed, or already being worked by another
// delivery) is treated as success with no further work — the caller
// must not fail the enclosing job over a race it already lost safely.
func RunOCRChunkStage(
	ctx context.Context,
	lock ocrChunkLock,
	provider ocrProvider,
	store ocrStore,
	blobs *blobstore.Store,
	matterID, documentID primitive.ObjectID,
	chunkIndex, pageStart, pageEnd int,
	staleAfter time.Duration,
	pdfBytes []byte,
	filename string,
) error {
	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return nil
	}
	defer lock.Release(ctx)

	if _, err := store.ClaimOCRChunk(ctx, matterID, documentID, chunkIndex, time.Now().Add(-staleAfter)); err != nil {
		// ErrNotFound means another delivery already owns or finished
		// this chunk; not an error the enclosing job should see.
		if errors.Is(err, storepkg.ErrNotFound) {
			return nil
		}
		return err
	}

	resp, err := provider.ExtractPages(ctx, filename, pdfBytes)
	if err != nil {
		failErr := store.FailOCRChunk(ctx, matterID, documentID, chunkIndex, err.Error())
		if failErr != nil {
			return failErr
		}
		return err
	}

	result := buildChunkOCRResult(chunkIndex, pageStart, resp)
	storagePath, checksum, err := PersistChunkResult(blobs, matterID.Hex(), chunkIndex, result)
	if err != nil {
		_ = store.FailOCRChunk(ctx, matterID, documentID, chunkIndex, err.Error())
		return err
	}

	return store.CompleteOCRChunk(ctx, matterID, documentID, chunkIndex, storagePath, checksum)
}

// buildChunkOCRResult groups the provider's flat span list by page and
// shifts page numbers by the chunk's page_start so downstream merge
// sees document-absolute page numbers rather than chunk-relative ones.
func buildChunkOCRResult(chunkIndex, pageStart int, resp *providers.OCRResponse) *ChunkOCRResult {
	pages := make(map[int]*ChunkPageResult)
	var order []int

	for _, r := range resp.Results {
		absolutePage := pageStart + r.Page - 1
		page, ok := pages[absolutePage]
		if !ok {
			page = &ChunkPageResult{PageNumber: absolutePage}
			pages[absolutePage] = page
			order = append(order, absolutePage)
		}
		page.Text += r.Text
		var box *models.BoundingBox
		if len(r.BBox) == 4 {
			box = &models.BoundingBox{
				PageNumber:    absolutePage,
				X:             r.BBox[0],
				Y:             r.BBox[1],
				W:             r.BBox[2],
				H:             r.BBox[3],
				Text:          r.Text,
				OCRConfidence: r.Confidence,
				ID:            primitive.NewObjectID(),
			}
			page.BBoxes = append(page.BBoxes, box)
		}
	}

	var pageResults []ChunkPageResult
	for _, p := range order {
		page := pages[p]
		page.Confidence = averageConfidence(page.BBoxes)
		pageResults = append(pageResults, *page)
	}

	return &ChunkOCRResult{ChunkIndex: chunkIndex, Pages: pageResults}
}

func averageConfidence(boxes []*models.BoundingBox) float64 {
	if len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, b := range boxes {
		sum += b.OCRConfidence
	}
	return sum / float64(len(boxes))
}
