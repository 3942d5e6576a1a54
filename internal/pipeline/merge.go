package pipeline

import (
	"context"
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/internal/blobstore"
	"legal-doc-intelligence/internal/pipelineerr"
	"legal-doc-intelligence/models"
	"legal-doc-intelligence/utils"
)

// ChunkPageResult is one OCR'd page within a chunk's result blob.
type ChunkPageResult struct {
	PageNumber int               `json:"page_number"`
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	BBoxes     []*models.BoundingBox `json:"bboxes"`
}

// ChunkOCRResult is the full payload an ocr_chunk task persists to the
// object store at result_storage_path — providers.OCRResponse reshaped
// per chunk rather than per document.
type ChunkOCRResult struct {
	ChunkIndex int               `json:"chunk_index"`
	Pages      []ChunkPageResult `json:"pages"`
}

// mergeStore is the slice of internal/store the merge stage needs.
type mergeStore interface {
	ListOCRChunks(ctx context.Context, matterID, documentID primitive.ObjectID) ([]*models.OCRChunk, error)
	InsertBoundingBoxes(ctx context.Context, boxes []*models.BoundingBox) error
	SetDocumentExtractedText(ctx context.Context, matterID, documentID primitive.ObjectID, text string) error
}

type mergeBlobs interface {
	Get(storagePath string) ([]byte, error)
}

// MergeChunkResults stitches every completed OCRChunk's per-page
// results into a single document text, in page order, and inserts
// every chunk's bounding boxes with a document-wide reading_order so
// internal/pipeline's later bbox-linking stage can do a single
// sliding-window pass over the whole document. It requires that
// chunks were claimed in [0..N-1] with contiguous, non-overlapping
// page ranges (the router's own invariant) — a gap or overlap here
// means a chunk never completed and is an integrity violation, not a
// recoverable condition, since the sweeper already retries individual
// chunks before merge is ever attempted.
func MergeChunkResults(ctx context.Context, store mergeStore, blobs mergeBlobs, matterID, documentID primitive.ObjectID) (string, error) {
	ocrChunks, err := store.ListOCRChunks(ctx, matterID, documentID)
	if err != nil {
		return "", err
	}

	expectedPage := 1
	var mergedText string
	var allBoxes []*models.BoundingBox
	readingOrder := 0

	for i, chunk := range ocrChunks {
		if chunk.ChunkIndex != i {
			return "", pipelineerr.Integrity(pipelineerr.CodeChunkContiguity,
				"ocr chunk indexes are not contiguous from zero", nil)
		}
		if chunk.Status != models.OCRChunkCompleted {
			return "", pipelineerr.Integrity(pipelineerr.CodeChunkingPartial,
				"merge attempted before all chunks completed", nil)
		}
		if chunk.PageStart != expectedPage {
			return "", pipelineerr.Integrity(pipelineerr.CodeChunkContiguity,
				"ocr chunk page ranges are not contiguous", nil)
		}
		expectedPage = chunk.PageEnd + 1

		compressed, err := blobs.Get(chunk.ResultStoragePath)
		if err != nil {
			return "", err
		}
		raw, err := utils.DecompressData(compressed, utils.CompressionGzip)
		if err != nil {
			return "", pipelineerr.Integrity(pipelineerr.CodeChunkContiguity, "corrupt chunk result blob", err)
		}
		var result ChunkOCRResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return "", pipelineerr.Integrity(pipelineerr.CodeChunkContiguity, "corrupt chunk result blob", err)
		}

		for _, page := range result.Pages {
			mergedText += page.Text
			mergedText += "\n\n"
			for _, box := range page.BBoxes {
				box.MatterID = matterID
				box.DocumentID = documentID
				box.ReadingOrder = readingOrder
				readingOrder++
				allBoxes = append(allBoxes, box)
			}
		}
	}

	if len(allBoxes) > 0 {
		if err := store.InsertBoundingBoxes(ctx, allBoxes); err != nil {
			return "", err
		}
	}
	if err := store.SetDocumentExtractedText(ctx, matterID, documentID, mergedText); err != nil {
		return "", err
	}
	return mergedText, nil
}

// PersistChunkResult serializes and writes one chunk's OCR result to
// the blob store, returning the storage_path and a checksum suitable
// for the OCRChunk row — the write side of the blob this stage later
// reads back in MergeChunkResults.
func PersistChunkResult(store *blobstore.Store, matterID string, chunkIndex int, result *ChunkOCRResult) (storagePath, checksum string, err error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return "", "", err
	}
	compressed, err := utils.CompressData(raw, utils.CompressionGzip)
	if err != nil {
		return "", "", err
	}
	storagePath, err = store.Put(matterID, blobstore.SubfolderOCRChunks, "chunk.json.gz", compressed)
	if err != nil {
		return "", "", err
	}
	return storagePath, checksumOf(raw), nil
}
