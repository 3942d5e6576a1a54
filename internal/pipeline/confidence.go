package pipeline

import (
	"context"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/models"
)

// PageConfidence is the average OCR confidence for one page, along
// with how many recognized boxes contributed to that average.
type PageConfidence struct {
	PageNumber int
	Confidence float64
	WordCount  int
}

// DocumentConfidence is the per-page breakdown plus the overall score
// used to gate a document into good/fair/poor quality status.
type DocumentConfidence struct {
	OverallConfidence float64
	PageConfidences   []PageConfidence
	TotalWords        int
}

// confidenceStore is the slice of internal/store the confidence stage needs.
type confidenceStore interface {
	ListBoundingBoxes(ctx context.Context, matterID, documentID primitive.ObjectID) ([]*models.BoundingBox, error)
}

// CalculateDocumentConfidence aggregates confidence per page and overall
// from a document's bounding boxes, grounded in
// confidence_calculator.py's per-page grouping and averaging. Returns
// a zero-value result with TotalWords 0 when the document has no
// bounding boxes yet (e.g. OCR still in flight).
func CalculateDocumentConfidence(ctx context.Context, store confidenceStore, matterID, documentID primitive.ObjectID) (*DocumentConfidence, error) {
	boxes, err := store.ListBoundingBoxes(ctx, matterID, documentID)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return &DocumentConfidence{}, nil
	}

	pageScores := make(map[int][]float64)
	for _, box := range boxes {
		pageScores[box.PageNumber] = append(pageScores[box.PageNumber], box.OCRConfidence)
	}

	pages := make([]int, 0, len(pageScores))
	for page := range pageScores {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	var pageConfidences []PageConfidence
	var totalSum float64
	var totalCount int
	for _, page := range pages {
		scores := pageScores[page]
		var sum float64
		for _, s := range scores {
			sum += s
		}
		avg := sum / float64(len(scores))
		pageConfidences = append(pageConfidences, PageConfidence{
			PageNumber: page,
			Confidence: avg,
			WordCount:  len(scores),
		})
		totalSum += sum
		totalCount += len(scores)
	}

	overall := 0.0
	if totalCount > 0 {
		overall = totalSum / float64(totalCount)
	}

	return &DocumentConfidence{
		OverallConfidence: overall,
		PageConfidences:   pageConfidences,
		TotalWords:        totalCount,
	}, nil
}

// confidenceSetter is the slice of internal/store needed to persist the
// computed confidence and resulting quality status back onto the document.
type confidenceSetter interface {
	SetDocumentOCRConfidence(ctx context.Context, matterID, documentID primitive.ObjectID, confidence float64) (models.OCRQualityStatus, error)
}

// RunConfidenceStage computes and persists a document's OCR confidence,
// returning the resulting quality status so the caller can decide
// whether to flag the document for manual review.
func RunConfidenceStage(ctx context.Context, store confidenceStore, setter confidenceSetter, matterID, documentID primitive.ObjectID) (models.OCRQualityStatus, *DocumentConfidence, error) {
	result, err := CalculateDocumentConfidence(ctx, store, matterID, documentID)
	if err != nil {
		return "", nil, err
	}
	if result.TotalWords == 0 {
		return "", result, nil
	}
	status, err := setter.SetDocumentOCRConfidence(ctx, matterID, documentID, result.OverallConfidence)
	if err != nil {
		return "", nil, err
	}
	return status, result, nil
}
