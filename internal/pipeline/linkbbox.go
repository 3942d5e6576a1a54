package pipeline

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/models"
)

const (
	// bboxMatchThreshold is the minimum partial-ratio score a bounding
	// box's text must clear against the chunk's sliding window to be
	// considered part of that chunk, mirroring bbox_linker.py's
	// MATCH_THRESHOLD.
	bboxMatchThreshold = 80.0
	// maxBBoxWindow bounds how many boxes ahead of the current cursor are
	// considered per chunk, matching the original's MAX_BBOX_WINDOW —
	// without it a long, noisy page can make linking quadratic.
	maxBBoxWindow = 100
)

// bboxStore is the slice of internal/store that the linking stage needs.
type bboxStore interface {
	ListBoundingBoxes(ctx context.Context, matterID, documentID primitive.ObjectID) ([]*models.BoundingBox, error)
	UpdateChunkLinking(ctx context.Context, matterID, chunkID primitive.ObjectID, pageNumber int, bboxIDs []primitive.ObjectID) error
}

// LinkChunkToBBoxes finds the bounding boxes whose recognized text
// belongs to chunk, searching forward from cursor in reading order
// through at most maxBBoxWindow candidates. It returns the matched
// bbox IDs, the next search cursor (so the caller doesn't re-scan
// boxes already consumed by an earlier chunk), and the chunk's most
// common source page. Grounded in bbox_linker.py's
// link_chunk_to_bboxes sliding-window search.
func LinkChunkToBBoxes(chunk *models.Chunk, boxes []*models.BoundingBox, cursor int) (bboxIDs []primitive.ObjectID, nextCursor int, pageNumber int) {
	chunkWords := tokenize(chunk.Content)
	if len(chunkWords) == 0 || cursor >= len(boxes) {
		return nil, cursor, 0
	}

	windowEnd := cursor + maxBBoxWindow
	if windowEnd > len(boxes) {
		windowEnd = len(boxes)
	}

	pageCounts := make(map[int]int)
	lastMatched := cursor - 1

	for i := cursor; i < windowEnd; i++ {
		box := boxes[i]
		if strings.TrimSpace(box.Text) == "" {
			continue
		}

		score := partialRatio(strings.ToLower(box.Text), strings.ToLower(chunk.Content))
		if score < bboxMatchThreshold {
			continue
		}

		// Word-overlap refinement: a high partial-ratio score on a short
		// box text can still be a coincidental substring match, so also
		// require at least a couple of its words to actually appear in
		// the chunk's token set.
		boxWords := tokenize(box.Text)
		if len(boxWords) == 0 {
			continue
		}
		overlap := 0
		chunkWordSet := make(map[string]bool, len(chunkWords))
		for _, w := range chunkWords {
			chunkWordSet[w] = true
		}
		for _, w := range boxWords {
			if chunkWordSet[w] {
				overlap++
			}
		}
		minRequired := 2
		if len(boxWords) < minRequired {
			minRequired = len(boxWords)
		}
		if overlap < minRequired {
			continue
		}

		bboxIDs = append(bboxIDs, box.ID)
		pageCounts[box.PageNumber]++
		lastMatched = i
	}

	nextCursor = cursor
	if lastMatched >= cursor {
		nextCursor = lastMatched + 1
	}

	bestCount := -1
	for page, count := range pageCounts {
		if count > bestCount || (count == bestCount && page < pageNumber) {
			bestCount = count
			pageNumber = page
		}
	}
	return bboxIDs, nextCursor, pageNumber
}

// LinkChunksToBBoxes loads every bounding box for a document and links
// each chunk, in chunk order, to its source boxes. The shared cursor
// advances monotonically across chunks since chunks are themselves in
// reading order, keeping the whole document's linking close to linear
// rather than quadratic in the box count.
func LinkChunksToBBoxes(ctx context.Context, store bboxStore, matterID, documentID primitive.ObjectID, chunks []*models.Chunk) error {
	boxes, err := store.ListBoundingBoxes(ctx, matterID, documentID)
	if err != nil {
		return err
	}
	if len(boxes) == 0 {
		return nil
	}

	cursor := 0
	for _, chunk := range chunks {
		ids, next, page := LinkChunkToBBoxes(chunk, boxes, cursor)
		chunk.BBoxIDs = ids
		if page > 0 {
			chunk.PageNumber = page
		}
		cursor = next

		if err := store.UpdateChunkLinking(ctx, matterID, chunk.ID, chunk.PageNumber, chunk.BBoxIDs); err != nil {
			return err
		}
	}
	return nil
}
