package pipeline

import (
	"context"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/models"
)

// bboxLoader is the slice of internal/store this file depends on.
type bboxLoader interface {
	ListBoundingBoxes(ctx context.Context, matterID, documentID primitive.ObjectID) ([]*models.BoundingBox, error)
}

// BBoxIndex lazily loads a document's bounding boxes once and reuses
// them across every extracted item in every chunk, so filtering an
// event or citation's source bbox set doesn't cost a query per item.
type BBoxIndex struct {
	loaded bool
	byID   map[primitive.ObjectID]*models.BoundingBox
}

func NewBBoxIndex() *BBoxIndex {
	return &BBoxIndex{}
}

func (idx *BBoxIndex) load(ctx context.Context, store bboxLoader, matterID, documentID primitive.ObjectID) error {
	if idx.loaded {
		return nil
	}
	boxes, err := store.ListBoundingBoxes(ctx, matterID, documentID)
	if err != nil {
		return err
	}
	idx.byID = make(map[primitive.ObjectID]*models.BoundingBox, len(boxes))
	for _, b := range boxes {
		idx.byID[b.ID] = b
	}
	idx.loaded = true
	return nil
}

const minBBoxWordOverlap = 2

var wordPattern = regexp.MustCompile(`[A-Za-z0-9]+`)

// tokenizeForOverlap lowercases and splits into words of at least 3
// characters, filtering the short connective words that would make
// almost any bbox look like a match.
func tokenizeForOverlap(text string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) >= 3 {
			set[w] = struct{}{}
		}
	}
	return set
}

func countOverlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

// FilterBBoxIDsByText narrows a chunk's bbox_ids to the subset whose
// OCR text actually overlaps the extracted item's text, instead of
// handing every downstream item the chunk's entire bbox set — the
// "chunk-level aggregation" problem where every citation or event in a
// ten-bbox chunk points at all ten bboxes regardless of which one it
// actually came from. Falls back to the full chunk set when no bbox
// clears the overlap threshold, since an approximate source beats none.
func (idx *BBoxIndex) FilterBBoxIDsByText(ctx context.Context, store bboxLoader, matterID, documentID primitive.ObjectID, itemText string, chunkBBoxIDs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	if itemText == "" || len(chunkBBoxIDs) == 0 {
		return chunkBBoxIDs, nil
	}
	if err := idx.load(ctx, store, matterID, documentID); err != nil {
		return chunkBBoxIDs, err
	}

	itemWords := tokenizeForOverlap(itemText)
	if len(itemWords) == 0 {
		return chunkBBoxIDs, nil
	}
	threshold := minBBoxWordOverlap
	if len(itemWords) < minBBoxWordOverlap {
		threshold = 1
	}

	var matched []primitive.ObjectID
	for _, id := range chunkBBoxIDs {
		box, ok := idx.byID[id]
		if !ok {
			continue
		}
		if countOverlap(itemWords, tokenizeForOverlap(box.Text)) >= threshold {
			matched = append(matched, id)
		}
	}
	if len(matched) == 0 {
		return chunkBBoxIDs, nil
	}
	return matched, nil
}
