package pipeline

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/models"
)

// ChunkParams configures the parent/child hierarchy boundaries; values
// come from config.Config so operators can retune without a redeploy.
type ChunkParams struct {
	ParentTokens  int
	ChildTokens   int
	OverlapPct    float64
	MinSizeTokens int
}

// ChunkDocument splits a document's merged text into a two-level
// parent/child chunk hierarchy: parents give an LLM broad context,
// children are the retrieval unit, each pointing back at its parent
// for expansion. Grounded in parent_child_chunker.py's two-pass
// splitter composition.
func ChunkDocument(matterID, documentID primitive.ObjectID, text string, p ChunkParams) []*models.Chunk {
	if text == "" {
		return nil
	}

	parentOverlap := int(float64(p.ParentTokens) * p.OverlapPct)
	childOverlap := int(float64(p.ChildTokens) * p.OverlapPct)

	parentSplitter := newRecursiveTextSplitter(p.ParentTokens, parentOverlap)
	childSplitter := newRecursiveTextSplitter(p.ChildTokens, childOverlap)

	var out []*models.Chunk

	parentTexts := parentSplitter.splitText(text)
	parentIndex := 0
	for _, parentText := range parentTexts {
		tokenCount := countTokens(parentText)
		if tokenCount < p.MinSizeTokens {
			continue
		}

		parentID := primitive.NewObjectID()
		out = append(out, &models.Chunk{
			ID:         parentID,
			MatterID:   matterID,
			DocumentID: documentID,
			ChunkType:  models.ChunkTypeParent,
			ChunkIndex: parentIndex,
			Content:    parentText,
			TokenCount: tokenCount,
		})
		parentIndex++

		childIndex := 0
		for _, childText := range childSplitter.splitText(parentText) {
			childTokens := countTokens(childText)
			if childTokens < p.MinSizeTokens {
				continue
			}
			out = append(out, &models.Chunk{
				ID:            primitive.NewObjectID(),
				MatterID:      matterID,
				DocumentID:    documentID,
				ParentChunkID: &parentID,
				ChunkType:     models.ChunkTypeChild,
				ChunkIndex:    childIndex,
				Content:       childText,
				TokenCount:    childTokens,
			})
			childIndex++
		}
	}

	return out
}

// chunkStore is the slice of internal/store that this stage depends on.
type chunkStore interface {
	ChunksExistForDocument(ctx context.Context, matterID, documentID primitive.ObjectID) (bool, error)
	InsertChunks(ctx context.Context, chunks []*models.Chunk) error
	ListChunks(ctx context.Context, matterID, documentID primitive.ObjectID, chunkType models.ChunkType) ([]*models.Chunk, error)
}

// RunChunkStage splits, persists, and returns the new chunks for a
// document whose merged OCR text is already available. Chunking is not
// individually idempotent the way other stages are — there's no
// natural per-chunk key to CAS on — so a redelivered task must instead
// detect "chunks already exist for this document" and return the
// existing set rather than inserting a second tree alongside it.
func RunChunkStage(ctx context.Context, store chunkStore, matterID, documentID primitive.ObjectID, text string, params ChunkParams) ([]*models.Chunk, error) {
	exists, err := store.ChunksExistForDocument(ctx, matterID, documentID)
	if err != nil {
		return nil, err
	}
	if exists {
		return store.ListChunks(ctx, matterID, documentID, "")
	}

	chunks := ChunkDocument(matterID, documentID, text, params)
	if len(chunks) == 0 {
		return nil, nil
	}
	if err := store.InsertChunks(ctx, chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}
