package pipeline

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/models"
)

// embedder is the slice of internal/providers this stage depends on.
type embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// embedStore is the slice of internal/store this stage depends on.
type embedStore interface {
	SetChunkEmbedding(ctx context.Context, matterID, chunkID primitive.ObjectID, embedding []float32) error
}

// embedBatchSize bounds how many chunk texts go into one provider call, so
// a large document doesn't produce one multi-megabyte request.
const embedBatchSize = 32

// RunEmbedStage embeds every given chunk's content, batching requests
// to the provider and persisting each vector as it comes back. Only
// child chunks are normally passed in — parents exist for context
// expansion, not vector search — but the stage itself is agnostic to
// which chunk type it's given.
func RunEmbedStage(ctx context.Context, provider embedder, store embedStore, matterID primitive.ObjectID, chunks []*models.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := provider.Embed(ctx, texts)
		if err != nil {
			return err
		}
		for i, c := range batch {
			c.Embedding = vectors[i]
			if err := store.SetChunkEmbedding(ctx, matterID, c.ID, vectors[i]); err != nil {
				return err
			}
		}
	}
	return nil
}
