package pipeline

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/internal/logger"
	"legal-doc-intelligence/models"
)

// finalizeStore is the slice of internal/store this stage depends on.
type finalizeStore interface {
	UpdateDocumentStatus(ctx context.Context, matterID, documentID primitive.ObjectID, status models.DocumentStatus, errMsg string) error
}

// queryInvalidator is the slice of internal/lockcache this stage
// depends on — a previously cached answer may reference content that
// didn't exist until this document finished, so every cached query
// for the matter is dropped rather than selectively checked.
type queryInvalidator interface {
	InvalidateMatter(ctx context.Context, matterID string) error
}

// RunFinalizeStage marks a document completed and invalidates the
// matter's query cache, the last step of both the sync and chunked
// pipelines. Broadcasting document_ready and enqueuing the (out of
// core) notification task are the caller's responsibility — this
// stage only owns the one side effect that must happen exactly once.
// Cache invalidation is ancillary: a failure here must never fail an
// otherwise-completed document, so it's logged and swallowed rather
// than returned — a stale cache entry self-heals on its next TTL
// expiry, but a job marked failed after the document is actually done
// would not.
func RunFinalizeStage(ctx context.Context, store finalizeStore, cache queryInvalidator, matterID, documentID primitive.ObjectID) error {
	if err := store.UpdateDocumentStatus(ctx, matterID, documentID, models.DocStatusCompleted, ""); err != nil {
		return err
	}
	if err := cache.InvalidateMatter(ctx, matterID.Hex()); err != nil {
		logger.Warn("query cache invalidation failed", "matter_id", matterID.Hex(), "document_id", documentID.Hex(), "error", err)
	}
	return nil
}
