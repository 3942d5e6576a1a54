package routes

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/internal/blobstore"
	"legal-doc-intelligence/internal/config"
	"legal-doc-intelligence/internal/ledger"
	"legal-doc-intelligence/internal/logger"
	"legal-doc-intelligence/internal/store"
	"legal-doc-intelligence/internal/worker"
	"legal-doc-intelligence/middleware"
	"legal-doc-intelligence/models"
	"legal-doc-intelligence/utils"
)

// DocumentHandlers groups the dependencies POST /documents needs: it
// writes the upload to blob storage, records the Document, and enqueues
// the first pipeline task rather than doing any processing itself.
type DocumentHandlers struct {
	store       *store.Store
	ledger      *ledger.Ledger
	blobs       *blobstore.Store
	queueClient *asynq.Client
	cfg         *config.Config
}

func NewDocumentHandlers(st *store.Store, lg *ledger.Ledger, blobs *blobstore.Store, queueClient *asynq.Client, cfg *config.Config) *DocumentHandlers {
	return &DocumentHandlers{store: st, ledger: lg, blobs: blobs, queueClient: queueClient, cfg: cfg}
}

// UploadDocument handles POST /matters/:matter_id/documents. A document
// whose content hash already exists for the matter is not re-ingested —
// the existing Document and its current job are returned instead, so a
// retried upload from a flaky client never double-processes a file.
func (h *DocumentHandlers) UploadDocument(c *gin.Context) {
	matterIDHex := c.Param("matter_id")
	matterID, err := primitive.ObjectIDFromHex(matterIDHex)
	if err != nil {
		utils.RespondWithBadRequest(c, "invalid matter id", nil)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.RespondWithBadRequest(c, "file is required", nil)
		return
	}
	if fileHeader.Size > h.cfg.MaxFileSize {
		utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
			"uploaded file exceeds the configured maximum size", gin.H{"max_size": h.cfg.MaxFileSize})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.RespondWithInternalError(c, "failed to read upload", nil)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		utils.RespondWithInternalError(c, "failed to read upload", nil)
		return
	}

	sum := sha256.Sum256(content)
	fileHash := hex.EncodeToString(sum[:])

	ctx := c.Request.Context()
	if existing, err := h.store.FindDocumentByHash(ctx, matterID, fileHash); err == nil && existing != nil {
		jobs, err := h.ledger.ListByDocument(ctx, matterID, existing.ID)
		if err == nil && len(jobs) > 0 {
			c.JSON(http.StatusOK, gin.H{"document_id": existing.ID.Hex(), "job_id": jobs[0].ID.Hex(), "deduplicated": true})
			return
		}
	}

	storagePath, err := h.blobs.Put(matterIDHex, blobstore.SubfolderUploads, fileHeader.Filename, content)
	if err != nil {
		logger.Error("document upload: blob write failed", "matter_id", matterIDHex, "error", err)
		utils.RespondWithInternalError(c, "failed to store upload", nil)
		return
	}

	doc := &models.Document{
		MatterID:    matterID,
		Filename:    fileHeader.Filename,
		StoragePath: storagePath,
		FileHash:    fileHash,
		ByteSize:    fileHeader.Size,
		Status:      models.DocStatusPending,
	}
	if err := h.store.CreateDocument(ctx, doc); err != nil {
		logger.Error("document upload: create failed", "matter_id", matterIDHex, "error", err)
		utils.RespondWithInternalError(c, "failed to record document", nil)
		return
	}

	job, err := h.ledger.Create(ctx, matterID, &doc.ID, models.JobTypeProcessDocument, h.cfg.JobMaxRecoveryRetries)
	if err != nil {
		logger.Error("document upload: ledger create failed", "document_id", doc.ID.Hex(), "error", err)
		utils.RespondWithInternalError(c, "failed to create job", nil)
		return
	}

	task, err := worker.NewProcessDocumentTask(matterIDHex, doc.ID.Hex())
	if err != nil {
		utils.RespondWithInternalError(c, "failed to build processing task", nil)
		return
	}
	info, err := h.queueClient.EnqueueContext(ctx, task)
	if err != nil {
		logger.Error("document upload: enqueue failed", "document_id", doc.ID.Hex(), "error", err)
		utils.RespondWithInternalError(c, "failed to enqueue processing", nil)
		return
	}
	if err := h.ledger.SetTaskHandle(ctx, matterID, job.ID, info.ID); err != nil {
		logger.Warn("document upload: set task handle failed", "job_id", job.ID.Hex(), "error", err)
	}

	logger.Info("document uploaded", "matter_id", matterIDHex, "document_id", doc.ID.Hex(), "job_id", job.ID.Hex())
	c.JSON(http.StatusAccepted, gin.H{"document_id": doc.ID.Hex(), "job_id": job.ID.Hex()})
}

// GetDocument handles GET /matters/:matter_id/documents/:document_id.
func (h *DocumentHandlers) GetDocument(c *gin.Context) {
	matterID, documentID, ok := parseMatterAndID(c, "document_id")
	if !ok {
		return
	}
	doc, err := h.store.GetDocument(c.Request.Context(), matterID, documentID)
	if err != nil {
		utils.RespondWithNotFound(c, "document not found")
		return
	}
	c.JSON(http.StatusOK, doc)
}

func parseMatterAndID(c *gin.Context, idParam string) (primitive.ObjectID, primitive.ObjectID, bool) {
	matterID, err := primitive.ObjectIDFromHex(middleware.GetMatterID(c))
	if err != nil {
		utils.RespondWithBadRequest(c, "invalid matter id", nil)
		return primitive.NilObjectID, primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(c.Param(idParam))
	if err != nil {
		utils.RespondWithBadRequest(c, "invalid "+idParam, nil)
		return primitive.NilObjectID, primitive.NilObjectID, false
	}
	return matterID, id, true
}
