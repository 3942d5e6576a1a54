package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/internal/blobstore"
	"legal-doc-intelligence/internal/config"
	"legal-doc-intelligence/internal/cpupool"
	"legal-doc-intelligence/internal/ledger"
	"legal-doc-intelligence/internal/lockcache"
	"legal-doc-intelligence/internal/logger"
	"legal-doc-intelligence/internal/pipeline"
	"legal-doc-intelligence/internal/pipelineerr"
	"legal-doc-intelligence/internal/providers"
	"legal-doc-intelligence/internal/realtime"
	"legal-doc-intelligence/internal/router"
	"legal-doc-intelligence/internal/store"
	"legal-doc-intelligence/models"
)

// TaskProcessor holds every dependency a task handler needs and exposes
// one method per task type, registered onto an asynq.ServeMux by the
// caller (cmd/worker). It also acts as its own asynq client so a
// handler can enqueue the next task in the chain (process_document ->
// ocr_chunk x N -> merge_and_finalize) without a separate dispatcher.
type TaskProcessor struct {
	store      *store.Store
	ledger     *ledger.Ledger
	blobs      *blobstore.Store
	router     *router.Router
	ocr        *providers.OCRClient
	embedding  *providers.EmbeddingClient
	extraction *providers.ExtractionClient
	queryCache *lockcache.QueryCache
	rdb        *redis.Client
	client     *asynq.Client
	cfg        *config.Config
	cpu        *cpupool.Pool
	pub        *realtime.Publisher
}

func NewTaskProcessor(
	st *store.Store,
	lg *ledger.Ledger,
	blobs *blobstore.Store,
	rt *router.Router,
	ocr *providers.OCRClient,
	embedding *providers.EmbeddingClient,
	extraction *providers.ExtractionClient,
	queryCache *lockcache.QueryCache,
	rdb *redis.Client,
	client *asynq.Client,
	cfg *config.Config,
) *TaskProcessor {
	return &TaskProcessor{
		store:      st,
		ledger:     lg,
		blobs:      blobs,
		router:     rt,
		ocr:        ocr,
		embedding:  embedding,
		extraction: extraction,
		queryCache: queryCache,
		rdb:        rdb,
		client:     client,
		cfg:        cfg,
		cpu:        cpupool.New(cfg.CPUPoolSize),
		pub:        realtime.NewPublisher(rdb),
	}
}

// publishProgress best-effort notifies any live WebSocket connections
// of a stage transition; a publish failure never fails the task, since
// the ledger row (not the socket) is this job's durable state.
func (p *TaskProcessor) publishProgress(ctx context.Context, matterID, documentID, jobID primitive.ObjectID, stage string, progress int) {
	if err := p.pub.Publish(ctx, realtime.Event{
		Type:       realtime.EventJobProgress,
		MatterID:   matterID.Hex(),
		DocumentID: documentID.Hex(),
		JobID:      jobID.Hex(),
		Stage:      stage,
		Progress:   progress,
	}); err != nil {
		logger.Warn("realtime publish failed", "job_id", jobID.Hex(), "stage", stage, "error", err)
	}
}

func (p *TaskProcessor) publishDocumentStatus(ctx context.Context, matterID, documentID primitive.ObjectID, status string) {
	if err := p.pub.Publish(ctx, realtime.Event{
		Type:       realtime.EventDocumentStatus,
		MatterID:   matterID.Hex(),
		DocumentID: documentID.Hex(),
		Status:     status,
	}); err != nil {
		logger.Warn("realtime publish failed", "document_id", documentID.Hex(), "status", status, "error", err)
	}
}

func (p *TaskProcessor) publishDocumentReady(ctx context.Context, matterID, documentID primitive.ObjectID) {
	if err := p.pub.Publish(ctx, realtime.Event{
		Type:       realtime.EventDocumentReady,
		MatterID:   matterID.Hex(),
		DocumentID: documentID.Hex(),
	}); err != nil {
		logger.Warn("realtime publish failed", "document_id", documentID.Hex(), "event", "document_ready", "error", err)
	}
}

func skipRetry(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), asynq.SkipRetry)
}

// classify maps a pipelineerr.Error's retry classification onto the
// task runner's decision: integrity/validation/authorization failures
// are operator problems, not queue-retry problems.
func classify(err error) error {
	if pe, ok := pipelineerr.As(err); ok && !pe.IsRetryable() {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// ProcessDocument is the process_document handler: counts pages,
// routes to the sync or chunked path, and creates + enqueues the
// resulting OCRChunk rows. Both paths converge on the same OCRChunk
// task — a sync-path document is simply one chunk spanning every page.
func (p *TaskProcessor) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload ProcessDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return skipRetry("unmarshal process_document payload: %v", err)
	}
	matterID, err := primitive.ObjectIDFromHex(payload.MatterID)
	if err != nil {
		return skipRetry("invalid matter_id: %v", err)
	}
	documentID, err := primitive.ObjectIDFromHex(payload.DocumentID)
	if err != nil {
		return skipRetry("invalid document_id: %v", err)
	}

	doc, err := p.store.GetDocument(ctx, matterID, documentID)
	if err != nil {
		return err
	}

	job, err := p.ledger.Create(ctx, matterID, &documentID, models.JobTypeProcessDocument, p.cfg.JobMaxRecoveryRetries)
	if err != nil {
		return err
	}
	if err := p.ledger.SetTaskHandle(ctx, matterID, job.ID, t.ResultWriter().TaskID()); err != nil {
		logger.Warn("set task handle failed", "job_id", job.ID.Hex(), "error", err)
	}

	pdfBytes, err := p.blobs.Get(doc.StoragePath)
	if err != nil {
		return err
	}

	pageCount, err := p.router.GetPageCount(pdfBytes)
	if err != nil {
		_ = p.store.UpdateDocumentStatus(ctx, matterID, documentID, models.DocStatusFailed, err.Error())
		_ = p.ledger.Fail(ctx, matterID, job.ID, err.Error())
		p.publishDocumentStatus(ctx, matterID, documentID, string(models.DocStatusFailed))
		return skipRetry("page count rejected: %v", err)
	}
	if err := p.store.SetDocumentPageCount(ctx, matterID, documentID, pageCount); err != nil {
		return err
	}
	if err := p.store.UpdateDocumentStatus(ctx, matterID, documentID, models.DocStatusProcessing, ""); err != nil {
		return err
	}

	var specs []router.ChunkSpec
	if p.router.ShouldChunk(pageCount) {
		specs = p.router.CalculateChunkSpecs(pageCount)
	} else {
		specs = []router.ChunkSpec{{ChunkIndex: 0, PageStart: 1, PageEnd: pageCount}}
	}

	if err := p.ledger.AdvanceStage(ctx, matterID, job.ID, "routing", "ocr", 10, models.ChunkProcessingMetadata{ChunkCount: len(specs)}); err != nil {
		return err
	}
	p.publishProgress(ctx, matterID, documentID, job.ID, "ocr", 10)

	chunks := make([]*models.OCRChunk, len(specs))
	for i, spec := range specs {
		chunks[i] = &models.OCRChunk{
			ID:         primitive.NewObjectID(),
			MatterID:   matterID,
			DocumentID: documentID,
			ChunkIndex: spec.ChunkIndex,
			PageStart:  spec.PageStart,
			PageEnd:    spec.PageEnd,
			Status:     models.OCRChunkPending,
		}
	}
	if err := p.store.CreateOCRChunks(ctx, chunks); err != nil {
		return err
	}

	logger.Info("document routed", "document_id", payload.DocumentID, "job_id", job.ID.Hex(), "page_count", pageCount, "chunks", len(specs))

	jobIDHex := job.ID.Hex()
	for _, spec := range specs {
		task, err := NewOCRChunkTask(payload.MatterID, payload.DocumentID, jobIDHex, spec.ChunkIndex, spec.PageStart, spec.PageEnd)
		if err != nil {
			return err
		}
		if _, err := p.client.EnqueueContext(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// OCRChunk is the ocr_chunk handler. It extracts the chunk's page range
// as plain text (this module carries no PDF-writing dependency to split
// a page range into its own sub-PDF, so the OCR provider's input here
// is the page range's extracted text rather than rasterized page
// images — see router.ExtractPageText), runs the OCR stage, and, if
// this delivery happens to be the one that completes the document's
// last outstanding chunk, enqueues the merge step.
func (p *TaskProcessor) OCRChunk(ctx context.Context, t *asynq.Task) error {
	var payload OCRChunkPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return skipRetry("unmarshal ocr_chunk payload: %v", err)
	}
	matterID, err := primitive.ObjectIDFromHex(payload.MatterID)
	if err != nil {
		return skipRetry("invalid matter_id: %v", err)
	}
	documentID, err := primitive.ObjectIDFromHex(payload.DocumentID)
	if err != nil {
		return skipRetry("invalid document_id: %v", err)
	}

	jobID, err := primitive.ObjectIDFromHex(payload.JobID)
	if err != nil {
		return skipRetry("invalid job_id: %v", err)
	}
	if err := p.ledger.SetTaskHandle(ctx, matterID, jobID, t.ResultWriter().TaskID()); err != nil {
		logger.Warn("set task handle failed", "job_id", jobID.Hex(), "error", err)
	}
	if err := p.ledger.Heartbeat(ctx, matterID, jobID); err != nil {
		logger.Warn("job heartbeat failed", "job_id", jobID.Hex(), "error", err)
	}

	doc, err := p.store.GetDocument(ctx, matterID, documentID)
	if err != nil {
		return err
	}

	pdfBytes, err := p.blobs.Get(doc.StoragePath)
	if err != nil {
		return err
	}

	var pageTexts []string
	if err := p.cpu.Run(ctx, func() error {
		var runErr error
		pageTexts, runErr = p.router.ExtractPageText(pdfBytes, payload.PageStart, payload.PageEnd)
		return runErr
	}); err != nil {
		return classify(err)
	}
	chunkInput := []byte(strings.Join(pageTexts, "\f"))

	if !p.ocr.IsHealthy() {
		return pipelineerr.Transient(pipelineerr.CodeExternalService, "ocr provider circuit breaker open, deferring chunk", nil)
	}

	lock := lockcache.NewChunkLock(p.rdb, payload.DocumentID, payload.ChunkIndex, time.Duration(p.cfg.ChunkLockTTLSeconds)*time.Second)
	staleAfter := time.Duration(p.cfg.ChunkStaleTimeoutMinutes) * time.Minute

	err = pipeline.RunOCRChunkStage(
		ctx, lock, p.ocr, p.store, p.blobs,
		matterID, documentID,
		payload.ChunkIndex, payload.PageStart, payload.PageEnd,
		staleAfter, chunkInput, doc.Filename,
	)
	if err != nil {
		_ = p.ledger.Fail(ctx, matterID, jobID, err.Error())
		return classify(err)
	}

	return p.maybeTriggerMerge(ctx, matterID, documentID, jobID, payload.MatterID, payload.DocumentID, payload.JobID)
}

// maybeTriggerMerge enqueues the merge step the first time every chunk
// of a document reports completed. Several chunk completions can race
// to observe "all done" at once; ClaimDocumentMergeTrigger's
// compare-and-swap ensures only the winner actually enqueues it.
func (p *TaskProcessor) maybeTriggerMerge(ctx context.Context, matterID, documentID, jobID primitive.ObjectID, matterHex, documentHex, jobHex string) error {
	chunks, err := p.store.ListOCRChunks(ctx, matterID, documentID)
	if err != nil {
		return err
	}
	completed := 0
	for _, c := range chunks {
		if c.Status != models.OCRChunkCompleted {
			return nil
		}
		completed++
	}

	claimed, err := p.store.ClaimDocumentMergeTrigger(ctx, matterID, documentID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	if err := p.ledger.AdvanceStage(ctx, matterID, jobID, "ocr", "merge", 60, models.ChunkProcessingMetadata{
		ChunkCount:     len(chunks),
		ChunksComplete: completed,
	}); err != nil {
		return err
	}
	if err := p.store.UpdateDocumentStatus(ctx, matterID, documentID, models.DocStatusOCRComplete, ""); err != nil {
		return err
	}
	p.publishProgress(ctx, matterID, documentID, jobID, "merge", 60)
	p.publishDocumentStatus(ctx, matterID, documentID, string(models.DocStatusOCRComplete))

	task, err := NewMergeAndFinalizeTask(matterHex, documentHex, jobHex)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, task)
	return err
}

// MergeAndFinalize is the merge_and_finalize handler: it runs the rest
// of the pipeline in sequence once OCR is done for every chunk —
// stitch, confidence, chunk, link bounding boxes, embed, extract, then
// finalize. A stitching failure marks the document ocr_failed; a
// failure in a later stage leaves it at ocr_complete. A retried
// delivery re-runs from the top, and every
// stage downstream of stitching is itself safe to re-run against the
// same merged text.
func (p *TaskProcessor) MergeAndFinalize(ctx context.Context, t *asynq.Task) error {
	var payload MergeAndFinalizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return skipRetry("unmarshal merge_and_finalize payload: %v", err)
	}
	matterID, err := primitive.ObjectIDFromHex(payload.MatterID)
	if err != nil {
		return skipRetry("invalid matter_id: %v", err)
	}
	documentID, err := primitive.ObjectIDFromHex(payload.DocumentID)
	if err != nil {
		return skipRetry("invalid document_id: %v", err)
	}
	jobID, err := primitive.ObjectIDFromHex(payload.JobID)
	if err != nil {
		return skipRetry("invalid job_id: %v", err)
	}
	if err := p.ledger.SetTaskHandle(ctx, matterID, jobID, t.ResultWriter().TaskID()); err != nil {
		logger.Warn("set task handle failed", "job_id", jobID.Hex(), "error", err)
	}

	fail := func(err error) error {
		_ = p.ledger.Fail(ctx, matterID, jobID, err.Error())
		return classify(err)
	}

	mergedText, err := pipeline.MergeChunkResults(ctx, p.store, p.blobs, matterID, documentID)
	if err != nil {
		_ = p.store.UpdateDocumentStatus(ctx, matterID, documentID, models.DocStatusOCRFailed, err.Error())
		p.publishDocumentStatus(ctx, matterID, documentID, string(models.DocStatusOCRFailed))
		return fail(err)
	}

	if _, _, err := pipeline.RunConfidenceStage(ctx, p.store, p.store, matterID, documentID); err != nil {
		return fail(err)
	}

	if err := p.ledger.AdvanceStage(ctx, matterID, jobID, "merge", "chunk", 70, models.ProcessingMetadata{Stage: "chunk"}); err != nil {
		return err
	}
	p.publishProgress(ctx, matterID, documentID, jobID, "chunk", 70)

	chunkParams := pipeline.ChunkParams{
		ParentTokens:  p.cfg.ChunkParentTokens,
		ChildTokens:   p.cfg.ChunkChildTokens,
		OverlapPct:    p.cfg.ChunkOverlapPct,
		MinSizeTokens: p.cfg.ChunkMinSizeTokens,
	}
	var chunks []*models.Chunk
	if err := p.cpu.Run(ctx, func() error {
		var runErr error
		chunks, runErr = pipeline.RunChunkStage(ctx, p.store, matterID, documentID, mergedText, chunkParams)
		return runErr
	}); err != nil {
		return fail(err)
	}

	if err := pipeline.LinkChunksToBBoxes(ctx, p.store, matterID, documentID, chunks); err != nil {
		return fail(err)
	}

	var children []*models.Chunk
	for _, c := range chunks {
		if c.ChunkType == models.ChunkTypeChild {
			children = append(children, c)
		}
	}

	if err := p.ledger.AdvanceStage(ctx, matterID, jobID, "chunk", "embed", 80, models.ProcessingMetadata{Stage: "embed"}); err != nil {
		return err
	}
	p.publishProgress(ctx, matterID, documentID, jobID, "embed", 80)

	if !p.embedding.IsHealthy() {
		return fail(pipelineerr.Transient(pipelineerr.CodeExternalService, "embedding provider circuit breaker open, deferring document", nil))
	}
	if err := pipeline.RunEmbedStage(ctx, p.embedding, p.store, matterID, children); err != nil {
		return fail(err)
	}

	if err := p.ledger.AdvanceStage(ctx, matterID, jobID, "embed", "extract", 90, models.ProcessingMetadata{Stage: "extract"}); err != nil {
		return err
	}
	p.publishProgress(ctx, matterID, documentID, jobID, "extract", 90)

	if !p.extraction.IsHealthy() {
		return fail(pipelineerr.Transient(pipelineerr.CodeExternalService, "extraction provider circuit breaker open, deferring document", nil))
	}
	entityCache := pipeline.NewEntityCache()
	bboxIndex := pipeline.NewBBoxIndex()
	for _, c := range children {
		if err := pipeline.RunExtractStage(ctx, p.extraction, p.store, matterID, documentID, c.ID, c, entityCache, p.cfg.EntityDedupFuzzyThreshold, bboxIndex); err != nil {
			return fail(err)
		}
		if err := p.ledger.Heartbeat(ctx, matterID, jobID); err != nil {
			logger.Warn("job heartbeat failed", "job_id", jobID.Hex(), "error", err)
		}
	}

	if err := pipeline.RunFinalizeStage(ctx, p.store, p.queryCache, matterID, documentID); err != nil {
		return fail(err)
	}

	if err := p.ledger.Complete(ctx, matterID, jobID); err != nil {
		return err
	}
	p.publishProgress(ctx, matterID, documentID, jobID, "complete", 100)
	p.publishDocumentStatus(ctx, matterID, documentID, string(models.DocStatusCompleted))
	p.publishDocumentReady(ctx, matterID, documentID)

	logger.Info("document finalized", "document_id", payload.DocumentID, "job_id", payload.JobID, "chunks", len(chunks))
	return nil
}
