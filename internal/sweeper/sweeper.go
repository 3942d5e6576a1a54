package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"legal-doc-intelligence/internal/blobstore"
	"legal-doc-intelligence/internal/config"
	"legal-doc-intelligence/internal/ledger"
	"legal-doc-intelligence/internal/logger"
	"legal-doc-intelligence/internal/store"
	"legal-doc-intelligence/internal/telemetry"
	"legal-doc-intelligence/internal/worker"
	"legal-doc-intelligence/models"
)

const (
	tagJobRecovery     = "job_recovery"
	tagChunkRecovery   = "chunk_recovery"
	tagRetentionScan   = "retention_scan"
	tagQualityAlerting = "quality_alerting"
	tagPendingMerges   = "pending_merges"
	tagStuckQueuedJobs = "stuck_queued_jobs"
)

var errNoOpenJob = errors.New("sweeper: no open ledger job for document")

// Sweeper holds the recovery/cleanup routines run on a schedule.
// Chunk-level recovery does the actual work re-dispatch (a chunk is a
// small, independently retryable unit); job-level recovery only repairs
// the ledger's bookkeeping, mirroring reset_stuck_jobs.py's default
// behavior without its optional requeue flag, since re-running
// process_document from scratch against a partially-complete chunk set
// would re-insert duplicate OCRChunk rows rather than resume them.
type Sweeper struct {
	store   *store.Store
	ledger  *ledger.Ledger
	blobs   *blobstore.Store
	client  *asynq.Client
	cfg     *config.Config
	metrics *telemetry.Metrics
}

func New(st *store.Store, lg *ledger.Ledger, blobs *blobstore.Store, client *asynq.Client, cfg *config.Config, metrics *telemetry.Metrics) *Sweeper {
	return &Sweeper{store: st, ledger: lg, blobs: blobs, client: client, cfg: cfg, metrics: metrics}
}

// Register schedules all six routines on the given Scheduler. Job and
// chunk recovery run at roughly half their configured staleness windows
// (floored at one minute and 30 seconds) so a stuck unit of work is
// caught within one missed cycle, not two; retention runs hourly,
// quality alerting every 10 minutes, pending-merge recovery every 2
// minutes and stuck-queued recovery every 5 minutes.
func (sw *Sweeper) Register(s *Scheduler) error {
	jobInterval := time.Duration(sw.cfg.JobStaleTimeoutMinutes) * time.Minute / 2
	if jobInterval < time.Minute {
		jobInterval = time.Minute
	}
	if err := s.ScheduleInterval(tagJobRecovery, jobInterval, sw.sweepJobOnce); err != nil {
		return err
	}

	chunkInterval := time.Duration(sw.cfg.ChunkStaleTimeoutMinutes) * time.Minute / 2
	if chunkInterval < 30*time.Second {
		chunkInterval = 30 * time.Second
	}
	if err := s.ScheduleInterval(tagChunkRecovery, chunkInterval, sw.sweepChunksOnce); err != nil {
		return err
	}

	if err := s.ScheduleInterval(tagRetentionScan, time.Hour, sw.sweepRetentionOnce); err != nil {
		return err
	}

	if err := s.ScheduleInterval(tagQualityAlerting, 10*time.Minute, sw.sweepQualityAlertsOnce); err != nil {
		return err
	}

	if err := s.ScheduleInterval(tagPendingMerges, 2*time.Minute, sw.sweepPendingMergesOnce); err != nil {
		return err
	}

	return s.ScheduleInterval(tagStuckQueuedJobs, 5*time.Minute, sw.sweepStuckQueuedJobsOnce)
}

// sweepJobOnce resets ledger jobs stuck "processing" past the stale
// deadline: requeued if under max retries, failed outright otherwise.
// This is a bookkeeping repair, not a work re-dispatch — see the type
// doc comment.
func (sw *Sweeper) sweepJobOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	staleBefore := time.Now().Add(-time.Duration(sw.cfg.JobStaleTimeoutMinutes) * time.Minute)
	jobs, err := sw.ledger.FindStaleProcessing(ctx, staleBefore, 100)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if err := sw.ledger.RequeueStale(ctx, j); err != nil && !errors.Is(err, ledger.ErrCASConflict) {
			logger.Error("job recovery failed", "job_id", j.ID.Hex(), "error", err)
			continue
		}
		logger.Info("stale job recovered", "job_id", j.ID.Hex(), "retry_count", j.RetryCount+1, "max_retries", j.MaxRetries)
	}
	return nil
}

// sweepChunksOnce finds OCR chunks whose worker stopped heartbeating
// and, under the per-chunk retry ceiling, resets them to pending and
// redispatches a fresh ocr_chunk task; chunks at the ceiling are left
// failed for MergeAndFinalize's caller-visible error path to surface.
// Grounded in chunk_recovery_service.py's find_stale_chunks/
// recover_stale_chunk pair.
func (sw *Sweeper) sweepChunksOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	staleBefore := time.Now().Add(-time.Duration(sw.cfg.ChunkStaleTimeoutMinutes) * time.Minute)
	chunks, err := sw.store.FindStaleOCRChunks(ctx, staleBefore, 200)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if c.RecoveryAttempts >= sw.cfg.JobMaxRecoveryRetries {
			if err := sw.store.FailOCRChunk(ctx, c.MatterID, c.DocumentID, c.ChunkIndex, "exceeded max recovery attempts"); err != nil {
				logger.Error("chunk recovery: mark failed", "document_id", c.DocumentID.Hex(), "chunk_index", c.ChunkIndex, "error", err)
			}
			continue
		}

		jobID, err := sw.findOpenJobID(ctx, c.MatterID, c.DocumentID)
		if err != nil {
			logger.Error("chunk recovery: no open job to requeue against", "document_id", c.DocumentID.Hex(), "chunk_index", c.ChunkIndex, "error", err)
			continue
		}

		claimed, err := sw.store.RequeueStaleOCRChunk(ctx, c)
		if err != nil {
			logger.Error("chunk recovery: requeue failed", "document_id", c.DocumentID.Hex(), "chunk_index", c.ChunkIndex, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		task, err := worker.NewOCRChunkTask(c.MatterID.Hex(), c.DocumentID.Hex(), jobID, c.ChunkIndex, c.PageStart, c.PageEnd)
		if err != nil {
			logger.Error("chunk recovery: build task", "error", err)
			continue
		}
		if _, err := sw.client.EnqueueContext(ctx, task); err != nil {
			logger.Error("chunk recovery: enqueue failed", "document_id", c.DocumentID.Hex(), "chunk_index", c.ChunkIndex, "error", err)
			continue
		}
		logger.Info("stale chunk requeued", "document_id", c.DocumentID.Hex(), "chunk_index", c.ChunkIndex, "recovery_attempts", c.RecoveryAttempts+1)
	}
	return nil
}

// sweepRetentionOnce reclaims OCR chunk rows and their blob results for
// documents that finished (completed or failed) before the configured
// retention window. Merged text and extracted entities/chunks are left
// alone — only the intermediate per-chunk OCR artifacts are reclaimed.
// Grounded in chunk_cleanup_service.py's cleanup_stale_chunks.
func (sw *Sweeper) sweepRetentionOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-time.Duration(sw.cfg.ChunkRetentionHours) * time.Hour)
	docs, err := sw.store.ListDocumentsPastRetention(ctx, cutoff, 500)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := sw.cleanupDocumentChunks(ctx, d); err != nil {
			logger.Error("retention cleanup failed", "document_id", d.ID.Hex(), "error", err)
		}
	}
	return nil
}

// sweepQualityAlertsOnce reports how many documents currently sit at
// poor OCR quality, as a gauge rather than a per-document alert — this
// never blocks or retries anything, it only makes a persistent quality
// problem visible to whoever watches the metrics dashboard.
func (sw *Sweeper) sweepQualityAlertsOnce() error {
	if sw.metrics == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	count, err := sw.store.CountDocumentsByQualityStatus(ctx, models.QualityPoor)
	if err != nil {
		return err
	}
	sw.metrics.RecordPoorQualityDocs(count)
	if count > 0 {
		logger.Warn("documents at poor OCR quality", "count", count)
	}
	return nil
}

// sweepPendingMergesOnce finds documents whose status is still
// processing but whose OCR chunks have all completed — a crash between
// the last chunk finishing and the merge task being enqueued otherwise
// leaves the document stuck indefinitely, since nothing else re-checks
// that transition. ClaimDocumentMergeTrigger's CAS is the same one
// maybeTriggerMerge uses, so a worker that's mid-transition and a sweep
// tick racing it can't both enqueue the merge.
func (sw *Sweeper) sweepPendingMergesOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	docs, err := sw.store.ListProcessingDocuments(ctx, 200)
	if err != nil {
		return err
	}
	for _, d := range docs {
		chunks, err := sw.store.ListOCRChunks(ctx, d.MatterID, d.ID)
		if err != nil {
			logger.Error("pending merge sweep: list chunks failed", "document_id", d.ID.Hex(), "error", err)
			continue
		}
		if len(chunks) == 0 {
			continue
		}
		allDone := true
		for _, c := range chunks {
			if c.Status != models.OCRChunkCompleted {
				allDone = false
				break
			}
		}
		if !allDone {
			continue
		}

		claimed, err := sw.store.ClaimDocumentMergeTrigger(ctx, d.MatterID, d.ID)
		if err != nil {
			logger.Error("pending merge sweep: claim failed", "document_id", d.ID.Hex(), "error", err)
			continue
		}
		if !claimed {
			continue
		}

		jobID, err := sw.findOpenJobID(ctx, d.MatterID, d.ID)
		if err != nil {
			logger.Error("pending merge sweep: no open job", "document_id", d.ID.Hex(), "error", err)
			continue
		}
		task, err := worker.NewMergeAndFinalizeTask(d.MatterID.Hex(), d.ID.Hex(), jobID)
		if err != nil {
			logger.Error("pending merge sweep: build task failed", "error", err)
			continue
		}
		if _, err := sw.client.EnqueueContext(ctx, task); err != nil {
			logger.Error("pending merge sweep: enqueue failed", "document_id", d.ID.Hex(), "error", err)
			continue
		}
		logger.Info("pending merge dispatched by sweep", "document_id", d.ID.Hex())
	}
	return nil
}

// sweepStuckQueuedJobsOnce finds ledger jobs that have sat queued for
// more than 10 minutes without ever recording a task_handle — an
// enqueue that Redis accepted but whose handler never actually claimed
// it, as opposed to sweepJobOnce's "processing" stale window, which
// covers a job that was claimed and then abandoned mid-flight.
func (sw *Sweeper) sweepStuckQueuedJobsOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	staleBefore := time.Now().Add(-10 * time.Minute)
	jobs, err := sw.ledger.FindStuckQueued(ctx, staleBefore, 200)
	if err != nil {
		return err
	}
	for _, j := range jobs {
		if j.DocumentID == nil {
			logger.Error("stuck queued job has no document reference", "job_id", j.ID.Hex())
			continue
		}
		task, err := worker.NewProcessDocumentTask(j.MatterID.Hex(), j.DocumentID.Hex())
		if err != nil {
			logger.Error("stuck queued job: build task failed", "job_id", j.ID.Hex(), "error", err)
			continue
		}
		info, err := sw.client.EnqueueContext(ctx, task)
		if err != nil {
			logger.Error("stuck queued job: enqueue failed", "job_id", j.ID.Hex(), "error", err)
			continue
		}
		if err := sw.ledger.SetTaskHandle(ctx, j.MatterID, j.ID, info.ID); err != nil {
			logger.Error("stuck queued job: set task handle failed", "job_id", j.ID.Hex(), "error", err)
		}
		logger.Info("stuck queued job redispatched", "job_id", j.ID.Hex(), "document_id", j.DocumentID.Hex())
	}
	return nil
}

// findOpenJobID returns the most recent non-terminal ledger job for a
// document — the job a requeued chunk's completion should continue
// reporting progress against.
func (sw *Sweeper) findOpenJobID(ctx context.Context, matterID, documentID primitive.ObjectID) (string, error) {
	jobs, err := sw.ledger.ListByDocument(ctx, matterID, documentID)
	if err != nil {
		return "", err
	}
	for _, j := range jobs {
		if j.Status != models.JobCompleted && j.Status != models.JobFailed && j.Status != models.JobCancelled {
			return j.ID.Hex(), nil
		}
	}
	return "", errNoOpenJob
}

func (sw *Sweeper) cleanupDocumentChunks(ctx context.Context, d *models.Document) error {
	chunks, err := sw.store.ListOCRChunks(ctx, d.MatterID, d.ID)
	if err != nil {
		return err
	}
	for _, c := range chunks {
		if c.ResultStoragePath == "" {
			continue
		}
		if err := sw.blobs.Delete(c.ResultStoragePath); err != nil {
			return err
		}
	}
	if err := sw.store.DeleteOCRChunks(ctx, d.MatterID, d.ID); err != nil {
		return err
	}
	logger.Info("document chunk retention swept", "document_id", d.ID.Hex(), "chunks_reclaimed", len(chunks))
	return nil
}
