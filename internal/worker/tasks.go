// Package worker is the Worker Pool & Task Runner (C3): asynq task
// definitions and handlers that bridge the durable queue to the
// pipeline stages, following cmd/worker/worker.go's queue-priority
// wiring, generalized into the three tasks a document's processing
// run actually needs: process_document, ocr_chunk, merge_and_finalize.
package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

const (
	TaskProcessDocument  = "document:process"
	TaskOCRChunk         = "document:ocr_chunk"
	TaskMergeAndFinalize = "document:merge_and_finalize"
)

// ProcessDocumentPayload kicks off a single document's processing run:
// page counting, routing to the sync or chunked path, and fanning out
// the resulting OCRChunk rows as OCRChunk tasks.
type ProcessDocumentPayload struct {
	MatterID   string `json:"matter_id"`
	DocumentID string `json:"document_id"`
}

// OCRChunkPayload is one page range of a document to OCR independently.
// Both the sync and chunked paths use this task — a sync-path document
// is just a single chunk covering every page. job_id threads the
// ledger record created by process_document through the whole chain so
// every stage can report progress against the same row.
type OCRChunkPayload struct {
	MatterID   string `json:"matter_id"`
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
	ChunkIndex int    `json:"chunk_index"`
	PageStart  int    `json:"page_start"`
	PageEnd    int    `json:"page_end"`
}

// MergeAndFinalizePayload runs once all of a document's OCRChunk rows
// have completed: stitches the per-chunk results, computes confidence,
// chunks the merged text, links bounding boxes, embeds, extracts, and
// finalizes.
type MergeAndFinalizePayload struct {
	MatterID   string `json:"matter_id"`
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
}

func NewProcessDocumentTask(matterID, documentID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessDocumentPayload{MatterID: matterID, DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskProcessDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue(QueueDefault),
	), nil
}

func NewOCRChunkTask(matterID, documentID, jobID string, chunkIndex, pageStart, pageEnd int) (*asynq.Task, error) {
	payload, err := json.Marshal(OCRChunkPayload{
		MatterID:   matterID,
		DocumentID: documentID,
		JobID:      jobID,
		ChunkIndex: chunkIndex,
		PageStart:  pageStart,
		PageEnd:    pageEnd,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskOCRChunk,
		payload,
		asynq.MaxRetry(5),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(QueueCritical),
	), nil
}

func NewMergeAndFinalizeTask(matterID, documentID, jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(MergeAndFinalizePayload{MatterID: matterID, DocumentID: documentID, JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskMergeAndFinalize,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
		asynq.Queue(QueueDefault),
	), nil
}
