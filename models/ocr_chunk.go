package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OCRChunkStatus is the lifecycle state of an OCRChunk.
type OCRChunkStatus string

const (
	OCRChunkPending    OCRChunkStatus = "pending"
	OCRChunkProcessing OCRChunkStatus = "processing"
	OCRChunkCompleted  OCRChunkStatus = "completed"
	OCRChunkFailed     OCRChunkStatus = "failed"
)

// OCRChunk is a contiguous page range of a Document being OCR'd in parallel.
// page_start/page_end are 1-based inclusive; chunk_index is 0-based and
// unique per document. Within a document chunk_index values form [0..N-1]
// without gaps and page ranges partition [1..page_count] without overlap.
type OCRChunk struct {
	ID                     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID               primitive.ObjectID `bson:"matter_id" json:"matter_id"`
	DocumentID             primitive.ObjectID `bson:"document_id" json:"document_id"`
	ChunkIndex             int                `bson:"chunk_index" json:"chunk_index"`
	PageStart              int                `bson:"page_start" json:"page_start"`
	PageEnd                int                `bson:"page_end" json:"page_end"`
	Status                 OCRChunkStatus     `bson:"status" json:"status"`
	ResultStoragePath      string             `bson:"result_storage_path,omitempty" json:"result_storage_path,omitempty"`
	ResultChecksum         string             `bson:"result_checksum,omitempty" json:"result_checksum,omitempty"`
	ErrorMessage           string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ProcessingStartedAt    *time.Time         `bson:"processing_started_at,omitempty" json:"processing_started_at,omitempty"`
	ProcessingCompletedAt  *time.Time         `bson:"processing_completed_at,omitempty" json:"processing_completed_at,omitempty"`
	LastHeartbeat          time.Time          `bson:"last_heartbeat" json:"last_heartbeat"`
	RecoveryAttempts       int                `bson:"recovery_attempts" json:"recovery_attempts"`
}

// PageCount returns the number of pages this chunk covers.
func (c *OCRChunk) PageCount() int {
	return c.PageEnd - c.PageStart + 1
}
