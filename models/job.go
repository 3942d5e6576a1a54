package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// JobStatus is the lifecycle state of a Job in the ledger (C2).
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// JobType names the kind of pipeline work a Job tracks.
type JobType string

const (
	JobTypeProcessDocument JobType = "process_document"
	JobTypeProcessChunk    JobType = "process_chunk"
	JobTypeFinalize        JobType = "finalize"
)

// JobMetadata is a closed tagged union over the stage-specific metadata a
// Job carries. The unexported marker method seals the interface to this
// package's three variants so a caller cannot construct an arbitrary
// shape that silently drops fields.
type JobMetadata interface {
	isJobMetadata()
}

// ProcessingMetadata describes an in-flight, non-recovery job.
type ProcessingMetadata struct {
	Stage   string `bson:"stage" json:"stage"`
	Attempt int    `bson:"attempt" json:"attempt"`
}

func (ProcessingMetadata) isJobMetadata() {}

// RecoveringMetadata describes a job a sweeper has just requeued.
type RecoveringMetadata struct {
	PreviousError string `bson:"previous_error" json:"previous_error"`
	Attempt       int    `bson:"attempt" json:"attempt"`
}

func (RecoveringMetadata) isJobMetadata() {}

// ChunkProcessingMetadata describes a chunked-path document job.
type ChunkProcessingMetadata struct {
	ChunkCount     int `bson:"chunk_count" json:"chunk_count"`
	ChunksComplete int `bson:"chunks_complete" json:"chunks_complete"`
	ChunksFailed   int `bson:"chunks_failed" json:"chunks_failed"`
}

func (ChunkProcessingMetadata) isJobMetadata() {}

// Job is the durable ledger record of one unit of work.
type Job struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	MatterID        primitive.ObjectID  `bson:"matter_id" json:"matter_id"`
	DocumentID      *primitive.ObjectID `bson:"document_id,omitempty" json:"document_id,omitempty"`
	JobType         JobType             `bson:"job_type" json:"job_type"`
	Status          JobStatus           `bson:"status" json:"status"`
	CurrentStage    string              `bson:"current_stage,omitempty" json:"current_stage,omitempty"`
	CompletedStages []string            `bson:"completed_stages,omitempty" json:"completed_stages,omitempty"`
	ProgressPct     int                 `bson:"progress_pct" json:"progress_pct"`
	RetryCount      int                 `bson:"retry_count" json:"retry_count"`
	MaxRetries      int                 `bson:"max_retries" json:"max_retries"`
	TaskHandle      string              `bson:"task_handle,omitempty" json:"task_handle,omitempty"`
	StartedAt       time.Time           `bson:"started_at" json:"started_at"`
	UpdatedAt       time.Time           `bson:"updated_at" json:"updated_at"`
	ErrorMessage    string              `bson:"error_message,omitempty" json:"error_message,omitempty"`

	// MetadataKind + raw fields let bson encode/decode the closed
	// JobMetadata union without reflection tricks at call sites; see
	// internal/ledger for the (de)serialization helpers.
	MetadataKind string      `bson:"metadata_kind,omitempty" json:"-"`
	Metadata     bsonRawMeta `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// bsonRawMeta is a permissive map used purely as the bson wire shape for
// JobMetadata; internal/ledger is the only package permitted to construct
// JobMetadata values from it.
type bsonRawMeta map[string]interface{}
