// Package ledger is the Job Ledger (C2): the durable, queryable record
// of every unit of pipeline work. It owns the (de)serialization of
// models.JobMetadata to and from the job row and the only code path
// allowed to transition a Job's status; every transition is a single
// conditional UpdateOne whose filter carries the state it expects, so
// a concurrent writer makes it miss rather than overwrite.
package ledger

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"legal-doc-intelligence/models"
)

var (
	ErrNotFound     = errors.New("ledger: job not found")
	ErrCASConflict  = errors.New("ledger: job was modified concurrently, retry")
	ErrTerminalJob  = errors.New("ledger: job already in a terminal state")
)

type Ledger struct {
	col *mongo.Collection
}

func New(db *mongo.Database) *Ledger {
	return &Ledger{col: db.Collection("jobs")}
}

// Create inserts a new queued job.
func (l *Ledger) Create(ctx context.Context, matterID primitive.ObjectID, documentID *primitive.ObjectID, jobType models.JobType, maxRetries int) (*models.Job, error) {
	now := time.Now()
	job := &models.Job{
		ID:         primitive.NewObjectID(),
		MatterID:   matterID,
		DocumentID: documentID,
		JobType:    jobType,
		Status:     models.JobQueued,
		MaxRetries: maxRetries,
		StartedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := l.col.InsertOne(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (l *Ledger) Get(ctx context.Context, matterID, jobID primitive.ObjectID) (*models.Job, error) {
	var job models.Job
	err := l.col.FindOne(ctx, bson.M{"_id": jobID, "matter_id": matterID}).Decode(&job)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	return &job, err
}

// ToMetadata reconstructs a JobMetadata value from the job's closed
// metadata_kind/metadata wire shape. Unknown kinds (corruption, or a
// future kind a caller built against an older ledger) return an error
// rather than a zero-value — callers must not silently treat that as
// "no metadata".
func ToMetadata(job *models.Job) (models.JobMetadata, error) {
	raw, err := bson.Marshal(job.Metadata)
	if err != nil {
		return nil, err
	}
	switch job.MetadataKind {
	case "":
		return nil, nil
	case kindProcessing:
		var m models.ProcessingMetadata
		if err := bson.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case kindRecovering:
		var m models.RecoveringMetadata
		if err := bson.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case kindChunkProcessing:
		var m models.ChunkProcessingMetadata
		if err := bson.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, errors.New("ledger: unknown metadata_kind " + job.MetadataKind)
	}
}

const (
	kindProcessing      = "processing"
	kindRecovering      = "recovering"
	kindChunkProcessing = "chunk_processing"
)

func metadataToBSON(meta models.JobMetadata) (string, bson.M, error) {
	if meta == nil {
		return "", nil, nil
	}
	raw, err := bson.Marshal(meta)
	if err != nil {
		return "", nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return "", nil, err
	}
	switch meta.(type) {
	case models.ProcessingMetadata:
		return kindProcessing, m, nil
	case models.RecoveringMetadata:
		return kindRecovering, m, nil
	case models.ChunkProcessingMetadata:
		return kindChunkProcessing, m, nil
	default:
		return "", nil, errors.New("ledger: unsupported JobMetadata implementation")
	}
}

// AdvanceStage moves a processing job to a new current stage, appending
// the previous stage to completed_stages, and sets its metadata. It is
// a no-op success if the job has already moved past this stage (stale
// retries of the same pipeline step must not regress progress).
func (l *Ledger) AdvanceStage(ctx context.Context, matterID, jobID primitive.ObjectID, previousStage, nextStage string, progressPct int, meta models.JobMetadata) error {
	kind, rawMeta, err := metadataToBSON(meta)
	if err != nil {
		return err
	}

	set := bson.M{
		"current_stage": nextStage,
		"progress_pct":  progressPct,
		"status":        models.JobProcessing,
		"updated_at":    time.Now(),
	}
	if kind != "" {
		set["metadata_kind"] = kind
		set["metadata"] = rawMeta
	}

	filter := bson.M{
		"_id":       jobID,
		"matter_id": matterID,
		"status":    bson.M{"$nin": []models.JobStatus{models.JobCompleted, models.JobFailed, models.JobCancelled}},
		"progress_pct": bson.M{"$lte": progressPct},
	}
	update := bson.M{
		"$set":      set,
		"$addToSet": bson.M{"completed_stages": previousStage},
	}

	res, err := l.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Not found, already terminal, or already past this stage;
		// distinguish for callers.
		job, err := l.Get(ctx, matterID, jobID)
		if err != nil {
			return err
		}
		switch job.Status {
		case models.JobCompleted, models.JobFailed, models.JobCancelled:
			return ErrTerminalJob
		}
		return nil
	}
	return nil
}

// Complete marks a job as completed; idempotent against repeated calls.
func (l *Ledger) Complete(ctx context.Context, matterID, jobID primitive.ObjectID) error {
	_, err := l.col.UpdateOne(ctx,
		bson.M{"_id": jobID, "matter_id": matterID, "status": bson.M{"$ne": models.JobCancelled}},
		bson.M{"$set": bson.M{"status": models.JobCompleted, "progress_pct": 100, "updated_at": time.Now()}},
	)
	return err
}

// Fail marks a job failed, or increments retry_count and reverts it
// to queued if under max_retries — the ledger's half of recovery; the
// sweeper (C6) decides *when* to call this, not how the transition works.
func (l *Ledger) Fail(ctx context.Context, matterID, jobID primitive.ObjectID, errMsg string) error {
	job, err := l.Get(ctx, matterID, jobID)
	if err != nil {
		return err
	}
	now := time.Now()
	if job.RetryCount < job.MaxRetries {
		meta := models.RecoveringMetadata{PreviousError: errMsg, Attempt: job.RetryCount + 1}
		raw, err := bson.Marshal(meta)
		if err != nil {
			return err
		}
		var rawMeta bson.M
		if err := bson.Unmarshal(raw, &rawMeta); err != nil {
			return err
		}
		res, err := l.col.UpdateOne(ctx,
			bson.M{"_id": jobID, "matter_id": matterID, "retry_count": job.RetryCount},
			bson.M{"$set": bson.M{
				"status":        models.JobQueued,
				"error_message": errMsg,
				"metadata_kind": kindRecovering,
				"metadata":      rawMeta,
				"updated_at":    now,
			}, "$inc": bson.M{"retry_count": 1}},
		)
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrCASConflict
		}
		return nil
	}
	res, err := l.col.UpdateOne(ctx,
		bson.M{"_id": jobID, "matter_id": matterID, "retry_count": job.RetryCount},
		bson.M{"$set": bson.M{"status": models.JobFailed, "error_message": errMsg, "updated_at": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrCASConflict
	}
	return nil
}

func (l *Ledger) Cancel(ctx context.Context, matterID, jobID primitive.ObjectID) error {
	_, err := l.col.UpdateOne(ctx,
		bson.M{"_id": jobID, "matter_id": matterID, "status": bson.M{"$nin": []models.JobStatus{models.JobCompleted, models.JobFailed}}},
		bson.M{"$set": bson.M{"status": models.JobCancelled, "updated_at": time.Now()}},
	)
	return err
}

func (l *Ledger) SetTaskHandle(ctx context.Context, matterID, jobID primitive.ObjectID, taskHandle string) error {
	_, err := l.col.UpdateOne(ctx,
		bson.M{"_id": jobID, "matter_id": matterID},
		bson.M{"$set": bson.M{"task_handle": taskHandle, "updated_at": time.Now()}},
	)
	return err
}

// Heartbeat bumps a processing job's updated_at without touching its
// stage or metadata — the liveness signal FindStaleProcessing measures
// against, for a stage whose own work takes long enough that waiting
// for the next AdvanceStage call would let the job look abandoned.
func (l *Ledger) Heartbeat(ctx context.Context, matterID, jobID primitive.ObjectID) error {
	_, err := l.col.UpdateOne(ctx,
		bson.M{"_id": jobID, "matter_id": matterID, "status": models.JobProcessing},
		bson.M{"$set": bson.M{"updated_at": time.Now()}},
	)
	return err
}

// FindStuckQueued returns jobs that have sat queued past staleBefore
// with no task_handle recorded — an enqueue that was accepted by Redis
// but whose handler never ran, or never got the chance to claim it.
func (l *Ledger) FindStuckQueued(ctx context.Context, staleBefore time.Time, limit int64) ([]*models.Job, error) {
	cur, err := l.col.Find(ctx,
		bson.M{
			"status":      models.JobQueued,
			"started_at":  bson.M{"$lt": staleBefore},
			"task_handle": bson.M{"$in": []interface{}{"", nil}},
		},
		options.Find().SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Job
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) ListByDocument(ctx context.Context, matterID, documentID primitive.ObjectID) ([]*models.Job, error) {
	cur, err := l.col.Find(ctx,
		bson.M{"matter_id": matterID, "document_id": documentID},
		options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Job
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindStaleProcessing returns jobs stuck "processing" past staleBefore,
// across all matters — the sweeper's (C6) recovery scan.
func (l *Ledger) FindStaleProcessing(ctx context.Context, staleBefore time.Time, limit int64) ([]*models.Job, error) {
	cur, err := l.col.Find(ctx,
		bson.M{"status": models.JobProcessing, "updated_at": bson.M{"$lt": staleBefore}},
		options.Find().SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Job
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RequeueStale is the CAS-style recovery transition: only takes effect
// if the job is still in the exact stale state observed by the caller,
// preventing two sweeper ticks from double-incrementing retry_count.
func (l *Ledger) RequeueStale(ctx context.Context, job *models.Job) error {
	if job.RetryCount >= job.MaxRetries {
		_, err := l.col.UpdateOne(ctx,
			bson.M{"_id": job.ID, "matter_id": job.MatterID, "updated_at": job.UpdatedAt},
			bson.M{"$set": bson.M{"status": models.JobFailed, "error_message": "exceeded max recovery retries", "updated_at": time.Now()}},
		)
		return err
	}
	res, err := l.col.UpdateOne(ctx,
		bson.M{"_id": job.ID, "matter_id": job.MatterID, "updated_at": job.UpdatedAt},
		bson.M{
			"$set": bson.M{"status": models.JobQueued, "updated_at": time.Now()},
			"$inc": bson.M{"retry_count": 1},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrCASConflict
	}
	return nil
}
