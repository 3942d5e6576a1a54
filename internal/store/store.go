// Package store is the metadata store data-access layer. Every method
// that reads or writes a matter-scoped collection takes a matterID and
// folds it into the query filter itself — callers cannot construct a
// query that omits it. The exceptions are the sweepers' cross-matter
// scans (FindStaleOCRChunks, ListDocumentsPastRetention,
// ListProcessingDocuments, CountDocumentsByQualityStatus) and
// UpsertCanonicalEntity, which filters by _id alone. This trades a prior database-per-tenant
// TenantDBManager design for a single shared database with a mandatory
// matter_id filter (recorded as a decision in DESIGN.md), since a
// document-processing matter is a much finer-grained, higher-churn
// tenant unit than a chat platform's per-organization database.
package store

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

var ErrNotFound = errors.New("store: document not found")

// Store wraps a single shared *mongo.Database; every matter lives in
// the same collections, isolated only by the matter_id filter applied
// by the matter-scoped methods below.
type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) matters() *mongo.Collection           { return s.db.Collection("matters") }
func (s *Store) documents() *mongo.Collection         { return s.db.Collection("documents") }
func (s *Store) ocrChunks() *mongo.Collection         { return s.db.Collection("ocr_chunks") }
func (s *Store) boundingBoxes() *mongo.Collection     { return s.db.Collection("bounding_boxes") }
func (s *Store) chunks() *mongo.Collection            { return s.db.Collection("chunks") }
func (s *Store) entityMentions() *mongo.Collection    { return s.db.Collection("entity_mentions") }
func (s *Store) canonicalEntities() *mongo.Collection { return s.db.Collection("canonical_entities") }
func (s *Store) events() *mongo.Collection            { return s.db.Collection("events") }
func (s *Store) citations() *mongo.Collection         { return s.db.Collection("citations") }
func (s *Store) jobs() *mongo.Collection              { return s.db.Collection("jobs") }

// GetMatter satisfies auth.MatterStore.
func (s *Store) GetMatter(ctx context.Context, matterID string) (*models.Matter, error) {
	oid, err := primitive.ObjectIDFromHex(matterID)
	if err != nil {
		return nil, err
	}
	var m models.Matter
	if err := s.matters().FindOne(ctx, bson.M{"_id": oid}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateMatter(ctx context.Context, m *models.Matter) error {
	m.CreatedAt = time.Now()
	res, err := s.matters().InsertOne(ctx, m)
	if err != nil {
		return err
	}
	m.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// --- Documents ---

func (s *Store) CreateDocument(ctx context.Context, d *models.Document) error {
	d.UploadedAt = time.Now()
	res, err := s.documents().InsertOne(ctx, d)
	if err != nil {
		return err
	}
	d.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *Store) GetDocument(ctx context.Context, matterID, documentID primitive.ObjectID) (*models.Document, error) {
	var d models.Document
	err := s.documents().FindOne(ctx, bson.M{"_id": documentID, "matter_id": matterID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (s *Store) FindDocumentByHash(ctx context.Context, matterID primitive.ObjectID, fileHash string) (*models.Document, error) {
	var d models.Document
	err := s.documents().FindOne(ctx, bson.M{"matter_id": matterID, "file_hash": fileHash}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, matterID, documentID primitive.ObjectID, status models.DocumentStatus, errMsg string) error {
	set := bson.M{"status": status}
	if errMsg != "" {
		set["error_message"] = errMsg
	}
	if status == models.DocStatusCompleted || status == models.DocStatusFailed {
		now := time.Now()
		set["completed_at"] = now
	}
	_, err := s.documents().UpdateOne(ctx,
		bson.M{"_id": documentID, "matter_id": matterID},
		bson.M{"$set": set},
	)
	return err
}

func (s *Store) SetDocumentExtractedText(ctx context.Context, matterID, documentID primitive.ObjectID, text string) error {
	_, err := s.documents().UpdateOne(ctx,
		bson.M{"_id": documentID, "matter_id": matterID},
		bson.M{"$set": bson.M{"extracted_text": text}},
	)
	return err
}

func (s *Store) SetDocumentOCRConfidence(ctx context.Context, matterID, documentID primitive.ObjectID, confidence float64) (models.OCRQualityStatus, error) {
	status := models.DetermineQualityStatus(confidence)
	_, err := s.documents().UpdateOne(ctx,
		bson.M{"_id": documentID, "matter_id": matterID},
		bson.M{"$set": bson.M{
			"ocr_confidence":     confidence,
			"ocr_quality_status": status,
		}},
	)
	if err != nil {
		return "", err
	}
	return status, nil
}

// ClaimDocumentMergeTrigger is the CAS guard the worker pool uses to
// decide which OCR chunk completion gets to enqueue the merge step:
// several chunks can observe "all chunks completed" in the same
// instant, but only the one whose UpdateOne actually flips processing
// -> ocr_complete should fire the follow-on task. Grounded in
// merge_trigger_service.py's single-winner trigger check.
func (s *Store) ClaimDocumentMergeTrigger(ctx context.Context, matterID, documentID primitive.ObjectID) (bool, error) {
	res, err := s.documents().UpdateOne(ctx,
		bson.M{"_id": documentID, "matter_id": matterID, "status": models.DocStatusProcessing},
		bson.M{"$set": bson.M{"status": models.DocStatusOCRComplete}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (s *Store) SetDocumentPageCount(ctx context.Context, matterID, documentID primitive.ObjectID, pageCount int) error {
	_, err := s.documents().UpdateOne(ctx,
		bson.M{"_id": documentID, "matter_id": matterID},
		bson.M{"$set": bson.M{"page_count": pageCount}},
	)
	return err
}

// --- OCR Chunks ---

func (s *Store) CreateOCRChunks(ctx context.Context, chunks []*models.OCRChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]interface{}, len(chunks))
	now := time.Now()
	for i, c := range chunks {
		c.LastHeartbeat = now
		docs[i] = c
	}
	_, err := s.ocrChunks().InsertMany(ctx, docs)
	return err
}

func (s *Store) ListOCRChunks(ctx context.Context, matterID, documentID primitive.ObjectID) ([]*models.OCRChunk, error) {
	cur, err := s.ocrChunks().Find(ctx,
		bson.M{"matter_id": matterID, "document_id": documentID},
		options.Find().SetSort(bson.D{{Key: "chunk_index", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.OCRChunk
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimOCRChunk atomically transitions a pending (or timed-out
// processing) chunk to processing, returning ErrNotFound if
// another worker already claimed it — the race the ledger sweeper and
// an ordinary first attempt both rely on.
func (s *Store) ClaimOCRChunk(ctx context.Context, matterID, documentID primitive.ObjectID, chunkIndex int, staleBefore time.Time) (*models.OCRChunk, error) {
	now := time.Now()
	var chunk models.OCRChunk
	err := s.ocrChunks().FindOneAndUpdate(ctx,
		bson.M{
			"matter_id":    matterID,
			"document_id":  documentID,
			"chunk_index":  chunkIndex,
			"$or": []bson.M{
				{"status": models.OCRChunkPending},
				{"status": models.OCRChunkProcessing, "last_heartbeat": bson.M{"$lt": staleBefore}},
			},
		},
		bson.M{"$set": bson.M{
			"status":                models.OCRChunkProcessing,
			"processing_started_at": now,
			"last_heartbeat":        now,
		}, "$inc": bson.M{"recovery_attempts": 0}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&chunk)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	return &chunk, err
}

func (s *Store) HeartbeatOCRChunk(ctx context.Context, matterID, documentID primitive.ObjectID, chunkIndex int) error {
	_, err := s.ocrChunks().UpdateOne(ctx,
		bson.M{"matter_id": matterID, "document_id": documentID, "chunk_index": chunkIndex},
		bson.M{"$set": bson.M{"last_heartbeat": time.Now()}},
	)
	return err
}

func (s *Store) CompleteOCRChunk(ctx context.Context, matterID, documentID primitive.ObjectID, chunkIndex int, storagePath, checksum string) error {
	now := time.Now()
	_, err := s.ocrChunks().UpdateOne(ctx,
		bson.M{"matter_id": matterID, "document_id": documentID, "chunk_index": chunkIndex},
		bson.M{"$set": bson.M{
			"status":                  models.OCRChunkCompleted,
			"result_storage_path":     storagePath,
			"result_checksum":         checksum,
			"processing_completed_at": now,
		}},
	)
	return err
}

func (s *Store) FailOCRChunk(ctx context.Context, matterID, documentID primitive.ObjectID, chunkIndex int, errMsg string) error {
	_, err := s.ocrChunks().UpdateOne(ctx,
		bson.M{"matter_id": matterID, "document_id": documentID, "chunk_index": chunkIndex},
		bson.M{
			"$set": bson.M{"status": models.OCRChunkFailed, "error_message": errMsg},
			"$inc": bson.M{"recovery_attempts": 1},
		},
	)
	return err
}

// FindStaleOCRChunks returns chunks stuck in "processing" past the
// heartbeat deadline, across all matters — the sweeper's recovery scan.
func (s *Store) FindStaleOCRChunks(ctx context.Context, staleBefore time.Time, limit int64) ([]*models.OCRChunk, error) {
	cur, err := s.ocrChunks().Find(ctx,
		bson.M{"status": models.OCRChunkProcessing, "last_heartbeat": bson.M{"$lt": staleBefore}},
		options.Find().SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.OCRChunk
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RequeueStaleOCRChunk is the recovery CAS: it resets a stale chunk to
// pending so a fresh OCRChunk task can claim it, but only if the chunk
// is still exactly at the last_heartbeat the caller observed — two
// sweeper ticks racing the same chunk must not both increment
// recovery_attempts. Returns false without error if the chunk moved on
// (completed, or already reclaimed) before this CAS landed. Grounded in
// chunk_recovery_service.py's recover_stale_chunk threshold check.
func (s *Store) RequeueStaleOCRChunk(ctx context.Context, chunk *models.OCRChunk) (bool, error) {
	res, err := s.ocrChunks().UpdateOne(ctx,
		bson.M{
			"_id":            chunk.ID,
			"matter_id":      chunk.MatterID,
			"status":         models.OCRChunkProcessing,
			"last_heartbeat": chunk.LastHeartbeat,
		},
		bson.M{
			"$set": bson.M{
				"status":         models.OCRChunkPending,
				"last_heartbeat": time.Now(),
			},
			"$inc": bson.M{"recovery_attempts": 1},
		},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// ListDocumentsPastRetention returns documents that finished processing
// (terminal status) before cutoff, for the chunk/blob retention sweep —
// grounded in chunk_cleanup_service.py's cleanup_stale_chunks scan.
func (s *Store) ListDocumentsPastRetention(ctx context.Context, cutoff time.Time, limit int64) ([]*models.Document, error) {
	cur, err := s.documents().Find(ctx,
		bson.M{
			"status":       bson.M{"$in": []models.DocumentStatus{models.DocStatusCompleted, models.DocStatusFailed}},
			"completed_at": bson.M{"$lt": cutoff},
		},
		options.Find().SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Document
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListProcessingDocuments returns documents still marked processing,
// across all matters, for the pending-merge sweep to check against
// their chunk completion state — a document crashed between its last
// chunk completing and the merge trigger otherwise sits stuck here
// forever.
func (s *Store) ListProcessingDocuments(ctx context.Context, limit int64) ([]*models.Document, error) {
	cur, err := s.documents().Find(ctx,
		bson.M{"status": models.DocStatusProcessing},
		options.Find().SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Document
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOCRChunks removes a document's ocr_chunks rows once their blob
// results have been reclaimed by the retention sweep.
func (s *Store) DeleteOCRChunks(ctx context.Context, matterID, documentID primitive.ObjectID) error {
	_, err := s.ocrChunks().DeleteMany(ctx, bson.M{"matter_id": matterID, "document_id": documentID})
	return err
}

// CountDocumentsByQualityStatus reports how many documents currently
// carry the given ocr_quality_status, for the quality-alert sweep.
func (s *Store) CountDocumentsByQualityStatus(ctx context.Context, status models.OCRQualityStatus) (int64, error) {
	return s.documents().CountDocuments(ctx, bson.M{"ocr_quality_status": status})
}

// --- Bounding boxes ---

func (s *Store) InsertBoundingBoxes(ctx context.Context, boxes []*models.BoundingBox) error {
	if len(boxes) == 0 {
		return nil
	}
	docs := make([]interface{}, len(boxes))
	for i, b := range boxes {
		docs[i] = b
	}
	_, err := s.boundingBoxes().InsertMany(ctx, docs)
	return err
}

func (s *Store) ListBoundingBoxes(ctx context.Context, matterID, documentID primitive.ObjectID) ([]*models.BoundingBox, error) {
	cur, err := s.boundingBoxes().Find(ctx,
		bson.M{"matter_id": matterID, "document_id": documentID},
		options.Find().SetSort(bson.D{{Key: "reading_order", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.BoundingBox
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// --- Chunks ---

// ChunksExistForDocument reports whether any chunk row has already
// been written for a document, the guard RunChunkStage uses to treat
// chunking as a single idempotent "insert once" step rather than one
// it can safely re-run.
func (s *Store) ChunksExistForDocument(ctx context.Context, matterID, documentID primitive.ObjectID) (bool, error) {
	count, err := s.chunks().CountDocuments(ctx,
		bson.M{"matter_id": matterID, "document_id": documentID},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertChunks writes every parent/child Chunk row for a document as a
// single all-or-nothing unit: a failure partway through a large
// InsertMany must not leave half a document's chunk tree behind for a
// retry to duplicate, so the insert runs inside one Mongo session
// transaction.
func (s *Store) InsertChunks(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]interface{}, len(chunks))
	for i, c := range chunks {
		docs[i] = c
	}

	session, err := s.db.Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		_, err := s.chunks().InsertMany(sessCtx, docs)
		return nil, err
	})
	return err
}

func (s *Store) ListChunks(ctx context.Context, matterID, documentID primitive.ObjectID, chunkType models.ChunkType) ([]*models.Chunk, error) {
	filter := bson.M{"matter_id": matterID, "document_id": documentID}
	if chunkType != "" {
		filter["chunk_type"] = chunkType
	}
	cur, err := s.chunks().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "chunk_index", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Chunk
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateChunkLinking persists the page number and bounding-box IDs
// LinkChunksToBBoxes assigns a chunk in memory — without this, the
// linking pass's result only lives as long as the in-memory slice the
// caller happened to reuse, and a reload of the chunk from Mongo would
// see page_number/bbox_ids as still empty.
func (s *Store) UpdateChunkLinking(ctx context.Context, matterID, chunkID primitive.ObjectID, pageNumber int, bboxIDs []primitive.ObjectID) error {
	_, err := s.chunks().UpdateOne(ctx,
		bson.M{"_id": chunkID, "matter_id": matterID},
		bson.M{"$set": bson.M{"page_number": pageNumber, "bbox_ids": bboxIDs}},
	)
	return err
}

func (s *Store) SetChunkEmbedding(ctx context.Context, matterID, chunkID primitive.ObjectID, embedding []float32) error {
	_, err := s.chunks().UpdateOne(ctx,
		bson.M{"_id": chunkID, "matter_id": matterID},
		bson.M{"$set": bson.M{"embedding": embedding}},
	)
	return err
}

// --- Entities ---

func (s *Store) UpsertCanonicalEntity(ctx context.Context, e *models.CanonicalEntity) error {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	_, err := s.canonicalEntities().UpdateOne(ctx,
		bson.M{"_id": e.ID},
		bson.M{"$set": e},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *Store) ListCanonicalEntities(ctx context.Context, matterID primitive.ObjectID) ([]*models.CanonicalEntity, error) {
	cur, err := s.canonicalEntities().Find(ctx, bson.M{"matter_id": matterID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.CanonicalEntity
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) InsertEntityMentions(ctx context.Context, mentions []*models.EntityMention) error {
	if len(mentions) == 0 {
		return nil
	}
	docs := make([]interface{}, len(mentions))
	for i, m := range mentions {
		docs[i] = m
	}
	_, err := s.entityMentions().InsertMany(ctx, docs)
	return err
}

// --- Events & Citations ---

func (s *Store) InsertEvents(ctx context.Context, events []*models.Event) error {
	if len(events) == 0 {
		return nil
	}
	docs := make([]interface{}, len(events))
	for i, e := range events {
		docs[i] = e
	}
	_, err := s.events().InsertMany(ctx, docs)
	return err
}

func (s *Store) InsertCitations(ctx context.Context, citations []*models.Citation) error {
	if len(citations) == 0 {
		return nil
	}
	docs := make([]interface{}, len(citations))
	for i, c := range citations {
		docs[i] = c
	}
	_, err := s.citations().InsertMany(ctx, docs)
	return err
}

func (s *Store) UpdateCitationResolution(ctx context.Context, matterID, citationID primitive.ObjectID, status models.ResolutionStatus) error {
	_, err := s.citations().UpdateOne(ctx,
		bson.M{"_id": citationID, "matter_id": matterID},
		bson.M{"$set": bson.M{"resolution_status": status}},
	)
	return err
}

func (s *Store) ListTimeline(ctx context.Context, matterID, documentID primitive.ObjectID) ([]*models.Event, error) {
	cur, err := s.events().Find(ctx,
		bson.M{"matter_id": matterID, "document_id": documentID},
		options.Find().SetSort(bson.D{{Key: "event_date", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*models.Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
