package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// ChunkType distinguishes context-giving parent chunks from the retrieval
// target child chunks.
type ChunkType string

const (
	ChunkTypeParent ChunkType = "parent"
	ChunkTypeChild  ChunkType = "child"
)

// Chunk is a semantic unit of a Document prepared for retrieval. Parent
// chunks target 1500-2000 tokens, children 400-700, with roughly 14%
// overlap between sibling children (see internal/pipeline chunk stage).
type Chunk struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	MatterID       primitive.ObjectID  `bson:"matter_id" json:"matter_id"`
	DocumentID     primitive.ObjectID  `bson:"document_id" json:"document_id"`
	ParentChunkID  *primitive.ObjectID `bson:"parent_chunk_id,omitempty" json:"parent_chunk_id,omitempty"`
	ChunkType      ChunkType           `bson:"chunk_type" json:"chunk_type"`
	ChunkIndex     int                 `bson:"chunk_index" json:"chunk_index"`
	Content        string              `bson:"content" json:"content"`
	TokenCount     int                 `bson:"token_count" json:"token_count"`
	PageNumber     int                 `bson:"page_number,omitempty" json:"page_number,omitempty"`
	BBoxIDs        []primitive.ObjectID `bson:"bbox_ids,omitempty" json:"bbox_ids,omitempty"`
	Embedding      []float32           `bson:"embedding,omitempty" json:"-"`
}

// EntityMention is an occurrence of a named entity within a chunk.
type EntityMention struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID          primitive.ObjectID `bson:"matter_id" json:"matter_id"`
	DocumentID        primitive.ObjectID `bson:"document_id" json:"document_id"`
	ChunkID           primitive.ObjectID `bson:"chunk_id" json:"chunk_id"`
	CanonicalEntityID primitive.ObjectID `bson:"canonical_entity_id" json:"canonical_entity_id"`
	SurfaceForm       string             `bson:"surface_form" json:"surface_form"`
	Aliases           []string           `bson:"aliases,omitempty" json:"aliases,omitempty"`
	EntityType        string             `bson:"entity_type" json:"entity_type"` // person, org, statute, date
}

// CanonicalEntity is the resolved, deduplicated identity a set of
// EntityMentions point to.
type CanonicalEntity struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID      primitive.ObjectID `bson:"matter_id" json:"matter_id"`
	CanonicalName string             `bson:"canonical_name" json:"canonical_name"`
	Aliases       []string           `bson:"aliases,omitempty" json:"aliases,omitempty"`
	EntityType    string             `bson:"entity_type" json:"entity_type"`
}
