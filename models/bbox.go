package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// BoundingBox is a geometric anchor for a recognized text span. Coordinates
// are normalized to [0,1] against the page dimensions. BoundingBoxes are
// owned by the Document and referenced (not owned) by Chunks, Events, and
// Citations.
type BoundingBox struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID      primitive.ObjectID `bson:"matter_id" json:"matter_id"`
	DocumentID    primitive.ObjectID `bson:"document_id" json:"document_id"`
	PageNumber    int                `bson:"page_number" json:"page_number"`
	X             float64            `bson:"x" json:"x"`
	Y             float64            `bson:"y" json:"y"`
	W             float64            `bson:"w" json:"w"`
	H             float64            `bson:"h" json:"h"`
	Text          string             `bson:"text" json:"text"`
	OCRConfidence float64            `bson:"ocr_confidence" json:"ocr_confidence"`
	// ReadingOrder establishes the document-wide sequence used by
	// link_bboxes' sliding window; it is assigned at merge time.
	ReadingOrder int `bson:"reading_order" json:"reading_order"`
}
