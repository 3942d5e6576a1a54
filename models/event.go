package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DatePrecision records how specific an extracted event date is.
type DatePrecision string

const (
	PrecisionDay   DatePrecision = "day"
	PrecisionMonth DatePrecision = "month"
	PrecisionYear  DatePrecision = "year"
)

// Event is an extracted timeline occurrence (filing, order, notice, etc.).
type Event struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	MatterID          primitive.ObjectID   `bson:"matter_id" json:"matter_id"`
	DocumentID        primitive.ObjectID   `bson:"document_id" json:"document_id"`
	EventDate         *time.Time           `bson:"event_date,omitempty" json:"event_date,omitempty"`
	DatePrecision     DatePrecision        `bson:"date_precision,omitempty" json:"date_precision,omitempty"`
	EventDateText     string               `bson:"event_date_text" json:"event_date_text"`
	Description       string               `bson:"description" json:"description"`
	EventType         string               `bson:"event_type" json:"event_type"`
	SourcePage        int                  `bson:"source_page" json:"source_page"`
	SourceBBoxIDs     []primitive.ObjectID `bson:"source_bbox_ids,omitempty" json:"source_bbox_ids,omitempty"`
	EntitiesInvolved  []primitive.ObjectID `bson:"entities_involved,omitempty" json:"entities_involved,omitempty"`
}

// ResolutionStatus is the outcome of resolving a Citation against an act
// registry. "invalid" is kept as a terminal status rather than deleting
// the row, so a bad citation remains visible for manual review.
type ResolutionStatus string

const (
	ResolutionAvailable  ResolutionStatus = "available"
	ResolutionAutoFetched ResolutionStatus = "auto_fetched"
	ResolutionMissing    ResolutionStatus = "missing"
	ResolutionInvalid    ResolutionStatus = "invalid"
)

// Citation is an extracted legal reference (act name + section number).
type Citation struct {
	ID               primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	MatterID         primitive.ObjectID   `bson:"matter_id" json:"matter_id"`
	DocumentID       primitive.ObjectID   `bson:"document_id" json:"document_id"`
	ActName          string               `bson:"act_name" json:"act_name"`
	Section          string               `bson:"section" json:"section"`
	Subsection       string               `bson:"subsection,omitempty" json:"subsection,omitempty"`
	RawText          string               `bson:"raw_text" json:"raw_text"`
	SourcePage       int                  `bson:"source_page" json:"source_page"`
	SourceBBoxIDs    []primitive.ObjectID `bson:"source_bbox_ids,omitempty" json:"source_bbox_ids,omitempty"`
	ResolutionStatus ResolutionStatus     `bson:"resolution_status" json:"resolution_status"`
}
