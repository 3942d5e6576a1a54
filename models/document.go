package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DocumentStatus is the lifecycle state of a Document. Transitions are
// monotonic except failed -> pending on recovery (see internal/ledger).
type DocumentStatus string

const (
	DocStatusPending     DocumentStatus = "pending"
	DocStatusProcessing  DocumentStatus = "processing"
	DocStatusOCRComplete DocumentStatus = "ocr_complete"
	DocStatusOCRFailed   DocumentStatus = "ocr_failed"
	DocStatusCompleted   DocumentStatus = "completed"
	DocStatusFailed      DocumentStatus = "failed"
)

// OCRQualityStatus buckets a document's aggregate OCR confidence.
type OCRQualityStatus string

const (
	QualityGood OCRQualityStatus = "good" // >= 0.85
	QualityFair OCRQualityStatus = "fair" // >= 0.70
	QualityPoor OCRQualityStatus = "poor"
)

const (
	QualityGoodThreshold = 0.85
	QualityFairThreshold = 0.70
)

// DetermineQualityStatus buckets an overall confidence score into a
// human-facing quality bucket.
func DetermineQualityStatus(confidence float64) OCRQualityStatus {
	switch {
	case confidence >= QualityGoodThreshold:
		return QualityGood
	case confidence >= QualityFairThreshold:
		return QualityFair
	default:
		return QualityPoor
	}
}

// Document is one PDF upload.
type Document struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MatterID          primitive.ObjectID `bson:"matter_id" json:"matter_id"`
	Filename          string             `bson:"filename" json:"filename"`
	StoragePath       string             `bson:"storage_path" json:"storage_path"`
	FileHash          string             `bson:"file_hash" json:"file_hash"`
	ByteSize          int64              `bson:"byte_size" json:"byte_size"`
	PageCount         *int               `bson:"page_count,omitempty" json:"page_count,omitempty"`
	Status            DocumentStatus     `bson:"status" json:"status"`
	OCRConfidence     *float64           `bson:"ocr_confidence,omitempty" json:"ocr_confidence,omitempty"`
	OCRQualityStatus  OCRQualityStatus   `bson:"ocr_quality_status,omitempty" json:"ocr_quality_status,omitempty"`
	ExtractedText     string             `bson:"extracted_text,omitempty" json:"-"`
	ErrorMessage      string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	UploadedAt        time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	CompletedAt       *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// IsTerminal reports whether the document has reached a terminal status.
func (d *Document) IsTerminal() bool {
	switch d.Status {
	case DocStatusCompleted, DocStatusFailed:
		return true
	default:
		return false
	}
}
