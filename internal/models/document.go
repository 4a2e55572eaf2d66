package models

import "time"

// Status is the outcome recorded for a processed image.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// RawRow is one data row of the record source before validation.
// Line is the 1-based line number in the source, kept for log context.
type RawRow struct {
	Line  int
	Index string
	ID    string
	URL   string
}

// RawRecord is a validated source row. It is never modified after validation.
type RawRecord struct {
	SequenceIndex int64
	Identifier    string
	SourceURL     string
}

// ProcessedImage is the outcome of fetching and thumbnailing one RawRecord.
// Exactly one is produced per record; failures carry StatusError, an empty
// Thumbnail and a non-empty ErrorMessage.
type ProcessedImage struct {
	Identifier    string    `firestore:"identifier" json:"identifier"`
	SequenceIndex int64     `firestore:"sequenceIndex" json:"sequenceIndex"`
	Thumbnail     []byte    `firestore:"thumbnail" json:"-"`
	Status        Status    `firestore:"status" json:"status"`
	ProcessedAt   time.Time `firestore:"processedAt" json:"processedAt"`
	ErrorMessage  string    `firestore:"errorMessage,omitempty" json:"errorMessage,omitempty"`
}

// ImageSummary is the listing view of a stored image, without its bytes.
type ImageSummary struct {
	Identifier    string `firestore:"identifier" json:"identifier"`
	SequenceIndex int64  `firestore:"sequenceIndex" json:"sequenceIndex"`
	Status        Status `firestore:"status" json:"status"`
}
