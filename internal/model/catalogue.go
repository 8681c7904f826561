package model

import (
	"time"
)

// FilingStatus is the retrieval state of a catalogued filing
type FilingStatus string

const (
	StatusDiscovered FilingStatus = "discovered"
	StatusCompleted  FilingStatus = "completed"
	StatusFailed     FilingStatus = "failed"
	StatusSkipped    FilingStatus = "skipped"
)

// CatalogueFiling represents a filing row in the catalogue database
type CatalogueFiling struct {
	ID          int
	DocID       string
	EdinetCode  string
	FilerName   string
	SecCode     string
	DocTypeCode string
	Category    string
	SubmittedAt time.Time
	Folder      string
	Status      FilingStatus
	Error       string
	RunID       string
	Metadata    []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ArtifactRecord represents one downloaded (or failed) artifact
type ArtifactRecord struct {
	ID        int
	DocID     string
	Kind      ArtifactKind
	Path      string
	Size      int64
	SHA256    string
	Error     string
	FetchedAt time.Time
}

// CategoryCount is a per-category tally for the catalogue overview
type CategoryCount struct {
	DocTypeCode string
	Category    string
	Total       int
	Completed   int
	Failed      int
}
