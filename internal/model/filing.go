package model

import (
	"bytes"
	"fmt"
	"time"
)

// Flag is an availability or status bit that the registry encodes as "0"/"1".
// It is a plain bool in Go and converted only at the JSON boundary, where it is
// written back as "0"/"1" so downstream tooling can read metadata.json unchanged.
type Flag bool

// MarshalJSON encodes the flag the way the registry does
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte(`"1"`), nil
	}
	return []byte(`"0"`), nil
}

// UnmarshalJSON accepts "0"/"1", 0/1, true/false and null
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case `"1"`, `1`, `true`:
		*f = true
	case `"0"`, `0`, `false`, `null`, `""`:
		*f = false
	default:
		return fmt.Errorf("invalid flag value %s", data)
	}
	return nil
}

// Filing represents one document listed by the registry for a given day.
// Field names follow the registry's JSON keys; nullable values are pointers.
type Filing struct {
	SeqNumber            int     `json:"seqNumber"`
	DocID                string  `json:"docID"`
	EdinetCode           *string `json:"edinetCode"`
	SecCode              *string `json:"secCode"`
	JCN                  *string `json:"JCN"`
	FilerName            *string `json:"filerName"`
	FundCode             *string `json:"fundCode"`
	OrdinanceCode        *string `json:"ordinanceCode"`
	FormCode             *string `json:"formCode"`
	DocTypeCode          *string `json:"docTypeCode"`
	PeriodStart          *string `json:"periodStart"`
	PeriodEnd            *string `json:"periodEnd"`
	SubmitDateTime       string  `json:"submitDateTime"`
	DocDescription       *string `json:"docDescription"`
	IssuerEdinetCode     *string `json:"issuerEdinetCode"`
	SubjectEdinetCode    *string `json:"subjectEdinetCode"`
	SubsidiaryEdinetCode *string `json:"subsidiaryEdinetCode"`
	CurrentReportReason  *string `json:"currentReportReason"`
	ParentDocID          *string `json:"parentDocID"`
	OpeDateTime          *string `json:"opeDateTime"`
	WithdrawalStatus     *string `json:"withdrawalStatus"`
	DocInfoEditStatus    *string `json:"docInfoEditStatus"`
	DisclosureStatus     *string `json:"disclosureStatus"`
	XBRLFlag             Flag    `json:"xbrlFlag"`
	PDFFlag              Flag    `json:"pdfFlag"`
	AttachDocFlag        Flag    `json:"attachDocFlag"`
	EnglishDocFlag       Flag    `json:"englishDocFlag"`
	CSVFlag              Flag    `json:"csvFlag"`
	LegalStatus          *string `json:"legalStatus"`
}

// submitLayouts are the timestamp forms the registry has been seen to use
var submitLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// SubmittedAt parses SubmitDateTime, keeping the time of day
func (f Filing) SubmittedAt() (time.Time, error) {
	for _, layout := range submitLayouts {
		t, err := time.Parse(layout, f.SubmitDateTime)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised submitDateTime %q", f.SubmitDateTime)
}

// SubmissionDate returns the calendar date (midnight UTC) of SubmitDateTime
func (f Filing) SubmissionDate() (time.Time, error) {
	t, err := f.SubmittedAt()
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// Has reports whether the registry marks the artifact kind as available
func (f Filing) Has(kind ArtifactKind) bool {
	switch kind {
	case ArtifactXBRL:
		return bool(f.XBRLFlag)
	case ArtifactPDF:
		return bool(f.PDFFlag)
	case ArtifactAttachment:
		return bool(f.AttachDocFlag)
	case ArtifactEnglish:
		return bool(f.EnglishDocFlag)
	case ArtifactCSV:
		return bool(f.CSVFlag)
	default:
		return false
	}
}

// DocType returns the report-type code, or "" when the registry sent null
func (f Filing) DocType() string {
	return deref(f.DocTypeCode)
}

// FilerCode returns the filer's EDINET code, or "" when the registry sent null
func (f Filing) FilerCode() string {
	return deref(f.EdinetCode)
}

// Filer returns the filer's name, or "" when the registry sent null
func (f Filing) Filer() string {
	return deref(f.FilerName)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Listing represents one day's response from /documents.json
type Listing struct {
	Metadata ListingMetadata `json:"metadata"`
	Results  []Filing        `json:"results"`
}

// ListingMetadata is the response-level status block of a listing
type ListingMetadata struct {
	Title     string `json:"title"`
	Parameter struct {
		Date string `json:"date"`
		Type string `json:"type"`
	} `json:"parameter"`
	ResultSet struct {
		Count int `json:"count"`
	} `json:"resultset"`
	ProcessDateTime string `json:"processDateTime"`
	Status          string `json:"status"`
	Message         string `json:"message"`
}

// Consistent reports whether the advertised count matches the results received.
// A mismatch points at a partial or erroneous response.
func (l *Listing) Consistent() bool {
	return l.Metadata.ResultSet.Count == len(l.Results)
}
