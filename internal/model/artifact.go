package model

import (
	"fmt"
	"strings"
)

// ArtifactKind is the registry's `type` parameter on /documents/{docID}
type ArtifactKind int

const (
	ArtifactXBRL       ArtifactKind = 1
	ArtifactPDF        ArtifactKind = 2
	ArtifactAttachment ArtifactKind = 3
	ArtifactEnglish    ArtifactKind = 4
	ArtifactCSV        ArtifactKind = 5
)

// DefaultArtifactKinds are fetched for every retained filing
var DefaultArtifactKinds = []ArtifactKind{ArtifactXBRL, ArtifactPDF, ArtifactCSV}

// MetadataFileName is written into every filing folder
const MetadataFileName = "metadata.json"

// String returns the short name used in logs, metrics and flags
func (k ArtifactKind) String() string {
	switch k {
	case ArtifactXBRL:
		return "xbrl"
	case ArtifactPDF:
		return "pdf"
	case ArtifactAttachment:
		return "attach"
	case ArtifactEnglish:
		return "english"
	case ArtifactCSV:
		return "csv"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FileName returns the artifact's file name inside a filing folder
func (k ArtifactKind) FileName(docID string) string {
	switch k {
	case ArtifactPDF:
		return docID + ".pdf"
	default:
		return fmt.Sprintf("%s_%s.zip", docID, k)
	}
}

// ParseArtifactKind accepts either the short name or the numeric type
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "xbrl", "1":
		return ArtifactXBRL, nil
	case "pdf", "2":
		return ArtifactPDF, nil
	case "attach", "attachment", "3":
		return ArtifactAttachment, nil
	case "english", "4":
		return ArtifactEnglish, nil
	case "csv", "5":
		return ArtifactCSV, nil
	default:
		return 0, fmt.Errorf("unknown artifact kind %q", s)
	}
}
