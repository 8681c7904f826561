package service

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/jjenkins/edinet/internal/config"
	"github.com/jjenkins/edinet/internal/model"
)

// Conditions that skip a single filing without stopping the run
var (
	ErrUnknownCategory     = errors.New("unknown report category")
	ErrMissingCategoryCode = errors.New("report-type code is missing")
	ErrMissingFilerCode    = errors.New("filer code is missing")
	ErrInvalidSubmitDate   = errors.New("submission date is not parseable")
)

// UnknownCategoryError carries the code that was not in the lookup table
type UnknownCategoryError struct {
	Code string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownCategory, e.Code)
}

func (e *UnknownCategoryError) Is(target error) bool {
	return target == ErrUnknownCategory
}

// IsSkippable reports whether err only concerns the current filing
func IsSkippable(err error) bool {
	return errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrMissingCategoryCode) ||
		errors.Is(err, ErrMissingFilerCode) ||
		errors.Is(err, ErrInvalidSubmitDate)
}

// Layout derives where a filing's files live under the output root:
//
//	root/{edinetCode}/{YYYY-MM-DD}_{docID}_{category}/
type Layout struct {
	root string
}

// NewLayout creates a Layout rooted at root
func NewLayout(root string) *Layout {
	return &Layout{root: root}
}

// FolderFor returns the folder of a filing. The document id is part of the
// folder name, so distinct filings never share a folder.
func (l *Layout) FolderFor(f model.Filing) (string, error) {
	if f.DocTypeCode == nil {
		return "", ErrMissingCategoryCode
	}
	label, ok := model.CategoryLabel(*f.DocTypeCode)
	if !ok {
		return "", &UnknownCategoryError{Code: *f.DocTypeCode}
	}
	if f.FilerCode() == "" {
		return "", ErrMissingFilerCode
	}
	date, err := f.SubmissionDate()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSubmitDate, err)
	}

	name := fmt.Sprintf("%s_%s_%s", date.Format(config.DateLayout), f.DocID, label)
	return filepath.Join(l.root, f.FilerCode(), name), nil
}

// ArtifactPath returns the destination of one artifact inside folder
func (l *Layout) ArtifactPath(folder, docID string, kind model.ArtifactKind) string {
	return filepath.Join(folder, kind.FileName(docID))
}

// MetadataPath returns the destination of the metadata snapshot
func (l *Layout) MetadataPath(folder string) string {
	return filepath.Join(folder, model.MetadataFileName)
}

// Prepare creates folder and any missing parents. It is safe to call twice.
func (l *Layout) Prepare(fs afero.Fs, folder string) error {
	if err := fs.MkdirAll(folder, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", folder, err)
	}
	return nil
}
