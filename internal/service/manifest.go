package service

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"github.com/jjenkins/edinet/internal/model"
)

// WriteManifest stores the retained filings as a pretty-printed JSON array.
// An empty set is written as [] rather than null.
func WriteManifest(fs afero.Fs, path string, filings []model.Filing) error {
	if filings == nil {
		filings = []model.Filing{}
	}

	data, err := json.MarshalIndent(filings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	data = append(data, '\n')

	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}

// ReadManifest loads the filings written by WriteManifest
func ReadManifest(fs afero.Fs, path string) ([]model.Filing, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var filings []model.Filing
	if err := json.Unmarshal(data, &filings); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return filings, nil
}
