package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jjenkins/edinet/internal/model"
)

// ArtifactStore handles database operations for downloaded artifacts
type ArtifactStore struct {
	db *sql.DB
}

// NewArtifactStore creates a new ArtifactStore
func NewArtifactStore(db *sql.DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

func (s *ArtifactStore) upsert(ctx context.Context, tx *sql.Tx, a *model.ArtifactRecord) error {
	query := `
		INSERT INTO artifacts (doc_id, kind, path, size, sha256, error, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (doc_id, kind) DO UPDATE SET
			path = EXCLUDED.path,
			size = EXCLUDED.size,
			sha256 = EXCLUDED.sha256,
			error = EXCLUDED.error,
			fetched_at = EXCLUDED.fetched_at
		RETURNING id
	`

	err := tx.QueryRowContext(ctx, query,
		a.DocID,
		int(a.Kind),
		a.Path,
		a.Size,
		a.SHA256,
		a.Error,
		a.FetchedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert %s artifact for %s: %w", a.Kind, a.DocID, err)
	}
	return nil
}

// GetForFiling retrieves the artifacts of a filing ordered by kind
func (s *ArtifactStore) GetForFiling(ctx context.Context, docID string) ([]model.ArtifactRecord, error) {
	query := `
		SELECT id, doc_id, kind, path, size, sha256, error, fetched_at
		FROM artifacts
		WHERE doc_id = $1
		ORDER BY kind
	`

	rows, err := s.db.QueryContext(ctx, query, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to get artifacts for %s: %w", docID, err)
	}
	defer rows.Close()

	var artifacts []model.ArtifactRecord
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, *a)
	}

	return artifacts, rows.Err()
}

// Get retrieves one artifact of a filing
func (s *ArtifactStore) Get(ctx context.Context, docID string, kind model.ArtifactKind) (*model.ArtifactRecord, error) {
	query := `
		SELECT id, doc_id, kind, path, size, sha256, error, fetched_at
		FROM artifacts
		WHERE doc_id = $1 AND kind = $2
	`

	a, err := scanArtifact(s.db.QueryRowContext(ctx, query, docID, int(kind)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s artifact for %s: %w", kind, docID, err)
	}
	return a, nil
}

// TotalBytes returns the size of every successfully downloaded artifact
func (s *ArtifactStore) TotalBytes(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(size), 0) FROM artifacts WHERE error = ''").Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum artifact sizes: %w", err)
	}
	return total, nil
}

func scanArtifact(row rowScanner) (*model.ArtifactRecord, error) {
	var a model.ArtifactRecord
	var kind int
	err := row.Scan(
		&a.ID,
		&a.DocID,
		&kind,
		&a.Path,
		&a.Size,
		&a.SHA256,
		&a.Error,
		&a.FetchedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Kind = model.ArtifactKind(kind)
	return &a, nil
}
