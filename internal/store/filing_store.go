package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jjenkins/edinet/internal/model"
)

// FilingStore handles database operations for catalogued filings
type FilingStore struct {
	db        *sql.DB
	artifacts *ArtifactStore
}

// NewFilingStore creates a new FilingStore
func NewFilingStore(db *sql.DB) *FilingStore {
	return &FilingStore{db: db, artifacts: NewArtifactStore(db)}
}

// ListOptions narrows and orders List results
type ListOptions struct {
	EdinetCode  string
	DocTypeCode string
	Status      string
	SortBy      string
	Order       string
	Limit       int
}

const filingColumns = `
	id, doc_id, edinet_code, filer_name, COALESCE(sec_code, ''),
	COALESCE(doc_type_code, ''), category, submitted_at, folder, status,
	error, run_id, metadata, created_at, updated_at`

// upsertFilingQuery keeps a completed status when a filing is rediscovered
const upsertFilingQuery = `
	INSERT INTO filings (doc_id, edinet_code, filer_name, sec_code, doc_type_code,
	                     category, submitted_at, folder, status, error, run_id, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (doc_id) DO UPDATE SET
		edinet_code = EXCLUDED.edinet_code,
		filer_name = EXCLUDED.filer_name,
		sec_code = EXCLUDED.sec_code,
		doc_type_code = EXCLUDED.doc_type_code,
		category = EXCLUDED.category,
		submitted_at = EXCLUDED.submitted_at,
		folder = CASE WHEN EXCLUDED.folder = '' THEN filings.folder ELSE EXCLUDED.folder END,
		status = CASE
			WHEN EXCLUDED.status = 'discovered' AND filings.status = 'completed' THEN filings.status
			ELSE EXCLUDED.status
		END,
		error = EXCLUDED.error,
		run_id = EXCLUDED.run_id,
		metadata = EXCLUDED.metadata,
		updated_at = NOW()
	RETURNING id
`

// SaveDiscovered records the filings written to a manifest
func (s *FilingStore) SaveDiscovered(ctx context.Context, runID string, filings []model.Filing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, f := range filings {
		if _, err := upsertFiling(ctx, tx, runID, f, "", model.StatusDiscovered, ""); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveRetrieval records the outcome of one filing and its artifacts
func (s *FilingStore) SaveRetrieval(ctx context.Context, runID string, f model.Filing, folder string, status model.FilingStatus, reason string, artifacts []model.ArtifactRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := upsertFiling(ctx, tx, runID, f, folder, status, reason); err != nil {
		return err
	}

	for i := range artifacts {
		if err := s.artifacts.upsert(ctx, tx, &artifacts[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertFiling(ctx context.Context, tx *sql.Tx, runID string, f model.Filing, folder string, status model.FilingStatus, reason string) (int, error) {
	metadata, err := json.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("failed to encode filing %s: %w", f.DocID, err)
	}

	category := ""
	if f.DocTypeCode != nil {
		category, _ = model.CategoryLabel(*f.DocTypeCode)
	}

	var id int
	err = tx.QueryRowContext(ctx, upsertFilingQuery,
		f.DocID,
		f.FilerCode(),
		f.Filer(),
		f.SecCode,
		f.DocTypeCode,
		category,
		submittedAt(f),
		folder,
		string(status),
		reason,
		runID,
		string(metadata),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert filing %s: %w", f.DocID, err)
	}
	return id, nil
}

func submittedAt(f model.Filing) sql.NullTime {
	t, err := f.SubmittedAt()
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// GetByDocID retrieves a filing by its document id
func (s *FilingStore) GetByDocID(ctx context.Context, docID string) (*model.CatalogueFiling, error) {
	query := `SELECT ` + filingColumns + ` FROM filings WHERE doc_id = $1`

	f, err := scanFiling(s.db.QueryRowContext(ctx, query, docID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get filing %s: %w", docID, err)
	}
	return f, nil
}

// List retrieves filings matching opts
func (s *FilingStore) List(ctx context.Context, opts ListOptions) ([]model.CatalogueFiling, error) {
	// Whitelist valid sort columns to prevent SQL injection
	validColumns := map[string]string{
		"submitted": "submitted_at",
		"company":   "edinet_code",
		"name":      "filer_name",
		"category":  "doc_type_code",
		"status":    "status",
		"updated":   "updated_at",
	}

	column, ok := validColumns[opts.SortBy]
	if !ok {
		column = "submitted_at"
	}

	sortOrder := "DESC"
	if opts.Order == "asc" {
		sortOrder = "ASC"
	}

	limit := opts.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM filings
		WHERE ($1 = '' OR edinet_code = $1)
		  AND ($2 = '' OR doc_type_code = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY %s %s NULLS LAST, doc_id
		LIMIT $4
	`, filingColumns, column, sortOrder)

	rows, err := s.db.QueryContext(ctx, query, opts.EdinetCode, opts.DocTypeCode, opts.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list filings: %w", err)
	}
	defer rows.Close()

	var filings []model.CatalogueFiling
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan filing: %w", err)
		}
		filings = append(filings, *f)
	}

	return filings, rows.Err()
}

// CountFilings returns the number of catalogued filings
func (s *FilingStore) CountFilings(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM filings").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count filings: %w", err)
	}
	return count, nil
}

// CountCompanies returns the number of distinct filers
func (s *FilingStore) CountCompanies(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT edinet_code) FROM filings").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count companies: %w", err)
	}
	return count, nil
}

// CategoryCounts tallies filings per report type
func (s *FilingStore) CategoryCounts(ctx context.Context) ([]model.CategoryCount, error) {
	query := `
		SELECT COALESCE(doc_type_code, ''), category,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM filings
		GROUP BY doc_type_code, category
		ORDER BY doc_type_code
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer rows.Close()

	var counts []model.CategoryCount
	for rows.Next() {
		var c model.CategoryCount
		if err := rows.Scan(&c.DocTypeCode, &c.Category, &c.Total, &c.Completed, &c.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFiling(row rowScanner) (*model.CatalogueFiling, error) {
	var f model.CatalogueFiling
	var submitted sql.NullTime
	var status string
	err := row.Scan(
		&f.ID,
		&f.DocID,
		&f.EdinetCode,
		&f.FilerName,
		&f.SecCode,
		&f.DocTypeCode,
		&f.Category,
		&submitted,
		&f.Folder,
		&status,
		&f.Error,
		&f.RunID,
		&f.Metadata,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.SubmittedAt = submitted.Time
	f.Status = model.FilingStatus(status)
	return &f, nil
}
