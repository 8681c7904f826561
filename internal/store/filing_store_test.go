package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/edinet/internal/model"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	os.Exit(runWithPostgres(m))
}

// runWithPostgres starts a throwaway PostgreSQL container. Without Docker the
// database tests are skipped instead of failing the package.
func runWithPostgres(m *testing.M) int {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Printf("Docker unavailable, skipping database tests: %s", err)
		return m.Run()
	}
	if err := pool.Client.Ping(); err != nil {
		log.Printf("Docker unavailable, skipping database tests: %s", err)
		return m.Run()
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16.3",
		Env: []string{
			"POSTGRES_PASSWORD=password123",
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=edinet",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Printf("Could not start postgres, skipping database tests: %s", err)
		return m.Run()
	}
	defer func() {
		if err := pool.Purge(resource); err != nil {
			log.Printf("Could not purge resource: %s", err)
		}
	}()

	resource.Expire(120)

	dsn := fmt.Sprintf("postgres://postgres:password123@%s/edinet?sslmode=disable", resource.GetHostPort("5432/tcp"))
	pool.MaxWait = 120 * time.Second
	if err := pool.Retry(func() error {
		db, err := NewDB(dsn)
		if err != nil {
			return err
		}
		testDB = db
		return nil
	}); err != nil {
		log.Printf("Could not connect to database: %s", err)
		return 1
	}
	defer testDB.Close()

	if err := Migrate(context.Background(), testDB); err != nil {
		log.Printf("Could not migrate database: %s", err)
		return 1
	}

	return m.Run()
}

func requireDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() || testDB == nil {
		t.Skip("database not available")
	}
	return testDB
}

func strPtr(s string) *string { return &s }

func sampleFiling(docID, edinetCode, docType string) model.Filing {
	return model.Filing{
		DocID:          docID,
		EdinetCode:     strPtr(edinetCode),
		FilerName:      strPtr("Sample Corp"),
		SecCode:        strPtr("72030"),
		DocTypeCode:    strPtr(docType),
		SubmitDateTime: "2024-03-01 09:15",
		XBRLFlag:       true,
		PDFFlag:        true,
		CSVFlag:        true,
	}
}

func TestSaveDiscoveredAndRetrieval(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	s := NewFilingStore(db)
	runID := uuid.NewString()

	f := sampleFiling("S100TEST1", "E90001", model.DocTypeAnnualReport)
	require.NoError(t, s.SaveDiscovered(ctx, runID, []model.Filing{f}))

	got, err := s.GetByDocID(ctx, f.DocID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StatusDiscovered, got.Status)
	assert.Equal(t, "有価証券報告書", got.Category)
	assert.Equal(t, "72030", got.SecCode)
	assert.Equal(t, 2024, got.SubmittedAt.Year())

	folder := "xbrl-files/E90001/2024-03-01_S100TEST1_有価証券報告書"
	artifacts := []model.ArtifactRecord{
		{DocID: f.DocID, Kind: model.ArtifactXBRL, Path: folder + "/S100TEST1_xbrl.zip", Size: 10, SHA256: "abc", FetchedAt: time.Now()},
		{DocID: f.DocID, Kind: model.ArtifactPDF, Path: folder + "/S100TEST1.pdf", Error: "status 404", FetchedAt: time.Now()},
	}
	require.NoError(t, s.SaveRetrieval(ctx, runID, f, folder, model.StatusFailed, "status 404", artifacts))

	got, err = s.GetByDocID(ctx, f.DocID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, folder, got.Folder)
	assert.Equal(t, "status 404", got.Error)

	stored, err := NewArtifactStore(db).GetForFiling(ctx, f.DocID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, model.ArtifactXBRL, stored[0].Kind)
	assert.Equal(t, int64(10), stored[0].Size)
	assert.Equal(t, "status 404", stored[1].Error)
}

func TestRediscoveryKeepsCompletedStatus(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	s := NewFilingStore(db)

	f := sampleFiling("S100TEST2", "E90002", model.DocTypeQuarterlyReport)
	require.NoError(t, s.SaveRetrieval(ctx, uuid.NewString(), f, "some/folder", model.StatusCompleted, "", nil))
	require.NoError(t, s.SaveDiscovered(ctx, uuid.NewString(), []model.Filing{f}))

	got, err := s.GetByDocID(ctx, f.DocID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, "some/folder", got.Folder)
}

func TestListAndCounts(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()
	s := NewFilingStore(db)
	runID := uuid.NewString()

	require.NoError(t, s.SaveDiscovered(ctx, runID, []model.Filing{
		sampleFiling("S100LIST1", "E90010", model.DocTypeAnnualReport),
		sampleFiling("S100LIST2", "E90010", model.DocTypeSemiAnnualReport),
		sampleFiling("S100LIST3", "E90011", model.DocTypeAnnualReport),
	}))

	byCompany, err := s.List(ctx, ListOptions{EdinetCode: "E90010"})
	require.NoError(t, err)
	assert.Len(t, byCompany, 2)

	byType, err := s.List(ctx, ListOptions{EdinetCode: "E90010", DocTypeCode: model.DocTypeSemiAnnualReport})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "S100LIST2", byType[0].DocID)

	missing, err := s.GetByDocID(ctx, "S100NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)

	total, err := s.CountFilings(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 3)

	counts, err := s.CategoryCounts(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, counts)
}
