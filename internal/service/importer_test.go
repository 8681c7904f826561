package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/edinet/internal/model"
)

type recordedRetrieval struct {
	docID     string
	folder    string
	status    model.FilingStatus
	artifacts int
}

type fakeCatalogue struct {
	mu         sync.Mutex
	discovered []string
	retrievals []recordedRetrieval
}

func (c *fakeCatalogue) SaveDiscovered(_ context.Context, _ string, filings []model.Filing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range filings {
		c.discovered = append(c.discovered, f.DocID)
	}
	return nil
}

func (c *fakeCatalogue) SaveRetrieval(_ context.Context, _ string, f model.Filing, folder string, status model.FilingStatus, _ string, artifacts []model.ArtifactRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retrievals = append(c.retrievals, recordedRetrieval{docID: f.DocID, folder: folder, status: status, artifacts: len(artifacts)})
	return nil
}

type importerFixture struct {
	registry *fakeRegistry
	fs       afero.Fs
	logs     *bytes.Buffer
	out      *bytes.Buffer
	importer *Importer
}

func newImporterFixture(t *testing.T) *importerFixture {
	t.Helper()
	fx := &importerFixture{
		registry: newFakeRegistry(),
		fs:       afero.NewMemMapFs(),
		logs:     &bytes.Buffer{},
		out:      &bytes.Buffer{},
	}

	logger := slog.New(slog.NewTextHandler(fx.logs, nil))
	client := newTestClient(t, fx.registry)
	metrics := NewMetrics(nil)
	scanner := NewScanner(client, 0, metrics, logger)
	downloader := NewDownloader(client, fx.fs, NewLayout("xbrl-files"), nil, metrics, logger)

	fx.importer = NewImporter(scanner, nil, downloader, fx.fs, "documents.json", metrics, logger).WithOutput(fx.out)
	return fx
}

func TestDiscoverAndRetrieveOneDay(t *testing.T) {
	fx := newImporterFixture(t)
	fx.registry.listings["2024-03-01"] = []model.Filing{
		{DocID: "S100AAAA", EdinetCode: strPtr("E00001"), DocTypeCode: strPtr("120"), SubmitDateTime: "2024-03-01 10:00",
			XBRLFlag: true, PDFFlag: true, CSVFlag: true},
		{DocID: "S100FUND", EdinetCode: strPtr("E00002"), DocTypeCode: strPtr("120"), FundCode: strPtr("G00001"),
			SubmitDateTime: "2024-03-01 11:00", PDFFlag: true},
		{DocID: "S100XTRA", EdinetCode: strPtr("E00003"), DocTypeCode: strPtr("180"), SubmitDateTime: "2024-03-01 12:00", PDFFlag: true},
	}
	fx.registry.addArtifact("S100AAAA", model.ArtifactXBRL, "xbrl")
	fx.registry.addArtifact("S100AAAA", model.ArtifactPDF, "pdf")
	fx.registry.addArtifact("S100AAAA", model.ArtifactCSV, "csv")

	catalogue := &fakeCatalogue{}
	fx.importer.WithCatalogue(catalogue)

	ctx := context.Background()
	stats, retained, err := fx.importer.Discover(ctx, day("2024-03-01"), day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Days)
	assert.Equal(t, 3, stats.Listed)
	assert.Equal(t, 1, stats.Retained)

	manifest, err := ReadManifest(fx.fs, "documents.json")
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.Equal(t, "S100AAAA", manifest[0].DocID)

	rstats, err := fx.importer.Retrieve(ctx, retained)
	require.NoError(t, err)
	assert.Equal(t, 1, rstats.Completed)
	assert.Equal(t, 3, rstats.Artifacts)

	folder := filepath.Join("xbrl-files", "E00001", "2024-03-01_S100AAAA_有価証券報告書")
	assert.Equal(t, []string{"S100AAAA.pdf", "S100AAAA_csv.zip", "S100AAAA_xbrl.zip", "metadata.json"}, listDir(t, fx.fs, folder))

	assert.Equal(t, []string{"S100AAAA"}, catalogue.discovered)
	require.Len(t, catalogue.retrievals, 1)
	assert.Equal(t, model.StatusCompleted, catalogue.retrievals[0].status)
	assert.Equal(t, folder, catalogue.retrievals[0].folder)
	assert.Equal(t, 3, catalogue.retrievals[0].artifacts)

	fx.importer.PrintDiscoverSummary(stats)
	fx.importer.PrintRetrieveSummary(rstats)
	assert.Contains(t, fx.out.String(), "Retained:        1")
	assert.Contains(t, fx.out.String(), "Success rate:    100.0%")
}

func TestDiscoverWritesNothingWhenADayFails(t *testing.T) {
	fx := newImporterFixture(t)
	fx.registry.failDays["2024-03-02"] = http.StatusInternalServerError

	_, _, err := fx.importer.Discover(context.Background(), day("2024-03-01"), day("2024-03-03"))
	require.Error(t, err)

	exists, err := afero.Exists(fx.fs, "documents.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDiscoverEmptyRange(t *testing.T) {
	fx := newImporterFixture(t)

	stats, retained, err := fx.importer.Discover(context.Background(), day("2024-03-01"), day("2024-03-02"))
	require.NoError(t, err)
	assert.Empty(t, retained)
	assert.Equal(t, 0, stats.Retained)

	data, err := afero.ReadFile(fx.fs, "documents.json")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestRetrieveSkipsUnknownCategory(t *testing.T) {
	fx := newImporterFixture(t)
	filings := []model.Filing{
		{DocID: "S100UNKN", EdinetCode: strPtr("E00009"), DocTypeCode: strPtr("999"), SubmitDateTime: "2024-03-01 10:00", PDFFlag: true},
	}

	stats, err := fx.importer.Retrieve(context.Background(), filings)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 0, stats.Completed)

	exists, err := afero.DirExists(fx.fs, filepath.Join("xbrl-files", "E00009"))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, fx.registry.fetched())

	assert.Contains(t, fx.logs.String(), "level=WARN")
	assert.Contains(t, fx.logs.String(), "skipping filing")
	assert.Contains(t, fx.logs.String(), "999")
}

func TestRetrieveSkipsUnplaceableFilings(t *testing.T) {
	fx := newImporterFixture(t)
	filings := []model.Filing{
		{DocID: "S100NOFL", DocTypeCode: strPtr("120"), SubmitDateTime: "2024-03-01 10:00", PDFFlag: true},
		{DocID: "S100DATE", EdinetCode: strPtr("E00001"), DocTypeCode: strPtr("140"), SubmitDateTime: "soon", PDFFlag: true},
		{DocID: "S100NOTY", EdinetCode: strPtr("E00002"), SubmitDateTime: "2024-03-01 10:00", PDFFlag: true},
	}

	stats, err := fx.importer.Retrieve(context.Background(), filings)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 0, stats.Failed)
	assert.Empty(t, fx.registry.fetched())

	fx.importer.PrintRetrieveSummary(stats)
	assert.Contains(t, fx.out.String(), "Skipped:         3 (not placeable)")
	assert.NotContains(t, fx.out.String(), "Success rate")
}

func TestRetrieveContinuesAfterFailedFiling(t *testing.T) {
	fx := newImporterFixture(t)
	filings := []model.Filing{
		{DocID: "S100MISS", EdinetCode: strPtr("E00001"), DocTypeCode: strPtr("120"), SubmitDateTime: "2024-03-01 10:00", PDFFlag: true},
		{DocID: "S100GOOD", EdinetCode: strPtr("E00002"), DocTypeCode: strPtr("140"), SubmitDateTime: "2024-03-01 11:00", PDFFlag: true},
	}
	fx.registry.addArtifact("S100GOOD", model.ArtifactPDF, "pdf")

	stats, err := fx.importer.Retrieve(context.Background(), filings)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Completed)

	// the failed filing keeps its metadata snapshot
	failed := filepath.Join("xbrl-files", "E00001", "2024-03-01_S100MISS_有価証券報告書")
	assert.Equal(t, []string{"metadata.json"}, listDir(t, fx.fs, failed))
}

func TestRetrieveHonoursCancellation(t *testing.T) {
	fx := newImporterFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := fx.importer.Retrieve(ctx, []model.Filing{{DocID: "S1"}})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, stats.Completed+stats.Failed+stats.Skipped)
}

func TestPlanResolvesWithoutSideEffects(t *testing.T) {
	fx := newImporterFixture(t)
	filings := []model.Filing{
		{DocID: "S1", EdinetCode: strPtr("E1"), DocTypeCode: strPtr("160"), SubmitDateTime: "2024-09-30 09:00", XBRLFlag: true, PDFFlag: true},
		{DocID: "S2", EdinetCode: strPtr("E2"), DocTypeCode: strPtr("999"), SubmitDateTime: "2024-09-30 09:00"},
	}

	plans := fx.importer.Plan(filings)
	require.Len(t, plans, 2)
	assert.Equal(t, filepath.Join("xbrl-files", "E1", "2024-09-30_S1_半期報告書"), plans[0].Folder)
	assert.Len(t, plans[0].Requests, 2)
	assert.True(t, errors.Is(plans[1].Err, ErrUnknownCategory))

	exists, err := afero.DirExists(fx.fs, "xbrl-files")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, fx.registry.fetched())
}
