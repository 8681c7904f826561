package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"path/filepath"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/edinet/internal/model"
)

func sampleFiling() model.Filing {
	return model.Filing{
		DocID:          "S100ABCD",
		EdinetCode:     strPtr("E01234"),
		FilerName:      strPtr("サンプル株式会社"),
		DocTypeCode:    strPtr("120"),
		SubmitDateTime: "2024-03-01 09:15",
		XBRLFlag:       true,
		PDFFlag:        false,
		CSVFlag:        true,
	}
}

func listDir(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	infos, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names
}

func newTestDownloader(t *testing.T, registry *fakeRegistry, fs afero.Fs, metrics *Metrics) *Downloader {
	t.Helper()
	return NewDownloader(newTestClient(t, registry), fs, NewLayout("out"), nil, metrics, discardLogger())
}

func TestClassifyFollowsFlags(t *testing.T) {
	d := NewDownloader(nil, afero.NewMemMapFs(), NewLayout("out"), nil, nil, discardLogger())
	f := sampleFiling()
	f.AttachDocFlag = true

	reqs := d.Classify(f, "folder")
	require.Len(t, reqs, 2)
	assert.Equal(t, model.ArtifactXBRL, reqs[0].Kind)
	assert.Equal(t, filepath.Join("folder", "S100ABCD_xbrl.zip"), reqs[0].Path)
	assert.Equal(t, model.ArtifactCSV, reqs[1].Kind)

	// attachments are only fetched when asked for
	withAttach := NewDownloader(nil, afero.NewMemMapFs(), NewLayout("out"),
		[]model.ArtifactKind{model.ArtifactXBRL, model.ArtifactAttachment}, nil, discardLogger())
	reqs = withAttach.Classify(f, "folder")
	require.Len(t, reqs, 2)
	assert.Equal(t, model.ArtifactAttachment, reqs[1].Kind)
}

func TestRetrieveWritesFlaggedArtifacts(t *testing.T) {
	registry := newFakeRegistry()
	registry.addArtifact("S100ABCD", model.ArtifactXBRL, "xbrl-bytes")
	registry.addArtifact("S100ABCD", model.ArtifactCSV, "csv-bytes")
	fs := afero.NewMemMapFs()
	metrics := NewMetrics(nil)
	d := newTestDownloader(t, registry, fs, metrics)

	folder := filepath.Join("out", "E01234", "2024-03-01_S100ABCD_有価証券報告書")
	require.NoError(t, fs.MkdirAll(folder, 0755))

	res, err := d.Retrieve(context.Background(), sampleFiling(), folder)
	require.NoError(t, err)

	assert.Equal(t, []string{"S100ABCD_csv.zip", "S100ABCD_xbrl.zip", "metadata.json"}, listDir(t, fs, folder))
	assert.Equal(t, 2, res.Downloaded())
	assert.Equal(t, int64(len("xbrl-bytes")+len("csv-bytes")), res.Bytes())

	data, err := afero.ReadFile(fs, filepath.Join(folder, "S100ABCD_xbrl.zip"))
	require.NoError(t, err)
	assert.Equal(t, "xbrl-bytes", string(data))

	sum := sha256.Sum256([]byte("xbrl-bytes"))
	assert.Equal(t, hex.EncodeToString(sum[:]), res.Artifacts[0].SHA256)

	var meta model.Filing
	raw, err := afero.ReadFile(fs, filepath.Join(folder, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, sampleFiling(), meta)

	assert.ElementsMatch(t, []string{"S100ABCD:xbrl", "S100ABCD:csv"}, registry.fetched())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ArtifactsDownloaded.WithLabelValues("csv")))
	assert.Equal(t, float64(len("xbrl-bytes")), testutil.ToFloat64(metrics.ArtifactBytes.WithLabelValues("xbrl")))
}

func TestRetrieveKeepsSiblingsOnFailure(t *testing.T) {
	registry := newFakeRegistry()
	registry.addArtifact("S100ABCD", model.ArtifactXBRL, "xbrl-bytes")
	registry.failKinds[int(model.ArtifactCSV)] = http.StatusServiceUnavailable
	fs := afero.NewMemMapFs()
	metrics := NewMetrics(nil)
	d := newTestDownloader(t, registry, fs, metrics)

	folder := filepath.Join("out", "E01234", "2024-03-01_S100ABCD_有価証券報告書")
	require.NoError(t, fs.MkdirAll(folder, 0755))

	res, err := d.Retrieve(context.Background(), sampleFiling(), folder)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv")

	// nothing is rolled back and no partial file is left behind
	assert.Equal(t, []string{"S100ABCD_xbrl.zip", "metadata.json"}, listDir(t, fs, folder))
	assert.Equal(t, 1, res.Downloaded())
	assert.Error(t, res.Artifacts[1].Err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ArtifactFailures.WithLabelValues("csv")))
}

func TestRetrieveWithoutArtifacts(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := newTestDownloader(t, newFakeRegistry(), fs, nil)

	f := sampleFiling()
	f.XBRLFlag, f.CSVFlag = false, false
	require.NoError(t, fs.MkdirAll("folder", 0755))

	res, err := d.Retrieve(context.Background(), f, "folder")
	require.NoError(t, err)
	assert.Empty(t, res.Artifacts)
	assert.Equal(t, []string{"metadata.json"}, listDir(t, fs, "folder"))
}

func TestMetadataSnapshotMatchesRegistryRecord(t *testing.T) {
	var listing model.Listing
	require.NoError(t, json.Unmarshal([]byte(sparseListing), &listing))
	want := registryResults(t)

	fs := afero.NewMemMapFs()
	d := newTestDownloader(t, newFakeRegistry(), fs, nil)

	for i, f := range listing.Results {
		f.XBRLFlag, f.PDFFlag, f.CSVFlag = false, false, false
		folder := f.DocID
		require.NoError(t, fs.MkdirAll(folder, 0755))
		_, err := d.Retrieve(context.Background(), f, folder)
		require.NoError(t, err)

		data, err := afero.ReadFile(fs, filepath.Join(folder, "metadata.json"))
		require.NoError(t, err)
		var got map[string]any
		require.NoError(t, json.Unmarshal(data, &got))

		// flags were cleared above so nothing is fetched
		want[i]["xbrlFlag"], want[i]["pdfFlag"], want[i]["csvFlag"] = "0", "0", "0"
		assert.Equal(t, want[i], got, f.DocID)
	}
}
