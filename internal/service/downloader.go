package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/jjenkins/edinet/internal/model"
)

const partialSuffix = ".part"

// Fetcher is the part of the registry client the downloader depends on
type Fetcher interface {
	FetchArtifact(ctx context.Context, docID string, kind model.ArtifactKind) (io.ReadCloser, error)
}

// ArtifactRequest is one artifact scheduled for a filing
type ArtifactRequest struct {
	DocID string
	Kind  model.ArtifactKind
	Path  string
}

// ArtifactResult describes what happened to one ArtifactRequest
type ArtifactResult struct {
	ArtifactRequest
	Size     int64
	SHA256   string
	Duration time.Duration
	Err      error
}

// FilingResult collects the outcome of every write made for one filing
type FilingResult struct {
	DocID        string
	Folder       string
	MetadataPath string
	Artifacts    []ArtifactResult
}

// Bytes is the total size of the artifacts that were written
func (r *FilingResult) Bytes() int64 {
	var total int64
	for _, a := range r.Artifacts {
		if a.Err == nil {
			total += a.Size
		}
	}
	return total
}

// Downloaded counts the artifacts that were written
func (r *FilingResult) Downloaded() int {
	n := 0
	for _, a := range r.Artifacts {
		if a.Err == nil {
			n++
		}
	}
	return n
}

// Downloader writes a filing's metadata snapshot and fetches its artifacts
type Downloader struct {
	fetcher Fetcher
	fs      afero.Fs
	layout  *Layout
	kinds   []model.ArtifactKind
	metrics *Metrics
	logger  *slog.Logger
}

// NewDownloader creates a Downloader tracking the given artifact kinds.
// With no kinds, model.DefaultArtifactKinds is used.
func NewDownloader(fetcher Fetcher, fs afero.Fs, layout *Layout, kinds []model.ArtifactKind, metrics *Metrics, logger *slog.Logger) *Downloader {
	if len(kinds) == 0 {
		kinds = model.DefaultArtifactKinds
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Downloader{
		fetcher: fetcher,
		fs:      fs,
		layout:  layout,
		kinds:   kinds,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "downloader")),
	}
}

// Classify lists the tracked artifacts the registry marks as available
func (d *Downloader) Classify(f model.Filing, folder string) []ArtifactRequest {
	var reqs []ArtifactRequest
	for _, kind := range d.kinds {
		if !f.Has(kind) {
			continue
		}
		reqs = append(reqs, ArtifactRequest{
			DocID: f.DocID,
			Kind:  kind,
			Path:  d.layout.ArtifactPath(folder, f.DocID, kind),
		})
	}
	return reqs
}

// Retrieve writes metadata.json and downloads every classified artifact into
// folder concurrently, then waits for all of them. The folder must exist.
// Writes that succeed are kept even when another one fails; the returned
// error is the first failure.
func (d *Downloader) Retrieve(ctx context.Context, f model.Filing, folder string) (*FilingResult, error) {
	reqs := d.Classify(f, folder)
	result := &FilingResult{
		DocID:        f.DocID,
		Folder:       folder,
		MetadataPath: d.layout.MetadataPath(folder),
		Artifacts:    make([]ArtifactResult, len(reqs)),
	}

	var g errgroup.Group

	g.Go(func() error {
		return d.writeMetadata(f, result.MetadataPath)
	})

	for i, req := range reqs {
		g.Go(func() error {
			res := d.download(ctx, req)
			result.Artifacts[i] = res
			return res.Err
		})
	}

	return result, g.Wait()
}

func (d *Downloader) writeMetadata(f model.Filing, path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata for %s: %w", f.DocID, err)
	}
	if err := afero.WriteFile(d.fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata for %s: %w", f.DocID, err)
	}
	return nil
}

// download streams one artifact to a temporary file and renames it into
// place once the body has been read completely.
func (d *Downloader) download(ctx context.Context, req ArtifactRequest) ArtifactResult {
	start := time.Now()
	res := ArtifactResult{ArtifactRequest: req}
	kind := req.Kind.String()

	fail := func(err error) ArtifactResult {
		res.Err = err
		res.Duration = time.Since(start)
		d.metrics.ArtifactFailures.WithLabelValues(kind).Inc()
		d.logger.Error("artifact download failed",
			slog.String("doc_id", req.DocID),
			slog.String("kind", kind),
			slog.Any("error", err))
		return res
	}

	body, err := d.fetcher.FetchArtifact(ctx, req.DocID, req.Kind)
	if err != nil {
		return fail(fmt.Errorf("failed to fetch %s for %s: %w", kind, req.DocID, err))
	}
	defer body.Close()

	tmp := req.Path + partialSuffix
	file, err := d.fs.Create(tmp)
	if err != nil {
		return fail(fmt.Errorf("failed to create %s: %w", tmp, err))
	}

	hasher := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(file, hasher), body)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = d.fs.Remove(tmp)
		return fail(fmt.Errorf("failed to write %s for %s: %w", kind, req.DocID, copyErr))
	}

	if err := d.fs.Rename(tmp, req.Path); err != nil {
		_ = d.fs.Remove(tmp)
		return fail(fmt.Errorf("failed to move %s into place: %w", req.Path, err))
	}

	res.Size = n
	res.SHA256 = hex.EncodeToString(hasher.Sum(nil))
	res.Duration = time.Since(start)

	d.metrics.ArtifactsDownloaded.WithLabelValues(kind).Inc()
	d.metrics.ArtifactBytes.WithLabelValues(kind).Add(float64(n))
	d.logger.Debug("artifact written",
		slog.String("doc_id", req.DocID),
		slog.String("kind", kind),
		slog.Int64("bytes", n),
		slog.Duration("took", res.Duration))

	return res
}
