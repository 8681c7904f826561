package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/jjenkins/edinet/internal/config"
	"github.com/jjenkins/edinet/internal/model"
)

// Catalogue records what the pipeline discovered and retrieved
type Catalogue interface {
	SaveDiscovered(ctx context.Context, runID string, filings []model.Filing) error
	SaveRetrieval(ctx context.Context, runID string, f model.Filing, folder string, status model.FilingStatus, reason string, artifacts []model.ArtifactRecord) error
}

// DiscoverStats tracks discovery statistics
type DiscoverStats struct {
	From       time.Time
	To         time.Time
	Days       int
	Listed     int
	Duplicates int
	Retained   int
	Manifest   string
}

// RetrieveStats tracks retrieval statistics
type RetrieveStats struct {
	Total     int
	Completed int
	Skipped   int
	Failed    int
	Artifacts int
	Bytes     int64
}

// PlannedFiling is the dry-run view of one manifest entry
type PlannedFiling struct {
	Filing   model.Filing
	Folder   string
	Requests []ArtifactRequest
	Err      error
}

// Importer orchestrates the discovery and retrieval phases
type Importer struct {
	scanner      *Scanner
	filter       Filter
	downloader   *Downloader
	layout       *Layout
	fs           afero.Fs
	manifestPath string
	catalogue    Catalogue
	metrics      *Metrics
	runID        string
	logger       *slog.Logger
	out          io.Writer
}

// NewImporter creates a new Importer. A nil filter means DefaultFilter.
func NewImporter(scanner *Scanner, filter Filter, downloader *Downloader, fs afero.Fs, manifestPath string, metrics *Metrics, logger *slog.Logger) *Importer {
	if filter == nil {
		filter = DefaultFilter
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	runID := uuid.NewString()
	return &Importer{
		scanner:      scanner,
		filter:       filter,
		downloader:   downloader,
		layout:       downloader.layout,
		fs:           fs,
		manifestPath: manifestPath,
		metrics:      metrics,
		runID:        runID,
		logger:       logger.With(slog.String("run_id", runID)),
		out:          os.Stdout,
	}
}

// WithCatalogue records every filing in c
func (i *Importer) WithCatalogue(c Catalogue) *Importer {
	i.catalogue = c
	return i
}

// WithOutput redirects the printed summaries
func (i *Importer) WithOutput(w io.Writer) *Importer {
	i.out = w
	return i
}

// RunID identifies this process in logs and the catalogue
func (i *Importer) RunID() string {
	return i.runID
}

// Discover lists every day in [from, to], filters the result and writes the
// manifest. A failed day aborts discovery and nothing is written.
func (i *Importer) Discover(ctx context.Context, from, to time.Time) (*DiscoverStats, []model.Filing, error) {
	i.logger.Info("discovering filings",
		slog.String("from", from.Format(config.DateLayout)),
		slog.String("to", to.Format(config.DateLayout)))

	scan, err := i.scanner.Scan(ctx, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan registry: %w", err)
	}

	retained := i.filter.Apply(scan.Filings)
	i.metrics.FilingsRetained.Add(float64(len(retained)))

	if err := WriteManifest(i.fs, i.manifestPath, retained); err != nil {
		return nil, nil, err
	}

	if i.catalogue != nil {
		if err := i.catalogue.SaveDiscovered(ctx, i.runID, retained); err != nil {
			i.logger.Warn("failed to catalogue discovered filings", slog.Any("error", err))
		}
	}

	stats := &DiscoverStats{
		From:       startOfDay(from),
		To:         startOfDay(to),
		Days:       scan.Days,
		Listed:     scan.Listed,
		Duplicates: scan.Duplicates,
		Retained:   len(retained),
		Manifest:   i.manifestPath,
	}
	return stats, retained, nil
}

// Retrieve processes filings one after another. Within a filing all writes
// run concurrently. Filings that cannot be placed are skipped with a warning;
// filings with a failed write are counted as failed and the run moves on.
func (i *Importer) Retrieve(ctx context.Context, filings []model.Filing) (*RetrieveStats, error) {
	stats := &RetrieveStats{Total: len(filings)}

	for idx, f := range filings {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		progress := fmt.Sprintf("[%d/%d]", idx+1, stats.Total)
		log := i.logger.With(slog.String("doc_id", f.DocID), slog.String("edinet_code", f.FilerCode()))

		folder, err := i.layout.FolderFor(f)
		if err != nil && IsSkippable(err) {
			log.Warn(progress+" skipping filing", slog.String("doc_type", f.DocType()), slog.Any("reason", err))
			stats.Skipped++
			i.metrics.FilingsProcessed.WithLabelValues(string(model.StatusSkipped)).Inc()
			i.record(ctx, f, "", model.StatusSkipped, err, nil)
			continue
		}
		if err != nil {
			log.Error(progress+" failed to place filing", slog.Any("error", err))
			stats.Failed++
			i.metrics.FilingsProcessed.WithLabelValues(string(model.StatusFailed)).Inc()
			i.record(ctx, f, "", model.StatusFailed, err, nil)
			continue
		}

		if err := i.layout.Prepare(i.fs, folder); err != nil {
			log.Error(progress+" failed to prepare folder", slog.Any("error", err))
			stats.Failed++
			i.metrics.FilingsProcessed.WithLabelValues(string(model.StatusFailed)).Inc()
			i.record(ctx, f, folder, model.StatusFailed, err, nil)
			continue
		}

		log.Info(progress+" retrieving filing", slog.String("folder", folder))

		res, err := i.downloader.Retrieve(ctx, f, folder)
		stats.Artifacts += res.Downloaded()
		stats.Bytes += res.Bytes()
		if err != nil {
			log.Error(progress+" filing incomplete", slog.Any("error", err))
			stats.Failed++
			i.metrics.FilingsProcessed.WithLabelValues(string(model.StatusFailed)).Inc()
			i.record(ctx, f, folder, model.StatusFailed, err, res.Artifacts)
			continue
		}

		stats.Completed++
		i.metrics.FilingsProcessed.WithLabelValues(string(model.StatusCompleted)).Inc()
		i.record(ctx, f, folder, model.StatusCompleted, nil, res.Artifacts)
	}

	return stats, nil
}

// Plan resolves folders and artifact requests without touching the network
// or the filesystem.
func (i *Importer) Plan(filings []model.Filing) []PlannedFiling {
	plans := make([]PlannedFiling, 0, len(filings))
	for _, f := range filings {
		p := PlannedFiling{Filing: f}
		p.Folder, p.Err = i.layout.FolderFor(f)
		if p.Err == nil {
			p.Requests = i.downloader.Classify(f, p.Folder)
		}
		plans = append(plans, p)
	}
	return plans
}

func (i *Importer) record(ctx context.Context, f model.Filing, folder string, status model.FilingStatus, cause error, results []ArtifactResult) {
	if i.catalogue == nil {
		return
	}

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}

	records := make([]model.ArtifactRecord, 0, len(results))
	for _, r := range results {
		if r.Path == "" {
			continue
		}
		rec := model.ArtifactRecord{
			DocID:     r.DocID,
			Kind:      r.Kind,
			Path:      r.Path,
			Size:      r.Size,
			SHA256:    r.SHA256,
			FetchedAt: time.Now(),
		}
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		records = append(records, rec)
	}

	if err := i.catalogue.SaveRetrieval(ctx, i.runID, f, folder, status, reason, records); err != nil {
		i.logger.Warn("failed to catalogue filing", slog.String("doc_id", f.DocID), slog.Any("error", err))
	}
}

// PrintDiscoverSummary prints the discovery statistics
func (i *Importer) PrintDiscoverSummary(stats *DiscoverStats) {
	fmt.Fprintln(i.out, "")
	fmt.Fprintln(i.out, "=== Discovery Summary ===")
	fmt.Fprintf(i.out, "Range:           %s .. %s\n", stats.From.Format(config.DateLayout), stats.To.Format(config.DateLayout))
	fmt.Fprintf(i.out, "Days scanned:    %d\n", stats.Days)
	fmt.Fprintf(i.out, "Listed:          %d\n", stats.Listed)
	if stats.Duplicates > 0 {
		fmt.Fprintf(i.out, "Duplicates:      %d\n", stats.Duplicates)
	}
	fmt.Fprintf(i.out, "Retained:        %d\n", stats.Retained)
	fmt.Fprintf(i.out, "Manifest:        %s\n", stats.Manifest)
}

// PrintRetrieveSummary prints the retrieval statistics
func (i *Importer) PrintRetrieveSummary(stats *RetrieveStats) {
	fmt.Fprintln(i.out, "")
	fmt.Fprintln(i.out, "=== Retrieval Summary ===")
	fmt.Fprintf(i.out, "Total filings:   %d\n", stats.Total)
	fmt.Fprintf(i.out, "Completed:       %d\n", stats.Completed)
	fmt.Fprintf(i.out, "Skipped:         %d (not placeable)\n", stats.Skipped)
	fmt.Fprintf(i.out, "Failed:          %d\n", stats.Failed)
	fmt.Fprintf(i.out, "Artifacts:       %d (%.1f MiB)\n", stats.Artifacts, float64(stats.Bytes)/(1<<20))

	if attempted := stats.Total - stats.Skipped; attempted > 0 {
		successRate := float64(stats.Completed) / float64(attempted) * 100
		fmt.Fprintf(i.out, "Success rate:    %.1f%%\n", successRate)
	}
}
