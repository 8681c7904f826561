package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/jjenkins/edinet/internal/config"
	"github.com/jjenkins/edinet/internal/model"
)

// ErrInvalidRange is returned when the scan end precedes its start
var ErrInvalidRange = errors.New("end date is before start date")

// Lister is the part of the registry client the scanner depends on
type Lister interface {
	ListDay(ctx context.Context, date time.Time, detail ListingDetail) (*model.Listing, error)
}

// ScanResult holds every filing listed over a date range, in discovery order
type ScanResult struct {
	Days       int
	Listed     int
	Duplicates int
	Filings    []model.Filing
}

// Scanner walks a closed date range one day at a time
type Scanner struct {
	lister  Lister
	limit   rate.Limit
	metrics *Metrics
	logger  *slog.Logger

	// OnDay, when set, is called after each day's listing arrives
	OnDay func(day time.Time, count int)
}

// NewScanner creates a Scanner that waits delay after each listing response
// before issuing the next request
func NewScanner(lister Lister, delay time.Duration, metrics *Metrics, logger *slog.Logger) *Scanner {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Scanner{
		lister:  lister,
		limit:   limit,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "scanner")),
	}
}

// Scan issues one listing request per calendar day in [from, to], ascending.
// Any failed day aborts the whole scan.
func (s *Scanner) Scan(ctx context.Context, from, to time.Time) (*ScanResult, error) {
	from, to = startOfDay(from), startOfDay(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			from.Format(config.DateLayout), to.Format(config.DateLayout))
	}

	result := &ScanResult{}
	seen := make(map[string]struct{})

	var pause *rate.Limiter
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if pause != nil {
			if err := pause.Wait(ctx); err != nil {
				return nil, err
			}
		}

		listing, err := s.lister.ListDay(ctx, day, ListingWithResults)
		pause = s.spentLimiter()
		s.metrics.observeListing(err)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", day.Format(config.DateLayout), err)
		}

		if !listing.Consistent() {
			s.logger.Warn("listing count does not match results",
				slog.String("date", day.Format(config.DateLayout)),
				slog.Int("count", listing.Metadata.ResultSet.Count),
				slog.Int("results", len(listing.Results)))
		}

		for _, f := range listing.Results {
			if _, dup := seen[f.DocID]; dup {
				result.Duplicates++
				s.logger.Warn("duplicate document id in listing",
					slog.String("doc_id", f.DocID),
					slog.String("date", day.Format(config.DateLayout)))
				continue
			}
			seen[f.DocID] = struct{}{}
			result.Filings = append(result.Filings, f)
		}

		result.Days++
		result.Listed += len(listing.Results)
		s.metrics.FilingsDiscovered.Add(float64(len(listing.Results)))

		if s.OnDay != nil {
			s.OnDay(day, len(listing.Results))
		}
	}

	return result, nil
}

// spentLimiter returns a limiter whose only token is already used, so Wait
// blocks for one full interval from now.
func (s *Scanner) spentLimiter() *rate.Limiter {
	l := rate.NewLimiter(s.limit, 1)
	l.Allow()
	return l
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
