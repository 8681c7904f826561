package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/edinet/internal/model"
)

func TestScanOneRequestPerDayAscending(t *testing.T) {
	registry := newFakeRegistry()
	registry.listings["2024-02-28"] = []model.Filing{{DocID: "S1"}}
	registry.listings["2024-03-01"] = []model.Filing{{DocID: "S2"}, {DocID: "S3"}}
	metrics := NewMetrics(nil)

	var seen []string
	scanner := NewScanner(newTestClient(t, registry), 0, metrics, discardLogger())
	scanner.OnDay = func(day time.Time, count int) {
		seen = append(seen, day.Format("2006-01-02"))
	}

	result, err := scanner.Scan(context.Background(), day("2024-02-28"), day("2024-03-01"))
	require.NoError(t, err)

	// 2024 is a leap year
	want := []string{"2024-02-28", "2024-02-29", "2024-03-01"}
	assert.Equal(t, want, registry.requestedDates())
	assert.Equal(t, want, seen)

	assert.Equal(t, 3, result.Days)
	assert.Equal(t, 3, result.Listed)
	require.Len(t, result.Filings, 3)
	assert.Equal(t, []string{"S1", "S2", "S3"}, []string{result.Filings[0].DocID, result.Filings[1].DocID, result.Filings[2].DocID})

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.ListingRequests.WithLabelValues("ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.FilingsDiscovered))
}

func TestScanSingleDay(t *testing.T) {
	registry := newFakeRegistry()
	scanner := NewScanner(newTestClient(t, registry), 0, nil, discardLogger())

	result, err := scanner.Scan(context.Background(), day("2024-03-01"), day("2024-03-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Days)
	assert.Empty(t, result.Filings)
	assert.Equal(t, []string{"2024-03-01"}, registry.requestedDates())
}

func TestScanInvalidRange(t *testing.T) {
	registry := newFakeRegistry()
	scanner := NewScanner(newTestClient(t, registry), 0, nil, discardLogger())

	_, err := scanner.Scan(context.Background(), day("2024-03-02"), day("2024-03-01"))
	assert.True(t, errors.Is(err, ErrInvalidRange))
	assert.Empty(t, registry.requestedDates())
}

func TestScanAbortsOnFailedDay(t *testing.T) {
	registry := newFakeRegistry()
	registry.failDays["2024-03-02"] = http.StatusInternalServerError
	metrics := NewMetrics(nil)
	scanner := NewScanner(newTestClient(t, registry), 0, metrics, discardLogger())

	_, err := scanner.Scan(context.Background(), day("2024-03-01"), day("2024-03-05"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2024-03-02")

	var te *TransportError
	assert.True(t, errors.As(err, &te))

	// nothing after the failed day is requested
	assert.Equal(t, []string{"2024-03-01", "2024-03-02"}, registry.requestedDates())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ListingRequests.WithLabelValues("error")))
}

func TestScanDropsRepeatedDocIDs(t *testing.T) {
	registry := newFakeRegistry()
	registry.listings["2024-03-01"] = []model.Filing{{DocID: "S1", FilerName: strPtr("first")}}
	registry.listings["2024-03-02"] = []model.Filing{{DocID: "S1", FilerName: strPtr("second")}, {DocID: "S2"}}
	scanner := NewScanner(newTestClient(t, registry), 0, nil, discardLogger())

	result, err := scanner.Scan(context.Background(), day("2024-03-01"), day("2024-03-02"))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Listed)
	assert.Equal(t, 1, result.Duplicates)
	require.Len(t, result.Filings, 2)
	assert.Equal(t, "first", result.Filings[0].Filer())
}

func TestScanPacesRequests(t *testing.T) {
	registry := newFakeRegistry()
	scanner := NewScanner(newTestClient(t, registry), 20*time.Millisecond, nil, discardLogger())

	start := time.Now()
	_, err := scanner.Scan(context.Background(), day("2024-03-01"), day("2024-03-03"))
	require.NoError(t, err)

	// the first request goes out at once, the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

type slowLister struct {
	took   time.Duration
	starts []time.Time
	ends   []time.Time
}

func (l *slowLister) ListDay(_ context.Context, _ time.Time, _ ListingDetail) (*model.Listing, error) {
	l.starts = append(l.starts, time.Now())
	time.Sleep(l.took)
	l.ends = append(l.ends, time.Now())
	return &model.Listing{}, nil
}

func TestScanDelayFollowsSlowResponses(t *testing.T) {
	delay := 20 * time.Millisecond
	lister := &slowLister{took: 3 * delay}
	scanner := NewScanner(lister, delay, nil, discardLogger())

	_, err := scanner.Scan(context.Background(), day("2024-03-01"), day("2024-03-03"))
	require.NoError(t, err)

	require.Len(t, lister.starts, 3)
	for i := 1; i < len(lister.starts); i++ {
		assert.GreaterOrEqual(t, lister.starts[i].Sub(lister.ends[i-1]), delay-time.Millisecond)
	}
}

func TestScanStopsOnCancel(t *testing.T) {
	registry := newFakeRegistry()
	scanner := NewScanner(newTestClient(t, registry), time.Hour, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	scanner.OnDay = func(time.Time, int) { cancel() }

	_, err := scanner.Scan(ctx, day("2024-03-01"), day("2024-03-10"))
	require.Error(t, err)
	assert.Equal(t, []string{"2024-03-01"}, registry.requestedDates())
}
