package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoData signals a metric window with zero eligible samples. This is an
// expected outcome, distinct from a query failure, and callers skip the
// metric silently.
var ErrNoData = errors.New("no data in window")

// MetricSource supplies a single aggregated scalar for a named metric over
// a time window.
type MetricSource interface {
	GetValue(ctx context.Context, metric string, windowStart, windowEnd time.Time) (float64, error)
}

// Aggregator computes one metric's aggregated value over a window.
type Aggregator func(ctx context.Context, client Client, windowStart, windowEnd time.Time) (float64, error)

// StoreSource is a MetricSource backed by the analytics store. Metrics are
// resolved through a per-metric aggregator registry, so adding a metric is
// a registration rather than a code change in the evaluation path.
type StoreSource struct {
	client Client

	mu          sync.RWMutex
	aggregators map[string]Aggregator
}

// NewStoreSource creates a StoreSource with the built-in CRM metrics registered
func NewStoreSource(client Client) *StoreSource {
	s := &StoreSource{
		client:      client,
		aggregators: make(map[string]Aggregator),
	}

	for _, metric := range []string{"largest_contentful_paint", "first_input_delay", "cumulative_layout_shift"} {
		s.RegisterAggregator(metric, perfSampleMean(metric))
	}
	s.RegisterAggregator("error_rate", errorRate)
	s.RegisterAggregator("avg_session_duration", avgSessionDuration)

	return s
}

// RegisterAggregator registers or replaces the aggregator for a metric name
func (s *StoreSource) RegisterAggregator(metric string, fn Aggregator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregators[metric] = fn
}

// GetValue computes the aggregated value for metric over [windowStart, windowEnd)
func (s *StoreSource) GetValue(ctx context.Context, metric string, windowStart, windowEnd time.Time) (float64, error) {
	s.mu.RLock()
	fn, ok := s.aggregators[metric]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("no aggregator registered for metric %q", metric)
	}
	return fn(ctx, s.client, windowStart, windowEnd)
}

// perfSampleMean aggregates a performance metric as the arithmetic mean of
// all non-null samples in the window.
func perfSampleMean(metric string) Aggregator {
	return func(ctx context.Context, client Client, windowStart, windowEnd time.Time) (float64, error) {
		query := fmt.Sprintf(`
			SELECT avg(value) AS avg_value, count(value) AS sample_count
			FROM table(%s)
			WHERE metric = '%s' AND value IS NOT NULL
			  AND _tp_time >= '%s' AND _tp_time < '%s'
		`, PerfSampleStream, metric, formatWindowTime(windowStart), formatWindowTime(windowEnd))

		results, err := client.ExecuteQuery(ctx, query)
		if err != nil {
			return 0, fmt.Errorf("failed to query %s samples: %w", metric, err)
		}
		if len(results) == 0 {
			return 0, ErrNoData
		}

		count, _ := asInt(results[0]["sample_count"])
		if count == 0 {
			return 0, ErrNoData
		}
		value, ok := asFloat(results[0]["avg_value"])
		if !ok {
			return 0, fmt.Errorf("unexpected avg_value type %T for metric %s", results[0]["avg_value"], metric)
		}
		return value, nil
	}
}

// errorRate computes count(errors) / max(count(events), 1) * 100. The
// denominator floor keeps the rate at 0 when no events were recorded
// instead of dividing by zero.
func errorRate(ctx context.Context, client Client, windowStart, windowEnd time.Time) (float64, error) {
	errorCount, err := countInWindow(ctx, client, ErrorStream, windowStart, windowEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to count errors: %w", err)
	}
	eventCount, err := countInWindow(ctx, client, EventStream, windowStart, windowEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}

	denominator := eventCount
	if denominator < 1 {
		denominator = 1
	}
	return float64(errorCount) / float64(denominator) * 100, nil
}

// avgSessionDuration averages (ended_at - started_at) in milliseconds over
// sessions in the window that have ended. In-progress sessions are excluded.
func avgSessionDuration(ctx context.Context, client Client, windowStart, windowEnd time.Time) (float64, error) {
	query := fmt.Sprintf(`
		SELECT avg(date_diff('millisecond', started_at, ended_at)) AS avg_duration_ms,
		       count() AS session_count
		FROM table(%s)
		WHERE ended_at IS NOT NULL
		  AND _tp_time >= '%s' AND _tp_time < '%s'
	`, SessionStream, formatWindowTime(windowStart), formatWindowTime(windowEnd))

	results, err := client.ExecuteQuery(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to query session durations: %w", err)
	}
	if len(results) == 0 {
		return 0, ErrNoData
	}

	count, _ := asInt(results[0]["session_count"])
	if count == 0 {
		return 0, ErrNoData
	}
	value, ok := asFloat(results[0]["avg_duration_ms"])
	if !ok {
		return 0, fmt.Errorf("unexpected avg_duration_ms type %T", results[0]["avg_duration_ms"])
	}
	return value, nil
}

func countInWindow(ctx context.Context, client Client, stream string, windowStart, windowEnd time.Time) (int64, error) {
	query := fmt.Sprintf(`
		SELECT count() AS total
		FROM table(%s)
		WHERE _tp_time >= '%s' AND _tp_time < '%s'
	`, stream, formatWindowTime(windowStart), formatWindowTime(windowEnd))

	results, err := client.ExecuteQuery(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	total, _ := asInt(results[0]["total"])
	return total, nil
}

func formatWindowTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000")
}

// asFloat coerces the numeric types the driver's reflect-based scan can
// produce (including nullable pointers) into a float64.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
