package analytics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient is a mock implementation of the Client interface
type MockClient struct {
	mock.Mock
}

func (m *MockClient) ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]interface{}), args.Error(1)
}

func (m *MockClient) ExecuteDDL(ctx context.Context, query string) error {
	args := m.Called(ctx, query)
	return args.Error(0)
}

func (m *MockClient) InsertIntoStream(ctx context.Context, streamName string, columns []string, values []interface{}) error {
	args := m.Called(ctx, streamName, columns, values)
	return args.Error(0)
}

func (m *MockClient) StreamExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockClient) CreateStream(ctx context.Context, name string, schema []Column) error {
	args := m.Called(ctx, name, schema)
	return args.Error(0)
}

func (m *MockClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Ensure MockClient implements Client
var _ Client = (*MockClient)(nil)

func queryFor(stream string, fragments ...string) interface{} {
	return mock.MatchedBy(func(query string) bool {
		if !strings.Contains(query, "table("+stream+")") {
			return false
		}
		for _, fragment := range fragments {
			if !strings.Contains(query, fragment) {
				return false
			}
		}
		return true
	})
}

func testWindow() (time.Time, time.Time) {
	end := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	return end.Add(-time.Hour), end
}

func TestPerfSampleMean(t *testing.T) {
	client := new(MockClient)
	client.On("ExecuteQuery", mock.Anything, queryFor(PerfSampleStream, "metric = 'largest_contentful_paint'")).
		Return([]map[string]interface{}{
			{"avg_value": float64(4240), "sample_count": uint64(5)},
		}, nil)

	source := NewStoreSource(client)
	start, end := testWindow()
	value, err := source.GetValue(context.Background(), "largest_contentful_paint", start, end)

	require.NoError(t, err)
	assert.Equal(t, float64(4240), value)
	client.AssertExpectations(t)
}

func TestPerfSampleMeanWindowBounds(t *testing.T) {
	client := new(MockClient)
	client.On("ExecuteQuery", mock.Anything, queryFor(PerfSampleStream,
		"_tp_time >= '2025-03-14 09:00:00.000'",
		"_tp_time < '2025-03-14 10:00:00.000'")).
		Return([]map[string]interface{}{
			{"avg_value": float64(120), "sample_count": uint64(3)},
		}, nil)

	source := NewStoreSource(client)
	start, end := testWindow()
	_, err := source.GetValue(context.Background(), "first_input_delay", start, end)

	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestPerfSampleMeanNoSamples(t *testing.T) {
	client := new(MockClient)
	client.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return([]map[string]interface{}{
			{"avg_value": (*float64)(nil), "sample_count": uint64(0)},
		}, nil)

	source := NewStoreSource(client)
	start, end := testWindow()
	_, err := source.GetValue(context.Background(), "cumulative_layout_shift", start, end)

	assert.ErrorIs(t, err, ErrNoData)
}

func TestPerfSampleMeanEmptyResult(t *testing.T) {
	client := new(MockClient)
	client.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return([]map[string]interface{}{}, nil)

	source := NewStoreSource(client)
	start, end := testWindow()
	_, err := source.GetValue(context.Background(), "largest_contentful_paint", start, end)

	assert.ErrorIs(t, err, ErrNoData)
}

func TestPerfSampleMeanQueryFailure(t *testing.T) {
	client := new(MockClient)
	client.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	source := NewStoreSource(client)
	start, end := testWindow()
	_, err := source.GetValue(context.Background(), "largest_contentful_paint", start, end)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData, "a query failure must stay distinguishable from an empty window")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestErrorRate(t *testing.T) {
	client := new(MockClient)
	client.On("ExecuteQuery", mock.Anything, queryFor(ErrorStream)).
		Return([]map[string]interface{}{{"total": uint64(9)}}, nil)
	client.On("ExecuteQuery", mock.Anything, queryFor(EventStream)).
		Return([]map[string]interface{}{{"total": uint64(120)}}, nil)

	source := NewStoreSource(client)
	start, end := testWindow()
	value, err := source.GetValue(context.Background(), "error_rate", start, end)

	require.NoError(t, err)
	assert.InDelta(t, 7.5, value, 1e-9)
	client.AssertExpectations(t)
}

func TestErrorRateZeroTraffic(t *testing.T) {
	client := new(MockClient)
	client.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return([]map[string]interface{}{{"total": uint64(0)}}, nil)

	source := NewStoreSource(client)
	start, end := testWindow()
	value, err := source.GetValue(context.Background(), "error_rate", start, end)

	require.NoError(t, err, "zero traffic is a valid rate of 0, not a missing-data condition")
	assert.Equal(t, float64(0), value)
}

func TestErrorRateErrorsWithoutEvents(t *testing.T) {
	client := new(MockClient)
	client.On("ExecuteQuery", mock.Anything, queryFor(ErrorStream)).
		Return([]map[string]interface{}{{"total": uint64(4)}}, nil)
	client.On("ExecuteQuery", mock.Anything, queryFor(EventStream)).
		Return([]map[string]interface{}{{"total": uint64(0)}}, nil)

	source := NewStoreSource(client)
	start, end := testWindow()
	value, err := source.GetValue(context.Background(), "error_rate", start, end)

	require.NoError(t, err)
	assert.Equal(t, float64(400), value, "denominator is floored at 1")
}

func TestErrorRateQueryFailure(t *testing.T) {
	client := new(MockClient)
	client.On("ExecuteQuery", mock.Anything, queryFor(ErrorStream)).
		Return(nil, errors.New("stream missing"))

	source := NewStoreSource(client)
	start, end := testWindow()
	_, err := source.GetValue(context.Background(), "error_rate", start, end)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count errors")
}

func TestAvgSessionDuration(t *testing.T) {
	client := new(MockClient)
	client.On("ExecuteQuery", mock.Anything, queryFor(SessionStream, "ended_at IS NOT NULL")).
		Return([]map[string]interface{}{
			{"avg_duration_ms": float64(45000), "session_count": uint64(12)},
		}, nil)

	source := NewStoreSource(client)
	start, end := testWindow()
	value, err := source.GetValue(context.Background(), "avg_session_duration", start, end)

	require.NoError(t, err)
	assert.Equal(t, float64(45000), value)
	client.AssertExpectations(t)
}

func TestAvgSessionDurationNoCompletedSessions(t *testing.T) {
	client := new(MockClient)
	client.On("ExecuteQuery", mock.Anything, mock.Anything).
		Return([]map[string]interface{}{
			{"avg_duration_ms": (*float64)(nil), "session_count": uint64(0)},
		}, nil)

	source := NewStoreSource(client)
	start, end := testWindow()
	_, err := source.GetValue(context.Background(), "avg_session_duration", start, end)

	assert.ErrorIs(t, err, ErrNoData)
}

func TestUnregisteredMetric(t *testing.T) {
	source := NewStoreSource(new(MockClient))
	start, end := testWindow()
	_, err := source.GetValue(context.Background(), "cpu_load", start, end)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no aggregator registered")
}

func TestRegisterAggregatorOverride(t *testing.T) {
	source := NewStoreSource(new(MockClient))
	source.RegisterAggregator("error_rate", func(ctx context.Context, client Client, windowStart, windowEnd time.Time) (float64, error) {
		return 42, nil
	})

	start, end := testWindow()
	value, err := source.GetValue(context.Background(), "error_rate", start, end)

	require.NoError(t, err)
	assert.Equal(t, float64(42), value)
}
