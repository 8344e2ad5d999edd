package analytics

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Stream names for the raw analytics data the engine reads.
// The CRM's tracking pipeline writes these; this service only reads them.
const (
	PerfSampleStream = "crm_perf_samples"
	EventStream      = "crm_events"
	ErrorStream      = "crm_errors"
	SessionStream    = "crm_sessions"
)

// GetPerfSampleSchema returns the schema for the performance sample stream
func GetPerfSampleSchema() []Column {
	return []Column{
		{Name: "session_id", Type: "string"},
		{Name: "metric", Type: "string"},
		{Name: "value", Type: "float64", Nullable: true},
		{Name: "page", Type: "string"},
	}
}

// GetEventSchema returns the schema for the product event stream
func GetEventSchema() []Column {
	return []Column{
		{Name: "session_id", Type: "string"},
		{Name: "event_type", Type: "string"},
		{Name: "page", Type: "string"},
	}
}

// GetErrorSchema returns the schema for the error stream
func GetErrorSchema() []Column {
	return []Column{
		{Name: "session_id", Type: "string"},
		{Name: "message", Type: "string"},
		{Name: "source", Type: "string"},
	}
}

// GetSessionSchema returns the schema for the session stream.
// ended_at is null while the session is still in progress.
func GetSessionSchema() []Column {
	return []Column{
		{Name: "session_id", Type: "string"},
		{Name: "user_id", Type: "string"},
		{Name: "started_at", Type: "datetime64(3)"},
		{Name: "ended_at", Type: "datetime64(3)", Nullable: true},
	}
}

// SetupStreams ensures all analytics streams exist. Intended for local
// development; in production the tracking pipeline owns these streams.
func SetupStreams(ctx context.Context, client Client) error {
	streams := []struct {
		name   string
		schema []Column
	}{
		{PerfSampleStream, GetPerfSampleSchema()},
		{EventStream, GetEventSchema()},
		{ErrorStream, GetErrorSchema()},
		{SessionStream, GetSessionSchema()},
	}

	for _, s := range streams {
		exists, err := client.StreamExists(ctx, s.name)
		if err != nil {
			return fmt.Errorf("failed to check stream %s: %w", s.name, err)
		}
		if exists {
			continue
		}
		logrus.Infof("Creating analytics stream: %s", s.name)
		if err := client.CreateStream(ctx, s.name, s.schema); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", s.name, err)
		}
	}
	return nil
}
