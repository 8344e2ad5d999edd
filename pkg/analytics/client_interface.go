package analytics

import (
	"context"
)

// Client defines the interface for the analytics store client.
// This allows us to mock the store for testing.
type Client interface {
	ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error)
	ExecuteDDL(ctx context.Context, query string) error
	InsertIntoStream(ctx context.Context, streamName string, columns []string, values []interface{}) error
	StreamExists(ctx context.Context, name string) (bool, error)
	CreateStream(ctx context.Context, name string, schema []Column) error
	Ping(ctx context.Context) error
	Close() error
}

// Ensure ProtonClient implements Client
var _ Client = (*ProtonClient)(nil)
