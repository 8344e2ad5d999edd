package analytics

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	proton "github.com/timeplus-io/proton-go-driver/v2"
	"github.com/timeplus-io/proton-go-driver/v2/lib/driver"

	"github.com/praxlaw/crm-alert-engine/pkg/config"
)

// Column represents a column definition
type Column struct {
	Name     string
	Type     string
	Nullable bool // Whether the column can be NULL
}

// ProtonClient is a wrapper around the Proton Go driver connection to the
// analytics store holding the CRM's raw event, error, session and
// performance-sample streams.
type ProtonClient struct {
	conn      driver.Conn
	workspace string
}

// NewClient creates a new analytics store client
func NewClient(cfg *config.AnalyticsConfig) (*ProtonClient, error) {
	logrus.Infof("Connecting to analytics store at %s (workspace: %s)", cfg.Address, cfg.Workspace)

	address := cfg.Address
	address = strings.TrimPrefix(address, "http://")
	address = strings.TrimPrefix(address, "https://")

	host := address
	port := "8464" // default native port
	if strings.Contains(address, ":") {
		parts := strings.Split(address, ":")
		host = parts[0]
		port = parts[1]
	}
	connectionAddr := host + ":" + port

	opts := &proton.Options{
		Addr: []string{connectionAddr},
		Auth: proton.Auth{
			Database: cfg.Workspace,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		Compression: &proton.Compression{
			Method: proton.CompressionLZ4,
		},
	}

	conn, err := proton.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to analytics store: %w", err)
	}

	// Test connection with retries
	var pingErr error
	for i := 0; i < 5; i++ {
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = conn.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			break
		}
		logrus.Warnf("Failed to ping analytics store (attempt %d/5): %v", i+1, pingErr)
		time.Sleep(2 * time.Second)
	}
	if pingErr != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping analytics store after multiple attempts: %w", pingErr)
	}

	logrus.Info("Successfully connected to analytics store")

	return &ProtonClient{
		conn:      conn,
		workspace: cfg.Workspace,
	}, nil
}

// ExecuteQuery executes a query and returns the result rows as maps keyed by column name
func (c *ProtonClient) ExecuteQuery(ctx context.Context, query string) ([]map[string]interface{}, error) {
	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnNames := rows.Columns()
	columnTypes := rows.ColumnTypes()

	result := make([]map[string]interface{}, 0)
	for rows.Next() {
		scanArgs := make([]interface{}, len(columnNames))
		for i, ct := range columnTypes {
			scanArgs[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]interface{})
		for i, name := range columnNames {
			rowMap[name] = reflect.ValueOf(scanArgs[i]).Elem().Interface()
		}
		result = append(result, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return result, nil
}

// ExecuteDDL executes a DDL statement (CREATE/DROP STREAM and friends)
func (c *ProtonClient) ExecuteDDL(ctx context.Context, query string) error {
	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to execute DDL: %w", err)
	}
	return nil
}

// InsertIntoStream inserts a single row into a stream
func (c *ProtonClient) InsertIntoStream(ctx context.Context, streamName string, columns []string, values []interface{}) error {
	if len(columns) != len(values) {
		return fmt.Errorf("column/value count mismatch: %d vs %d", len(columns), len(values))
	}

	formattedValues := make([]string, len(values))
	for i, val := range values {
		switch v := val.(type) {
		case nil:
			formattedValues[i] = "null"
		case string:
			formattedValues[i] = fmt.Sprintf("'%s'", strings.ReplaceAll(v, "'", "''"))
		case time.Time:
			formattedValues[i] = fmt.Sprintf("'%s'", v.UTC().Format("2006-01-02 15:04:05.000"))
		case bool:
			formattedValues[i] = fmt.Sprintf("%t", v)
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			formattedValues[i] = fmt.Sprintf("%d", v)
		case float32, float64:
			formattedValues[i] = fmt.Sprintf("%f", v)
		default:
			formattedValues[i] = fmt.Sprintf("'%v'", v)
		}
	}

	query := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
		streamName, strings.Join(columns, ", "), strings.Join(formattedValues, ", "))

	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to insert into stream '%s': %w", streamName, err)
	}
	return nil
}

// StreamExists checks if a stream exists
func (c *ProtonClient) StreamExists(ctx context.Context, name string) (bool, error) {
	escapedName := strings.ReplaceAll(name, "'", "''")
	query := fmt.Sprintf("SHOW STREAMS LIKE '%s'", escapedName)
	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return false, fmt.Errorf("failed to execute SHOW STREAMS: %w", err)
	}
	defer rows.Close()

	exists := rows.Next()
	if rows.Err() != nil {
		return false, fmt.Errorf("error checking rows from SHOW STREAMS: %w", rows.Err())
	}
	return exists, nil
}

// CreateStream creates a new stream with the given name and schema
func (c *ProtonClient) CreateStream(ctx context.Context, name string, schema []Column) error {
	schemaStr := ""
	if len(schema) > 0 {
		schemaFields := make([]string, len(schema))
		for i, col := range schema {
			if col.Nullable {
				schemaFields[i] = fmt.Sprintf("`%s` nullable(%s)", col.Name, col.Type)
			} else {
				schemaFields[i] = fmt.Sprintf("`%s` %s", col.Name, col.Type)
			}
		}
		schemaStr = "(" + strings.Join(schemaFields, ", ") + ")"
	}

	query := fmt.Sprintf("CREATE STREAM IF NOT EXISTS `%s` %s", name, schemaStr)
	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create stream '%s': %w", name, err)
	}
	return nil
}

// Ping verifies the connection is alive
func (c *ProtonClient) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close closes the underlying connection
func (c *ProtonClient) Close() error {
	return c.conn.Close()
}
