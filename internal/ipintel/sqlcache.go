package ipintel

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/solatis/tidegate/internal/types"
)

// Queries defines the named queries the SQL cache needs.
// Implemented by *db.Queries.
type Queries interface {
	GetContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error
	ExecContext(ctx context.Context, name string, args ...interface{}) (sql.Result, error)
}

// SQLCache stores records in the ip_cache table (SQLite or PostgreSQL).
type SQLCache struct {
	queries Queries
}

// NewSQLCache creates a cache over loaded named queries.
func NewSQLCache(queries Queries) *SQLCache {
	return &SQLCache{queries: queries}
}

// Get returns the cached record for ip.
func (c *SQLCache) Get(ctx context.Context, ip string) (Record, error) {
	var doc string
	err := c.queries.GetContext(ctx, "get-ip-record", &doc, ip)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, types.ErrCacheMiss
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return Record{}, types.ErrCacheMiss
	}
	return rec, nil
}

// Put upserts the record for ip.
func (c *SQLCache) Put(ctx context.Context, ip string, rec Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = c.queries.ExecContext(ctx, "upsert-ip-record", ip, string(doc), rec.Status, time.Now().UTC().Format(time.RFC3339))
	return err
}
