// internal/rules/source.go
package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source loads raw rule records. Sources never cache: every Load reflects
// the store's current content.
type Source interface {
	Load(ctx context.Context) ([]json.RawMessage, error)
}

// FileSource reads a rules file. JSON files hold a list of rule objects (a
// top-level object keyed by rule id is read as its values in order); .yaml
// and .yml files hold the same structure in YAML.
type FileSource struct {
	path string
}

// NewFileSource creates a source for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load reads and splits the file. A missing file holds no rules.
func (s *FileSource) Load(ctx context.Context) ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		return splitYAML(data)
	default:
		return SplitRecords(data)
	}
}

// SplitRecords splits a JSON list (or id-keyed object) into raw entries.
// Entries are not validated here; Normalize drops non-objects.
func SplitRecords(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	switch data[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse rules: %w", err)
		}
		return list, nil
	case '{':
		dec := json.NewDecoder(bytes.NewReader(data))
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("failed to parse rules: %w", err)
		}
		var out []json.RawMessage
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("failed to parse rules: %w", err)
			}
			var entry json.RawMessage
			if err := dec.Decode(&entry); err != nil {
				return nil, fmt.Errorf("failed to parse rules: %w", err)
			}
			out = append(out, entry)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("failed to parse rules: top level must be a list")
	}
}

func splitYAML(data []byte) ([]json.RawMessage, error) {
	var list []any
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	out := make([]json.RawMessage, 0, len(list))
	for _, entry := range list {
		raw, err := json.Marshal(entry)
		if err != nil {
			// Non-string mapping keys cannot be represented; treat as malformed.
			raw = json.RawMessage("null")
		}
		out = append(out, raw)
	}
	return out, nil
}

// Queries defines the named queries the SQL source needs.
// Implemented by *db.Queries.
type Queries interface {
	SelectContext(ctx context.Context, name string, dest interface{}, args ...interface{}) error
}

// SQLSource reads rule documents from the rules table in position order.
type SQLSource struct {
	queries Queries
}

// NewSQLSource creates a source over loaded named queries.
func NewSQLSource(queries Queries) *SQLSource {
	return &SQLSource{queries: queries}
}

// Load returns every stored rule document.
func (s *SQLSource) Load(ctx context.Context) ([]json.RawMessage, error) {
	var docs []string
	if err := s.queries.SelectContext(ctx, "list-rules", &docs); err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	out := make([]json.RawMessage, 0, len(docs))
	for _, doc := range docs {
		out = append(out, json.RawMessage(doc))
	}
	return out, nil
}
