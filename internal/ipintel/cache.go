package ipintel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	lru "github.com/hashicorp/golang-lru"
	"github.com/solatis/tidegate/internal/types"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_\-.]`)

// FileCache stores one pretty-printed JSON document per IP in a directory.
// Writes go through a temp file and rename, so readers never see a torn record.
type FileCache struct {
	dir string
}

// NewFileCache creates the directory if needed.
func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ip cache dir: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(ip string) string {
	return filepath.Join(c.dir, unsafeFileChars.ReplaceAllString(ip, "_")+".json")
}

// Get reads the record for ip. Unreadable or undecodable files are misses.
func (c *FileCache) Get(ctx context.Context, ip string) (Record, error) {
	data, err := os.ReadFile(c.path(ip))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, types.ErrCacheMiss
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, types.ErrCacheMiss
	}
	return rec, nil
}

// Put writes the record for ip.
func (c *FileCache) Put(ctx context.Context, ip string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, ".ip-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path(ip))
}

// MemoryCache is an in-process LRU cache. Evicted IPs are looked up again.
type MemoryCache struct {
	entries *lru.Cache
}

// NewMemoryCache creates a cache holding at most size records.
func NewMemoryCache(size int) (*MemoryCache, error) {
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{entries: entries}, nil
}

// Get returns the cached record for ip.
func (c *MemoryCache) Get(ctx context.Context, ip string) (Record, error) {
	if v, ok := c.entries.Get(ip); ok {
		return v.(Record), nil
	}
	return Record{}, types.ErrCacheMiss
}

// Put stores the record for ip.
func (c *MemoryCache) Put(ctx context.Context, ip string, rec Record) error {
	c.entries.Add(ip, rec)
	return nil
}
