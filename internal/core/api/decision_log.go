package api

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/solatis/tidegate/internal/types"
)

// DecisionLogEntry is one line of the decision log.
type DecisionLogEntry struct {
	Time       time.Time        `json:"time"`
	DecisionID types.DecisionID `json:"decisionId"`
	SiteID     string           `json:"siteId,omitempty"`
	SessionID  string           `json:"sid,omitempty"`
	Privileged bool             `json:"privileged"`
	RemoteIP   string           `json:"remoteIp"`
	Country    string           `json:"country"`
	Method     string           `json:"method"`
	Path       string           `json:"path"`
	UserAgent  string           `json:"userAgent,omitempty"`
	Evaluated  int              `json:"evaluated"`
	MatchedID  *types.RuleID    `json:"matchedRuleId"`
	ActionType types.ActionType `json:"actionType,omitempty"`
	Criteria   []string         `json:"criteria"`
}

// DecisionLog appends entries to {dir}/YYYY-MM-DD.jsonl, one file per UTC day.
// The log is a debugging and audit aid, not a source of truth.
type DecisionLog struct {
	dir string

	mu    sync.Mutex
	files map[string]*sync.Mutex
}

// NewDecisionLog creates the log under {dataDir}/decisions.
// Auto-creates the directory if not exists.
func NewDecisionLog(dataDir string) (*DecisionLog, error) {
	dir := filepath.Join(dataDir, "decisions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create decision log directory: %w", err)
	}
	return &DecisionLog{dir: dir, files: make(map[string]*sync.Mutex)}, nil
}

// fileMutex returns mutex for given filename, creating if not exists.
// Map grows by ~1 entry/day.
func (l *DecisionLog) fileMutex(filename string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.files[filename]
	if !ok {
		m = &sync.Mutex{}
		l.files[filename] = m
	}
	return m
}

// Path returns the file an entry stamped t is written to.
func (l *DecisionLog) Path(t time.Time) string {
	return filepath.Join(l.dir, t.UTC().Format("2006-01-02")+".jsonl")
}

// Append writes entry as a single JSON line.
func (l *DecisionLog) Append(entry DecisionLogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	filename := l.Path(entry.Time)
	m := l.fileMutex(filename)
	m.Lock()
	defer m.Unlock()

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
