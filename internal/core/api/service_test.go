package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/tidegate/internal/action"
	"github.com/solatis/tidegate/internal/ipintel"
	"github.com/solatis/tidegate/internal/rules"
	"github.com/solatis/tidegate/internal/types"
)

const testRules = `[
	{"id": "us-visitors", "priority": 1, "conditions": {"ip_country": "US"}, "criteria": ["Server-Side"],
	 "action": {"type": "server-302-redirect", "data": {"url": "https://example.com/us"}}},
	{"id": "echo", "priority": 2, "conditions": {"path_regex": "^/echo"}, "criteria": ["Server-Side"],
	 "action": {"type": "server-echo-data", "data": {"text": "hello"}}},
	{"id": "broken-action", "priority": 3, "conditions": {"path_regex": "^/broken"}, "criteria": ["Server-Side", "JS"],
	 "action": {"type": "js-redirect", "data": {}}},
	{"id": "client-only", "priority": 0, "criteria": ["JS"],
	 "action": {"type": "js-exec", "data": {"script": "x()"}}}
]`

// staticFetcher answers lookups from a fixed table.
type staticFetcher map[string]ipintel.Record

func (f staticFetcher) Fetch(ctx context.Context, ip string) (ipintel.Record, error) {
	rec, ok := f[ip]
	if !ok {
		return ipintel.Record{}, types.ErrIPLookupFailed
	}
	return rec, nil
}

var testRecords = staticFetcher{
	"198.51.100.1": {Status: ipintel.StatusSuccess, CountryCode: "US", Org: "Comcast"},
	"198.51.100.2": {Status: ipintel.StatusSuccess, CountryCode: "DE", Org: "Telekom"},
}

var testTime = time.Date(2025, 5, 4, 3, 2, 1, 0, time.UTC)

// newTestService builds a service over a rules file. logDir enables the
// decision log when non-empty.
func newTestService(t *testing.T, logDir string) *DecisionService {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(testRules), 0o644); err != nil {
		t.Fatal(err)
	}

	cache, err := ipintel.NewMemoryCache(16)
	if err != nil {
		t.Fatal(err)
	}
	resolver := ipintel.NewResolver(testRecords, cache, time.Second, zerolog.Nop())
	engine := rules.NewEngine(rules.NewFileSource(path), nil, zerolog.Nop())
	actions := action.NewResolver(action.NewSigner(nil))

	var decisionLog *DecisionLog
	if logDir != "" {
		decisionLog, err = NewDecisionLog(logDir)
		if err != nil {
			t.Fatal(err)
		}
	}

	s, err := NewDecisionService(engine, resolver, actions, decisionLog, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return testTime }
	return s
}

func TestNewDecisionService_RequiresDependencies(t *testing.T) {
	if _, err := NewDecisionService(nil, nil, nil, nil, zerolog.Nop()); err == nil {
		t.Error("NewDecisionService accepted nil dependencies")
	}
}

func TestDecide(t *testing.T) {
	s := newTestService(t, "")

	tests := []struct {
		name       string
		input      types.DecisionInput
		caller     action.Caller
		wantRule   string
		wantAction types.ActionType
		wantData   map[string]any
	}{
		{
			name:       "privileged redirect",
			input:      types.DecisionInput{RemoteIP: "198.51.100.1", Path: "/"},
			caller:     action.CallerPrivileged,
			wantRule:   "us-visitors",
			wantAction: types.ActionServer302Redirect,
			wantData:   map[string]any{"url": "https://example.com/us", "status": 302},
		},
		{
			name:       "browser redirect is normalized",
			input:      types.DecisionInput{RemoteIP: "198.51.100.1", Path: "/"},
			caller:     action.CallerBrowser,
			wantRule:   "us-visitors",
			wantAction: types.ActionJSRedirect,
			wantData:   map[string]any{"url": "https://example.com/us"},
		},
		{
			name:       "privileged echo",
			input:      types.DecisionInput{RemoteIP: "198.51.100.2", Path: "/echo"},
			caller:     action.CallerPrivileged,
			wantRule:   "echo",
			wantAction: types.ActionServerEchoData,
			wantData:   map[string]any{"text": "hello"},
		},
		{
			name:       "browser echo is a stub",
			input:      types.DecisionInput{RemoteIP: "198.51.100.2", Path: "/echo"},
			caller:     action.CallerBrowser,
			wantRule:   "echo",
			wantAction: types.ActionServerEchoData,
			wantData:   map[string]any{},
		},
		{
			name:   "no match",
			input:  types.DecisionInput{RemoteIP: "198.51.100.2", Path: "/"},
			caller: action.CallerPrivileged,
		},
		{
			name:   "lookup failure uses fallback record",
			input:  types.DecisionInput{RemoteIP: "203.0.113.99", Path: "/"},
			caller: action.CallerPrivileged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Decide(context.Background(), Request{Input: tt.input, Caller: tt.caller})
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if out.DecisionID == "" {
				t.Error("empty decision id")
			}
			if out.Criteria == nil {
				t.Error("criteria is nil, want a list")
			}

			if tt.wantRule == "" {
				if out.MatchedRuleID != nil || out.Action != nil || len(out.Criteria) != 0 {
					t.Errorf("output = %+v, want no match", out)
				}
				return
			}
			if out.MatchedRuleID == nil || string(*out.MatchedRuleID) != tt.wantRule {
				t.Fatalf("matched = %v, want %s", out.MatchedRuleID, tt.wantRule)
			}
			if out.Action == nil || out.Action.Type != tt.wantAction || string(out.Action.RuleID) != tt.wantRule {
				t.Fatalf("action = %+v, want %s", out.Action, tt.wantAction)
			}
			if len(out.Action.Data) != len(tt.wantData) {
				t.Errorf("data = %v, want %v", out.Action.Data, tt.wantData)
			}
			for k, v := range tt.wantData {
				if out.Action.Data[k] != v {
					t.Errorf("data[%q] = %v, want %v", k, out.Action.Data[k], v)
				}
			}
		})
	}
}

func TestDecide_UnresolvableActionKeepsMatch(t *testing.T) {
	s := newTestService(t, "")
	out, err := s.Decide(context.Background(), Request{
		Input:  types.DecisionInput{RemoteIP: "198.51.100.2", Path: "/broken"},
		Caller: action.CallerBrowser,
	})
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if out.MatchedRuleID == nil || *out.MatchedRuleID != "broken-action" {
		t.Fatalf("matched = %v, want broken-action", out.MatchedRuleID)
	}
	if out.Action != nil {
		t.Errorf("action = %+v, want nil", out.Action)
	}
	if len(out.Criteria) != 2 || out.Criteria[0] != "Server-Side" || out.Criteria[1] != "JS" {
		t.Errorf("criteria = %q", out.Criteria)
	}
}

func TestDecide_CancelledContext(t *testing.T) {
	s := newTestService(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Decide(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDecide_OutputJSONShape(t *testing.T) {
	s := newTestService(t, "")
	out, err := s.Decide(context.Background(), Request{Input: types.DecisionInput{RemoteIP: "198.51.100.2"}})
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"decisionId", "matchedRuleId", "action", "criteria"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("output JSON missing %q: %s", key, data)
		}
	}
	if doc["matchedRuleId"] != nil || doc["action"] != nil {
		t.Errorf("no-match output = %s, want null rule and action", data)
	}
	if list, ok := doc["criteria"].([]any); !ok || len(list) != 0 {
		t.Errorf("criteria = %v, want []", doc["criteria"])
	}
}

func readLogEntries(t *testing.T, path string) []DecisionLogEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open decision log: %v", err)
	}
	defer f.Close()

	var entries []DecisionLogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e DecisionLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad log line %q: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestDecide_WritesDecisionLog(t *testing.T) {
	dir := t.TempDir()
	s := newTestService(t, dir)

	first, err := s.Decide(context.Background(), Request{
		Input:  types.DecisionInput{RemoteIP: "198.51.100.1", Method: "get", Path: "/", UserAgent: "curl/8"},
		Caller: action.CallerPrivileged,
		SiteID: "site-a",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Decide(context.Background(), Request{
		Input:     types.DecisionInput{RemoteIP: "198.51.100.2", Path: "/none"},
		SessionID: "abc",
	}); err != nil {
		t.Fatal(err)
	}

	entries := readLogEntries(t, filepath.Join(dir, "decisions", "2025-05-04.jsonl"))
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}

	e := entries[0]
	if e.DecisionID != first.DecisionID || e.SiteID != "site-a" || !e.Privileged {
		t.Errorf("entry = %+v", e)
	}
	if e.Country != "US" || e.Method != "GET" || e.RemoteIP != "198.51.100.1" {
		t.Errorf("entry context = %+v", e)
	}
	if e.MatchedID == nil || *e.MatchedID != "us-visitors" || e.ActionType != types.ActionServer302Redirect {
		t.Errorf("entry match = %v / %q", e.MatchedID, e.ActionType)
	}

	e = entries[1]
	if e.Privileged || e.SessionID != "abc" || e.MatchedID != nil || e.Evaluated != 3 {
		t.Errorf("no-match entry = %+v", e)
	}
}
