package rules

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/solatis/tidegate/internal/evalctx"
	"github.com/solatis/tidegate/internal/ipintel"
	"github.com/solatis/tidegate/internal/types"
)

func mustRule(t *testing.T, doc string) types.Rule {
	t.Helper()
	rule, err := DecodeRule(json.RawMessage(doc))
	if err != nil {
		t.Fatalf("DecodeRule(%s) failed: %v", doc, err)
	}
	return rule
}

func methodContext(method string) evalctx.Context {
	return evalctx.Build(types.DecisionInput{Method: method, RemoteIP: "203.0.113.9"}, ipintel.Fallback("203.0.113.9"))
}

func TestFirstMatch_MethodRule(t *testing.T) {
	rules := []types.Rule{mustRule(t, `{
		"id": "get-only",
		"priority": 10,
		"conditions": {"http_method": {"op": "eq", "value": "GET"}},
		"criteria": ["Server-Side"]
	}`)}

	got := FirstMatch(rules, methodContext("GET"), types.CriterionServerSide)
	if !got.Matched() || got.Rule.ID != "get-only" || got.Index != 0 || got.Evaluated != 1 {
		t.Errorf("GET: result = %+v, want match of get-only", got)
	}

	got = FirstMatch(rules, methodContext("POST"), types.CriterionServerSide)
	if got.Matched() {
		t.Errorf("POST: matched %q, want no match", got.Rule.ID)
	}
	if got.Index != -1 || got.FailedCondition != CondHTTPMethod {
		t.Errorf("POST: result = %+v, want index -1 failing on http_method", got)
	}
}

func TestFirstMatch_Criteria(t *testing.T) {
	rules := []types.Rule{
		mustRule(t, `{"id":"js-only","criteria":["JS"]}`),
		mustRule(t, `{"id":"lower","criteria":["server-side"]}`),
		mustRule(t, `{"id":"none"}`),
		mustRule(t, `{"id":"server","criteria":["JS","Server-Side"]}`),
	}

	got := FirstMatch(rules, methodContext("GET"), types.CriterionServerSide)
	if !got.Matched() || got.Rule.ID != "server" {
		t.Fatalf("result = %+v, want server", got)
	}
	if got.Evaluated != 1 {
		t.Errorf("Evaluated = %d, want 1 (ineligible rules are skipped)", got.Evaluated)
	}
}

func TestFirstMatch_Empty(t *testing.T) {
	got := FirstMatch(nil, methodContext("GET"), types.CriterionServerSide)
	if got.Matched() || got.Index != -1 || got.Evaluated != 0 {
		t.Errorf("result = %+v, want empty", got)
	}
}

// The scan stops at the first match: Evaluated counts exactly the eligible
// rules up to and including it.
func TestFirstMatch_ShortCircuitProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	type ruleShape struct {
		eligible bool
		matches  bool
	}

	properties.Property("evaluated counts eligible rules through the match", prop.ForAll(
		func(eligible, matches []bool) bool {
			n := len(eligible)
			if len(matches) < n {
				n = len(matches)
			}
			shapes := make([]ruleShape, n)
			rules := make([]types.Rule, n)
			for i := 0; i < n; i++ {
				shapes[i] = ruleShape{eligible[i], matches[i]}
				method := "POST"
				if matches[i] {
					method = "GET"
				}
				criteria := `["JS"]`
				if eligible[i] {
					criteria = `["Server-Side"]`
				}
				rule, err := DecodeRule(json.RawMessage(fmt.Sprintf(
					`{"id":"r%d","conditions":{"http_method":%q},"criteria":%s}`, i, method, criteria)))
				if err != nil {
					return false
				}
				rules[i] = rule
			}

			wantIndex, wantEvaluated := -1, 0
			for i, s := range shapes {
				if !s.eligible {
					continue
				}
				wantEvaluated++
				if s.matches {
					wantIndex = i
					break
				}
			}

			got := FirstMatch(rules, methodContext("GET"), types.CriterionServerSide)
			return got.Index == wantIndex && got.Evaluated == wantEvaluated && got.Matched() == (wantIndex >= 0)
		},
		gen.SliceOf(gen.Bool()),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestConditionsMatch_StopsAtFirstFailure(t *testing.T) {
	rule := mustRule(t, `{"conditions":{"http_method":"POST","ip_country":"US","browser":"Chrome"}}`)
	ok, failed := ConditionsMatch(rule.Conditions, methodContext("GET"))
	if ok || failed != CondHTTPMethod {
		t.Errorf("ConditionsMatch = (%v, %q), want (false, http_method)", ok, failed)
	}

	ok, failed = ConditionsMatch(nil, methodContext("GET"))
	if !ok || failed != "" {
		t.Errorf("empty conditions = (%v, %q), want (true, \"\")", ok, failed)
	}
}

func TestEvaluateCondition_NamedKeys(t *testing.T) {
	hosting := ipintel.Record{
		Query:       "198.51.100.7",
		Status:      ipintel.StatusSuccess,
		CountryCode: "DE",
		Org:         "Hetzner Online GmbH",
		ISP:         "Hetzner",
		Reverse:     "static.7.100.51.198.clients.your-server.de",
	}
	in := types.DecisionInput{
		Method:      "post",
		Path:        "/shop/Checkout",
		Referrer:    "https://www.Google.com/search?q=x",
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		Headers:     map[string]string{"Accept-Language": "en-US", "X-Custom": "1"},
		Cookies:     map[string]string{"session": "abc", "blank": ""},
		QueryParams: map[string]any{"utm_source": "google", "gclid": "Cj0", "n": "15"},
		PostParams:  map[string]any{"plan": "pro"},
		RemoteIP:    "198.51.100.7",
		ClientMeta:  map[string]any{"screen_width": float64(1920), "timezone": "Europe/Berlin"},
	}
	ctx := evalctx.Build(in, hosting)

	tests := []struct {
		name string
		doc  string
		want bool
	}{
		{"method is upper-cased", `{"http_method":"POST"}`, true},
		{"ip literal", `{"ip":"198.51.100.7"}`, true},
		{"ip operator", `{"ip":{"op":"contains","value":"198.51."}}`, true},
		{"hostname", `{"ip_hostname":{"op":"contains","value":"your-server.de"}}`, true},
		{"country in", `{"ip_country":{"op":"in","value":"US, DE"}}`, true},
		{"country miss", `{"ip_country":"US"}`, false},
		{"proxy true", `{"proxy_ip":"true"}`, true},
		{"proxy false", `{"proxy_ip":"false"}`, false},
		{"vpn name", `{"vpn_name":{"op":"contains","value":"hetzner"}}`, true},
		{"referrer contains literal folds case", `{"referrer_contains":"google.com"}`, true},
		{"referrer contains operator", `{"referrer_contains":{"op":"regex","value":"Google"}}`, true},
		{"ua contains", `{"ua_contains":"WINDOWS NT"}`, true},
		{"ua contains value object", `{"ua_contains":{"value":"chrome"}}`, true},
		{"browser", `{"browser":"Chrome"}`, true},
		{"os", `{"os":"Windows"}`, true},
		{"path regex delimited", `{"path_regex":"/^\\/shop\\/checkout/i"}`, true},
		{"path regex bare", `{"path_regex":"^/blog"}`, false},
		{"path regex empty passes", `{"path_regex":""}`, true},
		{"cookie present", `{"cookie_has":"session"}`, true},
		{"cookie present but empty", `{"cookie_has":"blank"}`, true},
		{"cookie missing", `{"cookie_has":"other"}`, false},
		{"cookie empty name", `{"cookie_has":""}`, false},
		{"header present", `{"header_has":"accept_language"}`, true},
		{"header missing", `{"header_has":"X-Missing"}`, false},
		{"gclid default param", `{"gclid_fresh":true}`, true},
		{"gclid custom param", `{"gclid_fresh":{"param":"msclkid"}}`, false},
		{"query params", `{"query_params":{"utm_source":"google","n":{"op":"between","value":[10,20]}}}`, true},
		{"query params miss", `{"query_params":{"utm_source":{"op":"neq","value":"google"}}}`, false},
		{"query params missing name", `{"query_params":{"absent":"empty"}}`, true},
		{"query params not object", `{"query_params":"utm_source"}`, false},
		{"post params", `{"post_params":{"plan":"pro"}}`, true},
		{"flat field from client meta", `{"screen_width":{"op":"gte","value":1280}}`, true},
		{"flat server field", `{"country_code":"DE"}`, true},
		{"unknown key passes", `{"no_such_field":"x"}`, true},
		{"invalid expectation fails", `{"timezone":["Europe/Berlin"]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := mustRule(t, `{"conditions":`+tt.doc+`}`)
			ok, _ := ConditionsMatch(rule.Conditions, ctx)
			if ok != tt.want {
				t.Errorf("%s = %v, want %v", tt.doc, ok, tt.want)
			}
		})
	}
}

func TestEvaluateCondition_LocalCountry(t *testing.T) {
	ctx := evalctx.Build(types.DecisionInput{RemoteIP: "192.168.1.5"}, ipintel.Fallback("192.168.1.5"))
	rule := mustRule(t, `{"conditions":{"ip_country":"localhost"}}`)
	if ok, _ := ConditionsMatch(rule.Conditions, ctx); !ok {
		t.Error("private address did not resolve to localhost country")
	}
}
