// internal/rules/matcher.go
package rules

import (
	"sort"

	"github.com/solatis/tidegate/internal/evalctx"
	"github.com/solatis/tidegate/internal/ipintel"
	"github.com/solatis/tidegate/internal/types"
)

/*
 * Rule Matcher.
 *
 * FirstMatch scans rules in normalized order and returns the first rule that
 * carries the required criterion and whose conditions all pass. No ranking:
 * order alone breaks ties.
 *
 * Short-circuit semantics: the scan stops at the first matching rule, and
 * within a rule the first failing condition stops that rule. A rule with no
 * conditions always matches.
 *
 * Named condition keys extract their actual value from the context before
 * calling Match. Any other key is looked up in the flat context map and is
 * ignored (passes) when absent.
 */

// Named condition keys.
const (
	CondHTTPMethod       = "http_method"
	CondQueryParams      = "query_params"
	CondPostParams       = "post_params"
	CondIP               = "ip"
	CondIPHostname       = "ip_hostname"
	CondIPCountry        = "ip_country"
	CondProxyIP          = "proxy_ip"
	CondVPNName          = "vpn_name"
	CondReferrerContains = "referrer_contains"
	CondUAContains       = "ua_contains"
	CondBrowser          = "browser"
	CondOS               = "os"
	CondPathRegex        = "path_regex"
	CondCookieHas        = "cookie_has"
	CondHeaderHas        = "header_has"
	CondGclidFresh       = "gclid_fresh"
)

const defaultGclidParam = "gclid"

// MatchResult contains the outcome of a rule scan.
type MatchResult struct {
	Rule            *types.Rule // nil when nothing matched
	Index           int         // position of Rule in the scanned list, -1 when nothing matched
	Evaluated       int         // rules whose conditions were evaluated
	FailedCondition string      // failing key of the last evaluated rule that did not match
}

// Matched reports whether a rule matched.
func (m MatchResult) Matched() bool {
	return m.Rule != nil
}

// FirstMatch returns the first rule carrying requiredCriterion whose
// conditions all hold in ctx.
func FirstMatch(rules []types.Rule, ctx evalctx.Context, requiredCriterion string) MatchResult {
	result := MatchResult{Index: -1}

	for i := range rules {
		rule := &rules[i]
		if !rule.HasCriterion(requiredCriterion) {
			continue
		}

		result.Evaluated++
		ok, failed := ConditionsMatch(rule.Conditions, ctx)
		if !ok {
			result.FailedCondition = failed
			continue
		}

		result.Rule = rule
		result.Index = i
		result.FailedCondition = ""
		return result
	}

	return result
}

// ConditionsMatch evaluates conditions as a logical AND in order. Returns
// the key of the first failing condition.
func ConditionsMatch(conds types.Conditions, ctx evalctx.Context) (bool, string) {
	for _, cond := range conds {
		if !evaluateCondition(cond, ctx) {
			return false, cond.Key
		}
	}
	return true, ""
}

// evaluateCondition extracts the actual value for a named key and compares.
func evaluateCondition(cond types.Condition, ctx evalctx.Context) bool {
	exp := cond.Expect

	switch cond.Key {
	case CondHTTPMethod:
		return Match(exp, ctx.Method)
	case CondIP:
		return Match(exp, ctx.RemoteIP)
	case CondIPHostname:
		return Match(exp, ctx.IP.Reverse)
	case CondIPCountry:
		return Match(exp, ipintel.CountryFor(ctx.IP, ctx.RemoteIP))
	case CondProxyIP:
		return Match(exp, ipintel.IsVPNOrHosting(ctx.IP))
	case CondVPNName:
		return Match(exp, ipintel.VPNName(ctx.IP))
	case CondBrowser:
		return Match(exp, ctx.Browser)
	case CondOS:
		return Match(exp, ctx.OS)

	case CondReferrerContains:
		if exp.Kind == types.ExpectOperator {
			return Match(exp, ctx.Referrer)
		}
		return containsFold(ctx.Referrer, exp.Text())

	case CondUAContains:
		return containsFold(ctx.UserAgent, exp.Text())

	case CondPathRegex:
		pattern := exp.Text()
		if pattern == "" {
			return true
		}
		return MatchPathPattern(pattern, ctx.Path)

	case CondCookieHas:
		name := exp.Text()
		if name == "" {
			return false
		}
		_, ok := ctx.Cookie(name)
		return ok

	case CondHeaderHas:
		name := exp.Text()
		return name != "" && ctx.Header(name) != ""

	case CondGclidFresh:
		param, _ := exp.Member("param")
		if param == "" {
			param = defaultGclidParam
		}
		return CoerceText(ctx.Query(param)) != ""

	case CondQueryParams:
		return paramsMatch(exp, ctx.Query)
	case CondPostParams:
		return paramsMatch(exp, ctx.Post)

	default:
		actual, ok := ctx.Lookup(cond.Key)
		if !ok {
			return true
		}
		return Match(exp, actual)
	}
}

// paramsMatch evaluates a name -> expectation object against a parameter
// source. Anything other than an object fails. Names are checked in sorted
// order so the same input always evaluates the same way.
func paramsMatch(exp types.Expectation, lookup func(string) any) bool {
	if exp.Kind != types.ExpectObject {
		return false
	}
	names := make([]string, 0, len(exp.Fields))
	for name := range exp.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !Match(exp.Fields[name], lookup(name)) {
			return false
		}
	}
	return true
}
