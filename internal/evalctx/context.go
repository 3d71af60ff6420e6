// Package evalctx assembles the per-decision evaluation context.
//
// Build is pure: it merges the decision input, the IP intelligence record and
// the optional client metadata blob into one immutable Context. No I/O, no
// ambient state.
package evalctx

import (
	"net/url"
	"strings"

	"github.com/solatis/tidegate/internal/ipintel"
	"github.com/solatis/tidegate/internal/types"
)

// clientInitialKey holds the first fingerprint snapshot inside client metadata.
// Its fields take precedence over top-level metadata keys.
const clientInitialKey = "fp_initial"

// Context is the flat evaluation context for one decision. Construct with
// Build; treat as read-only.
type Context struct {
	Method    string
	Path      string
	Referrer  string
	UserAgent string
	Browser   string
	OS        string
	IsBot     bool
	RemoteIP  string
	IP        ipintel.Record

	headers map[string]string
	cookies map[string]string
	query   map[string]any
	post    map[string]any
	fields  map[string]any
}

// Build assembles the context. Query params fall back to the page URL carried
// in client metadata ("url") when the input supplies none.
func Build(in types.DecisionInput, rec ipintel.Record) Context {
	ua := ParseUserAgent(in.UserAgent)

	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = "GET"
	}

	c := Context{
		Method:    method,
		Path:      in.Path,
		Referrer:  in.Referrer,
		UserAgent: in.UserAgent,
		Browser:   ua.Browser,
		OS:        ua.OS,
		IsBot:     ua.IsBot,
		RemoteIP:  strings.TrimSpace(in.RemoteIP),
		IP:        rec,
		headers:   normalizeHeaders(in.Headers),
		cookies:   copyStrings(in.Cookies),
		query:     copyAny(in.QueryParams),
		post:      copyAny(in.PostParams),
	}
	if len(c.query) == 0 {
		c.query = queryFromPageURL(in.ClientMeta)
	}
	c.fields = c.flatten(in.ClientMeta)
	return c
}

// flatten builds the flat lookup map: client metadata first (fp_initial over
// top-level keys), then server-derived fields, which always win.
func (c Context) flatten(meta map[string]any) map[string]any {
	fields := make(map[string]any, len(meta)+16)

	n := 0
	for k, v := range meta {
		if k == clientInitialKey || n >= types.MaxClientMetaKeys {
			continue
		}
		fields[k] = v
		n++
	}
	if fp, ok := meta[clientInitialKey].(map[string]any); ok {
		for k, v := range fp {
			if n >= types.MaxClientMetaKeys {
				break
			}
			fields[k] = v
			n++
		}
	}

	fields["method"] = c.Method
	fields["path"] = c.Path
	fields["referrer"] = c.Referrer
	fields["user_agent"] = c.UserAgent
	fields["browser"] = c.Browser
	fields["os"] = c.OS
	fields["is_bot"] = c.IsBot
	fields["remote_ip"] = c.RemoteIP
	fields["country_code"] = ipintel.CountryFor(c.IP, c.RemoteIP)
	fields["org"] = c.IP.Org
	fields["isp"] = c.IP.ISP
	fields["proxy"] = c.IP.Proxy
	fields["hosting"] = c.IP.Hosting
	return fields
}

// Lookup returns a flat context field.
func (c Context) Lookup(key string) (any, bool) {
	v, ok := c.fields[key]
	return v, ok
}

// Fields returns a copy of the flat context map.
func (c Context) Fields() map[string]any {
	return copyAny(c.fields)
}

// Header returns a request header value. Names are case-insensitive and
// "_" is equivalent to "-".
func (c Context) Header(name string) string {
	return c.headers[headerKey(name)]
}

// Cookie reports whether the cookie is present and its value.
func (c Context) Cookie(name string) (string, bool) {
	v, ok := c.cookies[name]
	return v, ok
}

// Query returns a query parameter, nil when absent.
func (c Context) Query(name string) any {
	return c.query[name]
}

// Post returns a body parameter, nil when absent.
func (c Context) Post(name string) any {
	return c.post[name]
}

func headerKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

func normalizeHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[headerKey(k)] = v
	}
	return out
}

func queryFromPageURL(meta map[string]any) map[string]any {
	raw, _ := meta["url"].(string)
	if raw == "" {
		return map[string]any{}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return map[string]any{}
	}
	return ValuesToParams(u.Query())
}

// ValuesToParams converts url.Values to a parameter map. The first value of
// each key wins.
func ValuesToParams(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyAny(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
