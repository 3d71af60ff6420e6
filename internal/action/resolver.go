// Package action converts a matched rule's abstract action into a
// secret-free ActionDescriptor.
package action

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/solatis/tidegate/internal/types"
)

// Redirect data modes.
const (
	ModeRaw   = "raw"
	ModeAzure = "azure"
)

// Caller identifies who receives the descriptor.
type Caller int

const (
	// CallerBrowser is an unauthenticated browser session. Redirects are
	// normalized to js-redirect and server actions become opaque stubs.
	CallerBrowser Caller = iota
	// CallerPrivileged is an authenticated server-side integration that
	// performs server actions itself.
	CallerPrivileged
)

// Resolver dispatches on action type.
type Resolver struct {
	signer *Signer
}

// NewResolver creates a resolver that signs with signer.
func NewResolver(signer *Signer) *Resolver {
	return &Resolver{signer: signer}
}

// Resolve builds the descriptor for rule's action. A nil descriptor means
// "no action"; the accompanying error says why and is never fatal to the
// decision.
func (r *Resolver) Resolve(rule *types.Rule, clientIP string, caller Caller) (*types.ActionDescriptor, error) {
	if rule == nil {
		return nil, nil
	}
	a := rule.Action
	data := a.Data
	if data == nil {
		data = map[string]any{}
	}

	switch {
	case a.Type.IsRedirect():
		return r.resolveRedirect(rule.ID, a.Type, data, clientIP, caller)

	case a.Type == types.ActionServerInclude, a.Type == types.ActionServerEchoData:
		if caller != CallerPrivileged {
			return &types.ActionDescriptor{Type: a.Type, Data: map[string]any{}, RuleID: rule.ID}, nil
		}
		return resolveServerAction(rule.ID, a.Type, data)

	case a.Type == types.ActionJSIncludeHTML, a.Type == types.ActionJSExec:
		// Both keys are always present; an absent field is emitted as null.
		return &types.ActionDescriptor{
			Type: a.Type,
			Data: map[string]any{
				"html":   data["html"],
				"script": data["script"],
			},
			RuleID: rule.ID,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownActionType, a.Type)
	}
}

func (r *Resolver) resolveRedirect(id types.RuleID, typ types.ActionType, data map[string]any, clientIP string, caller Caller) (*types.ActionDescriptor, error) {
	out := map[string]any{}

	// Azure mode without an azure block falls back to the raw url.
	azure, isAzure := data[ModeAzure].(map[string]any)
	if strings.TrimSpace(textField(data, "mode")) == ModeAzure && isAzure {
		signed, err := r.signer.SignedURL(ParseSignerConfig(azure), clientIP)
		if err != nil {
			return nil, err
		}
		out["url"] = signed
		out["resolved_url"] = signed
	} else {
		u := strings.TrimSpace(textField(data, "url"))
		if u == "" {
			return nil, fmt.Errorf("%w: url", types.ErrMissingActionField)
		}
		out["url"] = u
	}

	if caller != CallerPrivileged {
		typ = types.ActionJSRedirect
	}
	switch typ {
	case types.ActionServer301Redirect:
		out["status"] = 301
	case types.ActionServer302Redirect:
		out["status"] = 302
	}
	return &types.ActionDescriptor{Type: typ, Data: out, RuleID: id}, nil
}

func resolveServerAction(id types.RuleID, typ types.ActionType, data map[string]any) (*types.ActionDescriptor, error) {
	if typ == types.ActionServerInclude {
		file := includeBasename(textField(data, "file"))
		if file == "" {
			return nil, fmt.Errorf("%w: file", types.ErrMissingActionField)
		}
		return &types.ActionDescriptor{Type: typ, Data: map[string]any{"file": file}, RuleID: id}, nil
	}

	text, ok := data["text"]
	if !ok || text == nil {
		return nil, fmt.Errorf("%w: text", types.ErrMissingActionField)
	}
	return &types.ActionDescriptor{Type: typ, Data: map[string]any{"text": textField(data, "text")}, RuleID: id}, nil
}

// includeBasename strips directories so includes stay inside the caller's
// include root.
func includeBasename(file string) string {
	file = strings.TrimSpace(strings.ReplaceAll(file, "\\", "/"))
	if file == "" {
		return ""
	}
	base := path.Base(file)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

func textField(data map[string]any, name string) string {
	switch v := data[name].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// intField truncates a numeric field, clamped to the int32 range.
func intField(data map[string]any, name string) (int, bool) {
	var f float64
	switch v := data[name].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return int(math.Max(math.MinInt32, math.Min(math.MaxInt32, math.Trunc(f)))), true
}

func truthyField(data map[string]any, name string) bool {
	switch v := data[name].(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != "" && v != "0" && !strings.EqualFold(v, "false")
	default:
		return true
	}
}
