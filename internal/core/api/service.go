// Package api wires the decision core to its transports: the browser session
// endpoint, the privileged HTTP and gRPC Decide endpoints and the decision log.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/tidegate/internal/action"
	"github.com/solatis/tidegate/internal/evalctx"
	"github.com/solatis/tidegate/internal/ipintel"
	"github.com/solatis/tidegate/internal/rules"
	"github.com/solatis/tidegate/internal/types"
)

// Request is one decision to make.
type Request struct {
	Input  types.DecisionInput
	Caller action.Caller
	// SiteID is set for authenticated callers.
	SiteID string
	// SessionID is the browser session, if any.
	SessionID string
}

// DecisionService orchestrates one decision: IP intelligence, context,
// first match, action resolution, decision log.
// Thin orchestration layer delegating to ipintel, evalctx, rules and action.
type DecisionService struct {
	engine     *rules.Engine
	ipResolver *ipintel.Resolver
	actions    *action.Resolver
	log        *DecisionLog
	now        func() time.Time
	logger     zerolog.Logger
}

// NewDecisionService creates service instance with dependencies.
// decisionLog may be nil to disable the decision log.
func NewDecisionService(engine *rules.Engine, resolver *ipintel.Resolver, actions *action.Resolver, decisionLog *DecisionLog, logger zerolog.Logger) (*DecisionService, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if actions == nil {
		return nil, fmt.Errorf("actions cannot be nil")
	}

	return &DecisionService{
		engine:     engine,
		ipResolver: resolver,
		actions:    actions,
		log:        decisionLog,
		now:        time.Now,
		logger:     logger.With().Str("component", "decision").Logger(),
	}, nil
}

// Decide evaluates req against the current rule set. Data-driven failures
// never surface as errors: an unresolvable action yields a nil action with
// the matched rule still reported. The only error is a cancelled context.
func (s *DecisionService) Decide(ctx context.Context, req Request) (types.DecisionOutput, error) {
	if err := ctx.Err(); err != nil {
		return types.DecisionOutput{}, err
	}

	id := types.NewDecisionID()
	rec := s.ipResolver.Resolve(ctx, req.Input.RemoteIP)
	ec := evalctx.Build(req.Input, rec)

	result := s.engine.Match(ctx, ec, types.CriterionServerSide)

	out := types.DecisionOutput{
		DecisionID: id,
		Criteria:   []string{},
	}

	if result.Matched() {
		rule := result.Rule
		ruleID := rule.ID
		out.MatchedRuleID = &ruleID
		out.Criteria = append(out.Criteria, rule.Criteria...)

		desc, err := s.actions.Resolve(rule, ec.RemoteIP, req.Caller)
		if err != nil {
			s.logger.Debug().Err(err).Str("decision_id", string(id)).Str("rule_id", string(ruleID)).Msg("no action for matched rule")
		}
		out.Action = desc
	}

	s.record(req, ec, result, out)
	return out, nil
}

func (s *DecisionService) record(req Request, ec evalctx.Context, result rules.MatchResult, out types.DecisionOutput) {
	ev := s.logger.Debug().
		Str("decision_id", string(out.DecisionID)).
		Str("remote_ip", ec.RemoteIP).
		Str("path", ec.Path).
		Int("evaluated", result.Evaluated)
	if out.MatchedRuleID != nil {
		ev = ev.Str("rule_id", string(*out.MatchedRuleID))
	}
	ev.Msg("decision made")

	if s.log == nil {
		return
	}

	entry := DecisionLogEntry{
		Time:       s.now().UTC(),
		DecisionID: out.DecisionID,
		SiteID:     req.SiteID,
		SessionID:  req.SessionID,
		Privileged: req.Caller == action.CallerPrivileged,
		RemoteIP:   ec.RemoteIP,
		Country:    ipintel.CountryFor(ec.IP, ec.RemoteIP),
		Method:     ec.Method,
		Path:       ec.Path,
		UserAgent:  ec.UserAgent,
		Evaluated:  result.Evaluated,
		MatchedID:  out.MatchedRuleID,
		Criteria:   out.Criteria,
	}
	if out.Action != nil {
		entry.ActionType = out.Action.Type
	}

	// Best-effort; the decision already stands.
	if err := s.log.Append(entry); err != nil {
		s.logger.Warn().Err(err).Str("decision_id", string(out.DecisionID)).Msg("failed to append decision log")
	}
}
