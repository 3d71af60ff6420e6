package rules

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/tidegate/internal/evalctx"
	"github.com/solatis/tidegate/internal/types"
)

// Engine loads rules fresh from its source on every call and matches them.
// Holds no rule state between calls, so operator edits apply immediately.
type Engine struct {
	source Source
	now    func() time.Time
	logger zerolog.Logger
}

// NewEngine creates an engine. A nil clock uses time.Now.
func NewEngine(source Source, now func() time.Time, logger zerolog.Logger) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		source: source,
		now:    now,
		logger: logger.With().Str("component", "rules").Logger(),
	}
}

// Rules loads and normalizes the current rule set.
func (e *Engine) Rules(ctx context.Context) ([]types.Rule, error) {
	raw, err := e.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	rules := Normalize(raw, e.now().UTC())
	e.logger.Debug().Int("loaded", len(raw)).Int("active", len(rules)).Msg("rules normalized")
	return rules, nil
}

// Match loads the rule set and returns the first match for requiredCriterion.
// A source error is logged and treated as an empty rule set.
func (e *Engine) Match(ctx context.Context, c evalctx.Context, requiredCriterion string) MatchResult {
	rules, err := e.Rules(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to load rules, evaluating none")
		return MatchResult{Index: -1}
	}

	result := FirstMatch(rules, c, requiredCriterion)
	if result.Matched() {
		e.logger.Debug().Str("rule_id", string(result.Rule.ID)).Int("evaluated", result.Evaluated).Msg("rule matched")
	} else {
		e.logger.Debug().Int("evaluated", result.Evaluated).Str("last_failed_condition", result.FailedCondition).Msg("no rule matched")
	}
	return result
}
