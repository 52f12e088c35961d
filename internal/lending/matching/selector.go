package matching

import (
	"fmt"

	"github.com/openlend/lendmatch/internal/lending/model"
	"github.com/openlend/lendmatch/internal/lending/repository"
)

// Selector picks the applicable strategy for an invocation. The variant set
// is closed: targeted when a specific entity id is supplied, enhanced when
// any overlay criteria are present, standard otherwise. The reserved legacy
// variant is rejected.
type Selector struct {
	standard *StandardStrategy
	enhanced *EnhancedStrategy
	targeted *TargetedStrategy
}

// NewSelector creates a selector over the closed strategy set.
func NewSelector(repo repository.Repository) *Selector {
	return &Selector{
		standard: NewStandardStrategy(repo),
		enhanced: NewEnhancedStrategy(repo),
		targeted: NewTargetedStrategy(repo),
	}
}

// Select returns the strategy for the given options.
func (s *Selector) Select(opts StrategyOptions) (Strategy, StrategyKind) {
	switch {
	case s.targeted.CanHandle(opts):
		return s.targeted, StrategyTargeted
	case s.enhanced.CanHandle(opts):
		return s.enhanced, StrategyEnhanced
	default:
		return s.standard, StrategyStandard
	}
}

// SelectKind resolves an explicitly requested strategy kind. The legacy
// identifier is accepted on the wire for backward compatibility but always
// rejected: the enhanced criteria shape fully superseded it.
func (s *Selector) SelectKind(kind StrategyKind, opts StrategyOptions) (Strategy, error) {
	switch kind {
	case StrategyStandard:
		return s.standard, nil
	case StrategyEnhanced:
		return s.enhanced, nil
	case StrategyTargeted:
		return s.targeted, nil
	case StrategyLegacy:
		return nil, fmt.Errorf("%w: legacy criteria shape is no longer supported", model.ErrStrategyUnsupported)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", model.ErrStrategyUnsupported, kind)
	}
}

// Targeted exposes the targeted strategy for the orchestrator's offer
// fan-out branch.
func (s *Selector) Targeted() *TargetedStrategy {
	return s.targeted
}
