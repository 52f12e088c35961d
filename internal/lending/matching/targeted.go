package matching

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openlend/lendmatch/internal/lending/model"
	"github.com/openlend/lendmatch/internal/lending/repository"
)

// TargetedStrategy evaluates a single just-published entity instead of a
// full sweep. With a target application it behaves like Enhanced restricted
// to that application; with a target offer it fans out the other way,
// returning the published applications compatible with that one offer.
type TargetedStrategy struct {
	repo     repository.Repository
	enhanced *EnhancedStrategy
}

// NewTargetedStrategy creates the single-entity strategy.
func NewTargetedStrategy(repo repository.Repository) *TargetedStrategy {
	return &TargetedStrategy{repo: repo, enhanced: NewEnhancedStrategy(repo)}
}

func (s *TargetedStrategy) FindCompatibleOffers(ctx context.Context, app *model.LoanApplication, opts StrategyOptions) ([]*model.LoanOffer, error) {
	return s.enhanced.FindCompatibleOffers(ctx, app, opts)
}

// FindCompatibleApplications is the inverse fan-out for a target offer: it
// loads the offer and returns every published application it could fund,
// oldest first. The orchestrator branches on which target id was supplied to
// know which entity list it receives.
func (s *TargetedStrategy) FindCompatibleApplications(ctx context.Context, offerID uuid.UUID, opts StrategyOptions) (*model.LoanOffer, []*model.LoanApplication, error) {
	asOf := opts.asOf()

	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, nil, err
	}
	if !offer.Matchable(asOf) {
		return offer, nil, nil
	}
	if !lenderPreFilter(offer, opts.Lender) {
		return offer, nil, nil
	}

	apps, err := s.repo.ListPublishedApplications(ctx, repository.ApplicationFilter{
		PrincipalCurrency: offer.PrincipalCurrency,
		AsOf:              asOf,
	})
	if err != nil {
		return nil, nil, err
	}

	compatible := make([]*model.LoanApplication, 0, len(apps))
	for _, app := range apps {
		if app.CollateralCurrency != offer.CollateralCurrency {
			continue
		}
		if !offerCompatible(app, offer, opts.Borrower, asOf) {
			continue
		}
		compatible = append(compatible, app)
	}
	return offer, compatible, nil
}

func (s *TargetedStrategy) CanHandle(opts StrategyOptions) bool {
	return opts.TargetOfferID != nil || opts.TargetApplicationID != nil
}

func (s *TargetedStrategy) Describe(opts StrategyOptions) string {
	switch {
	case opts.TargetApplicationID != nil:
		return fmt.Sprintf("targeted: application %s; %s", opts.TargetApplicationID, describeCriteria(opts.Lender, opts.Borrower))
	case opts.TargetOfferID != nil:
		return fmt.Sprintf("targeted: offer %s; %s", opts.TargetOfferID, describeCriteria(opts.Lender, opts.Borrower))
	default:
		return "targeted: no target"
	}
}
