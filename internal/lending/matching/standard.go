package matching

import (
	"context"
	"sort"

	"github.com/openlend/lendmatch/internal/lending/model"
	"github.com/openlend/lendmatch/internal/lending/repository"
)

// StandardStrategy applies baseline compatibility only: currency match,
// amount window, exact term membership, rate at or under the application's
// ceiling, offer unexpired. It keeps the common periodic sweep cheap by
// skipping criteria pre-filters and the full tie-break chain; survivors are
// sorted by rate ascending.
type StandardStrategy struct {
	repo repository.Repository
}

// NewStandardStrategy creates the baseline strategy.
func NewStandardStrategy(repo repository.Repository) *StandardStrategy {
	return &StandardStrategy{repo: repo}
}

func (s *StandardStrategy) FindCompatibleOffers(ctx context.Context, app *model.LoanApplication, opts StrategyOptions) ([]*model.LoanOffer, error) {
	asOf := opts.asOf()

	offers, err := s.repo.ListPublishedOffers(ctx, repository.OfferFilter{
		PrincipalCurrency:  app.PrincipalCurrency,
		CollateralCurrency: app.CollateralCurrency,
		AsOf:               asOf,
	})
	if err != nil {
		return nil, err
	}

	compatible := offers[:0]
	for _, offer := range offers {
		if offerCompatible(app, offer, nil, asOf) {
			compatible = append(compatible, offer)
		}
	}

	sort.SliceStable(compatible, func(i, j int) bool {
		return compatible[i].InterestRate.LessThan(compatible[j].InterestRate)
	})
	return compatible, nil
}

func (s *StandardStrategy) CanHandle(opts StrategyOptions) bool {
	return opts.IsEmpty()
}

func (s *StandardStrategy) Describe(opts StrategyOptions) string {
	return "standard: baseline compatibility, no overlay criteria"
}
