package matching

import (
	"context"
	"fmt"

	"github.com/openlend/lendmatch/internal/lending/model"
	"github.com/openlend/lendmatch/internal/lending/repository"
)

// EnhancedStrategy layers caller-supplied lender and borrower criteria on
// top of the baseline compatibility checks and ranks survivors with the full
// tie-break chain. Lender pre-filters run before the per-application checks
// since they are cheap set/equality tests that shrink the candidate set.
type EnhancedStrategy struct {
	repo repository.Repository
}

// NewEnhancedStrategy creates the criteria-aware strategy.
func NewEnhancedStrategy(repo repository.Repository) *EnhancedStrategy {
	return &EnhancedStrategy{repo: repo}
}

func (s *EnhancedStrategy) FindCompatibleOffers(ctx context.Context, app *model.LoanApplication, opts StrategyOptions) ([]*model.LoanOffer, error) {
	asOf := opts.asOf()

	filter := repository.OfferFilter{
		PrincipalCurrency:  app.PrincipalCurrency,
		CollateralCurrency: app.CollateralCurrency,
		AsOf:               asOf,
	}
	if opts.Lender != nil {
		if opts.Lender.PrincipalCurrency != "" {
			filter.PrincipalCurrency = opts.Lender.PrincipalCurrency
		}
		if opts.Lender.CollateralCurrency != "" {
			filter.CollateralCurrency = opts.Lender.CollateralCurrency
		}
	}
	if opts.Borrower != nil {
		if opts.Borrower.PrincipalCurrency != "" {
			filter.PrincipalCurrency = opts.Borrower.PrincipalCurrency
		}
		if opts.Borrower.CollateralCurrency != "" {
			filter.CollateralCurrency = opts.Borrower.CollateralCurrency
		}
	}

	var offers []*model.LoanOffer
	if opts.TargetOfferID != nil {
		offer, err := s.repo.GetOffer(ctx, *opts.TargetOfferID)
		if err != nil {
			return nil, err
		}
		offers = []*model.LoanOffer{offer}
	} else {
		var err error
		offers, err = s.repo.ListPublishedOffers(ctx, filter)
		if err != nil {
			return nil, err
		}
	}

	compatible := make([]*model.LoanOffer, 0, len(offers))
	for _, offer := range offers {
		if !lenderPreFilter(offer, opts.Lender) {
			continue
		}
		if !offerCompatible(app, offer, opts.Borrower, asOf) {
			continue
		}
		compatible = append(compatible, offer)
	}

	preferInstitutional := opts.Borrower != nil && opts.Borrower.PreferInstitutionalLenders
	rankOffers(compatible, preferInstitutional)
	return compatible, nil
}

// lenderPreFilter applies the lender-criteria reductions: duration-option
// overlap, exact rate match, and capacity window overlap. Absent criteria
// fields pass everything through.
func lenderPreFilter(offer *model.LoanOffer, criteria *model.LenderCriteria) bool {
	if criteria == nil {
		return true
	}

	if len(criteria.DurationOptions) > 0 {
		overlap := false
		for _, d := range criteria.DurationOptions {
			if offer.AcceptsTerm(d) {
				overlap = true
				break
			}
		}
		if !overlap {
			return false
		}
	}

	if criteria.FixedInterestRate != nil && !offer.InterestRate.Equal(*criteria.FixedInterestRate) {
		return false
	}

	// The caller's capacity window [min, max] must overlap the offer's own
	// [minLoan, maxLoan] window.
	if criteria.MinPrincipalAmount != nil && offer.MaxLoanPrincipalAmount.LessThan(*criteria.MinPrincipalAmount) {
		return false
	}
	if criteria.MaxPrincipalAmount != nil && offer.MinLoanPrincipalAmount.GreaterThan(*criteria.MaxPrincipalAmount) {
		return false
	}

	return true
}

func (s *EnhancedStrategy) CanHandle(opts StrategyOptions) bool {
	return !opts.IsEmpty()
}

func (s *EnhancedStrategy) Describe(opts StrategyOptions) string {
	return fmt.Sprintf("enhanced: %s", describeCriteria(opts.Lender, opts.Borrower))
}
