// Package matching implements the loan matching engine: pluggable candidate
// strategies, the selector that picks between them, and the orchestrator
// that drives batched runs and origination.
package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openlend/lendmatch/internal/lending/model"
)

// StrategyKind identifies a matching strategy variant.
type StrategyKind string

const (
	StrategyStandard StrategyKind = "standard"
	StrategyEnhanced StrategyKind = "enhanced"
	StrategyTargeted StrategyKind = "targeted"
	// StrategyLegacy is reserved for the deprecated single-duration criteria
	// shape. It is never implemented; selecting it is an error.
	StrategyLegacy StrategyKind = "legacy"
)

// StrategyOptions carries the per-invocation inputs that select and
// parameterize a strategy. Nil fields mean "not supplied".
type StrategyOptions struct {
	TargetOfferID       *uuid.UUID
	TargetApplicationID *uuid.UUID
	Lender              *model.LenderCriteria
	Borrower            *model.BorrowerCriteria
	AsOf                time.Time
}

// IsEmpty reports whether no target and no criteria were supplied.
func (o StrategyOptions) IsEmpty() bool {
	return o.TargetOfferID == nil && o.TargetApplicationID == nil &&
		o.Lender.IsEmpty() && o.Borrower.IsEmpty()
}

func (o StrategyOptions) asOf() time.Time {
	if o.AsOf.IsZero() {
		return time.Now()
	}
	return o.AsOf
}

// Strategy ranks the offers compatible with one application. Implementations
// are pure readers; they never mutate financial state.
type Strategy interface {
	// FindCompatibleOffers returns the offers compatible with the
	// application, best candidate first.
	FindCompatibleOffers(ctx context.Context, app *model.LoanApplication, opts StrategyOptions) ([]*model.LoanOffer, error)

	// CanHandle reports whether this strategy applies to the given options.
	CanHandle(opts StrategyOptions) bool

	// Describe renders the active criteria for audit logging.
	Describe(opts StrategyOptions) string
}

// offerCompatible applies the application-level compatibility checks shared
// by every strategy: amount window, term membership, rate ceiling, freshness.
func offerCompatible(app *model.LoanApplication, offer *model.LoanOffer, borrower *model.BorrowerCriteria, asOf time.Time) bool {
	if !offer.Matchable(asOf) {
		return false
	}

	principal := app.PrincipalAmount
	if borrower != nil && borrower.FixedPrincipalAmount != nil {
		principal = *borrower.FixedPrincipalAmount
	}
	if !offer.CanFund(principal) {
		return false
	}

	if borrower != nil && borrower.FixedDuration != nil {
		if !offer.AcceptsTerm(*borrower.FixedDuration) {
			return false
		}
	} else if !offer.AcceptsTerm(app.TermMonths) {
		return false
	}

	ceiling := app.MaxInterestRate
	if borrower != nil && borrower.MaxInterestRate != nil {
		ceiling = *borrower.MaxInterestRate
	}
	return offer.InterestRate.LessThanOrEqual(ceiling)
}

// rankOffers orders compatible offers best-first: institutional lenders ahead
// when preferred (stable), then lower rate, more term flexibility, higher
// remaining capacity, lower entry minimum.
func rankOffers(offers []*model.LoanOffer, preferInstitutional bool) {
	sort.SliceStable(offers, func(i, j int) bool {
		if preferInstitutional {
			ii := offers[i].LenderType == model.LenderTypeInstitutional
			ij := offers[j].LenderType == model.LenderTypeInstitutional
			if ii != ij {
				return ii
			}
		}
		if !offers[i].InterestRate.Equal(offers[j].InterestRate) {
			return offers[i].InterestRate.LessThan(offers[j].InterestRate)
		}
		if len(offers[i].TermMonthsOptions) != len(offers[j].TermMonthsOptions) {
			return len(offers[i].TermMonthsOptions) > len(offers[j].TermMonthsOptions)
		}
		if !offers[i].AvailablePrincipalAmount.Equal(offers[j].AvailablePrincipalAmount) {
			return offers[i].AvailablePrincipalAmount.GreaterThan(offers[j].AvailablePrincipalAmount)
		}
		return offers[i].MinLoanPrincipalAmount.LessThan(offers[j].MinLoanPrincipalAmount)
	})
}

// describeCriteria renders the active overlay constraints in a compact,
// log-friendly form, e.g. "borrower: duration=24, maxRate=8; lender:
// durations=[12 24 36], rate=7.5".
func describeCriteria(lender *model.LenderCriteria, borrower *model.BorrowerCriteria) string {
	var sections []string

	if !borrower.IsEmpty() {
		var parts []string
		if borrower.FixedDuration != nil {
			parts = append(parts, fmt.Sprintf("duration=%d", *borrower.FixedDuration))
		}
		if borrower.FixedPrincipalAmount != nil {
			parts = append(parts, fmt.Sprintf("principal=%s", borrower.FixedPrincipalAmount.String()))
		}
		if borrower.MaxInterestRate != nil {
			parts = append(parts, fmt.Sprintf("maxRate=%s", borrower.MaxInterestRate.String()))
		}
		if borrower.PreferInstitutionalLenders {
			parts = append(parts, "preferInstitutional")
		}
		if borrower.PrincipalCurrency != "" {
			parts = append(parts, fmt.Sprintf("currency=%s", borrower.PrincipalCurrency))
		}
		if borrower.CollateralCurrency != "" {
			parts = append(parts, fmt.Sprintf("collateral=%s", borrower.CollateralCurrency))
		}
		sections = append(sections, "borrower: "+strings.Join(parts, ", "))
	}

	if !lender.IsEmpty() {
		var parts []string
		if len(lender.DurationOptions) > 0 {
			parts = append(parts, fmt.Sprintf("durations=%v", lender.DurationOptions))
		}
		if lender.FixedInterestRate != nil {
			parts = append(parts, fmt.Sprintf("rate=%s", lender.FixedInterestRate.String()))
		}
		if lender.MinPrincipalAmount != nil {
			parts = append(parts, fmt.Sprintf("minPrincipal=%s", lender.MinPrincipalAmount.String()))
		}
		if lender.MaxPrincipalAmount != nil {
			parts = append(parts, fmt.Sprintf("maxPrincipal=%s", lender.MaxPrincipalAmount.String()))
		}
		if lender.PrincipalCurrency != "" {
			parts = append(parts, fmt.Sprintf("currency=%s", lender.PrincipalCurrency))
		}
		if lender.CollateralCurrency != "" {
			parts = append(parts, fmt.Sprintf("collateral=%s", lender.CollateralCurrency))
		}
		sections = append(sections, "lender: "+strings.Join(parts, ", "))
	}

	if len(sections) == 0 {
		return "no criteria"
	}
	return strings.Join(sections, "; ")
}
