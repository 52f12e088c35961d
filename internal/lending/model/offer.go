package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OfferStatus is the lifecycle state of a lender loan offer.
type OfferStatus string

const (
	OfferStatusDraft          OfferStatus = "DRAFT"
	OfferStatusPendingFunding OfferStatus = "PENDING_FUNDING"
	OfferStatusPublished      OfferStatus = "PUBLISHED"
	OfferStatusClosed         OfferStatus = "CLOSED"
)

// LenderType distinguishes institutional lenders from individuals; borrowers
// may prefer institutional lenders as a sort hint.
type LenderType string

const (
	LenderTypeIndividual    LenderType = "INDIVIDUAL"
	LenderTypeInstitutional LenderType = "INSTITUTIONAL"
)

// LoanOffer is the lender side of a match. AvailablePrincipalAmount is the
// offered amount minus everything already reserved by prior originations;
// it only decreases inside the origination transaction.
type LoanOffer struct {
	ID                       uuid.UUID       `json:"id"`
	LenderID                 uuid.UUID       `json:"lender_id"`
	LenderType               LenderType      `json:"lender_type"`
	PrincipalCurrency        string          `json:"principal_currency"`
	CollateralCurrency       string          `json:"collateral_currency"`
	OfferedPrincipalAmount   decimal.Decimal `json:"offered_principal_amount"`
	AvailablePrincipalAmount decimal.Decimal `json:"available_principal_amount"`
	MinLoanPrincipalAmount   decimal.Decimal `json:"min_loan_principal_amount"`
	MaxLoanPrincipalAmount   decimal.Decimal `json:"max_loan_principal_amount"`
	InterestRate             decimal.Decimal `json:"interest_rate"` // percent, fixed by lender
	TermMonthsOptions        []int           `json:"term_months_options"`
	Status                   OfferStatus     `json:"status"`
	ExpiresAt                time.Time       `json:"expires_at"`
	Version                  int64           `json:"version"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// IsExpired reports whether the offer has passed its expiration as of the
// given instant.
func (o *LoanOffer) IsExpired(asOf time.Time) bool {
	return !o.ExpiresAt.IsZero() && !asOf.Before(o.ExpiresAt)
}

// Matchable reports whether the offer is a valid candidate as of the given
// instant.
func (o *LoanOffer) Matchable(asOf time.Time) bool {
	return o.Status == OfferStatusPublished && !o.IsExpired(asOf)
}

// AcceptsTerm reports whether the offer's term options include the given
// duration in months.
func (o *LoanOffer) AcceptsTerm(months int) bool {
	for _, t := range o.TermMonthsOptions {
		if t == months {
			return true
		}
	}
	return false
}

// CanFund reports whether the requested principal fits the offer's window:
// min <= principal <= min(max, available).
func (o *LoanOffer) CanFund(principal decimal.Decimal) bool {
	if principal.LessThan(o.MinLoanPrincipalAmount) {
		return false
	}
	ceiling := o.MaxLoanPrincipalAmount
	if o.AvailablePrincipalAmount.LessThan(ceiling) {
		ceiling = o.AvailablePrincipalAmount
	}
	return principal.LessThanOrEqual(ceiling)
}

// Reserve decrements the available amount by the given principal. The caller
// must hold the row lock; Reserve itself re-checks the capacity invariant.
func (o *LoanOffer) Reserve(principal decimal.Decimal, at time.Time) error {
	if !o.CanFund(principal) {
		return ErrConflict
	}
	o.AvailablePrincipalAmount = o.AvailablePrincipalAmount.Sub(principal)
	o.Version++
	o.UpdatedAt = at
	return nil
}
