package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApplicationStatus is the lifecycle state of a borrower loan application.
type ApplicationStatus string

const (
	ApplicationStatusDraft             ApplicationStatus = "DRAFT"
	ApplicationStatusPendingCollateral ApplicationStatus = "PENDING_COLLATERAL"
	ApplicationStatusPublished         ApplicationStatus = "PUBLISHED"
	ApplicationStatusMatched           ApplicationStatus = "MATCHED"
	ApplicationStatusActive            ApplicationStatus = "ACTIVE"
	ApplicationStatusCancelled         ApplicationStatus = "CANCELLED"
	ApplicationStatusExpired           ApplicationStatus = "EXPIRED"
)

// LoanApplication is the borrower side of a match. Only Published, unexpired
// applications are eligible for matching; the status moves to Matched
// exclusively inside the origination transaction.
type LoanApplication struct {
	ID                 uuid.UUID         `json:"id"`
	BorrowerID         uuid.UUID         `json:"borrower_id"`
	PrincipalAmount    decimal.Decimal   `json:"principal_amount"`
	MaxInterestRate    decimal.Decimal   `json:"max_interest_rate"` // inclusive ceiling, percent
	TermMonths         int               `json:"term_months"`
	PrincipalCurrency  string            `json:"principal_currency"`
	CollateralCurrency string            `json:"collateral_currency"`
	Status             ApplicationStatus `json:"status"`
	AppliedAt          time.Time         `json:"applied_at"`
	ExpiresAt          time.Time         `json:"expires_at"`
	MatchedLoanOfferID *uuid.UUID        `json:"matched_loan_offer_id,omitempty"`
	MatchedLTVRatio    decimal.Decimal   `json:"matched_ltv_ratio"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// IsExpired reports whether the application has passed its expiration as of
// the given instant.
func (a *LoanApplication) IsExpired(asOf time.Time) bool {
	return !a.ExpiresAt.IsZero() && !asOf.Before(a.ExpiresAt)
}

// Matchable reports whether the application is eligible for matching as of
// the given instant.
func (a *LoanApplication) Matchable(asOf time.Time) bool {
	return a.Status == ApplicationStatusPublished && !a.IsExpired(asOf)
}

// MarkMatched transitions the application into the Matched state, recording
// the winning offer and the LTV ratio locked in at origination.
func (a *LoanApplication) MarkMatched(offerID uuid.UUID, ltvRatio decimal.Decimal, at time.Time) {
	a.Status = ApplicationStatusMatched
	a.MatchedLoanOfferID = &offerID
	a.MatchedLTVRatio = ltvRatio
	a.UpdatedAt = at
}
