// Package repository defines the candidate repository port the matching
// engine reads candidates through and the transactional origination
// primitive, plus its GORM and in-memory implementations.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlend/lendmatch/internal/lending/model"
)

// OfferFilter narrows the published-offer listing. Empty string fields are
// not applied.
type OfferFilter struct {
	PrincipalCurrency  string
	CollateralCurrency string
	AsOf               time.Time // excludes offers expired at this instant
}

// ApplicationFilter narrows the published-application listing. Results are
// ordered by AppliedAt ascending (oldest first). Limit 0 means no limit.
type ApplicationFilter struct {
	PrincipalCurrency string
	AsOf              time.Time
	Limit             int
}

// OriginationRequest carries everything the atomic origination step needs.
// TermMonths and PrincipalAmount are the values the match was admitted on;
// borrower criteria overlays may differ from the application's own fields.
// Zero values fall back to the application's term and amount.
type OriginationRequest struct {
	OfferID                   uuid.UUID
	ApplicationID             uuid.UUID
	TermMonths                int
	PrincipalAmount           decimal.Decimal
	MatchedLTVRatio           decimal.Decimal
	CollateralValuationAmount decimal.Decimal
	OriginationFeeRate        decimal.Decimal
	AsOf                      time.Time
}

// Repository is the narrow port the engine uses to fetch candidates and to
// persist match results. All reads are advisory; Originate is the only
// correctness boundary and must execute atomically.
type Repository interface {
	ListPublishedOffers(ctx context.Context, filter OfferFilter) ([]*model.LoanOffer, error)
	ListPublishedApplications(ctx context.Context, filter ApplicationFilter) ([]*model.LoanApplication, error)
	GetOffer(ctx context.Context, id uuid.UUID) (*model.LoanOffer, error)
	GetApplication(ctx context.Context, id uuid.UUID) (*model.LoanApplication, error)

	// Originate re-reads both sides under a lock, re-verifies the matching
	// invariants, reserves the offer capacity, marks the application matched,
	// and creates the Loan and MatchResult in a single atomic unit. A state
	// change since candidate selection yields model.ErrConflict with no
	// partial mutation.
	Originate(ctx context.Context, req OriginationRequest) (*model.Loan, error)
}
