package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of an originated loan.
type LoanStatus string

const (
	LoanStatusActive LoanStatus = "ACTIVE"
	LoanStatusRepaid LoanStatus = "REPAID"
)

// amountScale is the decimal precision kept on computed monetary amounts.
const amountScale = 8

var (
	hundred       = decimal.NewFromInt(100)
	monthsPerYear = decimal.NewFromInt(12)
)

// Loan is the active loan produced by the origination transaction. It is the
// 1:1 counterpart of a MatchResult.
type Loan struct {
	ID                        uuid.UUID       `json:"id"`
	OfferID                   uuid.UUID       `json:"offer_id"`
	ApplicationID             uuid.UUID       `json:"application_id"`
	BorrowerID                uuid.UUID       `json:"borrower_id"`
	LenderID                  uuid.UUID       `json:"lender_id"`
	PrincipalCurrency         string          `json:"principal_currency"`
	CollateralCurrency        string          `json:"collateral_currency"`
	PrincipalAmount           decimal.Decimal `json:"principal_amount"`
	InterestRate              decimal.Decimal `json:"interest_rate"`
	TermMonths                int             `json:"term_months"`
	InterestAmount            decimal.Decimal `json:"interest_amount"`
	OriginationFeeAmount      decimal.Decimal `json:"origination_fee_amount"`
	TotalRepaymentAmount      decimal.Decimal `json:"total_repayment_amount"`
	LTVRatio                  decimal.Decimal `json:"ltv_ratio"`
	CollateralValuationAmount decimal.Decimal `json:"collateral_valuation_amount"`
	MaturityDate              time.Time       `json:"maturity_date"`
	Status                    LoanStatus      `json:"status"`
	OriginatedAt              time.Time       `json:"originated_at"`
}

// MatchResult records the financial terms computed when an application and an
// offer were paired. Immutable once created.
type MatchResult struct {
	ID                               uuid.UUID       `json:"id"`
	ApplicationID                    uuid.UUID       `json:"application_id"`
	OfferID                          uuid.UUID       `json:"offer_id"`
	LoanID                           uuid.UUID       `json:"loan_id"`
	MatchedLTVRatio                  decimal.Decimal `json:"matched_ltv_ratio"`
	MatchedCollateralValuationAmount decimal.Decimal `json:"matched_collateral_valuation_amount"`
	InterestAmount                   decimal.Decimal `json:"interest_amount"`
	OriginationFeeAmount             decimal.Decimal `json:"origination_fee_amount"`
	TotalRepaymentAmount             decimal.Decimal `json:"total_repayment_amount"`
	MaturityDate                     time.Time       `json:"maturity_date"`
	CreatedAt                        time.Time       `json:"created_at"`
}

// LoanTerms holds the amounts derived from a principal, an annual rate and a
// term at origination time.
type LoanTerms struct {
	InterestAmount       decimal.Decimal
	OriginationFeeAmount decimal.Decimal
	TotalRepaymentAmount decimal.Decimal
	MaturityDate         time.Time
}

// ComputeLoanTerms derives the loan amounts using simple annual interest:
// interest = principal * rate/100 * term/12, fee = principal * feeRate/100.
// Rates are percentages; all arithmetic is fixed-point decimal.
func ComputeLoanTerms(principal, annualRate, feeRate decimal.Decimal, termMonths int, asOf time.Time) LoanTerms {
	term := decimal.NewFromInt(int64(termMonths))
	interest := principal.
		Mul(annualRate).Div(hundred).
		Mul(term).Div(monthsPerYear).
		Round(amountScale)
	fee := principal.Mul(feeRate).Div(hundred).Round(amountScale)
	return LoanTerms{
		InterestAmount:       interest,
		OriginationFeeAmount: fee,
		TotalRepaymentAmount: principal.Add(interest).Add(fee),
		MaturityDate:         asOf.AddDate(0, termMonths, 0),
	}
}
