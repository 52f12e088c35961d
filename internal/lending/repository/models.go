package repository

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlend/lendmatch/internal/lending/model"
)

// loanOfferRow is the persistence shape of a LoanOffer. Term options are
// stored as a comma-separated list to keep the schema portable across
// Postgres and the sqlite test driver.
type loanOfferRow struct {
	ID                       uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	LenderID                 uuid.UUID       `gorm:"column:lender_id;type:uuid;not null;index"`
	LenderType               string          `gorm:"column:lender_type;not null"`
	PrincipalCurrency        string          `gorm:"column:principal_currency;not null;index:idx_offers_matchable"`
	CollateralCurrency       string          `gorm:"column:collateral_currency;not null;index:idx_offers_matchable"`
	OfferedPrincipalAmount   decimal.Decimal `gorm:"column:offered_principal_amount;type:numeric(36,8);not null"`
	AvailablePrincipalAmount decimal.Decimal `gorm:"column:available_principal_amount;type:numeric(36,8);not null"`
	MinLoanPrincipalAmount   decimal.Decimal `gorm:"column:min_loan_principal_amount;type:numeric(36,8);not null"`
	MaxLoanPrincipalAmount   decimal.Decimal `gorm:"column:max_loan_principal_amount;type:numeric(36,8);not null"`
	InterestRate             decimal.Decimal `gorm:"column:interest_rate;type:numeric(12,6);not null"`
	TermMonthsOptions        string          `gorm:"column:term_months_options;not null"`
	Status                   string          `gorm:"column:status;not null;index:idx_offers_matchable"`
	ExpiresAt                *time.Time      `gorm:"column:expires_at"`
	Version                  int64           `gorm:"column:version;not null;default:0"`
	CreatedAt                time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (loanOfferRow) TableName() string { return "loan_offers" }

type loanApplicationRow struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	BorrowerID         uuid.UUID       `gorm:"column:borrower_id;type:uuid;not null;index"`
	PrincipalAmount    decimal.Decimal `gorm:"column:principal_amount;type:numeric(36,8);not null"`
	MaxInterestRate    decimal.Decimal `gorm:"column:max_interest_rate;type:numeric(12,6);not null"`
	TermMonths         int             `gorm:"column:term_months;not null"`
	PrincipalCurrency  string          `gorm:"column:principal_currency;not null;index:idx_apps_matchable"`
	CollateralCurrency string          `gorm:"column:collateral_currency;not null"`
	Status             string          `gorm:"column:status;not null;index:idx_apps_matchable"`
	AppliedAt          time.Time       `gorm:"column:applied_at;not null;index"`
	ExpiresAt          *time.Time      `gorm:"column:expires_at"`
	MatchedLoanOfferID *uuid.UUID      `gorm:"column:matched_loan_offer_id;type:uuid"`
	MatchedLTVRatio    decimal.Decimal `gorm:"column:matched_ltv_ratio;type:numeric(12,6)"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (loanApplicationRow) TableName() string { return "loan_applications" }

type loanRow struct {
	ID                        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OfferID                   uuid.UUID       `gorm:"column:offer_id;type:uuid;not null;index"`
	ApplicationID             uuid.UUID       `gorm:"column:application_id;type:uuid;not null;uniqueIndex"`
	BorrowerID                uuid.UUID       `gorm:"column:borrower_id;type:uuid;not null;index"`
	LenderID                  uuid.UUID       `gorm:"column:lender_id;type:uuid;not null;index"`
	PrincipalCurrency         string          `gorm:"column:principal_currency;not null"`
	CollateralCurrency        string          `gorm:"column:collateral_currency;not null"`
	PrincipalAmount           decimal.Decimal `gorm:"column:principal_amount;type:numeric(36,8);not null"`
	InterestRate              decimal.Decimal `gorm:"column:interest_rate;type:numeric(12,6);not null"`
	TermMonths                int             `gorm:"column:term_months;not null"`
	InterestAmount            decimal.Decimal `gorm:"column:interest_amount;type:numeric(36,8);not null"`
	OriginationFeeAmount      decimal.Decimal `gorm:"column:origination_fee_amount;type:numeric(36,8);not null"`
	TotalRepaymentAmount      decimal.Decimal `gorm:"column:total_repayment_amount;type:numeric(36,8);not null"`
	LTVRatio                  decimal.Decimal `gorm:"column:ltv_ratio;type:numeric(12,6)"`
	CollateralValuationAmount decimal.Decimal `gorm:"column:collateral_valuation_amount;type:numeric(36,8)"`
	MaturityDate              time.Time       `gorm:"column:maturity_date;not null"`
	Status                    string          `gorm:"column:status;not null"`
	OriginatedAt              time.Time       `gorm:"column:originated_at;not null"`
}

func (loanRow) TableName() string { return "loans" }

type matchResultRow struct {
	ID                               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	ApplicationID                    uuid.UUID       `gorm:"column:application_id;type:uuid;not null;uniqueIndex"`
	OfferID                          uuid.UUID       `gorm:"column:offer_id;type:uuid;not null;index"`
	LoanID                           uuid.UUID       `gorm:"column:loan_id;type:uuid;not null;uniqueIndex"`
	MatchedLTVRatio                  decimal.Decimal `gorm:"column:matched_ltv_ratio;type:numeric(12,6)"`
	MatchedCollateralValuationAmount decimal.Decimal `gorm:"column:matched_collateral_valuation_amount;type:numeric(36,8)"`
	InterestAmount                   decimal.Decimal `gorm:"column:interest_amount;type:numeric(36,8);not null"`
	OriginationFeeAmount             decimal.Decimal `gorm:"column:origination_fee_amount;type:numeric(36,8);not null"`
	TotalRepaymentAmount             decimal.Decimal `gorm:"column:total_repayment_amount;type:numeric(36,8);not null"`
	MaturityDate                     time.Time       `gorm:"column:maturity_date;not null"`
	CreatedAt                        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (matchResultRow) TableName() string { return "match_results" }

// A zero expiry means "never expires" and is stored as NULL so the listing
// predicates can express it.
func expiryPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func expiryVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func encodeTermOptions(options []int) string {
	parts := make([]string, len(options))
	for i, o := range options {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}

func decodeTermOptions(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	options := make([]int, 0, len(parts))
	for _, p := range parts {
		if v, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			options = append(options, v)
		}
	}
	return options
}

func offerRowFromDomain(o *model.LoanOffer) *loanOfferRow {
	return &loanOfferRow{
		ID:                       o.ID,
		LenderID:                 o.LenderID,
		LenderType:               string(o.LenderType),
		PrincipalCurrency:        o.PrincipalCurrency,
		CollateralCurrency:       o.CollateralCurrency,
		OfferedPrincipalAmount:   o.OfferedPrincipalAmount,
		AvailablePrincipalAmount: o.AvailablePrincipalAmount,
		MinLoanPrincipalAmount:   o.MinLoanPrincipalAmount,
		MaxLoanPrincipalAmount:   o.MaxLoanPrincipalAmount,
		InterestRate:             o.InterestRate,
		TermMonthsOptions:        encodeTermOptions(o.TermMonthsOptions),
		Status:                   string(o.Status),
		ExpiresAt:                expiryPtr(o.ExpiresAt),
		Version:                  o.Version,
		CreatedAt:                o.CreatedAt,
		UpdatedAt:                o.UpdatedAt,
	}
}

func (r *loanOfferRow) toDomain() *model.LoanOffer {
	return &model.LoanOffer{
		ID:                       r.ID,
		LenderID:                 r.LenderID,
		LenderType:               model.LenderType(r.LenderType),
		PrincipalCurrency:        r.PrincipalCurrency,
		CollateralCurrency:       r.CollateralCurrency,
		OfferedPrincipalAmount:   r.OfferedPrincipalAmount,
		AvailablePrincipalAmount: r.AvailablePrincipalAmount,
		MinLoanPrincipalAmount:   r.MinLoanPrincipalAmount,
		MaxLoanPrincipalAmount:   r.MaxLoanPrincipalAmount,
		InterestRate:             r.InterestRate,
		TermMonthsOptions:        decodeTermOptions(r.TermMonthsOptions),
		Status:                   model.OfferStatus(r.Status),
		ExpiresAt:                expiryVal(r.ExpiresAt),
		Version:                  r.Version,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
}

func applicationRowFromDomain(a *model.LoanApplication) *loanApplicationRow {
	return &loanApplicationRow{
		ID:                 a.ID,
		BorrowerID:         a.BorrowerID,
		PrincipalAmount:    a.PrincipalAmount,
		MaxInterestRate:    a.MaxInterestRate,
		TermMonths:         a.TermMonths,
		PrincipalCurrency:  a.PrincipalCurrency,
		CollateralCurrency: a.CollateralCurrency,
		Status:             string(a.Status),
		AppliedAt:          a.AppliedAt,
		ExpiresAt:          expiryPtr(a.ExpiresAt),
		MatchedLoanOfferID: a.MatchedLoanOfferID,
		MatchedLTVRatio:    a.MatchedLTVRatio,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func (r *loanApplicationRow) toDomain() *model.LoanApplication {
	return &model.LoanApplication{
		ID:                 r.ID,
		BorrowerID:         r.BorrowerID,
		PrincipalAmount:    r.PrincipalAmount,
		MaxInterestRate:    r.MaxInterestRate,
		TermMonths:         r.TermMonths,
		PrincipalCurrency:  r.PrincipalCurrency,
		CollateralCurrency: r.CollateralCurrency,
		Status:             model.ApplicationStatus(r.Status),
		AppliedAt:          r.AppliedAt,
		ExpiresAt:          expiryVal(r.ExpiresAt),
		MatchedLoanOfferID: r.MatchedLoanOfferID,
		MatchedLTVRatio:    r.MatchedLTVRatio,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func loanRowFromDomain(l *model.Loan) *loanRow {
	return &loanRow{
		ID:                        l.ID,
		OfferID:                   l.OfferID,
		ApplicationID:             l.ApplicationID,
		BorrowerID:                l.BorrowerID,
		LenderID:                  l.LenderID,
		PrincipalCurrency:         l.PrincipalCurrency,
		CollateralCurrency:        l.CollateralCurrency,
		PrincipalAmount:           l.PrincipalAmount,
		InterestRate:              l.InterestRate,
		TermMonths:                l.TermMonths,
		InterestAmount:            l.InterestAmount,
		OriginationFeeAmount:      l.OriginationFeeAmount,
		TotalRepaymentAmount:      l.TotalRepaymentAmount,
		LTVRatio:                  l.LTVRatio,
		CollateralValuationAmount: l.CollateralValuationAmount,
		MaturityDate:              l.MaturityDate,
		Status:                    string(l.Status),
		OriginatedAt:              l.OriginatedAt,
	}
}

func (r *loanRow) toDomain() *model.Loan {
	return &model.Loan{
		ID:                        r.ID,
		OfferID:                   r.OfferID,
		ApplicationID:             r.ApplicationID,
		BorrowerID:                r.BorrowerID,
		LenderID:                  r.LenderID,
		PrincipalCurrency:         r.PrincipalCurrency,
		CollateralCurrency:        r.CollateralCurrency,
		PrincipalAmount:           r.PrincipalAmount,
		InterestRate:              r.InterestRate,
		TermMonths:                r.TermMonths,
		InterestAmount:            r.InterestAmount,
		OriginationFeeAmount:      r.OriginationFeeAmount,
		TotalRepaymentAmount:      r.TotalRepaymentAmount,
		LTVRatio:                  r.LTVRatio,
		CollateralValuationAmount: r.CollateralValuationAmount,
		MaturityDate:              r.MaturityDate,
		Status:                    model.LoanStatus(r.Status),
		OriginatedAt:              r.OriginatedAt,
	}
}
