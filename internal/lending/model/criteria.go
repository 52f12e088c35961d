package model

import (
	"github.com/shopspring/decimal"
)

// LenderCriteria is an optional overlay supplied by a triggering actor to
// narrow the candidate offers a run considers. Nil pointer fields and empty
// slices/strings mean "no constraint", never a zero-value filter.
type LenderCriteria struct {
	DurationOptions    []int            `json:"duration_options,omitempty"`
	FixedInterestRate  *decimal.Decimal `json:"fixed_interest_rate,omitempty"`
	MinPrincipalAmount *decimal.Decimal `json:"min_principal_amount,omitempty"`
	MaxPrincipalAmount *decimal.Decimal `json:"max_principal_amount,omitempty"`
	CollateralCurrency string           `json:"collateral_currency,omitempty"`
	PrincipalCurrency  string           `json:"principal_currency,omitempty"`
}

// IsEmpty reports whether no constraint is set at all.
func (c *LenderCriteria) IsEmpty() bool {
	if c == nil {
		return true
	}
	return len(c.DurationOptions) == 0 &&
		c.FixedInterestRate == nil &&
		c.MinPrincipalAmount == nil &&
		c.MaxPrincipalAmount == nil &&
		c.CollateralCurrency == "" &&
		c.PrincipalCurrency == ""
}

// Validate rejects internally inconsistent overlays before a run starts.
func (c *LenderCriteria) Validate() error {
	if c == nil {
		return nil
	}
	for _, d := range c.DurationOptions {
		if d <= 0 {
			return NewValidationError("duration_options", "durations must be positive")
		}
	}
	if c.FixedInterestRate != nil && c.FixedInterestRate.IsNegative() {
		return NewValidationError("fixed_interest_rate", "rate must not be negative")
	}
	if c.MinPrincipalAmount != nil && c.MinPrincipalAmount.IsNegative() {
		return NewValidationError("min_principal_amount", "amount must not be negative")
	}
	if c.MaxPrincipalAmount != nil && c.MaxPrincipalAmount.IsNegative() {
		return NewValidationError("max_principal_amount", "amount must not be negative")
	}
	if c.MinPrincipalAmount != nil && c.MaxPrincipalAmount != nil &&
		c.MinPrincipalAmount.GreaterThan(*c.MaxPrincipalAmount) {
		return NewValidationError("min_principal_amount", "min exceeds max")
	}
	return nil
}

// BorrowerCriteria is the symmetric overlay for the borrower side.
// PreferInstitutionalLenders is a sort preference, not a filter.
type BorrowerCriteria struct {
	FixedDuration              *int             `json:"fixed_duration,omitempty"`
	FixedPrincipalAmount       *decimal.Decimal `json:"fixed_principal_amount,omitempty"`
	MaxInterestRate            *decimal.Decimal `json:"max_interest_rate,omitempty"`
	PreferInstitutionalLenders bool             `json:"prefer_institutional_lenders,omitempty"`
	CollateralCurrency         string           `json:"collateral_currency,omitempty"`
	PrincipalCurrency          string           `json:"principal_currency,omitempty"`
}

// IsEmpty reports whether no constraint or preference is set at all.
func (c *BorrowerCriteria) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.FixedDuration == nil &&
		c.FixedPrincipalAmount == nil &&
		c.MaxInterestRate == nil &&
		!c.PreferInstitutionalLenders &&
		c.CollateralCurrency == "" &&
		c.PrincipalCurrency == ""
}

// Validate rejects internally inconsistent overlays before a run starts.
func (c *BorrowerCriteria) Validate() error {
	if c == nil {
		return nil
	}
	if c.FixedDuration != nil && *c.FixedDuration <= 0 {
		return NewValidationError("fixed_duration", "duration must be positive")
	}
	if c.FixedPrincipalAmount != nil && !c.FixedPrincipalAmount.IsPositive() {
		return NewValidationError("fixed_principal_amount", "amount must be positive")
	}
	if c.MaxInterestRate != nil && c.MaxInterestRate.IsNegative() {
		return NewValidationError("max_interest_rate", "rate must not be negative")
	}
	return nil
}
