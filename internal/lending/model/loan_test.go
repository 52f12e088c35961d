package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLoanTerms(t *testing.T) {
	asOf := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		principal    string
		annualRate   string
		feeRate      string
		termMonths   int
		wantInterest string
		wantFee      string
		wantTotal    string
	}{
		{
			name:         "two year loan",
			principal:    "50000",
			annualRate:   "8",
			feeRate:      "1.0",
			termMonths:   24,
			wantInterest: "8000",
			wantFee:      "500",
			wantTotal:    "58500",
		},
		{
			name:         "six month loan",
			principal:    "12000",
			annualRate:   "6",
			feeRate:      "0.5",
			termMonths:   6,
			wantInterest: "360",
			wantFee:      "60",
			wantTotal:    "12420",
		},
		{
			name:         "fractional rate rounds to amount scale",
			principal:    "10000",
			annualRate:   "7.33",
			feeRate:      "0",
			termMonths:   12,
			wantInterest: "733",
			wantFee:      "0",
			wantTotal:    "10733",
		},
		{
			name:         "zero fee rate",
			principal:    "1000",
			annualRate:   "10",
			feeRate:      "0",
			termMonths:   12,
			wantInterest: "100",
			wantFee:      "0",
			wantTotal:    "1100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal := decimal.RequireFromString(tt.principal)
			rate := decimal.RequireFromString(tt.annualRate)
			fee := decimal.RequireFromString(tt.feeRate)

			terms := ComputeLoanTerms(principal, rate, fee, tt.termMonths, asOf)

			assert.True(t, terms.InterestAmount.Equal(decimal.RequireFromString(tt.wantInterest)),
				"interest: got %s", terms.InterestAmount)
			assert.True(t, terms.OriginationFeeAmount.Equal(decimal.RequireFromString(tt.wantFee)),
				"fee: got %s", terms.OriginationFeeAmount)
			assert.True(t, terms.TotalRepaymentAmount.Equal(decimal.RequireFromString(tt.wantTotal)),
				"total: got %s", terms.TotalRepaymentAmount)
			assert.Equal(t, asOf.AddDate(0, tt.termMonths, 0), terms.MaturityDate)
		})
	}
}

func TestComputeLoanTermsMaturityCrossesYear(t *testing.T) {
	asOf := time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)
	terms := ComputeLoanTerms(decimal.NewFromInt(1000), decimal.NewFromInt(5), decimal.Zero, 3, asOf)
	require.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), terms.MaturityDate)
}
