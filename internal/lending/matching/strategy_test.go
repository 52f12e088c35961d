package matching

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/openlend/lendmatch/internal/lending/model"
)

func TestOfferCompatible(t *testing.T) {
	app := newApplication()

	tests := []struct {
		name     string
		offer    *model.LoanOffer
		borrower *model.BorrowerCriteria
		want     bool
	}{
		{name: "baseline match", offer: newOffer(), want: true},
		{
			name:  "rate above application ceiling",
			offer: newOffer(withRate("10.5")),
			want:  false,
		},
		{
			name:  "rate exactly at ceiling is inclusive",
			offer: newOffer(withRate("10")),
			want:  true,
		},
		{
			name:  "term not offered",
			offer: newOffer(withTerms(6, 12)),
			want:  false,
		},
		{
			name:  "amount above remaining capacity",
			offer: newOffer(withAvailable(40000)),
			want:  false,
		},
		{
			name: "amount below offer minimum",
			offer: newOffer(func(o *model.LoanOffer) {
				o.MinLoanPrincipalAmount = decimal.NewFromInt(60000)
			}),
			want: false,
		},
		{
			name: "expired offer",
			offer: newOffer(func(o *model.LoanOffer) {
				o.ExpiresAt = testAsOf.Add(-time.Minute)
			}),
			want: false,
		},
		{
			name:  "closed offer",
			offer: newOffer(func(o *model.LoanOffer) { o.Status = model.OfferStatusClosed }),
			want:  false,
		},
		{
			name:     "borrower fixed duration overrides application term",
			offer:    newOffer(withTerms(6, 12)),
			borrower: &model.BorrowerCriteria{FixedDuration: intp(12)},
			want:     true,
		},
		{
			name:     "borrower rate ceiling overrides application ceiling",
			offer:    newOffer(withRate("8")),
			borrower: &model.BorrowerCriteria{MaxInterestRate: decp("7")},
			want:     false,
		},
		{
			name:     "borrower fixed principal overrides application amount",
			offer:    newOffer(withAvailable(40000)),
			borrower: &model.BorrowerCriteria{FixedPrincipalAmount: decp("30000")},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := offerCompatible(app, tt.offer, tt.borrower, testAsOf)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRankOffers(t *testing.T) {
	cheap := newOffer(withRate("6"))
	flexible := newOffer(withRate("7"), withTerms(6, 12, 24, 36, 48))
	rigid := newOffer(withRate("7"), withTerms(24))
	deep := newOffer(withRate("7"), withTerms(12, 24), withAvailable(200000))
	shallow := newOffer(withRate("7"), withTerms(12, 24), withAvailable(80000))

	offers := []*model.LoanOffer{rigid, shallow, deep, flexible, cheap}
	rankOffers(offers, false)

	// Rate ascending first, then term flexibility, then remaining capacity.
	assert.Equal(t, cheap.ID, offers[0].ID)
	assert.Equal(t, flexible.ID, offers[1].ID)
	assert.Equal(t, deep.ID, offers[2].ID)
	assert.Equal(t, shallow.ID, offers[3].ID)
	assert.Equal(t, rigid.ID, offers[4].ID)
}

func TestRankOffersPreferInstitutional(t *testing.T) {
	individualCheap := newOffer(withRate("5"))
	institutional := newOffer(withRate("9"), withInstitutional())

	offers := []*model.LoanOffer{individualCheap, institutional}

	rankOffers(offers, true)
	assert.Equal(t, institutional.ID, offers[0].ID, "institutional first when preferred, regardless of rate")

	rankOffers(offers, false)
	assert.Equal(t, individualCheap.ID, offers[0].ID, "rate wins when no preference")
}

func TestRankOffersMinLoanAmountTieBreak(t *testing.T) {
	lowEntry := newOffer(func(o *model.LoanOffer) {
		o.MinLoanPrincipalAmount = decimal.NewFromInt(500)
	})
	highEntry := newOffer(func(o *model.LoanOffer) {
		o.MinLoanPrincipalAmount = decimal.NewFromInt(5000)
	})

	offers := []*model.LoanOffer{highEntry, lowEntry}
	rankOffers(offers, false)
	assert.Equal(t, lowEntry.ID, offers[0].ID)
}

func TestDescribeCriteria(t *testing.T) {
	assert.Equal(t, "no criteria", describeCriteria(nil, nil))

	lender := &model.LenderCriteria{
		DurationOptions:   []int{12, 24},
		FixedInterestRate: decp("7.5"),
	}
	borrower := &model.BorrowerCriteria{
		FixedDuration:              intp(24),
		PreferInstitutionalLenders: true,
	}

	got := describeCriteria(lender, borrower)
	assert.Contains(t, got, "borrower: duration=24, preferInstitutional")
	assert.Contains(t, got, "lender: durations=[12 24], rate=7.5")
}
