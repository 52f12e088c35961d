package matching

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlend/lendmatch/internal/lending/model"
	"github.com/openlend/lendmatch/internal/lending/repository"
)

var testAsOf = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// seq spaces CreatedAt/AppliedAt so list ordering is deterministic.
var seq int

func nextInstant() time.Time {
	seq++
	return testAsOf.Add(time.Duration(-1000+seq) * time.Second)
}

func newOffer(mutate ...func(*model.LoanOffer)) *model.LoanOffer {
	o := &model.LoanOffer{
		ID:                       uuid.New(),
		LenderID:                 uuid.New(),
		LenderType:               model.LenderTypeIndividual,
		PrincipalCurrency:        "USDT",
		CollateralCurrency:       "BTC",
		OfferedPrincipalAmount:   decimal.NewFromInt(100000),
		AvailablePrincipalAmount: decimal.NewFromInt(100000),
		MinLoanPrincipalAmount:   decimal.NewFromInt(1000),
		MaxLoanPrincipalAmount:   decimal.NewFromInt(100000),
		InterestRate:             decimal.NewFromFloat(8.0),
		TermMonthsOptions:        []int{12, 24, 36},
		Status:                   model.OfferStatusPublished,
		CreatedAt:                nextInstant(),
	}
	for _, m := range mutate {
		m(o)
	}
	return o
}

func newApplication(mutate ...func(*model.LoanApplication)) *model.LoanApplication {
	a := &model.LoanApplication{
		ID:                 uuid.New(),
		BorrowerID:         uuid.New(),
		PrincipalAmount:    decimal.NewFromInt(50000),
		MaxInterestRate:    decimal.NewFromInt(10),
		TermMonths:         24,
		PrincipalCurrency:  "USDT",
		CollateralCurrency: "BTC",
		Status:             model.ApplicationStatusPublished,
		AppliedAt:          nextInstant(),
	}
	for _, m := range mutate {
		m(a)
	}
	return a
}

func seedRepo(offers []*model.LoanOffer, apps []*model.LoanApplication) *repository.InMemoryRepository {
	repo := repository.NewInMemoryRepository()
	for _, o := range offers {
		repo.PutOffer(o)
	}
	for _, a := range apps {
		repo.PutApplication(a)
	}
	return repo
}

func withRate(rate string) func(*model.LoanOffer) {
	return func(o *model.LoanOffer) { o.InterestRate = decimal.RequireFromString(rate) }
}

func withTerms(terms ...int) func(*model.LoanOffer) {
	return func(o *model.LoanOffer) { o.TermMonthsOptions = terms }
}

func withAvailable(amount int64) func(*model.LoanOffer) {
	return func(o *model.LoanOffer) {
		o.AvailablePrincipalAmount = decimal.NewFromInt(amount)
		o.OfferedPrincipalAmount = decimal.NewFromInt(amount)
	}
}

func withInstitutional() func(*model.LoanOffer) {
	return func(o *model.LoanOffer) { o.LenderType = model.LenderTypeInstitutional }
}

func decp(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intp(i int) *int { return &i }
