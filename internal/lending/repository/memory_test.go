package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlend/lendmatch/internal/lending/model"
)

var repoAsOf = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func publishedOffer(available int64) *model.LoanOffer {
	return &model.LoanOffer{
		ID:                       uuid.New(),
		LenderID:                 uuid.New(),
		LenderType:               model.LenderTypeIndividual,
		PrincipalCurrency:        "USDT",
		CollateralCurrency:       "BTC",
		OfferedPrincipalAmount:   decimal.NewFromInt(available),
		AvailablePrincipalAmount: decimal.NewFromInt(available),
		MinLoanPrincipalAmount:   decimal.NewFromInt(1000),
		MaxLoanPrincipalAmount:   decimal.NewFromInt(available),
		InterestRate:             decimal.NewFromFloat(8.0),
		TermMonthsOptions:        []int{12, 24},
		Status:                   model.OfferStatusPublished,
	}
}

func publishedApplication(principal int64) *model.LoanApplication {
	return &model.LoanApplication{
		ID:                 uuid.New(),
		BorrowerID:         uuid.New(),
		PrincipalAmount:    decimal.NewFromInt(principal),
		MaxInterestRate:    decimal.NewFromInt(10),
		TermMonths:         24,
		PrincipalCurrency:  "USDT",
		CollateralCurrency: "BTC",
		Status:             model.ApplicationStatusPublished,
		AppliedAt:          repoAsOf.Add(-time.Hour),
	}
}

func originationRequest(offerID, appID uuid.UUID) OriginationRequest {
	return OriginationRequest{
		OfferID:                   offerID,
		ApplicationID:             appID,
		MatchedLTVRatio:           decimal.NewFromInt(60),
		CollateralValuationAmount: decimal.NewFromInt(100000),
		OriginationFeeRate:        decimal.NewFromFloat(1.0),
		AsOf:                      repoAsOf,
	}
}

func TestInMemoryOriginate(t *testing.T) {
	repo := NewInMemoryRepository()
	offer := publishedOffer(100000)
	app := publishedApplication(50000)
	repo.PutOffer(offer)
	repo.PutApplication(app)

	loan, err := repo.Originate(context.Background(), originationRequest(offer.ID, app.ID))
	require.NoError(t, err)
	assert.True(t, loan.PrincipalAmount.Equal(decimal.NewFromInt(50000)))
	assert.True(t, loan.InterestAmount.Equal(decimal.NewFromInt(8000)))
	assert.True(t, loan.TotalRepaymentAmount.Equal(decimal.NewFromInt(58500)))
	assert.Equal(t, model.LoanStatusActive, loan.Status)

	gotOffer, err := repo.GetOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.True(t, gotOffer.AvailablePrincipalAmount.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, int64(1), gotOffer.Version)

	gotApp, err := repo.GetApplication(context.Background(), app.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ApplicationStatusMatched, gotApp.Status)

	// A matched application cannot be originated again.
	_, err = repo.Originate(context.Background(), originationRequest(offer.ID, app.ID))
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestInMemoryOriginateUnknownEntities(t *testing.T) {
	repo := NewInMemoryRepository()
	offer := publishedOffer(100000)
	repo.PutOffer(offer)

	_, err := repo.Originate(context.Background(), originationRequest(offer.ID, uuid.New()))
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = repo.Originate(context.Background(), originationRequest(uuid.New(), uuid.New()))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestInMemoryOriginateMatchedTermAndPrincipal(t *testing.T) {
	repo := NewInMemoryRepository()
	offer := publishedOffer(100000)
	offer.TermMonthsOptions = []int{12}
	app := publishedApplication(50000) // asks for 24 months
	repo.PutOffer(offer)
	repo.PutApplication(app)

	req := originationRequest(offer.ID, app.ID)
	req.TermMonths = 12
	req.PrincipalAmount = decimal.NewFromInt(30000)

	loan, err := repo.Originate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 12, loan.TermMonths)
	assert.True(t, loan.PrincipalAmount.Equal(decimal.NewFromInt(30000)))
	assert.True(t, loan.InterestAmount.Equal(decimal.NewFromInt(2400)))
	assert.Equal(t, repoAsOf.AddDate(0, 12, 0), loan.MaturityDate)

	gotOffer, err := repo.GetOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.True(t, gotOffer.AvailablePrincipalAmount.Equal(decimal.NewFromInt(70000)))
}

func TestInMemoryOriginateTermMismatchConflicts(t *testing.T) {
	repo := NewInMemoryRepository()
	offer := publishedOffer(100000)
	offer.TermMonthsOptions = []int{12}
	app := publishedApplication(50000) // 24 months
	repo.PutOffer(offer)
	repo.PutApplication(app)

	_, err := repo.Originate(context.Background(), originationRequest(offer.ID, app.ID))
	assert.ErrorIs(t, err, model.ErrConflict)
}

// Two concurrent originations against one offer with capacity for a single
// loan: exactly one must win, and the offer must never overcommit.
func TestInMemoryOriginateConcurrentCapacityRace(t *testing.T) {
	repo := NewInMemoryRepository()
	offer := publishedOffer(50000)
	appA := publishedApplication(50000)
	appB := publishedApplication(50000)
	repo.PutOffer(offer)
	repo.PutApplication(appA)
	repo.PutApplication(appB)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, appID := range []uuid.UUID{appA.ID, appB.ID} {
		wg.Add(1)
		go func(i int, appID uuid.UUID) {
			defer wg.Done()
			_, errs[i] = repo.Originate(context.Background(), originationRequest(offer.ID, appID))
		}(i, appID)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, model.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	gotOffer, err := repo.GetOffer(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.True(t, gotOffer.AvailablePrincipalAmount.IsZero(),
		"available: got %s", gotOffer.AvailablePrincipalAmount)
	assert.Len(t, repo.MatchResults(), 1)
}

func TestInMemoryListPublishedApplicationsOrderAndLimit(t *testing.T) {
	repo := NewInMemoryRepository()
	older := publishedApplication(1000)
	older.AppliedAt = repoAsOf.Add(-2 * time.Hour)
	newer := publishedApplication(1000)
	newer.AppliedAt = repoAsOf.Add(-time.Hour)
	matched := publishedApplication(1000)
	matched.Status = model.ApplicationStatusMatched
	repo.PutApplication(newer)
	repo.PutApplication(older)
	repo.PutApplication(matched)

	apps, err := repo.ListPublishedApplications(context.Background(), ApplicationFilter{AsOf: repoAsOf})
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, older.ID, apps[0].ID)
	assert.Equal(t, newer.ID, apps[1].ID)

	apps, err = repo.ListPublishedApplications(context.Background(), ApplicationFilter{AsOf: repoAsOf, Limit: 1})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, older.ID, apps[0].ID)
}

func TestInMemoryListExcludesExpired(t *testing.T) {
	repo := NewInMemoryRepository()
	fresh := publishedOffer(10000)
	fresh.ExpiresAt = repoAsOf.Add(time.Hour)
	expired := publishedOffer(10000)
	expired.ExpiresAt = repoAsOf.Add(-time.Hour)
	forever := publishedOffer(10000) // zero expiry never expires
	repo.PutOffer(fresh)
	repo.PutOffer(expired)
	repo.PutOffer(forever)

	offers, err := repo.ListPublishedOffers(context.Background(), OfferFilter{AsOf: repoAsOf})
	require.NoError(t, err)
	assert.Len(t, offers, 2)
	for _, o := range offers {
		assert.NotEqual(t, expired.ID, o.ID)
	}
}
