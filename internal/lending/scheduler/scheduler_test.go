package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openlend/lendmatch/internal/lending/matching"
	"github.com/openlend/lendmatch/internal/lending/model"
	"github.com/openlend/lendmatch/internal/lending/repository"
	"github.com/openlend/lendmatch/internal/matchqueue"
)

func newSchedulerHarness(t *testing.T, cfg Config) (*Scheduler, *repository.InMemoryRepository, *matchqueue.BadgerQueue) {
	t.Helper()
	queue, err := matchqueue.NewBadgerQueue(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Shutdown(context.Background()) })

	repo := repository.NewInMemoryRepository()
	engine := matching.NewEngine(repo, matching.NopNotifier{}, zap.NewNop(), matching.DefaultConfig())

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	return New(cfg, queue, engine, zap.NewNop()), repo, queue
}

func seedMatchablePair(repo *repository.InMemoryRepository) (*model.LoanOffer, *model.LoanApplication) {
	offer := &model.LoanOffer{
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
		TermMonthsOptions:        []int{12, 24},
		Status:                   model.OfferStatusPublished,
	}
	app := &model.LoanApplication{
		ID:                 uuid.New(),
		BorrowerID:         uuid.New(),
		PrincipalAmount:    decimal.NewFromInt(50000),
		MaxInterestRate:    decimal.NewFromInt(10),
		TermMonths:         24,
		PrincipalCurrency:  "USDT",
		CollateralCurrency: "BTC",
		Status:             model.ApplicationStatusPublished,
		AppliedAt:          time.Now().Add(-time.Hour),
	}
	repo.PutOffer(offer)
	repo.PutApplication(app)
	return offer, app
}

func TestSchedulerProcessesApplicationTrigger(t *testing.T) {
	sched, repo, _ := newSchedulerHarness(t, Config{})
	_, app := seedMatchablePair(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.Start(ctx))
	defer sched.Stop()

	sched.ApplicationPublished(ctx, app.ID)

	require.Eventually(t, func() bool {
		got, err := repo.GetApplication(ctx, app.ID)
		return err == nil && got.Status == model.ApplicationStatusMatched
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerProcessesOfferTrigger(t *testing.T) {
	sched, repo, _ := newSchedulerHarness(t, Config{})
	offer, app := seedMatchablePair(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.Start(ctx))
	defer sched.Stop()

	sched.OfferPublished(ctx, offer.ID)

	require.Eventually(t, func() bool {
		got, err := repo.GetApplication(ctx, app.ID)
		return err == nil && got.Status == model.ApplicationStatusMatched
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerRunOnInitDrainsQueue(t *testing.T) {
	sched, repo, _ := newSchedulerHarness(t, Config{RunOnInit: true})
	_, app := seedMatchablePair(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.Start(ctx))
	defer sched.Stop()

	require.Eventually(t, func() bool {
		got, err := repo.GetApplication(ctx, app.ID)
		return err == nil && got.Status == model.ApplicationStatusMatched
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerCoalescesRepeatTriggers(t *testing.T) {
	sched, _, queue := newSchedulerHarness(t, Config{CoalesceWindow: time.Minute})
	ctx := context.Background()

	// Not started: tasks stay in the queue so they can be counted.
	appID := uuid.New()
	sched.ApplicationPublished(ctx, appID)
	sched.ApplicationPublished(ctx, appID)
	sched.ApplicationPublished(ctx, appID)
	sched.ApplicationPublished(ctx, uuid.New())
	sched.RequestSweep(ctx, nil, nil)
	sched.RequestSweep(ctx, nil, nil)

	tasks, err := queue.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)
}

func TestSchedulerSweepCarriesCriteria(t *testing.T) {
	sched, _, queue := newSchedulerHarness(t, Config{CoalesceWindow: time.Minute})
	ctx := context.Background()

	rate := decimal.NewFromFloat(7.5)
	sched.RequestSweep(ctx, &model.LenderCriteria{FixedInterestRate: &rate}, nil)

	tasks, err := queue.ReplayPending(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].Lender)
	require.NotNil(t, tasks[0].Lender.FixedInterestRate)
	assert.True(t, tasks[0].Lender.FixedInterestRate.Equal(rate))
	assert.Nil(t, tasks[0].Borrower)
}

func TestSchedulerPeriodicTicker(t *testing.T) {
	sched, repo, _ := newSchedulerHarness(t, Config{Interval: 50 * time.Millisecond})
	_, app := seedMatchablePair(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.Start(ctx))
	defer sched.Stop()

	require.Eventually(t, func() bool {
		got, err := repo.GetApplication(ctx, app.ID)
		return err == nil && got.Status == model.ApplicationStatusMatched
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	sched, _, _ := newSchedulerHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.Start(ctx))
	sched.Stop()
	sched.Stop()
}
