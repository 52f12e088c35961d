package matching

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/openlend/lendmatch/internal/lending/model"
	"github.com/openlend/lendmatch/internal/lending/repository"
	"github.com/openlend/lendmatch/pkg/metrics"
)

// Notifier receives the two logical events emitted on every successful
// origination. Delivery is fire-and-forget relative to the transaction; a
// failure is logged by the engine and never rolls back a match.
type Notifier interface {
	OfferMatched(ctx context.Context, offerID, applicationID uuid.UUID) error
	ApplicationMatched(ctx context.Context, applicationID, offerID uuid.UUID) error
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) OfferMatched(ctx context.Context, offerID, applicationID uuid.UUID) error {
	return nil
}

func (NopNotifier) ApplicationMatched(ctx context.Context, applicationID, offerID uuid.UUID) error {
	return nil
}

// Config carries the engine-wide defaults applied when a run config leaves
// them unset.
type Config struct {
	BatchSize         int
	MaxTotalProcessed int
	// DefaultLTVRatio is the collateral coverage ratio (percent) locked in
	// at origination until a valuation collaborator supplies a live one.
	DefaultLTVRatio decimal.Decimal
	// OriginationFeeRate is the percentage fee applied to the principal.
	OriginationFeeRate decimal.Decimal
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:          50,
		MaxTotalProcessed:  1000,
		DefaultLTVRatio:    decimal.NewFromInt(60),
		OriginationFeeRate: decimal.NewFromFloat(1.0),
	}
}

// RunConfig parameterizes one orchestrator invocation.
type RunConfig struct {
	AsOf                time.Time
	BatchSize           int
	MaxTotalProcessed   int
	TargetApplicationID *uuid.UUID
	TargetOfferID       *uuid.UUID
	Lender              *model.LenderCriteria
	Borrower            *model.BorrowerCriteria
	// Trigger labels the run source for metrics (periodic, application,
	// offer, sweep, api). It has no effect on matching.
	Trigger string
	// Strategy optionally forces a strategy kind; empty means auto-select.
	Strategy StrategyKind
}

// Validate rejects malformed run configs before a run starts. This is the
// only error surfaced synchronously to the caller of Run.
func (c *RunConfig) Validate() error {
	if c.BatchSize < 0 {
		return model.NewValidationError("batch_size", "must not be negative")
	}
	if c.MaxTotalProcessed < 0 {
		return model.NewValidationError("max_total_processed", "must not be negative")
	}
	if err := c.Lender.Validate(); err != nil {
		return err
	}
	return c.Borrower.Validate()
}

// Engine is the match orchestrator: it pulls bounded batches of published
// applications, ranks compatible offers through the selected strategy, and
// drives the atomic origination transaction per match. Errors inside the
// per-application loop are counted, never propagated.
type Engine struct {
	repo     repository.Repository
	selector *Selector
	notifier Notifier
	logger   *zap.Logger
	cfg      Config
}

// NewEngine creates a match orchestrator.
func NewEngine(repo repository.Repository, notifier Notifier, logger *zap.Logger, cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxTotalProcessed <= 0 {
		cfg.MaxTotalProcessed = DefaultConfig().MaxTotalProcessed
	}
	if cfg.DefaultLTVRatio.IsZero() {
		cfg.DefaultLTVRatio = DefaultConfig().DefaultLTVRatio
	}
	if cfg.OriginationFeeRate.IsZero() {
		cfg.OriginationFeeRate = DefaultConfig().OriginationFeeRate
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		repo:     repo,
		selector: NewSelector(repo),
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run executes one matching run and returns its summary. Only pre-run
// validation errors are returned; per-application failures are recorded in
// the summary and the batch continues.
func (e *Engine) Run(ctx context.Context, rc RunConfig) (*model.RunSummary, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	var forced Strategy
	if rc.Strategy != "" {
		s, err := e.selector.SelectKind(rc.Strategy, e.options(rc))
		if err != nil {
			return nil, err
		}
		forced = s
	}

	if rc.AsOf.IsZero() {
		rc.AsOf = time.Now()
	}
	if rc.BatchSize == 0 {
		rc.BatchSize = e.cfg.BatchSize
	}
	if rc.MaxTotalProcessed == 0 {
		rc.MaxTotalProcessed = e.cfg.MaxTotalProcessed
	}
	if rc.BatchSize > rc.MaxTotalProcessed {
		rc.BatchSize = rc.MaxTotalProcessed
	}
	if rc.Trigger == "" {
		rc.Trigger = "api"
	}

	summary := &model.RunSummary{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}
	defer func() {
		summary.Duration = time.Since(summary.StartedAt)
		metrics.MatchingRuns.WithLabelValues(rc.Trigger).Inc()
		metrics.RunDuration.Observe(summary.Duration.Seconds())
	}()

	e.logger.Info("matching run started",
		zap.String("run_id", summary.RunID.String()),
		zap.String("trigger", rc.Trigger),
		zap.Time("as_of", rc.AsOf))

	if rc.TargetOfferID != nil {
		e.runTargetOffer(ctx, rc, summary)
	} else {
		e.runApplications(ctx, rc, summary, forced)
	}

	e.logger.Info("matching run finished",
		zap.String("run_id", summary.RunID.String()),
		zap.Int("processed_applications", summary.ProcessedApplications),
		zap.Int("processed_offers", summary.ProcessedOffers),
		zap.Int("matched_pairs", summary.MatchedPairs),
		zap.Int("error_count", summary.ErrorCount),
		zap.Bool("has_more", summary.HasMore),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// options builds the strategy options for a run config.
func (e *Engine) options(rc RunConfig) StrategyOptions {
	return StrategyOptions{
		TargetOfferID:       rc.TargetOfferID,
		TargetApplicationID: rc.TargetApplicationID,
		Lender:              rc.Lender,
		Borrower:            rc.Borrower,
		AsOf:                rc.AsOf,
	}
}

// runApplications drives the normal direction: applications against ranked
// offers, oldest application first. A non-nil forced strategy overrides the
// per-application auto-selection.
func (e *Engine) runApplications(ctx context.Context, rc RunConfig, summary *model.RunSummary, forced Strategy) {
	apps, hasMore, err := e.fetchApplications(ctx, rc)
	if err != nil {
		summary.RecordError(rc.TargetApplicationID, nil, err)
		metrics.RunErrors.WithLabelValues(model.ErrorKind(err)).Inc()
		return
	}
	summary.HasMore = hasMore

	opts := e.options(rc)
	for _, app := range apps {
		summary.ProcessedApplications++

		strategy, kind := forced, rc.Strategy
		if strategy == nil {
			strategy, kind = e.selector.Select(opts)
		}
		e.logger.Debug("strategy selected",
			zap.String("application_id", app.ID.String()),
			zap.String("strategy", string(kind)),
			zap.String("criteria", strategy.Describe(opts)))

		candidates, err := strategy.FindCompatibleOffers(ctx, app, opts)
		if err != nil {
			e.recordAppError(summary, app.ID, nil, err)
			continue
		}
		summary.ProcessedOffers += len(candidates)
		if len(candidates) == 0 {
			continue
		}

		e.originateBest(ctx, rc, summary, app, candidates)
	}
}

// runTargetOffer drives the inverse direction: one just-published offer
// fanned out against every compatible application.
func (e *Engine) runTargetOffer(ctx context.Context, rc RunConfig, summary *model.RunSummary) {
	opts := e.options(rc)

	offer, apps, err := e.selector.Targeted().FindCompatibleApplications(ctx, *rc.TargetOfferID, opts)
	if err != nil {
		summary.RecordError(nil, rc.TargetOfferID, err)
		metrics.RunErrors.WithLabelValues(model.ErrorKind(err)).Inc()
		return
	}
	summary.ProcessedOffers = 1

	bound := rc.MaxTotalProcessed
	for _, app := range apps {
		if summary.ProcessedApplications >= bound {
			summary.HasMore = true
			break
		}
		summary.ProcessedApplications++

		loan, err := e.repo.Originate(ctx, e.originationRequest(rc, offer, app))
		if err != nil {
			// On conflict the offer's remaining capacity may still cover
			// later, smaller applications; keep going either way.
			e.recordAppError(summary, app.ID, &offer.ID, err)
			continue
		}
		e.recordMatch(ctx, summary, loan)
	}
}

// fetchApplications loads the batch for this run: the single targeted
// application, or up to batch-size published applications oldest first. The
// extra row beyond the batch bound only signals has-more.
func (e *Engine) fetchApplications(ctx context.Context, rc RunConfig) ([]*model.LoanApplication, bool, error) {
	if rc.TargetApplicationID != nil {
		app, err := e.repo.GetApplication(ctx, *rc.TargetApplicationID)
		if err != nil {
			return nil, false, err
		}
		if !app.Matchable(rc.AsOf) {
			return nil, false, nil
		}
		return []*model.LoanApplication{app}, false, nil
	}

	limit := rc.BatchSize
	if limit > rc.MaxTotalProcessed {
		limit = rc.MaxTotalProcessed
	}
	apps, err := e.repo.ListPublishedApplications(ctx, repository.ApplicationFilter{
		AsOf:  rc.AsOf,
		Limit: limit + 1,
	})
	if err != nil {
		return nil, false, err
	}
	if len(apps) > limit {
		return apps[:limit], true, nil
	}
	return apps, false, nil
}

// originateBest walks the ranked candidate list and attempts origination,
// moving to the next candidate when a capacity race yields a conflict.
func (e *Engine) originateBest(ctx context.Context, rc RunConfig, summary *model.RunSummary, app *model.LoanApplication, candidates []*model.LoanOffer) {
	for _, offer := range candidates {
		loan, err := e.repo.Originate(ctx, e.originationRequest(rc, offer, app))
		if err == nil {
			e.recordMatch(ctx, summary, loan)
			return
		}
		if errors.Is(err, model.ErrConflict) {
			e.logger.Debug("origination conflict, trying next candidate",
				zap.String("application_id", app.ID.String()),
				zap.String("offer_id", offer.ID.String()))
			continue
		}
		e.recordAppError(summary, app.ID, &offer.ID, err)
		return
	}
	// Every candidate was consumed by concurrent runs; the application will
	// be retried naturally on the next run.
	e.logger.Debug("all candidates conflicted",
		zap.String("application_id", app.ID.String()),
		zap.Int("candidates", len(candidates)))
}

func (e *Engine) recordMatch(ctx context.Context, summary *model.RunSummary, loan *model.Loan) {
	summary.MatchedPairs++
	metrics.MatchedPairs.Inc()

	if err := e.notifier.OfferMatched(ctx, loan.OfferID, loan.ApplicationID); err != nil {
		e.logger.Warn("offer matched notification failed",
			zap.String("offer_id", loan.OfferID.String()),
			zap.Error(err))
	}
	if err := e.notifier.ApplicationMatched(ctx, loan.ApplicationID, loan.OfferID); err != nil {
		e.logger.Warn("application matched notification failed",
			zap.String("application_id", loan.ApplicationID.String()),
			zap.Error(err))
	}
}

func (e *Engine) recordAppError(summary *model.RunSummary, appID uuid.UUID, offerID *uuid.UUID, err error) {
	summary.RecordError(&appID, offerID, err)
	metrics.RunErrors.WithLabelValues(model.ErrorKind(err)).Inc()
	e.logger.Warn("application not matched",
		zap.String("application_id", appID.String()),
		zap.String("kind", model.ErrorKind(err)),
		zap.Error(err))
}

// originationRequest assembles the transaction input for one candidate pair.
// Borrower overlays override the application's own term and amount, so the
// transaction re-verifies against the values the match was admitted on.
func (e *Engine) originationRequest(rc RunConfig, offer *model.LoanOffer, app *model.LoanApplication) repository.OriginationRequest {
	term := app.TermMonths
	principal := app.PrincipalAmount
	if rc.Borrower != nil {
		if rc.Borrower.FixedDuration != nil {
			term = *rc.Borrower.FixedDuration
		}
		if rc.Borrower.FixedPrincipalAmount != nil {
			principal = *rc.Borrower.FixedPrincipalAmount
		}
	}
	return repository.OriginationRequest{
		OfferID:                   offer.ID,
		ApplicationID:             app.ID,
		TermMonths:                term,
		PrincipalAmount:           principal,
		MatchedLTVRatio:           e.cfg.DefaultLTVRatio,
		CollateralValuationAmount: e.collateralValuation(principal),
		OriginationFeeRate:        e.cfg.OriginationFeeRate,
		AsOf:                      rc.AsOf,
	}
}

// collateralValuation derives the collateral value implied by the default
// LTV ratio: principal / (ltv/100).
func (e *Engine) collateralValuation(principal decimal.Decimal) decimal.Decimal {
	if e.cfg.DefaultLTVRatio.IsZero() {
		return decimal.Zero
	}
	return principal.
		Mul(decimal.NewFromInt(100)).
		Div(e.cfg.DefaultLTVRatio).
		Round(8)
}
