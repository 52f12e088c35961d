package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/openlend/lendmatch/internal/lending/model"
)

const offerCacheTTL = 5 * time.Second

// GormRepository implements Repository on a relational store. The optional
// Redis client caches published-offer listings for the few seconds between a
// publish event and the targeted run it triggers; all cached reads are
// advisory only, the origination transaction always goes to the database.
type GormRepository struct {
	db     *gorm.DB
	cache  *redis.Client
	logger *zap.Logger
}

// NewGormRepository creates a repository backed by the given gorm DB. cache
// may be nil to disable the offer read-cache.
func NewGormRepository(db *gorm.DB, cache *redis.Client, logger *zap.Logger) *GormRepository {
	return &GormRepository{db: db, cache: cache, logger: logger}
}

// AutoMigrate creates or updates the matcher's tables.
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&loanOfferRow{}, &loanApplicationRow{}, &loanRow{}, &matchResultRow{})
}

// CreateOffer persists a new offer. Used by fixtures and the lender flow's
// storage adapter.
func (r *GormRepository) CreateOffer(ctx context.Context, offer *model.LoanOffer) error {
	if err := r.db.WithContext(ctx).Create(offerRowFromDomain(offer)).Error; err != nil {
		return fmt.Errorf("%w: create offer: %v", model.ErrRepository, err)
	}
	r.invalidateOfferCache(ctx, offer.PrincipalCurrency, offer.CollateralCurrency)
	return nil
}

// CreateApplication persists a new application.
func (r *GormRepository) CreateApplication(ctx context.Context, app *model.LoanApplication) error {
	if err := r.db.WithContext(ctx).Create(applicationRowFromDomain(app)).Error; err != nil {
		return fmt.Errorf("%w: create application: %v", model.ErrRepository, err)
	}
	return nil
}

func offerCacheKey(filter OfferFilter) string {
	return fmt.Sprintf("lendmatch:offers:%s:%s", filter.PrincipalCurrency, filter.CollateralCurrency)
}

func (r *GormRepository) ListPublishedOffers(ctx context.Context, filter OfferFilter) ([]*model.LoanOffer, error) {
	if cached := r.cachedOffers(ctx, filter); cached != nil {
		return cached, nil
	}

	q := r.db.WithContext(ctx).Where("status = ?", string(model.OfferStatusPublished))
	if filter.PrincipalCurrency != "" {
		q = q.Where("principal_currency = ?", filter.PrincipalCurrency)
	}
	if filter.CollateralCurrency != "" {
		q = q.Where("collateral_currency = ?", filter.CollateralCurrency)
	}
	if !filter.AsOf.IsZero() {
		// NULL expiry means the offer never expires.
		q = q.Where("(expires_at IS NULL OR expires_at > ?)", filter.AsOf)
	}

	var rows []loanOfferRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list offers: %v", model.ErrRepository, err)
	}

	offers := make([]*model.LoanOffer, len(rows))
	for i := range rows {
		offers[i] = rows[i].toDomain()
	}
	r.storeOfferCache(ctx, filter, offers)
	return offers, nil
}

func (r *GormRepository) cachedOffers(ctx context.Context, filter OfferFilter) []*model.LoanOffer {
	if r.cache == nil {
		return nil
	}
	raw, err := r.cache.Get(ctx, offerCacheKey(filter)).Bytes()
	if err != nil {
		return nil
	}
	var offers []*model.LoanOffer
	if err := json.Unmarshal(raw, &offers); err != nil {
		return nil
	}
	return offers
}

func (r *GormRepository) storeOfferCache(ctx context.Context, filter OfferFilter, offers []*model.LoanOffer) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(offers)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, offerCacheKey(filter), raw, offerCacheTTL).Err(); err != nil {
		r.logger.Debug("offer cache write failed", zap.Error(err))
	}
}

func (r *GormRepository) invalidateOfferCache(ctx context.Context, principalCurrency, collateralCurrency string) {
	if r.cache == nil {
		return
	}
	key := offerCacheKey(OfferFilter{PrincipalCurrency: principalCurrency, CollateralCurrency: collateralCurrency})
	if err := r.cache.Del(ctx, key).Err(); err != nil {
		r.logger.Debug("offer cache invalidation failed", zap.Error(err))
	}
}

func (r *GormRepository) ListPublishedApplications(ctx context.Context, filter ApplicationFilter) ([]*model.LoanApplication, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", string(model.ApplicationStatusPublished)).
		Order("applied_at asc")
	if filter.PrincipalCurrency != "" {
		q = q.Where("principal_currency = ?", filter.PrincipalCurrency)
	}
	if !filter.AsOf.IsZero() {
		q = q.Where("(expires_at IS NULL OR expires_at > ?)", filter.AsOf)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []loanApplicationRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: list applications: %v", model.ErrRepository, err)
	}

	apps := make([]*model.LoanApplication, len(rows))
	for i := range rows {
		apps[i] = rows[i].toDomain()
	}
	return apps, nil
}

func (r *GormRepository) GetOffer(ctx context.Context, id uuid.UUID) (*model.LoanOffer, error) {
	var row loanOfferRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get offer: %v", model.ErrRepository, err)
	}
	return row.toDomain(), nil
}

func (r *GormRepository) GetApplication(ctx context.Context, id uuid.UUID) (*model.LoanApplication, error) {
	var row loanApplicationRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get application: %v", model.ErrRepository, err)
	}
	return row.toDomain(), nil
}

// Originate runs the atomic reservation transaction: both rows are re-read
// under FOR UPDATE, invariants re-verified, the offer capacity decremented
// and the loan plus match result created. Any invariant failure aborts with
// model.ErrConflict and no mutation.
func (r *GormRepository) Originate(ctx context.Context, req OriginationRequest) (*model.Loan, error) {
	var loan *model.Loan

	// sqlite (the test driver) serializes writers on its own and rejects
	// FOR UPDATE syntax; every production dialect gets the row lock.
	lock := func(tx *gorm.DB) *gorm.DB {
		if tx.Dialector.Name() == "sqlite" {
			return tx
		}
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var offerRow loanOfferRow
		if err := lock(tx).
			First(&offerRow, "id = ?", req.OfferID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return fmt.Errorf("%w: lock offer: %v", model.ErrRepository, err)
		}

		var appRow loanApplicationRow
		if err := lock(tx).
			First(&appRow, "id = ?", req.ApplicationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return fmt.Errorf("%w: lock application: %v", model.ErrRepository, err)
		}

		offer := offerRow.toDomain()
		app := appRow.toDomain()

		term := req.TermMonths
		if term == 0 {
			term = app.TermMonths
		}
		principal := req.PrincipalAmount
		if principal.IsZero() {
			principal = app.PrincipalAmount
		}

		// Re-verify invariants now that both rows are locked.
		if !offer.Matchable(req.AsOf) || !app.Matchable(req.AsOf) {
			return model.ErrConflict
		}
		if !offer.AcceptsTerm(term) {
			return model.ErrConflict
		}
		if err := offer.Reserve(principal, req.AsOf); err != nil {
			return err
		}
		app.MarkMatched(offer.ID, req.MatchedLTVRatio, req.AsOf)

		// The version predicate guards against lost updates should the row
		// lock ever be weakened by a different isolation level.
		res := tx.Model(&loanOfferRow{}).
			Where("id = ? AND version = ?", offer.ID, offer.Version-1).
			Updates(map[string]interface{}{
				"available_principal_amount": offer.AvailablePrincipalAmount,
				"version":                    offer.Version,
				"updated_at":                 req.AsOf,
			})
		if res.Error != nil {
			return fmt.Errorf("%w: update offer: %v", model.ErrRepository, res.Error)
		}
		if res.RowsAffected == 0 {
			return model.ErrConflict
		}

		if err := tx.Model(&loanApplicationRow{}).
			Where("id = ?", app.ID).
			Updates(map[string]interface{}{
				"status":                string(model.ApplicationStatusMatched),
				"matched_loan_offer_id": offer.ID,
				"matched_ltv_ratio":     req.MatchedLTVRatio,
				"updated_at":            req.AsOf,
			}).Error; err != nil {
			return fmt.Errorf("%w: update application: %v", model.ErrRepository, err)
		}

		terms := model.ComputeLoanTerms(principal, offer.InterestRate, req.OriginationFeeRate, term, req.AsOf)

		loan = &model.Loan{
			ID:                        uuid.New(),
			OfferID:                   offer.ID,
			ApplicationID:             app.ID,
			BorrowerID:                app.BorrowerID,
			LenderID:                  offer.LenderID,
			PrincipalCurrency:         app.PrincipalCurrency,
			CollateralCurrency:        app.CollateralCurrency,
			PrincipalAmount:           principal,
			InterestRate:              offer.InterestRate,
			TermMonths:                term,
			InterestAmount:            terms.InterestAmount,
			OriginationFeeAmount:      terms.OriginationFeeAmount,
			TotalRepaymentAmount:      terms.TotalRepaymentAmount,
			LTVRatio:                  req.MatchedLTVRatio,
			CollateralValuationAmount: req.CollateralValuationAmount,
			MaturityDate:              terms.MaturityDate,
			Status:                    model.LoanStatusActive,
			OriginatedAt:              req.AsOf,
		}
		if err := tx.Create(loanRowFromDomain(loan)).Error; err != nil {
			return fmt.Errorf("%w: create loan: %v", model.ErrRepository, err)
		}

		match := &matchResultRow{
			ID:                               uuid.New(),
			ApplicationID:                    app.ID,
			OfferID:                          offer.ID,
			LoanID:                           loan.ID,
			MatchedLTVRatio:                  req.MatchedLTVRatio,
			MatchedCollateralValuationAmount: req.CollateralValuationAmount,
			InterestAmount:                   terms.InterestAmount,
			OriginationFeeAmount:             terms.OriginationFeeAmount,
			TotalRepaymentAmount:             terms.TotalRepaymentAmount,
			MaturityDate:                     terms.MaturityDate,
			CreatedAt:                        req.AsOf,
		}
		if err := tx.Create(match).Error; err != nil {
			return fmt.Errorf("%w: create match result: %v", model.ErrRepository, err)
		}

		r.invalidateOfferCache(ctx, offer.PrincipalCurrency, offer.CollateralCurrency)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("loan originated",
		zap.String("loan_id", loan.ID.String()),
		zap.String("offer_id", req.OfferID.String()),
		zap.String("application_id", req.ApplicationID.String()),
		zap.String("principal", loan.PrincipalAmount.String()))

	return loan, nil
}
