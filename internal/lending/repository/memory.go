package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/openlend/lendmatch/internal/lending/model"
)

// InMemoryRepository is a mutex-guarded implementation used in tests and
// local development. Its Originate honors the same conflict semantics as the
// GORM implementation: the whole check-and-reserve step runs under one lock.
type InMemoryRepository struct {
	offers       map[uuid.UUID]*model.LoanOffer
	applications map[uuid.UUID]*model.LoanApplication
	loans        map[uuid.UUID]*model.Loan
	matches      map[uuid.UUID]*model.MatchResult
	mu           sync.RWMutex
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		offers:       make(map[uuid.UUID]*model.LoanOffer),
		applications: make(map[uuid.UUID]*model.LoanApplication),
		loans:        make(map[uuid.UUID]*model.Loan),
		matches:      make(map[uuid.UUID]*model.MatchResult),
	}
}

// PutOffer stores or replaces an offer.
func (r *InMemoryRepository) PutOffer(offer *model.LoanOffer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *offer
	r.offers[offer.ID] = &cp
}

// PutApplication stores or replaces an application.
func (r *InMemoryRepository) PutApplication(app *model.LoanApplication) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *app
	r.applications[app.ID] = &cp
}

func (r *InMemoryRepository) ListPublishedOffers(ctx context.Context, filter OfferFilter) ([]*model.LoanOffer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*model.LoanOffer
	for _, o := range r.offers {
		if !o.Matchable(filter.AsOf) {
			continue
		}
		if filter.PrincipalCurrency != "" && o.PrincipalCurrency != filter.PrincipalCurrency {
			continue
		}
		if filter.CollateralCurrency != "" && o.CollateralCurrency != filter.CollateralCurrency {
			continue
		}
		cp := *o
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemoryRepository) ListPublishedApplications(ctx context.Context, filter ApplicationFilter) ([]*model.LoanApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*model.LoanApplication
	for _, a := range r.applications {
		if !a.Matchable(filter.AsOf) {
			continue
		}
		if filter.PrincipalCurrency != "" && a.PrincipalCurrency != filter.PrincipalCurrency {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AppliedAt.Before(result[j].AppliedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *InMemoryRepository) GetOffer(ctx context.Context, id uuid.UUID) (*model.LoanOffer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.offers[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *InMemoryRepository) GetApplication(ctx context.Context, id uuid.UUID) (*model.LoanApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.applications[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// GetLoan returns an originated loan by id.
func (r *InMemoryRepository) GetLoan(ctx context.Context, id uuid.UUID) (*model.Loan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.loans[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// MatchResults returns all recorded match results, for test assertions.
func (r *InMemoryRepository) MatchResults() []*model.MatchResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.MatchResult, 0, len(r.matches))
	for _, m := range r.matches {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

func (r *InMemoryRepository) Originate(ctx context.Context, req OriginationRequest) (*model.Loan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offer, ok := r.offers[req.OfferID]
	if !ok {
		return nil, model.ErrNotFound
	}
	app, ok := r.applications[req.ApplicationID]
	if !ok {
		return nil, model.ErrNotFound
	}

	term := req.TermMonths
	if term == 0 {
		term = app.TermMonths
	}
	principal := req.PrincipalAmount
	if principal.IsZero() {
		principal = app.PrincipalAmount
	}

	// Re-verify invariants at transaction time.
	if !offer.Matchable(req.AsOf) || !app.Matchable(req.AsOf) {
		return nil, model.ErrConflict
	}
	if !offer.AcceptsTerm(term) {
		return nil, model.ErrConflict
	}
	if err := offer.Reserve(principal, req.AsOf); err != nil {
		return nil, err
	}
	app.MarkMatched(offer.ID, req.MatchedLTVRatio, req.AsOf)

	terms := model.ComputeLoanTerms(principal, offer.InterestRate, req.OriginationFeeRate, term, req.AsOf)

	loan := &model.Loan{
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
	r.loans[loan.ID] = loan

	r.matches[loan.ID] = &model.MatchResult{
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

	return loan, nil
}
