package model

import (
	"time"

	"github.com/google/uuid"
)

// RunError records one per-application failure inside a run, with enough
// context for operational triage.
type RunError struct {
	ApplicationID *uuid.UUID `json:"application_id,omitempty"`
	OfferID       *uuid.UUID `json:"offer_id,omitempty"`
	Kind          string     `json:"kind"`
	Message       string     `json:"message"`
}

// RunSummary is the result of one orchestrator invocation. It is returned to
// the triggering caller and logged; it is never persisted.
type RunSummary struct {
	RunID                 uuid.UUID     `json:"run_id"`
	StartedAt             time.Time     `json:"started_at"`
	Duration              time.Duration `json:"duration"`
	ProcessedApplications int           `json:"processed_applications"`
	ProcessedOffers       int           `json:"processed_offers"`
	MatchedPairs          int           `json:"matched_pairs"`
	ErrorCount            int           `json:"error_count"`
	HasMore               bool          `json:"has_more"`
	Errors                []RunError    `json:"errors,omitempty"`
}

// RecordError appends a per-application error and bumps the error count.
func (s *RunSummary) RecordError(appID, offerID *uuid.UUID, err error) {
	s.ErrorCount++
	s.Errors = append(s.Errors, RunError{
		ApplicationID: appID,
		OfferID:       offerID,
		Kind:          ErrorKind(err),
		Message:       err.Error(),
	})
}
