// Package matchqueue implements a disk-backed queue of pending matching
// tasks. Tasks survive restarts, dequeue in priority order with FIFO within
// a priority band, and are retried with exponential backoff until a maximum
// attempt count is reached.
package matchqueue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openlend/lendmatch/internal/lending/model"
)

// Task priorities. Lower values dequeue first.
const (
	PriorityApplication = 1 // a borrower just published an application
	PriorityOffer       = 2 // a lender just published an offer
	PrioritySweep       = 3 // expiry sweep requested
	PriorityPeriodic    = 4 // background full scan
)

// Task kinds, mirroring the scheduler's trigger sources.
const (
	KindApplicationPublished = "application_published"
	KindOfferPublished       = "offer_published"
	KindSweep                = "sweep"
	KindPeriodic             = "periodic"
)

var (
	// ErrEmpty is returned by Dequeue when no task is ready.
	ErrEmpty = errors.New("matchqueue: empty")
	// ErrDuplicate is returned by Enqueue when a task with the same ID is
	// already pending.
	ErrDuplicate = errors.New("matchqueue: duplicate task")
	// ErrNotFound is returned by Acknowledge/Fail for an unknown task ID.
	ErrNotFound = errors.New("matchqueue: task not found")
	// ErrDropped is returned by Fail when the task exhausted its attempts
	// and was removed from the queue.
	ErrDropped = errors.New("matchqueue: task dropped after max attempts")
)

// Task is one unit of matching work. EntityID identifies the application or
// offer that triggered it; zero for sweep and periodic tasks. Sweep tasks may
// carry criteria overlays for admin-initiated runs.
type Task struct {
	ID        string                  `json:"id"`
	Kind      string                  `json:"kind"`
	EntityID  uuid.UUID               `json:"entity_id"`
	Priority  int                     `json:"priority"`
	CreatedAt time.Time               `json:"created_at"`
	Attempts  int                     `json:"attempts"`
	NotBefore time.Time               `json:"not_before"`
	Lender    *model.LenderCriteria   `json:"lender_criteria,omitempty"`
	Borrower  *model.BorrowerCriteria `json:"borrower_criteria,omitempty"`
}

// Queue is a persistent matching task queue.
type Queue interface {
	// Enqueue persists a task. A task whose ID is already pending is
	// rejected with ErrDuplicate.
	Enqueue(ctx context.Context, task Task) error

	// Dequeue returns the highest-priority ready task without removing it.
	// Tasks inside their backoff window are skipped. ErrEmpty when nothing
	// is ready.
	Dequeue(ctx context.Context) (Task, error)

	// Acknowledge removes a processed task from storage.
	Acknowledge(ctx context.Context, id string) error

	// Fail records a failed attempt: the task is rescheduled with
	// exponential backoff, or removed with ErrDropped once its attempts
	// are exhausted.
	Fail(ctx context.Context, id string) error

	// ReplayPending returns all stored tasks in dequeue order, including
	// those still backing off. Used on startup recovery.
	ReplayPending(ctx context.Context) ([]Task, error)

	// Shutdown flushes and closes the underlying store.
	Shutdown(ctx context.Context) error
}
