// Package scheduler drives matching runs: a periodic ticker, event triggers
// for published applications and offers, and an expiry sweep. Triggers are
// coalesced per entity and fed through a persistent task queue so that a
// burst of publishes yields one run each, and pending work survives a
// restart.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openlend/lendmatch/internal/lending/matching"
	"github.com/openlend/lendmatch/internal/lending/model"
	"github.com/openlend/lendmatch/internal/matchqueue"
)

// Config controls the scheduler cadence.
type Config struct {
	// Interval between periodic full runs. Zero disables the ticker.
	Interval time.Duration
	// RunOnInit enqueues a periodic run as soon as Start is called.
	RunOnInit bool
	// CoalesceWindow suppresses repeat triggers for the same entity within
	// the window.
	CoalesceWindow time.Duration
	// PollInterval is how long the dispatcher sleeps when the queue is
	// empty or only backing-off tasks remain.
	PollInterval time.Duration
}

// Scheduler owns the trigger surface and the dispatcher goroutine.
type Scheduler struct {
	cfg    Config
	queue  matchqueue.Queue
	engine *matching.Engine
	logger *zap.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler. The queue must already be open.
func New(cfg Config, queue matchqueue.Queue, engine *matching.Engine, logger *zap.Logger) *Scheduler {
	if cfg.CoalesceWindow <= 0 {
		cfg.CoalesceWindow = 2 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Scheduler{
		cfg:      cfg,
		queue:    queue,
		engine:   engine,
		logger:   logger,
		lastSeen: make(map[string]time.Time),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the dispatcher and, when configured, the periodic ticker.
// Tasks left over from a previous process are picked up by the dispatcher
// automatically since the queue is persistent.
func (s *Scheduler) Start(ctx context.Context) error {
	pending, err := s.queue.ReplayPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		s.logger.Info("recovered pending matching tasks", zap.Int("count", len(pending)))
	}

	s.wg.Add(1)
	go s.dispatch(ctx)

	if s.cfg.Interval > 0 {
		s.wg.Add(1)
		go s.tick(ctx)
	}

	if s.cfg.RunOnInit {
		s.enqueue(ctx, matchqueue.Task{
			ID:       uuid.New().String(),
			Kind:     matchqueue.KindPeriodic,
			Priority: matchqueue.PriorityPeriodic,
		})
	}
	return nil
}

// Stop signals the goroutines and waits for the in-flight run to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// ApplicationPublished requests a targeted run for a just-published
// application. Repeat calls for the same application inside the coalesce
// window are dropped.
func (s *Scheduler) ApplicationPublished(ctx context.Context, applicationID uuid.UUID) {
	if s.coalesced("app:" + applicationID.String()) {
		return
	}
	s.enqueue(ctx, matchqueue.Task{
		ID:       uuid.New().String(),
		Kind:     matchqueue.KindApplicationPublished,
		EntityID: applicationID,
		Priority: matchqueue.PriorityApplication,
	})
}

// OfferPublished requests an inverse fan-out run for a just-published offer.
func (s *Scheduler) OfferPublished(ctx context.Context, offerID uuid.UUID) {
	if s.coalesced("offer:" + offerID.String()) {
		return
	}
	s.enqueue(ctx, matchqueue.Task{
		ID:       uuid.New().String(),
		Kind:     matchqueue.KindOfferPublished,
		EntityID: offerID,
		Priority: matchqueue.PriorityOffer,
	})
}

// RequestSweep enqueues a manual sweep ahead of the next periodic run,
// optionally narrowed by criteria overlays. Nil criteria mean a full sweep.
func (s *Scheduler) RequestSweep(ctx context.Context, lender *model.LenderCriteria, borrower *model.BorrowerCriteria) {
	if s.coalesced("sweep") {
		return
	}
	s.enqueue(ctx, matchqueue.Task{
		ID:       uuid.New().String(),
		Kind:     matchqueue.KindSweep,
		Priority: matchqueue.PrioritySweep,
		Lender:   lender,
		Borrower: borrower,
	})
}

// coalesced reports whether the key fired within the coalesce window, and
// marks it as seen otherwise.
func (s *Scheduler) coalesced(key string) bool {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSeen[key]; ok && now.Sub(last) < s.cfg.CoalesceWindow {
		return true
	}
	s.lastSeen[key] = now
	// Drop stale entries so the map does not grow unbounded.
	for k, t := range s.lastSeen {
		if now.Sub(t) >= s.cfg.CoalesceWindow {
			delete(s.lastSeen, k)
		}
	}
	return false
}

func (s *Scheduler) enqueue(ctx context.Context, task matchqueue.Task) {
	if err := s.queue.Enqueue(ctx, task); err != nil {
		if errors.Is(err, matchqueue.ErrDuplicate) {
			return
		}
		s.logger.Error("enqueue matching task failed",
			zap.String("kind", task.Kind),
			zap.Error(err))
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.enqueue(ctx, matchqueue.Task{
				ID:       uuid.New().String(),
				Kind:     matchqueue.KindPeriodic,
				Priority: matchqueue.PriorityPeriodic,
			})
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		task, err := s.queue.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, matchqueue.ErrEmpty) {
				s.logger.Error("dequeue matching task failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}

		s.process(ctx, task)
	}
}

func (s *Scheduler) process(ctx context.Context, task matchqueue.Task) {
	rc := matching.RunConfig{
		Trigger:  s.triggerLabel(task.Kind),
		Lender:   task.Lender,
		Borrower: task.Borrower,
	}
	switch task.Kind {
	case matchqueue.KindApplicationPublished:
		id := task.EntityID
		rc.TargetApplicationID = &id
	case matchqueue.KindOfferPublished:
		id := task.EntityID
		rc.TargetOfferID = &id
	}

	summary, err := s.engine.Run(ctx, rc)
	if err != nil {
		s.logger.Error("matching run failed",
			zap.String("task_id", task.ID),
			zap.String("kind", task.Kind),
			zap.Error(err))
		if ferr := s.queue.Fail(ctx, task.ID); ferr != nil {
			if errors.Is(ferr, matchqueue.ErrDropped) {
				s.logger.Warn("matching task dropped",
					zap.String("task_id", task.ID),
					zap.String("kind", task.Kind),
					zap.Int("attempts", task.Attempts+1))
			} else {
				s.logger.Error("recording task failure failed", zap.Error(ferr))
			}
		}
		return
	}

	s.logger.Debug("matching task done",
		zap.String("task_id", task.ID),
		zap.String("kind", task.Kind),
		zap.Int("matched_pairs", summary.MatchedPairs))

	if err := s.queue.Acknowledge(ctx, task.ID); err != nil {
		s.logger.Error("acknowledging task failed",
			zap.String("task_id", task.ID),
			zap.Error(err))
	}

	// A truncated batch means more work is waiting. Re-queueing a periodic
	// task keeps draining without waiting for the next tick.
	if summary.HasMore && task.Kind == matchqueue.KindPeriodic {
		s.enqueue(ctx, matchqueue.Task{
			ID:       uuid.New().String(),
			Kind:     matchqueue.KindPeriodic,
			Priority: matchqueue.PriorityPeriodic,
		})
	}
}

func (s *Scheduler) triggerLabel(kind string) string {
	switch kind {
	case matchqueue.KindApplicationPublished:
		return "application"
	case matchqueue.KindOfferPublished:
		return "offer"
	case matchqueue.KindSweep:
		return "sweep"
	default:
		return "periodic"
	}
}
