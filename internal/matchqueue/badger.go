package matchqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/openlend/lendmatch/pkg/metrics"
)

// BadgerQueue is the disk-backed Queue implementation on BadgerDB.
type BadgerQueue struct {
	db          *badger.DB
	maxAttempts int
	baseBackoff time.Duration
}

// Option configures a BadgerQueue.
type Option func(*BadgerQueue)

// WithMaxAttempts sets the number of attempts before a task is dropped.
func WithMaxAttempts(n int) Option {
	return func(q *BadgerQueue) { q.maxAttempts = n }
}

// WithBaseBackoff sets the backoff for the first retry; each later retry
// doubles it.
func WithBaseBackoff(d time.Duration) Option {
	return func(q *BadgerQueue) { q.baseBackoff = d }
}

// NewBadgerQueue opens (or creates) the queue store at path.
func NewBadgerQueue(path string, opts ...Option) (*BadgerQueue, error) {
	bopts := badger.DefaultOptions(path)
	bopts.Logger = nil
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	q := &BadgerQueue{db: db, maxAttempts: 3, baseBackoff: time.Second}
	for _, opt := range opts {
		opt(q)
	}
	q.updateDepth()
	return q, nil
}

// key format: priority:timestamp:taskID, so the default iterator order is
// priority then FIFO.
func taskKey(t Task) []byte {
	return []byte(fmt.Sprintf("%04d:%020d:%s", t.Priority, t.CreatedAt.UnixNano(), t.ID))
}

func (q *BadgerQueue) Enqueue(ctx context.Context, task Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	key := taskKey(task)
	val, err := json.Marshal(task)
	if err != nil {
		return err
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		// Dedup is by task ID, not by key: a re-enqueue carries a fresh
		// CreatedAt and would land on a different key.
		if _, _, err := q.find(txn, task.ID); err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicate, task.ID)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return txn.Set(key, val)
	})
	if err == nil {
		q.updateDepth()
	}
	return err
}

func (q *BadgerQueue) Dequeue(ctx context.Context) (Task, error) {
	var result Task
	now := time.Now()
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var t Task
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &t)
			})
			if err != nil {
				return err
			}
			if !t.NotBefore.IsZero() && now.Before(t.NotBefore) {
				continue
			}
			result = t
			return nil
		}
		return ErrEmpty
	})
	return result, err
}

func (q *BadgerQueue) Acknowledge(ctx context.Context, id string) error {
	err := q.db.Update(func(txn *badger.Txn) error {
		key, _, err := q.find(txn, id)
		if err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err == nil {
		q.updateDepth()
	}
	return err
}

func (q *BadgerQueue) Fail(ctx context.Context, id string) error {
	var dropped bool
	err := q.db.Update(func(txn *badger.Txn) error {
		key, task, err := q.find(txn, id)
		if err != nil {
			return err
		}
		task.Attempts++
		if task.Attempts >= q.maxAttempts {
			dropped = true
			return txn.Delete(key)
		}
		// Double the backoff per failed attempt.
		task.NotBefore = time.Now().Add(q.baseBackoff << (task.Attempts - 1))
		val, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
	if err != nil {
		return err
	}
	q.updateDepth()
	if dropped {
		return fmt.Errorf("%w: %s", ErrDropped, id)
	}
	return nil
}

func (q *BadgerQueue) ReplayPending(ctx context.Context) ([]Task, error) {
	tasks := make([]Task, 0)
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var t Task
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &t)
			})
			if err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (q *BadgerQueue) Shutdown(ctx context.Context) error {
	return q.db.Close()
}

// find scans for the key carrying the given task ID. Keys embed priority and
// timestamp, so a lookup by ID alone needs the scan.
func (q *BadgerQueue) find(txn *badger.Txn, id string) ([]byte, Task, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		k := item.KeyCopy(nil)
		if strings.HasSuffix(string(k), ":"+id) {
			var t Task
			err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &t)
			})
			if err != nil {
				return nil, Task{}, err
			}
			return k, t, nil
		}
	}
	return nil, Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (q *BadgerQueue) updateDepth() {
	var count int
	_ = q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	metrics.QueueDepth.Set(float64(count))
}
