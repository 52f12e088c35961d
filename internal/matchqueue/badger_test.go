package matchqueue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, opts ...Option) *BadgerQueue {
	t.Helper()
	q, err := NewBadgerQueue(t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Shutdown(context.Background()) })
	return q
}

func newTask(id string, kind string, priority int, created time.Time) Task {
	return Task{
		ID:        id,
		Kind:      kind,
		EntityID:  uuid.New(),
		Priority:  priority,
		CreatedAt: created,
	}
}

func TestBadgerQueuePriorityOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, q.Enqueue(ctx, newTask("sweep", KindSweep, PrioritySweep, now)))
	require.NoError(t, q.Enqueue(ctx, newTask("offer", KindOfferPublished, PriorityOffer, now)))
	require.NoError(t, q.Enqueue(ctx, newTask("app", KindApplicationPublished, PriorityApplication, now)))

	for _, want := range []string{"app", "offer", "sweep"} {
		task, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, task.ID)
		require.NoError(t, q.Acknowledge(ctx, task.ID))
	}

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestBadgerQueueFIFOWithinPriority(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, q.Enqueue(ctx, newTask("second", KindApplicationPublished, PriorityApplication, now.Add(time.Millisecond))))
	require.NoError(t, q.Enqueue(ctx, newTask("first", KindApplicationPublished, PriorityApplication, now)))

	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", task.ID)
}

func TestBadgerQueueDuplicateEnqueue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := newTask("app:1", KindApplicationPublished, PriorityApplication, time.Now())
	require.NoError(t, q.Enqueue(ctx, task))
	assert.ErrorIs(t, q.Enqueue(ctx, task), ErrDuplicate)

	// Same ID under a fresh CreatedAt (a different key) is still a duplicate.
	later := newTask("app:1", KindApplicationPublished, PriorityApplication, time.Now().Add(time.Second))
	assert.ErrorIs(t, q.Enqueue(ctx, later), ErrDuplicate)

	// And under a different priority band too.
	sweep := newTask("app:1", KindSweep, PrioritySweep, time.Now())
	assert.ErrorIs(t, q.Enqueue(ctx, sweep), ErrDuplicate)
}

func TestBadgerQueueDequeueIsNonDestructive(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTask("app", KindApplicationPublished, PriorityApplication, time.Now())))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	require.NoError(t, q.Acknowledge(ctx, first.ID))
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestBadgerQueueFailBackoff(t *testing.T) {
	q := newTestQueue(t, WithMaxAttempts(3), WithBaseBackoff(50*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTask("app", KindApplicationPublished, PriorityApplication, time.Now())))
	require.NoError(t, q.Fail(ctx, "app"))

	// The task is backing off and must not be handed out yet.
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	require.Eventually(t, func() bool {
		task, err := q.Dequeue(ctx)
		return err == nil && task.Attempts == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBadgerQueueFailDropsAfterMaxAttempts(t *testing.T) {
	q := newTestQueue(t, WithMaxAttempts(2), WithBaseBackoff(time.Millisecond))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, newTask("app", KindApplicationPublished, PriorityApplication, time.Now())))
	require.NoError(t, q.Fail(ctx, "app"))
	assert.ErrorIs(t, q.Fail(ctx, "app"), ErrDropped)

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
	tasks, err := q.ReplayPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestBadgerQueueAcknowledgeUnknown(t *testing.T) {
	q := newTestQueue(t)
	assert.ErrorIs(t, q.Acknowledge(context.Background(), "missing"), ErrNotFound)
	assert.ErrorIs(t, q.Fail(context.Background(), "missing"), ErrNotFound)
}

func TestBadgerQueueReplayAfterReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	q, err := NewBadgerQueue(dir)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(ctx, newTask("app", KindApplicationPublished, PriorityApplication, time.Now())))
	require.NoError(t, q.Enqueue(ctx, newTask("sweep", KindSweep, PrioritySweep, time.Now())))
	require.NoError(t, q.Shutdown(ctx))

	q, err = NewBadgerQueue(dir)
	require.NoError(t, err)
	defer q.Shutdown(ctx)

	tasks, err := q.ReplayPending(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "app", tasks[0].ID)
	assert.Equal(t, "sweep", tasks[1].ID)
}
