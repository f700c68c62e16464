package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

func enqueue(t *testing.T, f *fixture, key string, studentID uint) uint {
	t.Helper()
	ids, err := f.outbox.Enqueue(context.Background(), []models.NotificationOutbox{{
		StudentID:    studentID,
		SubmissionID: 1,
		Message:      "graded " + key,
		DedupKey:     key,
	}})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	return ids[0]
}

func TestOutboxEnqueueSkipsDuplicateKeys(t *testing.T) {
	f := newFixture(t)
	first := enqueue(t, f, "submission:1:graded:1", 3)

	ids, err := f.outbox.Enqueue(context.Background(), []models.NotificationOutbox{
		{StudentID: 3, SubmissionID: 1, Message: "again", DedupKey: "submission:1:graded:1"},
	})
	require.NoError(t, err)
	require.Equal(t, []uint{first}, ids)
	require.Len(t, f.outboxEntries(t), 1)
}

func TestDispatcherMarksFailedAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	id := enqueue(t, f, "k1", 3)
	f.notifier.err = errDeliveryDown
	ctx := context.Background()

	f.dispatcher.Dispatch(ctx, []uint{id})
	entries := f.outboxEntries(t)
	require.Equal(t, models.OutboxStatusPending, entries[0].Status)
	require.Equal(t, 1, entries[0].Attempts)

	f.dispatcher.Dispatch(ctx, []uint{id})
	entries = f.outboxEntries(t)
	require.Equal(t, models.OutboxStatusFailed, entries[0].Status)
	require.Equal(t, 2, entries[0].Attempts)

	f.notifier.err = nil
	f.dispatcher.Dispatch(ctx, []uint{id})
	require.Empty(t, f.notifier.For(3))
	require.Equal(t, models.OutboxStatusFailed, f.outboxEntries(t)[0].Status)
}

func TestDispatcherOnlyDeliversRequestedEntries(t *testing.T) {
	f := newFixture(t)
	first := enqueue(t, f, "k1", 3)
	enqueue(t, f, "k2", 4)

	f.dispatcher.Dispatch(context.Background(), []uint{first})
	require.Len(t, f.notifier.For(3), 1)
	require.Empty(t, f.notifier.For(4))

	f.dispatcher.Dispatch(context.Background(), []uint{first})
	require.Len(t, f.notifier.For(3), 1)
}

func TestDispatcherRunRetriesPendingEntries(t *testing.T) {
	f := newFixture(t)
	enqueue(t, f, "k1", 3)
	enqueue(t, f, "k2", 4)
	dispatcher := NewNotificationDispatcher(f.outbox, f.notifier, DispatcherConfig{Interval: 10 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(f.notifier.For(3)) == 1 && len(f.notifier.For(4)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}

	for _, entry := range f.outboxEntries(t) {
		require.Equal(t, models.OutboxStatusDispatched, entry.Status)
	}
}
