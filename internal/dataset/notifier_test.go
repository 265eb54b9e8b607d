package dataset

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNotifier_PublishReachesSubscribers(t *testing.T) {
	t.Parallel()

	n := NewNotifier()
	id := uuid.New()

	first := n.Subscribe(id)
	second := n.Subscribe(id)
	defer n.Unsubscribe(id, first)
	defer n.Unsubscribe(id, second)

	update := ProgressUpdate{
		DatasetID: id,
		Status:    StatusProcessing,
		Progress:  30,
		Timestamp: time.Now().UTC(),
	}
	n.Publish(update)

	for _, ch := range []chan ProgressUpdate{first, second} {
		select {
		case got := <-ch:
			assert.Equal(t, update, got)
			assert.False(t, got.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive update")
		}
	}
}

func TestProgressUpdate_WireShape(t *testing.T) {
	t.Parallel()

	update := ProgressUpdate{
		DatasetID: uuid.New(),
		Status:    StatusReady,
		Progress:  100,
		Message:   "dataset ready",
		Timestamp: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(update)
	require.NoError(t, err)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	for _, key := range []string{"dataset_id", "status", "progress", "message", "timestamp"} {
		assert.Contains(t, frame, key)
	}
	assert.Equal(t, "2026-08-29T12:00:00Z", frame["timestamp"])
}

func TestNotifier_OtherDatasetsUnaffected(t *testing.T) {
	t.Parallel()

	n := NewNotifier()
	id := uuid.New()
	other := uuid.New()

	ch := n.Subscribe(other)
	defer n.Unsubscribe(other, ch)

	n.Publish(ProgressUpdate{DatasetID: id, Progress: 50})

	select {
	case <-ch:
		t.Fatal("update leaked to another dataset's subscriber")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	n := NewNotifier()
	id := uuid.New()

	ch := n.Subscribe(id)
	n.Unsubscribe(id, ch)

	_, open := <-ch
	assert.False(t, open)

	// Double unsubscribe must not panic.
	n.Unsubscribe(id, ch)

	// Publishing after the last unsubscribe is a no-op.
	n.Publish(ProgressUpdate{DatasetID: id, Progress: 100})
}

func TestNotifier_SlowSubscriberDropsUpdates(t *testing.T) {
	t.Parallel()

	n := NewNotifier()
	id := uuid.New()

	ch := n.Subscribe(id)
	defer n.Unsubscribe(id, ch)

	// Fill the buffer and keep publishing; Publish must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 100 {
			n.Publish(ProgressUpdate{DatasetID: id, Progress: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	require.NotEmpty(t, ch)
}
