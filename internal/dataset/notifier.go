package dataset

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProgressUpdate is one progress event for a dataset. Publishers stamp the
// event time; subscribers see it verbatim.
type ProgressUpdate struct {
	DatasetID uuid.UUID `json:"dataset_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier fans progress updates out to per-dataset subscribers. Transport
// is the subscriber's concern; the WebSocket relay lives in the API layer.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[chan ProgressUpdate]struct{}
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		subscribers: make(map[uuid.UUID]map[chan ProgressUpdate]struct{}),
	}
}

// Subscribe registers interest in a dataset's progress. The returned channel
// is buffered; a subscriber that falls behind loses updates rather than
// blocking the publisher. Always pair with Unsubscribe.
func (n *Notifier) Subscribe(datasetID uuid.UUID) chan ProgressUpdate {
	ch := make(chan ProgressUpdate, 16)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subscribers[datasetID] == nil {
		n.subscribers[datasetID] = make(map[chan ProgressUpdate]struct{})
	}
	n.subscribers[datasetID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (n *Notifier) Unsubscribe(datasetID uuid.UUID, ch chan ProgressUpdate) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs, ok := n.subscribers[datasetID]
	if !ok {
		return
	}
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(n.subscribers, datasetID)
	}
	close(ch)
}

// Publish delivers an update to every subscriber of the dataset.
func (n *Notifier) Publish(update ProgressUpdate) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.subscribers[update.DatasetID] {
		select {
		case ch <- update:
		default:
			// Slow subscriber; drop rather than stall processing.
		}
	}
}
