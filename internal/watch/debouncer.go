package watch

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid asset-file events per document so one
// multi-file write (chunks, embeddings, manifest) triggers a single
// re-validation. A document is emitted once its window elapses with no
// further events.
type Debouncer struct {
	window  time.Duration
	pending map[string]time.Time
	mu      sync.Mutex
	output  chan []string
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given window duration.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]time.Time),
		output:  make(chan []string, 10),
	}
}

// Add records activity for a document id.
func (d *Debouncer) Add(docID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || docID == "" {
		return
	}
	d.pending[docID] = time.Now()
	d.scheduleFlush()
}

// Output returns the channel of settled document id batches.
func (d *Debouncer) Output() <-chan []string {
	return d.output
}

// Stop flushes nothing further and closes the output channel.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}

func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()

	if d.stopped {
		d.mu.Unlock()
		return
	}

	now := time.Now()
	var settled []string
	for docID, lastSeen := range d.pending {
		if now.Sub(lastSeen) >= d.window-time.Millisecond {
			settled = append(settled, docID)
			delete(d.pending, docID)
		}
	}
	if len(d.pending) > 0 {
		d.scheduleFlush()
	}
	d.mu.Unlock()

	if len(settled) == 0 {
		return
	}
	select {
	case d.output <- settled:
	default:
		// Drop the batch rather than block the flush timer. The next
		// event for these documents re-queues them.
	}
}
