package ingest

import "sync"

// VisionBudget caps how many pages of a document may be sent to the
// vision model. Pages reserve a slot before calling; an empty result
// refunds it so later pages can still use the budget.
type VisionBudget struct {
	mu        sync.Mutex
	remaining int
}

// NewVisionBudget returns a budget of n slots. Negative n means zero.
func NewVisionBudget(n int) *VisionBudget {
	if n < 0 {
		n = 0
	}
	return &VisionBudget{remaining: n}
}

// Take reserves one slot. It returns false when the budget is spent.
func (b *VisionBudget) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Refund returns a previously taken slot.
func (b *VisionBudget) Refund() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remaining++
}

// Remaining reports the unreserved slot count.
func (b *VisionBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}
