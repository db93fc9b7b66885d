package tasks

import (
	"sync"

	"github.com/desertthunder/vgen/internal/models"
)

// Handoff is a single-slot, consume-once mailbox for a [models.PendingUseResult].
//
// Setting overwrites any unconsumed value.
type Handoff struct {
	mu    sync.Mutex
	value *models.PendingUseResult
}

// Set stores v, replacing any pending value.
func (h *Handoff) Set(v models.PendingUseResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = &v
}

// Clear empties the slot.
func (h *Handoff) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = nil
}

// Peek returns a copy of the pending value without consuming it.
func (h *Handoff) Peek() *models.PendingUseResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.value == nil {
		return nil
	}
	v := *h.value
	return &v
}

// Consume returns the pending value and clears the slot.
func (h *Handoff) Consume() *models.PendingUseResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	v := h.value
	h.value = nil
	return v
}
