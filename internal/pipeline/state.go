package pipeline

import "sync/atomic"

// State is the phase of the current (or last) pipeline run.
type State string

const (
	StateIdle       State = "idle"
	StateCrawling   State = "crawling"
	StateSelecting  State = "selecting"
	StateBatching   State = "batching"
	StateProcessing State = "processing"
	StateFallback   State = "fallback"
	StateDone       State = "done"
)

type stateHolder struct {
	v atomic.Value
}

func (h *stateHolder) set(s State) { h.v.Store(s) }

func (h *stateHolder) get() State {
	if s, ok := h.v.Load().(State); ok {
		return s
	}
	return StateIdle
}
