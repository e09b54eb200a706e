package orchestrator

import "sync"

// RuntimeState holds process-lifetime counters: per-user session spend
// and the one-shot budget alert. These are deliberately not durable; a
// restart resets them, and the usage ledger remains the source of truth
// for daily spend.
type RuntimeState struct {
	mu          sync.Mutex
	sessionCost map[string]float64
	alerted     bool
}

// NewRuntimeState returns empty counters.
func NewRuntimeState() *RuntimeState {
	return &RuntimeState{sessionCost: map[string]float64{}}
}

// SessionCost returns the spend accumulated for userID since process
// start.
func (s *RuntimeState) SessionCost(userID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionCost[userID]
}

// AddSessionCost accumulates spend for userID.
func (s *RuntimeState) AddSessionCost(userID string, usd float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionCost[userID] += usd
}

// AlertBudgetOnce reports true exactly once per process lifetime.
func (s *RuntimeState) AlertBudgetOnce() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alerted {
		return false
	}
	s.alerted = true
	return true
}
