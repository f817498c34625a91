package sched

import "time"

// maxActivity bounds the in-memory activity log.
const maxActivity = 200

// Event is one entry in the scheduler's activity log.
type Event struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Symbol  string    `json:"symbol,omitempty"`
	Message string    `json:"message"`
}

func (s *Scheduler) logActivity(level, symbol, message string) {
	ev := Event{Time: s.now(), Level: level, Symbol: symbol, Message: message}
	s.mu.Lock()
	s.activity = append(s.activity, ev)
	if len(s.activity) > maxActivity {
		s.activity = s.activity[len(s.activity)-maxActivity:]
	}
	s.mu.Unlock()
}
