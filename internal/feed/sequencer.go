package feed

import "sync"

// Sequencer hands out monotonically increasing tickets and remembers the
// newest one committed. A result holding an older ticket than the last
// commit has been superseded and must be discarded.
type Sequencer struct {
	mu        sync.Mutex
	next      uint64
	committed uint64
}

// Next returns a new ticket.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

// Commit records ticket as the latest result. It reports false, and
// changes nothing, when a newer ticket was already committed.
func (s *Sequencer) Commit(ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket < s.committed {
		return false
	}
	s.committed = ticket
	return true
}

// Committed returns the newest committed ticket, zero if none.
func (s *Sequencer) Committed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}
