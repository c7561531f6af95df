package scheduler

import "time"

func (s *Service) Stats() Stats {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	every := s.cfg.interval()
	c := s.c
	eid := s.entryID
	s.mu.Unlock()

	st := Stats{
		Enabled:       enabled,
		Running:       c != nil,
		PollInterval:  every,
		Cycles:        s.cycles.Load(),
		Fired:         s.fired.Load(),
		CallbackFails: s.callbackFails.Load(),
		PersistFails:  s.persistFails.Load(),
		Pending:       len(s.store.Upcoming(s.store.Len())),
		Dirty:         s.store.Dirty(),
	}
	if ns := s.lastPoll.Load(); ns != 0 {
		st.LastPoll = time.Unix(0, ns)
	}
	if c != nil && eid != 0 {
		st.NextPoll = c.Entry(eid).Next
	}
	return st
}
