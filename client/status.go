package client

import "sync/atomic"

// Status is the shared logout coordinator. While a logout is in flight,
// silent hydration and automatic refresh are suppressed so a slow refresh
// cannot repopulate the session right after logout cleared it. Injected
// into every Session rather than living in a package global.
type Status struct {
	loggingOut atomic.Bool
}

func NewStatus() *Status {
	return &Status{}
}

func (s *Status) SetLoggingOut(v bool) {
	s.loggingOut.Store(v)
}

func (s *Status) IsLoggingOut() bool {
	return s.loggingOut.Load()
}
