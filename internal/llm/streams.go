package llm

import "sync"

// streamSet tracks every open completion stream for one engine instance so
// cancellation can tear them all down. A stream is a member from Register
// until exactly one of Release, Close, or CloseAll removes it; removal and
// close are idempotent.
type streamSet struct {
	mu   sync.Mutex
	open map[Stream]struct{}
}

func newStreamSet() *streamSet {
	return &streamSet{open: make(map[Stream]struct{})}
}

func (s *streamSet) Register(stream Stream) {
	s.mu.Lock()
	s.open[stream] = struct{}{}
	s.mu.Unlock()
}

// Release removes a stream without closing it, for streams that drained
// naturally and need no teardown.
func (s *streamSet) Release(stream Stream) {
	s.mu.Lock()
	delete(s.open, stream)
	s.mu.Unlock()
}

// Close removes and closes a stream. A stream that was already removed is a
// no-op: whoever removed it first owns the close.
func (s *streamSet) Close(stream Stream) {
	s.mu.Lock()
	_, ok := s.open[stream]
	delete(s.open, stream)
	s.mu.Unlock()
	if ok {
		_ = stream.Close()
	}
}

// CloseAll closes every active stream. Individual close failures are
// swallowed so one failing stream never prevents closing the rest. Safe to
// call concurrently with Close of the same stream; whichever removes the
// stream first performs the close.
func (s *streamSet) CloseAll() {
	s.mu.Lock()
	streams := make([]Stream, 0, len(s.open))
	for stream := range s.open {
		streams = append(streams, stream)
	}
	s.open = make(map[Stream]struct{})
	s.mu.Unlock()

	for _, stream := range streams {
		_ = stream.Close()
	}
}

func (s *streamSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}
