package logs

import (
	"sync"
	"time"
)

// Store collects raw lines and normalized entries for one agent invocation.
// Producers (protocol adapters) append; consumers replay history or follow
// live via Subscribe. Closing the store closes every subscriber channel.
type Store struct {
	mu         sync.Mutex
	raw        []RawLine
	normalized []Entry
	subs       map[int]chan Entry
	nextSub    int
	closed     bool
}

// NewStore creates an empty log store.
func NewStore() *Store {
	return &Store{subs: make(map[int]chan Entry)}
}

// PushRawLine records one unparsed output line.
func (s *Store) PushRawLine(src Source, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.raw = append(s.raw, RawLine{Source: src, Line: line, Timestamp: time.Now().UTC()})
}

// Push appends a normalized entry and fans it out to subscribers. Slow
// subscribers drop entries rather than block the producing adapter.
func (s *Store) Push(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.normalized = append(s.normalized, entry)
	for _, ch := range s.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

// RawHistory returns a copy of all raw lines recorded so far.
func (s *Store) RawHistory() []RawLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RawLine, len(s.raw))
	copy(out, s.raw)
	return out
}

// History returns a copy of all normalized entries recorded so far.
func (s *Store) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.normalized))
	copy(out, s.normalized)
	return out
}

// Subscribe registers a live follower. The returned cancel func must be
// called when the follower is done; the channel is closed on cancel or when
// the store closes.
func (s *Store) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer < 1 {
		buffer = 64
	}
	ch := make(chan Entry, buffer)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// Close seals the store. Further pushes are dropped; subscriber channels are
// closed so followers observe end-of-stream.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
