package memory

import "sync"

// subscription queues change signals for one subscriber and delivers them on its
// own goroutine. Repeated signals for a key that is still queued are coalesced, so
// enqueue never blocks the writer.
type subscription struct {
	origin string
	prefix string
	fn     func(string)

	mu      sync.Mutex
	pending []string
	queued  map[string]bool

	wake chan struct{}
	done chan struct{}
	stop sync.Once
}

func newSubscription(origin, prefix string, fn func(string)) *subscription {
	return &subscription{
		origin: origin,
		prefix: prefix,
		fn:     fn,
		queued: make(map[string]bool),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *subscription) enqueue(key string) {
	s.mu.Lock()
	if !s.queued[key] {
		s.queued[key] = true
		s.pending = append(s.pending, key)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			key, ok := s.pop()
			if !ok {
				break
			}
			select {
			case <-s.done:
				return
			default:
			}
			s.fn(key)
		}
	}
}

func (s *subscription) pop() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return "", false
	}
	key := s.pending[0]
	s.pending = s.pending[1:]
	delete(s.queued, key)
	return key, true
}

func (s *subscription) close() {
	s.stop.Do(func() { close(s.done) })
}
