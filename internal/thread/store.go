package thread

import "sync"

// Listener observes snapshots published by a Store.
type Listener func(Snapshot)

// Store owns the canonical snapshot of a run and publishes every change.
//
// Writes are serialized and each one replaces the snapshot as a whole, so readers
// never see a half-applied fold. Listeners are called outside the write lock, one
// at a time and in version order; a listener must not write to the store.
type Store struct {
	mu       sync.RWMutex
	snap     Snapshot
	nextID   int
	watchers map[int]Listener
	order    []int

	pubMu     sync.Mutex
	published uint64
}

// NewStore creates a store holding the given initial snapshot.
func NewStore(initial Snapshot) *Store {
	return &Store{
		snap:     initial,
		watchers: make(map[int]Listener),
	}
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Apply folds one event into the snapshot. It reports whether the snapshot changed.
func (s *Store) Apply(e Event) bool {
	_, changed := s.Update(func(cur Snapshot) (Snapshot, bool) {
		return Fold(cur, e)
	})
	return changed
}

// Update replaces the snapshot with the result of fn when fn reports a change,
// then publishes it. fn must treat its argument as immutable.
func (s *Store) Update(fn func(Snapshot) (Snapshot, bool)) (Snapshot, bool) {
	s.mu.Lock()
	next, changed := fn(s.snap)
	if !changed {
		cur := s.snap
		s.mu.Unlock()
		return cur, false
	}
	next.Version = s.snap.Version + 1
	s.snap = next
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.publish(next, listeners)
	return next, true
}

// Subscribe registers fn and immediately delivers the current snapshot to it.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.order = append(s.order, id)
	cur := s.snap
	s.mu.Unlock()

	s.pubMu.Lock()
	fn(cur)
	s.pubMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.watchers, id)
			for i, w := range s.order {
				if w == id {
					s.order = append(s.order[:i:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (s *Store) listenersLocked() []Listener {
	out := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.watchers[id])
	}
	return out
}

// publish delivers snap unless a newer version was already delivered.
func (s *Store) publish(snap Snapshot, listeners []Listener) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if snap.Version <= s.published {
		return
	}
	s.published = snap.Version
	for _, fn := range listeners {
		fn(snap)
	}
}
