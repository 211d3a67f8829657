package conversation

import "sync"

// MemoryStore keeps dialogue state in process memory. Update serializes
// read-modify-write per user id; different users never wait on each other.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
	locks  map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]State),
		locks:  make(map[string]*userLock),
	}
}

// Get returns the user's state, or the default record if none is stored.
func (s *MemoryStore) Get(userID string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID]
}

// Set replaces the user's state. Storing the default record drops the entry.
func (s *MemoryStore) Set(userID string, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st == (State{}) {
		delete(s.states, userID)
		return
	}
	s.states[userID] = st
}

// Update runs fn on a copy of the user's state while holding that user's
// lock, then stores the result. If fn panics nothing is stored.
func (s *MemoryStore) Update(userID string, fn func(*State)) {
	l := s.lockUser(userID)
	defer s.unlockUser(userID, l)

	st := s.Get(userID)
	fn(&st)
	s.Set(userID, st)
}

// Reset clears one user's state. It waits for an in-flight Update for the
// same user to finish.
func (s *MemoryStore) Reset(userID string) {
	l := s.lockUser(userID)
	defer s.unlockUser(userID, l)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}

// ResetAll clears every user's state.
func (s *MemoryStore) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]State)
}

// Len returns the number of users with non-default state.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *MemoryStore) lockUser(userID string) *userLock {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *MemoryStore) unlockUser(userID string, l *userLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, userID)
	}
	s.mu.Unlock()
}
