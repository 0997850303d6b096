package net

// SessionStore tracks live sessions by ID. Game loop only.
type SessionStore struct {
	sessions map[uint64]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[uint64]*Session)}
}

func (s *SessionStore) Add(sess *Session) {
	s.sessions[sess.ID] = sess
}

func (s *SessionStore) Remove(id uint64) {
	delete(s.sessions, id)
}

func (s *SessionStore) Get(id uint64) *Session {
	return s.sessions[id]
}

func (s *SessionStore) Count() int {
	return len(s.sessions)
}

// Raw exposes the underlying map for iteration. Callers may delete the
// entry they are visiting.
func (s *SessionStore) Raw() map[uint64]*Session {
	return s.sessions
}

// ForEach calls fn for every session.
func (s *SessionStore) ForEach(fn func(*Session)) {
	for _, sess := range s.sessions {
		fn(sess)
	}
}

// CloseAll closes every session.
func (s *SessionStore) CloseAll() {
	for _, sess := range s.sessions {
		sess.Close()
	}
}
