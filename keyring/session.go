package keyring

import "sync"

// Session holds the unlocked master key for one repository.
//
// A Session starts locked. Unlock places the master key in memory and Lock
// zeroes it. All methods are safe for concurrent use; block workers read the
// key through WithKey while a UI goroutine may Lock at any time.
type Session struct {
	mu       sync.RWMutex
	key      MasterKey
	unlocked bool
}

// NewSession returns a locked session.
func NewSession() *Session {
	return &Session{}
}

// NewUnlockedSession returns a session already holding mk.
func NewUnlockedSession(mk MasterKey) *Session {
	return &Session{key: mk, unlocked: true}
}

// Unlock verifies pin against wrapped and, on success, holds the master key.
// A failed attempt leaves the previous state untouched.
func (s *Session) Unlock(pin string, wrapped *WrappedMasterKey) error {
	mk, err := Unlock(pin, wrapped)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key.Zero()
	s.key = mk
	s.unlocked = true
	mk.Zero()
	return nil
}

// Lock zeroes the master key. Locking a locked session is a no-op.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key.Zero()
	s.unlocked = false
}

// IsUnlocked reports whether a master key is currently held.
func (s *Session) IsUnlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlocked
}

// MasterKey returns a copy of the held key, or ErrLocked.
// Callers should Zero the copy when done.
func (s *Session) MasterKey() (MasterKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.unlocked {
		return MasterKey{}, ErrLocked
	}
	return s.key, nil
}

// WithKey runs fn with a copy of the master key while holding a read lock,
// so Lock cannot complete while fn is running. The copy is zeroed after fn
// returns; fn must not retain it.
func (s *Session) WithKey(fn func(mk *MasterKey) error) error {
	if s == nil {
		return ErrLocked
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.unlocked {
		return ErrLocked
	}
	mk := s.key
	defer mk.Zero()
	return fn(&mk)
}
