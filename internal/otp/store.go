package otp

import (
	"sync"
	"time"
)

// ChallengeStore keeps at most one pending challenge per phone number. It is
// injected into the service so a distributed cache can replace the in-memory
// map under multi-instance deployment.
type ChallengeStore interface {
	Put(phone, code string, expiresAt time.Time)
	Delete(phone string)
	// Consume atomically checks the submitted code against the pending
	// challenge. A match removes the challenge so a code can be used at most
	// once; a wrong code leaves the challenge in place until it expires.
	Consume(phone, code string) error
}

type challenge struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is the process-local ChallengeStore. All operations on the same
// phone are serialized by the store mutex, so two concurrent Consume calls can
// never both succeed against a single code.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]challenge
}

// NewMemoryStore creates an empty in-memory challenge store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{challenges: make(map[string]challenge)}
}

// Put records a challenge, replacing any pending one for the phone
func (s *MemoryStore) Put(phone, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[phone] = challenge{code: code, expiresAt: expiresAt}
}

// Delete removes the pending challenge for the phone, if any
func (s *MemoryStore) Delete(phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, phone)
}

// Consume implements the atomic read-check-delete described on ChallengeStore
func (s *MemoryStore) Consume(phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[phone]
	if !ok {
		return ErrInvalidCode
	}
	if time.Now().After(ch.expiresAt) {
		delete(s.challenges, phone)
		return ErrInvalidCode
	}
	if ch.code != code {
		return ErrInvalidCode
	}

	delete(s.challenges, phone)
	return nil
}
