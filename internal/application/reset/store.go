// Package reset keeps password-reset tokens in process memory.
package reset

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-identity-quota/internal/domain"
	"github.com/go-identity-quota/internal/pkg/otpcode"
	"github.com/jonboulle/clockwork"
)

const (
	// MaxEntries is the size above which an insert triggers eviction.
	MaxEntries = 50
	// KeepOnEvict is how many of the newest entries survive an eviction.
	KeepOnEvict = 2

	maxTokenAttempts = 16
)

type entry struct {
	domain.ResetToken
	seq uint64
}

// Store maps reset tokens to emails. It is bounded by a coarse policy: once an insert pushes
// it past MaxEntries, only the KeepOnEvict most recently created entries are retained.
type Store struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	tokens   map[string]entry
	seq      uint64
	newToken func() (string, error)
}

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		clock:    clock,
		tokens:   make(map[string]entry),
		newToken: otpcode.New,
	}
}

// Issue creates a token for email that expires domain.ResetTokenValidity from now.
func (s *Store) Issue(email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var token string
	for i := 0; ; i++ {
		if i == maxTokenAttempts {
			return "", fmt.Errorf("issue reset token: no free token after %d attempts", maxTokenAttempts)
		}
		t, err := s.newToken()
		if err != nil {
			return "", err
		}
		if _, taken := s.tokens[t]; !taken {
			token = t
			break
		}
	}

	now := s.clock.Now().UTC()
	s.seq++
	s.tokens[token] = entry{
		ResetToken: domain.ResetToken{
			Token:     token,
			Email:     domain.NormalizeEmail(email),
			CreatedAt: now,
			ExpiresAt: now.Add(domain.ResetTokenValidity),
		},
		seq: s.seq,
	}
	if len(s.tokens) > MaxEntries {
		s.evictLocked()
	}
	return token, nil
}

// Consume returns the entry bound to token and deletes it, provided it has not expired.
// Missing and expired tokens both report ok=false; an expired entry is left in place.
func (s *Store) Consume(token string) (domain.ResetToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.tokens[token]
	if !found || !s.clock.Now().Before(e.ExpiresAt) {
		return domain.ResetToken{}, false
	}
	delete(s.tokens, token)
	return e.ResetToken, true
}

// Restore puts back a consumed entry whose password change could not be stored.
// Nothing happens when the entry has expired in the meantime or its token was reissued.
func (s *Store) Restore(t domain.ResetToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.clock.Now().Before(t.ExpiresAt) {
		return
	}
	if _, taken := s.tokens[t.Token]; taken {
		return
	}
	s.seq++
	s.tokens[t.Token] = entry{ResetToken: t, seq: s.seq}
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *Store) evictLocked() {
	all := make([]entry, 0, len(s.tokens))
	for _, e := range s.tokens {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].seq > all[j].seq
	})
	for _, e := range all[KeepOnEvict:] {
		delete(s.tokens, e.Token)
	}
}
