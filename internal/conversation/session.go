package conversation

import (
	"context"
	"sync"
	"time"

	"order-engine/internal/cache"
	"order-engine/internal/model"
)

// Session is the state of one conversation: its stage record and its cart.
type Session struct {
	ConversationID string
	TenantID       string
	State          State
	Cart           *model.Cart
	Customer       model.Customer
	UpdatedAt      time.Time
}

func newSession(tenantID, conversationID string, now time.Time) *Session {
	return &Session{
		ConversationID: conversationID,
		TenantID:       tenantID,
		State:          BrowsingState{},
		Cart:           model.NewCart(tenantID),
		UpdatedAt:      now,
	}
}

// clone returns a copy that can be mutated without touching the stored session.
func (s *Session) clone() *Session {
	out := *s
	out.State = cloneState(s.State)
	cart := s.Cart.Snapshot()
	out.Cart = &cart
	return &out
}

// SessionStore keeps sessions in memory with sliding expiry. An expired
// session takes its cart with it.
type SessionStore struct {
	sessions *cache.TTLCache[*Session]
	ttl      time.Duration
	locks    keyedMutex
}

// NewSessionStore creates a store whose sessions expire after ttl of inactivity.
func NewSessionStore(ttl time.Duration, maxSessions int, now func() time.Time) *SessionStore {
	return &SessionStore{
		sessions: cache.New[*Session](cache.Config{TTL: ttl, MaxEntries: maxSessions, Now: now}),
		ttl:      ttl,
		locks:    keyedMutex{locks: make(map[string]*refLock)},
	}
}

func sessionKey(tenantID, conversationID string) string {
	return tenantID + "/" + conversationID
}

// Get returns a copy of the live session, if any.
func (s *SessionStore) Get(tenantID, conversationID string) (*Session, bool) {
	sess, ok := s.sessions.Get(sessionKey(tenantID, conversationID))
	if !ok {
		return nil, false
	}
	return sess.clone(), true
}

// Put stores a session and restarts its expiry.
func (s *SessionStore) Put(sess *Session) {
	s.sessions.SetWithTTL(sessionKey(sess.TenantID, sess.ConversationID), sess, s.ttl)
}

// Delete drops a session.
func (s *SessionStore) Delete(tenantID, conversationID string) {
	s.sessions.Delete(sessionKey(tenantID, conversationID))
}

// Len returns the number of stored sessions, expired ones included until purged.
func (s *SessionStore) Len() int {
	return s.sessions.Len()
}

// Purge removes expired sessions and returns how many were dropped.
func (s *SessionStore) Purge() int {
	return s.sessions.Purge()
}

// RunJanitor purges expired sessions every interval until ctx is done.
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Purge()
		}
	}
}

// Lock serializes work on one conversation. The returned func unlocks.
func (s *SessionStore) Lock(tenantID, conversationID string) func() {
	return s.locks.lock(sessionKey(tenantID, conversationID))
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
