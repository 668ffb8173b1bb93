// Package session manages caller sessions: identity, expiry, and the small
// per-session scratchpad that gives commands continuity across a
// conversation.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nullfox-coder/NatanAI/pkg/logging"
	"github.com/nullfox-coder/NatanAI/pkg/types"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Session is a caller's continuity handle across commands.
type Session struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	LastActive  time.Time         `json:"last_active"`
	LastCommand string            `json:"last_command,omitempty"`
	LastResult  *types.PlanResult `json:"last_result,omitempty"`
	Data        map[string]any    `json:"data"`
}

// clone returns a copy safe to hand to callers; Data is shallow-copied so
// store internals are never aliased.
func (s *Session) clone() *Session {
	cp := *s
	cp.Data = make(map[string]any, len(s.Data))
	for k, v := range s.Data {
		cp.Data[k] = v
	}
	return &cp
}

// Update describes a partial session mutation. Nil fields are left
// untouched; Data entries are merged key-by-key, never replacing the
// scratchpad wholesale.
type Update struct {
	UserID      *string
	LastCommand *string
	LastResult  *types.PlanResult
	Data        map[string]any
}

// Store owns all sessions. Each operation is atomic with respect to a
// single session id; different sessions never contend by construction.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	expiry   time.Duration
	log      *logging.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewStore creates a session store with the given expiry window.
func NewStore(expiry time.Duration, log *logging.Logger) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		expiry:   expiry,
		log:      log,
		now:      time.Now,
	}
}

// Create allocates a fresh session, optionally bound to a user id.
func (s *Store) Create(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		CreatedAt:  now,
		LastActive: now,
		Data:       make(map[string]any),
	}
	s.sessions[sess.ID] = sess

	if s.log != nil {
		s.log.Infof("created session %s", sess.ID)
	}
	return sess.clone()
}

// Get returns the session and refreshes its last-active time. An expired
// session is deleted as a side effect and reported as ErrNotFound.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *Store) getLocked(id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	if s.now().Sub(sess.LastActive) > s.expiry {
		delete(s.sessions, id)
		if s.log != nil {
			s.log.Infof("session %s expired", id)
		}
		return nil, ErrNotFound
	}

	sess.LastActive = s.now()
	return sess.clone(), nil
}

// Update applies a partial mutation and refreshes last-active. Returns
// false if the session does not exist or has expired.
func (s *Store) Update(id string, u Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getLocked(id); err != nil {
		return false
	}
	sess := s.sessions[id]

	if u.UserID != nil {
		sess.UserID = *u.UserID
	}
	if u.LastCommand != nil {
		sess.LastCommand = *u.LastCommand
	}
	if u.LastResult != nil {
		sess.LastResult = u.LastResult
	}
	for k, v := range u.Data {
		sess.Data[k] = v
	}

	sess.LastActive = s.now()
	return true
}

// Delete removes a session. Returns false if it did not exist.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	if s.log != nil {
		s.log.Infof("deleted session %s", id)
	}
	return true
}

// ListActive returns all unexpired sessions, lazily evicting any that
// expired since their last touch.
func (s *Store) ListActive() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	active := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActive) > s.expiry {
			delete(s.sessions, id)
			continue
		}
		active = append(active, sess.clone())
	}
	return active
}

// ListByUser returns all unexpired sessions belonging to a user.
func (s *Store) ListByUser(userID string) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var result []*Session
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		if now.Sub(sess.LastActive) > s.expiry {
			continue
		}
		result = append(result, sess.clone())
	}
	return result
}

// CleanupExpired removes all expired sessions, returning how many were
// evicted.
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActive) > s.expiry {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// GetData returns one scratchpad value, or def if the session or key is
// absent.
func (s *Store) GetData(id, key string, def any) any {
	sess, err := s.Get(id)
	if err != nil {
		return def
	}
	if v, ok := sess.Data[key]; ok {
		return v
	}
	return def
}

// SetData sets one scratchpad value. Returns false if the session does not
// exist.
func (s *Store) SetData(id, key string, value any) bool {
	return s.Update(id, Update{Data: map[string]any{key: value}})
}
