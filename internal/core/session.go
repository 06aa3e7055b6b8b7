package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MailState tracks the mail form of one session.
//
// Each render of the form carries a one-time token. A send consumes it, so a
// browser resubmitting the same form does not deliver twice. A failed send
// issues a fresh token so the user can retry.
type MailState struct {
	Sent   bool
	SentTo string
	SentAt time.Time

	token string
}

// Token returns the token the next mail form must carry.
func (m MailState) Token() string { return m.token }

// Session is the per-browser interactive state. It is safe for concurrent use.
type Session struct {
	ID string

	mu       sync.Mutex
	dataset  *Dataset
	mail     MailState
	lastSeen time.Time
}

// NewSession returns a session with a random ID.
func NewSession() *Session {
	return &Session{ID: uuid.NewString(), lastSeen: time.Now()}
}

// Dataset returns the current validated dataset, or nil.
func (s *Session) Dataset() *Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset
}

// SetDataset replaces the dataset and resets the mail state.
func (s *Session) SetDataset(d *Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataset = d
	s.mail = MailState{token: uuid.NewString()}
}

// Clear drops the dataset, as after a failed upload.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataset = nil
	s.mail = MailState{}
}

// Mail returns a snapshot of the mail state.
func (s *Session) Mail() MailState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mail.token == "" && s.dataset != nil {
		s.mail.token = uuid.NewString()
	}
	return s.mail
}

// beginSend consumes token. It fails with ErrAlreadySent when the token is
// stale, which is how resubmissions are detected.
func (s *Session) beginSend(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" || token != s.mail.token {
		return ErrAlreadySent
	}
	s.mail.token = ""
	return nil
}

// finishSend records the outcome of a send.
func (s *Session) finishSend(to string, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mail.token = uuid.NewString()
	if err != nil {
		return
	}
	s.mail.Sent = true
	s.mail.SentTo = to
	s.mail.SentAt = at
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionStore holds sessions in memory. Nothing is persisted.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a store whose sessions expire after ttl of inactivity.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a live session and marks it as used.
func (s *SessionStore) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := s.now()
	if s.ttl > 0 && now.Sub(sess.idleSince()) > s.ttl {
		s.Delete(id)
		return nil, false
	}
	sess.touch(now)
	return sess, true
}

// GetOrCreate returns the session for id, creating one when id is unknown or
// expired. created reports whether a new session was made.
func (s *SessionStore) GetOrCreate(id string) (sess *Session, created bool) {
	if sess, ok := s.Get(id); ok {
		return sess, false
	}
	sess = NewSession()
	sess.lastSeen = s.now()

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess, true
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of stored sessions, expired or not.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many
// were removed.
func (s *SessionStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper removes idle sessions every interval until ctx is cancelled.
func (s *SessionStore) StartSweeper(ctx context.Context, interval time.Duration) {
	slog.Info("session sweeper started", "interval", interval, "ttl", s.ttl)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			start := time.Now()
			if removed := s.Sweep(); removed > 0 {
				slog.Info("expired idle sessions",
					"removed", removed,
					"remaining", s.Len(),
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}
		}
	}
}
