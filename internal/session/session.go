// Package session keeps per-browser workspace state, such as the last
// analysis, keyed by a cookie.
package session

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"sqlcoach/internal/model"
)

// CookieName is the session cookie.
const CookieName = "sqlcoach_session"

const sweepEvery = time.Minute

// Workspace is what the service remembers about one browser session.
type Workspace struct {
	Query     string
	Dialect   string
	Analysis  *model.Analysis
	UpdatedAt time.Time
}

// Store holds workspaces in memory. Idle entries expire after ttl and are
// swept lazily on access.
type Store struct {
	ttl       time.Duration
	now       func() time.Time
	onChange  func(n int)
	mu        sync.Mutex
	entries   map[string]*Workspace
	lastSweep time.Time
}

// NewStore creates a store. onChange, if set, receives the live entry count
// after every change.
func NewStore(ttl time.Duration, onChange func(n int)) *Store {
	return &Store{
		ttl:      ttl,
		now:      time.Now,
		onChange: onChange,
		entries:  make(map[string]*Workspace),
	}
}

// Get returns a copy of the workspace for id, creating it if needed.
func (s *Store) Get(id string) Workspace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.touchLocked(id)
}

// Update applies fn to the workspace for id.
func (s *Store) Update(id string, fn func(*Workspace)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.touchLocked(id)
	fn(ws)
	ws.UpdatedAt = s.now()
}

// Clear resets the workspace for id.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; ok {
		delete(s.entries, id)
		s.notifyLocked()
	}
}

// Len returns the number of live workspaces.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) touchLocked(id string) *Workspace {
	now := s.now()
	if now.Sub(s.lastSweep) >= sweepEvery {
		s.sweepLocked(now)
	}

	ws, ok := s.entries[id]
	if ok && now.Sub(ws.UpdatedAt) > s.ttl {
		ok = false
	}
	if !ok {
		ws = &Workspace{}
		s.entries[id] = ws
		s.notifyLocked()
	}
	ws.UpdatedAt = now
	return ws
}

func (s *Store) sweepLocked(now time.Time) {
	s.lastSweep = now
	removed := false
	for id, ws := range s.entries {
		if now.Sub(ws.UpdatedAt) > s.ttl {
			delete(s.entries, id)
			removed = true
		}
	}
	if removed {
		s.notifyLocked()
	}
}

func (s *Store) notifyLocked() {
	if s.onChange != nil {
		s.onChange(len(s.entries))
	}
}

// ID returns the session id carried by r, issuing a new cookie on w when
// the request has none or an invalid one.
func ID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
