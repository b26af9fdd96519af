package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const sessionCookie = "cat_session"

// Session is the per-browser state. It only ever holds a key typed in by the
// user; nothing is written to disk.
type Session struct {
	PromptKey string
}

// SessionStore keeps sessions in memory. A session expires ttl after its key
// was last stored; reading it does not extend its life, matching the cookie.
type SessionStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewSessionStore creates a store whose entries live for ttl
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{cache: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Get returns the session for the request cookie, if any
func (s *SessionStore) Get(r *http.Request) (Session, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return Session{}, false
	}
	v, ok := s.cache.Get(c.Value)
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

// SetPromptKey stores key in the caller's session, creating the session and
// its cookie when needed
func (s *SessionStore) SetPromptKey(w http.ResponseWriter, r *http.Request, key string) {
	id := ""
	if c, err := r.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			id = c.Value
		}
	}
	if id == "" {
		id = uuid.NewString()
	}

	s.cache.Set(id, Session{PromptKey: key}, cache.DefaultExpiration)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearPromptKey forgets the key held by the caller's session
func (s *SessionStore) ClearPromptKey(r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.cache.Delete(c.Value)
	}
}
