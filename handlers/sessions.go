package handlers

import (
	"github.com/gin-gonic/gin"

	"setlistify/auth"
	"setlistify/database"
)

const sessionIDKey = "sessionID"

// SessionBackend picks where a request's token pair lives.
type SessionBackend interface {
	Session(c *gin.Context) auth.SessionStore
	// Fresh drops whatever session the request carried and starts a new one.
	// Used after login so a session id chosen by someone else is never reused.
	Fresh(c *gin.Context) (auth.SessionStore, error)
	// ServerSide reports whether tokens stay off the browser.
	ServerSide() bool
}

type cookieSessions struct {
	opts  auth.CookieOptions
	clock auth.Clock
}

// CookieSessions keeps tokens in the browser's cookies.
func CookieSessions(opts auth.CookieOptions, clock auth.Clock) SessionBackend {
	return &cookieSessions{opts: opts, clock: clock}
}

func (s *cookieSessions) Session(c *gin.Context) auth.SessionStore {
	return auth.NewCookieStore(c.Writer, c.Request, s.opts, s.clock)
}

// Fresh needs no rotation: saving overwrites every token cookie.
func (s *cookieSessions) Fresh(c *gin.Context) (auth.SessionStore, error) {
	return s.Session(c), nil
}

func (s *cookieSessions) ServerSide() bool { return false }

type sqliteSessions struct {
	db   *database.Database
	opts auth.CookieOptions
}

// SQLiteSessions keeps tokens server-side; the browser only holds a session id.
// Ids without a stored session are replaced, never adopted.
func SQLiteSessions(db *database.Database, opts auth.CookieOptions) SessionBackend {
	return &sqliteSessions{db: db, opts: opts}
}

func (s *sqliteSessions) Session(c *gin.Context) auth.SessionStore {
	if id := c.GetString(sessionIDKey); id != "" {
		return s.db.Sessions(id)
	}
	ctx := c.Request.Context()
	id := auth.SessionID(c.Writer, c.Request, s.opts, func(id string) bool {
		return s.db.HasSession(ctx, id)
	})
	c.Set(sessionIDKey, id)
	return s.db.Sessions(id)
}

func (s *sqliteSessions) Fresh(c *gin.Context) (auth.SessionStore, error) {
	if old := auth.RequestSessionID(c.Request); old != "" {
		if err := s.db.Sessions(old).Clear(c.Request.Context()); err != nil {
			return nil, err
		}
	}
	id := auth.NewSessionID(c.Writer, s.opts)
	c.Set(sessionIDKey, id)
	return s.db.Sessions(id), nil
}

func (s *sqliteSessions) ServerSide() bool { return true }
