package auth

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	AccessTokenCookie  = "spotifyAccessToken"
	RefreshTokenCookie = "spotifyRefreshToken"
	ExpiryCookie       = "spotifyAccessExp"
	StateCookie        = "oauth_state"
	VerifierCookie     = "code_verifier"
	SessionIDCookie    = "sid"

	refreshTokenMaxAge = 60 * 60 * 24 * 30
	loginCookieMaxAge  = 600
)

type CookieOptions struct {
	Secure bool
	Path   string
}

func (o CookieOptions) path() string {
	if o.Path == "" {
		return "/"
	}
	return o.Path
}

func (o CookieOptions) set(w http.ResponseWriter, name, value string, maxAge int, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.path(),
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (o CookieOptions) clear(w http.ResponseWriter, name string) {
	o.set(w, name, "", -1, true)
}

// CookieStore keeps the token pair in the browser's cookies.
type CookieStore struct {
	w     http.ResponseWriter
	r     *http.Request
	opts  CookieOptions
	clock Clock
}

func NewCookieStore(w http.ResponseWriter, r *http.Request, opts CookieOptions, clock Clock) *CookieStore {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CookieStore{w: w, r: r, opts: opts, clock: clock}
}

func (s *CookieStore) Load(_ context.Context) (*TokenPair, error) {
	access := cookieValue(s.r, AccessTokenCookie)
	refresh := cookieValue(s.r, RefreshTokenCookie)
	if access == "" && refresh == "" {
		return nil, nil
	}

	pair := &TokenPair{AccessToken: access, RefreshToken: refresh}
	if ms, err := strconv.ParseInt(cookieValue(s.r, ExpiryCookie), 10, 64); err == nil && ms > 0 {
		pair.ExpiresAt = time.UnixMilli(ms)
	}
	return pair, nil
}

func (s *CookieStore) Save(_ context.Context, pair TokenPair) error {
	maxAge := int(pair.ExpiresAt.Sub(s.clock.Now()).Seconds())
	if pair.ExpiresAt.IsZero() || maxAge <= 0 {
		maxAge = 3600
	}

	s.opts.set(s.w, AccessTokenCookie, pair.AccessToken, maxAge, true)
	if !pair.ExpiresAt.IsZero() {
		// readable by the front end so it can tell when to re-check the session
		s.opts.set(s.w, ExpiryCookie, strconv.FormatInt(pair.ExpiresAt.UnixMilli(), 10), refreshTokenMaxAge, false)
	}
	if pair.RefreshToken != "" {
		s.opts.set(s.w, RefreshTokenCookie, pair.RefreshToken, refreshTokenMaxAge, true)
	}
	return nil
}

func (s *CookieStore) Clear(_ context.Context) error {
	s.opts.clear(s.w, AccessTokenCookie)
	s.opts.clear(s.w, RefreshTokenCookie)
	s.opts.clear(s.w, ExpiryCookie)
	return nil
}

// SessionID returns the request's session id when known reports it as a
// live server-side session. Otherwise a new id is issued.
func SessionID(w http.ResponseWriter, r *http.Request, opts CookieOptions, known func(id string) bool) string {
	if id := cookieValue(r, SessionIDCookie); id != "" {
		if _, err := uuid.Parse(id); err == nil && known(id) {
			return id
		}
	}
	return NewSessionID(w, opts)
}

// NewSessionID issues a fresh session id cookie.
func NewSessionID(w http.ResponseWriter, opts CookieOptions) string {
	id := uuid.NewString()
	opts.set(w, SessionIDCookie, id, refreshTokenMaxAge, true)
	return id
}

// RequestSessionID is the raw sid cookie, unvalidated.
func RequestSessionID(r *http.Request) string {
	return cookieValue(r, SessionIDCookie)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
