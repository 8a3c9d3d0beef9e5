package httpserver

import (
	"crypto/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/SayHoang/plantidentify/internal/feedback"
	"github.com/SayHoang/plantidentify/internal/logging"
)

const (
	sessionCookieName = "plantidentify"
	sessionIDKey      = "sid"
)

// sessionRegistry binds browser cookies to in-memory feedback sessions. The
// cookie carries only an opaque id, all workflow state lives server-side in a
// TTL cache whose expiry slides on every request.
type sessionRegistry struct {
	cookies *sessions.CookieStore
	live    *cache.Cache
	ttl     time.Duration
}

func newSessionRegistry(secret string, ttl time.Duration) *sessionRegistry {
	key := []byte(secret)
	if len(key) == 0 {
		// Sessions will not survive a restart without a configured secret.
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			logging.Warn("failed to generate session key", "error", err)
		}
		logging.Warn("server.sessionsecret is not set, using a random per-process key")
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &sessionRegistry{
		cookies: store,
		live:    cache.New(ttl, ttl*2),
		ttl:     ttl,
	}
}

// acquire resolves the feedback session for the request, creating the cookie
// and the server-side state on first contact.
func (r *sessionRegistry) acquire(ctx echo.Context) (*feedback.Session, error) {
	cookie, err := r.cookies.Get(ctx.Request(), sessionCookieName)
	if err != nil {
		// A tampered or stale cookie decodes to a fresh session.
		cookie, _ = r.cookies.New(ctx.Request(), sessionCookieName)
	}

	sid, _ := cookie.Values[sessionIDKey].(string)
	if sid == "" {
		sid = uuid.New().String()
		cookie.Values[sessionIDKey] = sid
		if err := cookie.Save(ctx.Request(), ctx.Response()); err != nil {
			return nil, err
		}
	}

	if cached, found := r.live.Get(sid); found {
		if session, ok := cached.(*feedback.Session); ok {
			r.live.Set(sid, session, r.ttl)
			return session, nil
		}
	}

	session := feedback.NewSession()
	r.live.Set(sid, session, r.ttl)
	return session, nil
}
