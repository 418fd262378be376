package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionCookieName holds the signed browser session id
const SessionCookieName = "upsell_session"

// ErrInvalidSessionCookie is returned for tampered or malformed cookies
var ErrInvalidSessionCookie = errors.New("invalid session cookie")

// SessionCodec signs browser session ids. Cookie value format:
// sessionID.base64(hmac(sessionID))
type SessionCodec struct {
	Secret []byte
	Secure bool
}

// NewSessionCodec creates a codec with the given signing secret
func NewSessionCodec(secret []byte, secure bool) *SessionCodec {
	return &SessionCodec{Secret: secret, Secure: secure}
}

// Encode returns the cookie value for sessionID
func (c *SessionCodec) Encode(sessionID string) string {
	return sessionID + "." + c.sign(sessionID)
}

// Decode verifies a cookie value and returns the session id
func (c *SessionCodec) Decode(v string) (string, error) {
	id, sig, ok := strings.Cut(v, ".")
	if !ok || id == "" || strings.Contains(sig, ".") {
		return "", ErrInvalidSessionCookie
	}
	if !hmac.Equal([]byte(c.sign(id)), []byte(sig)) {
		return "", ErrInvalidSessionCookie
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrInvalidSessionCookie
	}
	return id, nil
}

func (c *SessionCodec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.Secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// set writes a browser-session cookie (no Max-Age) so values live as long as the tab session
func (c *SessionCodec) set(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    c.Encode(sessionID),
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type sessionKey struct{}

// SessionID returns the browser session id attached by Sessions
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func withSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// Sessions attaches a browser session id to every request, issuing a new
// signed cookie when none is present or the existing one does not verify
func Sessions(codec *SessionCodec, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				decoded, err := codec.Decode(cookie.Value)
				if err != nil {
					logger.Warn("discarding invalid session cookie", zap.String("path", r.URL.Path))
				}
				id = decoded
			}
			if id == "" {
				id = uuid.NewString()
				codec.set(w, id)
			}
			next.ServeHTTP(w, r.WithContext(withSessionID(r.Context(), id)))
		})
	}
}
