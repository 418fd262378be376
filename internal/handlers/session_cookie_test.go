package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSessionCodec(t *testing.T) {
	codec := NewSessionCodec([]byte("0123456789abcdef"), false)
	other := NewSessionCodec([]byte("fedcba9876543210"), false)

	value := codec.Encode(testSession)

	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{"valid", value, testSession, false},
		{"signed with another secret", other.Encode(testSession), "", true},
		{"tampered id", "00000000-0000-0000-0000-000000000000" + value[len(testSession):], "", true},
		{"no signature", testSession, "", true},
		{"extra segment", value + ".x", "", true},
		{"not a uuid", codec.Encode("admin"), "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := codec.Decode(tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSessionCookie)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessions(t *testing.T) {
	codec := NewSessionCodec([]byte("0123456789abcdef"), true)

	var seen string
	handler := Sessions(codec, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionID(r.Context())
	}))

	t.Run("issues a cookie", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/upsell/skins", nil))

		_, err := uuid.Parse(seen)
		require.NoError(t, err)

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, SessionCookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
		assert.Zero(t, cookies[0].MaxAge)
		assert.Equal(t, codec.Encode(seen), cookies[0].Value)
	})

	t.Run("keeps a valid cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/upsell/skins", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: codec.Encode(testSession)})
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, testSession, seen)
		assert.Empty(t, rr.Result().Cookies())
	})

	t.Run("replaces a forged cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/upsell/skins", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: testSession + ".forged"})
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.NotEqual(t, testSession, seen)
		assert.Len(t, rr.Result().Cookies(), 1)
	})
}
