package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator("test-secret", "photoflow", zap.NewNop())
}

func echoActor() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFrom(r.Context())
		_, _ = w.Write([]byte(actor.ID + "/" + actor.Role))
	})
}

func TestAuthenticator_IssueAndParse(t *testing.T) {
	a := newTestAuthenticator()

	token, err := a.Issue(Actor{ID: "user-1", Role: "Photographer"}, time.Minute)
	require.NoError(t, err)

	actor, err := a.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, Actor{ID: "user-1", Role: RolePhotographer}, actor)
}

func TestAuthenticator_ParseRejectsBadTokens(t *testing.T) {
	a := newTestAuthenticator()

	expired, err := a.Issue(Actor{ID: "user-1", Role: RoleAdmin}, -time.Minute)
	require.NoError(t, err)
	_, err = a.Parse(expired)
	require.ErrorIs(t, err, errInvalidToken)

	other := NewAuthenticator("other-secret", "photoflow", zap.NewNop())
	forged, err := other.Issue(Actor{ID: "user-1", Role: RoleAdmin}, time.Minute)
	require.NoError(t, err)
	_, err = a.Parse(forged)
	require.ErrorIs(t, err, errInvalidToken)

	wrongIssuer := NewAuthenticator("test-secret", "someone-else", zap.NewNop())
	foreign, err := wrongIssuer.Issue(Actor{ID: "user-1", Role: RoleAdmin}, time.Minute)
	require.NoError(t, err)
	_, err = a.Parse(foreign)
	require.ErrorIs(t, err, errInvalidToken)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "photoflow",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = a.Parse(noSubject)
	require.ErrorIs(t, err, errInvalidToken)
}

func TestMiddleware(t *testing.T) {
	a := newTestAuthenticator()
	handler := a.Middleware(echoActor())

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := a.Issue(Actor{ID: "p-7", Role: RolePhotographer}, time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "p-7/photographer", rec.Body.String())
	})
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RolePhotographer, RoleAdmin)(echoActor())

	cases := []struct {
		name   string
		actor  *Actor
		status int
	}{
		{name: "no actor", status: http.StatusUnauthorized},
		{name: "plain user", actor: &Actor{ID: "u", Role: RoleUser}, status: http.StatusForbidden},
		{name: "photographer", actor: &Actor{ID: "p", Role: RolePhotographer}, status: http.StatusOK},
		{name: "admin mixed case", actor: &Actor{ID: "a", Role: "ADMIN"}, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.actor != nil {
				req = req.WithContext(WithActor(req.Context(), *tc.actor))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	assert.Nil(t, NewRateLimiter(0, 5))

	limiter := NewRateLimiter(0.001, 2)
	defer limiter.Stop()

	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(actorID string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req = req.WithContext(WithActor(req.Context(), Actor{ID: actorID, Role: RolePhotographer}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("a"))
	assert.Equal(t, http.StatusNoContent, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	assert.Equal(t, http.StatusNoContent, send("b"))
}
