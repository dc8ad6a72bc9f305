package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/custody/internal/auth"
	"github.com/odyssey-erp/custody/internal/shared"
	_ "github.com/odyssey-erp/custody/testing"
)

type stubRepo struct {
	user     *auth.User
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = map[string]int64{}
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type harness struct {
	router   chi.Router
	sessions *shared.SessionManager
	redis    *miniredis.Miniredis
	repo     *stubRepo
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hashed, err := auth.HashPassword("correctpass")
	require.NoError(t, err)
	repo := &stubRepo{user: &auth.User{ID: 7, Email: "keeper@test.local", PasswordHash: hashed, IsActive: true}}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "custody_session", "test-secret", time.Hour, false)

	handler := auth.NewHandler(nil, auth.NewService(repo), sessions)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			if sess.User() == "7" {
				ctx = shared.ContextWithActor(ctx, 7)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
			require.NoError(t, sessions.Commit(ctx, w, sess))
		})
	})
	r.Route("/auth", handler.MountRoutes)
	return &harness{router: r, sessions: sessions, redis: mr, repo: repo}
}

func (h *harness) do(method, path, body, session string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set("Authorization", "Bearer "+session)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func TestLoginCreatesSession(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/auth/login", `{"email":"KEEPER@test.local","password":"correctpass"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		SessionID string `json:"session_id"`
		User      struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(7), body.User.ID)
	require.NotEmpty(t, body.SessionID)
	require.NotContains(t, rec.Body.String(), "password_hash")

	require.True(t, h.redis.Exists(h.sessions.StorageKey(body.SessionID)))
	require.Equal(t, int64(7), h.repo.sessions[body.SessionID])

	me := h.do(http.MethodGet, "/auth/me", "", body.SessionID)
	require.Equal(t, http.StatusOK, me.Code)
	require.Contains(t, me.Body.String(), "keeper@test.local")
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/auth/login", `{"email":"keeper@test.local","password":"wrongpass"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, h.redis.Keys())
}

func TestLoginValidatesBody(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/auth/login", `{"email":"not-an-email","password":"short"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Email")
	require.Contains(t, rec.Body.String(), "Password")

	rec = h.do(http.MethodPost, "/auth/login", `{`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutDestroysSession(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/auth/login", `{"email":"keeper@test.local","password":"correctpass"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	out := h.do(http.MethodPost, "/auth/logout", "", body.SessionID)
	require.Equal(t, http.StatusNoContent, out.Code)
	require.False(t, h.redis.Exists(h.sessions.StorageKey(body.SessionID)))
	require.NotContains(t, h.repo.sessions, body.SessionID)

	me := h.do(http.MethodGet, "/auth/me", "", body.SessionID)
	require.Equal(t, http.StatusUnauthorized, me.Code)
}
