package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"school-portal/internal/config"
	"school-portal/internal/models"
	"school-portal/internal/policy"
	"school-portal/internal/repository"
	"school-portal/internal/services"
	"school-portal/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "handler-test-secret-0123456789abcdef"

type testServer struct {
	router     *gin.Engine
	sessions   *services.SessionService
	principals *testutil.PrincipalStore
	audit      *testutil.AuditStore
	academic   *testutil.AcademicStore
	notifier   *testutil.Notifier
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: "development",
		AuthCfg: config.AuthConfig{
			JWTSecret:             testJWTSecret,
			Issuer:                "school-portal",
			SessionTTL:            24 * time.Hour,
			AdminSessionTTL:       7 * 24 * time.Hour,
			SessionCookie:         "session-token",
			AdminCookie:           "admin-session",
			ResetCodeTTL:          15 * time.Minute,
			DemoResetCode:         "123456",
			FailedLoginAlertEvery: 5,
		},
	}
}

func newTestServer(t *testing.T, mutate ...func(*config.AppConfig)) *testServer {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := &testServer{
		sessions:   services.NewSessionService(repository.NewSessionRepository(client)),
		principals: testutil.NewPrincipalStore(),
		audit:      &testutil.AuditStore{},
		academic:   &testutil.AcademicStore{},
		notifier:   &testutil.Notifier{},
	}
	seedPrincipals(t, s.principals)
	seedAcademic(s.academic)

	auditService := services.NewAuditService(s.audit, &testutil.ArchiveSink{})
	authService, err := services.NewAuthService(
		s.principals,
		s.sessions,
		services.NewJWTService(cfg.AuthCfg.JWTSecret, cfg.AuthCfg.Issuer),
		auditService,
		repository.NewAuthCacheRepository(client),
		s.notifier,
		cfg.AuthCfg,
	)
	require.NoError(t, err)

	enforcer, err := policy.NewEnforcer()
	require.NoError(t, err)

	s.router = SetupRouter(RouterDeps{
		Config:         cfg,
		AuthService:    authService,
		SessionService: s.sessions,
		AuditService:   auditService,
		AcademicRepo:   s.academic,
		Enforcer:       enforcer,
		Routes:         policy.NewRouteTable(policy.DefaultRouteRules),
	})
	return s
}

func seedPrincipals(t *testing.T, store *testutil.PrincipalStore) {
	hash := testutil.MustHash(t, "password123")
	identity := func(id, username string) models.Identity {
		return models.Identity{ID: id, Username: username, PasswordHash: hash}
	}
	classID := 1

	store.Add(&models.Admin{Identity: identity("a-1", "admin")})
	store.Add(&models.Teacher{Identity: identity("t-1", "teacher1")})
	store.Add(&models.Teacher{Identity: identity("t-2", "teacher2")})
	store.Add(&models.Parent{Identity: identity("p-1", "parent1")})
	store.Add(&models.Parent{Identity: identity("p-2", "parent2")})
	store.Add(&models.Student{Identity: identity("s-1", "student1"), ParentID: "p-1", ClassID: &classID})
	store.Add(&models.Student{Identity: identity("s-2", "student2"), ParentID: "p-2", ClassID: &classID})
}

func seedAcademic(store *testutil.AcademicStore) {
	classID := 1
	store.Students = []*models.StudentRecord{
		{ID: "s-1", Username: "student1", ParentID: "p-1", ClassID: &classID},
		{ID: "s-2", Username: "student2", ParentID: "p-2", ClassID: &classID},
	}
	store.Results = []*models.Result{
		{ID: 1, Score: 70, StudentID: "s-1", TeacherID: "t-1", ParentID: "p-1"},
		{ID: 2, Score: 85, StudentID: "s-2", TeacherID: "t-2", ParentID: "p-2"},
	}
	store.Assignments = []*models.Assignment{
		{ID: 1, Title: "Fractions", TeacherID: "t-1", ClassID: 1},
		{ID: 2, Title: "Essay", TeacherID: "t-2", ClassID: 2},
	}
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(name, value string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func (s *testServer) do(t *testing.T, method, path string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "handler-test")
	for _, opt := range opts {
		opt(req)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/login", gin.H{"username": username, "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.LoginResponse
	decodeData(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	env := decodeEnvelope(t, w)
	require.True(t, env.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (s *testServer) activeSessions(t *testing.T, userID string) []*models.Session {
	t.Helper()
	sessions, err := s.sessions.ListActive(context.Background(), userID)
	require.NoError(t, err)
	return sessions
}
