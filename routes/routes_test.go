package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"socialfeed/auth"
	"socialfeed/config"
	"socialfeed/handlers"
	"socialfeed/interaction"
	"socialfeed/mailer"
	"socialfeed/middleware"
	"socialfeed/push"
	"socialfeed/store"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

type testServer struct {
	router *gin.Engine
	mem    *store.Memory
	mail   *captureMailer
}

func newTestServer(t *testing.T, limiter middleware.Limiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	mail := &captureMailer{}
	tokens := auth.NewTokens("routes-test-secret-123", time.Hour)
	creds := auth.NewCredentials(mem, auth.CredentialsOptions{BcryptCost: bcrypt.MinCost, StoreTimeout: time.Second})
	reset := auth.NewPasswordReset(creds, tokens, mail, time.Second)
	engine := interaction.NewEngine(mem, mem, creds, interaction.Options{StoreTimeout: time.Second})

	h := handlers.New(handlers.Deps{
		Credentials:   creds,
		Tokens:        tokens,
		PasswordReset: reset,
		Engine:        engine,
		Push:          push.NewService(mem, config.VAPIDConfig{}),
		BaseURL:       "http://feed.test",
	})
	router := SetupRouter(h, Options{
		CORSOrigins: []string{"http://localhost:3000"},
		Gateway:     middleware.Authenticate(tokens, creds, time.Second),
		Limiter:     limiter,
		RateLimit:   100,
	})
	return &testServer{router: router, mem: mem, mail: mail}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

type authResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

func (s *testServer) register(t *testing.T, username string) authResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": username + "-password",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 registering %s, got %d: %s", username, w.Code, w.Body.String())
	}
	var resp authResponse
	decode(t, w, &resp)
	return resp
}

func TestLikeFlowEndToEnd(t *testing.T) {
	s := newTestServer(t, nil)

	alice := s.register(t, "alice")
	bob := s.register(t, "bob")

	w := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "alice-password"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected login 200, got %d: %s", w.Code, w.Body.String())
	}
	var login authResponse
	decode(t, w, &login)

	w = s.do(t, http.MethodPost, "/posts", login.Token, map[string]any{"content": "hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating post, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Post struct {
			ID string `json:"id"`
		} `json:"post"`
	}
	decode(t, w, &created)

	w = s.do(t, http.MethodPost, "/posts/"+created.Post.ID+"/like", bob.Token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "post liked") {
		t.Fatalf("expected post liked, got %d: %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/posts/"+created.Post.ID+"/like", bob.Token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "you already liked the post") {
		t.Fatalf("expected already liked, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/posts/"+alice.User.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 listing posts, got %d: %s", w.Code, w.Body.String())
	}
	var listed struct {
		Posts []struct {
			Content   string `json:"content"`
			LikeCount int    `json:"likeCount"`
			LikedBy   []struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"likedBy"`
		} `json:"posts"`
	}
	decode(t, w, &listed)
	if len(listed.Posts) != 1 {
		t.Fatalf("expected one post, got %d", len(listed.Posts))
	}
	p := listed.Posts[0]
	if p.Content != "hello" || p.LikeCount != 1 {
		t.Fatalf("expected hello with one like, got %+v", p)
	}
	if len(p.LikedBy) != 1 || p.LikedBy[0].ID != bob.User.ID || p.LikedBy[0].Username != "bob" {
		t.Fatalf("expected likedBy [bob], got %+v", p.LikedBy)
	}
}

func TestForgetPasswordUnknownEmail(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register(t, "alice")

	w := s.do(t, http.MethodPost, "/forgetPassword", "", map[string]string{"email": "nobody@example.com"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
	if len(s.mail.sent) != 0 {
		t.Fatalf("expected no mail, got %d", len(s.mail.sent))
	}
	stored, _ := s.mem.GetUserByUsername(context.Background(), "alice")
	if stored.HasPendingReset() || stored.ID.Hex() != alice.User.ID {
		t.Fatal("expected alice to have no pending reset")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "alice")

	w := s.do(t, http.MethodPost, "/forgetPassword", "", map[string]string{"email": "alice@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := s.mail.sent[0].Body
	i := strings.Index(body, "http://feed.test/resetPassword/")
	if i < 0 {
		t.Fatalf("expected reset link in mail, got %q", body)
	}
	token := body[i+len("http://feed.test/resetPassword/"):][:64]

	w = s.do(t, http.MethodPost, "/resetPassword/"+token, "", map[string]string{"password": "brand-new"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), middleware.CookieName+"=") {
		t.Fatalf("expected session cookie, got %q", w.Header().Get("Set-Cookie"))
	}

	w = s.do(t, http.MethodPost, "/resetPassword/"+token, "", map[string]string{"password": "again"})
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "TOKEN_INVALID") {
		t.Fatalf("expected 401 TOKEN_INVALID on reuse, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "brand-new"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected login with new password, got %d", w.Code)
	}
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register(t, "alice")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{name: "duplicate register", method: http.MethodPost, path: "/register", body: map[string]string{"username": "alice", "email": "alice@example.com", "password": "x"}, status: http.StatusConflict, code: "CONFLICT"},
		{name: "register missing field", method: http.MethodPost, path: "/register", body: map[string]string{"username": "carol"}, status: http.StatusBadRequest, code: "VALIDATION_ERROR"},
		{name: "wrong password", method: http.MethodPost, path: "/login", body: map[string]string{"username": "alice", "password": "nope"}, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "post without identity", method: http.MethodPost, path: "/posts", body: map[string]string{"content": "hi"}, status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "blank content", method: http.MethodPost, path: "/posts", token: alice.Token, body: map[string]string{"content": "  "}, status: http.StatusBadRequest, code: "VALIDATION_ERROR"},
		{name: "bad post id", method: http.MethodGet, path: "/posts/not-an-id", status: http.StatusBadRequest, code: "VALIDATION_ERROR"},
		{name: "author without posts", method: http.MethodGet, path: "/posts/" + alice.User.ID, status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "like missing post", method: http.MethodPost, path: "/posts/507f1f77bcf86cd799439011/like", token: alice.Token, status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "garbage token is anonymous", method: http.MethodGet, path: "/me", token: "garbage", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "vapid not configured", method: http.MethodGet, path: "/push/vapid-public-key", status: http.StatusServiceUnavailable, code: "UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.token, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			var resp struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			decode(t, w, &resp)
			if resp.Code != tt.code || resp.Error == "" {
				t.Fatalf("expected code %s with a message, got %+v", tt.code, resp)
			}
		})
	}
}

func TestCommentUpdateDeleteFlow(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register(t, "alice")
	bob := s.register(t, "bob")

	w := s.do(t, http.MethodPost, "/posts", alice.Token, map[string]any{"content": "hello", "images": []string{"a.png"}})
	var created struct {
		Post struct {
			ID string `json:"id"`
		} `json:"post"`
	}
	decode(t, w, &created)
	postPath := "/posts/" + created.Post.ID

	w = s.do(t, http.MethodPost, postPath+"/comment", bob.Token, map[string]string{"body": "nice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var commented struct {
		Comment struct {
			ID string `json:"id"`
		} `json:"comment"`
	}
	decode(t, w, &commented)

	w = s.do(t, http.MethodPatch, postPath, alice.Token, map[string]any{"content": "edited"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"a.png"`) {
		t.Fatalf("expected edit to keep images, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/posts/"+alice.User.ID, "", nil)
	if !strings.Contains(w.Body.String(), `"body":"nice"`) {
		t.Fatalf("expected populated comment, got %s", w.Body.String())
	}

	w = s.do(t, http.MethodDelete, postPath, alice.Token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), commented.Comment.ID) {
		t.Fatalf("expected dangling comment in delete response, got %d: %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodGet, "/posts/"+alice.User.ID, "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 once alice has no posts, got %d", w.Code)
	}
}

func TestCredentialRoutesAreRateLimited(t *testing.T) {
	s := newTestServer(t, middleware.NewIPRateLimiter(2, time.Minute))

	codes := []int{}
	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/login", "", map[string]string{"username": "x", "password": "y"})
		codes = append(codes, w.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected third login to be limited, got %v", codes)
	}

	w := s.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected health to be unaffected, got %d", w.Code)
	}
}

func TestRateLimitIgnoresForwardedForFromUntrustedClients(t *testing.T) {
	s := newTestServer(t, middleware.NewIPRateLimiter(2, time.Minute))

	limited := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"x","password":"y"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 8 {
		t.Fatalf("expected 8 of 10 requests limited despite rotating X-Forwarded-For, got %d", limited)
	}
}

func TestResetLinkIgnoresRequestHost(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "alice")

	req := httptest.NewRequest(http.MethodPost, "/forgetPassword", strings.NewReader(`{"email":"alice@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Host = "attacker.example"
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "attacker.example")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := s.mail.sent[0].Body
	if strings.Contains(body, "attacker.example") {
		t.Fatalf("expected request host to stay out of the mail, got %q", body)
	}
	if !strings.Contains(body, "http://feed.test/resetPassword/") {
		t.Fatalf("expected configured base url in the mail, got %q", body)
	}
}

func TestSetupRouterWithoutCORSOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := SetupRouter(handlers.New(handlers.Deps{}), Options{
		Gateway: func(c *gin.Context) { c.Next() },
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestUploadWithoutConfiguration(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register(t, "alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("image", "a.png")
	_, _ = part.Write([]byte("fake image"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
}
