package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/internal/dataset"
	"github.com/Sandro385/expert-tune/internal/repository"
	"github.com/Sandro385/expert-tune/internal/service"
	"github.com/Sandro385/expert-tune/pkg/database"
	"github.com/Sandro385/expert-tune/pkg/llm"
	"github.com/Sandro385/expert-tune/pkg/tasks"
	"github.com/Sandro385/expert-tune/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Chat(_ context.Context, _ []llm.Message, _ llm.MessageWriter) (string, error) {
	return s.reply, s.err
}

type stubSubmitter struct {
	tasks []tasks.FineTuneTask
}

func (s *stubSubmitter) Submit(_ context.Context, task tasks.FineTuneTask) error {
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *stubSubmitter) CancelRunning(string) error { return nil }

type testServer struct {
	router    *gin.Engine
	llm       *stubLLM
	submitter *stubSubmitter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ts := &testServer{llm: &stubLLM{reply: "შემდეგი კითხვა?"}, submitter: &stubSubmitter{}}
	messageRepo := repository.NewMessageRepository(db)
	userService := service.NewUserService(
		repository.NewUserRepository(db),
		repository.NewMemoryTokenBlacklist(),
		token.NewJWTManager("test-secret", 1, 7),
	)
	chatService := service.NewChatService(ts.llm, messageRepo, config.ChatConfig{
		Domains:  []string{"იურისტი", "სხვა"},
		Greeting: "გამარჯობა!",
		Apology:  "სამწუხაროდ, AI‑თან დაკავშირება ვერ მოხერხდა.",
	})
	fineTuneService := service.NewFineTuneService(
		messageRepo,
		repository.NewFineTuneJobRepository(db),
		chatService,
		dataset.NewBuilder("შექმენი {domain} პასუხი.\n", dataset.PairConsecutive),
		ts.submitter,
		config.DatasetConfig{WorkDir: t.TempDir(), FileName: "data.jsonl"},
		nil, nil,
	)
	ts.router = NewRouter(Services{User: userService, Chat: chatService, FineTune: fineTuneService})
	return ts
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (ts *testServer) do(t *testing.T, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w, env
}

func (ts *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	if w, _ := ts.do(t, http.MethodPost, "/api/v1/users/register", "", gin.H{"username": username, "password": password}); w.Code != http.StatusOK {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	w, env := ts.do(t, http.MethodPost, "/api/v1/users/login", "", gin.H{"username": username, "password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.Token == "" {
		t.Fatalf("login data %s: %v", env.Data, err)
	}
	return data.Token
}

func domainPath(domain, suffix string) string {
	return "/api/v1/conversations/" + url.PathEscape(domain) + suffix
}

func TestRegisterStatuses(t *testing.T) {
	ts := newTestServer(t)
	register := func(u, p string) int {
		w, _ := ts.do(t, http.MethodPost, "/api/v1/users/register", "", gin.H{"username": u, "password": p})
		return w.Code
	}

	if code := register("ana", ""); code != http.StatusBadRequest {
		t.Fatalf("empty password: %d", code)
	}
	if code := register("ana", "pw1"); code != http.StatusOK {
		t.Fatalf("first register: %d", code)
	}
	if code := register("ana", "pw2"); code != http.StatusConflict {
		t.Fatalf("duplicate register: %d", code)
	}

	w, _ := ts.do(t, http.MethodPost, "/api/v1/users/login", "", gin.H{"username": "ana", "password": "pw2"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("login with second password: %d", w.Code)
	}
}

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	if w, _ := ts.do(t, http.MethodGet, "/api/v1/users/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", w.Code)
	}
	if w, _ := ts.do(t, http.MethodGet, "/api/v1/domains", "garbage", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", w.Code)
	}

	tok := ts.login(t, "ana", "pw1")
	w, env := ts.do(t, http.MethodGet, "/api/v1/users/me", tok, nil)
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), `"username":"ana"`) {
		t.Fatalf("me: %d %s", w.Code, env.Data)
	}
	if strings.Contains(string(env.Data), "password") {
		t.Fatalf("profile leaks the password hash: %s", env.Data)
	}

	if w, _ := ts.do(t, http.MethodPost, "/api/v1/users/logout", tok, nil); w.Code != http.StatusOK {
		t.Fatalf("logout: %d", w.Code)
	}
	if w, _ := ts.do(t, http.MethodGet, "/api/v1/users/me", tok, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: %d", w.Code)
	}
}

func TestConversationFlow(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.login(t, "ana", "pw1")

	w, env := ts.do(t, http.MethodGet, domainPath("იურისტი", ""), tok, nil)
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), "გამარჯობა!") {
		t.Fatalf("transcript: %d %s", w.Code, env.Data)
	}

	w, env = ts.do(t, http.MethodPost, domainPath("იურისტი", "/messages"), tok, gin.H{"content": "ვარ ადვოკატი"})
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), "შემდეგი კითხვა?") || strings.Contains(string(env.Data), "warning") {
		t.Fatalf("submit: %d %s", w.Code, env.Data)
	}

	ts.llm.err = errors.New("rate limit exceeded: 429")
	w, env = ts.do(t, http.MethodPost, domainPath("იურისტი", "/messages"), tok, gin.H{"content": "10 წელი"})
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), "სამწუხაროდ") {
		t.Fatalf("submit with provider failure: %d %s", w.Code, env.Data)
	}
	var submitted struct {
		Warning string `json:"warning"`
	}
	if err := json.Unmarshal(env.Data, &submitted); err != nil || !strings.Contains(submitted.Warning, "rate limit exceeded: 429") {
		t.Fatalf("warning must carry the provider error, got %q: %v", submitted.Warning, err)
	}

	if w, _ := ts.do(t, http.MethodPost, domainPath("უცნობი", "/messages"), tok, gin.H{"content": "x"}); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown domain: %d", w.Code)
	}

	w, _ = ts.do(t, http.MethodGet, domainPath("იურისტი", "/dataset"), tok, nil)
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if w.Code != http.StatusOK || len(lines) != 2 || !strings.Contains(lines[0], `"completion":"შემდეგი კითხვა?"`) {
		t.Fatalf("dataset preview: %d %q", w.Code, w.Body.String())
	}
}

func TestFineTuneJobRoutes(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.login(t, "ana", "pw1")

	if w, _ := ts.do(t, http.MethodPost, domainPath("სხვა", "/finetune"), tok, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("empty conversation must be rejected: %d", w.Code)
	}

	ts.do(t, http.MethodPost, domainPath("სხვა", "/messages"), tok, gin.H{"content": "პასუხი"})
	w, env := ts.do(t, http.MethodPost, domainPath("სხვა", "/finetune"), tok, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("trigger: %d %s", w.Code, w.Body.String())
	}
	var job JobResponse
	if err := json.Unmarshal(env.Data, &job); err != nil || job.Status != "queued" || job.RecordCount != 1 {
		t.Fatalf("job %+v: %v", job, err)
	}
	if len(ts.submitter.tasks) != 1 || ts.submitter.tasks[0].JobID != job.ID {
		t.Fatalf("submitted %+v", ts.submitter.tasks)
	}

	if w, _ := ts.do(t, http.MethodGet, "/api/v1/finetune/jobs/"+job.ID, tok, nil); w.Code != http.StatusOK {
		t.Fatalf("get job: %d", w.Code)
	}
	other := ts.login(t, "bob", "pw")
	if w, _ := ts.do(t, http.MethodGet, "/api/v1/finetune/jobs/"+job.ID, other, nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign job: %d", w.Code)
	}

	w, env = ts.do(t, http.MethodDelete, "/api/v1/finetune/jobs/"+job.ID, tok, nil)
	if w.Code != http.StatusOK || !strings.Contains(string(env.Data), `"status":"canceled"`) {
		t.Fatalf("cancel: %d %s", w.Code, env.Data)
	}

	w, env = ts.do(t, http.MethodGet, "/api/v1/finetune/jobs", tok, nil)
	var jobs []JobResponse
	if err := json.Unmarshal(env.Data, &jobs); err != nil || w.Code != http.StatusOK || len(jobs) != 1 {
		t.Fatalf("list: %d %s", w.Code, env.Data)
	}
}

func dialChat(t *testing.T, srv *httptest.Server, tok, domain string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/" + tok + "?domain=" + url.QueryEscape(domain)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(b, &frame); err != nil {
		t.Fatalf("frame %q: %v", b, err)
	}
	return frame
}

func TestChatWebSocket(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.login(t, "ana", "pw1")
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	conn := dialChat(t, srv, tok, "სხვა")
	defer conn.Close()

	if f := readFrame(t, conn); f["type"] != "history" {
		t.Fatalf("first frame %v", f)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ვარ მზარეული")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, conn); f["type"] != "completion" || f["reply"] != "შემდეგი კითხვა?" {
		t.Fatalf("completion frame %v", f)
	}

	if _, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/chat/bad?domain=x", nil); err == nil {
		t.Fatal("bad token must not upgrade")
	}
}

func TestChatWebSocketProviderWarning(t *testing.T) {
	ts := newTestServer(t)
	ts.llm.err = errors.New("rate limit exceeded: 429")
	tok := ts.login(t, "ana", "pw1")
	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	conn := dialChat(t, srv, tok, "სხვა")
	defer conn.Close()

	if f := readFrame(t, conn); f["type"] != "history" {
		t.Fatalf("first frame %v", f)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ვარ მზარეული")); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := readFrame(t, conn)
	msg, _ := f["message"].(string)
	if f["type"] != "warning" || !strings.Contains(msg, "rate limit exceeded: 429") {
		t.Fatalf("warning frame %v", f)
	}
	reply, _ := f["reply"].(string)
	if !strings.Contains(reply, "სამწუხაროდ") {
		t.Fatalf("warning must carry the apology, got %q", reply)
	}
	if f := readFrame(t, conn); f["type"] != "completion" || f["reply"] != reply {
		t.Fatalf("completion frame %v", f)
	}
}
