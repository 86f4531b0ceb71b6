package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/bandcoach/internal/attempt"
	"github.com/pavelanni/bandcoach/internal/content"
	"github.com/pavelanni/bandcoach/internal/gate"
	appI18n "github.com/pavelanni/bandcoach/internal/i18n"
	"github.com/pavelanni/bandcoach/internal/llm"
	"github.com/pavelanni/bandcoach/internal/model"
	"github.com/pavelanni/bandcoach/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

const evaluationJSON = `{
  "overallBand": 7,
  "taskResponse": {"score": 6, "feedback": "Addresses the task."},
  "coherenceCohesion": {"score": 6.5, "feedback": "Logical."},
  "lexicalResource": {"score": 7, "feedback": "Good range."},
  "grammaticalRange": {"score": 7, "feedback": "Mostly accurate."},
  "correctedText": "Corrected essay.",
  "detailedAnalysis": "Clear position throughout."
}`

// fakeModel answers chat completions with a fixed content.
type fakeModel struct {
	mu      sync.Mutex
	content string
	calls   int
}

func (f *fakeModel) set(content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = content
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeModel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls++
	content := f.content
	f.mu.Unlock()

	switch r.URL.Path {
	case "/v1/audio/speech":
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake"))
		return
	case "/v1/chat/completions":
	default:
		http.NotFound(w, r)
		return
	}

	var req struct {
		Stream bool `json:"stream"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range strings.SplitAfter(content, " ") {
			chunk, _ := json.Marshal(map[string]any{
				"id": "c1", "object": "chat.completion.chunk",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": tok}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		return
	}
	resp, _ := json.Marshal(map[string]any{
		"id": "c1", "object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	model  *fakeModel
	store  *store.Store
}

type envOptions struct {
	apiKey  string
	credits int
	access  bool
	origins []string
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	require.NoError(t, appI18n.Init("en"))

	fm := &fakeModel{content: evaluationJSON}
	api := httptest.NewServer(fm)
	t.Cleanup(api.Close)

	s, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	g, err := gate.New(s, "letmein", opts.credits)
	require.NoError(t, err)

	client := llm.New(llm.Config{BaseURL: api.URL + "/v1", APIKey: opts.apiKey, Model: "test-model"})

	cfg := model.AppConfig{
		RequireAccess:  opts.access,
		CreditsEnabled: true,
		InitialCredits: opts.credits,
		HistoryCap:     5,
		AllowedOrigins: opts.origins,
	}
	reg := attempt.NewRegistry(attempt.Deps{Drafts: s, Ledger: s, Gate: g, Evaluator: client}, attempt.Options{
		RequireAccess:  cfg.RequireAccess,
		CreditsEnabled: cfg.CreditsEnabled,
		HistoryCap:     cfg.HistoryCap,
		Timeout:        5 * time.Second,
	})
	t.Cleanup(reg.Close)

	cat, err := content.Load("")
	require.NoError(t, err)

	h, err := New(Deps{Store: s, LLM: client, Gate: g, Attempts: reg, Content: cat, Secret: testSecret}, cfg)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(h.BasePathMiddleware)
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, model: fm, store: s}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func essay(words int) string {
	return strings.TrimSpace(strings.Repeat("word ", words))
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3})
	resp, body := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["llmConfigured"])
}

func TestNewRejectsShortSecret(t *testing.T) {
	_, err := New(Deps{}, model.AppConfig{})
	assert.Error(t, err)
}

func TestProfileCookie(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3})

	resp, first := env.do(t, http.MethodGet, "/api/profile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id, _ := first["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, float64(3), first["credits"])
	assert.Equal(t, false, first["unlocked"])

	_, second := env.do(t, http.MethodGet, "/api/profile", nil)
	assert.Equal(t, id, second["id"], "cookie identifies the same profile")

	// A tampered cookie yields a fresh profile.
	u, _ := url.Parse(env.srv.URL)
	env.client.Jar.SetCookies(u, []*http.Cookie{{Name: profileCookieName, Value: "not-a-token", Path: "/"}})
	_, third := env.do(t, http.MethodGet, "/api/profile", nil)
	assert.NotEqual(t, id, third["id"])
}

func TestTokenIssuer(t *testing.T) {
	ti := newTokenIssuer(testSecret)
	tok, err := ti.sign("6f1c1c8e-3f0a-4f6e-9b7a-2f6d1b9f4c11")
	require.NoError(t, err)

	id, err := ti.parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "6f1c1c8e-3f0a-4f6e-9b7a-2f6d1b9f4c11", id)

	_, err = newTokenIssuer("another-secret-of-enough-length").parse(tok)
	assert.Error(t, err, "signature from another secret")

	expired := newTokenIssuer(testSecret)
	expired.now = func() time.Time { return time.Now().Add(2 * profileTTL) }
	_, err = expired.parse(tok)
	assert.Error(t, err, "expired token")

	bad, err := ti.sign("not-a-uuid")
	require.NoError(t, err)
	_, err = ti.parse(bad)
	assert.Error(t, err)
}

func TestAccessCode(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3, access: true})

	resp, body := env.do(t, http.MethodPost, "/api/access", map[string]string{"code": "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "ACCESS_DENIED", body["code"])
	assert.Equal(t, "Invalid access code.", body["message"])

	_, prof := env.do(t, http.MethodGet, "/api/profile", nil)
	assert.Equal(t, false, prof["unlocked"])

	resp, prof = env.do(t, http.MethodPost, "/api/access", map[string]string{"code": " letmein "})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, prof["unlocked"])

	resp, prof = env.do(t, http.MethodDelete, "/api/access", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, prof["unlocked"])
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3})

	resp, prof := env.do(t, http.MethodPut, "/api/profile/preferences", map[string]string{"theme": "dark", "language": "ru-RU"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "dark", prof["theme"])
	assert.Equal(t, "ru", prof["language"])
	assert.Equal(t, "ru", resp.Header.Get("Content-Language"))

	// Later errors follow the stored language.
	resp, body := env.do(t, http.MethodPost, "/api/access", map[string]string{"code": "wrong"})
	assert.Equal(t, "ru", resp.Header.Get("Content-Language"))
	assert.Equal(t, "Неверный код доступа.", body["message"])

	tests := []struct {
		name string
		body map[string]string
	}{
		{"unknown theme", map[string]string{"theme": "blue"}},
		{"unsupported language", map[string]string{"language": "fr"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPut, "/api/profile/preferences", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "INVALID_REQUEST", body["code"])
		})
	}
}

func TestAcceptLanguage(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3})
	req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/content/faq", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.5")
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "ru", resp.Header.Get("Content-Language"))

	var faq []content.FAQItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&faq))
	require.NotEmpty(t, faq)
}

func TestSubmitFlow(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 2})

	resp, draft := env.do(t, http.MethodPut, "/api/drafts/check", map[string]any{
		"taskType": "task2",
		"prompt":   "Do cities offer a better life?",
		"essay":    essay(260),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(260), draft["wordCount"])
	assert.Equal(t, float64(250), draft["minWords"])

	resp, body := env.do(t, http.MethodPost, "/api/attempts/check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, float64(1), body["credits"])
	sub := body["submission"].(map[string]any)
	id := sub["id"].(string)
	eval := sub["evaluation"].(map[string]any)
	assert.Equal(t, 6.5, eval["overallBand"], "overall band is recomputed from the criteria")

	_, state := env.do(t, http.MethodGet, "/api/attempts/check", nil)
	assert.Equal(t, "success", state["status"])

	_, draft = env.do(t, http.MethodGet, "/api/drafts/check", nil)
	assert.Empty(t, draft["essay"], "draft cleared after success")

	_, hist := env.do(t, http.MethodGet, "/api/history", nil)
	assert.Equal(t, float64(1), hist["count"])
	assert.Equal(t, 6.5, hist["averageBand"])

	resp, got := env.do(t, http.MethodGet, "/api/history/"+id, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, got["id"])

	resp, _ = env.do(t, http.MethodGet, "/api/history/"+id+"/report", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp, body = env.do(t, http.MethodGet, "/api/history/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])

	resp, _ = env.do(t, http.MethodDelete, "/api/history", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, hist = env.do(t, http.MethodGet, "/api/history", nil)
	assert.Equal(t, float64(0), hist["count"])
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name     string
		opts     envOptions
		draft    map[string]any
		submit   any
		status   int
		code     string
		evalCall bool
	}{
		{
			name:   "missing essay",
			opts:   envOptions{apiKey: "k", credits: 3},
			draft:  map[string]any{"taskType": "task2", "prompt": "Q?"},
			status: http.StatusUnprocessableEntity,
			code:   "MISSING_FIELDS",
		},
		{
			name:   "short essay",
			opts:   envOptions{apiKey: "k", credits: 3},
			draft:  map[string]any{"taskType": "task2", "prompt": "Q?", "essay": essay(200)},
			status: http.StatusConflict,
			code:   "LENGTH_WARNING",
		},
		{
			name:     "short essay confirmed",
			opts:     envOptions{apiKey: "k", credits: 3},
			draft:    map[string]any{"taskType": "task2", "prompt": "Q?", "essay": essay(200)},
			submit:   map[string]bool{"confirm": true},
			status:   http.StatusOK,
			evalCall: true,
		},
		{
			name:   "no credits",
			opts:   envOptions{apiKey: "k", credits: 0},
			draft:  map[string]any{"taskType": "task1", "prompt": "Q?", "essay": essay(160)},
			status: http.StatusPaymentRequired,
			code:   "INSUFFICIENT_CREDITS",
		},
		{
			name:   "access required",
			opts:   envOptions{apiKey: "k", credits: 3, access: true},
			draft:  map[string]any{"taskType": "task1", "prompt": "Q?", "essay": essay(160)},
			status: http.StatusForbidden,
			code:   "ACCESS_REQUIRED",
		},
		{
			name:   "missing api key",
			opts:   envOptions{credits: 3},
			draft:  map[string]any{"taskType": "task1", "prompt": "Q?", "essay": essay(160)},
			status: http.StatusServiceUnavailable,
			code:   "CONFIG_MISSING",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.opts)
			resp, _ := env.do(t, http.MethodPut, "/api/drafts/check", tt.draft)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			resp, body := env.do(t, http.MethodPost, "/api/attempts/check", tt.submit)
			assert.Equal(t, tt.status, resp.StatusCode, body)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
				assert.NotEmpty(t, body["message"])
				_, draft := env.do(t, http.MethodGet, "/api/drafts/check", nil)
				assert.Equal(t, tt.draft["essay"], nilIfEmpty(draft["essay"]), "draft kept on error")
			}
			assert.Equal(t, tt.evalCall, env.model.callCount() > 0)
		})
	}
}

func nilIfEmpty(v any) any {
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	return v
}

func TestLengthWarningDetails(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3})
	env.do(t, http.MethodPut, "/api/drafts/exam", map[string]any{"taskType": "task1", "prompt": "Q?", "essay": essay(100)})

	resp, body := env.do(t, http.MethodPost, "/api/attempts/exam", map[string]bool{"confirm": false})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	details := body["details"].(map[string]any)
	assert.Equal(t, float64(100), details["wordCount"])
	assert.Equal(t, float64(150), details["minWords"])
	assert.Contains(t, body["message"], "100")
}

func TestDraftRoutes(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3})

	resp, body := env.do(t, http.MethodGet, "/api/drafts/quiz", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", body["code"])

	resp, _ = env.do(t, http.MethodPut, "/api/drafts/exam", map[string]any{"taskType": "task3"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, draft := env.do(t, http.MethodPut, "/api/drafts/exam", map[string]any{"taskType": "task1", "prompt": "Describe the chart."})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1200), draft["remainingSeconds"])
	assert.Equal(t, false, draft["timerRunning"])

	resp, draft = env.do(t, http.MethodPost, "/api/drafts/exam/timer/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, draft["timerRunning"])

	resp, draft = env.do(t, http.MethodPost, "/api/drafts/exam/timer/pause", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, draft["timerRunning"])

	resp, _ = env.do(t, http.MethodPost, "/api/drafts/check/timer/start", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "no timer in check mode")

	resp, draft = env.do(t, http.MethodDelete, "/api/drafts/exam", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, draft["prompt"])

	resp, state := env.do(t, http.MethodDelete, "/api/attempts/exam", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", state["status"])
}

func TestCredits(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 1})
	env.do(t, http.MethodPut, "/api/drafts/check", map[string]any{"taskType": "task1", "prompt": "Q?", "essay": essay(160)})
	resp, _ := env.do(t, http.MethodPost, "/api/attempts/check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, credits := env.do(t, http.MethodGet, "/api/credits", nil)
	assert.Equal(t, float64(0), credits["balance"])

	resp, credits = env.do(t, http.MethodPost, "/api/credits/refill", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), credits["balance"])
	assert.Equal(t, float64(1), credits["initial"])
}

func TestTools(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3})

	env.model.set("Some people believe that cities are better. Discuss.")
	resp, body := env.do(t, http.MethodPost, "/api/tools/topic", map[string]string{"taskType": "task2"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body["prompt"], "cities")

	env.model.set(`{"band7":"beneficial","band8":"advantageous","band9":"salutary"}`)
	resp, body = env.do(t, http.MethodPost, "/api/tools/vocabulary", map[string]string{"text": "good"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "salutary", body["band9"])

	resp, body = env.do(t, http.MethodPost, "/api/tools/sentence", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", body["code"])

	resp, _ = env.do(t, http.MethodPost, "/api/tools/topic", map[string]string{"taskType": "task9"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/tools/speech", map[string]string{"text": "Hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
}

func TestChat(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3})
	env.model.set("Use more linking words.")

	resp, body := env.do(t, http.MethodPost, "/api/chat", map[string]any{
		"essay":   "My essay.",
		"message": "How can I improve coherence?",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "examiner", body["role"])
	assert.Equal(t, "Use more linking words.", body["text"])

	resp, body = env.do(t, http.MethodPost, "/api/chat", map[string]any{"submissionId": "nope", "message": "Why?"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestChatStream(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3})
	env.model.set("Use more linking words.")

	// Issue the profile cookie first.
	env.do(t, http.MethodGet, "/api/profile", nil)
	u, _ := url.Parse(env.srv.URL)
	header := http.Header{}
	for _, c := range env.client.Jar.Cookies(u) {
		header.Add("Cookie", c.String())
	}

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/chat/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"essay": "My essay.", "message": "Tips?"}))

	var deltas strings.Builder
	var done streamFrame
	for {
		var f streamFrame
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == "delta" {
			deltas.WriteString(f.Data)
			continue
		}
		done = f
		break
	}
	assert.Equal(t, "done", done.Type)
	assert.Equal(t, "Use more linking words.", done.Data)
	assert.Equal(t, done.Data, deltas.String())

	// A blank question reports an error frame and keeps the socket open.
	require.NoError(t, conn.WriteJSON(map[string]any{"message": " "}))
	var f streamFrame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "error", f.Type)
	require.NotNil(t, f.Error)
	assert.Equal(t, "INVALID_REQUEST", string(f.Error.Code))
}

func TestChatStreamOrigin(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3, origins: []string{"https://app.example.com/"}})
	env.do(t, http.MethodGet, "/api/profile", nil)
	u, _ := url.Parse(env.srv.URL)
	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/chat/stream"

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"no origin", "", true},
		{"same host", env.srv.URL, true},
		{"configured site", "https://app.example.com", true},
		{"other site", "https://evil.example.com", false},
		{"same host name on another port", "http://" + u.Hostname() + ":1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			for _, c := range env.client.Jar.Cookies(u) {
				header.Add("Cookie", c.String())
			}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
			if tt.ok {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestContent(t *testing.T) {
	env := newTestEnv(t, envOptions{apiKey: "k", credits: 3})

	resp, contact := env.do(t, http.MethodGet, "/api/content/contact", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "support@ieltswriting.uz", contact["email"])

	resp, err := env.client.Get(env.srv.URL + "/api/content/updates")
	require.NoError(t, err)
	defer resp.Body.Close()
	var updates []content.Update
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updates))
	require.NotEmpty(t, updates)
	assert.True(t, updates[0].IsLatest)
}
