package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"smsmock/internal/config"
	"smsmock/internal/db"
	"smsmock/internal/dispatch"
	"smsmock/internal/domain"
	"smsmock/internal/migrate"
	"smsmock/internal/provider"
	"smsmock/internal/render"
	"smsmock/internal/repo"
)

const (
	testAccountSid = "AC11111111111111111111111111111111"
	testAuthToken  = "test-token"
	fromNumber     = "+14155552671"
	successNumber  = "+12125551234"
	failureNumber  = "+13105551234"
)

type testEnv struct {
	srv        *httptest.Server
	repo       repo.Repo
	dispatcher *dispatch.Dispatcher
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8080
	cfg.Server.Timezone = "UTC"
	cfg.Database.Path = "unused"
	cfg.Provider = "twilio"
	cfg.Twilio = config.TwilioConfig{
		AccountSid:         testAccountSid,
		AuthToken:          testAuthToken,
		DefaultBehavior:    "success",
		RegisteredNumbers:  []string{successNumber},
		AllowedFromNumbers: []string{fromNumber},
		FailureNumbers:     []string{failureNumber},
	}
	return cfg
}

func newTestEnv(t *testing.T, jwtSecret string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := testConfig()
	r := repo.Repo{DB: conn}
	p := provider.New(cfg.Twilio)
	eng, err := render.New(cfg.Provider)
	if err != nil {
		t.Fatalf("render engine: %v", err)
	}
	d := dispatch.New(r, dispatch.Policy{
		CallbacksEnabled: true,
		StepDelay:        time.Millisecond,
		AccountSid:       cfg.Twilio.AccountSid,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		d.Shutdown(ctx)
	})
	handler, err := New(Config{
		Cfg:            cfg,
		Repo:           r,
		Provider:       p,
		Render:         eng,
		Dispatcher:     d,
		AdminJWTSecret: jwtSecret,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, repo: r, dispatcher: d}
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values, auth bool) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if auth {
		req.SetBasicAuth(testAccountSid, testAuthToken)
	}
	return e.doJSON(t, req)
}

func (e *testEnv) getJSON(t *testing.T, path string, auth bool) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if auth {
		req.SetBasicAuth(testAccountSid, testAuthToken)
	}
	return e.doJSON(t, req)
}

func (e *testEnv) doJSON(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	var body map[string]any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("invalid json (%d): %s", res.StatusCode, data)
		}
	}
	return res.StatusCode, body
}

func messagesPath() string {
	return "/2010-04-01/Accounts/" + testAccountSid + "/Messages.json"
}

func callsPath() string {
	return "/2010-04-01/Accounts/" + testAccountSid + "/Calls.json"
}

func messageForm(to string) url.Values {
	return url.Values{"From": {fromNumber}, "To": {to}, "Body": {"hello"}}
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t, "")
	status, body := env.postForm(t, messagesPath(), messageForm(successNumber), true)
	if status != http.StatusCreated {
		t.Fatalf("got %d, want 201: %v", status, body)
	}
	sid, _ := body["sid"].(string)
	if !strings.HasPrefix(sid, "SM") || len(sid) != 34 {
		t.Fatalf("malformed sid: %q", sid)
	}
	if body["status"] != domain.StatusQueued {
		t.Fatalf("creation response should be queued: %v", body["status"])
	}
	if body["num_segments"] != "1" {
		t.Fatalf("unexpected num_segments: %v", body["num_segments"])
	}

	// The entity progresses and the fetch endpoint reflects it.
	fetchPath := "/2010-04-01/Accounts/" + testAccountSid + "/Messages/" + sid + ".json"
	deadline := time.Now().Add(5 * time.Second)
	for {
		_, fetched := env.getJSON(t, fetchPath, true)
		if fetched["status"] == domain.StatusDelivered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never delivered: %v", fetched["status"])
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetMessageReportsStoredDates(t *testing.T) {
	env := newTestEnv(t, "")
	sid := "SMaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	msg := domain.Message{
		MessageSid: sid,
		Provider:   "twilio",
		FromNumber: fromNumber,
		ToNumber:   successNumber,
		Body:       "hello",
		Status:     domain.StatusDelivered,
		CreatedAt:  "2024-03-15T10:30:00Z",
		UpdatedAt:  "2024-03-15T10:30:02Z",
	}
	if err := env.repo.InsertMessage(context.Background(), msg); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	path := "/2010-04-01/Accounts/" + testAccountSid + "/Messages/" + sid + ".json"
	status, body := env.getJSON(t, path, true)
	if status != http.StatusOK {
		t.Fatalf("got %d, want 200: %v", status, body)
	}
	if body["date_created"] != "Fri, 15 Mar 2024 10:30:00 +0000" {
		t.Fatalf("date_created should come from the record: %v", body["date_created"])
	}
	if body["date_updated"] != "Fri, 15 Mar 2024 10:30:02 +0000" {
		t.Fatalf("date_updated should come from the record: %v", body["date_updated"])
	}

	// A later fetch reports the same dates.
	time.Sleep(20 * time.Millisecond)
	_, again := env.getJSON(t, path, true)
	if again["date_created"] != body["date_created"] || again["date_updated"] != body["date_updated"] {
		t.Fatalf("dates drifted between fetches: %v vs %v", body, again)
	}
}

func TestSendMessageToFailureNumber(t *testing.T) {
	env := newTestEnv(t, "")
	status, body := env.postForm(t, messagesPath(), messageForm(failureNumber), true)
	if status != http.StatusCreated {
		t.Fatalf("got %d, want 201: %v", status, body)
	}
	sid := body["sid"].(string)
	deadline := time.Now().Add(5 * time.Second)
	for {
		m, err := env.repo.GetMessage(context.Background(), sid)
		if err == nil && m.Status == domain.StatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never failed: %+v", m)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSendMessageAuthRequired(t *testing.T) {
	env := newTestEnv(t, "")
	status, body := env.postForm(t, messagesPath(), messageForm(successNumber), false)
	if status != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401: %v", status, body)
	}
	if body["code"] != float64(20003) {
		t.Fatalf("unexpected error code: %v", body["code"])
	}
}

func TestSendMessageMissingParameter(t *testing.T) {
	env := newTestEnv(t, "")
	form := messageForm(successNumber)
	form.Del("Body")
	status, body := env.postForm(t, messagesPath(), form, true)
	if status != http.StatusBadRequest {
		t.Fatalf("got %d, want 400: %v", status, body)
	}
	if body["code"] != float64(21604) {
		t.Fatalf("unexpected error code: %v", body["code"])
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "Body") {
		t.Fatalf("message should name the parameter: %v", body["message"])
	}
}

func TestSendMessageMissingFrom(t *testing.T) {
	env := newTestEnv(t, "")
	form := messageForm(successNumber)
	form.Del("From")
	status, body := env.postForm(t, messagesPath(), form, true)
	if status != http.StatusBadRequest {
		t.Fatalf("got %d, want 400: %v", status, body)
	}
	if body["code"] != float64(21603) {
		t.Fatalf("missing From should report 21603: %v", body["code"])
	}
}

func TestSendMessageInvalidPhone(t *testing.T) {
	env := newTestEnv(t, "")
	form := messageForm("12345")
	status, body := env.postForm(t, messagesPath(), form, true)
	if status != http.StatusBadRequest {
		t.Fatalf("got %d, want 400: %v", status, body)
	}
	if body["code"] != float64(21211) {
		t.Fatalf("unexpected error code: %v", body["code"])
	}
}

func TestSendMessageInvalidFrom(t *testing.T) {
	env := newTestEnv(t, "")
	form := messageForm(successNumber)
	form.Set("From", successNumber) // valid number, not on the allow-list
	status, body := env.postForm(t, messagesPath(), form, true)
	if status != http.StatusBadRequest {
		t.Fatalf("got %d, want 400: %v", status, body)
	}
	if body["code"] != float64(21212) {
		t.Fatalf("unexpected error code: %v", body["code"])
	}
}

func TestMakeCall(t *testing.T) {
	env := newTestEnv(t, "")
	form := url.Values{"From": {fromNumber}, "To": {successNumber}, "Url": {"http://example.com/twiml"}}
	status, body := env.postForm(t, callsPath(), form, true)
	if status != http.StatusCreated {
		t.Fatalf("got %d, want 201: %v", status, body)
	}
	sid, _ := body["sid"].(string)
	if !strings.HasPrefix(sid, "CA") {
		t.Fatalf("malformed sid: %q", sid)
	}
	if body["direction"] != "outbound-api" {
		t.Fatalf("unexpected direction: %v", body["direction"])
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		c, err := env.repo.GetCall(context.Background(), sid)
		if err == nil && c.Status == domain.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("call never completed: %+v", c)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetUnknownMessage(t *testing.T) {
	env := newTestEnv(t, "")
	path := "/2010-04-01/Accounts/" + testAccountSid + "/Messages/SM00000000000000000000000000000000.json"
	status, body := env.getJSON(t, path, true)
	if status != http.StatusNotFound {
		t.Fatalf("got %d, want 404: %v", status, body)
	}
	if body["code"] != float64(20404) {
		t.Fatalf("unexpected error code: %v", body["code"])
	}
}

func TestCallbackTestEcho(t *testing.T) {
	env := newTestEnv(t, "")
	form := url.Values{"MessageSid": {"SM1"}, "MessageStatus": {"sent"}}
	status, body := env.postForm(t, "/callback-test", form, false)
	if status != http.StatusOK {
		t.Fatalf("got %d, want 200: %v", status, body)
	}
	data, _ := body["data"].(map[string]any)
	if data["MessageSid"] != "SM1" || data["MessageStatus"] != "sent" {
		t.Fatalf("form not echoed: %v", body)
	}
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	if status, _ := env.postForm(t, messagesPath(), messageForm(successNumber), true); status != http.StatusCreated {
		t.Fatal("seed message failed")
	}

	status, body := env.getJSON(t, "/admin/v1/health", false)
	if status != http.StatusOK || body["status"] != "healthy" {
		t.Fatalf("unexpected health response (%d): %v", status, body)
	}

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/admin/v1/messages", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var messages []domain.Message
	if err := json.NewDecoder(res.Body).Decode(&messages); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(messages) != 1 || messages[0].ToNumber != successNumber {
		t.Fatalf("unexpected messages: %+v", messages)
	}

	status, body = env.getJSON(t, "/admin/v1/stats", false)
	if status != http.StatusOK || body["messages"] != float64(1) {
		t.Fatalf("unexpected stats (%d): %v", status, body)
	}

	req, _ = http.NewRequest(http.MethodPost, env.srv.URL+"/admin/v1/clear/all", nil)
	status, body = env.doJSON(t, req)
	if status != http.StatusOK {
		t.Fatalf("clear all failed (%d): %v", status, body)
	}
	deleted, _ := body["deleted"].(map[string]any)
	if deleted["messages"] != float64(1) {
		t.Fatalf("unexpected deleted counts: %v", body)
	}

	status, body = env.getJSON(t, "/admin/v1/stats", false)
	if body["messages"] != float64(0) {
		t.Fatalf("expected empty after clear (%d): %v", status, body)
	}
}

func TestAdminNotFound(t *testing.T) {
	env := newTestEnv(t, "")
	status, body := env.getJSON(t, "/admin/v1/callbacks/9999", false)
	if status != http.StatusNotFound {
		t.Fatalf("got %d, want 404: %v", status, body)
	}
	errBody, _ := body["error"].(map[string]any)
	if errBody["code"] != "not_found" {
		t.Fatalf("unexpected error envelope: %v", body)
	}
}

func TestAdminJWT(t *testing.T) {
	secret := "admin-secret"
	env := newTestEnv(t, secret)

	// Health stays open.
	if status, _ := env.getJSON(t, "/admin/v1/health", false); status != http.StatusOK {
		t.Fatalf("health should be open, got %d", status)
	}
	// Everything else requires a token.
	if status, _ := env.getJSON(t, "/admin/v1/messages", false); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "tester"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/admin/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", res.StatusCode)
	}

	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "tester"}).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatal(err)
	}
	req, _ = http.NewRequest(http.MethodGet, env.srv.URL+"/admin/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", res.StatusCode)
	}

	// The provider surface is unaffected by admin auth.
	if status, _ := env.postForm(t, messagesPath(), messageForm(successNumber), true); status != http.StatusCreated {
		t.Fatalf("provider surface should not require admin token, got %d", status)
	}
}

func TestDashboardPages(t *testing.T) {
	env := newTestEnv(t, "")
	for _, path := range []string{"/", "/ui/messages", "/ui/calls", "/ui/callbacks"} {
		res, err := http.Get(env.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(res.Body)
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: got %d", path, res.StatusCode)
		}
		if !strings.Contains(string(data), "SMS Mock") {
			t.Fatalf("%s: unexpected page body", path)
		}
	}
}
