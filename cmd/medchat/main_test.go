package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu     sync.Mutex
	auth   []string
	bodies map[string]string
}

func (f *fakeAPI) record(r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	if f.bodies == nil {
		f.bodies = map[string]string{}
	}
	f.bodies[r.Method+" "+r.URL.Path] = string(body)
}

func (f *fakeAPI) body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func (f *fakeAPI) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.auth) == 0 {
		return ""
	}
	return f.auth[len(f.auth)-1]
}

func ok(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "message": "OK", "data": data})
}

func fail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "message": msg})
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	switch r.Method + " " + r.URL.Path {
	case "POST /api/chat/":
		if strings.Contains(f.body("POST /api/chat/"), "server down") {
			fail(w, http.StatusInternalServerError, "Could not process chat request.")
			return
		}
		ok(w, map[string]any{"session_id": 42, "session_title": "Headache", "reply": "Drink water."})
	case "GET /api/sessions/":
		ok(w, map[string]any{"sessions": []map[string]any{
			{"id": 2, "title": "Rash", "created_at": "2026-03-02T09:00:00Z"},
			{"id": 1, "title": "Headache", "created_at": nil},
		}})
	case "PATCH /api/sessions/2/title/":
		ok(w, map[string]any{"id": 2, "title": "Skin rash"})
	case "DELETE /api/sessions/2/":
		ok(w, nil)
	case "GET /api/history/1/":
		ok(w, map[string]any{"session_id": 1, "messages": []map[string]any{
			{"id": 1, "text": "I have a headache", "sender": "user", "timestamp": "2026-03-01T10:00:00Z"},
			{"id": 2, "message": "Drink water.", "sender": "bot", "created_at": "2026-03-01T10:00:01Z"},
		}})
	case "POST /api/auth/token-login/":
		ok(w, map[string]any{"token": "tok-123", "user": map[string]any{"id": 5, "email": "ana@example.com", "name": "Ana"}})
	case "POST /api/auth/token-logout/":
		ok(w, nil)
	case "GET /api/auth/me/":
		ok(w, map[string]any{"user": map[string]any{"id": 5, "email": "ana@example.com", "name": "Ana", "is_staff": true, "is_verified": true}})
	case "GET /api/reports/7/":
		ok(w, map[string]any{"report": map[string]any{
			"id": 7, "title": "Blood panel", "file_names": []string{"cbc.pdf"},
			"analysis": "Hemoglobin is within range.", "warnings": []string{"Glucose slightly high"},
		}})
	case "GET /api/admin/overview/":
		ok(w, map[string]any{"users": 12, "active_sessions": 3})
	case "GET /api/admin/users/":
		if r.URL.Query().Get("q") != "" && r.URL.Query().Get("q") != "ana" {
			ok(w, map[string]any{"users": []any{}})
			return
		}
		ok(w, map[string]any{"users": []map[string]any{
			{"id": 5, "email": "ana@example.com", "name": "Ana", "is_staff": true, "is_active": true},
			{"id": 6, "email": "bo@example.com", "name": "", "is_staff": false, "is_active": false},
		}})
	case "GET /api/admin/health/":
		ok(w, map[string]any{"database": map[string]any{"status": "ok"}, "llm": "degraded"})
	case "GET /api/admin/audit-logs/":
		ok(w, map[string]any{"logs": []map[string]any{
			{"id": 1, "created_at": "2026-03-01T10:00:00Z", "actor_email": "", "action": "user.update", "entity_type": "user", "entity_id": 6, "details": map[string]any{"is_active": false}},
		}})
	case "POST /api/auth/register/":
		if strings.Contains(f.body("POST /api/auth/register/"), "taken@example.com") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": false, "message": "Validation failed.",
				"errors": map[string]any{"email": "An account with this email already exists."},
			})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "message": "Account created. Check your email to verify it."})
	case "POST /api/auth/change-password/":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "message": "Password updated."})
	default:
		fail(w, http.StatusNotFound, "Not found.")
	}
}

type cliEnv struct {
	api       *fakeAPI
	tokenFile string
	config    string
}

func newCLIEnv(t *testing.T, provider string) *cliEnv {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	env := &cliEnv{api: api, tokenFile: filepath.Join(dir, "auth", "token")}
	body := strings.Join([]string{
		"backend:",
		"  provider: " + provider,
		"  base_url: " + srv.URL + "/api",
		"  timeout: 5s",
		"auth:",
		"  token_file: " + env.tokenFile,
		"reveal:",
		"  chunk_size: 64",
		"  interval: 1ms",
		"chat:",
		"  fallback_delay: 1ms",
		"history:",
		"  db_path: " + filepath.Join(dir, "history.db"),
		"log:",
		"  level: error",
		"  file: " + filepath.Join(dir, "medchat.log"),
		"",
	}, "\n")
	env.config = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(env.config, []byte(body), 0o600))

	// --config exports CONFIG_PATH; restore it after the test.
	t.Setenv("CONFIG_PATH", "")
	return env
}

// resetFlags restores every flag to its default so that state from one
// invocation does not leak into the next.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", e.config}, args...))
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func (e *cliEnv) writeToken(t *testing.T, token string) {
	t.Helper()
	require.NoError(t, saveToken(e.tokenFile, token))
}

func TestSend_PrintsRevealedReply(t *testing.T) {
	env := newCLIEnv(t, "http")
	env.writeToken(t, "tok-1")

	out, errOut, err := env.run(t, "", "send", "I", "have", "a", "headache")
	require.NoError(t, err)
	assert.Equal(t, "Drink water.\n", out)
	assert.Contains(t, errOut, "session: 42")
	assert.JSONEq(t, `{"message":"I have a headache","session_id":null}`, env.api.body("POST /api/chat/"))
	assert.Equal(t, "Token tok-1", env.api.lastAuth())
}

func TestSend_ContinuesSession(t *testing.T) {
	env := newCLIEnv(t, "http")

	_, _, err := env.run(t, "", "send", "--session", "42", "more")
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"more","session_id":"42"}`, env.api.body("POST /api/chat/"))
}

func TestSend_PrintsFallbackOnServerFault(t *testing.T) {
	env := newCLIEnv(t, "http")

	out, _, err := env.run(t, "", "send", "server", "down")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not process chat request.")
	assert.Equal(t, "I'm having trouble connecting to the server, but I received: server down\n", out)
}

func TestSend_RejectsBlankMessage(t *testing.T) {
	env := newCLIEnv(t, "http")

	_, _, err := env.run(t, "", "send", "   ")
	require.Error(t, err)
	assert.Empty(t, env.api.body("POST /api/chat/"))
}

func TestSessions_ListRenameDelete(t *testing.T) {
	env := newCLIEnv(t, "http")

	out, _, err := env.run(t, "", "sessions")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "2 "))
	assert.True(t, strings.HasSuffix(lines[0], "Rash"))
	assert.True(t, strings.HasSuffix(lines[1], "Headache"))

	out, _, err = env.run(t, "", "sessions", "rename", "2", "Skin", "rash")
	require.NoError(t, err)
	assert.Equal(t, "2  Skin rash\n", out)
	assert.JSONEq(t, `{"title":"Skin rash"}`, env.api.body("PATCH /api/sessions/2/title/"))

	out, _, err = env.run(t, "", "sessions", "delete", "2")
	require.NoError(t, err)
	assert.Equal(t, "Deleted 2\n", out)

	_, _, err = env.run(t, "", "sessions", "delete", "9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not found.")
}

func TestHistory_PrintsTranscript(t *testing.T) {
	env := newCLIEnv(t, "http")

	out, _, err := env.run(t, "", "history", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "You: I have a headache")
	assert.Contains(t, out, "Assistant: Drink water.")
}

func TestLoginWhoamiLogout(t *testing.T) {
	env := newCLIEnv(t, "http")

	out, _, err := env.run(t, "s3cret\n", "login", "--email", "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Signed in as Ana\n", out)
	assert.JSONEq(t, `{"email":"ana@example.com","password":"s3cret"}`, env.api.body("POST /api/auth/token-login/"))

	info, err := os.Stat(env.tokenFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	tok, err := os.ReadFile(env.tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "tok-123\n", string(tok))

	out, _, err = env.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Token tok-123", env.api.lastAuth())
	assert.Contains(t, out, "Ana <ana@example.com>")
	assert.Contains(t, out, "roles: staff")

	out, _, err = env.run(t, "", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Signed out\n", out)
	_, err = os.Stat(env.tokenFile)
	assert.True(t, os.IsNotExist(err))
}

func TestLogin_RequiresEmail(t *testing.T) {
	env := newCLIEnv(t, "http")

	_, _, err := env.run(t, "", "login")
	require.Error(t, err)
}

func TestReportsShow_Plain(t *testing.T) {
	env := newCLIEnv(t, "http")

	out, _, err := env.run(t, "", "reports", "show", "7", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "# Blood panel")
	assert.Contains(t, out, "_Files: cbc.pdf_")
	assert.Contains(t, out, "- Glucose slightly high")
	assert.Contains(t, out, "Hemoglobin is within range.")
}

func TestAdminOverview_SortedKeys(t *testing.T) {
	env := newCLIEnv(t, "http")

	out, _, err := env.run(t, "", "admin", "overview")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "active_sessions:"))
	assert.True(t, strings.HasSuffix(lines[0], "3"))
	assert.True(t, strings.HasPrefix(lines[1], "users:"))
}

func TestDirectMode_BackendOnlyCommands(t *testing.T) {
	env := newCLIEnv(t, "openai")

	_, _, err := env.run(t, "", "whoami")
	require.ErrorIs(t, err, errDirectMode)

	out, _, err := env.run(t, "", "sessions", "list")
	require.NoError(t, err)
	assert.Equal(t, "No sessions yet.\n", out)
}

func TestAdmin_UsersHealthAuditLogs(t *testing.T) {
	env := newCLIEnv(t, "http")

	out, _, err := env.run(t, "", "admin", "users", "--search", "ana")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ana@example.com")
	assert.Contains(t, lines[0], "staff")
	assert.True(t, strings.HasSuffix(lines[1], "inactive"))

	out, _, err = env.run(t, "", "admin", "users", "--search", "zed")
	require.NoError(t, err)
	assert.Equal(t, "No users found.\n", out)

	out, _, err = env.run(t, "", "admin", "health")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], `{"status":"ok"}`))
	assert.True(t, strings.HasSuffix(lines[1], `"degraded"`))

	out, _, err = env.run(t, "", "admin", "audit-logs")
	require.NoError(t, err)
	assert.Contains(t, out, "system")
	assert.Contains(t, out, "user:6")
	assert.Contains(t, out, `{"is_active":false}`)
}

func TestRegister(t *testing.T) {
	env := newCLIEnv(t, "http")

	out, _, err := env.run(t, "pw-123456\npw-123456\n", "register", "--email", "ana@example.com", "--name", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "Account created. Check your email to verify it.\n", out)
	assert.JSONEq(t, `{"name":"Ana","email":"ana@example.com","password":"pw-123456","confirm_password":"pw-123456"}`,
		env.api.body("POST /api/auth/register/"))

	_, errOut, err := env.run(t, "", "register", "--email", "taken@example.com", "--password", "pw-123456")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Validation failed.")
	assert.Contains(t, errOut, "email: An account with this email already exists.\n")
}

func TestChangePassword(t *testing.T) {
	env := newCLIEnv(t, "http")
	env.writeToken(t, "tok-1")

	out, _, err := env.run(t, "old-pass\nnew-pass-1\nnew-pass-1\n", "change-password")
	require.NoError(t, err)
	assert.Equal(t, "Password updated.\n", out)
	assert.JSONEq(t, `{"current_password":"old-pass","new_password":"new-pass-1","confirm_password":"new-pass-1"}`,
		env.api.body("POST /api/auth/change-password/"))
	assert.Equal(t, "Token tok-1", env.api.lastAuth())

	_, _, err = env.run(t, "old-pass\nnew-pass-1\nother\n", "change-password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")
}
