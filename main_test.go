package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sfaptracker/auth"
	"sfaptracker/catalog"
	"sfaptracker/config"
	"sfaptracker/db"
	"sfaptracker/directory"
	"sfaptracker/handlers"
	"sfaptracker/i18n"
	"sfaptracker/mail"
	"sfaptracker/progress"
)

func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	cfg := map[string]any{
		"database_path":  dbPath,
		"session_key":    "cli-test-session-key",
		"log_level":      "error",
		"log_format":     "console",
		"password_cost":  4,
		"builtin_admins": []string{"boss@x.com"},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out strings.Builder
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "data", "tracker.db")
	cfgPath := writeConfig(t, dbPath)

	_, err := execute(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)
	assert.Equal(t, dbPath, config.AppConfig.DatabasePath)

	_, err = execute(t, "--config", cfgPath, "seed")
	require.NoError(t, err)

	csvPath := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"id,category,text,ref,what,looks,critical\nX01,Extra,Sharpen a chisel,R1,w,l,c\n"), 0o600))
	_, err = execute(t, "--config", cfgPath, "import-competencies", "--file", csvPath)
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "create-admin", "--email", "Root@X.com", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "root@x.com")

	conn, err := db.Open(dbPath)
	require.NoError(t, err)
	defer conn.Close()

	n, err := catalog.Count(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, 57, n)

	users := directory.NewService(conn, zap.NewNop(), &mail.LogMailer{Log: zap.NewNop()}, directory.Options{})
	_, err = users.Authenticate(context.Background(), "root@x.com", "secret1")
	require.NoError(t, err)
	for _, email := range []string{"root@x.com", "boss@x.com"} {
		ok, err := users.IsAdmin(context.Background(), email)
		require.NoError(t, err)
		assert.True(t, ok, email)
	}
}

func TestCreateAdminPromptsForPassword(t *testing.T) {
	cfgPath := writeConfig(t, filepath.Join(t.TempDir(), "tracker.db"))

	answers := []string{"secret1", "secret2"}
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	readPassword = func(int) ([]byte, error) {
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
	t.Cleanup(func() { adminOpts.password = "" })

	adminOpts.password = ""
	_, err := execute(t, "--config", cfgPath, "create-admin", "--email", "a@x.com")
	assert.EqualError(t, err, "passwords do not match")

	answers = []string{"secret1", "secret1"}
	adminOpts.password = ""
	_, err = execute(t, "--config", cfgPath, "create-admin", "--email", "a@x.com")
	assert.NoError(t, err)
}

func TestTrustedOrigins(t *testing.T) {
	got := trustedOrigins([]string{"http://localhost:3000", "https://tracker.example.com", "not a url", ""})
	assert.Equal(t, []string{"localhost:3000", "tracker.example.com"}, got)
}

func TestBuildHandlerEnforcesCSRF(t *testing.T) {
	logger = zap.NewNop()
	config.AppConfig = config.Config{SessionKey: "cli-test-session-key"}
	auth.InitStore()

	conn, err := db.InitDB(context.Background(), filepath.Join(t.TempDir(), "tracker.db"), nil)
	require.NoError(t, err)
	defer conn.Close()

	users := directory.NewService(conn, logger, &mail.LogMailer{Log: logger}, directory.Options{})
	mux := http.NewServeMux()
	handlers.RegisterHandlers(mux, handlers.NewHandler(conn, users, progress.NewService(conn, logger), logger))

	srv := httptest.NewServer(buildHandler(config.Config{
		SessionKey:     "cli-test-session-key",
		CSRFEnabled:    true,
		AllowedOrigins: []string{"http://localhost:3000"},
	}, mux))
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	post := func(token string) (*http.Response, string) {
		req, err := http.NewRequest("POST", srv.URL+"/api/login", strings.NewReader(`{}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("X-CSRF-Token", token)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	resp, body := post("")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body, i18n.T("en", "CSRFInvalid"))
	assert.NotEmpty(t, resp.Header.Get(handlers.RequestIDHeader))

	resp, err = client.Get(srv.URL + "/api/csrf-token")
	require.NoError(t, err)
	var tok struct {
		CSRFToken string `json:"csrfToken"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tok))
	resp.Body.Close()
	require.NotEmpty(t, tok.CSRFToken)

	resp, body = post(tok.CSRFToken)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	assert.Contains(t, body, i18n.T("en", "EmailAndPasswordRequired"))
}
