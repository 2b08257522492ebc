package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/phrazzld/relay-api/internal/api"
	"github.com/phrazzld/relay-api/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHashKey(t *testing.T) {
	out, err := execute(t, "", "hash-key", "--cost", "4", "my-admin-key")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("my-admin-key")))

	keyAuth, err := auth.NewAPIKeyAuthenticator("", hash)
	require.NoError(t, err)
	_, err = keyAuth.Authenticate(context.Background(), "my-admin-key")
	assert.NoError(t, err)

	out, err = execute(t, "from-stdin\n", "hash-key", "--cost", "4")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from-stdin")))

	_, err = execute(t, "", "hash-key")
	assert.Error(t, err)
}

func TestMintToken(t *testing.T) {
	secret := strings.Repeat("x", 32)
	out, err := execute(t, "", "mint-token", "--secret", secret, "--subject", "ops")
	require.NoError(t, err)

	jwtAuth, err := auth.NewJWTAuthenticator(secret)
	require.NoError(t, err)
	p, err := jwtAuth.Authenticate(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", p.Subject)

	_, err = execute(t, "", "mint-token", "--secret", "short")
	assert.Error(t, err)
}

func TestSubmitAndStatus(t *testing.T) {
	const taskID = "6f1c7f5e-1f0a-4a57-9c55-3f0f4d3f7a10"

	var gotBody api.SubmitTaskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/tasks":
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(api.SubmitTaskResponse{TaskID: taskID, Status: "queued"})
		case r.URL.Path == "/tasks/"+taskID:
			_ = json.NewEncoder(w).Encode(api.TaskResponse{TaskID: taskID, Status: "completed", Result: "abc123"})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Task not found","trace_id":"t-1"}`))
		}
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "", "submit", "--server", srv.URL, "--text", "hello", "--callback-url", "https://example.com/cb")
	require.NoError(t, err)
	assert.Equal(t, "hello", gotBody.Text)
	assert.Equal(t, "https://example.com/cb", gotBody.CallbackURL)
	assert.Contains(t, out, taskID)

	out, err = execute(t, "", "status", "--server", srv.URL, taskID)
	require.NoError(t, err)
	assert.Contains(t, out, `"result": "abc123"`)

	_, err = execute(t, "", "status", "--server", srv.URL, "6f1c7f5e-0000-4a57-9c55-3f0f4d3f7a10")
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Task not found", apiErr.Message)
	assert.Equal(t, "t-1", apiErr.TraceID)
}

func TestConfigSendsAdminKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Admin-API-Key")
		_ = json.NewEncoder(w).Encode(api.AdminConfigResponse{RequestedBy: "admin"})
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "", "config", "--server", srv.URL, "--admin-key", "k-123")
	require.NoError(t, err)
	assert.Equal(t, "k-123", gotKey)
	assert.Contains(t, out, `"requested_by": "admin"`)
}
