package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbaas/corestore/internal/config"
	"github.com/openbaas/corestore/internal/engine"
	"github.com/openbaas/corestore/internal/handlers"
	"github.com/openbaas/corestore/internal/middleware"
	"github.com/openbaas/corestore/internal/storage/memstore"
	"github.com/openbaas/corestore/internal/value"
)

func setupApp() (*fiber.App, *engine.Engine, *config.Config) {
	cfg := config.Default()
	eng := engine.New(cfg, memstore.New())
	return handlers.NewApp(cfg, eng, nil), eng, cfg
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
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
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload))
	}
	return resp.StatusCode, payload
}

func TestObjectLifecycleOverHTTP(t *testing.T) {
	app, _, _ := setupApp()

	status, created := doRequest(t, app, "POST", "/api/classes/GameScore", map[string]interface{}{
		"score": 1337, "playerName": "Sean Plott",
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	objectID, _ := created["objectId"].(string)
	require.NotEmpty(t, objectID)

	status, got := doRequest(t, app, "GET", "/api/classes/GameScore/"+objectID, nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1337), got["score"])

	status, updated := doRequest(t, app, "PUT", "/api/classes/GameScore/"+objectID, map[string]interface{}{
		"score": 1338,
	}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, updated, "updatedAt")

	status, found := doRequest(t, app, "GET", "/api/classes/GameScore?where=%7B%22score%22%3A1338%7D", nil, nil)
	require.Equal(t, http.StatusOK, status)
	results, ok := found["results"].([]interface{})
	require.True(t, ok)
	assert.Len(t, results, 1)

	status, _ = doRequest(t, app, "DELETE", "/api/classes/GameScore/"+objectID, nil, nil)
	require.Equal(t, http.StatusOK, status)

	status, errBody := doRequest(t, app, "GET", "/api/classes/GameScore/"+objectID, nil, nil)
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, float64(101), errBody["code"])
	assert.Equal(t, "Object not found.", errBody["error"])
}

func TestSignupLoginMeOverHTTP(t *testing.T) {
	app, _, _ := setupApp()

	status, signup := doRequest(t, app, "POST", "/api/users", map[string]interface{}{
		"username": "alice", "password": "secret",
	}, nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Len(t, signup, 3)
	token, _ := signup["sessionToken"].(string)
	require.NotEmpty(t, token)

	status, me := doRequest(t, app, "GET", "/api/users/me", nil, map[string]string{
		middleware.HeaderSessionToken: token,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", me["username"])
	assert.NotContains(t, me, "_hashed_password")

	status, _ = doRequest(t, app, "GET", "/api/users/me", nil, map[string]string{
		middleware.HeaderSessionToken: "r:bogus",
	})
	require.Equal(t, http.StatusUnauthorized, status)

	status, login := doRequest(t, app, "POST", "/api/login", map[string]interface{}{
		"username": "alice", "password": "secret",
	}, nil)
	require.Equal(t, http.StatusOK, status)
	loginToken, _ := login["sessionToken"].(string)
	require.NotEmpty(t, loginToken)

	status, _ = doRequest(t, app, "POST", "/api/logout", nil, map[string]string{
		middleware.HeaderSessionToken: loginToken,
	})
	require.Equal(t, http.StatusOK, status)
}

func TestMasterKeyHeaderOverHTTP(t *testing.T) {
	app, _, cfg := setupApp()

	status, _ := doRequest(t, app, "POST", "/api/classes/Secret", map[string]interface{}{"a": 1}, map[string]string{
		middleware.HeaderMasterKey: cfg.MasterKey,
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := doRequest(t, app, "GET", "/api/classes/Secret", nil, map[string]string{
		middleware.HeaderMasterKey: cfg.MasterKey,
	})
	require.Equal(t, http.StatusOK, status)
	results, ok := body["results"].([]interface{})
	require.True(t, ok)
	assert.Len(t, results, 1)

	// A wrong master key is just an anonymous caller, not an error.
	status, _ = doRequest(t, app, "GET", "/api/classes/Secret", nil, map[string]string{
		middleware.HeaderMasterKey: "wrong",
	})
	require.Equal(t, http.StatusOK, status)
}

func TestFunctionsOverHTTP(t *testing.T) {
	app, eng, _ := setupApp()

	eng.Define("hello", func(ctx context.Context, req *engine.FunctionRequest) (value.Value, error) {
		return value.String("Hello world!"), nil
	})

	status, body := doRequest(t, app, "POST", "/api/functions/hello", map[string]interface{}{}, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hello world!", body["result"])

	status, body = doRequest(t, app, "POST", "/api/functions/missing", map[string]interface{}{}, nil)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, float64(141), body["code"])
}

func TestHealthEndpoint(t *testing.T) {
	app, _, _ := setupApp()

	status, body := doRequest(t, app, "GET", "/health", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory", body["database"])
}
