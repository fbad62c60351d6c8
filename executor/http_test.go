package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DevWeb3Jogja/batch-5-fe/core"
)

func TestExecuteWriteForwardsUserToken(t *testing.T) {
	var got core.ExecuteRequest
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(core.ExecuteResponse{
			Success: true,
			Data:    json.RawMessage(`{"tx_hash":"0xabc"}`),
		})
	}))
	defer srv.Close()

	e := NewHTTPExecutor(HTTPExecutorConfig{BaseURL: srv.URL + "/", APIKey: "k"})
	ctx := WithAuthToken(context.Background(), "jwt-1")
	resp, err := e.ExecuteWrite(ctx, &core.ExecuteRequest{
		UserID: "u1",
		Tool:   "execute_contract_call",
		Input:  json.RawMessage(`{"to":"0x1"}`),
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"tx_hash":"0xabc"}`, string(resp.Data))
	assert.Equal(t, executeWritePath, path)
	assert.Equal(t, "Bearer jwt-1", auth)
	assert.Equal(t, "execute_contract_call", got.Tool)
	assert.NotEmpty(t, got.RequestID)
}

func TestExecuteFallsBackToAPIKey(t *testing.T) {
	var key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("X-API-Key")
		_ = json.NewEncoder(w).Encode(core.ExecuteResponse{Success: true})
	}))
	defer srv.Close()

	e := NewHTTPExecutor(HTTPExecutorConfig{BaseURL: srv.URL, APIKey: "secret"})
	_, err := e.Execute(context.Background(), &core.ExecuteRequest{Tool: "get_transactions"})
	require.NoError(t, err)
	assert.Equal(t, "secret", key)
}

func TestExecuteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case executePath:
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"success":false}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	}))
	defer srv.Close()

	e := NewHTTPExecutor(HTTPExecutorConfig{BaseURL: srv.URL})

	resp, err := e.Execute(context.Background(), &core.ExecuteRequest{Tool: "x"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Forbidden", resp.Error)

	_, err = e.ExecuteWrite(context.Background(), &core.ExecuteRequest{Tool: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
