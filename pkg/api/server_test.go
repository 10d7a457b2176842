package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	s := NewServer(Config{NodeID: "n1", Addr: "127.0.0.1:0"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "n1", body.NodeID)
	assert.Equal(t, "ok", body.Status)
}

func TestHandlePeersWithoutSource(t *testing.T) {
	s := NewServer(Config{NodeID: "n1"})
	req := httptest.NewRequest(http.MethodGet, "/peers", nil)
	rec := httptest.NewRecorder()
	s.handlePeers(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body peersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "n1", body.Self.ID)
	assert.Empty(t, body.Peers)
}

func TestHandleRPCDispatchesToRegisteredMethod(t *testing.T) {
	reg := &Registry{}
	reg.Register("ping", func(params json.RawMessage) (any, error) {
		return map[string]string{"pong": "ok"}, nil
	})
	s := NewServer(Config{NodeID: "n1", Registry: reg})

	env := Envelope{ID: "req-1", Method: "ping", Timestamp: time.Now(), From: "n2"}
	body, err := json.Marshal(env)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleRPC(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.ID)
	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{"pong":"ok"}`, string(resp.Result))
}

func TestHandleRPCUnknownMethod(t *testing.T) {
	s := NewServer(Config{NodeID: "n1"})
	env := Envelope{ID: "req-2", Method: "nope", Timestamp: time.Now()}
	body, _ := json.Marshal(env)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleRPC(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NotFound", resp.Error.Code)
}

func TestRegistryDispatchHandlerError(t *testing.T) {
	reg := &Registry{}
	reg.Register("fail", func(params json.RawMessage) (any, error) {
		return nil, assertError("boom")
	})
	resp := reg.Dispatch(Envelope{ID: "x", Method: "fail"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "boom", resp.Error.Message)
}

type assertError string

func (e assertError) Error() string { return string(e) }
