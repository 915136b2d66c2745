package feishu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendCardCachesToken(t *testing.T) {
	var tokenCalls int32
	var lastBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/open-apis/auth/v3/app_access_token/internal":
			atomic.AddInt32(&tokenCalls, 1)
			_, _ = w.Write([]byte(`{"code":0,"app_access_token":"t-123","expire":7200}`))
		case "/open-apis/im/v1/messages":
			assert.Equal(t, "Bearer t-123", r.Header.Get("Authorization"))
			assert.Equal(t, "chat_id", r.URL.Query().Get("receive_id_type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))
			_, _ = w.Write([]byte(`{"code":0,"data":{"message_id":"om_1"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient("app", "secret", WithBaseURL(srv.URL))
	card := NewDivergenceCard("Pharma SA", 90, 70, 15, "https://qualify.example/evaluations/1")

	id, err := c.SendCard(context.Background(), "oc_chat", card)
	require.NoError(t, err)
	assert.Equal(t, "om_1", id)
	_, err = c.SendCard(context.Background(), "oc_chat", card)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(&tokenCalls))
	assert.Equal(t, "oc_chat", lastBody["receive_id"])
	assert.Contains(t, lastBody["content"], "90.0")
}

func TestAPIErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/open-apis/auth/v3/app_access_token/internal" {
			_, _ = w.Write([]byte(`{"code":0,"app_access_token":"t","expire":7200}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":230001,"msg":"bot not in chat"}`))
	}))
	defer srv.Close()

	c := NewClient("app", "secret", WithBaseURL(srv.URL))
	_, err := c.SendUserCard(context.Background(), "ou_1", NewOverdueCard("Pharma SA", "submitted", "2026-03-01", 3, ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "230001")
}

func TestFinalizedCardTemplate(t *testing.T) {
	assert.Equal(t, "green", NewFinalizedCard("A", "accept", "excellent", 91, "").Header.Template)
	assert.Equal(t, "red", NewFinalizedCard("A", "reject", "insufficient", 41, "").Header.Template)
	assert.Len(t, NewReturnedCard("A", "missing_docs", "", "").Elements, 1)
}
