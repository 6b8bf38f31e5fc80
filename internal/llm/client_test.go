package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", APIKey: "sk-test", Model: "gpt-test"}, nil)
}

func TestCompleteWithToolsParsesToolCalls(t *testing.T) {
	var got chatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":null,"tool_calls":[
			{"id":"c1","type":"function","function":{"name":"criar_cliente","arguments":"{\"nome\":\"Ana\"}"}},
			{"id":"c2","type":"function","function":{"name":"listar_projetos","arguments":""}}
		]}}]}`))
	})

	resp, err := c.CompleteWithTools(context.Background(), "sys", "oi", []ToolDefinition{
		{Name: "criar_cliente", Description: "d", Parameters: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, "criar_cliente", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"nome":"Ana"}`, string(resp.ToolCalls[0].Arguments))
	assert.JSONEq(t, `{}`, string(resp.ToolCalls[1].Arguments))

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Equal(t, "auto", got.ToolChoice)
}

func TestCompleteWithToolsPlainText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Qual a data? "}}]}`))
	})
	resp, err := c.CompleteWithTools(context.Background(), "sys", "crie um prazo", nil)
	require.NoError(t, err)
	assert.Equal(t, "Qual a data?", resp.Text)
	assert.Empty(t, resp.ToolCalls)
}

func TestCompleteWithToolsErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrRateLimited},
		{"payment", http.StatusPaymentRequired, `{}`, ErrQuotaExceeded},
		{"insufficient quota on 429", http.StatusTooManyRequests, `{"error":{"message":"no credits","code":"insufficient_quota"}}`, ErrQuotaExceeded},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrEmptyResponse},
		{"empty message", http.StatusOK, `{"choices":[{"message":{"content":""}}]}`, ErrEmptyResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.CompleteWithTools(context.Background(), "s", "u", nil)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, 1, calls, "no retry")
		})
	}
}

func TestCompleteWithToolsServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := c.CompleteWithTools(context.Background(), "s", "u", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Contains(t, err.Error(), "500")
}
