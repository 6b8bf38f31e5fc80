package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendText(t *testing.T) {
	var gotPath, gotClientToken string
	var gotBody sendTextRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotClientToken = r.Header.Get("Client-Token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"zaapId":"z1","messageId":"m1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	res, err := c.SendText(context.Background(), Credentials{InstanceID: "inst", Token: "tok", ClientToken: "ct"}, "5511999990000", "✅ ok")
	require.NoError(t, err)
	assert.Equal(t, "m1", res.MessageID)
	assert.Equal(t, "/instances/inst/token/tok/send-text", gotPath)
	assert.Equal(t, "ct", gotClientToken)
	assert.Equal(t, sendTextRequest{Phone: "5511999990000", Message: "✅ ok"}, gotBody)
}

func TestSendTextOmitsClientTokenWhenUnset(t *testing.T) {
	present := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header["Client-Token"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).SendText(context.Background(), Credentials{InstanceID: "i", Token: "t"}, "1", "x")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestSendTextErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"instance not connected"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.SendText(context.Background(), Credentials{InstanceID: "i", Token: "t"}, "1", "x")
	require.ErrorContains(t, err, "status 400")

	_, err = c.SendText(context.Background(), Credentials{InstanceID: "i"}, "1", "x")
	require.ErrorIs(t, err, ErrMissingCredentials)
}
