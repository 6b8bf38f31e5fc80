package transcription

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribeURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/media/voice.ogg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OggS-fake-audio"))
	})
	mux.HandleFunc("/v1/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "pt", r.FormValue("language"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "voice.ogg", hdr.Filename)
		assert.Equal(t, "OggS-fake-audio", string(data))
		_, _ = w.Write([]byte(`{"text":" crie um prazo para amanhã "}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	w := NewWhisperAPI(Config{BaseURL: srv.URL + "/v1", APIKey: "key"}, nil)
	text, err := w.TranscribeURL(context.Background(), srv.URL+"/media/voice.ogg")
	require.NoError(t, err)
	assert.Equal(t, "crie um prazo para amanhã", text)
}

func TestTranscribeURLFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/ok.ogg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio"))
	})
	mux.HandleFunc("/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":""}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	w := NewWhisperAPI(Config{BaseURL: srv.URL, APIKey: "key"}, nil)
	_, err := w.TranscribeURL(context.Background(), srv.URL+"/missing")
	require.ErrorContains(t, err, "status 404")

	_, err = w.TranscribeURL(context.Background(), srv.URL+"/ok.ogg")
	require.ErrorIs(t, err, ErrNoSpeech)

	_, err = NewWhisperAPI(Config{BaseURL: srv.URL}, nil).TranscribeURL(context.Background(), srv.URL+"/ok.ogg")
	require.ErrorContains(t, err, "no API key")
}
