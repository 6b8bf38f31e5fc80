// Package transcription turns a voice-note URL into text through a Whisper-compatible API.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxAudioBytes caps the downloaded voice note.
const maxAudioBytes = 25 << 20

// ErrNoSpeech is returned when the API answered with empty text.
var ErrNoSpeech = errors.New("transcription: empty result")

// Transcriber converts the audio behind a URL to text.
type Transcriber interface {
	TranscribeURL(ctx context.Context, audioURL string) (string, error)
}

type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// WhisperAPI implements Transcriber against {BaseURL}/audio/transcriptions.
type WhisperAPI struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWhisperAPI(cfg Config, logger *zap.Logger) *WhisperAPI {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Language == "" {
		cfg.Language = "pt"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhisperAPI{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

// Available reports whether an API key is configured.
func (w *WhisperAPI) Available() bool {
	return w.cfg.APIKey != ""
}

// TranscribeURL downloads the audio and posts it as multipart form data.
func (w *WhisperAPI) TranscribeURL(ctx context.Context, audioURL string) (string, error) {
	if !w.Available() {
		return "", fmt.Errorf("whisper API not available (no API key)")
	}
	audio, filename, err := w.download(ctx, audioURL)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to copy audio to form: %w", err)
	}
	if err := writer.WriteField("model", w.cfg.Model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.WriteField("language", w.cfg.Language); err != nil {
		return "", fmt.Errorf("failed to write language field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse whisper response: %w", err)
	}
	text := strings.TrimSpace(apiResp.Text)
	if text == "" {
		return "", ErrNoSpeech
	}
	w.logger.Debug("audio transcribed", zap.Int("bytes", len(audio)), zap.Int("chars", len(text)))
	return text, nil
}

func (w *WhisperAPI) download(ctx context.Context, audioURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid audio url: %w", err)
	}
	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download audio: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download audio: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("download audio: %w", err)
	}
	if len(data) > maxAudioBytes {
		return nil, "", fmt.Errorf("audio exceeds %d bytes", maxAudioBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("download audio: empty body")
	}
	name := path.Base(req.URL.Path)
	if name == "" || name == "/" || name == "." || !strings.Contains(name, ".") {
		name = "audio.ogg"
	}
	return data, name, nil
}
