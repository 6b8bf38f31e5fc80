// Package whatsapp sends text messages through a Z-API style chat provider.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMissingCredentials is returned when neither instance id nor token is available.
var ErrMissingCredentials = errors.New("whatsapp: missing instance credentials")

// Credentials authenticate one provider instance. ClientToken is optional.
type Credentials struct {
	InstanceID  string `json:"instance_id"`
	Token       string `json:"token"`
	ClientToken string `json:"client_token,omitempty"`
}

// Complete reports whether the pair needed to build the send URL is present.
func (c Credentials) Complete() bool {
	return c.InstanceID != "" && c.Token != ""
}

// Sender delivers a text to a phone number.
type Sender interface {
	SendText(ctx context.Context, creds Credentials, phone, message string) (*SendResult, error)
}

// SendResult is the provider's acknowledgement.
type SendResult struct {
	ZaapID    string `json:"zaapId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	ID        string `json:"id,omitempty"`
}

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// Client is the provider HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SendText posts to {base}/instances/{id}/token/{token}/send-text.
func (c *Client) SendText(ctx context.Context, creds Credentials, phone, message string) (*SendResult, error) {
	if !creds.Complete() {
		return nil, ErrMissingCredentials
	}
	body, err := json.Marshal(sendTextRequest{Phone: phone, Message: message})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/instances/%s/token/%s/send-text",
		c.baseURL, url.PathEscape(creds.InstanceID), url.PathEscape(creds.Token))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if creds.ClientToken != "" {
		httpReq.Header.Set("Client-Token", creds.ClientToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whatsapp API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result SendResult
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return &result, nil
}
