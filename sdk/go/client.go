package lexflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal lexflow HTTP API client bound to one tenant.
type Client struct {
	BaseURL     string
	TenantID    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, tenantID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		TenantID: tenantID,
		Timeout:  30 * time.Second,
	}
}

// InstanceCredentials override the chat provider instance for one message.
type InstanceCredentials struct {
	InstanceID  string `json:"instance_id"`
	Token       string `json:"token"`
	ClientToken string `json:"client_token,omitempty"`
}

// Command is one inbound chat message. TenantID defaults to the client's tenant.
type Command struct {
	Phone               string               `json:"phone"`
	Message             string               `json:"message,omitempty"`
	AudioURL            string               `json:"audio_url,omitempty"`
	TenantID            string               `json:"tenant_id"`
	InstanceCredentials *InstanceCredentials `json:"instance_credentials,omitempty"`
	UserID              string               `json:"user_id,omitempty"`
	AgentID             string               `json:"agent_id,omitempty"`
	InstanceName        string               `json:"instance_name,omitempty"`
}

// CommandResult lists the replies sent and the tools the model picked.
type CommandResult struct {
	Success bool     `json:"success"`
	Replies []string `json:"replies"`
	Tools   []string `json:"tools"`
}

// Deadline represents the API deadline model (partial).
type Deadline struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	DueDate         string `json:"due_date"`
	OwnerUserID     string `json:"owner_user_id"`
	ResponsibleName string `json:"responsible_name,omitempty"`
	CaseNumber      string `json:"case_number,omitempty"`
	ProjectName     string `json:"project_name,omitempty"`
}

// DeadlineList carries the reference date the filter was evaluated against.
type DeadlineList struct {
	Today string     `json:"today"`
	Items []Deadline `json:"items"`
}

// Message is a persisted chat message.
type Message struct {
	ID             string `json:"id"`
	Phone          string `json:"phone"`
	Body           string `json:"body"`
	Direction      string `json:"direction"`
	InstanceName   string `json:"instance_name,omitempty"`
	MessageID      string `json:"message_id"`
	DeliveryStatus string `json:"delivery_status,omitempty"`
	DeliveryError  string `json:"delivery_error,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses. Code and Message come from the error envelope when
// the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Command sends one message through the commander.
func (c *Client) Command(ctx context.Context, cmd Command) (CommandResult, error) {
	if cmd.TenantID == "" {
		cmd.TenantID = c.TenantID
	}
	var resp CommandResult
	err := c.do(ctx, http.MethodPost, "v0/commander", cmd, &resp)
	return resp, err
}

// Deadlines lists pending deadlines; filter is hoje, vencidos, proximos_7_dias or todos.
func (c *Client) Deadlines(ctx context.Context, filter string, limit int) (DeadlineList, error) {
	q := url.Values{}
	if filter != "" {
		q.Set("filter", filter)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp DeadlineList
	err := c.do(ctx, http.MethodGet, withQuery(c.tenantPath("deadlines"), q), nil, &resp)
	return resp, err
}

// Messages returns the newest messages first.
func (c *Client) Messages(ctx context.Context, limit int) ([]Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp struct {
		Items []Message `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery(c.tenantPath("messages"), q), nil, &resp)
	return resp.Items, err
}

// Events returns recent audit events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery(c.tenantPath("events"), q), nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) tenantPath(p string) string {
	return fmt.Sprintf("v0/tenants/%s/%s", url.PathEscape(c.TenantID), strings.TrimLeft(p, "/"))
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
