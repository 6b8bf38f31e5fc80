package server

import (
	"encoding/json"

	"lexflow/internal/commander"
	"lexflow/internal/domain"
	"lexflow/internal/whatsapp"
)

// Request payloads

type InstanceCredentials struct {
	InstanceID  string `json:"instance_id"`
	Token       string `json:"token"`
	ClientToken string `json:"client_token,omitempty"`
}

type CommandRequest struct {
	Phone               string               `json:"phone" minLength:"1" doc:"Sender phone number"`
	Message             string               `json:"message,omitempty"`
	AudioURL            string               `json:"audio_url,omitempty" format:"uri"`
	TenantID            string               `json:"tenant_id" minLength:"1"`
	InstanceCredentials *InstanceCredentials `json:"instance_credentials,omitempty"`
	UserID              string               `json:"user_id,omitempty"`
	AgentID             string               `json:"agent_id,omitempty"`
	InstanceName        string               `json:"instance_name,omitempty"`
}

func (r CommandRequest) toCommander() commander.Request {
	req := commander.Request{
		Phone:        r.Phone,
		Message:      r.Message,
		AudioURL:     r.AudioURL,
		TenantID:     r.TenantID,
		UserID:       r.UserID,
		AgentID:      r.AgentID,
		InstanceName: r.InstanceName,
	}
	if c := r.InstanceCredentials; c != nil {
		req.InstanceCredentials = &whatsapp.Credentials{
			InstanceID:  c.InstanceID,
			Token:       c.Token,
			ClientToken: c.ClientToken,
		}
	}
	return req
}

// Response payloads

type CommandResponse struct {
	Success bool     `json:"success"`
	Replies []string `json:"replies"`
	Tools   []string `json:"tools"`
}

func commandResponse(res commander.Result) CommandResponse {
	return CommandResponse{
		Success: res.Success,
		Replies: nonNilSlice(res.Replies),
		Tools:   nonNilSlice(res.Tools),
	}
}

type DeadlineList struct {
	Today string            `json:"today" format:"date"`
	Items []domain.Deadline `json:"items"`
}

func deadlineList(items []domain.Deadline, today string) DeadlineList {
	return DeadlineList{Today: today, Items: nonNilSlice(items)}
}

type MessageList struct {
	Items []domain.Message `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload" jsonschema:"type=object,additionalProperties=true"`
}

type EventList struct {
	Items []EventResponse `json:"items"`
}

func eventResponse(evt domain.Event) EventResponse {
	payload := map[string]any{}
	if evt.Payload != "" {
		_ = json.Unmarshal([]byte(evt.Payload), &payload)
	}
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		TenantID:   evt.TenantID,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
