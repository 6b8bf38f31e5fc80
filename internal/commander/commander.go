// Package commander turns chat messages into actions on the practice's records: a language
// model picks tools, names are resolved to records, the action runs and the outcome is
// replied over WhatsApp.
package commander

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"lexflow/internal/llm"
	"lexflow/internal/transcription"
	"lexflow/internal/whatsapp"
)

var (
	ErrTenantRequired = errors.New("tenant_id is required")
	ErrPhoneRequired  = errors.New("phone is required")
)

const (
	AudioFailedReply     = "🎧 Não consegui entender o áudio. Pode enviar sua mensagem por texto?"
	EmptyMessageReply    = "❓ Não recebi nenhum texto ou áudio. Pode repetir?"
	RateLimitedReply     = "⏳ Estou recebendo muitas mensagens agora. Tente novamente em alguns instantes."
	QuotaExceededReply   = "⚠️ O limite de uso do assistente foi atingido. Avise o administrador do escritório."
	CouldNotProcessReply = "😕 Não consegui processar sua mensagem. Tente novamente."
)

// Request is one inbound chat message.
type Request struct {
	Phone               string                `json:"phone"`
	Message             string                `json:"message,omitempty"`
	AudioURL            string                `json:"audio_url,omitempty"`
	TenantID            string                `json:"tenant_id"`
	InstanceCredentials *whatsapp.Credentials `json:"instance_credentials,omitempty"`
	UserID              string                `json:"user_id,omitempty"`
	AgentID             string                `json:"agent_id,omitempty"`
	InstanceName        string                `json:"instance_name,omitempty"`
}

// Result lists the replies sent, in order, and the tools the model selected.
type Result struct {
	Success bool     `json:"success"`
	Replies []string `json:"replies"`
	Tools   []string `json:"tools"`
}

// Commander handles one message at a time; it keeps no per-message state.
type Commander struct {
	LLM         llm.Completer
	Transcriber transcription.Transcriber
	Executor    *Executor
	Replies     *ReplyAdapter
	Logger      *zap.Logger
}

func (c *Commander) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// Handle runs the whole pipeline for req. Every path that gets past validation ends in at
// least one reply being sent and persisted. The returned error is reserved for failures
// that leave the conversation without a durable record.
func (c *Commander) Handle(ctx context.Context, req Request) (Result, error) {
	res := Result{Replies: []string{}, Tools: []string{}}
	if strings.TrimSpace(req.TenantID) == "" {
		return res, ErrTenantRequired
	}
	if strings.TrimSpace(req.Phone) == "" {
		return res, ErrPhoneRequired
	}
	log := c.logger().With(zap.String("tenant_id", req.TenantID), zap.String("phone", req.Phone))

	text, ok := c.inputText(ctx, req, log)
	if !ok {
		reply := EmptyMessageReply
		if req.AudioURL != "" {
			reply = AudioFailedReply
		}
		return res, c.reply(ctx, req, &res, reply)
	}

	resp, err := c.LLM.CompleteWithTools(ctx, SystemPrompt(c.Executor.today()), text, Tools())
	if err != nil {
		log.Warn("intent resolution failed", zap.Error(err))
		return res, c.reply(ctx, req, &res, llmErrorReply(err))
	}
	res.Success = true

	if len(resp.ToolCalls) == 0 {
		return res, c.reply(ctx, req, &res, resp.Text)
	}

	inv := Invocation{TenantID: req.TenantID, UserID: req.UserID}
	for _, call := range resp.ToolCalls {
		res.Tools = append(res.Tools, call.Name)
		var reply string
		action, err := DecodeAction(call)
		switch {
		case errors.Is(err, ErrUnknownTool):
			log.Warn("unknown tool", zap.String("tool", call.Name))
			reply = UnknownToolReply
		case err != nil:
			log.Warn("bad tool arguments", zap.String("tool", call.Name), zap.Error(err))
			reply = fmt.Sprintf("❌ Não consegui entender os dados informados para %s. Pode reformular?", call.Name)
		default:
			reply = c.Executor.Execute(ctx, inv, action)
		}
		if err := c.reply(ctx, req, &res, reply); err != nil {
			return res, err
		}
	}
	return res, nil
}

// inputText prefers a successful transcription and falls back to the typed message.
func (c *Commander) inputText(ctx context.Context, req Request, log *zap.Logger) (string, bool) {
	if req.AudioURL != "" {
		if c.Transcriber == nil {
			log.Warn("audio received but transcription is not configured")
		} else if text, err := c.Transcriber.TranscribeURL(ctx, req.AudioURL); err != nil {
			log.Warn("transcription failed", zap.Error(err))
		} else if strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text), true
		}
	}
	text := strings.TrimSpace(req.Message)
	return text, text != ""
}

func llmErrorReply(err error) string {
	switch {
	case errors.Is(err, llm.ErrRateLimited):
		return RateLimitedReply
	case errors.Is(err, llm.ErrQuotaExceeded):
		return QuotaExceededReply
	default:
		return CouldNotProcessReply
	}
}

func (c *Commander) reply(ctx context.Context, req Request, res *Result, body string) error {
	res.Replies = append(res.Replies, body)
	_, err := c.Replies.Send(ctx, Outgoing{
		TenantID:     req.TenantID,
		Phone:        req.Phone,
		Body:         body,
		InstanceName: req.InstanceName,
		UserID:       req.UserID,
		AgentID:      req.AgentID,
		Credentials:  req.InstanceCredentials,
	})
	if err != nil {
		return fmt.Errorf("persist reply: %w", err)
	}
	return nil
}
