package commander

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lexflow/internal/domain"
	"lexflow/internal/repo"
	"lexflow/internal/whatsapp"
)

// Outgoing is one reply to deliver and record.
type Outgoing struct {
	TenantID     string
	Phone        string
	Body         string
	InstanceName string
	UserID       string
	AgentID      string
	// Credentials supplied with the inbound request take precedence over stored ones.
	Credentials *whatsapp.Credentials
}

// ReplyAdapter sends replies over the chat provider and persists every one of them as an
// outgoing message, whatever the delivery outcome. A nil Sender records replies as skipped.
type ReplyAdapter struct {
	Repo     repo.Repo
	Sender   whatsapp.Sender
	Fallback whatsapp.Credentials
	Logger   *zap.Logger
	Now      func() time.Time
	NewID    func() string
}

func (r *ReplyAdapter) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *ReplyAdapter) newID() string {
	if r.NewID == nil {
		return uuid.NewString()
	}
	return r.NewID()
}

// Credentials picks request credentials, then the tenant's channel instance (agent, then
// name, then oldest), then the process-wide fallback.
func (r *ReplyAdapter) Credentials(ctx context.Context, out Outgoing) (whatsapp.Credentials, error) {
	if out.Credentials != nil && out.Credentials.Complete() {
		return *out.Credentials, nil
	}
	ci, err := r.Repo.FindChannelInstance(ctx, out.TenantID, out.InstanceName, out.AgentID)
	switch {
	case err == nil:
		creds := whatsapp.Credentials{InstanceID: ci.InstanceID, Token: ci.Token, ClientToken: ci.ClientToken}
		if creds.Complete() {
			return creds, nil
		}
	case !errors.Is(err, repo.ErrNotFound):
		return whatsapp.Credentials{}, err
	}
	if r.Fallback.Complete() {
		return r.Fallback, nil
	}
	return whatsapp.Credentials{}, whatsapp.ErrMissingCredentials
}

// Send delivers the reply and then persists it. Only a persistence failure is returned;
// delivery failures are recorded on the message.
func (r *ReplyAdapter) Send(ctx context.Context, out Outgoing) (domain.Message, error) {
	msg := domain.Message{
		ID:             r.newID(),
		TenantID:       out.TenantID,
		Phone:          out.Phone,
		Body:           out.Body,
		Direction:      domain.DirectionOutgoing,
		InstanceName:   out.InstanceName,
		MessageID:      r.newID(),
		MessageType:    "text",
		UserID:         out.UserID,
		AgentID:        out.AgentID,
		Read:           true,
		DeliveryStatus: domain.DeliverySent,
	}
	if r.Now != nil {
		msg.CreatedAt = r.Now().UTC().Format(time.RFC3339)
	}

	if err := r.deliver(ctx, out); err != nil {
		if errors.Is(err, errDryRun) {
			msg.DeliveryStatus = domain.DeliverySkipped
		} else {
			msg.DeliveryStatus = domain.DeliveryFailed
			msg.DeliveryError = err.Error()
			r.logger().Warn("reply delivery failed",
				zap.String("tenant_id", out.TenantID),
				zap.String("phone", out.Phone),
				zap.Error(err))
		}
	}

	// Persist even when the request context is already done so the history stays complete.
	if err := r.Repo.InsertMessage(context.WithoutCancel(ctx), msg); err != nil {
		r.logger().Error("persist outgoing message", zap.String("tenant_id", out.TenantID), zap.Error(err))
		return msg, err
	}
	return msg, nil
}

var errDryRun = errors.New("dry run")

func (r *ReplyAdapter) deliver(ctx context.Context, out Outgoing) error {
	if r.Sender == nil {
		return errDryRun
	}
	creds, err := r.Credentials(ctx, out)
	if err != nil {
		return err
	}
	_, err = r.Sender.SendText(ctx, creds, out.Phone, out.Body)
	return err
}
