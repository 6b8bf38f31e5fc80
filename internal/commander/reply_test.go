package commander

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexflow/internal/domain"
	"lexflow/internal/whatsapp"
)

func TestReplyCredentialPrecedence(t *testing.T) {
	f := newFixture(t)
	out := Outgoing{TenantID: tenantID, Phone: "1", Body: "x", InstanceName: "recepcao", AgentID: "agent-7"}

	creds, err := f.Replies.Credentials(f.Ctx, out)
	require.NoError(t, err)
	assert.Equal(t, "env-inst", creds.InstanceID, "fallback without tenant instances")

	require.NoError(t, f.Repo.InsertChannelInstance(f.Ctx, domain.ChannelInstance{ID: "ci-1", TenantID: tenantID, Name: "principal", InstanceID: "oldest", Token: "t1"}))
	require.NoError(t, f.Repo.InsertChannelInstance(f.Ctx, domain.ChannelInstance{ID: "ci-2", TenantID: tenantID, Name: "recepcao", InstanceID: "by-name", Token: "t2"}))
	require.NoError(t, f.Repo.InsertChannelInstance(f.Ctx, domain.ChannelInstance{ID: "ci-3", TenantID: tenantID, Name: "bot", AgentID: "agent-7", InstanceID: "by-agent", Token: "t3", ClientToken: "ct3"}))

	creds, err = f.Replies.Credentials(f.Ctx, out)
	require.NoError(t, err)
	assert.Equal(t, whatsapp.Credentials{InstanceID: "by-agent", Token: "t3", ClientToken: "ct3"}, creds)

	out.AgentID = ""
	creds, err = f.Replies.Credentials(f.Ctx, out)
	require.NoError(t, err)
	assert.Equal(t, "by-name", creds.InstanceID)

	out.InstanceName = "desconhecida"
	creds, err = f.Replies.Credentials(f.Ctx, out)
	require.NoError(t, err)
	assert.Equal(t, "oldest", creds.InstanceID)

	out.Credentials = &whatsapp.Credentials{InstanceID: "req", Token: "rt"}
	creds, err = f.Replies.Credentials(f.Ctx, out)
	require.NoError(t, err)
	assert.Equal(t, "req", creds.InstanceID)

	// Other tenants never see these instances.
	creds, err = f.Replies.Credentials(f.Ctx, Outgoing{TenantID: otherTenant, InstanceName: "recepcao"})
	require.NoError(t, err)
	assert.Equal(t, "env-inst", creds.InstanceID)
}

func TestReplyWithoutAnyCredentialsIsRecordedAsFailed(t *testing.T) {
	f := newFixture(t)
	f.Replies.Fallback = whatsapp.Credentials{}
	msg, err := f.Replies.Send(f.Ctx, Outgoing{TenantID: tenantID, Phone: "1", Body: "oi"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFailed, msg.DeliveryStatus)
	assert.Contains(t, msg.DeliveryError, "missing instance credentials")
	assert.Empty(t, f.Sender.sent)
	assert.Len(t, f.outgoing(t), 1)
}

func TestReplyDryRunIsRecordedAsSkipped(t *testing.T) {
	f := newFixture(t)
	f.Replies.Sender = nil
	msg, err := f.Replies.Send(f.Ctx, Outgoing{TenantID: tenantID, Phone: "1", Body: "oi", UserID: invoker, AgentID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, domain.DeliverySkipped, msg.DeliveryStatus)

	msgs := f.outgoing(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a1", msgs[0].AgentID)
	assert.Empty(t, msgs[0].DeliveryError)
}

func TestReplyPersistenceFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	// Unknown tenant violates the messages foreign key.
	_, err := f.Replies.Send(f.Ctx, Outgoing{TenantID: "ghost", Phone: "1", Body: "oi"})
	require.Error(t, err)
	assert.Len(t, f.Sender.sent, 1, "delivery happens before persistence")
}
