package digest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lexflow/internal/commander"
	"lexflow/internal/config"
	"lexflow/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAgenda struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeAgenda) Agenda(_ context.Context, tenantID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tenantID+"/"+userID)
	if f.err != nil {
		return "", f.err
	}
	return "📋 Prazos (vencidos e de hoje):\n🟡 01/12/2025 · Audiência", nil
}

type fakeReplier struct {
	mu     sync.Mutex
	sent   []commander.Outgoing
	status string
}

func (f *fakeReplier) Send(_ context.Context, out commander.Outgoing) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, out)
	status := f.status
	if status == "" {
		status = domain.DeliverySent
	}
	msg := domain.Message{Body: out.Body, DeliveryStatus: status}
	if status == domain.DeliveryFailed {
		msg.DeliveryError = "instance offline"
	}
	return msg, nil
}

func digestConfig() config.DigestConfig {
	return config.DigestConfig{
		Enabled:  true,
		Schedule: "0 8 * * 1-5",
		Timezone: "America/Sao_Paulo",
		Recipients: []config.DigestRecipient{
			{TenantID: "t1", Phone: "5511900000001", UserID: "u-maria", OnlyOwn: true},
			{TenantID: "t1", Phone: "5511900000002", UserID: "u-socio"},
		},
	}
}

func TestRunNowSendsEveryRecipient(t *testing.T) {
	agenda, replier := &fakeAgenda{}, &fakeReplier{}
	s := NewScheduler(agenda, replier, digestConfig(), nil)

	results := s.RunNow(context.Background())
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Empty(t, r.Error)
		assert.Equal(t, domain.DeliverySent, r.Status)
	}
	assert.Equal(t, []string{"t1/u-maria", "t1/"}, agenda.calls)
	require.Len(t, replier.sent, 2)
	assert.Equal(t, "5511900000001", replier.sent[0].Phone)
	assert.Contains(t, replier.sent[0].Body, "Bom dia")
	assert.Contains(t, replier.sent[0].Body, "Audiência")
	assert.Equal(t, "u-socio", replier.sent[1].UserID)
}

func TestRunNowReportsFailures(t *testing.T) {
	s := NewScheduler(&fakeAgenda{err: errors.New("db locked")}, &fakeReplier{}, digestConfig(), nil)
	results := s.RunNow(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "db locked", results[0].Error)

	s = NewScheduler(&fakeAgenda{}, &fakeReplier{status: domain.DeliveryFailed}, digestConfig(), nil)
	results = s.RunNow(context.Background())
	assert.Equal(t, "instance offline", results[0].Error)
	assert.Equal(t, domain.DeliveryFailed, results[0].Status)
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(&fakeAgenda{}, &fakeReplier{}, digestConfig(), nil)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.False(t, s.NextRun().IsZero())
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	s.Stop()
	assert.False(t, s.IsRunning())
	assert.True(t, s.NextRun().IsZero())
	s.Stop()
}

func TestStartDisabledOrInvalid(t *testing.T) {
	cfg := digestConfig()
	cfg.Enabled = false
	s := NewScheduler(&fakeAgenda{}, &fakeReplier{}, cfg, nil)
	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())

	cfg = digestConfig()
	cfg.Schedule = "every day"
	cfg.Timezone = "Nowhere/City"
	s = NewScheduler(&fakeAgenda{}, &fakeReplier{}, cfg, nil)
	require.Error(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}
