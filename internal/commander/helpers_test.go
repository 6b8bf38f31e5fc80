package commander

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lexflow/internal/db"
	"lexflow/internal/domain"
	"lexflow/internal/events"
	"lexflow/internal/llm"
	"lexflow/internal/migrate"
	"lexflow/internal/repo"
	"lexflow/internal/whatsapp"
)

const (
	tenantID    = "tenant-1"
	otherTenant = "tenant-2"
	invoker     = "user-invoker"
	mariaID     = "user-maria"
	joaoID      = "client-joao"
	projectID   = "project-souza"
	caseNumber  = "0001234-56.2024.8.26.0001"
)

type fixture struct {
	Repo     repo.Repo
	Exec     *Executor
	Sender   *fakeSender
	Replies  *ReplyAdapter
	LLM      *fakeLLM
	Cmd      *Commander
	Ctx      context.Context
	CaseID   string
	StageID  string
	clock    time.Time
	location *time.Location
}

func (f *fixture) setToday(date string) {
	t, err := time.ParseInLocation(isoDate, date, f.location)
	if err != nil {
		panic(err)
	}
	f.clock = t.Add(12 * time.Hour)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	f := &fixture{Repo: repo.Repo{DB: conn}, Ctx: ctx, location: loc}
	f.setToday("2025-12-01")
	now := func() time.Time { return f.clock }

	f.Exec = &Executor{
		Repo:     f.Repo,
		Resolver: SQLResolver{Repo: f.Repo},
		Events:   events.Writer{Now: now},
		Now:      now,
		Location: loc,
	}
	f.Sender = &fakeSender{}
	f.Replies = &ReplyAdapter{
		Repo:     f.Repo,
		Sender:   f.Sender,
		Fallback: whatsapp.Credentials{InstanceID: "env-inst", Token: "env-token"},
		Now:      now,
	}
	f.LLM = &fakeLLM{}
	f.Cmd = &Commander{LLM: f.LLM, Executor: f.Exec, Replies: f.Replies}
	f.seed(t)
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	r, ctx := f.Repo, f.Ctx
	for _, id := range []string{tenantID, otherTenant} {
		require.NoError(t, r.InsertTenant(ctx, domain.Tenant{ID: id, Name: id}))
	}
	require.NoError(t, r.InsertUser(ctx, domain.User{ID: invoker, TenantID: tenantID, Name: "Paula Ribeiro"}))
	require.NoError(t, r.InsertUser(ctx, domain.User{ID: mariaID, TenantID: tenantID, Name: "Maria Oliveira"}))
	require.NoError(t, r.InsertUser(ctx, domain.User{ID: "user-carlos", TenantID: tenantID, Name: "Carlos Lima"}))
	require.NoError(t, r.InsertUser(ctx, domain.User{ID: "user-maria-other", TenantID: otherTenant, Name: "Maria Souza"}))

	require.NoError(t, r.InsertClient(ctx, nil, domain.Client{ID: joaoID, TenantID: tenantID, Kind: domain.ClientIndividual, FullName: "João Silva"}))
	require.NoError(t, r.InsertClient(ctx, nil, domain.Client{ID: "client-acme", TenantID: tenantID, Kind: domain.ClientCompany, CompanyName: "Acme Ltda"}))
	require.NoError(t, r.InsertInstallment(ctx, nil, domain.Installment{ID: "inst-1", TenantID: tenantID, ClientID: joaoID, SequenceNumber: 1, Amount: 1500}))
	paidAt := "2025-11-10"
	require.NoError(t, r.InsertInstallment(ctx, nil, domain.Installment{ID: "inst-2", TenantID: tenantID, ClientID: joaoID, SequenceNumber: 2, Amount: 1500,
		Status: domain.InstallmentPaid, PaidAt: &paidAt}))

	clientID := joaoID
	require.NoError(t, r.InsertProject(ctx, nil, domain.Project{ID: projectID, TenantID: tenantID, Name: "Inventário Souza", ClientName: "João Silva", ClientID: &clientID, CreatedBy: invoker}))
	require.NoError(t, r.InsertProtocol(ctx, domain.Protocol{ID: "proto-hab", TenantID: tenantID, ProjectID: projectID, Name: "Habilitação de herdeiros"}))
	f.StageID = "stage-peticao"
	require.NoError(t, r.InsertStage(ctx, domain.Stage{ID: f.StageID, TenantID: tenantID, ProtocolID: "proto-hab", Name: "Petição inicial", Position: 1}))
	f.CaseID = "case-1"
	require.NoError(t, r.InsertCase(ctx, domain.Case{ID: f.CaseID, TenantID: tenantID, Number: caseNumber}))
}

func (f *fixture) inv() Invocation {
	return Invocation{TenantID: tenantID, UserID: invoker}
}

func (f *fixture) deadlines(t *testing.T) []domain.Deadline {
	t.Helper()
	items, err := f.Repo.ListDeadlines(f.Ctx, repo.DeadlineFilters{TenantID: tenantID, IncludeCompleted: true})
	require.NoError(t, err)
	return items
}

func (f *fixture) outgoing(t *testing.T) []domain.Message {
	t.Helper()
	msgs, err := f.Repo.ListMessages(f.Ctx, tenantID, 100)
	require.NoError(t, err)
	// oldest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs
}

func toolCall(name string, args any) llm.ToolCall {
	data, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return llm.ToolCall{ID: "call-" + name, Name: name, Arguments: data}
}

type fakeLLM struct {
	resp   *llm.ToolResponse
	err    error
	system string
	user   string
	tools  []llm.ToolDefinition
	calls  int
}

func (f *fakeLLM) CompleteWithTools(_ context.Context, system, user string, tools []llm.ToolDefinition) (*llm.ToolResponse, error) {
	f.calls++
	f.system, f.user, f.tools = system, user, tools
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type sentMessage struct {
	Creds   whatsapp.Credentials
	Phone   string
	Message string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail error
}

func (s *fakeSender) SendText(_ context.Context, creds whatsapp.Credentials, phone, message string) (*whatsapp.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	s.sent = append(s.sent, sentMessage{Creds: creds, Phone: phone, Message: message})
	return &whatsapp.SendResult{MessageID: "provider-id"}, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) TranscribeURL(context.Context, string) (string, error) {
	return f.text, f.err
}

var errBoom = errors.New("boom")
