package commander

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexflow/internal/domain"
	"lexflow/internal/llm"
	"lexflow/internal/whatsapp"
)

func baseRequest(text string) Request {
	return Request{Phone: "5511988887777", Message: text, TenantID: tenantID, UserID: invoker, InstanceName: "escritorio"}
}

func TestHandleRequiresTenantAndPhone(t *testing.T) {
	f := newFixture(t)
	_, err := f.Cmd.Handle(f.Ctx, Request{Phone: "1", Message: "oi"})
	require.ErrorIs(t, err, ErrTenantRequired)
	_, err = f.Cmd.Handle(f.Ctx, Request{TenantID: tenantID, Message: "oi"})
	require.ErrorIs(t, err, ErrPhoneRequired)

	assert.Zero(t, f.LLM.calls)
	assert.Empty(t, f.Sender.sent)
	assert.Empty(t, f.outgoing(t))
}

func TestHandleEndToEndDeadlineForCase(t *testing.T) {
	f := newFixture(t)
	f.LLM.resp = &llm.ToolResponse{ToolCalls: []llm.ToolCall{toolCall(ToolCreateDeadline, map[string]any{
		"titulo":          "Prazo do processo",
		"data_vencimento": "10/12/25",
		"responsavel":     "Maria",
		"numero_processo": caseNumber,
	})}}

	text := "crie um prazo para o processo " + caseNumber + " com vencimento em 10/12/25 para a Maria"
	res, err := f.Cmd.Handle(f.Ctx, baseRequest(text))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{ToolCreateDeadline}, res.Tools)
	assert.Equal(t, text, f.LLM.user)
	assert.Contains(t, f.LLM.system, "Hoje é 2025-12-01")
	assert.Len(t, f.LLM.tools, 8)

	items := f.deadlines(t)
	require.Len(t, items, 1)
	d := items[0]
	assert.Equal(t, "2025-12-10", d.DueDate)
	require.NotNil(t, d.ResponsibleID)
	assert.Equal(t, mariaID, *d.ResponsibleID)
	require.NotNil(t, d.CaseID)
	assert.Equal(t, f.CaseID, *d.CaseID)

	require.Len(t, res.Replies, 1)
	reply := res.Replies[0]
	for _, part := range []string{"Prazo do processo", "10/12/2025", "Maria Oliveira", caseNumber} {
		assert.Contains(t, reply, part)
	}

	require.Len(t, f.Sender.sent, 1)
	assert.Equal(t, reply, f.Sender.sent[0].Message)
	assert.Equal(t, "5511988887777", f.Sender.sent[0].Phone)

	msgs := f.outgoing(t)
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, reply, m.Body)
	assert.Equal(t, domain.DirectionOutgoing, m.Direction)
	assert.Equal(t, "text", m.MessageType)
	assert.Equal(t, "escritorio", m.InstanceName)
	assert.Equal(t, invoker, m.UserID)
	assert.True(t, m.Read)
	assert.Equal(t, domain.DeliverySent, m.DeliveryStatus)
	assert.NotEmpty(t, m.MessageID)
}

func TestHandleInstallmentNotFound(t *testing.T) {
	f := newFixture(t)
	f.LLM.resp = &llm.ToolResponse{ToolCalls: []llm.ToolCall{toolCall(ToolSettleInstallment, map[string]any{
		"cliente": "João", "numero_parcela": "3", "forma_pagamento": "pix",
	})}}

	res, err := f.Cmd.Handle(f.Ctx, baseRequest("João pagou a parcela 3 via pix"))
	require.NoError(t, err)
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0], "Parcela 3 não encontrada")

	inst, err := f.Repo.FindInstallment(f.Ctx, tenantID, joaoID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentPending, inst.Status)
	assert.Len(t, f.outgoing(t), 1)
}

func TestHandleRunsToolCallsInOrder(t *testing.T) {
	f := newFixture(t)
	f.LLM.resp = &llm.ToolResponse{ToolCalls: []llm.ToolCall{
		toolCall(ToolCreateClient, map[string]any{"nome": "Beatriz Ramos", "tipo": "pessoa_fisica"}),
		toolCall(ToolCreateProject, map[string]any{"nome": "Divórcio Ramos", "cliente": "Beatriz Ramos"}),
	}}

	res, err := f.Cmd.Handle(f.Ctx, baseRequest("cadastre a cliente Beatriz Ramos e crie o projeto Divórcio Ramos para ela"))
	require.NoError(t, err)
	assert.Equal(t, []string{ToolCreateClient, ToolCreateProject}, res.Tools)
	require.Len(t, res.Replies, 2)
	assert.Contains(t, res.Replies[0], "Cliente \"Beatriz Ramos\" cadastrado")
	assert.Contains(t, res.Replies[1], "Projeto \"Divórcio Ramos\" criado")

	msgs := f.outgoing(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, res.Replies[0], msgs[0].Body)
	assert.Equal(t, res.Replies[1], msgs[1].Body)
	require.Len(t, f.Sender.sent, 2)
	assert.Equal(t, res.Replies[0], f.Sender.sent[0].Message)

	// The second call resolves the client committed by the first.
	p, err := f.Repo.FindProjectByName(f.Ctx, tenantID, "Divórcio Ramos")
	require.NoError(t, err)
	require.NotNil(t, p.ClientID)
	c, err := f.Repo.GetClient(f.Ctx, tenantID, *p.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "Beatriz Ramos", c.FullName)
}

func TestHandlePlainTextReply(t *testing.T) {
	f := newFixture(t)
	f.LLM.resp = &llm.ToolResponse{Text: "Qual a data de vencimento do prazo?"}
	res, err := f.Cmd.Handle(f.Ctx, baseRequest("crie um prazo de contestação"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Tools)
	assert.Equal(t, []string{"Qual a data de vencimento do prazo?"}, res.Replies)
	assert.Empty(t, f.deadlines(t))
}

func TestHandleModelFailures(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: 429", llm.ErrRateLimited), RateLimitedReply},
		{fmt.Errorf("%w: credits", llm.ErrQuotaExceeded), QuotaExceededReply},
		{llm.ErrEmptyResponse, CouldNotProcessReply},
		{context.DeadlineExceeded, CouldNotProcessReply},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			f := newFixture(t)
			f.LLM.err = tc.err
			res, err := f.Cmd.Handle(f.Ctx, baseRequest("liste meus prazos"))
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, []string{tc.want}, res.Replies)
			assert.Equal(t, 1, f.LLM.calls)
			msgs := f.outgoing(t)
			require.Len(t, msgs, 1)
			assert.Equal(t, tc.want, msgs[0].Body)
		})
	}
	assert.NotEqual(t, RateLimitedReply, QuotaExceededReply)
}

func TestHandleAudio(t *testing.T) {
	f := newFixture(t)
	f.Cmd.Transcriber = fakeTranscriber{err: errBoom}
	req := baseRequest("")
	req.AudioURL = "https://media.example/voice.ogg"

	res, err := f.Cmd.Handle(f.Ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{AudioFailedReply}, res.Replies)
	assert.Zero(t, f.LLM.calls)
	assert.Len(t, f.outgoing(t), 1)

	f.Cmd.Transcriber = fakeTranscriber{text: "liste os projetos"}
	f.LLM.resp = &llm.ToolResponse{ToolCalls: []llm.ToolCall{toolCall(ToolListProjects, map[string]any{})}}
	res, err = f.Cmd.Handle(f.Ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "liste os projetos", f.LLM.user)
	assert.Contains(t, res.Replies[0], "Inventário Souza")

	// A failed transcription falls back to the typed text when present.
	f.Cmd.Transcriber = fakeTranscriber{err: errBoom}
	req.Message = "liste os projetos do João"
	_, err = f.Cmd.Handle(f.Ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "liste os projetos do João", f.LLM.user)
}

func TestHandleUnknownAndMalformedTools(t *testing.T) {
	f := newFixture(t)
	f.LLM.resp = &llm.ToolResponse{ToolCalls: []llm.ToolCall{
		{ID: "1", Name: "apagar_tudo", Arguments: []byte(`{}`)},
		{ID: "2", Name: ToolSettleInstallment, Arguments: []byte(`{"cliente":"João","numero_parcela":"três"}`)},
	}}
	res, err := f.Cmd.Handle(f.Ctx, baseRequest("faça algo"))
	require.NoError(t, err)
	require.Len(t, res.Replies, 2)
	assert.Equal(t, UnknownToolReply, res.Replies[0])
	assert.Contains(t, res.Replies[1], ToolSettleInstallment)
	assert.Len(t, f.outgoing(t), 2)
}

func TestHandlePersistsFailedDelivery(t *testing.T) {
	f := newFixture(t)
	f.Sender.fail = fmt.Errorf("instance disconnected")
	f.LLM.resp = &llm.ToolResponse{Text: "Olá!"}
	res, err := f.Cmd.Handle(f.Ctx, baseRequest("oi"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Olá!"}, res.Replies)

	msgs := f.outgoing(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.DeliveryFailed, msgs[0].DeliveryStatus)
	assert.Contains(t, msgs[0].DeliveryError, "instance disconnected")
}

func TestHandleUsesRequestCredentials(t *testing.T) {
	f := newFixture(t)
	f.LLM.resp = &llm.ToolResponse{Text: "ok"}
	req := baseRequest("oi")
	req.InstanceCredentials = &whatsapp.Credentials{InstanceID: "req-inst", Token: "req-token", ClientToken: "ct"}
	_, err := f.Cmd.Handle(f.Ctx, req)
	require.NoError(t, err)
	require.Len(t, f.Sender.sent, 1)
	assert.Equal(t, *req.InstanceCredentials, f.Sender.sent[0].Creds)
}

func TestDecodeActionAcceptsLooseNumbers(t *testing.T) {
	a, err := DecodeAction(llm.ToolCall{Name: ToolSettleInstallment, Arguments: []byte(`{"cliente":"João","numero_parcela":"3","valor_pago":"R$ 1.500,50"}`)})
	require.NoError(t, err)
	s := a.(SettleInstallment)
	assert.Equal(t, Number(3), s.Sequence)
	require.NotNil(t, s.Amount)
	assert.InDelta(t, 1500.50, float64(*s.Amount), 0.001)

	for raw, want := range map[string]float64{
		`"R$ 1.500"`:     1500,
		`"1.234.567"`:    1234567,
		`"R$1.500,00"`:   1500,
		`"1500.50"`:      1500.50,
		`"1.5"`:          1.5,
		`1500`:           1500,
		`"  R$ 2.000  "`: 2000,
	} {
		a, err = DecodeAction(llm.ToolCall{Name: ToolSettleInstallment, Arguments: []byte(`{"cliente":"João","numero_parcela":1,"valor_pago":` + raw + `}`)})
		require.NoError(t, err, raw)
		amount := a.(SettleInstallment).Amount
		require.NotNil(t, amount, raw)
		assert.InDelta(t, want, float64(*amount), 0.001, raw)
	}

	a, err = DecodeAction(llm.ToolCall{Name: ToolSettleInstallment, Arguments: []byte(`{"cliente":"João","numero_parcela":"3.7"}`)})
	require.NoError(t, err)
	assert.Equal(t, Number(3.7), a.(SettleInstallment).Sequence)

	a, err = DecodeAction(llm.ToolCall{Name: ToolListDeadlines})
	require.NoError(t, err)
	assert.Equal(t, ListDeadlines{}, a)

	_, err = DecodeAction(llm.ToolCall{Name: "nope"})
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestToolCatalog(t *testing.T) {
	tools := Tools()
	require.Len(t, tools, 8)
	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Name] = true
		assert.Equal(t, "object", tool.Parameters["type"], tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	for _, n := range []string{ToolCreateDeadline, ToolCreateProject, ToolCreateClient, ToolSettleInstallment,
		ToolLinkCase, ToolCreateProtocolDeadline, ToolListDeadlines, ToolListProjects} {
		assert.True(t, names[n], n)
	}
	assert.Equal(t, []string{"titulo", "data_vencimento"}, tools[0].Parameters["required"])
}
