package commander

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lexflow/internal/domain"
	"lexflow/internal/events"
	"lexflow/internal/repo"
)

const (
	notFoundNote     = " (não encontrado no sistema)"
	UnknownToolReply = "🤔 Não reconheci a ação solicitada. Tente reformular o pedido."
)

// Invocation identifies who triggered an action and for which tenant.
type Invocation struct {
	TenantID string
	UserID   string
}

// Executor performs one action per call and always answers with a reply text. Database
// failures become "❌ Erro: ..." replies and are never returned.
type Executor struct {
	Repo     repo.Repo
	Resolver Resolver
	Events   events.Writer
	Logger   *zap.Logger
	Now      func() time.Time
	Location *time.Location
	NewID    func() string

	DeadlineLimit int
	ProjectLimit  int
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Executor) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Executor) today() string {
	return Today(e.now(), e.Location)
}

func (e *Executor) newID() string {
	if e.NewID == nil {
		return uuid.NewString()
	}
	return e.NewID()
}

// Execute dispatches the action to its executor.
func (e *Executor) Execute(ctx context.Context, inv Invocation, action Action) string {
	var reply string
	switch a := action.(type) {
	case CreateDeadline:
		reply = e.createDeadline(ctx, inv, a)
	case CreateProject:
		reply = e.createProject(ctx, inv, a)
	case CreateClient:
		reply = e.createClient(ctx, inv, a)
	case SettleInstallment:
		reply = e.settleInstallment(ctx, inv, a)
	case LinkCase:
		reply = e.linkCase(ctx, inv, a)
	case CreateProtocolDeadline:
		reply = e.createProtocolDeadline(ctx, inv, a)
	case ListDeadlines:
		reply = e.listDeadlines(ctx, inv, a)
	case ListProjects:
		reply = e.listProjects(ctx, inv, a)
	default:
		reply = UnknownToolReply
	}
	tool := "unknown"
	if action != nil {
		tool = action.ToolName()
	}
	e.logger().Info("tool executed",
		zap.String("tenant_id", inv.TenantID),
		zap.String("tool", tool),
		zap.String("outcome", outcome(reply)))
	return reply
}

func outcome(reply string) string {
	switch {
	case strings.HasPrefix(reply, "✅"):
		return "ok"
	case strings.HasPrefix(reply, "⚠️"):
		return "warning"
	case strings.HasPrefix(reply, "❌"):
		return "failed"
	default:
		return "info"
	}
}

func (e *Executor) failure(tool string, err error) string {
	e.logger().Warn("tool failed", zap.String("tool", tool), zap.Error(err))
	return "❌ Erro: " + err.Error()
}

// inTx runs fn in one transaction so the mutation and its audit event commit together.
func (e *Executor) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (e *Executor) createDeadline(ctx context.Context, inv Invocation, a CreateDeadline) string {
	title := strings.TrimSpace(a.Title)
	if title == "" || strings.TrimSpace(a.DueDate) == "" {
		return "❌ Para criar um prazo preciso do título e da data de vencimento."
	}
	due, err := ParseDate(a.DueDate)
	if err != nil {
		return invalidDate(a.DueDate)
	}

	responsible, err := e.Resolver.User(ctx, inv.TenantID, a.Responsible)
	if err != nil {
		return e.failure(ToolCreateDeadline, err)
	}
	invoking, err := e.invokingUser(ctx, inv, responsible)
	if err != nil {
		return e.failure(ToolCreateDeadline, err)
	}
	owner, msg := ownerFor(responsible, a.Responsible, invoking)
	if owner == "" {
		return msg
	}
	cs, err := e.Resolver.Case(ctx, inv.TenantID, a.CaseNumber)
	if err != nil {
		return e.failure(ToolCreateDeadline, err)
	}
	project, err := e.Resolver.Project(ctx, inv.TenantID, a.Project)
	if err != nil {
		return e.failure(ToolCreateDeadline, err)
	}

	d := domain.Deadline{
		ID:          e.newID(),
		TenantID:    inv.TenantID,
		Title:       title,
		Description: strings.TrimSpace(a.Description),
		DueDate:     due,
		OwnerUserID: owner,
	}
	if responsible != nil {
		d.ResponsibleID = ptr(responsible.ID)
	}
	if cs != nil {
		d.CaseID = ptr(cs.ID)
	}
	if project != nil {
		d.ProjectID = ptr(project.ID)
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertDeadline(ctx, tx, d); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.DeadlineCreated, inv.TenantID, "deadline", d.ID, inv.UserID,
			events.EventPayload{"title": d.Title, "due_date": d.DueDate, "owner_user_id": owner})
	})
	if err != nil {
		return e.failure(ToolCreateDeadline, err)
	}

	var b strings.Builder
	b.WriteString("✅ Prazo criado!\n")
	fmt.Fprintf(&b, "📌 Título: %s\n", d.Title)
	fmt.Fprintf(&b, "📅 Vencimento: %s", FormatBR(d.DueDate))
	writeResponsible(&b, responsible, a.Responsible)
	if a.CaseNumber != "" {
		if cs != nil {
			fmt.Fprintf(&b, "\n⚖️ Processo: %s", cs.Number)
		} else {
			fmt.Fprintf(&b, "\n⚖️ Processo: %s%s", a.CaseNumber, notFoundNote)
		}
	}
	if a.Project != "" {
		if project != nil {
			fmt.Fprintf(&b, "\n📁 Projeto: %s", project.Name)
		} else {
			fmt.Fprintf(&b, "\n📁 Projeto: %s%s", a.Project, notFoundNote)
		}
	}
	if d.Description != "" {
		fmt.Fprintf(&b, "\n📝 Descrição: %s", d.Description)
	}
	return b.String()
}

// invokingUser returns the invoker's id only when it names a user of the invocation's
// tenant. It is looked up only when no responsible was resolved.
func (e *Executor) invokingUser(ctx context.Context, inv Invocation, responsible *domain.User) (string, error) {
	if responsible != nil || strings.TrimSpace(inv.UserID) == "" {
		return "", nil
	}
	u, err := e.Repo.GetUser(ctx, inv.TenantID, inv.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		e.logger().Warn("invoking user not in tenant", zap.String("tenant_id", inv.TenantID), zap.String("user_id", inv.UserID))
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// ownerFor picks the resolved responsible, then the invoking user. An empty owner comes
// with the reply explaining what is missing.
func ownerFor(responsible *domain.User, requested, invokingUserID string) (string, string) {
	if responsible != nil {
		return responsible.ID, ""
	}
	if invokingUserID != "" {
		return invokingUserID, ""
	}
	if strings.TrimSpace(requested) != "" {
		return "", fmt.Sprintf("❌ Responsável \"%s\" não encontrado no sistema. Informe um usuário cadastrado para criar o prazo.", requested)
	}
	return "", "❌ Não consegui identificar o responsável pelo prazo. Informe o nome de um usuário cadastrado."
}

func writeResponsible(b *strings.Builder, responsible *domain.User, requested string) {
	switch {
	case responsible != nil:
		fmt.Fprintf(b, "\n👤 Responsável: %s", responsible.Name)
	case strings.TrimSpace(requested) != "":
		fmt.Fprintf(b, "\n👤 Responsável: %s%s, atribuído a você", requested, notFoundNote)
	}
}

func invalidDate(raw string) string {
	return fmt.Sprintf("❌ Data inválida: \"%s\". Use o formato DD/MM/AAAA.", raw)
}

func (e *Executor) createProject(ctx context.Context, inv Invocation, a CreateProject) string {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return "❌ Qual o nome do projeto?"
	}
	client, err := e.Resolver.Client(ctx, inv.TenantID, a.Client)
	if err != nil {
		return e.failure(ToolCreateProject, err)
	}
	p := domain.Project{
		ID:          e.newID(),
		TenantID:    inv.TenantID,
		Name:        name,
		Description: strings.TrimSpace(a.Description),
		ClientName:  strings.TrimSpace(a.Client),
		CreatedBy:   inv.UserID,
	}
	if p.CreatedBy == "" {
		p.CreatedBy = "system"
	}
	if client != nil {
		p.ClientID = ptr(client.ID)
		p.ClientName = client.DisplayName()
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ProjectCreated, inv.TenantID, "project", p.ID, inv.UserID,
			events.EventPayload{"name": p.Name, "client_name": p.ClientName, "client_linked": client != nil})
	})
	if err != nil {
		return e.failure(ToolCreateProject, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Projeto \"%s\" criado!", p.Name)
	if a.Client != "" {
		if client != nil {
			fmt.Fprintf(&b, "\n👥 Cliente: %s", p.ClientName)
		} else {
			fmt.Fprintf(&b, "\n👥 Cliente: %s%s", a.Client, notFoundNote)
		}
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "\n📝 Descrição: %s", p.Description)
	}
	return b.String()
}

func clientKind(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case kindIndividual, "fisica", "física", "pessoa física", "pf", domain.ClientIndividual:
		return domain.ClientIndividual, true
	case kindCompany, "juridica", "jurídica", "pessoa jurídica", "pj", "empresa", domain.ClientCompany:
		return domain.ClientCompany, true
	}
	return "", false
}

func (e *Executor) createClient(ctx context.Context, inv Invocation, a CreateClient) string {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return "❌ Qual o nome do cliente?"
	}
	kind, ok := clientKind(a.Kind)
	if !ok {
		return fmt.Sprintf("❌ O cliente \"%s\" é pessoa física ou jurídica?", name)
	}
	c := domain.Client{
		ID:        e.newID(),
		TenantID:  inv.TenantID,
		Kind:      kind,
		TaxID:     strings.TrimSpace(a.TaxID),
		Phone:     strings.TrimSpace(a.Phone),
		Email:     strings.TrimSpace(a.Email),
		Status:    "active",
		CreatedBy: inv.UserID,
	}
	if kind == domain.ClientCompany {
		c.CompanyName = name
	} else {
		c.FullName = name
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertClient(ctx, tx, c); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.ClientCreated, inv.TenantID, "client", c.ID, inv.UserID,
			events.EventPayload{"name": name, "kind": kind})
	})
	if err != nil {
		return e.failure(ToolCreateClient, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Cliente \"%s\" cadastrado!", name)
	if kind == domain.ClientCompany {
		b.WriteString("\n🏢 Tipo: Pessoa jurídica")
	} else {
		b.WriteString("\n👤 Tipo: Pessoa física")
	}
	if c.TaxID != "" {
		fmt.Fprintf(&b, "\n🪪 CPF/CNPJ: %s", c.TaxID)
	}
	if c.Phone != "" {
		fmt.Fprintf(&b, "\n📞 Telefone: %s", c.Phone)
	}
	if c.Email != "" {
		fmt.Fprintf(&b, "\n✉️ E-mail: %s", c.Email)
	}
	return b.String()
}

func (e *Executor) settleInstallment(ctx context.Context, inv Invocation, a SettleInstallment) string {
	seq := int(a.Sequence)
	if strings.TrimSpace(a.Client) == "" || seq <= 0 {
		return "❌ Para dar baixa preciso do nome do cliente e do número da parcela."
	}
	if float64(a.Sequence) != math.Trunc(float64(a.Sequence)) {
		return fmt.Sprintf("❌ Número de parcela inválido: %s. Informe o número inteiro da parcela.",
			strconv.FormatFloat(float64(a.Sequence), 'f', -1, 64))
	}
	paidAt := e.today()
	if a.PaidAt != "" {
		d, err := ParseDate(a.PaidAt)
		if err != nil {
			return invalidDate(a.PaidAt)
		}
		paidAt = d
	}
	client, err := e.Resolver.Client(ctx, inv.TenantID, a.Client)
	if err != nil {
		return e.failure(ToolSettleInstallment, err)
	}
	if client == nil {
		return fmt.Sprintf("❌ Cliente \"%s\" não encontrado.", a.Client)
	}
	name := client.DisplayName()
	inst, err := e.Repo.FindInstallment(ctx, inv.TenantID, client.ID, seq)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Sprintf("❌ Parcela %d não encontrada para o cliente %s.", seq, name)
	}
	if err != nil {
		return e.failure(ToolSettleInstallment, err)
	}
	if inst.Status == domain.InstallmentPaid {
		return alreadyPaid(seq, name, inst.PaidAt)
	}

	amount := inst.Amount
	if a.Amount != nil {
		amount = float64(*a.Amount)
	}
	method := strings.TrimSpace(a.PaymentMethod)
	var settled bool
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		settled, err = e.Repo.SettleInstallment(ctx, tx, inv.TenantID, inst.ID, paidAt, method, amount)
		if err != nil || !settled {
			return err
		}
		return e.Events.Append(ctx, tx, events.InstallmentSettle, inv.TenantID, "installment", inst.ID, inv.UserID,
			events.EventPayload{"sequence": seq, "amount": amount, "payment_method": method, "paid_at": paidAt})
	})
	if err != nil {
		return e.failure(ToolSettleInstallment, err)
	}
	if !settled {
		return alreadyPaid(seq, name, nil)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Parcela %d de %s baixada!", seq, name)
	fmt.Fprintf(&b, "\n💰 Valor pago: %s", FormatBRL(amount))
	if amount != inst.Amount {
		fmt.Fprintf(&b, " (valor da parcela: %s)", FormatBRL(inst.Amount))
	}
	if method != "" {
		fmt.Fprintf(&b, "\n💳 Forma de pagamento: %s", method)
	}
	fmt.Fprintf(&b, "\n📅 Data do pagamento: %s", FormatBR(paidAt))
	return b.String()
}

func alreadyPaid(seq int, client string, paidAt *string) string {
	if paidAt != nil && *paidAt != "" {
		return fmt.Sprintf("⚠️ A parcela %d de %s já está paga (baixa em %s).", seq, client, FormatBR(*paidAt))
	}
	return fmt.Sprintf("⚠️ A parcela %d de %s já está paga.", seq, client)
}

// FormatBRL renders an amount as Brazilian currency, e.g. R$ 1.500,00.
func FormatBRL(v float64) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	intPart, frac := s[:len(s)-3], s[len(s)-2:]
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	sign := ""
	if v < 0 {
		sign = "-"
	}
	return sign + "R$ " + b.String() + "," + frac
}

func (e *Executor) linkCase(ctx context.Context, inv Invocation, a LinkCase) string {
	if strings.TrimSpace(a.Project) == "" || strings.TrimSpace(a.CaseNumber) == "" {
		return "❌ Para vincular preciso do nome do projeto e do número do processo."
	}
	project, err := e.Resolver.Project(ctx, inv.TenantID, a.Project)
	if err != nil {
		return e.failure(ToolLinkCase, err)
	}
	if project == nil {
		return fmt.Sprintf("❌ Projeto \"%s\" não encontrado.", a.Project)
	}
	cs, err := e.Resolver.Case(ctx, inv.TenantID, a.CaseNumber)
	if err != nil {
		return e.failure(ToolLinkCase, err)
	}
	if cs == nil {
		return fmt.Sprintf("❌ Processo \"%s\" não encontrado.", a.CaseNumber)
	}

	var linked bool
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		linked, err = e.Repo.LinkCase(ctx, tx, domain.ProjectCase{
			ID: e.newID(), TenantID: inv.TenantID, ProjectID: project.ID, CaseID: cs.ID,
		})
		if err != nil || !linked {
			return err
		}
		return e.Events.Append(ctx, tx, events.ProjectCaseLinked, inv.TenantID, "project", project.ID, inv.UserID,
			events.EventPayload{"case_id": cs.ID, "case_number": cs.Number})
	})
	if err != nil {
		return e.failure(ToolLinkCase, err)
	}
	if !linked {
		return fmt.Sprintf("⚠️ O processo %s já está vinculado ao projeto \"%s\".", cs.Number, project.Name)
	}
	return fmt.Sprintf("✅ Processo %s vinculado ao projeto \"%s\"!", cs.Number, project.Name)
}

func (e *Executor) createProtocolDeadline(ctx context.Context, inv Invocation, a CreateProtocolDeadline) string {
	title := strings.TrimSpace(a.Title)
	if strings.TrimSpace(a.Project) == "" || strings.TrimSpace(a.Protocol) == "" || strings.TrimSpace(a.Stage) == "" {
		return "❌ Para um prazo de protocolo preciso do projeto, do protocolo e da etapa."
	}
	if title == "" || strings.TrimSpace(a.DueDate) == "" {
		return "❌ Para criar um prazo preciso do título e da data de vencimento."
	}
	due, err := ParseDate(a.DueDate)
	if err != nil {
		return invalidDate(a.DueDate)
	}

	path, err := e.Resolver.StagePath(ctx, inv.TenantID, a.Project, a.Protocol, a.Stage)
	var herr *HierarchyError
	if errors.As(err, &herr) {
		return "❌ " + herr.Error() + "."
	}
	if err != nil {
		return e.failure(ToolCreateProtocolDeadline, err)
	}
	responsible, err := e.Resolver.User(ctx, inv.TenantID, a.Responsible)
	if err != nil {
		return e.failure(ToolCreateProtocolDeadline, err)
	}
	invoking, err := e.invokingUser(ctx, inv, responsible)
	if err != nil {
		return e.failure(ToolCreateProtocolDeadline, err)
	}
	owner, msg := ownerFor(responsible, a.Responsible, invoking)
	if owner == "" {
		return msg
	}

	d := domain.Deadline{
		ID:              e.newID(),
		TenantID:        inv.TenantID,
		Title:           title,
		Description:     strings.TrimSpace(a.Description),
		DueDate:         due,
		OwnerUserID:     owner,
		ProjectID:       ptr(path.Project.ID),
		ProtocolStageID: ptr(path.Stage.ID),
	}
	if responsible != nil {
		d.ResponsibleID = ptr(responsible.ID)
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertDeadline(ctx, tx, d); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.DeadlineCreated, inv.TenantID, "deadline", d.ID, inv.UserID,
			events.EventPayload{"title": d.Title, "due_date": d.DueDate, "owner_user_id": owner, "protocol_stage_id": path.Stage.ID})
	})
	if err != nil {
		return e.failure(ToolCreateProtocolDeadline, err)
	}

	var b strings.Builder
	b.WriteString("✅ Prazo de protocolo criado!\n")
	fmt.Fprintf(&b, "📌 Título: %s\n", d.Title)
	fmt.Fprintf(&b, "📅 Vencimento: %s\n", FormatBR(d.DueDate))
	fmt.Fprintf(&b, "📁 Projeto: %s\n", path.Project.Name)
	fmt.Fprintf(&b, "🗂️ Protocolo: %s\n", path.Protocol.Name)
	fmt.Fprintf(&b, "🔖 Etapa: %s", path.Stage.Name)
	writeResponsible(&b, responsible, a.Responsible)
	if d.Description != "" {
		fmt.Fprintf(&b, "\n📝 Descrição: %s", d.Description)
	}
	return b.String()
}
