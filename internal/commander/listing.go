package commander

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lexflow/internal/domain"
	"lexflow/internal/repo"
)

// ErrUnknownFilter is returned for deadline filters outside the known set.
var ErrUnknownFilter = errors.New("unknown deadline filter")

const (
	defaultDeadlineLimit = 15
	defaultProjectLimit  = 10
)

var filterLabels = map[string]string{
	FilterToday:   "hoje",
	FilterOverdue: "vencidos",
	FilterNext7:   "próximos 7 dias",
	FilterAll:     "pendentes",
	FilterAgenda:  "vencidos e de hoje",
}

// NormalizeFilter maps free-form filter words to a known filter. Empty means all pending.
func NormalizeFilter(raw string) (string, bool) {
	f := strings.ToLower(strings.TrimSpace(raw))
	f = strings.NewReplacer(" ", "_", "-", "_", "ó", "o").Replace(f)
	switch f {
	case "", FilterAll, "all", "pendentes":
		return FilterAll, true
	case FilterToday, "today":
		return FilterToday, true
	case FilterOverdue, "atrasados", "overdue":
		return FilterOverdue, true
	case FilterNext7, "proximos_7", "semana", "next_7_days":
		return FilterNext7, true
	case FilterAgenda:
		return FilterAgenda, true
	}
	return "", false
}

// DeadlineWindow turns a filter into due-date bounds relative to today (YYYY-MM-DD).
func DeadlineWindow(filter, today string) (repo.DeadlineFilters, error) {
	f, ok := NormalizeFilter(filter)
	if !ok {
		return repo.DeadlineFilters{}, fmt.Errorf("%w %q", ErrUnknownFilter, filter)
	}
	var w repo.DeadlineFilters
	switch f {
	case FilterToday:
		w.DueFrom, w.DueTo = today, today
	case FilterOverdue:
		w.DueBefore = today
	case FilterNext7:
		w.DueFrom, w.DueTo = today, addDays(today, 7)
	case FilterAgenda:
		w.DueTo = today
	}
	return w, nil
}

// DeadlineMarker distinguishes overdue (🔴), due today (🟡) and future (🟢) deadlines.
func DeadlineMarker(due, today string) string {
	switch {
	case due < today:
		return "🔴"
	case due == today:
		return "🟡"
	default:
		return "🟢"
	}
}

// FormatDeadlines renders a deadline listing for chat.
func FormatDeadlines(items []domain.Deadline, filter, today string, limit int) string {
	f, _ := NormalizeFilter(filter)
	label := filterLabels[f]
	if len(items) == 0 {
		return fmt.Sprintf("📭 Nenhum prazo encontrado (%s).", label)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Prazos (%s):", label)
	for _, d := range items {
		fmt.Fprintf(&b, "\n%s %s · %s", DeadlineMarker(d.DueDate, today), FormatBR(d.DueDate), d.Title)
		if d.ResponsibleName != "" {
			fmt.Fprintf(&b, " (%s)", d.ResponsibleName)
		}
		if d.CaseNumber != "" {
			fmt.Fprintf(&b, " · Proc. %s", d.CaseNumber)
		} else if d.ProjectName != "" {
			fmt.Fprintf(&b, " · %s", d.ProjectName)
		}
	}
	if limit > 0 && len(items) >= limit {
		fmt.Fprintf(&b, "\n… mostrando os primeiros %d.", limit)
	}
	return b.String()
}

func (e *Executor) deadlineLimit() int {
	if e.DeadlineLimit > 0 {
		return e.DeadlineLimit
	}
	return defaultDeadlineLimit
}

func (e *Executor) projectLimit() int {
	if e.ProjectLimit > 0 {
		return e.ProjectLimit
	}
	return defaultProjectLimit
}

func (e *Executor) listDeadlines(ctx context.Context, inv Invocation, a ListDeadlines) string {
	today := e.today()
	filter, ok := NormalizeFilter(a.Filter)
	if !ok {
		return fmt.Sprintf("❌ Filtro \"%s\" desconhecido. Use hoje, vencidos, próximos 7 dias ou todos.", a.Filter)
	}
	window, _ := DeadlineWindow(filter, today)
	window.TenantID = inv.TenantID
	window.Limit = e.deadlineLimit()
	if strings.TrimSpace(a.Responsible) != "" {
		u, err := e.Resolver.User(ctx, inv.TenantID, a.Responsible)
		if err != nil {
			return e.failure(ToolListDeadlines, err)
		}
		if u == nil {
			return fmt.Sprintf("⚠️ Responsável \"%s\" não encontrado no sistema.", a.Responsible)
		}
		window.ResponsibleID = u.ID
	}
	items, err := e.Repo.ListDeadlines(ctx, window)
	if err != nil {
		return e.failure(ToolListDeadlines, err)
	}
	return FormatDeadlines(items, filter, today, window.Limit)
}

// Deadlines returns the pending deadlines of a tenant inside the filter window, together
// with the reference date the window was computed from. A zero limit uses the default.
func (e *Executor) Deadlines(ctx context.Context, tenantID, filter, responsibleID string, limit int) ([]domain.Deadline, string, error) {
	today := e.today()
	normalized, ok := NormalizeFilter(filter)
	if !ok {
		return nil, today, fmt.Errorf("%w %q", ErrUnknownFilter, filter)
	}
	window, _ := DeadlineWindow(normalized, today)
	window.TenantID = tenantID
	window.ResponsibleID = responsibleID
	window.Limit = limit
	if window.Limit <= 0 {
		window.Limit = e.deadlineLimit()
	}
	items, err := e.Repo.ListDeadlines(ctx, window)
	return items, today, err
}

// Agenda lists overdue and today's deadlines, optionally only those of one user.
func (e *Executor) Agenda(ctx context.Context, tenantID, userID string) (string, error) {
	items, today, err := e.Deadlines(ctx, tenantID, FilterAgenda, userID, 0)
	if err != nil {
		return "", err
	}
	return FormatDeadlines(items, FilterAgenda, today, e.deadlineLimit()), nil
}

func (e *Executor) listProjects(ctx context.Context, inv Invocation, a ListProjects) string {
	items, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{
		TenantID:   inv.TenantID,
		ClientName: strings.TrimSpace(a.Client),
		Limit:      e.projectLimit(),
	})
	if err != nil {
		return e.failure(ToolListProjects, err)
	}
	if len(items) == 0 {
		if a.Client != "" {
			return fmt.Sprintf("📭 Nenhum projeto encontrado para o cliente \"%s\".", a.Client)
		}
		return "📭 Nenhum projeto encontrado."
	}
	var b strings.Builder
	if a.Client != "" {
		fmt.Fprintf(&b, "📁 Projetos de \"%s\":", a.Client)
	} else {
		b.WriteString("📁 Projetos recentes:")
	}
	for _, p := range items {
		fmt.Fprintf(&b, "\n• %s", p.Name)
		if p.ClientName != "" {
			fmt.Fprintf(&b, " · %s", p.ClientName)
		}
	}
	return b.String()
}
