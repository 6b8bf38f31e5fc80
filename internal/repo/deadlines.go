package repo

import (
	"context"
	"database/sql"
	"strings"

	"lexflow/internal/domain"
)

func (r Repo) InsertDeadline(ctx context.Context, tx *sql.Tx, d domain.Deadline) error {
	if d.CreatedAt == "" {
		d.CreatedAt = now()
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO deadlines(id,tenant_id,title,description,due_date,owner_user_id,responsible_user_id,case_id,project_id,protocol_stage_id,completed,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.TenantID, d.Title, nullable(d.Description), d.DueDate, d.OwnerUserID,
		nullableStringPtr(d.ResponsibleID), nullableStringPtr(d.CaseID), nullableStringPtr(d.ProjectID),
		nullableStringPtr(d.ProtocolStageID), d.Completed, d.CreatedAt)
	return err
}

const deadlineSelect = `SELECT d.id,d.tenant_id,d.title,COALESCE(d.description,''),d.due_date,d.owner_user_id,
d.responsible_user_id,d.case_id,d.project_id,d.protocol_stage_id,d.completed,d.created_at,
COALESCE(u.name,''),COALESCE(c.number,''),COALESCE(p.name,'')
FROM deadlines d
LEFT JOIN users u ON u.id=d.responsible_user_id AND u.tenant_id=d.tenant_id
LEFT JOIN cases c ON c.id=d.case_id AND c.tenant_id=d.tenant_id
LEFT JOIN projects p ON p.id=d.project_id AND p.tenant_id=d.tenant_id`

func scanDeadline(row interface{ Scan(...any) error }) (domain.Deadline, error) {
	var (
		d                                   domain.Deadline
		responsible, caseID, project, stage sql.NullString
	)
	err := row.Scan(&d.ID, &d.TenantID, &d.Title, &d.Description, &d.DueDate, &d.OwnerUserID,
		&responsible, &caseID, &project, &stage, &d.Completed, &d.CreatedAt,
		&d.ResponsibleName, &d.CaseNumber, &d.ProjectName)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.ResponsibleID = stringPtr(responsible)
	d.CaseID = stringPtr(caseID)
	d.ProjectID = stringPtr(project)
	d.ProtocolStageID = stringPtr(stage)
	return d, nil
}

func (r Repo) GetDeadline(ctx context.Context, tenantID, id string) (domain.Deadline, error) {
	return scanDeadline(r.DB.QueryRowContext(ctx, deadlineSelect+` WHERE d.tenant_id=? AND d.id=?`, tenantID, id))
}

// DeadlineFilters bound a listing by due date. Dates are YYYY-MM-DD and bounds are inclusive.
type DeadlineFilters struct {
	TenantID         string
	DueFrom          string
	DueTo            string
	DueBefore        string // exclusive
	ResponsibleID    string
	IncludeCompleted bool
	Limit            int
}

// ListDeadlines returns deadlines ordered by due date, earliest first.
func (r Repo) ListDeadlines(ctx context.Context, f DeadlineFilters) ([]domain.Deadline, error) {
	clauses := []string{"d.tenant_id=?"}
	args := []any{f.TenantID}
	if !f.IncludeCompleted {
		clauses = append(clauses, "d.completed=0")
	}
	if f.DueFrom != "" {
		clauses = append(clauses, "d.due_date>=?")
		args = append(args, f.DueFrom)
	}
	if f.DueTo != "" {
		clauses = append(clauses, "d.due_date<=?")
		args = append(args, f.DueTo)
	}
	if f.DueBefore != "" {
		clauses = append(clauses, "d.due_date<?")
		args = append(args, f.DueBefore)
	}
	if f.ResponsibleID != "" {
		clauses = append(clauses, "(d.responsible_user_id=? OR (d.responsible_user_id IS NULL AND d.owner_user_id=?))")
		args = append(args, f.ResponsibleID, f.ResponsibleID)
	}
	query := deadlineSelect + ` WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY d.due_date ASC, d.created_at ASC, d.rowid ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Deadline
	for rows.Next() {
		d, err := scanDeadline(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) CountDeadlines(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM deadlines WHERE tenant_id=?`, tenantID).Scan(&n)
	return n, err
}
