package repo

import (
	"context"
	"database/sql"
	"strings"

	"lexflow/internal/domain"
)

const projectColumns = `id,tenant_id,name,COALESCE(description,''),COALESCE(client_name,''),client_id,created_by,created_at`

func scanProject(row interface{ Scan(...any) error }) (domain.Project, error) {
	var (
		p        domain.Project
		clientID sql.NullString
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.ClientName, &clientID, &p.CreatedBy, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.ClientID = stringPtr(clientID)
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	if p.CreatedAt == "" {
		p.CreatedAt = now()
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO projects(id,tenant_id,name,description,client_name,client_id,created_by,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.TenantID, p.Name, nullable(p.Description), nullable(p.ClientName), nullableStringPtr(p.ClientID), p.CreatedBy, p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, tenantID, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE tenant_id=? AND id=?`, tenantID, id))
}

func (r Repo) FindProjectByName(ctx context.Context, tenantID, name string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects
WHERE tenant_id=? AND lexfold(name) LIKE ? ESCAPE '\'
ORDER BY created_at, rowid LIMIT 1`, tenantID, containsPattern(name)))
}

type ProjectFilters struct {
	TenantID string
	// ClientName matches the raw client name on the project or the linked client's names.
	ClientName string
	Limit      int
}

// ListProjects returns the most recently created projects first.
func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	clauses := []string{"p.tenant_id=?"}
	args := []any{f.TenantID}
	if strings.TrimSpace(f.ClientName) != "" {
		p := containsPattern(f.ClientName)
		clauses = append(clauses, `(lexfold(COALESCE(p.client_name,'')) LIKE ? ESCAPE '\'
 OR lexfold(COALESCE(c.full_name,'')) LIKE ? ESCAPE '\'
 OR lexfold(COALESCE(c.company_name,'')) LIKE ? ESCAPE '\')`)
		args = append(args, p, p, p)
	}
	query := `SELECT p.id,p.tenant_id,p.name,COALESCE(p.description,''),COALESCE(p.client_name,c.full_name,c.company_name,''),p.client_id,p.created_by,p.created_at
FROM projects p LEFT JOIN clients c ON c.id=p.client_id AND c.tenant_id=p.tenant_id
WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY p.created_at DESC, p.rowid DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertProtocol(ctx context.Context, p domain.Protocol) error {
	if p.CreatedAt == "" {
		p.CreatedAt = now()
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO protocols(id,tenant_id,project_id,name,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.TenantID, p.ProjectID, p.Name, p.CreatedAt)
	return err
}

// FindProtocolByName only searches protocols of the given project.
func (r Repo) FindProtocolByName(ctx context.Context, tenantID, projectID, name string) (domain.Protocol, error) {
	var p domain.Protocol
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,project_id,name,created_at FROM protocols
WHERE tenant_id=? AND project_id=? AND lexfold(name) LIKE ? ESCAPE '\'
ORDER BY created_at, rowid LIMIT 1`, tenantID, projectID, containsPattern(name)).
		Scan(&p.ID, &p.TenantID, &p.ProjectID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertStage(ctx context.Context, s domain.Stage) error {
	if s.CreatedAt == "" {
		s.CreatedAt = now()
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO protocol_stages(id,tenant_id,protocol_id,name,position,created_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.TenantID, s.ProtocolID, s.Name, s.Position, s.CreatedAt)
	return err
}

// FindStageByName only searches stages of the given protocol.
func (r Repo) FindStageByName(ctx context.Context, tenantID, protocolID, name string) (domain.Stage, error) {
	var s domain.Stage
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,protocol_id,name,position,created_at FROM protocol_stages
WHERE tenant_id=? AND protocol_id=? AND lexfold(name) LIKE ? ESCAPE '\'
ORDER BY position, created_at, rowid LIMIT 1`, tenantID, protocolID, containsPattern(name)).
		Scan(&s.ID, &s.TenantID, &s.ProtocolID, &s.Name, &s.Position, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) InsertCase(ctx context.Context, c domain.Case) error {
	if c.CreatedAt == "" {
		c.CreatedAt = now()
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO cases(id,tenant_id,number,court,created_at) VALUES (?,?,?,?,?)`,
		c.ID, c.TenantID, c.Number, nullable(c.Court), c.CreatedAt)
	return err
}

// FindCaseByNumber compares the digits of the supplied number against the digits of the
// stored canonical number, so "0001234-56.2024" and "0001234562024" find the same case.
func (r Repo) FindCaseByNumber(ctx context.Context, tenantID, number string) (domain.Case, error) {
	var c domain.Case
	digits := OnlyDigits(number)
	if digits == "" {
		return c, ErrNotFound
	}
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,number,COALESCE(court,''),created_at FROM cases
WHERE tenant_id=? AND replace(replace(replace(replace(number,'-',''),'.',''),'/',''),' ','') LIKE ?
ORDER BY created_at, rowid LIMIT 1`, tenantID, "%"+digits+"%").
		Scan(&c.ID, &c.TenantID, &c.Number, &c.Court, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// LinkCase associates a case with a project. It reports false without error when the
// pair is already linked.
func (r Repo) LinkCase(ctx context.Context, tx *sql.Tx, pc domain.ProjectCase) (bool, error) {
	if pc.CreatedAt == "" {
		pc.CreatedAt = now()
	}
	res, err := r.on(tx).ExecContext(ctx, `INSERT INTO project_cases(id,tenant_id,project_id,case_id,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(project_id, case_id) DO NOTHING`, pc.ID, pc.TenantID, pc.ProjectID, pc.CaseID, pc.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) CountProjectCases(ctx context.Context, tenantID, projectID, caseID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_cases WHERE tenant_id=? AND project_id=? AND case_id=?`,
		tenantID, projectID, caseID).Scan(&n)
	return n, err
}
