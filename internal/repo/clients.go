package repo

import (
	"context"
	"database/sql"

	"lexflow/internal/domain"
)

const clientColumns = `id,tenant_id,kind,COALESCE(full_name,''),COALESCE(company_name,''),COALESCE(tax_id,''),
COALESCE(phone,''),COALESCE(email,''),status,COALESCE(created_by,''),created_at`

func scanClient(row interface{ Scan(...any) error }) (domain.Client, error) {
	var c domain.Client
	err := row.Scan(&c.ID, &c.TenantID, &c.Kind, &c.FullName, &c.CompanyName, &c.TaxID, &c.Phone, &c.Email, &c.Status, &c.CreatedBy, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertClient(ctx context.Context, tx *sql.Tx, c domain.Client) error {
	if c.CreatedAt == "" {
		c.CreatedAt = now()
	}
	if c.Status == "" {
		c.Status = "active"
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO clients(id,tenant_id,kind,full_name,company_name,tax_id,phone,email,status,created_by,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.TenantID, c.Kind, nullable(c.FullName), nullable(c.CompanyName), nullable(c.TaxID),
		nullable(c.Phone), nullable(c.Email), c.Status, nullable(c.CreatedBy), c.CreatedAt)
	return err
}

func (r Repo) GetClient(ctx context.Context, tenantID, id string) (domain.Client, error) {
	return scanClient(r.DB.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE tenant_id=? AND id=?`, tenantID, id))
}

// FindClientByName matches either the individual or the company name column.
func (r Repo) FindClientByName(ctx context.Context, tenantID, name string) (domain.Client, error) {
	p := containsPattern(name)
	return scanClient(r.DB.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients
WHERE tenant_id=? AND (lexfold(COALESCE(full_name,'')) LIKE ? ESCAPE '\' OR lexfold(COALESCE(company_name,'')) LIKE ? ESCAPE '\')
ORDER BY created_at, rowid LIMIT 1`, tenantID, p, p))
}

func (r Repo) InsertInstallment(ctx context.Context, tx *sql.Tx, in domain.Installment) error {
	if in.Status == "" {
		in.Status = domain.InstallmentPending
	}
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO installments(id,tenant_id,client_id,sequence_number,amount,due_date,status,paid_at,payment_method,paid_amount)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		in.ID, in.TenantID, in.ClientID, in.SequenceNumber, in.Amount, nullable(in.DueDate), in.Status,
		nullableStringPtr(in.PaidAt), nullableStringPtr(in.PaymentMethod), in.PaidAmount)
	return err
}

// FindInstallment returns the installment with the given sequence number for a client.
func (r Repo) FindInstallment(ctx context.Context, tenantID, clientID string, seq int) (domain.Installment, error) {
	var (
		in      domain.Installment
		paidAt  sql.NullString
		method  sql.NullString
		paidAmt sql.NullFloat64
	)
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,client_id,sequence_number,amount,COALESCE(due_date,''),status,paid_at,payment_method,paid_amount
FROM installments WHERE tenant_id=? AND client_id=? AND sequence_number=?`, tenantID, clientID, seq).
		Scan(&in.ID, &in.TenantID, &in.ClientID, &in.SequenceNumber, &in.Amount, &in.DueDate, &in.Status, &paidAt, &method, &paidAmt)
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	if err != nil {
		return in, err
	}
	in.PaidAt = stringPtr(paidAt)
	in.PaymentMethod = stringPtr(method)
	if paidAmt.Valid {
		v := paidAmt.Float64
		in.PaidAmount = &v
	}
	return in, nil
}

// SettleInstallment marks an installment paid. The update is conditional on the row not
// already being paid, so concurrent settlements of the same installment collapse into one
// transition; settled reports whether this call performed it.
func (r Repo) SettleInstallment(ctx context.Context, tx *sql.Tx, tenantID, id, paidAt, method string, amount float64) (settled bool, err error) {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE installments SET status=?, paid_at=?, payment_method=?, paid_amount=?
WHERE tenant_id=? AND id=? AND status<>?`,
		domain.InstallmentPaid, paidAt, nullable(method), amount, tenantID, id, domain.InstallmentPaid)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
