package repo

import (
	"context"
	"database/sql"

	"lexflow/internal/domain"
)

func (r Repo) InsertMessage(ctx context.Context, m domain.Message) error {
	if m.CreatedAt == "" {
		m.CreatedAt = now()
	}
	if m.MessageType == "" {
		m.MessageType = "text"
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO messages(id,tenant_id,phone,body,direction,instance_name,message_id,message_type,user_id,agent_id,read,delivery_status,delivery_error,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.TenantID, m.Phone, m.Body, m.Direction, nullable(m.InstanceName), m.MessageID, m.MessageType,
		nullable(m.UserID), nullable(m.AgentID), m.Read, nullable(m.DeliveryStatus), nullable(m.DeliveryError), m.CreatedAt)
	return err
}

// ListMessages returns the newest messages of a tenant first.
func (r Repo) ListMessages(ctx context.Context, tenantID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,tenant_id,phone,body,direction,COALESCE(instance_name,''),message_id,message_type,
COALESCE(user_id,''),COALESCE(agent_id,''),read,COALESCE(delivery_status,''),COALESCE(delivery_error,''),created_at
FROM messages WHERE tenant_id=? ORDER BY created_at DESC, rowid DESC LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Phone, &m.Body, &m.Direction, &m.InstanceName, &m.MessageID, &m.MessageType,
			&m.UserID, &m.AgentID, &m.Read, &m.DeliveryStatus, &m.DeliveryError, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertChannelInstance(ctx context.Context, ci domain.ChannelInstance) error {
	if ci.CreatedAt == "" {
		ci.CreatedAt = now()
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO channel_instances(id,tenant_id,name,agent_id,instance_id,token,client_token,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		ci.ID, ci.TenantID, ci.Name, nullable(ci.AgentID), ci.InstanceID, ci.Token, nullable(ci.ClientToken), ci.CreatedAt)
	return err
}

// FindChannelInstance prefers an instance bound to the agent, then one with the given name,
// then the tenant's oldest instance.
func (r Repo) FindChannelInstance(ctx context.Context, tenantID, name, agentID string) (domain.ChannelInstance, error) {
	var ci domain.ChannelInstance
	err := r.DB.QueryRowContext(ctx, `SELECT id,tenant_id,name,COALESCE(agent_id,''),instance_id,token,COALESCE(client_token,''),created_at
FROM channel_instances WHERE tenant_id=?
ORDER BY CASE WHEN ?<>'' AND agent_id=? THEN 0 WHEN ?<>'' AND name=? THEN 1 ELSE 2 END, created_at, rowid
LIMIT 1`, tenantID, agentID, agentID, name, name).
		Scan(&ci.ID, &ci.TenantID, &ci.Name, &ci.AgentID, &ci.InstanceID, &ci.Token, &ci.ClientToken, &ci.CreatedAt)
	if err == sql.ErrNoRows {
		return ci, ErrNotFound
	}
	return ci, err
}
