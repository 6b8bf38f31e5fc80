package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexflow/internal/db"
	"lexflow/internal/domain"
	"lexflow/internal/events"
	"lexflow/internal/migrate"
	"lexflow/internal/repo"
)

func TestAppendCommitsWithTransaction(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	r := repo.Repo{DB: conn}
	require.NoError(t, r.InsertTenant(ctx, domain.Tenant{ID: "t1", Name: "t1"}))

	w := events.Writer{Now: func() time.Time { return time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC) }}

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, tx, events.ClientCreated, "t1", "client", "c1", "", events.EventPayload{"name": "Acme"}))
	require.NoError(t, tx.Rollback())

	items, err := r.LatestEvents(ctx, "t1", 10)
	require.NoError(t, err)
	assert.Empty(t, items, "rolled back with its mutation")

	tx, err = conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, tx, events.ClientCreated, "t1", "client", "c1", "", events.EventPayload{"name": "Acme"}))
	require.NoError(t, tx.Commit())

	items, err = r.LatestEvents(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "client.create", items[0].Type)
	assert.Equal(t, "system", items[0].ActorID)
	assert.Equal(t, "2025-12-01T12:00:00Z", items[0].TS)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(items[0].Payload), &payload))
	assert.Equal(t, "Acme", payload["name"])
}
