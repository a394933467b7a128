package shared

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlogAuditorRecords(t *testing.T) {
	var buf bytes.Buffer
	auditor := NewSlogAuditor(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := auditor.Record(context.Background(), AuditLog{
		Actor:    "alice",
		Action:   "transaction.post",
		Entity:   "transaction",
		EntityID: "abc",
		Meta:     map[string]any{"reference": "IN01/0001"},
		At:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"action":"transaction.post"`)
	require.Contains(t, buf.String(), `"reference":"IN01/0001"`)
}

func TestSlogAuditorRejectsIncompleteRecord(t *testing.T) {
	auditor := NewSlogAuditor(nil)
	err := auditor.Record(context.Background(), AuditLog{Action: "transaction.post"})
	require.Error(t, err)
}

func TestActorFromContextDefaultsToSystem(t *testing.T) {
	require.Equal(t, SystemActor, ActorFromContext(context.Background()))
	ctx := ContextWithActor(context.Background(), "bob")
	require.Equal(t, "bob", ActorFromContext(ctx))
}
