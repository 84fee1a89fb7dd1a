package shared

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorContext(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, ActorFromContext(ctx))
	require.Empty(t, ActorFromContext(ContextWithActor(ctx, "   ")))
	require.Equal(t, "counter-1", ActorFromContext(ContextWithActor(ctx, " counter-1 ")))
	require.Len(t, ActorFromContext(ContextWithActor(ctx, strings.Repeat("x", 100))), maxActorLen)
}

func TestSlogAuditorRecordsActor(t *testing.T) {
	var buf bytes.Buffer
	auditor := NewSlogAuditor(slog.New(slog.NewTextHandler(&buf, nil)))

	err := auditor.Record(context.Background(), AuditLog{Actor: "meena", Action: AuditSaleCreate, Entity: "sale", EntityID: "s-1"})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "actor=meena")

	require.Error(t, auditor.Record(context.Background(), AuditLog{Action: AuditSaleCreate}))
}
