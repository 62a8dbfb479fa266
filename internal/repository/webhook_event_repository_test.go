package repository

import (
	"context"
	"testing"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestWebhookEventRepository_RecordDeduplicates(t *testing.T) {
	db := newTestDB(t)
	repo := NewWebhookEventRepository(db)
	ctx := context.Background()

	first := &model.PaymentWebhookEvent{Provider: "crypto", EventID: "evt-1", EventType: "finished", Payload: datatypes.JSON(`{"a":1}`)}
	created, err := repo.Record(ctx, first)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, repo.MarkProcessed(ctx, first.ID, ""))

	again := &model.PaymentWebhookEvent{Provider: "crypto", EventID: "evt-1", EventType: "finished", Payload: datatypes.JSON(`{"a":1}`)}
	created, err = repo.Record(ctx, again)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, again.ID)
	require.NotNil(t, again.ProcessedAt)
}
