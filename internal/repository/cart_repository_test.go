package repository

import (
	"context"
	"testing"

	"github.com/shinyyama/novelshelf-backend/internal/model"
	"github.com/stretchr/testify/require"
)

func TestCartRepository_DuplicateAndScopedDelete(t *testing.T) {
	db := newTestDB(t)
	ebooks := NewEbookRepository(db)
	cart := NewCartRepository(db)
	ctx := context.Background()

	s := &model.Series{Title: "Tower"}
	require.NoError(t, ebooks.CreateSeries(ctx, s))
	e := &model.Ebook{SeriesID: s.ID, Title: "Tower 1", Price: 60}
	require.NoError(t, ebooks.Create(ctx, e))

	item := &model.CartItem{UserUID: "u1", EbookID: e.ID}
	require.NoError(t, cart.Create(ctx, item))
	require.ErrorIs(t, cart.Create(ctx, &model.CartItem{UserUID: "u1", EbookID: e.ID}), ErrDuplicate)

	n, err := cart.Delete(ctx, "u2", item.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	list, err := cart.ListWithEbooks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Ebook)
	require.Equal(t, int64(60), list[0].Ebook.Price)

	n, err = cart.Delete(ctx, "u1", item.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
