package orders

import (
	"context"
	"testing"

	"github.com/angelmondragon/localcart/internal/testutil"
	"github.com/angelmondragon/localcart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/angelmondragon/localcart/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderCachePutGetList(t *testing.T) {
	conn := testutil.NewSQLite(t)
	cache, err := NewOrderCache(conn)
	require.NoError(t, err)
	ctx := context.Background()

	for i, id := range []string{"ord_a", "ord_b", "ord_c"} {
		require.NoError(t, cache.Put(ctx, models.LocalOrder{
			RemoteOrderID:   id,
			ListingID:       "listing-" + id,
			TotalMinorUnits: int64(1000 * (i + 1)),
			CurrencyCode:    "USD",
			Status:          "pending_payment",
			CreatedAt:       int64(100 + i),
		}))
	}

	got, err := cache.Get(ctx, "ord_b")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), got.TotalMinorUnits)

	require.NoError(t, cache.Put(ctx, models.LocalOrder{
		RemoteOrderID: "ord_b", ListingID: "listing-ord_b", TotalMinorUnits: 2000,
		CurrencyCode: "USD", Status: "paid", CreatedAt: 101,
	}))
	got, err = cache.Get(ctx, "ord_b")
	require.NoError(t, err)
	assert.Equal(t, "paid", got.Status)

	page, err := cache.List(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "ord_c", page.Items[0].RemoteOrderID)
	assert.Equal(t, "ord_b", page.Items[1].RemoteOrderID)
	require.NotEmpty(t, page.NextCursor)

	rest, err := cache.List(ctx, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, "ord_a", rest.Items[0].RemoteOrderID)
	assert.Empty(t, rest.NextCursor)

	_, err = cache.Get(ctx, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = cache.List(ctx, pagination.Params{Cursor: "%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPaymentHistoryIsAppendOnly(t *testing.T) {
	conn := testutil.NewSQLite(t)
	history, err := NewPaymentHistory(conn)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := history.Append(ctx, models.LocalPayment{OrderID: "ord_a", ActionLabel: "Card ending rd_a", Confirmed: true, RecordedAt: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	_, err = history.Append(ctx, models.LocalPayment{OrderID: "ord_a", ActionLabel: "Card ending rd_a", RecordedAt: 20})
	require.NoError(t, err)

	page, err := history.List(ctx, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(20), page.Items[0].RecordedAt)
	assert.False(t, page.Items[0].Confirmed)
	assert.True(t, page.Items[1].Confirmed)

	_, err = history.Append(ctx, models.LocalPayment{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
