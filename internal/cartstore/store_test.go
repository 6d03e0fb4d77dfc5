package cartstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/localcart/internal/testutil"
	dbtypes "github.com/angelmondragon/localcart/pkg/db/types"
	"github.com/angelmondragon/localcart/pkg/db/models"
	pkgerrors "github.com/angelmondragon/localcart/pkg/errors"
	"github.com/angelmondragon/localcart/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	conn := testutil.NewSQLite(t)
	logg := logger.New(logger.Options{ServiceName: "cartstore-test", Level: zerolog.Disabled})
	store, err := New(context.Background(), conn, logg)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func ptr[T any](v T) *T { return &v }

func lineItem(id, product string, qty int, expiresAt *int64, variants ...dbtypes.VariantSelection) models.CartLineItem {
	return models.CartLineItem{
		ItemID:              id,
		ProductID:           product,
		Title:               "Item " + product,
		Quantity:            qty,
		UnitPriceMinorUnits: 1299,
		CurrencyCode:        "USD",
		VariantSelections:   dbtypes.VariantSelections(variants),
		LastModifiedAt:      time.Now().UnixMilli(),
		ExpiresAt:           expiresAt,
	}
}

func recvItems(t *testing.T, ch <-chan []models.CartLineItem) []models.CartLineItem {
	t.Helper()
	select {
	case rows, ok := <-ch:
		require.True(t, ok, "stream closed")
		return rows
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for items")
	}
	return nil
}

func TestUpsertKeepsExistingIDForCompoundKey(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	black := dbtypes.VariantSelection{Name: "color", Value: "black"}

	first, err := store.Upsert(ctx, lineItem("a", "p1", 1, nil, black))
	require.NoError(t, err)
	assert.Equal(t, "a", first.ItemID)

	second, err := store.Upsert(ctx, lineItem("b", "p1", 3, nil, black))
	require.NoError(t, err)
	assert.Equal(t, "a", second.ItemID, "compound key match keeps the stored id")

	rows, err := store.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Quantity)
	assert.Equal(t, "color=black", rows[0].VariantKey)
}

func TestUpsertDistinguishesVariants(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, lineItem("", "p1", 1, nil, dbtypes.VariantSelection{Name: "size", Value: "M"}))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, lineItem("", "p1", 1, nil, dbtypes.VariantSelection{Name: "size", Value: "L"}))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, lineItem("", "p1", 1, nil))
	require.NoError(t, err)

	rows, err := store.QueryAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	for _, row := range rows {
		assert.NotEmpty(t, row.ItemID, "missing ids are generated")
	}
}

func TestDeleteExpiredBeforeIsInclusive(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	_, err := store.Upsert(ctx, lineItem("past", "p1", 1, ptr(now-1)))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, lineItem("exact", "p2", 1, ptr(now)))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, lineItem("future", "p3", 1, ptr(now+60_000)))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, lineItem("forever", "p4", 1, nil))
	require.NoError(t, err)

	removed, err := store.DeleteExpiredBefore(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	rows, err := store.QueryAll(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, row := range rows {
		ids = append(ids, row.ItemID)
	}
	assert.ElementsMatch(t, []string{"future", "forever"}, ids)

	removed, err = store.DeleteExpiredBefore(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDeleteByID(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, lineItem("a", "p1", 1, nil))
	require.NoError(t, err)

	removed, err := store.DeleteByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = store.DeleteByID(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestItemsStreamEmitsAfterEachWrite(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := store.Items(ctx)
	assert.Empty(t, recvItems(t, ch))

	_, err := store.Upsert(ctx, lineItem("a", "p1", 2, nil))
	require.NoError(t, err)
	rows := recvItems(t, ch)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Quantity)

	_, err = store.DeleteByID(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, recvItems(t, ch))
}

func TestUpdateRollsBackOnError(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.Update(ctx, func(tx *Tx) error {
		item := lineItem("a", "p1", 1, nil)
		if err := tx.Put(&item); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "abort")
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "typed errors pass through unchanged")

	rows, err := store.QueryAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestConstraintViolationIsPersistenceFailure(t *testing.T) {
	store := newStore(t)
	_, err := store.Upsert(context.Background(), lineItem("a", "p1", 0, nil))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistence))
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.Upsert(ctx, lineItem("a", "p1", 1, nil))
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update(ctx, func(tx *Tx) error {
				row, err := tx.FindByID("a")
				if err != nil || row == nil {
					return err
				}
				row.Quantity++
				return tx.Put(row)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows, err := store.QueryAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1+workers, rows[0].Quantity)
}

func TestMetadataPatchesAreFieldLevel(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial, err := store.ReadMetadata(ctx)
	require.NoError(t, err)
	assert.Nil(t, initial.LastSyncAt)
	assert.Nil(t, initial.LastErrorMessage)

	metaCh := store.Metadata(ctx)
	<-metaCh

	_, err = store.WriteMetadata(ctx, MetadataPatch{LastSyncAt: ptr(int64(1000))})
	require.NoError(t, err)
	_, err = store.WriteMetadata(ctx, MetadataPatch{LastErrorMessage: ptr("offline")})
	require.NoError(t, err)

	meta, err := store.ReadMetadata(ctx)
	require.NoError(t, err)
	require.NotNil(t, meta.LastSyncAt)
	assert.Equal(t, int64(1000), *meta.LastSyncAt, "error write must not clobber last sync")
	require.NotNil(t, meta.LastErrorMessage)
	assert.Equal(t, "offline", *meta.LastErrorMessage)

	select {
	case latest := <-metaCh:
		require.NotNil(t, latest.LastErrorMessage)
		assert.Equal(t, "offline", *latest.LastErrorMessage)
	case <-time.After(2 * time.Second):
		t.Fatalf("metadata stream did not emit")
	}

	meta, err = store.WriteMetadata(ctx, MetadataPatch{ClearError: true})
	require.NoError(t, err)
	assert.Nil(t, meta.LastErrorMessage)
	require.NotNil(t, meta.LastSyncAt)
}

func TestCloseEndsStreams(t *testing.T) {
	store := newStore(t)
	ch := store.Items(context.Background())
	<-ch
	store.Close()
	_, ok := <-ch
	assert.False(t, ok)
}
