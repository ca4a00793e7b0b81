package integration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"storecore/internal/job"
	"storecore/internal/model"
	"storecore/internal/repository"
	"storecore/internal/stock"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockLedger_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	logger := zerolog.Nop()
	ledger := stock.NewLedger(testDB.Pool, nil, 4, logger)

	ctx := context.Background()

	t.Run("Decrement reduces stock and resolves threshold", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		m, err := ledger.Decrement(ctx, "U-TEE-M", 2)
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, 3, m.Stock)
		// Neither unit nor product set a threshold, so the store default wins.
		assert.Equal(t, 4, m.Threshold)
		assert.Equal(t, 3, UnitStock(t, testDB.Pool, "U-TEE-M"))
	})

	t.Run("Decrement below zero is rejected and changes nothing", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		_, err := ledger.Decrement(ctx, "U-MUG-STD", 4)
		var conflict *model.StockConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []string{"U-MUG-STD"}, conflict.Units)
		assert.Equal(t, 3, UnitStock(t, testDB.Pool, "U-MUG-STD"))
	})

	t.Run("Decrement unknown unit reports not found", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		_, err := ledger.Decrement(ctx, "U-GHOST", 1)
		var notFound *model.NotFoundError
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("Unit threshold shadows product and store defaults", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		m, err := ledger.Decrement(ctx, "U-MUG-STD", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, m.Threshold)
	})

	t.Run("Product threshold applies when the unit has none", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		m, err := ledger.Increment(ctx, "U-MUG-LRG", 5)
		require.NoError(t, err)
		assert.Equal(t, 5, m.Stock)
		assert.Equal(t, 2, m.Threshold)
	})

	t.Run("Increment and decrement round trip", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		_, err := ledger.Decrement(ctx, "U-TEE-L", 4)
		require.NoError(t, err)
		_, err = ledger.Increment(ctx, "U-TEE-L", 4)
		require.NoError(t, err)
		assert.Equal(t, 10, UnitStock(t, testDB.Pool, "U-TEE-L"))
	})

	t.Run("Decrement refreshes the product stock aggregate", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		_, err := ledger.Decrement(ctx, "U-TEE-M", 1)
		require.NoError(t, err)

		var totalStock int
		err = testDB.Pool.QueryRow(ctx, "SELECT total_stock FROM products WHERE id = 'P001'").Scan(&totalStock)
		require.NoError(t, err)
		// U-TEE-M 4 + U-TEE-L 10
		assert.Equal(t, 14, totalStock)
	})

	t.Run("BulkDecrement is all or nothing", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		result, err := ledger.BulkDecrement(ctx, []stock.BulkItem{
			{UnitCode: "U-TEE-M", Quantity: 2},
			{UnitCode: "U-MUG-STD", Quantity: 5},
		})
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, []string{"U-MUG-STD"}, result.FailedUnits)

		// The satisfiable line must not have been applied either.
		assert.Equal(t, 5, UnitStock(t, testDB.Pool, "U-TEE-M"))
		assert.Equal(t, 3, UnitStock(t, testDB.Pool, "U-MUG-STD"))
	})

	t.Run("BulkDecrement succeeds when every line fits", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		result, err := ledger.BulkDecrement(ctx, []stock.BulkItem{
			{UnitCode: "U-TEE-M", Quantity: 2},
			{UnitCode: "U-MUG-STD", Quantity: 1},
		})
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 3, UnitStock(t, testDB.Pool, "U-TEE-M"))
		assert.Equal(t, 2, UnitStock(t, testDB.Pool, "U-MUG-STD"))
	})

	t.Run("Concurrent decrements never oversell", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		// U-TEE-M starts with 5. Eight buyers race for one each; exactly
		// five can win.
		const buyers = 8

		var wg sync.WaitGroup
		errs := make(chan error, buyers)
		for i := 0; i < buyers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := ledger.Decrement(ctx, "U-TEE-M", 1)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		won, lost := 0, 0
		for err := range errs {
			if err == nil {
				won++
				continue
			}
			var conflict *model.StockConflictError
			require.ErrorAs(t, err, &conflict)
			lost++
		}

		assert.Equal(t, 5, won)
		assert.Equal(t, 3, lost)
		assert.Equal(t, 0, UnitStock(t, testDB.Pool, "U-TEE-M"))
	})
}

func TestCartRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	logger := zerolog.Nop()
	repo := repository.NewCartRepository(testDB.Pool, logger)

	ctx := context.Background()

	newCart := func(sessionID string) *model.Cart {
		now := time.Now().UTC()
		return &model.Cart{
			ID:        uuid.New(),
			SessionID: &sessionID,
			Status:    model.CartStatusActive,
			ExpiresAt: now.Add(72 * time.Hour),
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	t.Run("Create and Save round trip with lines", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		cart := newCart("sess-1")
		require.NoError(t, repo.Create(ctx, cart))

		cart.Items = []model.CartItem{
			{
				ID: uuid.New(), CartID: cart.ID, ProductID: "P001", UnitCode: "U-TEE-M",
				Quantity: 2, UnitPrice: 25.00, OriginalPrice: 25.00, Subtotal: 50.00,
				AvailableStock: 5, Position: 0,
			},
			{
				ID: uuid.New(), CartID: cart.ID, ProductID: "P003", UnitCode: "U-NOTE-A5",
				Quantity: 1, UnitPrice: 7.95, OriginalPrice: 7.95, Subtotal: 7.95,
				AvailableStock: 20, Position: 1,
			},
		}
		cart.Totals = model.CartTotals{Subtotal: 57.95, Shipping: 7.95, Total: 65.90}
		require.NoError(t, repo.Save(ctx, cart))

		got, err := repo.GetByID(ctx, cart.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Len(t, got.Items, 2)
		assert.Equal(t, "U-TEE-M", got.Items[0].UnitCode)
		assert.Equal(t, "U-NOTE-A5", got.Items[1].UnitCode)
		assert.Equal(t, 57.95, got.Totals.Subtotal)
		assert.Equal(t, 65.90, got.Totals.Total)
	})

	t.Run("GetActiveBySession returns the newest active cart", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		cart := newCart("sess-2")
		require.NoError(t, repo.Create(ctx, cart))

		got, err := repo.GetActiveBySession(ctx, "sess-2")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, cart.ID, got.ID)

		missing, err := repo.GetActiveBySession(ctx, "sess-nobody")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("AbandonExpired sweeps only expired active carts", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		fresh := newCart("sess-fresh")
		require.NoError(t, repo.Create(ctx, fresh))

		stale := newCart("sess-stale")
		stale.ExpiresAt = time.Now().UTC().Add(-time.Hour)
		require.NoError(t, repo.Create(ctx, stale))

		swept, err := repo.AbandonExpired(ctx, time.Now().UTC())
		require.NoError(t, err)
		assert.Equal(t, int64(1), swept)

		got, err := repo.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, model.CartStatusAbandoned, got.Status)

		got, err = repo.GetByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.CartStatusActive, got.Status)
	})
}

func TestOrderRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	logger := zerolog.Nop()
	repo := repository.NewOrderRepository(testDB.Pool, logger)

	ctx := context.Background()

	createOrder := func(t *testing.T) *model.Order {
		t.Helper()
		now := time.Now().UTC()
		order := &model.Order{
			ID:        uuid.New(),
			Status:    model.OrderStatusStockReserved,
			Subtotal:  50.00,
			Shipping:  7.95,
			Total:     57.95,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}

		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, repo.CreateOrder(ctx, tx, order))
		require.NoError(t, repo.CreateOrderItems(ctx, tx, []model.OrderItem{
			{
				ID: uuid.New(), OrderID: order.ID, ProductID: "P001", ProductName: "Crew Tee",
				UnitCode: "U-TEE-M", UnitPrice: 25.00, Quantity: 2, Subtotal: 50.00,
			},
		}))
		require.NoError(t, tx.Commit(ctx))
		return order
	}

	t.Run("Create and read back with items", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		order := createOrder(t)

		got, items, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, model.OrderStatusStockReserved, got.Status)
		require.Len(t, items, 1)
		assert.Equal(t, "U-TEE-M", items[0].UnitCode)
	})

	t.Run("Rolled back transaction persists nothing", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		now := time.Now().UTC()
		order := &model.Order{
			ID: uuid.New(), Status: model.OrderStatusStockReserved,
			Version: 1, CreatedAt: now, UpdatedAt: now,
		}

		tx, err := repo.BeginTx(ctx)
		require.NoError(t, err)
		require.NoError(t, repo.CreateOrder(ctx, tx, order))
		require.NoError(t, tx.Rollback(ctx))

		got, _, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("TransitionStatus bumps the version", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		order := createOrder(t)

		ref := "pay_abc"
		err := repo.TransitionStatus(ctx, order.ID, model.OrderStatusStockReserved, model.OrderStatusPaid, 1, &ref)
		require.NoError(t, err)

		got, _, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusPaid, got.Status)
		assert.Equal(t, 2, got.Version)
		require.NotNil(t, got.PaymentRef)
		assert.Equal(t, "pay_abc", *got.PaymentRef)
	})

	t.Run("Stale version loses the transition race", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)
		SeedCatalog(t, testDB.Pool)

		order := createOrder(t)

		err := repo.TransitionStatus(ctx, order.ID, model.OrderStatusStockReserved, model.OrderStatusPaid, 1, nil)
		require.NoError(t, err)

		// Same from-state and version again: the row has moved on.
		err = repo.TransitionStatus(ctx, order.ID, model.OrderStatusStockReserved, model.OrderStatusCancelled, 1, nil)
		var abort *model.TransactionAbortError
		require.ErrorAs(t, err, &abort)

		got, _, err := repo.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusPaid, got.Status)
	})
}

func TestWebhookEventRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	logger := zerolog.Nop()
	repo := repository.NewWebhookEventRepository(testDB.Pool, logger)

	ctx := context.Background()

	payload := json.RawMessage(`{"orderId":"o-1","eventType":"payment.succeeded"}`)

	t.Run("First delivery inserts, replay reports existing state", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)

		inserted, existing, err := repo.Insert(ctx, "payprovider", "evt_1", payload)
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Nil(t, existing)

		inserted, existing, err = repo.Insert(ctx, "payprovider", "evt_1", payload)
		require.NoError(t, err)
		assert.False(t, inserted)
		require.NotNil(t, existing)
		assert.Equal(t, model.WebhookStateReceived, existing.State)

		// The same event ID from another provider is a distinct event.
		inserted, _, err = repo.Insert(ctx, "otherprovider", "evt_1", payload)
		require.NoError(t, err)
		assert.True(t, inserted)
	})

	t.Run("MarkProcessed flips state and sets the timestamp", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)

		_, _, err := repo.Insert(ctx, "payprovider", "evt_2", payload)
		require.NoError(t, err)
		require.NoError(t, repo.MarkProcessed(ctx, "payprovider", "evt_2"))

		_, existing, err := repo.Insert(ctx, "payprovider", "evt_2", payload)
		require.NoError(t, err)
		require.NotNil(t, existing)
		assert.Equal(t, model.WebhookStateProcessed, existing.State)
		assert.NotNil(t, existing.ProcessedAt)
	})

	t.Run("PurgeProcessedBefore keeps received rows", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)

		_, _, err := repo.Insert(ctx, "payprovider", "evt_old", payload)
		require.NoError(t, err)
		require.NoError(t, repo.MarkProcessed(ctx, "payprovider", "evt_old"))

		_, _, err = repo.Insert(ctx, "payprovider", "evt_pending", payload)
		require.NoError(t, err)

		purged, err := repo.PurgeProcessedBefore(ctx, time.Now().UTC().Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), purged)

		_, existing, err := repo.Insert(ctx, "payprovider", "evt_pending", payload)
		require.NoError(t, err)
		require.NotNil(t, existing)
	})
}

func TestJobStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	logger := zerolog.Nop()
	store := job.NewStore(testDB.Pool, logger)

	ctx := context.Background()

	enqueue := func(t *testing.T, runAt time.Time) *job.Job {
		t.Helper()
		j := &job.Job{
			ID:          uuid.New(),
			Queue:       job.QueueMaintenance,
			Type:        job.TypeCartSweep,
			Payload:     []byte(`{}`),
			MaxAttempts: 3,
			RunAt:       runAt,
			CreatedAt:   time.Now().UTC(),
		}
		require.NoError(t, store.Enqueue(ctx, j))
		return j
	}

	t.Run("Claim takes due jobs once and skips future ones", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)

		due := enqueue(t, time.Now().UTC().Add(-time.Second))
		enqueue(t, time.Now().UTC().Add(time.Hour))

		claimed, err := store.Claim(ctx, []string{job.QueueMaintenance}, 30*time.Second)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, due.ID, claimed.ID)
		assert.Equal(t, 1, claimed.Attempts)

		// The due job is locked and the other is not runnable yet.
		claimed, err = store.Claim(ctx, []string{job.QueueMaintenance}, 30*time.Second)
		require.NoError(t, err)
		assert.Nil(t, claimed)
	})

	t.Run("Completed jobs are never claimed again", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)

		j := enqueue(t, time.Now().UTC().Add(-time.Second))

		claimed, err := store.Claim(ctx, []string{job.QueueMaintenance}, 30*time.Second)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		require.NoError(t, store.Complete(ctx, j.ID))

		claimed, err = store.Claim(ctx, []string{job.QueueMaintenance}, 30*time.Second)
		require.NoError(t, err)
		assert.Nil(t, claimed)
	})

	t.Run("Rescheduled jobs come back after their backoff", func(t *testing.T) {
		CleanupDB(t, testDB.Pool)

		j := enqueue(t, time.Now().UTC().Add(-time.Second))

		claimed, err := store.Claim(ctx, []string{job.QueueMaintenance}, 30*time.Second)
		require.NoError(t, err)
		require.NotNil(t, claimed)

		require.NoError(t, store.Reschedule(ctx, j.ID, time.Now().UTC().Add(-time.Millisecond), "transient failure"))

		claimed, err = store.Claim(ctx, []string{job.QueueMaintenance}, 30*time.Second)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, 2, claimed.Attempts)
		require.NotNil(t, claimed.LastError)
		assert.Equal(t, "transient failure", *claimed.LastError)
	})
}
