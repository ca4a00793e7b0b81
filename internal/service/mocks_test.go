package service

import (
	"context"
	"encoding/json"
	"time"

	"storecore/internal/job"
	"storecore/internal/model"
	"storecore/internal/stock"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// MockCartRepository is a mock implementation of CartRepository.
type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Cart, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Cart), args.Error(1)
}

func (m *MockCartRepository) GetActiveByUser(ctx context.Context, userID string) (*model.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Cart), args.Error(1)
}

func (m *MockCartRepository) GetActiveBySession(ctx context.Context, sessionID string) (*model.Cart, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Cart), args.Error(1)
}

func (m *MockCartRepository) Create(ctx context.Context, cart *model.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *MockCartRepository) Save(ctx context.Context, cart *model.Cart) error {
	args := m.Called(ctx, cart)
	return args.Error(0)
}

func (m *MockCartRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.CartStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockCartRepository) AbandonExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockUnitRepository is a mock implementation of UnitRepository.
type MockUnitRepository struct {
	mock.Mock
}

func (m *MockUnitRepository) GetByCode(ctx context.Context, code string) (*model.Unit, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Unit), args.Error(1)
}

func (m *MockUnitRepository) GetByCodes(ctx context.Context, codes []string) (map[string]model.Unit, error) {
	args := m.Called(ctx, codes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]model.Unit), args.Error(1)
}

// MockProductRepository is a mock implementation of ProductRepository.
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetAll(ctx context.Context, limit, offset int) ([]model.Product, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *MockProductRepository) GetByID(ctx context.Context, id string) (*model.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Product), args.Error(1)
}

func (m *MockProductRepository) GetByIDs(ctx context.Context, ids []string) (map[string]model.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]model.Product), args.Error(1)
}

// MockTierRepository is a mock implementation of TierRepository.
type MockTierRepository struct {
	mock.Mock
}

func (m *MockTierRepository) GetByName(ctx context.Context, name string) (*model.Tier, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tier), args.Error(1)
}

func (m *MockTierRepository) GetForUser(ctx context.Context, userID string) (*model.Tier, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tier), args.Error(1)
}

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) CreateOrderItems(ctx context.Context, tx pgx.Tx, items []model.OrderItem) error {
	args := m.Called(ctx, tx, items)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, []model.OrderItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	var items []model.OrderItem
	if args.Get(1) != nil {
		items = args.Get(1).([]model.OrderItem)
	}
	return args.Get(0).(*model.Order), items, args.Error(2)
}

func (m *MockOrderRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, version int, paymentRef *string) error {
	args := m.Called(ctx, id, from, to, version, paymentRef)
	return args.Error(0)
}

// MockWebhookEventRepository is a mock implementation of WebhookEventRepository.
type MockWebhookEventRepository struct {
	mock.Mock
}

func (m *MockWebhookEventRepository) Insert(ctx context.Context, provider, eventID string, payload json.RawMessage) (bool, *model.WebhookEvent, error) {
	args := m.Called(ctx, provider, eventID, payload)
	var existing *model.WebhookEvent
	if args.Get(1) != nil {
		existing = args.Get(1).(*model.WebhookEvent)
	}
	return args.Bool(0), existing, args.Error(2)
}

func (m *MockWebhookEventRepository) MarkProcessed(ctx context.Context, provider, eventID string) error {
	args := m.Called(ctx, provider, eventID)
	return args.Error(0)
}

func (m *MockWebhookEventRepository) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockLedger is a mock implementation of stock.Ledger.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Get(ctx context.Context, unitCode string) (*model.Unit, error) {
	args := m.Called(ctx, unitCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Unit), args.Error(1)
}

func (m *MockLedger) Decrement(ctx context.Context, unitCode string, qty int) (*stock.Mutation, error) {
	args := m.Called(ctx, unitCode, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.Mutation), args.Error(1)
}

func (m *MockLedger) Increment(ctx context.Context, unitCode string, qty int) (*stock.Mutation, error) {
	args := m.Called(ctx, unitCode, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.Mutation), args.Error(1)
}

func (m *MockLedger) BulkDecrement(ctx context.Context, items []stock.BulkItem) (*stock.BulkResult, error) {
	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.BulkResult), args.Error(1)
}

func (m *MockLedger) BulkIncrement(ctx context.Context, items []stock.BulkItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func (m *MockLedger) TxBulkDecrement(ctx context.Context, tx pgx.Tx, items []stock.BulkItem) (*stock.BulkResult, error) {
	args := m.Called(ctx, tx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.BulkResult), args.Error(1)
}

func (m *MockLedger) FinishMutations(ctx context.Context, mutations []stock.Mutation) {
	m.Called(ctx, mutations)
}

// MockPromoValidator is a mock implementation of promo.Validator.
type MockPromoValidator struct {
	mock.Mock
}

func (m *MockPromoValidator) Validate(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockPromoValidator) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockEnqueuer is a mock implementation of Enqueuer.
type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, p job.Payload) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

// MockOrderService is a mock implementation of OrderService.
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Create(ctx context.Context, cartID uuid.UUID, paymentIntent string) (*OrderResult, error) {
	args := m.Called(ctx, cartID, paymentIntent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*OrderResult), args.Error(1)
}

func (m *MockOrderService) GetByID(ctx context.Context, id uuid.UUID) (*OrderResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*OrderResult), args.Error(1)
}

func (m *MockOrderService) Cancel(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderService) MarkPaid(ctx context.Context, orderID uuid.UUID, paymentRef string) error {
	args := m.Called(ctx, orderID, paymentRef)
	return args.Error(0)
}

func (m *MockOrderService) StartFulfillment(ctx context.Context, orderID uuid.UUID) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockOrderService) Complete(ctx context.Context, orderID uuid.UUID) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockOrderService) InitiateRefund(ctx context.Context, orderID uuid.UUID) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockOrderService) CompleteRefund(ctx context.Context, orderID uuid.UUID) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

// MockTx is a minimal mock implementation of pgx.Tx for testing.
type MockTx struct {
	mock.Mock
	committed  bool
	rolledBack bool
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	m.committed = true
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	m.rolledBack = true
	return args.Error(0)
}

// Stub methods to satisfy pgx.Tx interface - these are not used in our tests
func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *MockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error) {
	return
}
func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (m *MockTx) Conn() *pgx.Conn                                               { return nil }
