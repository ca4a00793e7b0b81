package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"storecore/internal/model"
	"storecore/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOrderService is a mock implementation of service.OrderService.
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Create(ctx context.Context, cartID uuid.UUID, paymentIntent string) (*service.OrderResult, error) {
	args := m.Called(ctx, cartID, paymentIntent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.OrderResult), args.Error(1)
}

func (m *MockOrderService) GetByID(ctx context.Context, id uuid.UUID) (*service.OrderResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.OrderResult), args.Error(1)
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

// MockWebhookService is a mock implementation of service.WebhookService.
type MockWebhookService struct {
	mock.Mock
}

func (m *MockWebhookService) Receive(ctx context.Context, provider, eventID string, payload json.RawMessage, signature string) error {
	args := m.Called(ctx, provider, eventID, payload, signature)
	return args.Error(0)
}

func (m *MockWebhookService) PurgeExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func TestOrderHandler_Create_Success(t *testing.T) {
	mockSvc := new(MockOrderService)
	h := NewOrderHandler(mockSvc, zerolog.Nop())

	cartID := uuid.New()
	orderID := uuid.New()
	result := &service.OrderResult{
		Order: model.Order{ID: orderID, Status: model.OrderStatusStockReserved, Total: 57.95, Version: 1},
	}
	mockSvc.On("Create", mock.Anything, cartID, "pi_123").Return(result, nil)

	body, _ := json.Marshal(map[string]string{"cartId": cartID.String(), "paymentIntent": "pi_123"})
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var resp service.OrderResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, orderID, resp.Order.ID)
	mockSvc.AssertExpectations(t)
}

func TestOrderHandler_Create_StockConflict(t *testing.T) {
	mockSvc := new(MockOrderService)
	h := NewOrderHandler(mockSvc, zerolog.Nop())

	cartID := uuid.New()
	mockSvc.On("Create", mock.Anything, cartID, "").
		Return(nil, &model.StockConflictError{Units: []string{"U-RED-M"}})

	body, _ := json.Marshal(map[string]string{"cartId": cartID.String()})
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.ErrCodeStockConflict, resp.Code)
	assert.Equal(t, []string{"U-RED-M"}, resp.Units)
}

func TestOrderHandler_Create_InvalidCartID(t *testing.T) {
	h := NewOrderHandler(new(MockOrderService), zerolog.Nop())

	body, _ := json.Marshal(map[string]string{"cartId": "nope"})
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Create(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderHandler_GetByID_NotFound(t *testing.T) {
	mockSvc := new(MockOrderService)
	h := NewOrderHandler(mockSvc, zerolog.Nop())

	orderID := uuid.New()
	mockSvc.On("GetByID", mock.Anything, orderID).Return(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+orderID.String(), nil)
	req.SetPathValue("id", orderID.String())
	rec := httptest.NewRecorder()

	h.GetByID(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderHandler_Cancel_InvalidTransition(t *testing.T) {
	mockSvc := new(MockOrderService)
	h := NewOrderHandler(mockSvc, zerolog.Nop())

	orderID := uuid.New()
	mockSvc.On("Cancel", mock.Anything, orderID).
		Return(nil, &model.InvalidTransitionError{From: model.OrderStatusPaid, To: model.OrderStatusCancelled})

	req := httptest.NewRequest(http.MethodPost, "/api/orders/"+orderID.String()+"/cancel", nil)
	req.SetPathValue("id", orderID.String())
	rec := httptest.NewRecorder()

	h.Cancel(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.ErrCodeInvalidTransition, resp.Code)
}

func TestWebhookHandler_Receive_Success(t *testing.T) {
	mockSvc := new(MockWebhookService)
	h := NewWebhookHandler(mockSvc, zerolog.Nop())

	payload := []byte(`{"orderId":"x","eventType":"payment.succeeded"}`)
	mockSvc.On("Receive", mock.Anything, "payprovider", "evt_1", json.RawMessage(payload), "sig").Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payprovider", bytes.NewReader(payload))
	req.SetPathValue("provider", "payprovider")
	req.Header.Set("X-Event-ID", "evt_1")
	req.Header.Set("X-Signature", "sig")
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	mockSvc.AssertExpectations(t)
}

func TestWebhookHandler_Receive_DuplicateAcknowledged(t *testing.T) {
	mockSvc := new(MockWebhookService)
	h := NewWebhookHandler(mockSvc, zerolog.Nop())

	payload := []byte(`{}`)
	mockSvc.On("Receive", mock.Anything, "payprovider", "evt_1", json.RawMessage(payload), "sig").
		Return(&model.DuplicateEventError{Provider: "payprovider", EventID: "evt_1"})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payprovider", bytes.NewReader(payload))
	req.SetPathValue("provider", "payprovider")
	req.Header.Set("X-Event-ID", "evt_1")
	req.Header.Set("X-Signature", "sig")
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	// Duplicates are success to the provider; anything else triggers redelivery.
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWebhookHandler_Receive_BadSignature(t *testing.T) {
	mockSvc := new(MockWebhookService)
	h := NewWebhookHandler(mockSvc, zerolog.Nop())

	payload := []byte(`{}`)
	mockSvc.On("Receive", mock.Anything, "payprovider", "evt_1", json.RawMessage(payload), "bad").
		Return(model.ErrInvalidSignature)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payprovider", bytes.NewReader(payload))
	req.SetPathValue("provider", "payprovider")
	req.Header.Set("X-Event-ID", "evt_1")
	req.Header.Set("X-Signature", "bad")
	rec := httptest.NewRecorder()

	h.Receive(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
