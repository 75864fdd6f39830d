package service

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"furniture-store/internal/events"
	"furniture-store/internal/model"
)

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

func (m *MockOrderRepository) InsertOrder(ctx context.Context, tx pgx.Tx, order *model.Order) (bool, error) {
	args := m.Called(ctx, tx, order)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) InsertOrderItems(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, items []model.CartLine) error {
	args := m.Called(ctx, tx, orderID, items)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByReference(ctx context.Context, customerID, reference string) (*model.Order, error) {
	args := m.Called(ctx, customerID, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByOrderNumber(ctx context.Context, customerID, orderNumber string) (*model.Order, error) {
	args := m.Called(ctx, customerID, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]model.Order, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Order), args.Error(1)
}

func (m *MockOrderRepository) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, orderStatus model.OrderStatus, paymentStatus model.PaymentStatus) error {
	args := m.Called(ctx, tx, id, orderStatus, paymentStatus)
	return args.Error(0)
}

// MockPublisher is a mock implementation of events.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderPlaced(ctx context.Context, ev events.OrderPlaced) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockPublisher) PublishUnreconciled(ctx context.Context, p model.UnreconciledPayment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
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

func validAddress() model.ShippingAddress {
	return model.ShippingAddress{
		FirstName:     "Ada",
		LastName:      "Lovelace",
		Country:       "GB",
		StreetAddress: "1 Analytical Way",
		City:          "London",
		Province:      "LDN",
		ZipCode:       "N1 9GU",
		Phone:         "+15550100",
		Email:         "ada@example.com",
	}
}

func cardRequest() model.CreateOrderRequest {
	return model.CreateOrderRequest{
		CustomerID: "cust-1",
		Items: []model.CartLine{
			{ProductID: "SOFA-1", Name: "Oslo Sofa", UnitPrice: decimal.NewFromInt(30000), Size: "3-seat", Color: "grey", Quantity: 1},
		},
		ShippingAddress:  validAddress(),
		PaymentMethod:    model.PaymentMethodCard,
		PaymentReference: "pi_123",
		Subtotal:         decimal.NewFromInt(30000),
		ShippingCost:     decimal.NewFromInt(500),
		Total:            decimal.NewFromInt(30500),
	}
}

func TestOrderService_CreateOrder_Success(t *testing.T) {
	ctx := context.Background()
	req := cardRequest()

	mockRepo := new(MockOrderRepository)
	mockPub := new(MockPublisher)
	mockTx := new(MockTx)

	svc := NewOrderService(mockRepo, mockPub, zerolog.Nop())

	var stored *model.Order
	mockRepo.On("GetByReference", ctx, "cust-1", "pi_123").Return(nil, nil)
	mockRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockRepo.On("InsertOrder", ctx, mockTx, mock.AnythingOfType("*model.Order")).
		Run(func(args mock.Arguments) { stored = args.Get(2).(*model.Order) }).
		Return(true, nil)
	mockRepo.On("InsertOrderItems", ctx, mockTx, mock.AnythingOfType("uuid.UUID"), req.Items).Return(nil)
	mockTx.On("Commit", ctx).Return(nil)
	mockPub.On("PublishOrderPlaced", ctx, mock.AnythingOfType("events.OrderPlaced")).Return(nil)

	conf, err := svc.CreateOrder(ctx, req)

	require.NoError(t, err)
	require.NotNil(t, conf)
	require.NotNil(t, stored)
	assert.Equal(t, stored.ID, conf.OrderID)
	assert.Regexp(t, regexp.MustCompile(`^FS-[0-9A-F]{8}$`), conf.OrderNumber)
	assert.Equal(t, model.OrderStatusPending, stored.OrderStatus)
	assert.Equal(t, model.PaymentStatusCompleted, stored.PaymentInfo.PaymentStatus)
	assert.Equal(t, "pi_123", stored.PaymentInfo.GatewayReference)
	assert.True(t, stored.Total.Equal(decimal.NewFromInt(30500)))
	assert.True(t, mockTx.committed)
	assert.False(t, mockTx.rolledBack)

	mockRepo.AssertExpectations(t)
	mockTx.AssertExpectations(t)
	mockPub.AssertExpectations(t)
}

func TestOrderService_CreateOrder_OfflineMethodsStartPending(t *testing.T) {
	for _, method := range []model.PaymentMethod{model.PaymentMethodBankTransfer, model.PaymentMethodCashOnDelivery} {
		t.Run(string(method), func(t *testing.T) {
			ctx := context.Background()
			req := cardRequest()
			req.PaymentMethod = method
			req.PaymentReference = method.ReferencePrefix() + "-1700000000000"

			mockRepo := new(MockOrderRepository)
			mockPub := new(MockPublisher)
			mockTx := new(MockTx)

			var stored *model.Order
			mockRepo.On("GetByReference", ctx, "cust-1", req.PaymentReference).Return(nil, nil)
			mockRepo.On("BeginTx", ctx).Return(mockTx, nil)
			mockRepo.On("InsertOrder", ctx, mockTx, mock.AnythingOfType("*model.Order")).
				Run(func(args mock.Arguments) { stored = args.Get(2).(*model.Order) }).
				Return(true, nil)
			mockRepo.On("InsertOrderItems", ctx, mockTx, mock.Anything, mock.Anything).Return(nil)
			mockTx.On("Commit", ctx).Return(nil)
			mockPub.On("PublishOrderPlaced", ctx, mock.Anything).Return(nil)

			_, err := NewOrderService(mockRepo, mockPub, zerolog.Nop()).CreateOrder(ctx, req)

			require.NoError(t, err)
			assert.Equal(t, model.PaymentStatusPending, stored.PaymentInfo.PaymentStatus)
			assert.Equal(t, model.OrderStatusPending, stored.OrderStatus)
		})
	}
}

func TestOrderService_CreateOrder_ExistingReferenceIsReturned(t *testing.T) {
	ctx := context.Background()
	existing := &model.Order{ID: uuid.New(), OrderNumber: "FS-ABCDEF12", CustomerID: "cust-1"}

	mockRepo := new(MockOrderRepository)
	mockPub := new(MockPublisher)
	mockRepo.On("GetByReference", ctx, "cust-1", "pi_123").Return(existing, nil)

	conf, err := NewOrderService(mockRepo, mockPub, zerolog.Nop()).CreateOrder(ctx, cardRequest())

	require.NoError(t, err)
	assert.Equal(t, existing.ID, conf.OrderID)
	assert.Equal(t, "FS-ABCDEF12", conf.OrderNumber)
	mockRepo.AssertNotCalled(t, "BeginTx", mock.Anything)
	mockPub.AssertNotCalled(t, "PublishOrderPlaced", mock.Anything, mock.Anything)
}

func TestOrderService_CreateOrder_ConcurrentDuplicate(t *testing.T) {
	ctx := context.Background()
	winner := &model.Order{ID: uuid.New(), OrderNumber: "FS-00000001", CustomerID: "cust-1"}

	mockRepo := new(MockOrderRepository)
	mockPub := new(MockPublisher)
	mockTx := new(MockTx)

	mockRepo.On("GetByReference", ctx, "cust-1", "pi_123").Return(nil, nil).Once()
	mockRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockRepo.On("InsertOrder", ctx, mockTx, mock.Anything).Return(false, nil)
	mockRepo.On("GetByReference", ctx, "cust-1", "pi_123").Return(winner, nil).Once()
	mockTx.On("Rollback", ctx).Return(nil)

	conf, err := NewOrderService(mockRepo, mockPub, zerolog.Nop()).CreateOrder(ctx, cardRequest())

	require.NoError(t, err)
	assert.Equal(t, winner.ID, conf.OrderID)
	assert.True(t, mockTx.rolledBack)
	mockRepo.AssertNotCalled(t, "InsertOrderItems", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockPub.AssertNotCalled(t, "PublishOrderPlaced", mock.Anything, mock.Anything)
}

func TestOrderService_CreateOrder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *model.CreateOrderRequest)
		wantErr error
	}{
		{
			name:    "missing customer",
			mutate:  func(r *model.CreateOrderRequest) { r.CustomerID = "" },
			wantErr: model.ErrUnauthorised,
		},
		{
			name:    "no items",
			mutate:  func(r *model.CreateOrderRequest) { r.Items = nil },
			wantErr: model.ErrValidation,
		},
		{
			name:    "quantity above limit",
			mutate:  func(r *model.CreateOrderRequest) { r.Items[0].Quantity = 6 },
			wantErr: model.ErrInvalidQuantity,
		},
		{
			name:    "unknown method",
			mutate:  func(r *model.CreateOrderRequest) { r.PaymentMethod = "crypto" },
			wantErr: model.ErrValidation,
		},
		{
			name:    "missing reference",
			mutate:  func(r *model.CreateOrderRequest) { r.PaymentReference = "" },
			wantErr: model.ErrValidation,
		},
		{
			name:    "incomplete address",
			mutate:  func(r *model.CreateOrderRequest) { r.ShippingAddress.City = "" },
			wantErr: model.ErrValidation,
		},
		{
			name:    "totals disagree",
			mutate:  func(r *model.CreateOrderRequest) { r.Total = decimal.NewFromInt(1) },
			wantErr: model.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := cardRequest()
			tt.mutate(&req)

			mockRepo := new(MockOrderRepository)
			_, err := NewOrderService(mockRepo, new(MockPublisher), zerolog.Nop()).CreateOrder(context.Background(), req)

			assert.ErrorIs(t, err, tt.wantErr)
			mockRepo.AssertNotCalled(t, "BeginTx", mock.Anything)
		})
	}
}

func TestOrderService_CreateOrder_TransactionRollback(t *testing.T) {
	ctx := context.Background()

	mockRepo := new(MockOrderRepository)
	mockPub := new(MockPublisher)
	mockTx := new(MockTx)

	mockRepo.On("GetByReference", ctx, "cust-1", "pi_123").Return(nil, nil)
	mockRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockRepo.On("InsertOrder", ctx, mockTx, mock.Anything).Return(true, nil)
	mockRepo.On("InsertOrderItems", ctx, mockTx, mock.Anything, mock.Anything).Return(errors.New("disk full"))
	mockTx.On("Rollback", ctx).Return(nil)

	conf, err := NewOrderService(mockRepo, mockPub, zerolog.Nop()).CreateOrder(ctx, cardRequest())

	require.Error(t, err)
	assert.Nil(t, conf)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, mockTx.rolledBack)
	assert.False(t, mockTx.committed)
	mockPub.AssertNotCalled(t, "PublishOrderPlaced", mock.Anything, mock.Anything)
}

func TestOrderService_CreateOrder_PublishFailureStillSucceeds(t *testing.T) {
	ctx := context.Background()

	mockRepo := new(MockOrderRepository)
	mockPub := new(MockPublisher)
	mockTx := new(MockTx)

	mockRepo.On("GetByReference", ctx, "cust-1", "pi_123").Return(nil, nil)
	mockRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockRepo.On("InsertOrder", ctx, mockTx, mock.Anything).Return(true, nil)
	mockRepo.On("InsertOrderItems", ctx, mockTx, mock.Anything, mock.Anything).Return(nil)
	mockTx.On("Commit", ctx).Return(nil)
	mockPub.On("PublishOrderPlaced", ctx, mock.Anything).Return(errors.New("broker down"))

	conf, err := NewOrderService(mockRepo, mockPub, zerolog.Nop()).CreateOrder(ctx, cardRequest())

	require.NoError(t, err)
	assert.NotEmpty(t, conf.OrderNumber)
}

func TestOrderService_ListOrders(t *testing.T) {
	ctx := context.Background()
	orders := []model.Order{{OrderNumber: "FS-2"}, {OrderNumber: "FS-1"}}

	mockRepo := new(MockOrderRepository)
	mockRepo.On("ListByCustomer", ctx, "cust-1").Return(orders, nil)
	svc := NewOrderService(mockRepo, new(MockPublisher), zerolog.Nop())

	got, err := svc.ListOrders(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, orders, got)

	_, err = svc.ListOrders(ctx, "")
	assert.ErrorIs(t, err, model.ErrUnauthorised)
}

func TestOrderService_GetByOrderNumber(t *testing.T) {
	ctx := context.Background()
	order := &model.Order{OrderNumber: "FS-1", CustomerID: "cust-1"}

	mockRepo := new(MockOrderRepository)
	mockRepo.On("GetByOrderNumber", ctx, "cust-1", "FS-1").Return(order, nil)
	mockRepo.On("GetByOrderNumber", ctx, "cust-1", "FS-404").Return(nil, nil)
	svc := NewOrderService(mockRepo, new(MockPublisher), zerolog.Nop())

	got, err := svc.GetByOrderNumber(ctx, "cust-1", "FS-1")
	require.NoError(t, err)
	assert.Equal(t, order, got)

	_, err = svc.GetByOrderNumber(ctx, "cust-1", "FS-404")
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
}

func TestOrderService_UpdateStatus(t *testing.T) {
	processing := model.OrderStatusProcessing
	delivered := model.OrderStatusDelivered
	completed := model.PaymentStatusCompleted

	tests := []struct {
		name        string
		current     model.Order
		update      model.StatusUpdate
		wantErr     error
		wantWrite   bool
		wantOrder   model.OrderStatus
		wantPayment model.PaymentStatus
	}{
		{
			name:        "pending to processing",
			current:     model.Order{OrderStatus: model.OrderStatusPending, PaymentInfo: model.PaymentInfo{PaymentStatus: model.PaymentStatusPending}},
			update:      model.StatusUpdate{OrderStatus: &processing},
			wantWrite:   true,
			wantOrder:   model.OrderStatusProcessing,
			wantPayment: model.PaymentStatusPending,
		},
		{
			name:        "cash collected on delivery",
			current:     model.Order{OrderStatus: model.OrderStatusShipped, PaymentInfo: model.PaymentInfo{PaymentStatus: model.PaymentStatusPending}},
			update:      model.StatusUpdate{OrderStatus: &delivered, PaymentStatus: &completed},
			wantWrite:   true,
			wantOrder:   model.OrderStatusDelivered,
			wantPayment: model.PaymentStatusCompleted,
		},
		{
			name:    "skipping shipped is rejected",
			current: model.Order{OrderStatus: model.OrderStatusPending, PaymentInfo: model.PaymentInfo{PaymentStatus: model.PaymentStatusPending}},
			update:  model.StatusUpdate{OrderStatus: &delivered},
			wantErr: model.ErrInvalidTransition,
		},
		{
			name:    "same status is a no-op",
			current: model.Order{OrderStatus: model.OrderStatusProcessing, PaymentInfo: model.PaymentInfo{PaymentStatus: model.PaymentStatusCompleted}},
			update:  model.StatusUpdate{OrderStatus: &processing},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			id := uuid.New()
			current := tt.current
			current.ID = id
			tt.update.OrderID = id

			mockRepo := new(MockOrderRepository)
			mockTx := new(MockTx)
			mockRepo.On("BeginTx", ctx).Return(mockTx, nil)
			mockRepo.On("LockByID", ctx, mockTx, id).Return(&current, nil)
			mockTx.On("Rollback", ctx).Return(nil).Maybe()
			if tt.wantWrite {
				mockRepo.On("UpdateStatus", ctx, mockTx, id, tt.wantOrder, tt.wantPayment).Return(nil)
				mockTx.On("Commit", ctx).Return(nil)
			}

			err := NewOrderService(mockRepo, new(MockPublisher), zerolog.Nop()).UpdateStatus(ctx, tt.update)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.wantWrite {
				assert.True(t, mockTx.committed)
			} else {
				mockRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestOrderService_UpdateStatus_NotFound(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	shipped := model.OrderStatusShipped

	mockRepo := new(MockOrderRepository)
	mockTx := new(MockTx)
	mockRepo.On("BeginTx", ctx).Return(mockTx, nil)
	mockRepo.On("LockByID", ctx, mockTx, id).Return(nil, nil)
	mockTx.On("Rollback", ctx).Return(nil)

	err := NewOrderService(mockRepo, new(MockPublisher), zerolog.Nop()).
		UpdateStatus(ctx, model.StatusUpdate{OrderID: id, OrderStatus: &shipped})

	assert.ErrorIs(t, err, model.ErrOrderNotFound)
	assert.True(t, mockTx.rolledBack)
}

func TestOrderNumber_Format(t *testing.T) {
	id := uuid.MustParse("0a1b2c3d-4e5f-6789-abcd-ef0123456789")
	assert.Equal(t, "FS-0A1B2C3D", orderNumber(id))
}
