package service

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/lmoraes/luestilo-system/internal/inventory"
	"github.com/lmoraes/luestilo-system/internal/model"
	"github.com/lmoraes/luestilo-system/internal/repository"
)

type stubRepo struct {
	createUserID  int64
	createUserErr error

	getUser    *model.User
	getUserErr error

	createClientID  int64
	createClientErr error

	product    *model.Product
	productErr error

	createdProduct *model.Product

	createOrderID    int64
	createOrderErr   error
	createOrderCalls int
	lastOrderClient  int64
	lastOrderItems   []model.OrderItem

	updatedOrder    *model.Order
	updateStatusErr error

	writeOffCount int64
	writeOffErr   error

	listClientsFilter repository.ClientFilter
	listOrdersFilter  repository.OrderFilter
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) CreateClient(ctx context.Context, c *model.Client) (int64, error) {
	return s.createClientID, s.createClientErr
}

func (s *stubRepo) GetClient(ctx context.Context, id int64) (*model.Client, error) {
	return nil, repository.ErrClientNotFound
}

func (s *stubRepo) ListClients(ctx context.Context, f repository.ClientFilter) ([]model.Client, error) {
	s.listClientsFilter = f
	return nil, nil
}

func (s *stubRepo) UpdateClient(ctx context.Context, id int64, upd repository.ClientUpdate) (*model.Client, error) {
	return nil, nil
}

func (s *stubRepo) DeleteClient(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) CreateProduct(ctx context.Context, p *model.Product) error {
	s.createdProduct = p
	return nil
}

func (s *stubRepo) GetProduct(ctx context.Context, barcode string) (*model.Product, error) {
	return s.product, s.productErr
}

func (s *stubRepo) ListProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error) {
	return nil, nil
}

func (s *stubRepo) UpdateProduct(ctx context.Context, barcode string, upd repository.ProductUpdate) (*model.Product, error) {
	return nil, nil
}

func (s *stubRepo) DeleteProduct(ctx context.Context, barcode string) error { return nil }

func (s *stubRepo) CreateOrder(ctx context.Context, clientID int64, items []model.OrderItem) (int64, error) {
	s.createOrderCalls++
	s.lastOrderClient = clientID
	s.lastOrderItems = items
	return s.createOrderID, s.createOrderErr
}

func (s *stubRepo) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return nil, repository.ErrOrderNotFound
}

func (s *stubRepo) ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error) {
	s.listOrdersFilter = f
	return nil, nil
}

func (s *stubRepo) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error) {
	return s.updatedOrder, s.updateStatusErr
}

func (s *stubRepo) DeleteOrder(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) WriteOffExpired(ctx context.Context) (int64, error) {
	return s.writeOffCount, s.writeOffErr
}

func TestRegisterUser_HashesPassword(t *testing.T) {
	repo := &stubRepo{createUserID: 42}
	svc := NewService(repo)

	id, err := svc.RegisterUser(context.Background(), "user@example.com", "secret")
	if err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}
}

func TestAuthenticateUser_InvalidPassword(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("correct"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}

	repo := &stubRepo{
		getUser: &model.User{
			ID:           1,
			Email:        "user@example.com",
			PasswordHash: hashed,
		},
	}
	svc := NewService(repo)

	_, err = svc.AuthenticateUser(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	u, err := svc.AuthenticateUser(context.Background(), "user@example.com", "correct")
	if err != nil {
		t.Fatalf("AuthenticateUser error: %v", err)
	}
	if u.ID != 1 {
		t.Fatalf("user id = %d, want 1", u.ID)
	}
}

func TestAuthenticateUser_UnknownUserHidden(t *testing.T) {
	repo := &stubRepo{getUserErr: repository.ErrUserNotFound}
	svc := NewService(repo)

	_, err := svc.AuthenticateUser(context.Background(), "nobody@example.com", "pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestCreateClient_RejectsInvalidCPF(t *testing.T) {
	svc := NewService(&stubRepo{})

	_, err := svc.CreateClient(context.Background(), &model.Client{
		Name:  "Test Client",
		Email: "test.client@example.com",
		CPF:   "123",
	})
	if !errors.Is(err, ErrInvalidCPF) {
		t.Fatalf("expected ErrInvalidCPF, got %v", err)
	}
}

func TestCreateProduct_DerivesAvailability(t *testing.T) {
	tests := []struct {
		name          string
		stock         int
		wantAvailable bool
	}{
		{"zero stock", 0, false},
		{"positive stock", 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{}
			svc := NewService(repo)

			p := model.Product{
				Barcode:   "1234567890123",
				Name:      "Test Product",
				Stock:     tt.stock,
				Available: !tt.wantAvailable, // входное значение должно игнорироваться
			}

			if err := svc.CreateProduct(context.Background(), &p); err != nil {
				t.Fatalf("CreateProduct error: %v", err)
			}
			if repo.createdProduct.Available != tt.wantAvailable {
				t.Fatalf("Available = %v, want %v", repo.createdProduct.Available, tt.wantAvailable)
			}
		})
	}
}

func TestCreateProduct_RejectsInvalidBarcode(t *testing.T) {
	svc := NewService(&stubRepo{})

	err := svc.CreateProduct(context.Background(), &model.Product{Barcode: "123", Name: "x"})
	if !errors.Is(err, ErrInvalidBarcode) {
		t.Fatalf("expected ErrInvalidBarcode, got %v", err)
	}
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.CreateOrder(context.Background(), 1, nil)
	if !errors.Is(err, ErrEmptyOrder) {
		t.Fatalf("expected ErrEmptyOrder, got %v", err)
	}
	if repo.createOrderCalls != 0 {
		t.Fatalf("repository must not be called for empty order")
	}
}

func TestCreateOrder_InvalidQuantity(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.CreateOrder(context.Background(), 1, []model.OrderItem{
		{ProductID: "3210987654321", Quantity: 0},
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	if repo.createOrderCalls != 0 {
		t.Fatalf("repository must not be called for invalid quantity")
	}
}

func TestCreateOrder_DuplicateProduct(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.CreateOrder(context.Background(), 1, []model.OrderItem{
		{ProductID: "3210987654321", Quantity: 1},
		{ProductID: "3210987654321", Quantity: 2},
	})
	if !errors.Is(err, ErrDuplicateProduct) {
		t.Fatalf("expected ErrDuplicateProduct, got %v", err)
	}
}

func TestCreateOrder_PassesThrough(t *testing.T) {
	repo := &stubRepo{createOrderID: 7}
	svc := NewService(repo)

	items := []model.OrderItem{
		{ProductID: "3210987654321", Quantity: 2},
		{ProductID: "1234567890123", Quantity: 1},
	}

	id, err := svc.CreateOrder(context.Background(), 5, items)
	if err != nil {
		t.Fatalf("CreateOrder error: %v", err)
	}
	if id != 7 {
		t.Fatalf("order id = %d, want 7", id)
	}
	if repo.lastOrderClient != 5 {
		t.Fatalf("client id = %d, want 5", repo.lastOrderClient)
	}
	if len(repo.lastOrderItems) != 2 {
		t.Fatalf("items = %d, want 2", len(repo.lastOrderItems))
	}
}

func TestCheckAvailability(t *testing.T) {
	repo := &stubRepo{
		product: &model.Product{Barcode: "3210987654321", Stock: 2, Available: true},
	}
	svc := NewService(repo)

	p, err := svc.CheckAvailability(context.Background(), "3210987654321", 2)
	if err != nil {
		t.Fatalf("CheckAvailability error: %v", err)
	}
	if p.Stock != 2 {
		t.Fatalf("stock = %d, want 2", p.Stock)
	}

	_, err = svc.CheckAvailability(context.Background(), "3210987654321", 3)
	if !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	_, err = svc.CheckAvailability(context.Background(), "3210987654321", 0)
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestCheckAvailability_UnavailableReportedAsNotFound(t *testing.T) {
	repo := &stubRepo{
		product: &model.Product{Barcode: "3210987654321", Stock: 5, Available: false},
	}
	svc := NewService(repo)

	_, err := svc.CheckAvailability(context.Background(), "3210987654321", 1)
	if !errors.Is(err, repository.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestUpdateOrderStatus_InvalidStatus(t *testing.T) {
	svc := NewService(&stubRepo{})

	_, err := svc.UpdateOrderStatus(context.Background(), 1, "delivered")
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestListOrders_InvalidStatusFilter(t *testing.T) {
	svc := NewService(&stubRepo{})

	_, err := svc.ListOrders(context.Background(), repository.OrderFilter{Status: "shipped"})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestListClients_NormalizesLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero becomes default", 0, defaultPageSize},
		{"negative becomes default", -5, defaultPageSize},
		{"over max is capped", 500, maxPageSize},
		{"in range kept", 20, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &stubRepo{}
			svc := NewService(repo)

			_, err := svc.ListClients(context.Background(), repository.ClientFilter{Limit: tt.limit})
			if err != nil {
				t.Fatalf("ListClients error: %v", err)
			}
			if repo.listClientsFilter.Limit != tt.want {
				t.Fatalf("limit = %d, want %d", repo.listClientsFilter.Limit, tt.want)
			}
		})
	}
}
