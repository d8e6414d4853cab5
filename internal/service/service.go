// Package service реализует бизнес-логику сервиса управления продажами.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lmoraes/luestilo-system/internal/inventory"
	"github.com/lmoraes/luestilo-system/internal/model"
	"github.com/lmoraes/luestilo-system/internal/repository"
	"github.com/lmoraes/luestilo-system/internal/validation"
)

// ErrInvalidCredentials возвращается при неверном email или пароле.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmptyOrder возвращается при попытке создать заказ без позиций.
	ErrEmptyOrder = errors.New("order must contain at least one item")
	// ErrInvalidQuantity возвращается при неположительном количестве в позиции.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrDuplicateProduct возвращается, если один товар указан в заказе дважды.
	ErrDuplicateProduct = errors.New("duplicate product in order")
	// ErrInvalidCPF возвращается при неверном формате CPF.
	ErrInvalidCPF = errors.New("invalid cpf format")
	// ErrInvalidBarcode возвращается при неверном формате штрихкода.
	ErrInvalidBarcode = errors.New("invalid barcode format")
	// ErrInvalidStatus возвращается при неизвестном статусе заказа.
	ErrInvalidStatus = errors.New("unknown order status")
	// ErrInvalidPrice возвращается при отрицательной цене товара.
	ErrInvalidPrice = errors.New("price must not be negative")
	// ErrInvalidStock возвращается при отрицательном остатке товара.
	ErrInvalidStock = errors.New("stock must not be negative")
)

const (
	defaultPageSize = 50
	maxPageSize     = 100

	expirationSweepInterval = 1 * time.Hour
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateClient(ctx context.Context, c *model.Client) (int64, error)
	GetClient(ctx context.Context, id int64) (*model.Client, error)
	ListClients(ctx context.Context, f repository.ClientFilter) ([]model.Client, error)
	UpdateClient(ctx context.Context, id int64, upd repository.ClientUpdate) (*model.Client, error)
	DeleteClient(ctx context.Context, id int64) error
	CreateProduct(ctx context.Context, p *model.Product) error
	GetProduct(ctx context.Context, barcode string) (*model.Product, error)
	ListProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error)
	UpdateProduct(ctx context.Context, barcode string, upd repository.ProductUpdate) (*model.Product, error)
	DeleteProduct(ctx context.Context, barcode string) error
	CreateOrder(ctx context.Context, clientID int64, items []model.OrderItem) (int64, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	WriteOffExpired(ctx context.Context) (int64, error)
}

// Service содержит бизнес-логику сервиса управления продажами.
type Service struct {
	repo Repository
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует новую учётную запись.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (int64, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}
	return s.repo.CreateUser(ctx, email, hashed)
}

// AuthenticateUser проверяет email и пароль и возвращает учётную запись.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// GetUserByEmail возвращает учётную запись по email.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.repo.GetUserByEmail(ctx, email)
}

// CreateClient создаёт нового клиента.
func (s *Service) CreateClient(ctx context.Context, c *model.Client) (int64, error) {
	if !validation.IsValidCPF(c.CPF) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCPF, c.CPF)
	}
	return s.repo.CreateClient(ctx, c)
}

// GetClient возвращает клиента по идентификатору.
func (s *Service) GetClient(ctx context.Context, id int64) (*model.Client, error) {
	return s.repo.GetClient(ctx, id)
}

// ListClients возвращает клиентов, удовлетворяющих фильтру.
func (s *Service) ListClients(ctx context.Context, f repository.ClientFilter) ([]model.Client, error) {
	f.Limit = normalizeLimit(f.Limit)
	return s.repo.ListClients(ctx, f)
}

// UpdateClient применяет частичное обновление клиента.
func (s *Service) UpdateClient(ctx context.Context, id int64, upd repository.ClientUpdate) (*model.Client, error) {
	if upd.CPF != nil && !validation.IsValidCPF(*upd.CPF) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCPF, *upd.CPF)
	}
	return s.repo.UpdateClient(ctx, id, upd)
}

// DeleteClient удаляет клиента вместе с его заказами.
func (s *Service) DeleteClient(ctx context.Context, id int64) error {
	return s.repo.DeleteClient(ctx, id)
}

// CreateProduct создаёт новый товар. Признак доступности выводится из остатка.
func (s *Service) CreateProduct(ctx context.Context, p *model.Product) error {
	if !validation.IsValidBarcode(p.Barcode) {
		return fmt.Errorf("%w: %q", ErrInvalidBarcode, p.Barcode)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, p.Price)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidStock, p.Stock)
	}

	p.Available = p.Stock > 0

	return s.repo.CreateProduct(ctx, p)
}

// GetProduct возвращает товар по штрихкоду.
func (s *Service) GetProduct(ctx context.Context, barcode string) (*model.Product, error) {
	return s.repo.GetProduct(ctx, barcode)
}

// ListProducts возвращает товары, удовлетворяющие фильтру.
func (s *Service) ListProducts(ctx context.Context, f repository.ProductFilter) ([]model.Product, error) {
	f.Limit = normalizeLimit(f.Limit)
	return s.repo.ListProducts(ctx, f)
}

// UpdateProduct применяет частичное обновление товара.
func (s *Service) UpdateProduct(ctx context.Context, barcode string, upd repository.ProductUpdate) (*model.Product, error) {
	if upd.Price != nil && upd.Price.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrice, *upd.Price)
	}
	if upd.Stock != nil && *upd.Stock < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStock, *upd.Stock)
	}
	return s.repo.UpdateProduct(ctx, barcode, upd)
}

// DeleteProduct удаляет товар.
func (s *Service) DeleteProduct(ctx context.Context, barcode string) error {
	return s.repo.DeleteProduct(ctx, barcode)
}

// CheckAvailability проверяет без побочных эффектов, можно ли зарезервировать
// указанное количество товара.
func (s *Service) CheckAvailability(ctx context.Context, barcode string, quantity int) (*model.Product, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	p, err := s.repo.GetProduct(ctx, barcode)
	if err != nil {
		return nil, err
	}

	if err := inventory.Check(p, quantity); err != nil {
		if errors.Is(err, inventory.ErrUnavailable) {
			return nil, fmt.Errorf("%w: barcode %s", repository.ErrProductNotFound, barcode)
		}
		return nil, fmt.Errorf("%w: barcode %s", err, barcode)
	}

	return p, nil
}

// CreateOrder создаёт заказ клиента. Все позиции проверяются и списываются
// атомарно: при любой ошибке заказ не создаётся и остатки не меняются.
func (s *Service) CreateOrder(ctx context.Context, clientID int64, items []model.OrderItem) (int64, error) {
	if len(items) == 0 {
		return 0, ErrEmptyOrder
	}

	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return 0, fmt.Errorf("%w: product %s", ErrInvalidQuantity, it.ProductID)
		}
		if _, ok := seen[it.ProductID]; ok {
			return 0, fmt.Errorf("%w: product %s", ErrDuplicateProduct, it.ProductID)
		}
		seen[it.ProductID] = struct{}{}
	}

	return s.repo.CreateOrder(ctx, clientID, items)
}

// GetOrder возвращает заказ вместе с позициями.
func (s *Service) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders возвращает заказы, удовлетворяющие фильтру.
func (s *Service) ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}
	f.Limit = normalizeLimit(f.Limit)
	return s.repo.ListOrders(ctx, f)
}

// UpdateOrderStatus переводит заказ в новый статус.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.repo.UpdateOrderStatus(ctx, id, status)
}

// DeleteOrder удаляет заказ вместе с позициями.
func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	return s.repo.DeleteOrder(ctx, id)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// StartExpirationSweeps запускает фоновый процесс списания остатков просроченных товаров.
func (s *Service) StartExpirationSweeps(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(expirationSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.repo.WriteOffExpired(ctx)
			}
		}
	}()
}
