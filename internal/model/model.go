// Package model содержит доменные сущности сервиса управления продажами.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет учётную запись для доступа к API.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Client представляет покупателя, от имени которого оформляются заказы.
type Client struct {
	ID    int64
	Name  string
	Email string
	CPF   string
}

// Product описывает товар. Поле Available является производным от Stock
// и пересчитывается при каждом изменении остатка.
type Product struct {
	Barcode        string
	Name           string
	Description    string
	Price          decimal.Decimal
	Category       string
	Section        string
	Stock          int
	Available      bool
	ExpirationDate *time.Time
	ImageURL       *string
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCanceled   OrderStatus = "canceled"
)

// Valid сообщает, является ли значение одним из известных статусов.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusCompleted, OrderStatusCanceled:
		return true
	}
	return false
}

// Terminal сообщает, является ли статус конечным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCanceled
}

// CanTransitionTo проверяет допустимость перехода в указанный статус.
// Переход в тот же статус разрешён всегда, выход из конечного — запрещён.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	return !s.Terminal()
}

// Order описывает заказ клиента вместе с его позициями.
type Order struct {
	ID        int64
	Status    OrderStatus
	ClientID  int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Items     []OrderItem
}

// OrderItem описывает одну позицию заказа. Позиции неизменяемы после
// создания и удаляются только каскадно вместе с заказом.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID string
	Quantity  int
}
