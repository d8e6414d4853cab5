// Package inventory реализует правила учёта остатков товара.
package inventory

import (
	"errors"

	"github.com/lmoraes/luestilo-system/internal/model"
)

// ErrUnavailable возвращается при попытке резервирования недоступного товара.
var (
	ErrUnavailable = errors.New("product is not available")
	// ErrInsufficientStock возвращается, если запрошенное количество превышает остаток.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Check проверяет, можно ли зарезервировать указанное количество товара.
// Не имеет побочных эффектов; резервирование выполняется отдельно через Reserve.
func Check(p *model.Product, quantity int) error {
	if !p.Available {
		return ErrUnavailable
	}
	if quantity <= 0 || p.Stock < quantity {
		return ErrInsufficientStock
	}
	return nil
}

// Reserve списывает количество с остатка товара. Вызывающий обязан заранее
// проверить возможность списания через Check в рамках той же транзакции.
func Reserve(p *model.Product, quantity int) {
	p.Stock -= quantity
	if p.Stock == 0 {
		p.Available = false
	}
}

// Release возвращает ранее зарезервированное количество на остаток.
// Используется при отмене заказа.
func Release(p *model.Product, quantity int) {
	p.Stock += quantity
	if p.Stock > 0 {
		p.Available = true
	}
}
