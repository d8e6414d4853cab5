package inventory

import (
	"errors"
	"testing"

	"github.com/lmoraes/luestilo-system/internal/model"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		product  model.Product
		quantity int
		wantErr  error
	}{
		{
			name:     "enough stock",
			product:  model.Product{Barcode: "3210987654321", Stock: 10, Available: true},
			quantity: 2,
		},
		{
			name:     "exact stock",
			product:  model.Product{Barcode: "3210987654321", Stock: 2, Available: true},
			quantity: 2,
		},
		{
			name:     "insufficient stock",
			product:  model.Product{Barcode: "3210987654321", Stock: 2, Available: true},
			quantity: 3,
			wantErr:  ErrInsufficientStock,
		},
		{
			name:     "zero quantity",
			product:  model.Product{Barcode: "3210987654321", Stock: 2, Available: true},
			quantity: 0,
			wantErr:  ErrInsufficientStock,
		},
		{
			name:     "negative quantity",
			product:  model.Product{Barcode: "3210987654321", Stock: 2, Available: true},
			quantity: -1,
			wantErr:  ErrInsufficientStock,
		},
		{
			name:     "unavailable product",
			product:  model.Product{Barcode: "3210987654321", Stock: 5, Available: false},
			quantity: 1,
			wantErr:  ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(&tt.product, tt.quantity)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Check() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestReserve_DrainsStock(t *testing.T) {
	p := model.Product{Barcode: "3210987654321", Stock: 2, Available: true}

	if err := Check(&p, 2); err != nil {
		t.Fatalf("Check() = %v, want nil", err)
	}
	Reserve(&p, 2)

	if p.Stock != 0 {
		t.Fatalf("Stock = %d, want 0", p.Stock)
	}
	if p.Available {
		t.Fatalf("Available = true, want false after stock drained")
	}
}

func TestReserve_LeavesAvailableWithRemainder(t *testing.T) {
	p := model.Product{Barcode: "3210987654321", Stock: 5, Available: true}

	Reserve(&p, 2)

	if p.Stock != 3 {
		t.Fatalf("Stock = %d, want 3", p.Stock)
	}
	if !p.Available {
		t.Fatalf("Available = false, want true with stock remaining")
	}
}

func TestRelease_RestoresAvailability(t *testing.T) {
	p := model.Product{Barcode: "3210987654321", Stock: 0, Available: false}

	Release(&p, 2)

	if p.Stock != 2 {
		t.Fatalf("Stock = %d, want 2", p.Stock)
	}
	if !p.Available {
		t.Fatalf("Available = false, want true after release")
	}
}

func TestAvailableMirrorsStock(t *testing.T) {
	p := model.Product{Barcode: "3210987654321", Stock: 4, Available: true}

	ops := []struct {
		release  bool
		quantity int
	}{
		{false, 1},
		{false, 3},
		{true, 2},
		{false, 2},
		{true, 1},
		{true, 5},
		{false, 6},
	}

	for i, op := range ops {
		if op.release {
			Release(&p, op.quantity)
		} else {
			if err := Check(&p, op.quantity); err != nil {
				continue
			}
			Reserve(&p, op.quantity)
		}

		if p.Stock < 0 {
			t.Fatalf("op %d: stock went negative: %d", i, p.Stock)
		}
		if p.Available != (p.Stock > 0) {
			t.Fatalf("op %d: available = %v with stock = %d", i, p.Available, p.Stock)
		}
	}
}
