// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/lmoraes/luestilo-system/internal/inventory"
	"github.com/lmoraes/luestilo-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим email.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrClientNotFound возвращается, если клиент не найден.
	ErrClientNotFound = errors.New("client not found")
	// ErrEmailTaken возвращается при нарушении уникальности email клиента.
	ErrEmailTaken = errors.New("email already registered")
	// ErrCPFTaken возвращается при нарушении уникальности CPF клиента.
	ErrCPFTaken = errors.New("cpf already registered")
	// ErrProductNotFound возвращается, если товар не найден или недоступен.
	ErrProductNotFound = errors.New("product not found")
	// ErrBarcodeTaken возвращается при нарушении уникальности штрихкода товара.
	ErrBarcodeTaken = errors.New("barcode already registered")
	// ErrProductInUse возвращается при попытке удалить товар, на который ссылаются заказы.
	ErrProductInUse = errors.New("product is referenced by orders")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderFinalized возвращается при попытке изменить статус завершённого или отменённого заказа.
	ErrOrderFinalized = errors.New("order already finalized")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	// Регистрация кодека NUMERIC <-> decimal.Decimal для цен товаров.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks, которые
		// возможны при конкурентных блокировках строк товаров.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт новую учётную запись.
func (r *PostgresRepository) CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id`,
		email, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает учётную запись по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		email,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// CreateClient создаёт нового клиента.
func (r *PostgresRepository) CreateClient(ctx context.Context, c *model.Client) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO clients (name, email, cpf) VALUES ($1, $2, $3) RETURNING id`,
		c.Name, c.Email, c.CPF,
	).Scan(&id)
	if err != nil {
		return 0, translateClientError(err, c)
	}
	return id, nil
}

func translateClientError(err error, c *model.Client) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		switch pgErr.ConstraintName {
		case "clients_email_key":
			return fmt.Errorf("%w: %s", ErrEmailTaken, c.Email)
		case "clients_cpf_key":
			return fmt.Errorf("%w: %s", ErrCPFTaken, c.CPF)
		}
	}
	return fmt.Errorf("write client: %w", err)
}

// GetClient возвращает клиента по идентификатору.
func (r *PostgresRepository) GetClient(ctx context.Context, id int64) (*model.Client, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, email, cpf FROM clients WHERE id = $1`,
		id,
	)

	var c model.Client
	if err := row.Scan(&c.ID, &c.Name, &c.Email, &c.CPF); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrClientNotFound, id)
		}
		return nil, fmt.Errorf("get client: %w", err)
	}

	return &c, nil
}

// ClientFilter задаёт условия выборки клиентов.
type ClientFilter struct {
	Name   string
	Email  string
	Limit  int
	Offset int
}

// ListClients возвращает клиентов, удовлетворяющих фильтру.
func (r *PostgresRepository) ListClients(ctx context.Context, f ClientFilter) ([]model.Client, error) {
	query := `SELECT id, name, email, cpf FROM clients`
	var conds []string
	var args []any

	if f.Name != "" {
		args = append(args, "%"+f.Name+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if f.Email != "" {
		args = append(args, "%"+f.Email+"%")
		conds = append(conds, fmt.Sprintf("email ILIKE $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select clients: %w", err)
	}
	defer rows.Close()

	var res []model.Client
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.CPF); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ClientUpdate описывает частичное обновление клиента. Nil-поля не изменяются.
type ClientUpdate struct {
	Name  *string
	Email *string
	CPF   *string
}

// UpdateClient применяет частичное обновление и возвращает клиента.
func (r *PostgresRepository) UpdateClient(ctx context.Context, id int64, upd ClientUpdate) (*model.Client, error) {
	var sets []string
	var args []any

	if upd.Name != nil {
		args = append(args, *upd.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if upd.Email != nil {
		args = append(args, *upd.Email)
		sets = append(sets, fmt.Sprintf("email = $%d", len(args)))
	}
	if upd.CPF != nil {
		args = append(args, *upd.CPF)
		sets = append(sets, fmt.Sprintf("cpf = $%d", len(args)))
	}

	if len(sets) == 0 {
		return r.GetClient(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(
		`UPDATE clients SET %s WHERE id = $%d RETURNING id, name, email, cpf`,
		strings.Join(sets, ", "), len(args),
	)

	var c model.Client
	err := r.pool.QueryRow(ctx, query, args...).Scan(&c.ID, &c.Name, &c.Email, &c.CPF)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrClientNotFound, id)
		}
		hint := model.Client{}
		if upd.Email != nil {
			hint.Email = *upd.Email
		}
		if upd.CPF != nil {
			hint.CPF = *upd.CPF
		}
		return nil, translateClientError(err, &hint)
	}

	return &c, nil
}

// DeleteClient удаляет клиента вместе с его заказами.
func (r *PostgresRepository) DeleteClient(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrClientNotFound, id)
	}
	return nil
}

// CreateProduct создаёт новый товар.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO products (barcode, name, description, price, category, section, stock, available, expiration_date, image_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.Barcode, p.Name, p.Description, p.Price, p.Category, p.Section, p.Stock, p.Available, p.ExpirationDate, p.ImageURL,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrBarcodeTaken, p.Barcode)
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

const productColumns = `barcode, name, description, price, category, section, stock, available, expiration_date, image_url`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var p model.Product
	err := row.Scan(&p.Barcode, &p.Name, &p.Description, &p.Price, &p.Category,
		&p.Section, &p.Stock, &p.Available, &p.ExpirationDate, &p.ImageURL)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProduct возвращает товар по штрихкоду.
func (r *PostgresRepository) GetProduct(ctx context.Context, barcode string) (*model.Product, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE barcode = $1`,
		barcode,
	)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: barcode %s", ErrProductNotFound, barcode)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return p, nil
}

// ProductFilter задаёт условия выборки товаров.
type ProductFilter struct {
	Category  string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	Available *bool
	Limit     int
	Offset    int
}

// ListProducts возвращает товары, удовлетворяющие фильтру.
func (r *PostgresRepository) ListProducts(ctx context.Context, f ProductFilter) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	var conds []string
	var args []any

	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.MinPrice != nil {
		args = append(args, *f.MinPrice)
		conds = append(conds, fmt.Sprintf("price >= $%d", len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, *f.MaxPrice)
		conds = append(conds, fmt.Sprintf("price <= $%d", len(args)))
	}
	if f.Available != nil {
		args = append(args, *f.Available)
		conds = append(conds, fmt.Sprintf("available = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY barcode LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ProductUpdate описывает частичное обновление товара. Nil-поля не изменяются.
// Поле available не принимается снаружи: при изменении stock оно
// пересчитывается автоматически.
type ProductUpdate struct {
	Name           *string
	Description    *string
	Price          *decimal.Decimal
	Category       *string
	Section        *string
	Stock          *int
	ExpirationDate *time.Time
	ImageURL       *string
}

// UpdateProduct применяет частичное обновление и возвращает товар.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, barcode string, upd ProductUpdate) (*model.Product, error) {
	var sets []string
	var args []any

	if upd.Name != nil {
		args = append(args, *upd.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if upd.Description != nil {
		args = append(args, *upd.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if upd.Price != nil {
		args = append(args, *upd.Price)
		sets = append(sets, fmt.Sprintf("price = $%d", len(args)))
	}
	if upd.Category != nil {
		args = append(args, *upd.Category)
		sets = append(sets, fmt.Sprintf("category = $%d", len(args)))
	}
	if upd.Section != nil {
		args = append(args, *upd.Section)
		sets = append(sets, fmt.Sprintf("section = $%d", len(args)))
	}
	if upd.Stock != nil {
		args = append(args, *upd.Stock)
		sets = append(sets, fmt.Sprintf("stock = $%d", len(args)))
		args = append(args, *upd.Stock > 0)
		sets = append(sets, fmt.Sprintf("available = $%d", len(args)))
	}
	if upd.ExpirationDate != nil {
		args = append(args, *upd.ExpirationDate)
		sets = append(sets, fmt.Sprintf("expiration_date = $%d", len(args)))
	}
	if upd.ImageURL != nil {
		args = append(args, *upd.ImageURL)
		sets = append(sets, fmt.Sprintf("image_url = $%d", len(args)))
	}

	if len(sets) == 0 {
		return r.GetProduct(ctx, barcode)
	}

	args = append(args, barcode)
	query := fmt.Sprintf(
		`UPDATE products SET %s WHERE barcode = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), productColumns,
	)

	p, err := scanProduct(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: barcode %s", ErrProductNotFound, barcode)
		}
		return nil, fmt.Errorf("update product: %w", err)
	}

	return p, nil
}

// DeleteProduct удаляет товар. Товары, на которые ссылаются позиции заказов,
// удалить нельзя.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, barcode string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE barcode = $1`, barcode)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("%w: barcode %s", ErrProductInUse, barcode)
		}
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: barcode %s", ErrProductNotFound, barcode)
	}
	return nil
}

// CreateOrder атомарно создаёт заказ с позициями и списывает остатки.
// Сначала все товары проверяются и блокируются, затем применяются списания:
// частичное резервирование невозможно.
func (r *PostgresRepository) CreateOrder(ctx context.Context, clientID int64, items []model.OrderItem) (int64, error) {
	var orderID int64
	err := r.withRetry(ctx, func() error {
		id, err := r.createOrderTx(ctx, clientID, items)
		if err != nil {
			return err
		}
		orderID = id
		return nil
	})
	return orderID, err
}

// sortByProduct возвращает копию позиций, отсортированную по штрихкоду.
// Фиксированный порядок блокировки строк исключает взаимную блокировку
// встречных заказов на одни и те же товары.
func sortByProduct(items []model.OrderItem) []model.OrderItem {
	sorted := make([]model.OrderItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})
	return sorted
}

func (r *PostgresRepository) createOrderTx(ctx context.Context, clientID int64, items []model.OrderItem) (int64, error) {
	items = sortByProduct(items)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM clients WHERE id = $1`, clientID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: id %d", ErrClientNotFound, clientID)
		}
		return 0, fmt.Errorf("check client: %w", err)
	}

	// Первый проход: блокировка строк товаров и проверка остатков.
	products := make([]model.Product, 0, len(items))
	for _, it := range items {
		row := tx.QueryRow(ctx,
			`SELECT barcode, stock, available FROM products WHERE barcode = $1 FOR UPDATE`,
			it.ProductID,
		)

		var p model.Product
		if err := row.Scan(&p.Barcode, &p.Stock, &p.Available); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, fmt.Errorf("%w: barcode %s", ErrProductNotFound, it.ProductID)
			}
			return 0, fmt.Errorf("lock product: %w", err)
		}

		if err := inventory.Check(&p, it.Quantity); err != nil {
			if errors.Is(err, inventory.ErrUnavailable) {
				return 0, fmt.Errorf("%w: barcode %s", ErrProductNotFound, it.ProductID)
			}
			return 0, fmt.Errorf("%w: barcode %s", err, it.ProductID)
		}

		products = append(products, p)
	}

	// Второй проход: запись заказа, позиций и списание остатков.
	var orderID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (client_id, status) VALUES ($1, $2) RETURNING id`,
		clientID, string(model.OrderStatusPending),
	).Scan(&orderID)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for i, it := range items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity) VALUES ($1, $2, $3)`,
			orderID, it.ProductID, it.Quantity,
		)
		if err != nil {
			return 0, fmt.Errorf("insert order item: %w", err)
		}

		p := &products[i]
		inventory.Reserve(p, it.Quantity)

		_, err = tx.Exec(ctx,
			`UPDATE products SET stock = $2, available = $3 WHERE barcode = $1`,
			p.Barcode, p.Stock, p.Available,
		)
		if err != nil {
			return 0, fmt.Errorf("reserve stock: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return orderID, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadOrderItems(ctx context.Context, q querier, orderID int64) ([]model.OrderItem, error) {
	rows, err := q.Query(ctx,
		`SELECT id, order_id, product_id, quantity FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetOrder возвращает заказ вместе с позициями.
func (r *PostgresRepository) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, status, client_id, created_at, updated_at FROM orders WHERE id = $1`,
		id,
	)

	var o model.Order
	var status string
	err := row.Scan(&o.ID, &status, &o.ClientID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = model.OrderStatus(status)

	o.Items, err = loadOrderItems(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}

	return &o, nil
}

// OrderFilter задаёт условия выборки заказов.
type OrderFilter struct {
	Status       model.OrderStatus
	ClientID     int64
	MinCreatedAt *time.Time
	MaxCreatedAt *time.Time
	Limit        int
	Offset       int
}

// ListOrders возвращает заказы без позиций, удовлетворяющие фильтру.
func (r *PostgresRepository) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	query := `SELECT id, status, client_id, created_at, updated_at FROM orders`
	var conds []string
	var args []any

	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.ClientID != 0 {
		args = append(args, f.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.MinCreatedAt != nil {
		args = append(args, *f.MinCreatedAt)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.MaxCreatedAt != nil {
		args = append(args, *f.MaxCreatedAt)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		var o model.Order
		var status string
		if err := rows.Scan(&o.ID, &status, &o.ClientID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// orderTransition решает, допустим ли переход и нужно ли возвращать остатки.
// Остатки возвращаются только при первом переходе в canceled; повторная
// отмена и переход в тот же статус остатки не затрагивают.
func orderTransition(current, next model.OrderStatus) (release, allowed bool) {
	if !current.CanTransitionTo(next) {
		return false, false
	}
	release = next == model.OrderStatusCanceled && current != model.OrderStatusCanceled
	return release, true
}

// UpdateOrderStatus переводит заказ в новый статус. Переход в canceled
// возвращает остатки всех позиций в рамках той же транзакции; повторная
// отмена остатки не затрагивает.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error) {
	var order *model.Order
	err := r.withRetry(ctx, func() error {
		o, err := r.updateOrderStatusTx(ctx, id, status)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}

func (r *PostgresRepository) updateOrderStatusTx(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentStr string
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&currentStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	current := model.OrderStatus(currentStr)
	release, allowed := orderTransition(current, status)
	if !allowed {
		return nil, fmt.Errorf("%w: order %d is %s", ErrOrderFinalized, id, current)
	}

	if release {
		if err := r.releaseOrderItems(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	var o model.Order
	var statusStr string
	err = tx.QueryRow(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1
		 RETURNING id, status, client_id, created_at, updated_at`,
		id, string(status),
	).Scan(&o.ID, &statusStr, &o.ClientID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	o.Status = model.OrderStatus(statusStr)

	o.Items, err = loadOrderItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &o, nil
}

func (r *PostgresRepository) releaseOrderItems(ctx context.Context, tx pgx.Tx, orderID int64) error {
	items, err := loadOrderItems(ctx, tx, orderID)
	if err != nil {
		return err
	}

	// Тот же порядок блокировки, что и при создании заказа.
	for _, it := range sortByProduct(items) {
		var p model.Product
		err := tx.QueryRow(ctx,
			`SELECT barcode, stock, available FROM products WHERE barcode = $1 FOR UPDATE`,
			it.ProductID,
		).Scan(&p.Barcode, &p.Stock, &p.Available)
		if err != nil {
			return fmt.Errorf("lock product: %w", err)
		}

		inventory.Release(&p, it.Quantity)

		_, err = tx.Exec(ctx,
			`UPDATE products SET stock = $2, available = $3 WHERE barcode = $1`,
			p.Barcode, p.Stock, p.Available,
		)
		if err != nil {
			return fmt.Errorf("release stock: %w", err)
		}
	}

	return nil
}

// DeleteOrder удаляет заказ вместе с позициями. Остатки не восстанавливаются:
// для возврата остатков заказ сначала отменяют.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrOrderNotFound, id)
	}
	return nil
}

// WriteOffExpired списывает остатки просроченных товаров и возвращает число
// затронутых позиций.
func (r *PostgresRepository) WriteOffExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE products SET stock = 0, available = false
		 WHERE expiration_date IS NOT NULL AND expiration_date < CURRENT_DATE AND stock > 0`,
	)
	if err != nil {
		return 0, fmt.Errorf("write off expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
