// Package handler содержит HTTP-обработчики API сервиса управления продажами.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lmoraes/luestilo-system/internal/inventory"
	"github.com/lmoraes/luestilo-system/internal/middleware"
	"github.com/lmoraes/luestilo-system/internal/model"
	"github.com/lmoraes/luestilo-system/internal/repository"
	"github.com/lmoraes/luestilo-system/internal/service"
)

const dateLayout = "2006-01-02"

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, password string) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
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
	CheckAvailability(ctx context.Context, barcode string, quantity int) (*model.Product, error)
	CreateOrder(ctx context.Context, clientID int64, items []model.OrderItem) (int64, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus) (*model.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// Handler реализует HTTP-обработчики API сервиса управления продажами.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// respondError переводит ошибку доменного слоя в HTTP-статус.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrClientNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, service.ErrEmptyOrder),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrDuplicateProduct),
		errors.Is(err, service.ErrInvalidCPF),
		errors.Is(err, service.ErrInvalidBarcode),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrInvalidStock):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, repository.ErrEmailTaken),
		errors.Is(err, repository.ErrCPFTaken),
		errors.Is(err, repository.ErrBarcodeTaken),
		errors.Is(err, repository.ErrProductInUse),
		errors.Is(err, repository.ErrOrderFinalized):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInvalidCredentials):
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	default:
		h.logger.Error("internal error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Register обрабатывает регистрацию новой учётной записи.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{ID: userID, Email: req.Email})
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// Token выполняет аутентификацию и выдаёт пару JWT-токенов.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	access, refresh, err := h.authMiddleware.IssueTokenPair(user.ID, user.Email)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken выдаёт новый токен доступа по токену обновления.
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.authMiddleware.ParseRefreshToken(req.RefreshToken)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	access, err := h.authMiddleware.IssueAccessToken(user.ID, user.Email)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken: access,
		TokenType:   "bearer",
	})
}

// Me возвращает текущую учётную запись.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	u, err := h.service.GetUserByEmail(r.Context(), user.Email)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{ID: u.ID, Email: u.Email})
}

type clientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	CPF   string `json:"cpf"`
}

type clientResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	CPF   string `json:"cpf"`
}

func toClientResponse(c *model.Client) clientResponse {
	return clientResponse{ID: c.ID, Name: c.Name, Email: c.Email, CPF: c.CPF}
}

// CreateClient создаёт нового клиента.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Email == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c := model.Client{Name: req.Name, Email: req.Email, CPF: req.CPF}
	id, err := h.service.CreateClient(r.Context(), &c)
	if err != nil {
		h.respondError(w, err)
		return
	}
	c.ID = id

	writeJSON(w, http.StatusCreated, toClientResponse(&c))
}

// ListClients возвращает клиентов с поиском по имени и email.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.ClientFilter{
		Name:   q.Get("name"),
		Email:  q.Get("email"),
		Limit:  queryInt(q.Get("limit")),
		Offset: queryInt(q.Get("offset")),
	}

	clients, err := h.service.ListClients(r.Context(), f)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := make([]clientResponse, 0, len(clients))
	for i := range clients {
		resp = append(resp, toClientResponse(&clients[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetClient возвращает клиента по идентификатору.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.GetClient(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toClientResponse(c))
}

type clientUpdateRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	CPF   *string `json:"cpf"`
}

// UpdateClient применяет частичное обновление клиента.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req clientUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.UpdateClient(r.Context(), id, repository.ClientUpdate{
		Name:  req.Name,
		Email: req.Email,
		CPF:   req.CPF,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toClientResponse(c))
}

// DeleteClient удаляет клиента вместе с его заказами.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteClient(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type productRequest struct {
	Barcode        string          `json:"barcode"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	Category       string          `json:"category"`
	Section        string          `json:"section"`
	Stock          int             `json:"stock"`
	ExpirationDate *string         `json:"expiration_date"`
	ImageURL       *string         `json:"image_url"`
}

type productResponse struct {
	Barcode        string          `json:"barcode"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	Category       string          `json:"category"`
	Section        string          `json:"section"`
	Stock          int             `json:"stock"`
	Available      bool            `json:"available"`
	ExpirationDate *string         `json:"expiration_date,omitempty"`
	ImageURL       *string         `json:"image_url,omitempty"`
}

func toProductResponse(p *model.Product) productResponse {
	resp := productResponse{
		Barcode:     p.Barcode,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Section:     p.Section,
		Stock:       p.Stock,
		Available:   p.Available,
		ImageURL:    p.ImageURL,
	}
	if p.ExpirationDate != nil {
		v := p.ExpirationDate.Format(dateLayout)
		resp.ExpirationDate = &v
	}
	return resp
}

func parseDate(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateProduct создаёт новый товар.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	expiration, err := parseDate(req.ExpirationDate)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p := model.Product{
		Barcode:        req.Barcode,
		Name:           req.Name,
		Description:    req.Description,
		Price:          req.Price,
		Category:       req.Category,
		Section:        req.Section,
		Stock:          req.Stock,
		ExpirationDate: expiration,
		ImageURL:       req.ImageURL,
	}

	if err := h.service.CreateProduct(r.Context(), &p); err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(&p))
}

// ListProducts возвращает товары с фильтрами по категории, цене и доступности.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.ProductFilter{
		Category: q.Get("category"),
		Limit:    queryInt(q.Get("limit")),
		Offset:   queryInt(q.Get("offset")),
	}

	if v := q.Get("min_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		f.MinPrice = &d
	}
	if v := q.Get("max_price"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		f.MaxPrice = &d
	}
	if v := q.Get("available"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		f.Available = &b
	}

	products, err := h.service.ListProducts(r.Context(), f)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, toProductResponse(&products[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetProduct возвращает товар по штрихкоду.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(p))
}

type availabilityResponse struct {
	Barcode   string `json:"barcode"`
	Quantity  int    `json:"quantity"`
	Stock     int    `json:"stock"`
	Available bool   `json:"available"`
}

// ProductAvailability проверяет возможность резервирования количества товара.
func (h *Handler) ProductAvailability(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")

	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.CheckAvailability(r.Context(), barcode, quantity)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		Barcode:   p.Barcode,
		Quantity:  quantity,
		Stock:     p.Stock,
		Available: true,
	})
}

type productUpdateRequest struct {
	Name           *string          `json:"name"`
	Description    *string          `json:"description"`
	Price          *decimal.Decimal `json:"price"`
	Category       *string          `json:"category"`
	Section        *string          `json:"section"`
	Stock          *int             `json:"stock"`
	ExpirationDate *string          `json:"expiration_date"`
	ImageURL       *string          `json:"image_url"`
}

// UpdateProduct применяет частичное обновление товара. Признак доступности
// обновляется автоматически при изменении остатка.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	expiration, err := parseDate(req.ExpirationDate)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "barcode"), repository.ProductUpdate{
		Name:           req.Name,
		Description:    req.Description,
		Price:          req.Price,
		Category:       req.Category,
		Section:        req.Section,
		Stock:          req.Stock,
		ExpirationDate: expiration,
		ImageURL:       req.ImageURL,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(p))
}

// DeleteProduct удаляет товар.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "barcode")); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderCreateRequest struct {
	ClientID int64              `json:"client_id"`
	Items    []orderItemRequest `json:"items"`
}

type orderCreateResponse struct {
	OrderID int64 `json:"order_id"`
}

type orderItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderResponse struct {
	ID        int64               `json:"id"`
	Status    string              `json:"status"`
	ClientID  int64               `json:"client_id"`
	CreatedAt string              `json:"created_at"`
	UpdatedAt string              `json:"updated_at"`
	Items     []orderItemResponse `json:"items,omitempty"`
}

func toOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:        o.ID,
		Status:    string(o.Status),
		ClientID:  o.ClientID,
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
		UpdatedAt: o.UpdatedAt.Format(time.RFC3339),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}
	return resp
}

// CreateOrder создаёт заказ клиента с атомарным списанием остатков.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	items := make([]model.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, model.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
		})
	}

	orderID, err := h.service.CreateOrder(r.Context(), req.ClientID, items)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, orderCreateResponse{OrderID: orderID})
}

// ListOrders возвращает заказы с фильтрами по статусу, клиенту и дате создания.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := repository.OrderFilter{
		Status:   model.OrderStatus(q.Get("status")),
		ClientID: int64(queryInt(q.Get("client_id"))),
		Limit:    queryInt(q.Get("limit")),
		Offset:   queryInt(q.Get("offset")),
	}

	if v := q.Get("min_creation_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		f.MinCreatedAt = &t
	}
	if v := q.Get("max_creation_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		f.MaxCreatedAt = &t
	}

	orders, err := h.service.ListOrders(r.Context(), f)
	if err != nil {
		h.respondError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ вместе с позициями.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus переводит заказ в новый статус. Перевод в canceled
// возвращает остатки всех позиций.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.UpdateOrderStatus(r.Context(), id, model.OrderStatus(req.Status))
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// DeleteOrder удаляет заказ вместе с позициями.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteOrder(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func queryInt(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
