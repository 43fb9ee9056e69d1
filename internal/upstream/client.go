package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"shopfront/internal/bus"
	"shopfront/internal/domain"
	"shopfront/internal/observability"
)

// Client is a typed client for the remote storefront REST API. All calls
// go through AuthTransport; callers attach their session source to the
// context with WithSession.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a storefront API client.
func NewClient(baseURL string, events *bus.Bus) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &AuthTransport{Events: events},
		},
	}
}

// Account is the user record returned by the auth endpoints.
type Account struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

// AsProfile converts the account to the session profile snapshot.
func (a Account) AsProfile() *domain.Profile {
	return &domain.Profile{ID: a.ID, Name: a.Name, Email: a.Email, CreatedAt: a.CreatedAt}
}

// AuthResult is the login/registration response.
type AuthResult struct {
	Token string  `json:"token"`
	User  Account `json:"user"`
}

// ProductPage is one page of the catalog.
type ProductPage struct {
	Data []domain.Product `json:"data"`
	Meta domain.PageMeta  `json:"meta"`
}

// OrderPage is one page of order history.
type OrderPage struct {
	Data []domain.Order  `json:"data"`
	Meta domain.PageMeta `json:"meta"`
}

// UserPage is one page of the admin user listing.
type UserPage struct {
	Data []domain.User   `json:"data"`
	Meta domain.PageMeta `json:"meta"`
}

// CheckoutResult is the order confirmation returned by POST /checkout.
type CheckoutResult struct {
	Message string        `json:"message"`
	Order   *domain.Order `json:"order,omitempty"`
}

// ProductInput is the create/update payload for admin product endpoints.
type ProductInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Images      []string `json:"images"`
}

// Validate applies the storefront's inline validation rules.
func (p ProductInput) Validate() error {
	if p.Name == "" || p.Price <= 0 || len(p.Images) == 0 {
		return domain.ErrInvalidInput
	}
	return nil
}

// productPayload handles the API quirk of serving images as a JSON-encoded
// string rather than an array.
type productPayload struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       float64         `json:"price"`
	Images      json.RawMessage `json:"images"`
}

func (p productPayload) toDomain() domain.Product {
	product := domain.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
	}

	if len(p.Images) == 0 {
		return product
	}
	if err := json.Unmarshal(p.Images, &product.Images); err == nil {
		return product
	}
	var encoded string
	if err := json.Unmarshal(p.Images, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &product.Images); err != nil {
			product.Images = nil
		}
	}
	return product
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var result AuthResult
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	var result AuthResult
	if err := c.do(ctx, "register", http.MethodPost, "/auth/register", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Me fetches the current profile for the attached session.
func (c *Client) Me(ctx context.Context) (*Account, error) {
	var result struct {
		User Account `json:"user"`
	}
	if err := c.do(ctx, "me", http.MethodGet, "/auth/me", nil, &result); err != nil {
		return nil, err
	}
	return &result.User, nil
}

// Products fetches a catalog page.
func (c *Client) Products(ctx context.Context, page int) (*ProductPage, error) {
	var payload struct {
		Data []productPayload `json:"data"`
		Meta domain.PageMeta  `json:"meta"`
	}
	path := "/public/products?page=" + strconv.Itoa(page)
	if err := c.do(ctx, "products", http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}

	result := &ProductPage{Meta: payload.Meta, Data: make([]domain.Product, 0, len(payload.Data))}
	for _, p := range payload.Data {
		result.Data = append(result.Data, p.toDomain())
	}
	return result, nil
}

// Product fetches a single catalog entry.
func (c *Client) Product(ctx context.Context, id int64) (*domain.Product, error) {
	var payload struct {
		Data productPayload `json:"data"`
	}
	path := fmt.Sprintf("/public/products/%d", id)
	if err := c.do(ctx, "product", http.MethodGet, path, nil, &payload); err != nil {
		if apiErr, ok := AsError(err); ok && apiErr.NotFound() {
			return nil, domain.ErrProductNotFound
		}
		return nil, err
	}
	product := payload.Data.toDomain()
	return &product, nil
}

// Cart fetches the authenticated user's cart.
func (c *Client) Cart(ctx context.Context) ([]domain.CartItem, error) {
	var payload struct {
		Cart []domain.CartItem `json:"cart"`
	}
	if err := c.do(ctx, "cart", http.MethodGet, "/cart", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Cart, nil
}

// AddToCart adds a product line to the cart.
func (c *Client) AddToCart(ctx context.Context, productID int64, quantity int) error {
	if productID <= 0 || quantity <= 0 {
		return domain.ErrInvalidInput
	}
	body := map[string]any{"product_id": productID, "quantity": quantity}
	return c.do(ctx, "cart_add", http.MethodPost, "/cart", body, nil)
}

// UpdateCartItem changes a line's quantity.
func (c *Client) UpdateCartItem(ctx context.Context, itemID int64, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidInput
	}
	body := map[string]any{"quantity": quantity}
	path := fmt.Sprintf("/cart/items/%d", itemID)
	return c.do(ctx, "cart_update", http.MethodPatch, path, body, nil)
}

// RemoveCartItem deletes a line from the cart.
func (c *Client) RemoveCartItem(ctx context.Context, itemID int64) error {
	path := fmt.Sprintf("/cart/items/%d", itemID)
	return c.do(ctx, "cart_remove", http.MethodDelete, path, nil, nil)
}

// Checkout converts the cart into an order.
func (c *Client) Checkout(ctx context.Context) (*CheckoutResult, error) {
	var result CheckoutResult
	if err := c.do(ctx, "checkout", http.MethodPost, "/checkout", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Orders fetches a page of the user's order history.
func (c *Client) Orders(ctx context.Context, page int) (*OrderPage, error) {
	var result OrderPage
	path := "/orders?page=" + strconv.Itoa(page)
	if err := c.do(ctx, "orders", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Order fetches a single order with its lines.
func (c *Client) Order(ctx context.Context, id int64) (*domain.Order, error) {
	var payload struct {
		Data domain.Order `json:"data"`
	}
	path := fmt.Sprintf("/orders/%d", id)
	if err := c.do(ctx, "order", http.MethodGet, path, nil, &payload); err != nil {
		if apiErr, ok := AsError(err); ok && apiErr.NotFound() {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}
	return &payload.Data, nil
}

// AdminDashboard fetches the back-office overview stats.
func (c *Client) AdminDashboard(ctx context.Context) (*domain.DashboardStats, error) {
	var stats domain.DashboardStats
	if err := c.do(ctx, "admin_dashboard", http.MethodGet, "/admin/dashboard", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AdminProducts fetches a page of the product listing.
func (c *Client) AdminProducts(ctx context.Context, page int) (*ProductPage, error) {
	var payload struct {
		Data []productPayload `json:"data"`
		Meta domain.PageMeta  `json:"meta"`
	}
	path := "/admin/products?page=" + strconv.Itoa(page)
	if err := c.do(ctx, "admin_products", http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}

	result := &ProductPage{Meta: payload.Meta, Data: make([]domain.Product, 0, len(payload.Data))}
	for _, p := range payload.Data {
		result.Data = append(result.Data, p.toDomain())
	}
	return result, nil
}

// AdminOrders fetches a page of all orders.
func (c *Client) AdminOrders(ctx context.Context, page int) (*OrderPage, error) {
	var result OrderPage
	path := "/admin/orders?page=" + strconv.Itoa(page)
	if err := c.do(ctx, "admin_orders", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AdminUsers fetches a page of accounts.
func (c *Client) AdminUsers(ctx context.Context, page int) (*UserPage, error) {
	var result UserPage
	path := "/admin/users?page=" + strconv.Itoa(page)
	if err := c.do(ctx, "admin_users", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateProduct creates a catalog entry.
func (c *Client) CreateProduct(ctx context.Context, input ProductInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	return c.do(ctx, "admin_product_create", http.MethodPost, "/admin/products", encodeProductInput(input), nil)
}

// UpdateProduct replaces a catalog entry.
func (c *Client) UpdateProduct(ctx context.Context, id int64, input ProductInput) error {
	if err := input.Validate(); err != nil {
		return err
	}
	path := fmt.Sprintf("/admin/products/%d", id)
	return c.do(ctx, "admin_product_update", http.MethodPut, path, encodeProductInput(input), nil)
}

// DeleteProduct removes a catalog entry.
func (c *Client) DeleteProduct(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/admin/products/%d", id)
	return c.do(ctx, "admin_product_delete", http.MethodDelete, path, nil, nil)
}

// encodeProductInput serializes images the way the API expects them: as a
// JSON-encoded string field.
func encodeProductInput(input ProductInput) map[string]any {
	images, _ := json.Marshal(input.Images)
	return map[string]any{
		"name":        input.Name,
		"description": input.Description,
		"price":       input.Price,
		"images":      string(images),
	}
}

// do performs one API call. Authorization failures are handled by the
// transport; error payloads are decoded into *Error and returned to the
// caller unmodified otherwise.
func (c *Client) do(ctx context.Context, operation, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.UpstreamRequestsTotal.WithLabelValues(operation, "transport_error").Inc()
		return fmt.Errorf("storefront api request failed: %w", err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	observability.UpstreamRequestDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
	observability.UpstreamRequestsTotal.WithLabelValues(operation, status).Inc()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var payload struct {
		Message string              `json:"message"`
		Err     string              `json:"error"`
		Errors  map[string][]string `json:"errors"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return apiErr
	}

	apiErr.Message = payload.Message
	if apiErr.Message == "" {
		apiErr.Message = payload.Err
	}
	apiErr.Fields = payload.Errors
	return apiErr
}
