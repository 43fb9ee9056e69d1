package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"shopfront/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// NextContextID generates a unique browser-context ID for test fixtures
func NextContextID() string {
	return fmt.Sprintf("ctx-%d", idCounter.Add(1))
}

// StateOptions allows customizing browser-state fixture creation
type StateOptions struct {
	ID        string
	Token     string
	Role      domain.Role
	Profile   *domain.Profile
	Intent    *domain.DeferredIntent
	UpdatedAt time.Time
}

// NewTestState creates an authenticated browser state with sensible defaults.
// Pass options to override specific fields.
func NewTestState(opts ...func(*StateOptions)) *domain.BrowserState {
	o := &StateOptions{
		ID:    NextContextID(),
		Token: fmt.Sprintf("token-%d", idCounter.Load()),
		Role:  domain.RoleUser,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now().UTC()
	}

	return &domain.BrowserState{
		ID: o.ID,
		Session: domain.Session{
			Token:   o.Token,
			Role:    o.Role,
			Profile: o.Profile,
		},
		Intent:    o.Intent,
		UpdatedAt: o.UpdatedAt,
	}
}

// WithStateID sets the browser-context ID
func WithStateID(id string) func(*StateOptions) {
	return func(o *StateOptions) {
		o.ID = id
	}
}

// WithToken sets the session token
func WithToken(token string) func(*StateOptions) {
	return func(o *StateOptions) {
		o.Token = token
	}
}

// WithRole sets the session role
func WithRole(role domain.Role) func(*StateOptions) {
	return func(o *StateOptions) {
		o.Role = role
	}
}

// WithAnonymous clears the session fields, leaving only the context ID
func WithAnonymous() func(*StateOptions) {
	return func(o *StateOptions) {
		o.Token = ""
		o.Role = ""
		o.Profile = nil
	}
}

// WithIntent parks a deferred add-to-cart intent in the state
func WithIntent(productID int64, quantity int) func(*StateOptions) {
	return func(o *StateOptions) {
		o.Intent = &domain.DeferredIntent{ProductID: productID, Quantity: quantity}
	}
}

// WithProfile attaches a cached profile to the session
func WithProfile(id int64, name, email string) func(*StateOptions) {
	return func(o *StateOptions) {
		o.Profile = &domain.Profile{ID: id, Name: name, Email: email}
	}
}

// ProductOptions allows customizing product fixture creation
type ProductOptions struct {
	ID          int64
	Name        string
	Description string
	Price       float64
	Images      []string
}

// NewTestProduct creates a test product with sensible defaults
func NewTestProduct(opts ...func(*ProductOptions)) domain.Product {
	id := idCounter.Add(1)
	o := &ProductOptions{
		ID:     id,
		Name:   fmt.Sprintf("Product %d", id),
		Price:  9.99,
		Images: []string{fmt.Sprintf("product-%d.jpg", id)},
	}

	for _, opt := range opts {
		opt(o)
	}

	return domain.Product{
		ID:          o.ID,
		Name:        o.Name,
		Description: o.Description,
		Price:       o.Price,
		Images:      o.Images,
	}
}

// WithProductID sets the product ID
func WithProductID(id int64) func(*ProductOptions) {
	return func(o *ProductOptions) {
		o.ID = id
	}
}

// WithProductName sets the product name
func WithProductName(name string) func(*ProductOptions) {
	return func(o *ProductOptions) {
		o.Name = name
	}
}

// WithPrice sets the product price
func WithPrice(price float64) func(*ProductOptions) {
	return func(o *ProductOptions) {
		o.Price = price
	}
}

// NewTestProducts creates multiple test products
func NewTestProducts(count int) []domain.Product {
	products := make([]domain.Product, 0, count)
	for i := 0; i < count; i++ {
		products = append(products, NewTestProduct())
	}
	return products
}

// NewTestCartItem creates a cart line backed by the given product
func NewTestCartItem(product domain.Product, quantity int) domain.CartItem {
	image := ""
	if len(product.Images) > 0 {
		image = product.Images[0]
	}
	return domain.CartItem{
		ID:        idCounter.Add(1),
		ProductID: product.ID,
		Name:      product.Name,
		Price:     product.Price,
		Quantity:  quantity,
		Image:     image,
	}
}

// NewTestOrder creates an order holding the given items
func NewTestOrder(items ...domain.OrderItem) domain.Order {
	total := 0.0
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
	}
	return domain.Order{
		ID:        idCounter.Add(1),
		Total:     total,
		Status:    "pending",
		Items:     items,
		CreatedAt: time.Now().UTC(),
	}
}

// ResetIDCounter resets the fixture ID counter (useful between test runs)
func ResetIDCounter() {
	idCounter.Store(0)
}
