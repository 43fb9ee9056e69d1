//go:build e2e
// +build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"shopfront/internal/domain"
)

// fakeStorefront is an in-memory stand-in for the upstream storefront
// API. It implements the slice of endpoints the gateway relays to.
type fakeStorefront struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[string]*fakeAccount // keyed by email
	tokens   map[string]*fakeAccount // keyed by bearer token
	products []domain.Product
	carts    map[string][]domain.CartItem // keyed by bearer token
	orders   map[string][]domain.Order
}

type fakeAccount struct {
	ID       int64
	Name     string
	Email    string
	Password string
	Role     string
}

func newFakeStorefront() *fakeStorefront {
	return &fakeStorefront{
		nextID:   1000,
		accounts: make(map[string]*fakeAccount),
		tokens:   make(map[string]*fakeAccount),
		products: []domain.Product{
			{ID: 1, Name: "Espresso Cup", Price: 8.50, Images: []string{"cup.jpg"}},
			{ID: 2, Name: "French Press", Price: 24.00, Images: []string{"press.jpg"}},
			{ID: 3, Name: "Grinder", Price: 55.00, Images: []string{"grinder.jpg"}},
		},
		carts:  make(map[string][]domain.CartItem),
		orders: make(map[string][]domain.Order),
	}
}

// SeedAdmin registers an admin account directly.
func (f *fakeStorefront) SeedAdmin(email, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.accounts[email] = &fakeAccount{
		ID: f.nextID, Name: "Admin", Email: email, Password: password, Role: "admin",
	}
}

// CartFor reports the cart currently held for the given token.
func (f *fakeStorefront) CartFor(token string) []domain.CartItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.CartItem(nil), f.carts[token]...)
}

func (f *fakeStorefront) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case r.Method == http.MethodPost && path == "/auth/register":
		f.register(w, r)
	case r.Method == http.MethodPost && path == "/auth/login":
		f.login(w, r)
	case r.Method == http.MethodGet && path == "/auth/me":
		f.me(w, r)
	case r.Method == http.MethodGet && path == "/public/products":
		f.listProducts(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/public/products/"):
		f.getProduct(w, r)
	case path == "/cart" || strings.HasPrefix(path, "/cart/"):
		f.cart(w, r)
	case r.Method == http.MethodPost && path == "/checkout":
		f.checkout(w, r)
	case r.Method == http.MethodGet && path == "/orders":
		f.listOrders(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
	}
}

func (f *fakeStorefront) authed(r *http.Request) (*fakeAccount, string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, "", false
	}
	token := strings.TrimPrefix(auth, "Bearer ")
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.tokens[token]
	return account, token, ok
}

func (f *fakeStorefront) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.accounts[req.Email]; exists {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "The given data was invalid.",
			"errors":  map[string][]string{"email": {"The email has already been taken."}},
		})
		return
	}

	f.nextID++
	account := &fakeAccount{
		ID: f.nextID, Name: req.Name, Email: req.Email, Password: req.Password, Role: "user",
	}
	f.accounts[req.Email] = account

	token := fmt.Sprintf("token-%d", f.nextID)
	f.tokens[token] = account

	writeJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user": map[string]any{
			"id": account.ID, "name": account.Name, "email": account.Email, "role": account.Role,
		},
	})
}

func (f *fakeStorefront) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[req.Email]
	if !ok || account.Password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}

	f.nextID++
	token := fmt.Sprintf("token-%d", f.nextID)
	f.tokens[token] = account

	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id": account.ID, "name": account.Name, "email": account.Email, "role": account.Role,
		},
	})
}

func (f *fakeStorefront) me(w http.ResponseWriter, r *http.Request) {
	account, _, ok := f.authed(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id": account.ID, "name": account.Name, "email": account.Email, "role": account.Role,
		},
	})
}

func (f *fakeStorefront) listProducts(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"data": f.products,
		"meta": map[string]int{"current_page": 1, "last_page": 1, "total": len(f.products)},
	})
}

func (f *fakeStorefront) getProduct(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/public/products/"), 10, 64)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, map[string]any{"data": p})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Product not found"})
}

func (f *fakeStorefront) cart(w http.ResponseWriter, r *http.Request) {
	_, token, ok := f.authed(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
		return
	}

	switch r.Method {
	case http.MethodGet:
		f.mu.Lock()
		items := append([]domain.CartItem(nil), f.carts[token]...)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"cart": items})

	case http.MethodPost:
		var req struct {
			ProductID int64 `json:"product_id"`
			Quantity  int   `json:"quantity"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		var product *domain.Product
		for i := range f.products {
			if f.products[i].ID == req.ProductID {
				product = &f.products[i]
				break
			}
		}
		if product == nil {
			f.mu.Unlock()
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Product not found"})
			return
		}
		f.nextID++
		f.carts[token] = append(f.carts[token], domain.CartItem{
			ID:        f.nextID,
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  req.Quantity,
		})
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	case http.MethodPatch:
		itemID, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/cart/items/"), 10, 64)
		var req struct {
			Quantity int `json:"quantity"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		for i := range f.carts[token] {
			if f.carts[token][i].ID == itemID {
				f.carts[token][i].Quantity = req.Quantity
			}
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})

	case http.MethodDelete:
		itemID, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/cart/items/"), 10, 64)

		f.mu.Lock()
		kept := f.carts[token][:0]
		for _, item := range f.carts[token] {
			if item.ID != itemID {
				kept = append(kept, item)
			}
		}
		f.carts[token] = kept
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func (f *fakeStorefront) checkout(w http.ResponseWriter, r *http.Request) {
	_, token, ok := f.authed(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	items := f.carts[token]
	if len(items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Cart is empty"})
		return
	}

	total := 0.0
	orderItems := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
		orderItems = append(orderItems, domain.OrderItem{
			ProductID: item.ProductID, Name: item.Name, Price: item.Price, Quantity: item.Quantity,
		})
	}

	f.nextID++
	order := domain.Order{ID: f.nextID, Total: total, Status: "pending", Items: orderItems}
	f.orders[token] = append(f.orders[token], order)
	f.carts[token] = nil

	writeJSON(w, http.StatusOK, map[string]any{"message": "Order placed", "order": order})
}

func (f *fakeStorefront) listOrders(w http.ResponseWriter, r *http.Request) {
	_, token, ok := f.authed(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthenticated."})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"data": f.orders[token],
		"meta": map[string]int{"current_page": 1, "last_page": 1, "total": len(f.orders[token])},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
