package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStateNotFound = errors.New("browser state not found")
	ErrAnonymous     = errors.New("no authenticated session")
	ErrInvalidInput  = errors.New("invalid input")
)

// Role is the authorization level attached to an authenticated session.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Profile is the lazily fetched user record attached to a session.
type Profile struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the authenticated identity of a browser context.
// Token and Role are either both set or both empty; both empty means anonymous.
type Session struct {
	Token   string   `json:"token"`
	Role    Role     `json:"role"`
	Profile *Profile `json:"profile,omitempty"`
}

// Anonymous reports whether the session carries no credential.
func (s Session) Anonymous() bool {
	return s.Token == "" || s.Role == ""
}

// DeferredIntent is a cart action postponed until authentication completes.
type DeferredIntent struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// BrowserState is the durable per-browser-context record: the persisted
// session fields plus the single deferred-intent slot.
type BrowserState struct {
	ID        string          `json:"id"`
	Session   Session         `json:"session"`
	Intent    *DeferredIntent `json:"intent,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StateRepository defines the interface for durable browser-state access.
// Save must make the write visible to change listeners on other instances.
type StateRepository interface {
	Save(ctx context.Context, state *BrowserState) error
	Load(ctx context.Context, id string) (*BrowserState, error)
	Delete(ctx context.Context, id string) error
}

// StateListener delivers ids of browser states changed by any instance.
type StateListener interface {
	Changes() <-chan string
	Close() error
}
