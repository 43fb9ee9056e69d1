package guard

import "shopfront/internal/domain"

// Storefront route policies. Shopping surfaces are hidden from admin
// accounts, order history is user-only and the back office is admin-only.
var (
	PolicyPublic   = Policy{}
	PolicyShopping = Policy{Restricted: []domain.Role{domain.RoleAdmin}}
	PolicyOrders   = Policy{Allowed: []domain.Role{domain.RoleUser}}
	PolicyAdmin    = Policy{Allowed: []domain.Role{domain.RoleAdmin}}
)
