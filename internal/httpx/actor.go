// Package httpx holds small HTTP helpers shared by the feature handlers.
package httpx

import (
	"net/http"

	"github.com/pharmatech-uz/pharmacy-core/internal/domain"
)

// Actor is the authenticated caller as asserted by the upstream gateway.
// Authentication itself happens before requests reach this service.
type Actor struct {
	UserID string
	Role   domain.Role
}

func ActorFrom(r *http.Request) (Actor, bool) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		return Actor{}, false
	}
	role := domain.Role(r.Header.Get("X-User-Role"))
	if role == "" {
		role = domain.RoleCustomer
	}
	return Actor{UserID: userID, Role: role}, true
}
