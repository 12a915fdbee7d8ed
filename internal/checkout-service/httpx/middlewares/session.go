package middlewares

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jcmexdev/storefront-checkout/internal/pkg/session"
)

const (
	HeaderCustomerID   = "X-Customer-ID"
	HeaderCustomerRole = "X-Customer-Role"
)

// RequireSession turns the identity headers set by the auth proxy into a
// session.Session on the request context. Requests without one get 401.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderCustomerID))
		if id == "" {
			unauthorized(w, "missing "+HeaderCustomerID)
			return
		}

		var role session.Role
		switch session.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderCustomerRole)))) {
		case "", session.RoleCustomer:
			role = session.RoleCustomer
		case session.RoleStaff:
			role = session.RoleStaff
		default:
			unauthorized(w, "unsupported role")
			return
		}

		ctx := session.WithSession(r.Context(), session.Session{CustomerID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "message": msg})
}
