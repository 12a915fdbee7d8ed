// Package session carries the authenticated caller through a request as an
// explicit context value.
package session

import (
	"context"
	"errors"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	// RoleGateway marks calls made on behalf of the payment gateway
	// (redirect returns and notifications).
	RoleGateway Role = "gateway"
)

var ErrNoSession = errors.New("session: no authenticated caller")

type Session struct {
	CustomerID string
	Role       Role
}

func (s Session) IsStaff() bool { return s.Role == RoleStaff }

// Actor names the caller in audit rows.
func (s Session) Actor() string {
	if s.CustomerID == "" {
		return string(s.Role)
	}
	return string(s.Role) + ":" + s.CustomerID
}

// CanAccess reports whether the caller may see data owned by customerID.
func (s Session) CanAccess(customerID string) bool {
	return s.IsStaff() || (s.CustomerID != "" && s.CustomerID == customerID)
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, error) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	if !ok {
		return Session{}, ErrNoSession
	}
	return s, nil
}

// Customer is a convenience for building a customer session.
func Customer(id string) Session { return Session{CustomerID: id, Role: RoleCustomer} }

// Staff is a convenience for building a staff session.
func Staff(id string) Session { return Session{CustomerID: id, Role: RoleStaff} }

// Gateway is the session used for payment callbacks.
func Gateway() Session { return Session{Role: RoleGateway} }
