// Package access decides which orders a viewer may see and change.
package access

import (
	"errors"
	"strings"

	"github.com/sportscarhub/storefront/internal/domain"
)

var (
	ErrUnauthenticated = errors.New("access: no authenticated identity")
	ErrUnauthorized    = errors.New("access: identity lacks permission")
)

// Policy grants operator privileges to identities carrying the operator role
// or listed by user id.
type Policy struct {
	operators map[string]struct{}
}

func NewPolicy(operatorIDs ...string) *Policy {
	ops := make(map[string]struct{}, len(operatorIDs))
	for _, id := range operatorIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			ops[id] = struct{}{}
		}
	}
	return &Policy{operators: ops}
}

func (p *Policy) IsPrivileged(viewer domain.Identity) bool {
	if !viewer.IsAuthenticated() {
		return false
	}
	if viewer.HasRole(domain.RoleOperator) {
		return true
	}
	_, ok := p.operators[viewer.UserID]
	return ok
}

// Scope returns the order scope the viewer is allowed to read.
func (p *Policy) Scope(viewer domain.Identity) (domain.OrderScope, error) {
	if !viewer.IsAuthenticated() {
		return domain.OrderScope{}, ErrUnauthorized
	}
	if p.IsPrivileged(viewer) {
		return domain.OrderScope{All: true}, nil
	}
	return domain.OrderScope{OwnerID: viewer.UserID}, nil
}

// AuthorizeTransition allows status changes for operators only. Anonymous
// callers are refused like any other non-operator.
func (p *Policy) AuthorizeTransition(viewer domain.Identity) error {
	if !viewer.IsAuthenticated() || !p.IsPrivileged(viewer) {
		return ErrUnauthorized
	}
	return nil
}
