package domain

const RoleOperator = "operator"

// Identity is the authenticated caller of a core operation. The zero value is
// an anonymous caller.
type Identity struct {
	UserID string
	Email  string
	Roles  []string
}

func (i Identity) IsAuthenticated() bool {
	return i.UserID != ""
}

func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// OrderScope restricts which orders a query may see. A scope with All unset
// and an empty OwnerID matches nothing.
type OrderScope struct {
	All     bool
	OwnerID string
}

func (s OrderScope) Allows(o *Order) bool {
	if s.All {
		return true
	}
	return s.OwnerID != "" && o != nil && o.OwnerID == s.OwnerID
}
