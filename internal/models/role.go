package models

import "fmt"

// Role is a member's rank inside a server. The zero value is not a valid role.
// Roles are totally ordered: GUEST < MODERATOR < ADMIN.
type Role string

const (
	RoleGuest     Role = "GUEST"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

func (r Role) rank() int {
	switch r {
	case RoleGuest:
		return 1
	case RoleModerator:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

func (r Role) Valid() bool {
	return r.rank() != 0
}

// Compare returns -1, 0 or +1 depending on whether r ranks below, equal to or
// above other.
func (r Role) Compare(other Role) int {
	a, b := r.rank(), other.rank()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// AtLeast reports whether r satisfies the minimum role. Invalid roles satisfy
// nothing.
func (r Role) AtLeast(minimum Role) bool {
	return r.Valid() && r.Compare(minimum) >= 0
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
