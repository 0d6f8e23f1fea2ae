package domain

import (
	"fmt"
	"slices"
)

// Role is a member of the closed role vocabulary.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// AllRoles lists every known role in a stable order.
var AllRoles = []Role{RoleAdmin, RoleUser}

// ParseRole maps a raw string to a known Role with an exact, case-sensitive match.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleUser:
		return RoleUser, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) String() string {
	return string(r)
}

// Roles is a role set. The zero value is treated as {user}.
type Roles []Role

// DefaultRoles is the role set assigned to every new account.
func DefaultRoles() Roles {
	return Roles{RoleUser}
}

// ParseRoles parses every entry and rejects the whole set if any value is unknown.
// Duplicates are collapsed and an empty input yields DefaultRoles.
func ParseRoles(raw []string) (Roles, error) {
	roles := make(Roles, 0, len(raw))
	for _, s := range raw {
		r, err := ParseRole(s)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles.Normalize(), nil
}

// Has reports whether r is a member of the set.
func (rs Roles) Has(r Role) bool {
	return slices.Contains(rs, r)
}

// With returns a copy of the set including r.
func (rs Roles) With(r Role) Roles {
	if rs.Has(r) {
		return rs.Normalize()
	}
	return append(slices.Clone(rs), r).Normalize()
}

// Without returns a copy of the set excluding r. Removing the last role
// leaves DefaultRoles so the set is never empty.
func (rs Roles) Without(r Role) Roles {
	out := slices.DeleteFunc(slices.Clone(rs), func(x Role) bool { return x == r })
	return out.Normalize()
}

// Normalize returns a sorted, de-duplicated copy, defaulting to {user} when empty.
func (rs Roles) Normalize() Roles {
	if len(rs) == 0 {
		return DefaultRoles()
	}
	out := slices.Clone(rs)
	slices.Sort(out)
	return slices.Compact(out)
}

// Strings converts the set to its wire form.
func (rs Roles) Strings() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return out
}
