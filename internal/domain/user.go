package domain

import (
	"strings"
	"time"
)

// User represents a registered principal with credentials and roles.
type User struct {
	ID                    int64
	Username              string
	Email                 string
	PasswordHash          string
	FirstName             string
	LastName              string
	Enabled               bool
	AccountNonExpired     bool
	AccountNonLocked      bool
	CredentialsNonExpired bool
	Roles                 []string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NormalizeRole canonicalizes a role label to its stored form.
func NormalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}

// AddRole inserts a role into the set. Adding a role the user already holds
// is a no-op.
func (u *User) AddRole(role string) {
	role = NormalizeRole(role)
	if role == "" || u.HasRole(role) {
		return
	}
	u.Roles = append(u.Roles, role)
}

// RemoveRole deletes a role from the set. Removing an absent role is a no-op.
func (u *User) RemoveRole(role string) {
	role = NormalizeRole(role)
	for i, r := range u.Roles {
		if r == role {
			u.Roles = append(u.Roles[:i], u.Roles[i+1:]...)
			return
		}
	}
}

func (u *User) HasRole(role string) bool {
	role = NormalizeRole(role)
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so cached snapshots stay immutable.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	copied := *u
	copied.Roles = append([]string(nil), u.Roles...)
	return &copied
}
