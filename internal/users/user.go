// Package users models the operator directory as a thin external
// collaborator: authentication, PIN handling, and session issuance live
// outside this system and are out of scope here (spec §2's Non-goals).
// This package only resolves the handle and role a validated token
// carries into something the rest of the system can use.
package users

import (
	"context"
	"database/sql"
)

// Role is one of the four roles spec §3 assigns to a user record. Only
// RoleAdmin and RoleSeparator are ever checked by this package
// (CanCompleteManually); RoleSeller and RoleBuyer are carried so Get can
// resolve a User regardless of which role its directory row holds.
type Role string

const (
	RoleSeparator Role = "separator"
	RoleSeller    Role = "seller"
	RoleBuyer     Role = "buyer"
	RoleAdmin     Role = "admin"
)

// User is the minimal operator record this system needs: enough to label
// events and access history with a human-readable name.
type User struct {
	ID       int64
	Handle   string
	Role     Role
	IsActive bool
}

// Directory resolves user records by ID. Backed by the same database the
// order store uses; this system never writes to it.
type Directory struct {
	db *sql.DB
}

// NewDirectory constructs a read-only operator directory.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// Get resolves one user by ID.
func (d *Directory) Get(ctx context.Context, userID int64) (*User, error) {
	var u User
	var role string
	err := d.db.QueryRowContext(ctx,
		`SELECT id, handle, role, is_active FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Handle, &role, &u.IsActive)
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

// CanCompleteManually reports whether role is allowed to invoke the
// manual-completion override (spec §9's resolved open question: admin or
// separator, not purchaser).
func CanCompleteManually(role string) bool {
	return Role(role) == RoleAdmin || Role(role) == RoleSeparator
}
