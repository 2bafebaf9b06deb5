package users

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a user role within the rental platform
type RoleType string

const (
	RoleSuperAdmin RoleType = "SUPER_ADMIN" // Platform administrator, manages all accounts
	RoleOwner      RoleType = "OWNER"       // Property owner, the regular user role
)

// User is the client-visible projection of an account. It is derived from
// the upstream identity backend on login/me and never persisted by the
// gateway beyond in-memory state.
type User struct {
	ID    string   `json:"id,omitempty"`    // Unique identifier for the user
	Name  string   `json:"name,omitempty"`  // Display name
	Email string   `json:"email,omitempty"` // User's email address
	Role  RoleType `json:"role,omitempty"`  // Platform role
}

// IsSuperAdmin returns true if the user has super admin privileges
func (u *User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
