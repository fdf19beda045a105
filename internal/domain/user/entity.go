// internal/domain/user/entity.go
package user

import (
	"time"
)

// Roles for store staff. Admins manage the catalog and purchase batches,
// cashiers record sales.
const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

// User represents a staff account
type User struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Username    string     `json:"username" gorm:"uniqueIndex;not null;size:100"`
	Password    string     `json:"-" gorm:"not null"`
	FullName    string     `json:"full_name" gorm:"size:255"`
	Role        string     `json:"role" gorm:"not null;default:'cashier';size:20"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the table name for User model
func (User) TableName() string {
	return "users"
}

// IsAdmin returns true for admin accounts
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
