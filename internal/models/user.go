package models

import (
	"strings"
	"time"
)

// Roles carried in verified tokens and stored on users.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User is a student or administrator profile. Credentials live elsewhere.
type User struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	FirstName        string        `gorm:"size:128;not null" json:"first_name"`
	LastName         string        `gorm:"size:128" json:"last_name"`
	Phone            string        `gorm:"size:32;uniqueIndex;not null" json:"phone"`
	GroupCode        string        `gorm:"size:64;index" json:"group_code"`
	TelegramUsername string        `gorm:"size:64" json:"telegram_username,omitempty"`
	Role             string        `gorm:"size:16;not null;default:student" json:"role"`
	RetakeGrants     []RetakeGrant `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"retake_grants,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// RetakeGrant allows one more attempt of a test the user already took.
type RetakeGrant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_retake_grants_user_test" json:"user_id"`
	TestID    uint      `gorm:"not null;uniqueIndex:idx_retake_grants_user_test" json:"test_id"`
	GrantedBy uint      `json:"granted_by"`
	GrantedAt time.Time `json:"granted_at"`
}
