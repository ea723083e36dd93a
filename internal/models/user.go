package models

import (
	"time"
)

// User types. Model users are automated labelers and have no password.
const (
	UserTypeHuman = "human"
	UserTypeModel = "model"
	UserTypeAdmin = "admin"
)

// User represents an annotator, reviewer, admin or model account
type User struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Username   string     `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Email      *string    `gorm:"uniqueIndex;size:255" json:"email"`
	Password   string     `gorm:"size:255" json:"-"` // bcrypt hash, empty for model users
	UserType   string     `gorm:"size:20;default:human;not null" json:"user_type"`
	IsArchived bool       `gorm:"default:false" json:"is_archived"`
	LastLogin  *time.Time `json:"last_login"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// DisplayName prefers the email for humans, the username otherwise.
func (u *User) DisplayName() string {
	if u.Email != nil && *u.Email != "" {
		return *u.Email
	}
	return u.Username
}

func (u *User) IsAdmin() bool { return u.UserType == UserTypeAdmin }
