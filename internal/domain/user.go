package domain

import "time"

// User is an API account. Admin users may reset pipeline steps and view
// the processing dashboard.
type User struct {
	ID           string     `gorm:"type:text;primaryKey" json:"-"`
	Username     string     `gorm:"type:text;not null;uniqueIndex" json:"username"`
	PasswordHash string     `gorm:"type:text;not null" json:"-"`
	IsAdmin      bool       `gorm:"default:false" json:"is_admin"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// TableName returns the database table name for User.
func (User) TableName() string {
	return "users"
}
