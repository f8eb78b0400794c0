// Package model defines the persisted and derived data types.
package model

// User is one registered account. Rows are never updated or deleted.
type User struct {
	Username     string `gorm:"primaryKey;size:191" json:"username"`
	PasswordHash string `gorm:"column:password_hash;type:text" json:"-"`
}

// TableName keeps the table name used by existing deployments.
func (User) TableName() string {
	return "users"
}
