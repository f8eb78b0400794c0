// Package repository implements persistence for users, chat history and fine-tune jobs.
package repository

import (
	"context"

	"github.com/Sandro385/expert-tune/internal/apperr"
	"github.com/Sandro385/expert-tune/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository stores username/password-hash pairs.
type UserRepository interface {
	// AddUser inserts the user unless the username already exists. created reports
	// whether a row was written; an existing row is left untouched and is not an error.
	AddUser(ctx context.Context, username, passwordHash string) (created bool, err error)
	// FindAll returns every user ordered by username.
	FindAll(ctx context.Context) ([]model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a gorm-backed UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) AddUser(ctx context.Context, username, passwordHash string) (bool, error) {
	user := model.User{Username: username, PasswordHash: passwordHash}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "username"}}, DoNothing: true}).
		Create(&user)
	if res.Error != nil {
		return false, apperr.Storage("add user", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *userRepository) FindAll(ctx context.Context) ([]model.User, error) {
	users := make([]model.User, 0)
	if err := r.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, apperr.Storage("list users", err)
	}
	return users, nil
}
