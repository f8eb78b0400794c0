// Package service contains the application's business logic.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Sandro385/expert-tune/internal/apperr"
	"github.com/Sandro385/expert-tune/internal/model"
	"github.com/Sandro385/expert-tune/internal/repository"
	"github.com/Sandro385/expert-tune/pkg/hash"
	"github.com/Sandro385/expert-tune/pkg/log"
	"github.com/Sandro385/expert-tune/pkg/token"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserService covers registration and token-based authentication.
type UserService interface {
	// LoadCredentials rebuilds the credential table from the user store.
	LoadCredentials(ctx context.Context) error
	// Register stores a new user. created is false when the username was already taken.
	Register(ctx context.Context, username, password string) (created bool, err error)
	Login(ctx context.Context, username, password string) (accessToken, refreshToken string, err error)
	GetProfile(username string) (*model.User, error)
	// Authenticate resolves a bearer access token to its user, rejecting revoked tokens.
	Authenticate(ctx context.Context, accessToken string) (*model.User, *token.CustomClaims, error)
	Logout(ctx context.Context, accessToken string) error
	RefreshToken(ctx context.Context, refreshToken string) (newAccessToken, newRefreshToken string, err error)
}

type userService struct {
	userRepo    repository.UserRepository
	blacklist   repository.TokenBlacklist
	jwtManager  *token.JWTManager
	credentials *CredentialTable
}

// NewUserService creates a UserService. The credential table is empty until LoadCredentials runs.
func NewUserService(userRepo repository.UserRepository, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:    userRepo,
		blacklist:   blacklist,
		jwtManager:  jwtManager,
		credentials: NewCredentialTable(),
	}
}

func (s *userService) LoadCredentials(ctx context.Context) error {
	users, err := s.userRepo.FindAll(ctx)
	if err != nil {
		return err
	}
	s.credentials.Rebuild(users)
	log.Infof("[UserService] credential table rebuilt with %d users", s.credentials.Len())
	return nil
}

// Register validates input, hashes the password, inserts the user if absent and
// rebuilds the credential table.
func (s *userService) Register(ctx context.Context, username, password string) (bool, error) {
	// 1. validate
	username = strings.TrimSpace(username)
	if username == "" {
		return false, apperr.Invalid("username", "must not be empty")
	}
	if password == "" {
		return false, apperr.Invalid("password", "must not be empty")
	}

	// 2. hash; the store never sees plaintext
	hashed, err := hash.HashPassword(password)
	if err != nil {
		return false, err
	}

	// 3. insert if absent
	created, err := s.userRepo.AddUser(ctx, username, hashed)
	if err != nil {
		return false, err
	}

	// 4. rebuild the credential table from a full read
	if err := s.LoadCredentials(ctx); err != nil {
		return created, err
	}
	return created, nil
}

func (s *userService) Login(ctx context.Context, username, password string) (string, string, error) {
	stored, ok := s.credentials.Lookup(strings.TrimSpace(username))
	if !ok || !hash.CheckPasswordHash(password, stored) {
		return "", "", ErrInvalidCredentials
	}
	return s.issueTokens(strings.TrimSpace(username))
}

func (s *userService) GetProfile(username string) (*model.User, error) {
	if _, ok := s.credentials.Lookup(username); !ok {
		return nil, apperr.ErrNotFound
	}
	return &model.User{Username: username}, nil
}

func (s *userService) Authenticate(ctx context.Context, accessToken string) (*model.User, *token.CustomClaims, error) {
	claims, err := s.jwtManager.VerifyToken(accessToken, token.Access)
	if err != nil {
		return nil, nil, err
	}
	revoked, err := s.blacklist.Contains(ctx, accessToken)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, errors.New("token revoked")
	}
	user, err := s.GetProfile(claims.Username)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// Logout blacklists the token for the rest of its lifetime.
func (s *userService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.jwtManager.VerifyToken(accessToken, token.Access)
	if err != nil {
		return err
	}
	return s.blacklist.Add(ctx, accessToken, time.Until(claims.ExpiresAt.Time))
}

func (s *userService) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	claims, err := s.jwtManager.VerifyToken(refreshToken, token.Refresh)
	if err != nil {
		return "", "", errors.New("invalid refresh token")
	}
	if _, err := s.GetProfile(claims.Username); err != nil {
		return "", "", errors.New("user not found")
	}
	return s.issueTokens(claims.Username)
}

func (s *userService) issueTokens(username string) (string, string, error) {
	access, err := s.jwtManager.GenerateToken(username)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.jwtManager.GenerateRefreshToken(username)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}
