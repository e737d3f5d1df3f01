package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/efreitasn/finance/internal/domain"
	"github.com/efreitasn/finance/internal/store"
)

// bcrypt ignores everything past this many bytes.
const maxPasswordBytes = 72

// RegisterRequest represents the input for account registration.
type RegisterRequest struct {
	Username     string
	Password     string
	Confirmation string
}

// ChangePasswordRequest represents the input for a password change.
type ChangePasswordRequest struct {
	CurrentPassword string
	NewPassword     string
	Confirmation    string
}

// AuthService handles registration, login sessions, and account management.
type AuthService struct {
	store       store.Store
	sessions    *store.SessionStore
	initialCash decimal.Decimal
	cost        int
	logger      *zap.Logger
}

// NewAuthService creates a new AuthService. New accounts start with
// initialCash; passwords are hashed with bcrypt at the given cost.
func NewAuthService(
	st store.Store,
	sessions *store.SessionStore,
	initialCash decimal.Decimal,
	cost int,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		store:       st,
		sessions:    sessions,
		initialCash: initialCash,
		cost:        cost,
		logger:      logger,
	}
}

// Register validates the request and creates the account. The password is
// stored only as a salted bcrypt hash.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, &domain.ValidationError{Message: "must provide username"}
	}
	if err := validateNewPassword(req.Password, req.Confirmation); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.store.CreateUser(ctx, username, string(hash), s.initialCash)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", id), zap.String("username", username))
	return s.store.GetUser(ctx, id)
}

// Authenticate checks the credentials and returns the user's ID. Unknown
// usernames and wrong passwords both yield domain.ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, &domain.ValidationError{Message: "must provide username"}
	}
	if password == "" {
		return 0, &domain.ValidationError{Message: "must provide password"}
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return 0, domain.ErrInvalidCredentials
	}
	if err != nil {
		return 0, err
	}
	if err := checkPassword(user, password); err != nil {
		return 0, err
	}
	return user.ID, nil
}

// StartSession opens a login session for userID.
func (s *AuthService) StartSession(userID int64) *store.Session {
	return s.sessions.Create(userID)
}

// EndSession closes the session identified by token.
func (s *AuthService) EndSession(token string) {
	s.sessions.Delete(token)
}

// Resolve returns the user ID bound to a live session token, or
// domain.ErrUnauthenticated.
func (s *AuthService) Resolve(token string) (int64, error) {
	if token == "" {
		return 0, domain.ErrUnauthenticated
	}
	sess, ok := s.sessions.Get(token)
	if !ok {
		return 0, domain.ErrUnauthenticated
	}
	return sess.UserID, nil
}

// Profile returns the user's account.
func (s *AuthService) Profile(ctx context.Context, userID int64) (*domain.User, error) {
	return s.store.GetUser(ctx, userID)
}

// ChangePassword replaces the password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, req ChangePasswordRequest) error {
	if req.CurrentPassword == "" {
		return &domain.ValidationError{Message: "must provide current password"}
	}
	if err := validateNewPassword(req.NewPassword, req.Confirmation); err != nil {
		return err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := checkPassword(user, req.CurrentPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return err
	}

	s.logger.Info("password changed", zap.Int64("user_id", userID))
	return nil
}

// DeleteAccount removes the user, its transactions, and every session it
// holds, after verifying the password.
func (s *AuthService) DeleteAccount(ctx context.Context, userID int64, password string) error {
	if password == "" {
		return &domain.ValidationError{Message: "must provide password to delete account"}
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := checkPassword(user, password); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return err
	}

	revoked := s.sessions.DeleteUser(userID)
	s.logger.Info("account deleted", zap.Int64("user_id", userID), zap.Int("sessions_revoked", revoked))
	return nil
}

func validateNewPassword(password, confirmation string) error {
	if password == "" {
		return &domain.ValidationError{Message: "must provide password"}
	}
	if confirmation == "" {
		return &domain.ValidationError{Message: "must provide password confirmation"}
	}
	if password != confirmation {
		return &domain.ValidationError{Message: "passwords do not match"}
	}
	if len(password) > maxPasswordBytes {
		return &domain.ValidationError{
			Message: fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes),
		}
	}
	return nil
}

func checkPassword(user *domain.User, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(user.Hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return domain.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}
