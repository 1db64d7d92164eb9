package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/nexlify/user-accounts/internal/domain"
	"github.com/nexlify/user-accounts/internal/mailer"
	"github.com/nexlify/user-accounts/internal/password"
	"github.com/nexlify/user-accounts/internal/repository"
	"github.com/nexlify/user-accounts/internal/sms"
	"github.com/nexlify/user-accounts/pkg/auth"
	"github.com/nexlify/user-accounts/pkg/config"
	"github.com/nexlify/user-accounts/pkg/events"
	"github.com/nexlify/user-accounts/pkg/logger"
)

type AuthService interface {
	Signup(ctx context.Context, req *domain.SignupRequest) (*domain.User, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	Authenticate(ctx context.Context, token string) (*domain.User, error)

	RequestPasswordReset(ctx context.Context, email string) error
	RequestPasswordResetSMS(ctx context.Context, phone string) error
	CompletePasswordReset(ctx context.Context, code, newPassword, passwordConfirm string) (*domain.User, error)

	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UpdateUser(ctx context.Context, id string, req *domain.UpdateUserRequest) (*domain.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type authService struct {
	userRepo  repository.UserRepository
	hasher    *password.Hasher
	mailer    mailer.Service
	smsSender sms.Sender
	publisher events.Publisher
	config    *config.Config
}

func NewAuthService(
	userRepo repository.UserRepository,
	hasher *password.Hasher,
	mailer mailer.Service,
	smsSender sms.Sender,
	publisher events.Publisher,
	config *config.Config,
) AuthService {
	return &authService{
		userRepo:  userRepo,
		hasher:    hasher,
		mailer:    mailer,
		smsSender: smsSender,
		publisher: publisher,
		config:    config,
	}
}

func (s *authService) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.userRepo.Create(ctx, &domain.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.UserRegistered, map[string]string{
		"id":    user.ID.Hex(),
		"email": user.Email,
	})

	return user, nil
}

func (s *authService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	req.Normalize()
	if req.Email == "" || strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrMissingCredentials
	}

	user, err := s.userRepo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	// Unknown email and wrong password report the same error so responses
	// cannot be used to enumerate accounts.
	if user == nil || !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	token, err := auth.Issue(user.ID.Hex(), s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &domain.LoginResponse{
		Token:     token,
		ExpiresIn: int64(s.config.Auth.TokenTTL.Seconds()),
		User:      user.ToUserInfo(),
	}, nil
}

func (s *authService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := auth.Parse(token, s.config.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up token subject: %w", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}

	return user, nil
}

func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return domain.ErrNotFound
	}

	return s.issueResetCode(ctx, user, func(code string) error {
		name := user.FirstName + " " + user.LastName
		return s.mailer.SendPasswordResetEmail(user.Email, name, code)
	})
}

func (s *authService) RequestPasswordResetSMS(ctx context.Context, phone string) error {
	phone = domain.NormalizePhone(phone)
	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return domain.ErrNotFound
	}

	return s.issueResetCode(ctx, user, func(code string) error {
		return s.smsSender.SendPasswordResetSMS(user.Phone, code)
	})
}

// issueResetCode overwrites any prior code, persists the new one, then
// dispatches it. A delivery failure rolls the stored code back so no record is
// left with a pending code nobody received.
func (s *authService) issueResetCode(ctx context.Context, user *domain.User, dispatch func(code string) error) error {
	code, err := generateResetCode()
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}

	expires := time.Now().Add(s.config.Auth.ResetCodeTTL)
	if err := s.userRepo.SetResetCode(ctx, user.ID.Hex(), code, expires); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}

	if err := dispatch(code); err != nil {
		logger.ErrorContext(ctx, "reset code dispatch failed", "error", err, "user_id", user.ID.Hex())
		if clearErr := s.userRepo.ClearResetCode(ctx, user.ID.Hex()); clearErr != nil {
			logger.ErrorContext(ctx, "failed to roll back reset code", "error", clearErr, "user_id", user.ID.Hex())
		}
		return domain.ErrDispatchFailed
	}

	return nil
}

func (s *authService) CompletePasswordReset(ctx context.Context, code, newPassword, passwordConfirm string) (*domain.User, error) {
	now := time.Now()

	user, err := s.userRepo.FindByResetCode(ctx, code, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by reset code: %w", err)
	}
	if user == nil {
		return nil, domain.ErrInvalidOrExpiredCode
	}

	newPassword = strings.TrimSpace(newPassword)
	passwordConfirm = strings.TrimSpace(passwordConfirm)
	if newPassword != passwordConfirm {
		return nil, domain.ErrPasswordMismatch
	}
	if len(newPassword) < 8 {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "password", Message: "enter password with 8 or more characters"},
		}}
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// The claim is atomic: the winning call unsets the code and installs the
	// new hash in one operation, so a racing duplicate observes no document.
	updated, err := s.userRepo.ConsumeResetCode(ctx, code, hash, now)
	if err != nil {
		return nil, fmt.Errorf("failed to consume reset code: %w", err)
	}
	if updated == nil {
		return nil, domain.ErrInvalidOrExpiredCode
	}

	s.publish(ctx, events.UserPasswordChanged, map[string]string{"id": updated.ID.Hex()})

	return updated, nil
}

func (s *authService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.userRepo.List(ctx)
}

func (s *authService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *authService) UpdateUser(ctx context.Context, id string, req *domain.UpdateUserRequest) (*domain.User, error) {
	if req.FirstName != nil {
		trimmed := strings.TrimSpace(*req.FirstName)
		req.FirstName = &trimmed
	}
	if req.LastName != nil {
		trimmed := strings.TrimSpace(*req.LastName)
		req.LastName = &trimmed
	}
	if req.Phone != nil {
		trimmed := strings.TrimSpace(*req.Phone)
		req.Phone = &trimmed
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.userRepo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *authService) DeleteUser(ctx context.Context, id string) error {
	deleted, err := s.userRepo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}

	s.publish(ctx, events.UserDeleted, map[string]string{"id": id})

	return nil
}

func (s *authService) publish(ctx context.Context, subject string, data interface{}) {
	if err := s.publisher.Publish(ctx, subject, data); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}

// generateResetCode returns a uniformly random 6-digit numeric code.
func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
