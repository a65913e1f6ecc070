package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/database"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/servicehub/marketplace-backend/pkg/jwt"
	"github.com/servicehub/marketplace-backend/pkg/mailer"
	"github.com/servicehub/marketplace-backend/pkg/validator"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the persistence authentication needs
type UserStore interface {
	OTPStore
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	DeleteUnverifiedByEmail(ctx context.Context, email string) error
	MarkVerified(ctx context.Context, id uuid.UUID, otpHash string) error
	UpdatePassword(ctx context.Context, id uuid.UUID, otpHash, passwordHash string) error
	UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error
	LinkOAuth(ctx context.Context, id uuid.UUID, provider, subject string) error
}

// RegisterRequest is a new email/password account
type RegisterRequest struct {
	Name        string
	Email       string
	PhoneNumber string
	Password    string
}

// AuthResult is a logged-in session
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// AuthService handles registration, login and account recovery
type AuthService struct {
	users      UserStore
	tokens     *jwt.Service
	otps       *OTPService
	audit      *AuditService
	phones     *validator.PhoneValidator
	google     IdentityProvider
	bcryptCost int
	logger     *logrus.Logger
}

// NewAuthService creates a new AuthService. google may be nil when OAuth is not configured.
func NewAuthService(
	users UserStore,
	tokens *jwt.Service,
	otps *OTPService,
	audit *AuditService,
	google IdentityProvider,
	bcryptCost int,
	logger *logrus.Logger,
) *AuthService {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		otps:       otps,
		audit:      audit,
		phones:     validator.NewPhoneValidator(),
		google:     google,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an unverified account and mails a verification code.
// Earlier unverified registrations for the same email are replaced.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, meta RequestMeta) (*models.User, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" || strings.TrimSpace(req.Name) == "" {
		return nil, InvalidInput("name, email and password are required")
	}

	var phone *string
	if req.PhoneNumber != "" {
		normalized, err := s.phones.Validate(req.PhoneNumber)
		if err != nil {
			return nil, InvalidInput(err.Error())
		}
		phone = &normalized
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil && existing.IsVerified:
		return nil, EmailTaken()
	case err != nil && !errors.Is(err, database.ErrNotFound):
		return nil, Internal("failed to look up user", err)
	}

	if err := s.users.DeleteUnverifiedByEmail(ctx, email); err != nil {
		return nil, Internal("failed to replace pending registration", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, Internal("failed to hash password", err)
	}

	user := &models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PhoneNumber:  phone,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, EmailTaken()
		}
		return nil, Internal("failed to create user", err)
	}

	if err := s.otps.Send(ctx, s.users, user.ID, OTPRecipient{Email: user.Email, Name: user.Name}, mailer.PurposeVerifyEmail); err != nil {
		return nil, err
	}

	s.audit.LogAuth(ctx, AuditRegister, &user.ID, email, meta, "")
	s.logger.WithField("user_id", user.ID).Info("User registered")
	return user, nil
}

// VerifyEmail consumes the verification code and starts a session
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string, meta RequestMeta) (*AuthResult, error) {
	user, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.IsVerified {
		return nil, InvalidInput("email is already verified")
	}

	hash, expiry := user.OTPState()
	if err := s.otps.Check(ctx, s.users, user.ID, hash, expiry, code); err != nil {
		s.audit.LogAuth(ctx, AuditOTPFailed, &user.ID, user.Email, meta, AsError(err).Code)
		return nil, err
	}

	if err := s.users.MarkVerified(ctx, user.ID, hash); err != nil {
		return nil, consumeError(err)
	}
	user.IsVerified = true
	user.OTPHash, user.OTPExpiry = nil, nil

	s.audit.LogAuth(ctx, AuditEmailVerified, &user.ID, user.Email, meta, "")
	return s.session(user)
}

// ResendOTP issues a fresh verification code
func (s *AuthService) ResendOTP(ctx context.Context, email string) error {
	user, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return InvalidInput("email is already verified")
	}
	return s.otps.Send(ctx, s.users, user.ID, OTPRecipient{Email: user.Email, Name: user.Name}, mailer.PurposeVerifyEmail)
}

// ForgotPassword mails a password reset code
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	return s.otps.Send(ctx, s.users, user.ID, OTPRecipient{Email: user.Email, Name: user.Name}, mailer.PurposeResetPassword)
}

// ResetPassword consumes a reset code and replaces the password
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string, meta RequestMeta) error {
	if newPassword == "" {
		return InvalidInput("new password is required")
	}

	user, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}

	hash, expiry := user.OTPState()
	if err := s.otps.Check(ctx, s.users, user.ID, hash, expiry, code); err != nil {
		s.audit.LogAuth(ctx, AuditOTPFailed, &user.ID, user.Email, meta, AsError(err).Code)
		return err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return Internal("failed to hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, string(passwordHash)); err != nil {
		return consumeError(err)
	}

	s.audit.LogAuth(ctx, AuditPasswordReset, &user.ID, user.Email, meta, "")
	s.logger.WithField("user_id", user.ID).Info("Password reset")
	return nil
}

// Login checks email and password and starts a session
func (s *AuthService) Login(ctx context.Context, email, password string, meta RequestMeta) (*AuthResult, error) {
	email = normalizeEmail(email)
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.audit.LogAuth(ctx, AuditLoginFailed, nil, email, meta, "unknown email")
			return nil, InvalidCredentials()
		}
		return nil, Internal("failed to look up user", err)
	}

	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.audit.LogAuth(ctx, AuditLoginFailed, &user.ID, email, meta, "bad password")
		return nil, InvalidCredentials()
	}
	if !user.IsVerified {
		return nil, EmailNotVerified()
	}

	s.audit.LogAuth(ctx, AuditLoginSuccess, &user.ID, email, meta, "")
	return s.session(user)
}

// Me returns the current user
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "user")
	}
	return user, nil
}

// UpdatePhone validates and stores the user's mobile number
func (s *AuthService) UpdatePhone(ctx context.Context, userID uuid.UUID, phone string) (*models.User, error) {
	normalized, err := s.phones.Validate(phone)
	if err != nil {
		return nil, InvalidInput(err.Error())
	}
	if err := s.users.UpdatePhone(ctx, userID, normalized); err != nil {
		return nil, storeError(err, "user")
	}
	return s.Me(ctx, userID)
}

// Token validates a session token
func (s *AuthService) Token(token string) (*jwt.Claims, error) {
	return s.tokens.ValidateToken(token)
}

func (s *AuthService) lookup(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, storeError(err, "user")
	}
	return user, nil
}

func (s *AuthService) session(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.GenerateToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, Internal("failed to issue session", err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
