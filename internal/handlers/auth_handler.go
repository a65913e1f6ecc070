package handlers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"
	"github.com/servicehub/marketplace-backend/internal/config"
	"github.com/servicehub/marketplace-backend/internal/middleware"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/servicehub/marketplace-backend/internal/utils"
	"github.com/servicehub/marketplace-backend/pkg/validator"
	"github.com/sirupsen/logrus"
)

const oauthStateCookie = "oauth_state"

// RegisterValidators adds the custom binding tags to gin's validator
func RegisterValidators() error {
	if v, ok := binding.Validator.Engine().(*playground.Validate); ok {
		return validator.RegisterTags(v)
	}
	return nil
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService   *services.AuthService
	secureCookies bool
	sessionTTL    time.Duration
	clientURL     string
	logger        *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, cfg *config.Config, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		secureCookies: cfg.Security.SecureCookies,
		sessionTTL:    cfg.JWT.TokenExpiry,
		clientURL:     cfg.Server.ClientURL,
		logger:        logger,
	}
}

// RegisterRequest represents a new account
type RegisterRequest struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	PhoneNumber string `json:"phoneNumber" binding:"omitempty,in_mobile"`
	Password    string `json:"password" binding:"required,min=6"`
}

// EmailRequest carries only an email address
type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// VerifyEmailRequest represents an email verification attempt
type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp" binding:"required"`
}

// ResetPasswordRequest represents a password reset
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	OTP         string `json:"otp" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=6"`
}

// LoginRequest represents an email/password login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdatePhoneRequest sets the caller's mobile number
type UpdatePhoneRequest struct {
	Phone string `json:"phone" binding:"required,in_mobile"`
}

// SessionResponse is returned when a session starts
type SessionResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    interface{} `json:"user"`
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), services.RegisterRequest{
		Name:        req.Name,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
	}, middleware.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Registered. Check your email for the verification code.",
		"user":    user,
	})
}

// VerifyEmail handles POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	result, err := h.authService.VerifyEmail(c.Request.Context(), req.Email, req.OTP, middleware.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setSessionCookie(c, result.Token)
	c.JSON(http.StatusOK, SessionResponse{Message: "Email verified", Token: result.Token, User: result.User})
}

// ResendOTP handles POST /api/v1/auth/resend-otp
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if err := h.authService.ResendOTP(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Verification code sent"})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Password reset code sent"})
}

// ResetPassword handles POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	if err := h.authService.ResetPassword(c.Request.Context(), req.Email, req.OTP, req.NewPassword, middleware.RequestMeta(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Password updated"})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password, middleware.RequestMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setSessionCookie(c, result.Token)
	c.JSON(http.StatusOK, SessionResponse{Message: "Logged in", Token: result.Token, User: result.User})
}

// Logout handles GET /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, MessageResponse{Message: "Logged out"})
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authService.Me(c.Request.Context(), middleware.MustGetUserContext(c).UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdatePhone handles POST /api/v1/auth/phone
func (h *AuthHandler) UpdatePhone(c *gin.Context) {
	var req UpdatePhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	user, err := h.authService.UpdatePhone(c.Request.Context(), middleware.MustGetUserContext(c).UserID, req.Phone)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// GoogleLogin handles GET /api/v1/auth/google
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	state, err := utils.GenerateSecret(16)
	if err != nil {
		respondError(c, h.logger, services.Internal("failed to start login", err))
		return
	}

	target, err := h.authService.GoogleAuthURL(state)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, int((10 * time.Minute).Seconds()), "/", "", h.secureCookies, true)
	c.Redirect(http.StatusTemporaryRedirect, target)
}

// GoogleCallback handles GET /api/v1/auth/google/callback. Outcomes are
// reported to the web client by redirect.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	expected, _ := c.Cookie(oauthStateCookie)
	c.SetCookie(oauthStateCookie, "", -1, "/", "", h.secureCookies, true)

	if providerErr := c.Query("error"); providerErr != "" {
		h.oauthFailure(c, providerErr)
		return
	}
	if expected == "" || c.Query("state") != expected {
		h.oauthFailure(c, "invalid login state")
		return
	}

	result, err := h.authService.GoogleLogin(c.Request.Context(), c.Query("code"), middleware.RequestMeta(c))
	if err != nil {
		h.logger.WithError(err).Warn("Google login failed")
		h.oauthFailure(c, services.AsError(err).Message)
		return
	}

	h.setSessionCookie(c, result.Token)
	c.Redirect(http.StatusFound, h.clientURL+"/oauth-success")
}

func (h *AuthHandler) oauthFailure(c *gin.Context, msg string) {
	c.Redirect(http.StatusFound, h.clientURL+"/oauth-error?msg="+url.QueryEscape(msg))
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, token, int(h.sessionTTL.Seconds()), "/", "", h.secureCookies, true)
}
