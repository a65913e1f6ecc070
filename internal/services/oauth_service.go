package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/servicehub/marketplace-backend/internal/database"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	providerGoogle = "google"
	googleUserInfo = "https://openidconnect.googleapis.com/v1/userinfo"
)

// Identity is a verified external account
type Identity struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// IdentityProvider runs the authorization code flow
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// GoogleProvider implements IdentityProvider with Google's OpenID endpoints
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a Google provider
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfo,
	}
}

// AuthCodeURL returns the consent page URL
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the code for a token and fetches the user's identity
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info returned status %d", resp.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return &identity, nil
}

// GoogleAuthURL returns where to send the browser to start a Google login
func (s *AuthService) GoogleAuthURL(state string) (string, error) {
	if s.google == nil {
		return "", newError(KindNotFound, CodeNotFound, "google login is not configured")
	}
	return s.google.AuthCodeURL(state), nil
}

// GoogleLogin finishes the code flow, creating or linking the account by email
func (s *AuthService) GoogleLogin(ctx context.Context, code string, meta RequestMeta) (*AuthResult, error) {
	if s.google == nil {
		return nil, newError(KindNotFound, CodeNotFound, "google login is not configured")
	}
	if code == "" {
		return nil, InvalidInput("missing authorization code")
	}

	identity, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, Upstream(CodeGatewayError, "google login failed", err)
	}
	if !identity.EmailVerified || identity.Email == "" {
		return nil, &Error{Kind: KindUnauthorized, Code: CodeEmailNotVerified, Message: "google account email is not verified"}
	}

	email := normalizeEmail(identity.Email)
	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if err := s.users.LinkOAuth(ctx, user.ID, providerGoogle, identity.Subject); err != nil {
			return nil, storeError(err, "user")
		}
		user.IsVerified = true

	case errors.Is(err, database.ErrNotFound):
		provider, subject := providerGoogle, identity.Subject
		name := strings.TrimSpace(identity.Name)
		if name == "" {
			name = strings.Split(email, "@")[0]
		}
		user = &models.User{
			Name:          name,
			Email:         email,
			Role:          models.RoleUser,
			IsVerified:    true,
			OAuthProvider: &provider,
			OAuthID:       &subject,
		}
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, storeError(err, "user")
		}

	default:
		return nil, Internal("failed to look up user", err)
	}

	s.audit.LogAuth(ctx, AuditOAuthLogin, &user.ID, email, meta, providerGoogle)
	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "provider": providerGoogle}).Info("OAuth login")
	return s.session(user)
}
