package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/voxlane/backoffice/pkg/logging"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/store"
	"github.com/voxlane/backoffice/pkg/tenancy"
)

// CookieName carries the session token for browser clients
const CookieName = "vx_session"

// DefaultSessionTTL applies when Config.SessionTTL is zero
const DefaultSessionTTL = 12 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrAccountSuspended   = errors.New("account suspended")
)

// Config configures the session service
type Config struct {
	SessionTTL   time.Duration
	AdminAPIKey  string
	CookieSecure bool
}

// Service issues and validates sessions
type Service struct {
	store  store.Store
	cfg    Config
	logger *logging.Logger
	now    func() time.Time
}

// NewService creates a session service
func NewService(s store.Store, cfg Config, logger *logging.Logger) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: s, cfg: cfg, logger: logger.WithComponent("auth"), now: time.Now}
}

// HashPassword hashes a password with bcrypt. Passwords longer than bcrypt's
// 72-byte input limit come back as a validation error on "password".
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", &models.ValidationError{Fields: map[string]string{"password": "must be at most 72 bytes"}}
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken returns a random 32-byte URL-safe session token
func GenerateToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tokenBytes), nil
}

// HashToken returns the storage key of a session token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("voxlane"), bcrypt.DefaultCost)
	})
	return dummy
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Login checks credentials and opens a session
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (*models.LoginResponse, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Unknown emails cost one bcrypt comparison too
			bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if err := s.checkActive(ctx, user); err != nil {
		return nil, err
	}

	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &models.Session{
		ID:         uuid.NewString(),
		TokenHash:  HashToken(token),
		UserID:     user.ID,
		CustomerID: user.CustomerID,
		ExpiresAt:  now.Add(s.cfg.SessionTTL),
		CreatedAt:  now,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	user.LastLoginAt = &now
	user.UpdatedAt = now
	if err := s.store.UpdateUser(ctx, user); err != nil {
		s.logger.Warn("Failed to record last login", map[string]interface{}{"user_id": user.ID, "error": err})
	}

	s.logger.Info("User logged in", map[string]interface{}{"user_id": user.ID, "customer_id": user.CustomerID})
	return &models.LoginResponse{Token: token, ExpiresAt: sess.ExpiresAt, User: *user}, nil
}

// Logout removes the session behind token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	err := s.store.DeleteSession(ctx, HashToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// Authenticate resolves a bearer token or the admin API key to a principal
func (s *Service) Authenticate(ctx context.Context, token string) (*tenancy.Principal, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	if s.cfg.AdminAPIKey != "" && SecureCompare(token, s.cfg.AdminAPIKey) {
		return &tenancy.Principal{
			UserID: "api-key",
			Email:  "api-key",
			Role:   models.RoleSuperAdmin,
			APIKey: true,
		}, nil
	}

	sess, err := s.store.GetSession(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if sess.Expired(s.now()) {
		if err := s.store.DeleteSession(ctx, sess.TokenHash); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Failed to delete expired session", map[string]interface{}{"session_id": sess.ID, "error": err})
		}
		return nil, ErrTokenExpired
	}

	user, err := s.store.GetUser(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if err := s.checkActive(ctx, user); err != nil {
		return nil, err
	}

	return &tenancy.Principal{
		UserID:     user.ID,
		Email:      user.Email,
		FullName:   user.FullName,
		Role:       user.Role,
		CustomerID: user.CustomerID,
		SessionID:  sess.ID,
	}, nil
}

// checkActive rejects suspended users and users of suspended or closed customers
func (s *Service) checkActive(ctx context.Context, user *models.User) error {
	if user.Status != models.UserStatusActive {
		return ErrAccountSuspended
	}
	if user.CustomerID == "" {
		return nil
	}
	customer, err := s.store.GetCustomer(ctx, user.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !customer.IsActive() {
		return ErrAccountSuspended
	}
	return nil
}

// TokenFromRequest reads the bearer token or the session cookie
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// SessionCookie builds the browser cookie for a login response
func (s *Service) SessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ClearCookie expires the browser cookie
func (s *Service) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Middleware authenticates every request and stores the principal in the context
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			tenancy.WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		p, err := s.Authenticate(r.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, ErrAccountSuspended):
			tenancy.WriteError(w, http.StatusForbidden, "account_suspended", "Account is suspended")
			return
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired), errors.Is(err, ErrInvalidCredentials):
			tenancy.WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired session")
			return
		default:
			s.logger.Error("Authentication failed", map[string]interface{}{"error": err})
			tenancy.WriteError(w, http.StatusInternalServerError, "internal_error", "Authentication unavailable")
			return
		}
		next.ServeHTTP(w, r.WithContext(tenancy.WithPrincipal(r.Context(), p)))
	})
}

// EnsureSuperAdmin creates the first operator account when no user owns email yet
func (s *Service) EnsureSuperAdmin(ctx context.Context, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, nil
	}
	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return false, err
	}
	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FullName:     "Administrator",
		Role:         models.RoleSuperAdmin,
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return false, err
	}
	s.logger.Info("Bootstrap super admin created", map[string]interface{}{"email": email})
	return true, nil
}

// PurgeExpired removes sessions past their expiry
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now().UTC())
}
