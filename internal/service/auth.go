package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/issuetrack/backend/internal/model"
	"github.com/issuetrack/backend/internal/notify"
	"github.com/issuetrack/backend/internal/store"
	jwtpkg "github.com/issuetrack/backend/pkg/jwt"
)

const minPasswordLength = 8

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

var errInvalidCredentials = &CodedError{Code: 40101, Msg: "invalid email/username or password", Kind: ErrUnauthorized}

type AuthConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// ResetTTL is how long a password reset link stays valid.
	ResetTTL     time.Duration
	FrontendBase string
}

type AuthService struct {
	db       *gorm.DB
	store    *store.Store
	notifier notify.Notifier
	cfg      AuthConfig
	now      func() time.Time
}

func NewAuthService(db *gorm.DB, st *store.Store, notifier notify.Notifier, cfg AuthConfig) *AuthService {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 20 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	return &AuthService{db: db, store: st, notifier: notifier, cfg: cfg, now: time.Now}
}

type RegisterInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Password  string
}

type Session struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time       `json:"expires_at"`
	User         model.UserBrief `json:"user"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if _, err := mail.ParseAddress(in.Email); err != nil || in.Email == "" {
		return nil, validation("invalid email address")
	}
	if !usernamePattern.MatchString(in.Username) {
		return nil, validation("username must be 3-32 letters, digits, '.', '_' or '-'")
	}
	if len(in.Password) < minPasswordLength {
		return nil, validation("password must be at least %d characters", minPasswordLength)
	}

	if taken, err := s.exists(ctx, &model.User{Email: in.Email}); err != nil {
		return nil, err
	} else if taken {
		return nil, coded(40904, ErrDuplicateKey, "Email already in use")
	}
	if taken, err := s.exists(ctx, &model.User{Username: in.Username}); err != nil {
		return nil, err
	} else if taken {
		return nil, coded(40905, ErrDuplicateKey, "Username already in use")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         model.DefaultGlobalRole,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, coded(40901, ErrDuplicateKey, "Email or username already in use")
		}
		return nil, err
	}
	log.Printf("[auth] registered user %d (%s)", user.ID, user.Username)
	return user, nil
}

// Login accepts either the email address or the username as identifier.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, validation("identifier and password are required")
	}

	var user model.User
	err := s.db.WithContext(ctx).
		Where("email = ? OR username = ?", normalizeEmail(identifier), identifier).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errInvalidCredentials
	}
	return s.issue(&user, true)
}

// Refresh exchanges a refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := jwtpkg.ParseToken(s.cfg.RefreshSecret, refreshToken, jwtpkg.TypeRefresh)
	if err != nil {
		return nil, coded(40102, ErrUnauthorized, "invalid refresh token")
	}
	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, coded(40102, ErrUnauthorized, "invalid refresh token")
		}
		return nil, err
	}
	return s.issue(user, false)
}

// Authenticate resolves an access token to the current user record, so a
// role change takes effect without waiting for the token to expire.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*model.User, error) {
	claims, err := jwtpkg.ParseToken(s.cfg.AccessSecret, accessToken, jwtpkg.TypeAccess)
	if err != nil {
		return nil, coded(40103, ErrUnauthorized, "invalid or expired token")
	}
	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, coded(40104, ErrUnauthorized, "user no longer exists")
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) issue(user *model.User, withRefresh bool) (*Session, error) {
	access, expireAt, err := jwtpkg.GenerateToken(s.cfg.AccessSecret, user.ID, string(user.Role), jwtpkg.TypeAccess, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	session := &Session{AccessToken: access, ExpiresAt: expireAt, User: user.Brief()}
	if withRefresh {
		session.RefreshToken, _, err = jwtpkg.GenerateToken(s.cfg.RefreshSecret, user.ID, string(user.Role), jwtpkg.TypeRefresh, s.cfg.RefreshTTL)
		if err != nil {
			return nil, fmt.Errorf("generate refresh token: %w", err)
		}
	}
	return session, nil
}

// EmailAvailable reports whether no account uses email yet.
func (s *AuthService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return false, validation("email is required")
	}
	taken, err := s.exists(ctx, &model.User{Email: email})
	return !taken, err
}

func (s *AuthService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, validation("username is required")
	}
	taken, err := s.exists(ctx, &model.User{Username: username})
	return !taken, err
}

// exists counts users matching the non-zero fields of cond, soft-deleted
// rows included, since the unique indexes still cover them.
func (s *AuthService) exists(ctx context.Context, cond *model.User) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&model.User{}).Where(cond).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Forgot stores a hashed one-time reset token on the account and mails the
// plain token as a link.
func (s *AuthService) Forgot(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	var user model.User
	if err := s.db.WithContext(ctx).Where(&model.User{Email: email}).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errUserMissing
		}
		return err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash reset token: %w", err)
	}
	expires := s.now().UTC().Add(s.cfg.ResetTTL)
	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"reset_token_hash": string(hash),
		"reset_token_exp":  expires,
	}).Error; err != nil {
		return err
	}

	event := notify.PasswordResetEvent{
		Email: user.Email,
		URL:   fmt.Sprintf("%s/reset-password/%s", strings.TrimRight(s.cfg.FrontendBase, "/"), token),
		TTL:   s.cfg.ResetTTL,
	}
	if err := s.notifier.Send(ctx, event.Message()); err != nil {
		log.Printf("[auth] reset mail for user %d: %v", user.ID, err)
		return coded(50201, err, "could not send reset mail")
	}
	log.Printf("[auth] reset link sent to user %d", user.ID)
	return nil
}

// Reset sets a new password when token matches the pending reset of the
// account with that email. The token is single use.
func (s *AuthService) Reset(ctx context.Context, email, token, password string) error {
	if len(password) < minPasswordLength {
		return validation("password must be at least %d characters", minPasswordLength)
	}
	invalid := coded(40002, ErrValidation, "reset link is invalid or has expired")

	var user model.User
	if err := s.db.WithContext(ctx).Where(&model.User{Email: normalizeEmail(email)}).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid
		}
		return err
	}
	if user.ResetTokenHash == "" || user.ResetTokenExp == nil || s.now().After(*user.ResetTokenExp) {
		return invalid
	}
	if bcrypt.CompareHashAndPassword([]byte(user.ResetTokenHash), []byte(token)) != nil {
		return invalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"password_hash":    string(hash),
		"reset_token_hash": "",
		"reset_token_exp":  nil,
	}).Error
}

func (s *AuthService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fromStore(err, errUserMissing)
	}
	return user, nil
}

// UpdateGlobalRole changes a user's account-wide role. Only a superadmin
// may do this.
func (s *AuthService) UpdateGlobalRole(ctx context.Context, actor *model.User, userID uint, role model.GlobalRole) (*model.User, error) {
	if !actor.IsSuperadmin() {
		return nil, coded(40301, ErrPermissionDenied, "superadmin required")
	}
	if !role.Valid() {
		return nil, validation("invalid role %q", role)
	}
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fromStore(err, errUserMissing)
	}
	previous := user.Role
	if err := s.db.WithContext(ctx).Model(user).Update("role", role).Error; err != nil {
		return nil, err
	}
	user.Role = role

	entry := &model.OperationLog{
		UserID:       actor.ID,
		Action:       model.ActionUserRole,
		ResourceType: "user",
		ResourceID:   userID,
		Detail:       datatypes.JSONMap{"from": string(previous), "to": string(role)},
	}
	if err := s.store.RecordOperation(ctx, entry); err != nil {
		log.Printf("[auth] audit role change of %d: %v", userID, err)
	}
	return user, nil
}
