package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/assignhub/apiserver/internal/auth"
	"github.com/assignhub/apiserver/internal/logger"
	"github.com/assignhub/apiserver/internal/ratelimit"
	"github.com/assignhub/apiserver/internal/store"
	"github.com/assignhub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxUsernameLength = 64
	minPasswordLength = 6
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordLength = 72
)

var (
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrLockedOut           = errors.New("too many failed login attempts")
	ErrAdminSignupDisabled = errors.New("admin registration is disabled")
	ErrInvalidInput        = errors.New("invalid input")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	ListAdmins(ctx context.Context) ([]types.AdminSummary, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates registration and credential checks.
type UserService struct {
	repo             UserRepository
	limiter          ratelimit.LoginLimiter
	allowAdminSignup bool
	hashCost         int
	logger           *slog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// UserServiceOption customizes a UserService.
type UserServiceOption func(*UserService)

// WithLoginLimiter installs the limiter consulted by Authenticate.
func WithLoginLimiter(limiter ratelimit.LoginLimiter) UserServiceOption {
	return func(s *UserService) {
		if limiter != nil {
			s.limiter = limiter
		}
	}
}

// WithAdminSignup controls whether Register accepts the admin role.
func WithAdminSignup(allowed bool) UserServiceOption {
	return func(s *UserService) {
		s.allowAdminSignup = allowed
	}
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) UserServiceOption {
	return func(s *UserService) {
		s.hashCost = cost
	}
}

// WithUserLogger sets the logger used for limiter failures.
func WithUserLogger(l *slog.Logger) UserServiceOption {
	return func(s *UserService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewUserService(repo UserRepository, opts ...UserServiceOption) *UserService {
	s := &UserService{
		repo:             repo,
		limiter:          ratelimit.Nop{},
		allowAdminSignup: true,
		hashCost:         bcrypt.DefaultCost,
		logger:           slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

// ListAdmins returns every admin account, ordered by username.
func (s *UserService) ListAdmins(ctx context.Context) ([]types.AdminSummary, error) {
	return s.repo.ListAdmins(ctx)
}

// IsAdmin reports whether id names an existing admin account.
func (s *UserService) IsAdmin(ctx context.Context, id string) (bool, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return user.Role == string(auth.RoleAdmin), nil
}

// Register creates an account with a bcrypt-hashed password. An empty role
// registers a regular user. Duplicate usernames fail with store.ErrConflict.
func (s *UserService) Register(ctx context.Context, username, password string, role auth.Role) (types.User, error) {
	username = strings.TrimSpace(username)
	if role == "" {
		role = auth.RoleUser
	}
	if err := validateRegistration(username, password, role); err != nil {
		return types.User{}, err
	}
	if role == auth.RoleAdmin && !s.allowAdminSignup {
		return types.User{}, ErrAdminSignupDisabled
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return types.User{}, store.ErrConflict
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("check username: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.Create(ctx, types.User{
		Username:     username,
		Role:         string(role),
		PasswordHash: string(hashed),
	})
}

// Authenticate checks a username and password. Failed attempts count toward
// the login limiter; once the limit is reached ErrLockedOut is returned until
// the window passes. Unknown usernames and wrong passwords are both reported
// as ErrInvalidCredentials.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return types.User{}, ErrInvalidCredentials
	}

	allowed, err := s.limiter.Allowed(ctx, username)
	if err != nil {
		s.logger.WarnContext(ctx, "login limiter unavailable", slog.String("username", username), logger.Err(err))
	} else if !allowed {
		return types.User{}, ErrLockedOut
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return types.User{}, fmt.Errorf("load user: %w", err)
		}
		// Burn a comparison so unknown usernames take as long as wrong passwords.
		_ = bcrypt.CompareHashAndPassword(s.fallbackHash(), []byte(password))
		s.recordFailure(ctx, username)
		return types.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordFailure(ctx, username)
		return types.User{}, ErrInvalidCredentials
	}

	if err := s.limiter.Reset(ctx, username); err != nil {
		s.logger.WarnContext(ctx, "reset login limiter", slog.String("username", username), logger.Err(err))
	}
	return user, nil
}

func (s *UserService) recordFailure(ctx context.Context, username string) {
	if err := s.limiter.RecordFailure(ctx, username); err != nil {
		s.logger.WarnContext(ctx, "record failed login", slog.String("username", username), logger.Err(err))
	}
}

func (s *UserService) fallbackHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("assignhub-placeholder"), s.hashCost)
	})
	return s.dummyHash
}

func validateRegistration(username, password string, role auth.Role) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	case len(username) > maxUsernameLength:
		return fmt.Errorf("%w: username must be at most %d characters", ErrInvalidInput, maxUsernameLength)
	case len(password) < minPasswordLength:
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	case len(password) > maxPasswordLength:
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordLength)
	case !role.Valid():
		return fmt.Errorf("%w: role must be user or admin", ErrInvalidInput)
	}
	return nil
}
