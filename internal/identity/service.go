package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pklhub/pklhub-api/internal/models"
	"github.com/pklhub/pklhub-api/internal/session"
	pkgerrors "github.com/pklhub/pklhub-api/pkg/errors"
	"github.com/pklhub/pklhub-api/pkg/jwt"
	"github.com/pklhub/pklhub-api/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the account lookup contract, implemented by the database client
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// Service verifies credentials against the account table, issues signed
// session tokens, and persists the active token across restarts. It reports
// token expiry through the session-change callback so the session manager can
// drop an authenticated state it did not end itself.
type Service struct {
	users  UserStore
	tokens *jwt.TokenManager
	store  *TokenStore

	mu          sync.Mutex
	callbacks   []func(session.AuthEvent, *session.Session)
	expiryTimer *time.Timer
}

// NewService creates an identity service
func NewService(users UserStore, tokens *jwt.TokenManager, store *TokenStore) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		store:  store,
	}
}

// CurrentSession restores the session from the persisted token. A missing,
// expired or tampered token yields no session and clears the file, it is
// never an error; errors are reserved for failures reading the store itself.
func (s *Service) CurrentSession(ctx context.Context) (*session.Session, error) {
	token, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}

	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		logger.Info("Persisted session token rejected", zap.Error(err))
		if clearErr := s.store.Clear(); clearErr != nil {
			logger.Warn("Failed to clear rejected session token", zap.Error(clearErr))
		}
		return nil, nil
	}

	sess := &session.Session{
		UserID:    claims.UserID,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	s.watchExpiry(sess.ExpiresAt)
	return sess, nil
}

// SignIn verifies the credentials and establishes a new session. An unknown
// email and a wrong password both surface as ErrInvalidCredentials.
func (s *Service) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrNotFound) {
			return nil, pkgerrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, pkgerrors.ErrInvalidCredentials
		}
		return nil, err
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(token); err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(s.tokens.GetExpirationTime())
	s.watchExpiry(expiresAt)

	logger.Info("Credentials verified", zap.String("user_id", user.ID))
	return &session.Session{
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: expiresAt,
	}, nil
}

// SignOut ends the session and removes the persisted token
func (s *Service) SignOut(ctx context.Context) error {
	s.stopExpiryWatch()
	return s.store.Clear()
}

// OnSessionChange registers a callback for session changes the caller did
// not initiate, currently only token expiry
func (s *Service) OnSessionChange(fn func(session.AuthEvent, *session.Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// EnsureUser creates an account if the email is not yet registered. Used to
// seed the development login; an existing account is left untouched.
func (s *Service) EnsureUser(ctx context.Context, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	err = s.users.CreateUser(ctx, &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
	})
	if pkgerrors.Is(err, pkgerrors.ErrConflict) {
		return nil
	}
	return err
}

// Close stops the expiry watcher
func (s *Service) Close() {
	s.stopExpiryWatch()
}

// watchExpiry arms a timer that fires when the active token expires. On
// expiry the token file is cleared and every callback is told the session
// ended.
func (s *Service) watchExpiry(expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
	}

	wait := time.Until(expiresAt)
	if wait < 0 {
		wait = 0
	}

	s.expiryTimer = time.AfterFunc(wait, func() {
		logger.Info("Session token expired")
		if err := s.store.Clear(); err != nil {
			logger.Warn("Failed to clear expired session token", zap.Error(err))
		}

		s.mu.Lock()
		callbacks := make([]func(session.AuthEvent, *session.Session), len(s.callbacks))
		copy(callbacks, s.callbacks)
		s.mu.Unlock()

		for _, fn := range callbacks {
			fn(session.SignedOut, nil)
		}
	})
}

func (s *Service) stopExpiryWatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expiryTimer != nil {
		s.expiryTimer.Stop()
		s.expiryTimer = nil
	}
}

// Ensure Service implements the session manager's identity contract
var _ session.IdentityBackend = (*Service)(nil)
