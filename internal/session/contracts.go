package session

import (
	"context"
	"time"

	"github.com/pklhub/pklhub-api/internal/models"
)

// AuthEvent describes an externally-triggered session change pushed by the
// identity backend (e.g. token expiry).
type AuthEvent int

const (
	SignedIn AuthEvent = iota
	SignedOut
)

func (e AuthEvent) String() string {
	switch e {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// Session is a live authenticated identity reference issued by the
// identity backend.
type Session struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// IdentityBackend issues and validates login sessions.
type IdentityBackend interface {
	// CurrentSession returns the persisted session if one exists.
	// A (nil, nil) return means no session is active.
	CurrentSession(ctx context.Context) (*Session, error)

	// SignIn establishes a new session with email/password credentials.
	SignIn(ctx context.Context, email, password string) (*Session, error)

	// SignOut terminates the current session.
	SignOut(ctx context.Context) error

	// OnSessionChange registers a callback for externally-triggered
	// session changes. The callback may be invoked from another goroutine.
	OnSessionChange(fn func(event AuthEvent, session *Session))
}

// ProfileStore is the keyed record store for user profiles.
// GetProfile signals a missing row with pkg/errors.ErrNotFound.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*models.UserProfile, error)
	InsertProfile(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, error)
	UpdateProfile(ctx context.Context, id string, updates map[string]interface{}) error
}

// BlobStorage stores avatar images under opaque keys.
type BlobStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	PublicURL(key string) string
}

// State is the published session state. User is a deep copy owned by the
// receiver; mutating it never affects the manager or other subscribers.
type State struct {
	User    *models.UserProfile
	Loading bool
	Error   string
}

// Authenticated reports whether a user is logged in.
func (s State) Authenticated() bool {
	return s.User != nil
}

// Result is the outcome of a session command. Backend failures are carried
// here instead of being returned as errors so callers can render the
// message directly.
type Result struct {
	Success bool
	Error   string
}

// PhotoResult is the outcome of a photo upload.
type PhotoResult struct {
	Result
	PhotoURL string
}

// Listener receives state snapshots. It is invoked synchronously, once on
// subscribe with the current state and then on every transition.
type Listener func(State)
