package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pklhub/pklhub-api/internal/models"
	pkgerrors "github.com/pklhub/pklhub-api/pkg/errors"
	"github.com/pklhub/pklhub-api/pkg/logger"
	"github.com/pklhub/pklhub-api/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// MaxPhotoSize is the avatar upload limit, enforced before any
	// network call.
	MaxPhotoSize = 5 * 1024 * 1024

	noUserError = "No user logged in"
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// Manager is the single process-wide authority for "who is logged in and
// what is their profile". It synchronizes state with the identity backend
// and the profile store, and fans out every transition to subscribers as
// immutable snapshots.
//
// Mutating operations are serialized internally, so two concurrent
// UpdateProfile calls execute in order and the visible user is always the
// later call's re-fetch. Reads (Subscribe, CurrentState) never block behind
// an in-flight operation.
type Manager struct {
	identity IdentityBackend
	profiles ProfileStore
	blobs    BlobStorage

	// opMu serializes mutating operations
	opMu sync.Mutex

	// mu guards state and listeners
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	order     []int
	nextID    int
}

// NewManager creates a session manager in its initial loading state.
// Call Start to perform the startup session check.
func NewManager(identity IdentityBackend, profiles ProfileStore, blobs BlobStorage) *Manager {
	return &Manager{
		identity:  identity,
		profiles:  profiles,
		blobs:     blobs,
		state:     State{Loading: true},
		listeners: make(map[int]Listener),
	}
}

// Start checks for an existing session and begins listening for
// externally-triggered session changes. A failed session check leaves the
// manager in an error state recoverable only via Login.
func (m *Manager) Start(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	sess, err := m.identity.CurrentSession(ctx)
	switch {
	case err != nil:
		logger.Error("Startup session check failed", zap.Error(err))
		m.mutate(func(s *State) {
			s.Loading = false
			s.Error = err.Error()
		})
	case sess != nil:
		if fetchErr := m.fetchProfile(ctx, sess.UserID, sess.Email); fetchErr != nil {
			logger.Error("Startup profile fetch failed",
				zap.String("user_id", sess.UserID),
				zap.Error(fetchErr))
		}
	default:
		m.mutate(func(s *State) {
			s.Loading = false
		})
	}

	m.identity.OnSessionChange(m.handleSessionChange)
}

func (m *Manager) handleSessionChange(event AuthEvent, sess *Session) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	switch {
	case event == SignedIn && sess != nil:
		if err := m.fetchProfile(context.Background(), sess.UserID, sess.Email); err != nil {
			logger.Error("Profile fetch after external sign-in failed",
				zap.String("user_id", sess.UserID),
				zap.Error(err))
		}
	case event == SignedOut:
		logger.Info("Session ended externally")
		m.mutate(func(s *State) {
			s.User = nil
			s.Loading = false
		})
	}
}

// Login establishes a new session with the given credentials. Failures are
// returned as a result, never as a panic or error value, so the caller can
// render the message directly.
func (m *Manager) Login(ctx context.Context, email, password string) Result {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mutate(func(s *State) {
		s.Loading = true
		s.Error = ""
	})

	sess, err := m.identity.SignIn(ctx, email, password)
	if err != nil {
		metrics.SessionOperations.WithLabelValues("login", "error").Inc()
		logger.Warn("Login failed", zap.String("email", email), zap.Error(err))
		m.mutate(func(s *State) {
			s.Loading = false
			s.Error = err.Error()
		})
		return Result{Success: false, Error: err.Error()}
	}

	if fetchErr := m.fetchProfile(ctx, sess.UserID, sess.Email); fetchErr != nil {
		metrics.SessionOperations.WithLabelValues("login", "error").Inc()
		return Result{Success: false, Error: fetchErr.Error()}
	}

	metrics.SessionOperations.WithLabelValues("login", "success").Inc()
	logger.Info("Login successful", zap.String("user_id", sess.UserID))
	return Result{Success: true}
}

// Logout terminates the session. Local state is cleared even when the
// backend sign-out fails, so the UI never keeps a stale authenticated view.
func (m *Manager) Logout(ctx context.Context) Result {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	err := m.identity.SignOut(ctx)

	m.mutate(func(s *State) {
		s.User = nil
		s.Error = ""
		s.Loading = false
	})

	if err != nil {
		metrics.SessionOperations.WithLabelValues("logout", "error").Inc()
		logger.Warn("Backend sign-out failed, local state cleared anyway", zap.Error(err))
		return Result{Success: false, Error: err.Error()}
	}

	metrics.SessionOperations.WithLabelValues("logout", "success").Inc()
	logger.Info("Logout successful")
	return Result{Success: true}
}

// UpdateProfile sends a partial field set to the profile store and re-fetches
// the full row, so the published user reflects exactly what was persisted.
// On store failure the previous user value is retained.
func (m *Manager) UpdateProfile(ctx context.Context, req *models.UpdateProfileRequest) Result {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.updateProfileLocked(ctx, req)
}

func (m *Manager) updateProfileLocked(ctx context.Context, req *models.UpdateProfileRequest) Result {
	user := m.currentUser()
	if user == nil {
		return Result{Success: false, Error: noUserError}
	}

	updates := req.Updates()
	updates["updated_at"] = time.Now().UTC()

	if err := m.profiles.UpdateProfile(ctx, user.ID, updates); err != nil {
		metrics.ProfileUpdates.WithLabelValues("error").Inc()
		logger.Error("Profile update failed", zap.String("user_id", user.ID), zap.Error(err))
		m.mutate(func(s *State) {
			s.Error = err.Error()
		})
		return Result{Success: false, Error: err.Error()}
	}

	if err := m.fetchProfile(ctx, user.ID, user.Email); err != nil {
		metrics.ProfileUpdates.WithLabelValues("error").Inc()
		return Result{Success: false, Error: err.Error()}
	}

	metrics.ProfileUpdates.WithLabelValues("success").Inc()
	logger.Info("Profile updated", zap.String("user_id", user.ID))
	return Result{Success: true}
}

// UploadPhoto validates the image locally, uploads it under a key derived
// from the user id and a timestamp, and persists the public URL on the
// profile. Invalid images are rejected before any backend call.
func (m *Manager) UploadPhoto(ctx context.Context, data []byte, fileName, contentType string) PhotoResult {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	user := m.currentUser()
	if user == nil {
		return PhotoResult{Result: Result{Success: false, Error: noUserError}}
	}

	if err := validatePhoto(data, contentType); err != nil {
		metrics.PhotoUploads.WithLabelValues("rejected").Inc()
		return PhotoResult{Result: Result{Success: false, Error: err.Error()}}
	}

	key := photoKey(user.ID, fileName)
	if err := m.blobs.Upload(ctx, key, data, contentType); err != nil {
		metrics.PhotoUploads.WithLabelValues("error").Inc()
		logger.Error("Photo upload failed", zap.String("user_id", user.ID), zap.Error(err))
		return PhotoResult{Result: Result{Success: false, Error: err.Error()}}
	}

	photoURL := m.blobs.PublicURL(key)
	result := m.updateProfileLocked(ctx, &models.UpdateProfileRequest{PhotoURL: &photoURL})
	if !result.Success {
		metrics.PhotoUploads.WithLabelValues("error").Inc()
		return PhotoResult{Result: result}
	}

	metrics.PhotoUploads.WithLabelValues("success").Inc()
	logger.Info("Photo uploaded",
		zap.String("user_id", user.ID),
		zap.String("photo_url", photoURL))
	return PhotoResult{Result: result, PhotoURL: photoURL}
}

// Refresh re-fetches the current user's profile from the store.
func (m *Manager) Refresh(ctx context.Context) Result {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	user := m.currentUser()
	if user == nil {
		return Result{Success: false, Error: noUserError}
	}

	if err := m.fetchProfile(ctx, user.ID, user.Email); err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true}
}

// Subscribe registers a listener, invokes it once immediately with the
// current state, and returns an unsubscribe func. Unsubscribing is
// idempotent and safe to call from within a listener callback.
func (m *Manager) Subscribe(listener Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	m.order = append(m.order, id)
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	metrics.SessionSubscribers.Inc()
	listener(snapshot)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			for i, v := range m.order {
				if v == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
			m.mu.Unlock()
			metrics.SessionSubscribers.Dec()
		})
	}
}

// CurrentState returns a snapshot of the session state.
func (m *Manager) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// IsAuthenticated reports whether a user is currently logged in.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.User != nil
}

// User returns a copy of the current user profile, or nil.
func (m *Manager) User() *models.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.User.Clone()
}

// fetchProfile loads the profile row for an identity, provisioning it on
// first login, and publishes the outcome. Must be called with opMu held.
func (m *Manager) fetchProfile(ctx context.Context, userID, email string) error {
	profile, err := m.profiles.GetProfile(ctx, userID)
	if pkgerrors.Is(err, pkgerrors.ErrNotFound) {
		logger.Info("Provisioning profile on first login",
			zap.String("user_id", userID),
			zap.String("email", email))
		profile, err = m.profiles.InsertProfile(ctx, &models.UserProfile{
			ID:    userID,
			Email: email,
		})
	}

	if err != nil {
		logger.Error("Profile fetch failed", zap.String("user_id", userID), zap.Error(err))
		m.mutate(func(s *State) {
			s.Loading = false
			s.Error = err.Error()
		})
		return err
	}

	m.mutate(func(s *State) {
		s.User = profile
		s.Loading = false
		s.Error = ""
	})
	return nil
}

func (m *Manager) currentUser() *models.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.User
}

// mutate applies fn to the state and notifies all subscribers in
// registration order with an immutable snapshot.
func (m *Manager) mutate(fn func(*State)) {
	m.mu.Lock()
	fn(&m.state)
	snapshot := m.snapshotLocked()
	ids := make([]int, len(m.order))
	copy(ids, m.order)
	m.mu.Unlock()

	metrics.SessionStateChanges.Inc()

	// Listeners run outside the lock so they can unsubscribe themselves
	// (or others) without deadlocking. Listeners removed mid-notification
	// are skipped.
	for _, id := range ids {
		m.mu.Lock()
		listener, ok := m.listeners[id]
		m.mu.Unlock()
		if ok {
			listener(snapshot)
		}
	}
}

func (m *Manager) snapshotLocked() State {
	return State{
		User:    m.state.User.Clone(),
		Loading: m.state.Loading,
		Error:   m.state.Error,
	}
}

func validatePhoto(data []byte, contentType string) error {
	if !validImageTypes[strings.ToLower(contentType)] {
		return fmt.Errorf("invalid file type: %s. Allowed types: jpeg, jpg, png, webp", contentType)
	}
	if len(data) > MaxPhotoSize {
		return fmt.Errorf("file too large: %d bytes (max %d bytes)", len(data), MaxPhotoSize)
	}
	return nil
}

// photoKey builds a collision-free storage key. The timestamp doubles as a
// cache buster for the public URL.
func photoKey(userID, fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("avatars/%s-%d%s", userID, time.Now().Unix(), ext)
}
