package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pklhub/pklhub-api/internal/models"
	"github.com/pklhub/pklhub-api/internal/session"
	pkgerrors "github.com/pklhub/pklhub-api/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testProfile() *models.UserProfile {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return &models.UserProfile{
		ID:        "user-1",
		Email:     "admin@sekolah.sch.id",
		Name:      "Admin",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// newAnonymousManager returns a started manager with no active session.
func newAnonymousManager(t *testing.T) (*session.Manager, *MockIdentityBackend, *MockProfileStore, *MockBlobStorage) {
	t.Helper()
	identity := new(MockIdentityBackend)
	profiles := new(MockProfileStore)
	blobs := new(MockBlobStorage)

	identity.On("CurrentSession", mock.Anything).Return(nil, nil).Once()
	identity.On("OnSessionChange", mock.Anything).Return().Once()

	mgr := session.NewManager(identity, profiles, blobs)
	mgr.Start(context.Background())
	return mgr, identity, profiles, blobs
}

// newAuthenticatedManager returns a started manager with testProfile logged in.
func newAuthenticatedManager(t *testing.T) (*session.Manager, *MockIdentityBackend, *MockProfileStore, *MockBlobStorage) {
	t.Helper()
	identity := new(MockIdentityBackend)
	profiles := new(MockProfileStore)
	blobs := new(MockBlobStorage)

	identity.On("CurrentSession", mock.Anything).Return(&session.Session{
		UserID: "user-1",
		Email:  "admin@sekolah.sch.id",
	}, nil).Once()
	identity.On("OnSessionChange", mock.Anything).Return().Once()
	profiles.On("GetProfile", mock.Anything, "user-1").Return(testProfile(), nil).Once()

	mgr := session.NewManager(identity, profiles, blobs)
	mgr.Start(context.Background())
	require.True(t, mgr.IsAuthenticated())
	return mgr, identity, profiles, blobs
}

func TestManager_Subscribe_ImmediateSnapshot(t *testing.T) {
	// Before Start the manager is still loading
	mgr := session.NewManager(new(MockIdentityBackend), new(MockProfileStore), new(MockBlobStorage))

	var calls []session.State
	unsubscribe := mgr.Subscribe(func(s session.State) {
		calls = append(calls, s)
	})
	defer unsubscribe()

	require.Len(t, calls, 1)
	assert.True(t, calls[0].Loading)
	assert.Nil(t, calls[0].User)
	assert.Empty(t, calls[0].Error)
}

func TestManager_Subscribe_ImmediateSnapshot_AfterStart(t *testing.T) {
	mgr, _, _, _ := newAnonymousManager(t)

	var calls []session.State
	unsubscribe := mgr.Subscribe(func(s session.State) {
		calls = append(calls, s)
	})
	defer unsubscribe()

	require.Len(t, calls, 1)
	assert.False(t, calls[0].Loading)
	assert.Nil(t, calls[0].User)
}

func TestManager_SnapshotIsolation(t *testing.T) {
	mgr, _, profiles, _ := newAuthenticatedManager(t)

	var last session.State
	unsubscribe := mgr.Subscribe(func(s session.State) {
		last = s
	})
	defer unsubscribe()

	// Corrupt the received snapshot
	require.NotNil(t, last.User)
	last.User.Name = "corrupted"

	// Trigger another notification via a refresh
	profiles.On("GetProfile", mock.Anything, "user-1").Return(testProfile(), nil).Once()
	res := mgr.Refresh(context.Background())
	require.True(t, res.Success)

	assert.Equal(t, "Admin", last.User.Name)
	assert.Equal(t, "Admin", mgr.User().Name)
}

func TestManager_Login_InvalidCredentials(t *testing.T) {
	mgr, identity, profiles, _ := newAnonymousManager(t)

	identity.On("SignIn", mock.Anything, "admin@sekolah.sch.id", "wrong").
		Return(nil, pkgerrors.ErrInvalidCredentials).Once()

	res := mgr.Login(context.Background(), "admin@sekolah.sch.id", "wrong")

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)

	state := mgr.CurrentState()
	assert.Nil(t, state.User)
	assert.False(t, state.Loading)
	assert.NotEmpty(t, state.Error)

	identity.AssertExpectations(t)
	profiles.AssertNotCalled(t, "GetProfile")
}

func TestManager_Login_FirstLoginProvisionsProfile(t *testing.T) {
	mgr, identity, profiles, _ := newAnonymousManager(t)

	identity.On("SignIn", mock.Anything, "baru@sekolah.sch.id", "rahasia").
		Return(&session.Session{UserID: "user-9", Email: "baru@sekolah.sch.id"}, nil).Once()
	profiles.On("GetProfile", mock.Anything, "user-9").
		Return(nil, pkgerrors.ErrNotFound).Once()

	created := &models.UserProfile{ID: "user-9", Email: "baru@sekolah.sch.id"}
	profiles.On("InsertProfile", mock.Anything, mock.MatchedBy(func(p *models.UserProfile) bool {
		return p.ID == "user-9" && p.Email == "baru@sekolah.sch.id" && p.Name == "" && p.NIS == ""
	})).Return(created, nil).Once()

	res := mgr.Login(context.Background(), "baru@sekolah.sch.id", "rahasia")

	require.True(t, res.Success)
	user := mgr.User()
	require.NotNil(t, user)
	assert.Equal(t, "user-9", user.ID)
	assert.Equal(t, "baru@sekolah.sch.id", user.Email)

	profiles.AssertExpectations(t)
}

func TestManager_Login_StateTransitions(t *testing.T) {
	mgr, identity, profiles, _ := newAnonymousManager(t)

	identity.On("SignIn", mock.Anything, "admin@sekolah.sch.id", "admin123").
		Return(&session.Session{UserID: "user-1", Email: "admin@sekolah.sch.id"}, nil).Once()
	profiles.On("GetProfile", mock.Anything, "user-1").Return(testProfile(), nil).Once()

	var states []session.State
	unsubscribe := mgr.Subscribe(func(s session.State) {
		states = append(states, s)
	})
	defer unsubscribe()

	res := mgr.Login(context.Background(), "admin@sekolah.sch.id", "admin123")
	require.True(t, res.Success)

	// initial snapshot, loading, then authenticated
	require.Len(t, states, 3)
	assert.False(t, states[0].Loading)
	assert.Nil(t, states[0].User)
	assert.True(t, states[1].Loading)
	assert.False(t, states[2].Loading)
	require.NotNil(t, states[2].User)
	assert.Equal(t, "admin@sekolah.sch.id", states[2].User.Email)
}

func TestManager_UpdateProfile_RoundTrip(t *testing.T) {
	mgr, _, profiles, _ := newAuthenticatedManager(t)

	updated := testProfile()
	updated.Name = "X"
	updated.UpdatedAt = updated.UpdatedAt.Add(time.Minute)

	profiles.On("UpdateProfile", mock.Anything, "user-1", mock.MatchedBy(func(updates map[string]interface{}) bool {
		_, hasTimestamp := updates["updated_at"]
		return updates["name"] == "X" && hasTimestamp && len(updates) == 2
	})).Return(nil).Once()
	profiles.On("GetProfile", mock.Anything, "user-1").Return(updated, nil).Once()

	name := "X"
	res := mgr.UpdateProfile(context.Background(), &models.UpdateProfileRequest{Name: &name})

	require.True(t, res.Success)
	user := mgr.User()
	assert.Equal(t, "X", user.Name)
	assert.True(t, user.UpdatedAt.After(testProfile().UpdatedAt))

	profiles.AssertExpectations(t)
}

func TestManager_UpdateProfile_NoUser(t *testing.T) {
	mgr, _, profiles, _ := newAnonymousManager(t)

	phone := "0812"
	res := mgr.UpdateProfile(context.Background(), &models.UpdateProfileRequest{Phone: &phone})

	assert.False(t, res.Success)
	assert.Equal(t, "No user logged in", res.Error)
	assert.Empty(t, mgr.CurrentState().Error)

	profiles.AssertNotCalled(t, "UpdateProfile")
}

func TestManager_UpdateProfile_StoreFailure(t *testing.T) {
	mgr, _, profiles, _ := newAuthenticatedManager(t)

	profiles.On("UpdateProfile", mock.Anything, "user-1", mock.Anything).
		Return(errors.New("store unavailable")).Once()

	name := "X"
	res := mgr.UpdateProfile(context.Background(), &models.UpdateProfileRequest{Name: &name})

	assert.False(t, res.Success)
	assert.Equal(t, "store unavailable", res.Error)

	// last known-good user retained
	user := mgr.User()
	require.NotNil(t, user)
	assert.Equal(t, "Admin", user.Name)
	assert.Equal(t, "store unavailable", mgr.CurrentState().Error)
}

func TestManager_UploadPhoto_OversizeRejectedLocally(t *testing.T) {
	mgr, _, profiles, blobs := newAuthenticatedManager(t)

	oversized := make([]byte, 6*1024*1024)
	res := mgr.UploadPhoto(context.Background(), oversized, "foto.jpg", "image/jpeg")

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "file too large")

	blobs.AssertNotCalled(t, "Upload")
	profiles.AssertNotCalled(t, "UpdateProfile")
}

func TestManager_UploadPhoto_InvalidTypeRejectedLocally(t *testing.T) {
	mgr, _, profiles, blobs := newAuthenticatedManager(t)

	res := mgr.UploadPhoto(context.Background(), []byte("plain text"), "notes.txt", "text/plain")

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid file type")

	blobs.AssertNotCalled(t, "Upload")
	profiles.AssertNotCalled(t, "UpdateProfile")
}

func TestManager_UploadPhoto_Success(t *testing.T) {
	mgr, _, profiles, blobs := newAuthenticatedManager(t)

	photoURL := "https://storage.example.com/avatars/user-1.jpg"
	blobs.On("Upload", mock.Anything, mock.MatchedBy(func(key string) bool {
		return len(key) > 0 && key[:8] == "avatars/"
	}), mock.Anything, "image/jpeg").Return(nil).Once()
	blobs.On("PublicURL", mock.Anything).Return(photoURL).Once()

	updated := testProfile()
	updated.PhotoURL = photoURL
	profiles.On("UpdateProfile", mock.Anything, "user-1", mock.MatchedBy(func(updates map[string]interface{}) bool {
		return updates["photo_url"] == photoURL
	})).Return(nil).Once()
	profiles.On("GetProfile", mock.Anything, "user-1").Return(updated, nil).Once()

	res := mgr.UploadPhoto(context.Background(), []byte{0xFF, 0xD8, 0xFF}, "foto.jpg", "image/jpeg")

	require.True(t, res.Success)
	assert.Equal(t, photoURL, res.PhotoURL)
	assert.Equal(t, photoURL, mgr.User().PhotoURL)

	blobs.AssertExpectations(t)
	profiles.AssertExpectations(t)
}

func TestManager_Logout_ClearsStateOnBackendFailure(t *testing.T) {
	mgr, identity, _, _ := newAuthenticatedManager(t)

	identity.On("SignOut", mock.Anything).Return(errors.New("backend down")).Once()

	res := mgr.Logout(context.Background())

	assert.False(t, res.Success)
	assert.Equal(t, "backend down", res.Error)

	state := mgr.CurrentState()
	assert.Nil(t, state.User)
	assert.Empty(t, state.Error)
	assert.False(t, mgr.IsAuthenticated())
}

func TestManager_Logout_Success(t *testing.T) {
	mgr, identity, _, _ := newAuthenticatedManager(t)

	identity.On("SignOut", mock.Anything).Return(nil).Once()

	res := mgr.Logout(context.Background())

	assert.True(t, res.Success)
	assert.False(t, mgr.IsAuthenticated())
}

func TestManager_Start_SessionCheckFailure(t *testing.T) {
	identity := new(MockIdentityBackend)
	profiles := new(MockProfileStore)
	blobs := new(MockBlobStorage)

	identity.On("CurrentSession", mock.Anything).Return(nil, errors.New("identity backend unreachable")).Once()
	identity.On("OnSessionChange", mock.Anything).Return().Once()

	mgr := session.NewManager(identity, profiles, blobs)
	mgr.Start(context.Background())

	state := mgr.CurrentState()
	assert.Nil(t, state.User)
	assert.False(t, state.Loading)
	assert.Equal(t, "identity backend unreachable", state.Error)

	// Recoverable via an explicit login
	identity.On("SignIn", mock.Anything, "admin@sekolah.sch.id", "admin123").
		Return(&session.Session{UserID: "user-1", Email: "admin@sekolah.sch.id"}, nil).Once()
	profiles.On("GetProfile", mock.Anything, "user-1").Return(testProfile(), nil).Once()

	res := mgr.Login(context.Background(), "admin@sekolah.sch.id", "admin123")
	require.True(t, res.Success)
	assert.Empty(t, mgr.CurrentState().Error)
	assert.True(t, mgr.IsAuthenticated())
}

func TestManager_Start_ExistingSession(t *testing.T) {
	mgr, identity, profiles, _ := newAuthenticatedManager(t)

	assert.Equal(t, "admin@sekolah.sch.id", mgr.User().Email)
	identity.AssertExpectations(t)
	profiles.AssertExpectations(t)
}

func TestManager_ExternalSignOut(t *testing.T) {
	identity := new(MockIdentityBackend)
	profiles := new(MockProfileStore)
	blobs := new(MockBlobStorage)

	var onChange func(session.AuthEvent, *session.Session)
	identity.On("CurrentSession", mock.Anything).Return(&session.Session{
		UserID: "user-1",
		Email:  "admin@sekolah.sch.id",
	}, nil).Once()
	identity.On("OnSessionChange", mock.Anything).Run(func(args mock.Arguments) {
		onChange = args.Get(0).(func(session.AuthEvent, *session.Session))
	}).Return().Once()
	profiles.On("GetProfile", mock.Anything, "user-1").Return(testProfile(), nil).Once()

	mgr := session.NewManager(identity, profiles, blobs)
	mgr.Start(context.Background())
	require.True(t, mgr.IsAuthenticated())
	require.NotNil(t, onChange)

	// Token expiry reported by the identity backend
	onChange(session.SignedOut, nil)

	assert.False(t, mgr.IsAuthenticated())
	assert.Nil(t, mgr.CurrentState().User)
}

func TestManager_Unsubscribe_Idempotent(t *testing.T) {
	mgr, _, _, _ := newAnonymousManager(t)

	calls := 0
	unsubscribe := mgr.Subscribe(func(session.State) { calls++ })
	require.Equal(t, 1, calls)

	unsubscribe()
	unsubscribe() // second call is a no-op
}

func TestManager_Unsubscribe_FromWithinListener(t *testing.T) {
	mgr, identity, _, _ := newAnonymousManager(t)

	selfCalls := 0
	var unsubscribe func()
	unsubscribe = mgr.Subscribe(func(s session.State) {
		selfCalls++
		if unsubscribe != nil {
			unsubscribe()
		}
	})

	otherCalls := 0
	stop := mgr.Subscribe(func(session.State) { otherCalls++ })
	defer stop()

	// The self-unsubscribing listener drops out after the first
	// notification it handles; the other listener keeps receiving
	identity.On("SignIn", mock.Anything, "x@sekolah.sch.id", "nope").
		Return(nil, errors.New("invalid login credentials")).Twice()
	mgr.Login(context.Background(), "x@sekolah.sch.id", "nope")

	assert.Equal(t, 2, selfCalls) // immediate + loading, then unsubscribed
	assert.Equal(t, 3, otherCalls) // immediate + loading + error

	// A second operation still notifies only the remaining listener
	mgr.Login(context.Background(), "x@sekolah.sch.id", "nope")
	assert.Equal(t, 2, selfCalls)
	assert.Equal(t, 5, otherCalls)
}

func TestManager_Refresh_NoUser(t *testing.T) {
	mgr, _, _, _ := newAnonymousManager(t)

	res := mgr.Refresh(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, "No user logged in", res.Error)
}
