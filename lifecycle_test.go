package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/campusboard/go-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUserStandingMachineTransitionToSuspendedSetsTimestamp(t *testing.T) {
	repo := &MockUsers{}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	user := &auth.User{
		ID:      uuid.New(),
		Enabled: true,
	}

	expected := &auth.User{
		ID:          user.ID,
		Enabled:     false,
		SuspendedAt: &now,
	}

	repo.On("UpdateStanding", mock.Anything, user.ID, auth.UserStandingSuspended, mock.Anything).
		Return(expected, nil).Once()

	sm := auth.NewUserStandingMachine(repo, auth.WithStandingMachineClock(func() time.Time { return now }))

	result, err := sm.Transition(context.Background(), auth.ActorRef{ID: "admin"}, user, auth.UserStandingSuspended)
	require.NoError(t, err)
	assert.Equal(t, auth.UserStandingSuspended, result.Standing())
	require.NotNil(t, result.SuspendedAt)
	assert.Equal(t, now, result.SuspendedAt.UTC())
	repo.AssertExpectations(t)
}

func TestUserStandingMachineRejectsInvalidTransition(t *testing.T) {
	repo := &MockUsers{}
	user := &auth.User{
		ID: uuid.New(), // pending: disabled, never suspended
	}

	sm := auth.NewUserStandingMachine(repo)

	_, err := sm.Transition(context.Background(), auth.ActorRef{}, user, auth.UserStandingSuspended)
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrInvalidTransition)
	repo.AssertNotCalled(t, "UpdateStanding", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUserStandingMachineSameStandingIsANoop(t *testing.T) {
	repo := &MockUsers{}
	user := &auth.User{
		ID:      uuid.New(),
		Enabled: true,
	}

	sm := auth.NewUserStandingMachine(repo)

	result, err := sm.Transition(context.Background(), auth.ActorRef{}, user, auth.UserStandingActive)
	require.NoError(t, err)
	assert.Same(t, user, result)
	repo.AssertNotCalled(t, "UpdateStanding", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUserStandingMachineForceTransitionBypassesValidation(t *testing.T) {
	repo := &MockUsers{}
	user := &auth.User{
		ID: uuid.New(),
	}

	ts := time.Now()
	repo.On("UpdateStanding", mock.Anything, user.ID, auth.UserStandingSuspended, mock.Anything).
		Return(&auth.User{ID: user.ID, SuspendedAt: &ts}, nil).Once()

	sm := auth.NewUserStandingMachine(repo)

	result, err := sm.Transition(
		context.Background(),
		auth.ActorRef{},
		user,
		auth.UserStandingSuspended,
		auth.WithForceTransition(),
	)
	require.NoError(t, err)
	assert.Equal(t, auth.UserStandingSuspended, result.Standing())
	repo.AssertExpectations(t)
}

func TestUserStandingMachineLeavingSuspendedClearsTimestamp(t *testing.T) {
	repo := &MockUsers{}
	now := time.Now()
	user := &auth.User{
		ID:          uuid.New(),
		SuspendedAt: &now,
	}

	repo.On("UpdateStanding", mock.Anything, user.ID, auth.UserStandingActive, mock.Anything).
		Return(&auth.User{ID: user.ID, Enabled: true}, nil).Once()

	sm := auth.NewUserStandingMachine(repo)

	result, err := sm.Transition(context.Background(), auth.ActorRef{}, user, auth.UserStandingActive)
	require.NoError(t, err)
	assert.Equal(t, auth.UserStandingActive, result.Standing())
	assert.Nil(t, result.SuspendedAt)
	repo.AssertExpectations(t)
}

func TestUserStandingMachineHonorsSuspensionTimeOverride(t *testing.T) {
	repo := &MockUsers{}
	user := &auth.User{
		ID:      uuid.New(),
		Enabled: true,
	}

	override := time.Date(2026, 3, 15, 8, 30, 0, 0, time.UTC)

	repo.On("UpdateStanding", mock.Anything, user.ID, auth.UserStandingSuspended, &override).
		Return(&auth.User{ID: user.ID, SuspendedAt: &override}, nil).Once()

	sm := auth.NewUserStandingMachine(repo)

	result, err := sm.Transition(
		context.Background(),
		auth.ActorRef{ID: "admin"},
		user,
		auth.UserStandingSuspended,
		auth.WithSuspensionTime(override),
	)
	require.NoError(t, err)
	require.NotNil(t, result.SuspendedAt)
	assert.Equal(t, override, *result.SuspendedAt)
	repo.AssertExpectations(t)
}

func TestUserStandingMachineRunsHooksWithMetadata(t *testing.T) {
	repo := &MockUsers{}
	user := &auth.User{
		ID:      uuid.New(),
		Enabled: true,
	}

	ts := time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)

	repo.On("UpdateStanding", mock.Anything, user.ID, auth.UserStandingSuspended, mock.Anything).
		Return(&auth.User{ID: user.ID, SuspendedAt: &ts}, nil).Once()

	var beforeCalled, afterCalled bool
	var reasonSeen string
	var metadataSeen map[string]any

	before := func(ctx context.Context, tc auth.TransitionContext) error {
		beforeCalled = true
		reasonSeen = tc.Meta.Reason
		metadataSeen = tc.Meta.Metadata
		return nil
	}
	after := func(ctx context.Context, tc auth.TransitionContext) error {
		afterCalled = true
		return nil
	}

	sm := auth.NewUserStandingMachine(repo, auth.WithStandingMachineClock(func() time.Time { return ts }))

	metadata := map[string]any{"ticket": "123"}

	_, err := sm.Transition(
		context.Background(),
		auth.ActorRef{ID: "admin"},
		user,
		auth.UserStandingSuspended,
		auth.WithTransitionReason("policy"),
		auth.WithTransitionMetadata(metadata),
		auth.WithBeforeTransitionHook(before),
		auth.WithAfterTransitionHook(after),
	)
	require.NoError(t, err)
	assert.True(t, beforeCalled)
	assert.True(t, afterCalled)
	assert.Equal(t, "policy", reasonSeen)
	require.NotNil(t, metadataSeen)
	assert.Equal(t, "123", metadataSeen["ticket"])
	repo.AssertExpectations(t)
}

func TestUserStandingMachineEmitsActivityEvent(t *testing.T) {
	repo := &MockUsers{}
	sink := &MockActivitySink{}
	now := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	user := &auth.User{
		ID:      uuid.New(),
		Enabled: true,
	}

	repo.On("UpdateStanding", mock.Anything, user.ID, auth.UserStandingSuspended, mock.Anything).
		Return(&auth.User{ID: user.ID, SuspendedAt: &now}, nil).Once()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(evt auth.ActivityEvent) bool {
		return evt.EventType == auth.ActivityEventUserStandingChanged &&
			evt.UserID == user.ID.String() &&
			evt.FromStanding == auth.UserStandingActive &&
			evt.ToStanding == auth.UserStandingSuspended
	})).Return(nil).Once()

	sm := auth.NewUserStandingMachine(
		repo,
		auth.WithStandingMachineClock(func() time.Time { return now }),
		auth.WithStandingMachineActivitySink(sink),
	)

	_, err := sm.Transition(context.Background(), auth.ActorRef{ID: "admin"}, user, auth.UserStandingSuspended)
	require.NoError(t, err)

	repo.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestUserStandingMachineHookErrorHandlerOverride(t *testing.T) {
	repo := &MockUsers{}
	user := &auth.User{
		ID:      uuid.New(),
		Enabled: true,
	}

	handled := false
	sm := auth.NewUserStandingMachine(repo,
		auth.WithStandingMachineHookErrorHandler(
			func(ctx context.Context, phase auth.TransitionHookPhase, err error, tc auth.TransitionContext) error {
				handled = true
				assert.Equal(t, auth.HookPhaseBefore, phase)
				return err
			},
		),
	)

	_, err := sm.Transition(
		context.Background(),
		auth.ActorRef{},
		user,
		auth.UserStandingSuspended,
		auth.WithBeforeTransitionHook(func(context.Context, auth.TransitionContext) error {
			return assert.AnError
		}),
	)
	require.ErrorIs(t, err, assert.AnError)
	assert.True(t, handled)
	repo.AssertNotCalled(t, "UpdateStanding", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
