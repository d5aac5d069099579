package auth

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidTransition = "INVALID_USER_STANDING_TRANSITION"
)

// ErrInvalidTransition is returned when a requested standing change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid user standing transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor ActorRef
	User  *User
	From  UserStanding
	To    UserStanding
	Meta  TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes standing machine behavior.
type TransitionOption func(*transitionOptions)

// UserStandingMachine defines lifecycle operations for users.
type UserStandingMachine interface {
	Transition(ctx context.Context, actor ActorRef, user *User, target UserStanding, opts ...TransitionOption) (*User, error)
	CurrentStanding(user *User) UserStanding
}

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StandingMachineOption customizes standing machine construction.
type StandingMachineOption func(*userStandingMachine)

// WithStandingMachineClock injects a custom clock (useful for tests).
func WithStandingMachineClock(clock func() time.Time) StandingMachineOption {
	return func(sm *userStandingMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStandingMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStandingMachineActivitySink(sink ActivitySink) StandingMachineOption {
	return func(sm *userStandingMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStandingMachineHookErrorHandler overrides how hook failures are propagated.
// Provide a handler to convert hook errors into domain-specific responses,
// otherwise the default handler panics with guidance for developers.
func WithStandingMachineHookErrorHandler(handler HookErrorHandler) StandingMachineOption {
	return func(sm *userStandingMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStandingMachineLogger overrides the logger used for sink failures.
func WithStandingMachineLogger(logger Logger) StandingMachineOption {
	return func(sm *userStandingMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithForceTransition bypasses validation rules (use sparingly).
func WithForceTransition() TransitionOption {
	return func(opts *transitionOptions) {
		opts.force = true
	}
}

// WithBeforeTransitionHook adds a hook executed before the standing update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the standing update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// WithSuspensionTime overrides the timestamp recorded when entering the suspended standing.
func WithSuspensionTime(t time.Time) TransitionOption {
	return func(opts *transitionOptions) {
		opts.suspensionTime = &t
	}
}

// NewUserStandingMachine returns the default implementation backed by the provided repository.
func NewUserStandingMachine(users Users, opts ...StandingMachineOption) UserStandingMachine {
	sm := &userStandingMachine{
		users: users,
		transitions: map[UserStanding]map[UserStanding]struct{}{
			UserStandingPending: {
				UserStandingActive: {},
			},
			UserStandingActive: {
				UserStandingSuspended: {},
			},
			UserStandingSuspended: {
				UserStandingActive: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		hookErrorHandler: func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
			return defaultHookErrorHandler(ctx, phase, err, tc)
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type userStandingMachine struct {
	users            Users
	transitions      map[UserStanding]map[UserStanding]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata       TransitionMetadata
	force          bool
	beforeHooks    []TransitionHook
	afterHooks     []TransitionHook
	suspensionTime *time.Time
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *userStandingMachine) Transition(ctx context.Context, actor ActorRef, user *User, target UserStanding, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "user is nil",
		})
	}

	from := user.Standing()
	if target == "" {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "target standing is empty",
		})
	}

	if from == target {
		return user, nil
	}

	options := sm.buildTransitionOptions(opts...)

	if !options.force && !sm.canTransition(from, target) {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	ctxData := TransitionContext{
		Actor: actor,
		User:  user,
		From:  from,
		To:    target,
		Meta:  options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
		return nil, err
	}

	chosenSuspension := sm.suspensionTimestamp(user, target, options)

	updated, err := sm.users.UpdateStanding(ctx, user.ID, target, chosenSuspension)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(user, updated, target, chosenSuspension)

	if err := sm.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:    ActivityEventUserStandingChanged,
		Actor:        actor,
		UserID:       user.ID.String(),
		FromStanding: from,
		ToStanding:   target,
		Metadata:     sm.transitionMetadata(ctxData.Meta),
	})

	return user, nil
}

func (sm *userStandingMachine) CurrentStanding(user *User) UserStanding {
	if user == nil {
		return ""
	}
	return user.Standing()
}

func (sm *userStandingMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *userStandingMachine) canTransition(from, to UserStanding) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *userStandingMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *userStandingMachine) suspensionTimestamp(user *User, to UserStanding, opts *transitionOptions) *time.Time {
	if to != UserStandingSuspended {
		return nil
	}

	switch {
	case opts.suspensionTime != nil:
		return opts.suspensionTime
	case user.SuspendedAt != nil:
		return user.SuspendedAt
	default:
		now := sm.now()
		return &now
	}
}

func defaultHookErrorHandler(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
	panic(fmt.Sprintf(
		"auth: %s transition hook failed: %v\nUserID: %s from=%s to=%s reason=%s\nProvide auth.WithStandingMachineHookErrorHandler to customize error handling in production.",
		phase,
		err,
		tc.User.ID,
		tc.From,
		tc.To,
		tc.Meta.Reason,
	))
}

func (sm *userStandingMachine) applyUpdates(user, updated *User, target UserStanding, suspensionTime *time.Time) {
	if updated != nil {
		user.Enabled = updated.Enabled
		user.SuspendedAt = updated.SuspendedAt
		return
	}

	user.Enabled = target == UserStandingActive
	if target == UserStandingSuspended {
		user.SuspendedAt = suspensionTime
	} else {
		user.SuspendedAt = nil
	}
}

func (sm *userStandingMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("standing machine activity sink error: %v", err)
	}
}

func (sm *userStandingMachine) transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
