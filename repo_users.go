package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SetVerificationChallengeSQL overwrites the verification slot in one
// statement so the code and its expiry never disagree.
var SetVerificationChallengeSQL = `UPDATE "users" AS "usr"
SET
	"verification_value" = ?,
	"verification_expires_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// ConsumeVerificationCodeSQL is a compare-and-clear update: it only fires
// when the stored code still matches, clears the slot, and enables the
// account. Zero rows back means another request consumed the code first.
var ConsumeVerificationCodeSQL = `UPDATE "users" AS "usr"
SET
	"enabled" = TRUE,
	"verification_value" = '',
	"verification_expires_at" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
AND "usr"."verification_value" = ?
RETURNING *;`

// SetResetChallengeSQL overwrites the reset slot, discarding any previous
// open window for the account.
var SetResetChallengeSQL = `UPDATE "users" AS "usr"
SET
	"reset_value" = ?,
	"reset_expires_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// ConsumeResetTokenSQL swaps the password hash and clears the reset slot
// only while the stored token still matches.
var ConsumeResetTokenSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"reset_value" = '',
	"reset_expires_at" = NULL
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
AND "usr"."reset_value" = ?
RETURNING *;`

// UpdateStandingSQL persists the columns a standing maps to.
var UpdateStandingSQL = `UPDATE "users" AS "usr"
SET
	"enabled" = ?,
	"suspended_at" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

type Users interface {
	repository.Repository[*User]

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByPendingCode(ctx context.Context, code string) (*User, error)
	GetByResetToken(ctx context.Context, token string) (*User, error)

	SetVerificationChallenge(ctx context.Context, id uuid.UUID, challenge Challenge) (*User, error)
	SetVerificationChallengeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, challenge Challenge) (*User, error)
	ConsumeVerificationCode(ctx context.Context, id uuid.UUID, code string) (*User, error)
	ConsumeVerificationCodeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string) (*User, error)

	SetResetChallenge(ctx context.Context, id uuid.UUID, challenge Challenge) (*User, error)
	SetResetChallengeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, challenge Challenge) (*User, error)
	ConsumeResetToken(ctx context.Context, id uuid.UUID, token, passwordHash string) (*User, error)
	ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token, passwordHash string) (*User, error)

	UpdateStanding(ctx context.Context, id uuid.UUID, standing UserStanding, suspendedAt *time.Time) (*User, error)
	UpdateStandingTx(ctx context.Context, tx bun.IDB, id uuid.UUID, standing UserStanding, suspendedAt *time.Time) (*User, error)
	Suspend(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)
	Reinstate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db                     *bun.DB
	standingMachine        UserStandingMachine
	standingMachineOptions []StandingMachineOption
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func WithUsersStandingMachineOptions(options ...StandingMachineOption) UsersOption {
	return func(u *users) {
		if len(options) == 0 {
			return
		}
		u.standingMachineOptions = append(u.standingMachineOptions, options...)
		u.standingMachine = nil
	}
}

func WithUsersStandingMachine(sm UserStandingMachine) UsersOption {
	return func(u *users) {
		u.standingMachine = sm
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	return a.CreateTx(ctx, tx, user)
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	options := resolveUserIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		where := fmt.Sprintf("?TableAlias.%s = ?", opt.column)
		if opt.foldCase {
			where = fmt.Sprintf("LOWER(?TableAlias.%s) = LOWER(?)", opt.column)
		}

		err := q.
			Where(where, opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.getByColumn(ctx, "email", email, true)
}

func (a *users) GetByPendingCode(ctx context.Context, code string) (*User, error) {
	return a.getByColumn(ctx, "verification_value", code, false)
}

func (a *users) GetByResetToken(ctx context.Context, token string) (*User, error) {
	return a.getByColumn(ctx, "reset_value", token, false)
}

func (a *users) getByColumn(ctx context.Context, column, value string, foldCase bool) (*User, error) {
	if strings.TrimSpace(value) == "" {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{column: value})
	}

	where := fmt.Sprintf("?TableAlias.%s = ?", column)
	if foldCase {
		where = fmt.Sprintf("LOWER(?TableAlias.%s) = LOWER(?)", column)
	}

	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where(where, value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) SetVerificationChallenge(ctx context.Context, id uuid.UUID, challenge Challenge) (*User, error) {
	return a.SetVerificationChallengeTx(ctx, a.db, id, challenge)
}

func (a *users) SetVerificationChallengeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, challenge Challenge) (*User, error) {
	return a.execChallengeSQL(ctx, tx, SetVerificationChallengeSQL, challenge.Value, challenge.ExpiresAt, id.String())
}

func (a *users) ConsumeVerificationCode(ctx context.Context, id uuid.UUID, code string) (*User, error) {
	return a.ConsumeVerificationCodeTx(ctx, a.db, id, code)
}

func (a *users) ConsumeVerificationCodeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string) (*User, error) {
	return a.execChallengeSQL(ctx, tx, ConsumeVerificationCodeSQL, id.String(), code)
}

func (a *users) SetResetChallenge(ctx context.Context, id uuid.UUID, challenge Challenge) (*User, error) {
	return a.SetResetChallengeTx(ctx, a.db, id, challenge)
}

func (a *users) SetResetChallengeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, challenge Challenge) (*User, error) {
	return a.execChallengeSQL(ctx, tx, SetResetChallengeSQL, challenge.Value, challenge.ExpiresAt, id.String())
}

func (a *users) ConsumeResetToken(ctx context.Context, id uuid.UUID, token, passwordHash string) (*User, error) {
	return a.ConsumeResetTokenTx(ctx, a.db, id, token, passwordHash)
}

func (a *users) ConsumeResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token, passwordHash string) (*User, error) {
	return a.execChallengeSQL(ctx, tx, ConsumeResetTokenSQL, passwordHash, id.String(), token)
}

func (a *users) execChallengeSQL(ctx context.Context, tx bun.IDB, sql string, args ...any) (*User, error) {
	res, err := a.Repository.RawTx(ctx, tx, sql, args...)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound()
	}

	return res[0], nil
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, user.ID).Exec(ctx)

	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(user.ID.String()),
	}

	record := &User{}
	record.ID = user.ID
	record.LoginAttempts = user.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func (a *users) UpdateStanding(ctx context.Context, id uuid.UUID, standing UserStanding, suspendedAt *time.Time) (*User, error) {
	return a.UpdateStandingTx(ctx, a.db, id, standing, suspendedAt)
}

func (a *users) UpdateStandingTx(ctx context.Context, tx bun.IDB, id uuid.UUID, standing UserStanding, suspendedAt *time.Time) (*User, error) {
	enabled := standing == UserStandingActive
	if standing != UserStandingSuspended {
		suspendedAt = nil
	}

	return a.execChallengeSQL(ctx, tx, UpdateStandingSQL, enabled, suspendedAt, id.String())
}

func (a *users) Suspend(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStandingSuspended, opts...)
}

func (a *users) Reinstate(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) (*User, error) {
	return a.lifecycleMachine().Transition(ctx, actor, user, UserStandingActive, opts...)
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleStudent
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column   string
	value    string
	foldCase bool
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column:   "email",
			value:    trimmed,
			foldCase: true,
		})
	}

	options = append(options, identifierOption{
		column:   "username",
		value:    trimmed,
		foldCase: true,
	})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}

func (a *users) lifecycleMachine() UserStandingMachine {
	if a.standingMachine == nil {
		a.standingMachine = NewUserStandingMachine(a, a.standingMachineOptions...)
	}
	return a.standingMachine
}
