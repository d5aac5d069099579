package auth_test

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/campusboard/go-auth"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// MockAuthenticator implements auth.Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, identifier, password string) (string, error) {
	args := m.Called(ctx, identifier, password)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticator) SessionFromToken(token string) (auth.Session, error) {
	args := m.Called(token)
	var session auth.Session
	if v := args.Get(0); v != nil {
		session = v.(auth.Session)
	}
	return session, args.Error(1)
}

func (m *MockAuthenticator) IdentityFromSession(ctx context.Context, session auth.Session) (auth.Identity, error) {
	args := m.Called(ctx, session)
	var identity auth.Identity
	if v := args.Get(0); v != nil {
		identity = v.(auth.Identity)
	}
	return identity, args.Error(1)
}

// stubRouterContext records cookies, locals, and the request context so
// middleware behavior can be asserted without a running server. It embeds
// the interface; methods the suite never touches stay nil.
type routerContext = router.Context

type stubRouterContext struct {
	routerContext
	locals      map[string]any
	headers     map[string]string
	cookieVals  map[string]string
	cookies     []*router.Cookie
	redirects   []string
	stdCtx      context.Context
	nextCalled  bool
	method      string
	originalURL string
	referer     string
}

func newStubRouterContext() *stubRouterContext {
	return &stubRouterContext{
		locals:     map[string]any{},
		headers:    map[string]string{},
		cookieVals: map[string]string{},
		stdCtx:     context.Background(),
		method:     "GET",
	}
}

func (c *stubRouterContext) Next() error {
	c.nextCalled = true
	return nil
}

func (c *stubRouterContext) Context() context.Context { return c.stdCtx }

func (c *stubRouterContext) SetContext(ctx context.Context) { c.stdCtx = ctx }

func (c *stubRouterContext) Method() string { return c.method }

func (c *stubRouterContext) OriginalURL() string { return c.originalURL }

func (c *stubRouterContext) Referer() string { return c.referer }

func (c *stubRouterContext) GetString(key string, defaultValue string) string {
	if v, ok := c.headers[key]; ok {
		return v
	}
	return defaultValue
}

func (c *stubRouterContext) Locals(key any, value ...any) any {
	name, _ := key.(string)
	if len(value) > 0 {
		c.locals[name] = value[0]
		return value[0]
	}
	return c.locals[name]
}

func (c *stubRouterContext) Cookie(cookie *router.Cookie) {
	c.cookies = append(c.cookies, cookie)
	c.cookieVals[cookie.Name] = cookie.Value
}

func (c *stubRouterContext) Cookies(key string, defaultValue ...string) string {
	if v, ok := c.cookieVals[key]; ok && v != "" {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *stubRouterContext) Redirect(path string, status ...int) error {
	c.redirects = append(c.redirects, path)
	return nil
}

// lastCookie returns the most recent write for the named cookie.
func (c *stubRouterContext) lastCookie(name string) *router.Cookie {
	for i := len(c.cookies) - 1; i >= 0; i-- {
		if c.cookies[i].Name == name {
			return c.cookies[i]
		}
	}
	return nil
}

// MockIdentity implements auth.Identity for testing
type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockIdentity) Username() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockIdentity) Email() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockIdentity) Role() string {
	args := m.Called()
	return args.String(0)
}

// MockLogger implements auth.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

// MockActivitySink implements auth.ActivitySink for testing
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event auth.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockUsers embeds the repository interface so tests only stub the calls
// they expect; anything else panics loudly.
type MockUsers struct {
	auth.Users
	mock.Mock
}

func (m *MockUsers) UpdateStanding(ctx context.Context, id uuid.UUID, standing auth.UserStanding, suspendedAt *time.Time) (*auth.User, error) {
	args := m.Called(ctx, id, standing, suspendedAt)
	var user *auth.User
	if v := args.Get(0); v != nil {
		user = v.(*auth.User)
	}
	return user, args.Error(1)
}

// testConfig satisfies auth.Config with values the suite shares.
type testConfig struct {
	signingKey            string
	tokenExpiration       int
	extendedTokenDuration int
}

func newTestConfig() testConfig {
	return testConfig{
		signingKey:            "test-signing-key",
		tokenExpiration:       24,
		extendedTokenDuration: 72,
	}
}

func (c testConfig) GetSigningKey() string                 { return c.signingKey }
func (c testConfig) GetSigningMethod() string              { return "HS256" }
func (c testConfig) GetContextKey() string                 { return "user" }
func (c testConfig) GetTokenExpiration() int               { return c.tokenExpiration }
func (c testConfig) GetExtendedTokenDuration() int         { return c.extendedTokenDuration }
func (c testConfig) GetTokenLookup() string                { return "header:Authorization" }
func (c testConfig) GetAuthScheme() string                 { return "Bearer" }
func (c testConfig) GetIssuer() string                     { return "test-issuer" }
func (c testConfig) GetAudience() []string                 { return []string{"test-audience"} }
func (c testConfig) GetRejectedRouteKey() string           { return "rejected_route" }
func (c testConfig) GetRejectedRouteDefault() string       { return "/" }
func (c testConfig) GetVerificationCodeTTL() time.Duration { return auth.DefaultVerificationCodeTTL }
func (c testConfig) GetResetTokenTTL() time.Duration       { return auth.DefaultResetTokenTTL }

// recordingMailer captures outbound notifications so tests can read the
// codes and tokens that would have been emailed.
type recordingMailer struct {
	mu     sync.Mutex
	codes  map[string]string
	tokens map[string]string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{
		codes:  map[string]string{},
		tokens: map[string]string{},
	}
}

func (m *recordingMailer) SendVerificationCode(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[strings.ToLower(email)] = code
	return nil
}

func (m *recordingMailer) SendPasswordResetLink(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[strings.ToLower(email)] = token
	return nil
}

func (m *recordingMailer) CodeFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[strings.ToLower(email)]
}

func (m *recordingMailer) TokenFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[strings.ToLower(email)]
}

// memUsers is an in-memory repository with real compare-and-clear
// semantics, so single-use guarantees can be tested under concurrency.
// It embeds the interface; methods the suite never touches stay nil.
type memUsers struct {
	auth.Users
	mu      sync.Mutex
	records map[uuid.UUID]*auth.User
}

func newMemUsers(users ...*auth.User) *memUsers {
	s := &memUsers{records: map[uuid.UUID]*auth.User{}}
	for _, u := range users {
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		if u.Role == "" {
			u.Role = auth.RoleStudent
		}
		s.records[u.ID] = u
	}
	return s
}

func cloneUser(u *auth.User) *auth.User {
	cp := *u
	return &cp
}

func (s *memUsers) lookupLocked(identifier string) *auth.User {
	for _, u := range s.records {
		if u.ID.String() == identifier ||
			strings.EqualFold(u.Email, identifier) ||
			strings.EqualFold(u.Username, identifier) {
			return u
		}
	}
	return nil
}

func (s *memUsers) GetByIdentifier(_ context.Context, identifier string, _ ...repository.SelectCriteria) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.lookupLocked(identifier); u != nil {
		return cloneUser(u), nil
	}
	return nil, repository.NewRecordNotFound()
}

func (s *memUsers) GetByIdentifierTx(ctx context.Context, _ bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*auth.User, error) {
	return s.GetByIdentifier(ctx, identifier, criteria...)
}

func (s *memUsers) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.records {
		if u.ID.String() == id {
			return cloneUser(u), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (s *memUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.records {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (s *memUsers) GetByResetToken(_ context.Context, token string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		return nil, repository.NewRecordNotFound()
	}
	for _, u := range s.records {
		if u.Reset.Value == token {
			return cloneUser(u), nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

func (s *memUsers) Create(_ context.Context, record *auth.User, _ ...repository.InsertCriteria) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.Role == "" {
		record.Role = auth.RoleStudent
	}
	s.records[record.ID] = cloneUser(record)
	return record, nil
}

func (s *memUsers) CreateTx(ctx context.Context, _ bun.IDB, record *auth.User, criteria ...repository.InsertCriteria) (*auth.User, error) {
	return s.Create(ctx, record, criteria...)
}

func (s *memUsers) SetVerificationChallenge(_ context.Context, id uuid.UUID, challenge auth.Challenge) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	u.Verification = challenge
	return cloneUser(u), nil
}

func (s *memUsers) ConsumeVerificationCode(_ context.Context, id uuid.UUID, code string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.records[id]
	if !ok || u.Verification.Value == "" || u.Verification.Value != code {
		return nil, repository.NewRecordNotFound()
	}
	u.Enabled = true
	u.Verification = auth.Challenge{}
	return cloneUser(u), nil
}

func (s *memUsers) SetResetChallenge(_ context.Context, id uuid.UUID, challenge auth.Challenge) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	u.Reset = challenge
	return cloneUser(u), nil
}

func (s *memUsers) ConsumeResetToken(_ context.Context, id uuid.UUID, token, passwordHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.records[id]
	if !ok || u.Reset.Value == "" || u.Reset.Value != token {
		return nil, repository.NewRecordNotFound()
	}
	u.PasswordHash = passwordHash
	u.Reset = auth.Challenge{}
	return cloneUser(u), nil
}

func (s *memUsers) UpdateStanding(_ context.Context, id uuid.UUID, standing auth.UserStanding, suspendedAt *time.Time) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.records[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	u.Enabled = standing == auth.UserStandingActive
	if standing == auth.UserStandingSuspended {
		u.SuspendedAt = suspendedAt
	} else {
		u.SuspendedAt = nil
	}
	return cloneUser(u), nil
}

func (s *memUsers) TrackAttemptedLogin(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.records[user.ID]
	if !ok {
		return repository.NewRecordNotFound()
	}
	now := time.Now()
	u.LoginAttempts = user.LoginAttempts + 1
	u.LoginAttemptAt = &now
	return nil
}

func (s *memUsers) TrackSuccessfulLogin(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.records[user.ID]
	if !ok {
		return repository.NewRecordNotFound()
	}
	now := time.Now()
	u.LoginAttempts = 0
	u.LoginAttemptAt = nil
	u.LoggedInAt = &now
	return nil
}

func (s *memUsers) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

func (s *memUsers) Snapshot(id uuid.UUID) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.records[id]; ok {
		return cloneUser(u)
	}
	return nil
}

// memRepo exposes memUsers through the RepositoryManager surface.
type memRepo struct {
	users *memUsers
}

func newMemRepo(users ...*auth.User) *memRepo {
	return &memRepo{users: newMemUsers(users...)}
}

func (r *memRepo) Validate() error { return nil }

func (r *memRepo) MustValidate() {}

func (r *memRepo) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	var tx bun.Tx
	return f(ctx, tx)
}

func (r *memRepo) Users() auth.Users { return r.users }

// memTracker adapts memUsers to the narrower UserTracker store.
type memTracker struct {
	users *memUsers
}

func (t memTracker) GetByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	return t.users.GetByIdentifier(ctx, identifier)
}

func (t memTracker) TrackAttemptedLogin(ctx context.Context, user *auth.User) error {
	return t.users.TrackAttemptedLogin(ctx, user)
}

func (t memTracker) TrackSuccessfulLogin(ctx context.Context, user *auth.User) error {
	return t.users.TrackSuccessfulLogin(ctx, user)
}

const testPassword = "sup3r-secret-pass"

var (
	testPasswordHashOnce sync.Once
	testPasswordHashVal  string
	testPasswordHashErr  error
)

// testPasswordHash hashes testPassword once for the whole suite; bcrypt
// at production cost is too slow to rehash per test.
func testPasswordHash(t *testing.T) string {
	t.Helper()
	testPasswordHashOnce.Do(func() {
		testPasswordHashVal, testPasswordHashErr = auth.HashPassword(testPassword)
	})
	require.NoError(t, testPasswordHashErr)
	return testPasswordHashVal
}
