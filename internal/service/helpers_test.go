package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/newsroom-auth/internal/database"
	"github.com/iliyamo/newsroom-auth/internal/mfa"
	"github.com/iliyamo/newsroom-auth/internal/queue"
	"github.com/iliyamo/newsroom-auth/internal/rbac"
	"github.com/iliyamo/newsroom-auth/internal/repository"
)

const testPassword = "Password1!"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeMailer struct {
	mu     sync.Mutex
	events []queue.MailEvent
	err    error
}

func (m *fakeMailer) Publish(_ context.Context, ev queue.MailEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func (m *fakeMailer) last(t *testing.T, typ queue.MailType) queue.MailEvent {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Type == typ {
			return m.events[i]
		}
	}
	t.Fatalf("no %s mail published", typ)
	return queue.MailEvent{}
}

func (m *fakeMailer) count(typ queue.MailType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type testEnv struct {
	users  *repository.UserRepo
	tokens *repository.TokenRepo
	roles  *repository.RoleRepo
	clock  *fakeClock
	mailer *fakeMailer
	engine *mfa.Engine

	auth     *AuthService
	tokenSvc *TokenService
	mfaSvc   *MFAService
	roleSvc  *RoleService
	userSvc  *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Options{Driver: database.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db, database.DriverSQLite))

	catalog, err := rbac.DefaultCatalog()
	require.NoError(t, err)
	roleRepo := repository.NewRoleRepo(db)
	require.NoError(t, roleRepo.Sync(ctx, catalog))

	env := &testEnv{
		users:  repository.NewUserRepo(db),
		tokens: repository.NewTokenRepo(db),
		roles:  roleRepo,
		clock:  &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		mailer: &fakeMailer{},
		engine: mfa.NewEngine("Newsroom"),
	}
	env.engine.BackupCost = bcrypt.MinCost
	logger := zap.NewNop()
	clock := Clock(env.clock.Now)

	env.tokenSvc = NewTokenService(TokenConfig{
		Secret:      []byte("test-secret"),
		AccessTTL:   15 * time.Minute,
		RememberTTL: 30 * 24 * time.Hour,
		SessionTTL:  24 * time.Hour,
	}, env.users, env.tokens, env.roles, logger)
	env.tokenSvc.Now = clock

	env.mfaSvc = NewMFAService(env.engine, env.users, logger)
	env.mfaSvc.Now = clock

	cfg := DefaultAuthConfig()
	cfg.BcryptCost = bcrypt.MinCost
	cfg.BaseURL = "https://news.example/"
	env.auth = NewAuthService(cfg, env.users, env.roles, env.tokenSvc, env.mfaSvc, env.mailer, logger)
	env.auth.Now = clock

	env.roleSvc = NewRoleService(env.roles, env.users, logger)
	env.roleSvc.Now = clock

	env.userSvc = NewUserService(env.users, env.roles, env.tokenSvc, logger)
	env.userSvc.Now = clock
	return env
}

func registerInput(email, username string) RegisterInput {
	return RegisterInput{
		Email:     email,
		Password:  testPassword,
		Username:  username,
		FirstName: "Alice",
		LastName:  "Liddell",
	}
}

// registerActive registers and verifies a user, returning its id.
func (e *testEnv) registerActive(t *testing.T, email, username string) uint64 {
	t.Helper()
	ctx := context.Background()
	u, err := e.auth.Register(ctx, registerInput(email, username))
	require.NoError(t, err)
	ev := e.mailer.last(t, queue.MailVerificationRequested)
	require.Equal(t, u.ID, ev.UserID)
	_, err = e.auth.VerifyEmail(ctx, ev.Token)
	require.NoError(t, err)
	return u.ID
}

func (e *testEnv) login(t *testing.T, email string, remember bool) *LoginResult {
	t.Helper()
	res, err := e.auth.Login(context.Background(), LoginInput{Email: email, Password: testPassword, RememberMe: remember})
	require.NoError(t, err)
	require.False(t, res.MFARequired)
	require.NotNil(t, res.Tokens)
	return res
}
