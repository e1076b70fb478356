package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/newsroom-auth/internal/utils"
)

func TestRefresh_RotatesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.registerActive(t, "alice@x.com", "alice")
	ctx := context.Background()
	first := env.login(t, "alice@x.com", false)

	env.clock.Advance(time.Minute)
	second, u, err := env.tokenSvc.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", u.Email)
	assert.NotEqual(t, first.Tokens.RefreshToken, second.RefreshToken)

	// Second use of the same token fails even though it has not expired.
	_, _, err = env.tokenSvc.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefresh)

	_, _, err = env.tokenSvc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_LifetimePolicy(t *testing.T) {
	env := newTestEnv(t)
	env.registerActive(t, "alice@x.com", "alice")
	ctx := context.Background()
	now := env.clock.Now()

	session := env.login(t, "alice@x.com", false)
	assert.True(t, now.Add(24*time.Hour).Equal(session.Tokens.RefreshExpiresAt))

	remembered := env.login(t, "alice@x.com", true)
	assert.True(t, now.Add(30*24*time.Hour).Equal(remembered.Tokens.RefreshExpiresAt))

	// Rotation keeps the remember-me lifetime.
	env.clock.Advance(48 * time.Hour)
	rotated, _, err := env.tokenSvc.Refresh(ctx, remembered.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.True(t, env.clock.Now().Add(30*24*time.Hour).Equal(rotated.RefreshExpiresAt))

	// The session token expired after 24h.
	_, _, err = env.tokenSvc.Refresh(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRefresh_RejectsUnknownAndEmpty(t *testing.T) {
	env := newTestEnv(t)
	for _, raw := range []string{"", "   ", "deadbeef"} {
		_, _, err := env.tokenSvc.Refresh(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidRefresh, raw)
	}
}

func TestRefresh_RefusesLockedUser(t *testing.T) {
	env := newTestEnv(t)
	env.registerActive(t, "alice@x.com", "alice")
	ctx := context.Background()
	session := env.login(t, "alice@x.com", false)

	for i := 0; i < 5; i++ {
		_, _ = env.auth.Login(ctx, LoginInput{Email: "alice@x.com", Password: "nope"})
	}
	_, _, err := env.tokenSvc.Refresh(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRefresh_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	env.registerActive(t, "alice@x.com", "alice")
	session := env.login(t, "alice@x.com", false)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		rejects int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := env.tokenSvc.Refresh(context.Background(), session.Tokens.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, ErrInvalidRefresh) {
				rejects++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, rejects)
}

func TestVerify_FailsClosed(t *testing.T) {
	env := newTestEnv(t)
	env.registerActive(t, "alice@x.com", "alice")
	session := env.login(t, "alice@x.com", false)

	_, err := env.tokenSvc.Verify(session.Tokens.AccessToken)
	require.NoError(t, err)

	_, err = env.tokenSvc.Verify("garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	forged, err := utils.NewAccessToken([]byte("other-secret"), 1, utils.AccessClaims{Role: "super_admin"}, env.clock.Now(), time.Minute)
	require.NoError(t, err)
	_, err = env.tokenSvc.Verify(forged.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	env.clock.Advance(15 * time.Minute)
	_, err = env.tokenSvc.Verify(session.Tokens.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCleanup(t *testing.T) {
	env := newTestEnv(t)
	env.registerActive(t, "alice@x.com", "alice")
	ctx := context.Background()
	env.login(t, "alice@x.com", false)
	live := env.login(t, "alice@x.com", true)

	env.clock.Advance(72 * time.Hour)
	n, err := env.tokenSvc.Cleanup(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, _, err = env.tokenSvc.Refresh(ctx, live.Tokens.RefreshToken)
	require.NoError(t, err)
}
