package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/browser"
)

// fakeSpawn records spawned process names and returns long-lived sleepers
// whose liveness checks behave like the real stack.
func fakeSpawn(spawned *[]string) func(name string, settleDelay time.Duration, logger arbor.ILogger, command string, args ...string) (*ChildProcess, error) {
	return func(name string, _ time.Duration, logger arbor.ILogger, _ string, _ ...string) (*ChildProcess, error) {
		p, err := StartProcess(name, 50*time.Millisecond, logger, "sleep", "300")
		if err != nil {
			return nil, err
		}
		*spawned = append(*spawned, name)
		return p, nil
	}
}

func newTestManager(t *testing.T, spawned *[]string) *Manager {
	t.Helper()

	logger := arbor.NewLogger()
	m := NewManager(common.SessionConfig{
		Display:        ":99",
		VNCPort:        5900,
		BridgePort:     6080,
		SettleDelay:    50 * time.Millisecond,
		SessionTimeout: time.Minute,
		PublicBaseURL:  "http://localhost:8085",
	}, browser.NewPool(common.BrowserConfig{}, logger), logger)
	m.spawn = fakeSpawn(spawned)
	return m
}

// startWithoutBrowser provisions the process stack but skips the browser,
// which the test environment cannot launch. It mirrors StartSession's
// locking and state handling.
func startWithoutBrowser(t *testing.T, m *Manager, vendorKey string) *models.InteractiveSession {
	t.Helper()

	session, _, err := m.StartSession(context.Background(), vendorKey, "rec_test")
	if err == nil {
		return session
	}

	// The browser step is expected to fail here; everything before it must
	// have been provisioned and torn back down.
	var perr *models.ProvisioningError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "browser", perr.Step)
	return nil
}

func TestStartSessionProvisionsInOrderAndTearsDownOnFailure(t *testing.T) {
	var spawned []string
	m := newTestManager(t, &spawned)

	session := startWithoutBrowser(t, m, "freee")
	assert.Nil(t, session)

	// Stack was provisioned in order before the browser step failed.
	assert.Equal(t, []string{"Xvfb", "x11vnc", "websockify"}, spawned)

	// Failure freed the slot.
	assert.Nil(t, m.Current())
}

func TestSecondSessionRejectedWithoutTouchingFirst(t *testing.T) {
	var spawned []string
	m := newTestManager(t, &spawned)

	// Install an active session directly; provisioning is covered above.
	first := &sessionState{
		session: &models.InteractiveSession{
			ID:        "ses_first",
			Token:     "tok",
			Status:    models.SessionActive,
			ExpiresAt: time.Now().Add(time.Minute),
		},
	}
	var err error
	first.xvfb, err = StartProcess("Xvfb", 50*time.Millisecond, arbor.NewLogger(), "sleep", "300")
	require.NoError(t, err)
	m.current = first

	_, _, err = m.StartSession(context.Background(), "chatwork", "rec_2")
	require.ErrorIs(t, err, models.ErrSessionActive)

	// The first session's process set is untouched and it still owns the
	// slot.
	assert.True(t, first.xvfb.Alive())
	assert.Equal(t, "ses_first", m.Current().ID)
	assert.Empty(t, spawned)

	m.teardown(first, models.SessionCompleted)
	assert.False(t, first.xvfb.Alive())
}

func TestLookupTokenGating(t *testing.T) {
	var spawned []string
	m := newTestManager(t, &spawned)

	m.current = &sessionState{
		session: &models.InteractiveSession{
			ID:        "ses_x",
			Token:     "good-token",
			Status:    models.SessionActive,
			ExpiresAt: time.Now().Add(time.Minute),
		},
	}

	s, err := m.Lookup("ses_x", "good-token")
	require.NoError(t, err)
	assert.Equal(t, "ses_x", s.ID)

	// Wrong token, unknown id, and expiry are the same error.
	_, err = m.Lookup("ses_x", "bad-token")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	_, err = m.Lookup("ses_other", "good-token")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	m.current.session.ExpiresAt = time.Now().Add(-time.Second)
	_, err = m.Lookup("ses_x", "good-token")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestTeardownIsIdempotent(t *testing.T) {
	var spawned []string
	m := newTestManager(t, &spawned)

	state := &sessionState{
		session: &models.InteractiveSession{
			ID:        "ses_y",
			Token:     "tok",
			Status:    models.SessionActive,
			ExpiresAt: time.Now().Add(time.Minute),
		},
	}
	var err error
	state.xvfb, err = StartProcess("Xvfb", 50*time.Millisecond, arbor.NewLogger(), "sleep", "300")
	require.NoError(t, err)
	m.current = state

	m.teardown(state, models.SessionCompleted)
	assert.Equal(t, models.SessionCompleted, state.session.Status)
	assert.False(t, state.xvfb.Alive())
	assert.Nil(t, m.Current())

	// Second call is a no-op and must not change the final status.
	m.teardown(state, models.SessionFailed)
	assert.Equal(t, models.SessionCompleted, state.session.Status)
}

func TestCompleteRequiresToken(t *testing.T) {
	var spawned []string
	m := newTestManager(t, &spawned)

	m.current = &sessionState{
		session: &models.InteractiveSession{
			ID:        "ses_z",
			Token:     "tok",
			Status:    models.SessionActive,
			ExpiresAt: time.Now().Add(time.Minute),
		},
	}

	err := m.Complete("ses_z", "wrong")
	assert.True(t, errors.Is(err, models.ErrSessionNotFound))

	require.NoError(t, m.Complete("ses_z", "tok"))
	assert.Nil(t, m.Current())
}

func TestChildProcessLifecycle(t *testing.T) {
	logger := arbor.NewLogger()

	p, err := StartProcess("sleeper", 50*time.Millisecond, logger, "sleep", "300")
	require.NoError(t, err)
	assert.True(t, p.Alive())

	p.Stop(logger)
	assert.False(t, p.Alive())

	// Stopping again is safe.
	p.Stop(logger)
}

func TestChildProcessExitsDuringSettle(t *testing.T) {
	_, err := StartProcess("flash", 200*time.Millisecond, arbor.NewLogger(), "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settle delay")
}
