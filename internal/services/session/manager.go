// -----------------------------------------------------------------------
// Interactive Session Manager - provisions the virtual display / VNC /
// websocket bridge stack plus a headful browser for live human takeover.
// The display and both ports are statically reserved per container, so at
// most one session may hold them at a time.
// -----------------------------------------------------------------------

package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/models"
	"github.com/ternarybob/billfetch/internal/services/browser"
)

// Manager owns the single interactive-session slot.
type Manager struct {
	config common.SessionConfig
	pool   *browser.Pool
	logger arbor.ILogger

	mu      sync.Mutex
	current *sessionState

	// spawn is swappable for tests; defaults to StartProcess.
	spawn func(name string, settleDelay time.Duration, logger arbor.ILogger, command string, args ...string) (*ChildProcess, error)
}

// sessionState pairs the public session record with its owned resources.
type sessionState struct {
	session *models.InteractiveSession

	xvfb        *ChildProcess
	vnc         *ChildProcess
	bridge      *ChildProcess
	releasePage func()

	timeoutTimer *time.Timer
	tornDown     bool
}

// NewManager creates the session manager
func NewManager(config common.SessionConfig, pool *browser.Pool, logger arbor.ILogger) *Manager {
	return &Manager{
		config: config,
		pool:   pool,
		logger: logger,
		spawn:  StartProcess,
	}
}

// StartSession provisions the display stack and browser for one vendor.
// It rejects immediately, without side effects, while another session holds
// the slot.
func (m *Manager) StartSession(ctx context.Context, vendorKey, recordID string) (*models.InteractiveSession, string, error) {
	m.mu.Lock()
	if m.current != nil && m.current.session.Status.Occupies() {
		existing := m.current.session.Status
		m.mu.Unlock()
		m.logger.Warn().
			Str("vendor", vendorKey).
			Str("existing_status", string(existing)).
			Msg("Session slot occupied, rejecting")
		return nil, "", models.ErrSessionActive
	}

	token, err := common.NewSessionToken()
	if err != nil {
		m.mu.Unlock()
		return nil, "", fmt.Errorf("failed to generate session token: %w", err)
	}

	now := time.Now()
	state := &sessionState{
		session: &models.InteractiveSession{
			ID:         common.NewSessionID(),
			Token:      token,
			VendorKey:  vendorKey,
			RecordID:   recordID,
			Display:    m.config.Display,
			VNCPort:    m.config.VNCPort,
			BridgePort: m.config.BridgePort,
			Status:     models.SessionStarting,
			CreatedAt:  now,
			ExpiresAt:  now.Add(m.config.SessionTimeout),
		},
	}
	m.current = state
	m.mu.Unlock()

	if err := m.provision(ctx, state); err != nil {
		m.teardown(state, models.SessionFailed)
		return nil, "", err
	}

	m.mu.Lock()
	state.session.Status = models.SessionActive
	state.timeoutTimer = time.AfterFunc(m.config.SessionTimeout, func() {
		m.logger.Warn().Str("session_id", state.session.ID).Msg("Session hit hard timeout, tearing down")
		m.teardown(state, models.SessionFailed)
	})
	m.mu.Unlock()

	accessURL := fmt.Sprintf("%s/session/%s/bridge?token=%s", m.config.PublicBaseURL, state.session.ID, token)

	m.logger.Info().
		Str("session_id", state.session.ID).
		Str("vendor", vendorKey).
		Str("display", state.session.Display).
		Int("bridge_port", state.session.BridgePort).
		Msg("Interactive session active")

	return state.session, accessURL, nil
}

// provision starts, in order: Xvfb, the VNC server bound to the display,
// the websocket bridge in front of it, then the headful browser. Any
// failure tears down what already started, in reverse order.
func (m *Manager) provision(ctx context.Context, state *sessionState) error {
	display := state.session.Display
	settle := m.config.SettleDelay

	xvfb, err := m.spawn("Xvfb", settle, m.logger, "Xvfb", display, "-screen", "0", "1920x1080x24")
	if err != nil {
		return &models.ProvisioningError{Step: "virtual display", Err: err}
	}
	state.xvfb = xvfb

	vnc, err := m.spawn("x11vnc", settle, m.logger,
		"x11vnc", "-display", display, "-rfbport", strconv.Itoa(state.session.VNCPort), "-forever", "-nopw", "-shared")
	if err != nil {
		return &models.ProvisioningError{Step: "vnc server", Err: err}
	}
	state.vnc = vnc

	bridge, err := m.spawn("websockify", settle, m.logger,
		"websockify", strconv.Itoa(state.session.BridgePort), "localhost:"+strconv.Itoa(state.session.VNCPort))
	if err != nil {
		return &models.ProvisioningError{Step: "websocket bridge", Err: err}
	}
	state.bridge = bridge

	_, release, err := m.pool.AcquirePage(ctx, browser.PageOptions{
		Headful: true,
		Display: display,
	})
	if err != nil {
		return &models.ProvisioningError{Step: "browser", Err: err}
	}
	state.releasePage = release

	return nil
}

// Lookup resolves a session by id and token. A wrong token, an expired
// session, and an unknown id are deliberately the same error.
func (m *Manager) Lookup(sessionID, token string) (*models.InteractiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.current
	if state == nil || state.tornDown {
		return nil, models.ErrSessionNotFound
	}
	s := state.session
	if s.ID != sessionID || s.Token != token || time.Now().After(s.ExpiresAt) {
		return nil, models.ErrSessionNotFound
	}
	return s, nil
}

// Current returns the session occupying the slot, or nil.
func (m *Manager) Current() *models.InteractiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.tornDown {
		return nil
	}
	return m.current.session
}

// SetProcessing marks the session as processing (human handed back control).
func (m *Manager) SetProcessing(sessionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.current
	if state == nil || state.tornDown || state.session.ID != sessionID || state.session.Token != token {
		return models.ErrSessionNotFound
	}
	state.session.Status = models.SessionProcessing
	return nil
}

// Complete finishes the session normally and tears it down.
func (m *Manager) Complete(sessionID, token string) error {
	m.mu.Lock()
	state := m.current
	if state == nil || state.tornDown || state.session.ID != sessionID || state.session.Token != token {
		m.mu.Unlock()
		return models.ErrSessionNotFound
	}
	m.mu.Unlock()

	m.teardown(state, models.SessionCompleted)
	return nil
}

// Fail aborts the session and tears it down.
func (m *Manager) Fail(sessionID, token string) error {
	m.mu.Lock()
	state := m.current
	if state == nil || state.tornDown || state.session.ID != sessionID || state.session.Token != token {
		m.mu.Unlock()
		return models.ErrSessionNotFound
	}
	m.mu.Unlock()

	m.teardown(state, models.SessionFailed)
	return nil
}

// Close tears down any live session. Called at process shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	state := m.current
	m.mu.Unlock()

	if state != nil {
		m.teardown(state, models.SessionFailed)
	}
	return nil
}

// teardown releases the session's resources in reverse provisioning order.
// Idempotent: completion, failure, and timeout all funnel through here, and
// only the first call acts.
func (m *Manager) teardown(state *sessionState, final models.SessionStatus) {
	m.mu.Lock()
	if state.tornDown {
		m.mu.Unlock()
		return
	}
	state.tornDown = true
	state.session.Status = final

	if state.timeoutTimer != nil {
		state.timeoutTimer.Stop()
	}
	if m.current == state {
		m.current = nil
	}
	m.mu.Unlock()

	if state.releasePage != nil {
		state.releasePage()
		m.pool.CloseBrowser()
	}
	if state.bridge != nil {
		state.bridge.Stop(m.logger)
	}
	if state.vnc != nil {
		state.vnc.Stop(m.logger)
	}
	if state.xvfb != nil {
		state.xvfb.Stop(m.logger)
	}

	m.logger.Info().
		Str("session_id", state.session.ID).
		Str("final_status", string(final)).
		Msg("Interactive session torn down")
}
