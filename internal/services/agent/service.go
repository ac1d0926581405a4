// -----------------------------------------------------------------------
// Agent Service - drives an optional external AI login helper. The helper
// is an operator-supplied executable that receives a JSON request on stdin,
// credentials via environment variables, and reports a JSON result on
// stdout. It attaches to the already-running browser over the DevTools
// protocol; this service only manages the subprocess lifecycle.
// -----------------------------------------------------------------------

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
)

// request is the JSON document written to the helper's stdin.
type request struct {
	LoginURL string `json:"login_url"`
	Username string `json:"username"`
}

// Service runs the external login helper as a bounded subprocess.
type Service struct {
	config common.AgentConfig
	logger arbor.ILogger
}

// NewService creates a new agent service
func NewService(config common.AgentConfig, logger arbor.ILogger) *Service {
	return &Service{config: config, logger: logger}
}

// Available reports whether a helper command is configured.
func (s *Service) Available() bool {
	return s.config.Command != ""
}

// AttemptLogin launches the helper and waits for its verdict. The password
// travels in the environment rather than the JSON payload so it never hits
// a pipe that might be logged.
func (s *Service) AttemptLogin(ctx context.Context, loginURL string, creds *models.Credentials) (*interfaces.AgentResult, error) {
	if !s.Available() {
		return nil, fmt.Errorf("login agent not configured")
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(request{
		LoginURL: loginURL,
		Username: creds.Username,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode agent request: %w", err)
	}

	parts := strings.Fields(s.config.Command)
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(),
		"BILLFETCH_AGENT_USERNAME="+creds.Username,
		"BILLFETCH_AGENT_PASSWORD="+creds.Password,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Info().Str("command", parts[0]).Msg("Launching login agent")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("login agent timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("login agent failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	result, err := parseResult(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Bool("success", result.Success).
		Str("message", result.Message).
		Msg("Login agent finished")

	return result, nil
}

// parseResult decodes the helper's stdout. The result is the last JSON line
// so the helper may emit progress lines before it.
func parseResult(out []byte) (*interfaces.AgentResult, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var result interfaces.AgentResult
		if err := json.Unmarshal([]byte(line), &result); err == nil {
			return &result, nil
		}
	}
	return nil, fmt.Errorf("login agent produced no parseable result")
}
