// Owned child-process handles for the interactive session stack. Each
// process gets a settle delay after spawn; exiting before the delay elapses
// counts as a provisioning failure.

package session

import (
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
)

// ChildProcess wraps one owned OS process.
type ChildProcess struct {
	Name string
	cmd  *exec.Cmd
}

// StartProcess spawns the command and waits out the settle delay, verifying
// the process is still alive afterwards.
func StartProcess(name string, settleDelay time.Duration, logger arbor.ILogger, command string, args ...string) (*ChildProcess, error) {
	cmd := exec.Command(command, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}

	// Reap the process when it exits so liveness checks stay accurate.
	go func() {
		_ = cmd.Wait()
	}()

	time.Sleep(settleDelay)

	p := &ChildProcess{Name: name, cmd: cmd}
	if !p.Alive() {
		return nil, fmt.Errorf("%s exited during its settle delay", name)
	}

	logger.Debug().
		Str("process", name).
		Int("pid", cmd.Process.Pid).
		Msg("Process started")

	return p, nil
}

// Alive reports whether the process is still running, via signal 0.
func (p *ChildProcess) Alive() bool {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return false
	}
	return p.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Stop terminates the process if it is still alive. Safe to call more than
// once and on an already-dead process.
func (p *ChildProcess) Stop(logger arbor.ILogger) {
	if !p.Alive() {
		return
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logger.Warn().Err(err).Str("process", p.Name).Msg("SIGTERM failed, killing")
		_ = p.cmd.Process.Kill()
		return
	}

	// Give it a moment, then force.
	for i := 0; i < 10; i++ {
		if !p.Alive() {
			logger.Debug().Str("process", p.Name).Msg("Process stopped")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	_ = p.cmd.Process.Kill()
	logger.Debug().Str("process", p.Name).Msg("Process killed after grace period")
}
