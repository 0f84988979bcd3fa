package sheep

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
)

// BareSheep runs a worker as a plain OS subprocess, redirecting stdout/stderr
// to configured files (spec.md §4.2 Bare variant).
type BareSheep struct {
	base

	procMu sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

// NewBareSheep constructs a BareSheep from cfg. cfg.Bare must be set.
func NewBareSheep(cfg Config) *BareSheep {
	return &BareSheep{base: newBase(cfg)}
}

func (s *BareSheep) Configure(ctx context.Context, model Model) error {
	return configure(ctx, s, model)
}

// Start opens the stdout/stderr files, spawns the subprocess, and waits for
// handshake. If either file cannot be opened for append, Start fails with
// ErrConfiguration before the child is spawned (spec.md §4.2).
func (s *BareSheep) Start(ctx context.Context) error {
	params := s.cfg.Bare
	if params == nil {
		return fmt.Errorf("%w: bare sheep missing BareParams", ErrConfiguration)
	}
	if len(params.Command) == 0 {
		return fmt.Errorf("%w: bare sheep missing command", ErrConfiguration)
	}

	s.setState(StateStarting)

	stdout, err := openAppend(params.StdoutFile)
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("%w: open stdout file: %v", ErrConfiguration, err)
	}
	stderr, err := openAppend(params.StderrFile)
	if err != nil {
		stdout.Close()
		s.setState(StateFailed)
		return fmt.Errorf("%w: open stderr file: %v", ErrConfiguration, err)
	}

	cmd := exec.CommandContext(ctx, params.Command[0], params.Command[1:]...)
	cmd.Dir = params.WorkingDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = os.Environ()
	for k, v := range params.GPUEnv {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		s.setState(StateFailed)
		return fmt.Errorf("%w: spawn subprocess: %v", ErrConfiguration, err)
	}

	s.procMu.Lock()
	s.cmd = cmd
	s.exited = make(chan struct{})
	s.procMu.Unlock()

	go func() {
		_ = cmd.Wait()
		stdout.Close()
		stderr.Close()
		close(s.exited)
		if s.State() != StateStopping && s.State() != StateIdle {
			logging.Log.WithField("sheep_id", s.ID()).Warn("sheep subprocess exited unexpectedly")
			s.setState(StateFailed)
		}
	}()

	if err := awaitHandshake(ctx, s.cfg); err != nil {
		_ = cmd.Process.Kill()
		s.setState(StateFailed)
		return err
	}

	s.setState(StateReady)
	return nil
}

func (s *BareSheep) Stop(ctx context.Context) error {
	s.setState(StateStopping)
	s.procMu.Lock()
	cmd := s.cmd
	exited := s.exited
	s.procMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		s.setState(StateIdle)
		s.clearLoaded()
		return nil
	}

	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-exited:
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		<-exited
	case <-ctx.Done():
		_ = cmd.Process.Kill()
	}

	s.setState(StateIdle)
	s.clearLoaded()
	return nil
}

func (s *BareSheep) Slaughter(ctx context.Context) error {
	s.procMu.Lock()
	cmd := s.cmd
	s.procMu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	s.setState(StateIdle)
	s.clearLoaded()
	return nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

var _ Sheep = (*BareSheep)(nil)
