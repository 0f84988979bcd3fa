package sheep

import (
	"context"
	"errors"
	"time"

	"github.com/mild-blue/shepherd/internal/messenger"
)

// Kind distinguishes the two sheep variants spec.md §3 allows. The
// scheduler never branches on Kind — it only ever talks to the Sheep
// interface.
type Kind string

const (
	KindBare   Kind = "bare"
	KindDocker Kind = "docker"
)

// ErrConfiguration is returned by Start when the sheep cannot be launched at
// all (bad image, unlaunchable subprocess, unopenable log file) — maps to
// the SheepConfiguration error kind in spec.md §7.
var ErrConfiguration = errors.New("sheep configuration error")

// Endpoint is the communication endpoint the dispatcher binds a Messenger
// Socket to for this sheep.
type Endpoint struct {
	Host string
	Port int
}

// Config is a sheep's immutable registration data (spec.md §3).
type Config struct {
	ID       string
	Kind     Kind
	Endpoint Endpoint
	// Accepted is the set of (model, version) pairs this sheep may be
	// configured for; empty means "any".
	Accepted []Model
	// IORoot is the shared-filesystem directory under which per-job
	// input/output subdirectories are materialized.
	IORoot string

	// Socket is the Messenger endpoint the dispatcher bound for this sheep.
	// Start waits on it for the initial handshake before declaring Ready.
	Socket           *messenger.Socket
	HandshakeTimeout time.Duration

	Bare   *BareParams
	Docker *DockerParams
}

// BareParams are the bare-subprocess-specific launch parameters.
type BareParams struct {
	Command    []string
	WorkingDir string
	StdoutFile string
	StderrFile string
	// GPUEnv, when set, narrows GPU visibility via an environment variable
	// (e.g. CUDA_VISIBLE_DEVICES) injected into the subprocess.
	GPUEnv map[string]string
}

// DockerParams are the Docker-specific launch parameters.
type DockerParams struct {
	ImagePrefix string
	GPUDevices  []string // e.g. "/dev/nvidia0"
}

// Sheep is the uniform capability set the scheduler drives, regardless of
// kind (spec.md §4.2).
type Sheep interface {
	ID() string
	Config() Config

	// Configure pins the sheep to (model, version). A no-op if already
	// Ready with the same pair; otherwise forces Stopping -> Idle ->
	// Starting with the new model (spec.md §4.2 Reconfiguration).
	Configure(ctx context.Context, model Model) error

	// Start launches the subprocess/container and waits for the socket
	// handshake, transitioning Starting -> Ready, or Starting -> Failed on
	// timeout/exit. Returns ErrConfiguration if the sheep could not even be
	// launched.
	Start(ctx context.Context) error

	// Stop gracefully shuts the sheep down: Stopping -> Idle.
	Stop(ctx context.Context) error

	// Slaughter forcibly terminates the sheep immediately: any state -> Idle.
	Slaughter(ctx context.Context) error

	// Running reports whether the subprocess/container is alive AND the
	// socket has completed its handshake (State == Ready or Busy).
	Running() bool

	State() State
	Loaded() (Model, bool)

	// MarkBusy/MarkReady let the scheduler drive Busy<->Ready transitions
	// around message exchanges, without the Sheep implementation needing to
	// know about jobs.
	MarkBusy()
	MarkReady()
}
