package sheep

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/catalystcommunity/app-utils-go/logging"
)

// DockerSheep runs a worker as a Docker container named "sheep-<id>", from
// the image "<ImagePrefix><model>:<version>" (spec.md §4.2 Docker variant).
type DockerSheep struct {
	base

	cli         *client.Client
	containerMu sync.Mutex
	containerID string
}

// NewDockerSheep constructs a DockerSheep from cfg using cli. cfg.Docker must
// be set.
func NewDockerSheep(cfg Config, cli *client.Client) *DockerSheep {
	return &DockerSheep{base: newBase(cfg), cli: cli}
}

func (s *DockerSheep) Configure(ctx context.Context, model Model) error {
	return configure(ctx, s, model)
}

// Start pulls (if needed) and runs the container for the sheep's currently
// loaded model. Returns ErrConfiguration if the image cannot be resolved or
// the container cannot be created/started, before anything is left running.
func (s *DockerSheep) Start(ctx context.Context) error {
	params := s.cfg.Docker
	if params == nil {
		return fmt.Errorf("%w: docker sheep missing DockerParams", ErrConfiguration)
	}
	if s.cfg.IORoot == "" {
		return fmt.Errorf("%w: docker sheep missing IORoot", ErrConfiguration)
	}
	model, ok := s.Loaded()
	if !ok {
		return fmt.Errorf("%w: docker sheep has no loaded model", ErrConfiguration)
	}

	s.setState(StateStarting)
	logger := logging.Log.WithField("sheep_id", s.ID())

	imageName := fmt.Sprintf("%s%s:%s", params.ImagePrefix, model.Name, model.Version)
	if err := s.ensureImage(ctx, imageName); err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("%w: ensure image %s: %v", ErrConfiguration, imageName, err)
	}

	containerName := fmt.Sprintf("sheep-%s", s.ID())
	containerCfg := &container.Config{
		Image: imageName,
		Labels: map[string]string{
			"shepherd.sheep_id": s.ID(),
			"shepherd.model":    model.Name,
			"shepherd.version":  model.Version,
		},
	}

	var deviceRequests []container.DeviceRequest
	if len(params.GPUDevices) > 0 {
		ids := make([]string, 0, len(params.GPUDevices))
		for _, dev := range params.GPUDevices {
			if n, ok := ExtractGPUNumber(dev); ok {
				ids = append(ids, n)
			}
		}
		if len(ids) > 0 {
			deviceRequests = append(deviceRequests, container.DeviceRequest{
				Driver:       "nvidia",
				DeviceIDs:    ids,
				Capabilities: [][]string{{"gpu"}},
			})
		}
	}

	hostCfg := &container.HostConfig{
		AutoRemove: false,
		// Bind IORoot into the container at the identical path: the
		// dispatcher hands the sheep process an absolute job directory
		// (messenger.InputMessage's ioDataRoot) that must resolve inside the
		// container the same way it does on the host, for both variants.
		Binds:         []string{fmt.Sprintf("%s:%s", s.cfg.IORoot, s.cfg.IORoot)},
		Resources:     container.Resources{DeviceRequests: deviceRequests},
		PortBindings:  nil,
		NetworkMode:   "bridge",
		RestartPolicy: container.RestartPolicy{Name: "no"},
	}

	resp, err := s.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, containerName)
	if err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("%w: create container: %v", ErrConfiguration, err)
	}

	if err := s.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = s.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		s.setState(StateFailed)
		return fmt.Errorf("%w: start container: %v", ErrConfiguration, err)
	}

	s.containerMu.Lock()
	s.containerID = resp.ID
	s.containerMu.Unlock()

	go s.watch(resp.ID)

	if err := awaitHandshake(ctx, s.cfg); err != nil {
		s.containerMu.Lock()
		s.containerID = ""
		s.containerMu.Unlock()
		_ = s.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		s.setState(StateFailed)
		return err
	}

	logger.WithField("container_id", resp.ID).Info("sheep container started")
	s.setState(StateReady)
	return nil
}

func (s *DockerSheep) watch(containerID string) {
	ctx := context.Background()
	statusCh, errCh := s.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			logging.Log.WithField("sheep_id", s.ID()).WithError(err).Warn("error waiting on sheep container")
		}
	case <-statusCh:
	}

	s.containerMu.Lock()
	current := s.containerID
	s.containerMu.Unlock()
	if current != containerID {
		return
	}
	if s.State() != StateStopping && s.State() != StateIdle {
		logging.Log.WithField("sheep_id", s.ID()).Warn("sheep container exited unexpectedly")
		s.setState(StateFailed)
	}
}

func (s *DockerSheep) Stop(ctx context.Context) error {
	s.setState(StateStopping)
	s.containerMu.Lock()
	id := s.containerID
	s.containerMu.Unlock()

	if id == "" {
		s.setState(StateIdle)
		s.clearLoaded()
		return nil
	}

	timeout := 10
	if err := s.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		logging.Log.WithField("sheep_id", s.ID()).WithError(err).Warn("error stopping sheep container")
	}
	_ = s.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})

	s.containerMu.Lock()
	s.containerID = ""
	s.containerMu.Unlock()

	s.setState(StateIdle)
	s.clearLoaded()
	return nil
}

func (s *DockerSheep) Slaughter(ctx context.Context) error {
	s.containerMu.Lock()
	id := s.containerID
	s.containerID = ""
	s.containerMu.Unlock()

	if id != "" {
		_ = s.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	}
	s.setState(StateIdle)
	s.clearLoaded()
	return nil
}

func (s *DockerSheep) ensureImage(ctx context.Context, imageName string) error {
	if _, _, err := s.cli.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}

	pullCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	pullResp, err := s.cli.ImagePull(pullCtx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer pullResp.Close()

	_, _ = io.Copy(io.Discard, pullResp)
	return nil
}

var _ Sheep = (*DockerSheep)(nil)
