package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mild-blue/shepherd/internal/sheep"
)

func writeFleetFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadFleetParsesValidDeclaration(t *testing.T) {
	path := writeFleetFile(t, `
sheep:
  - id: s1
    kind: bare
    host: 127.0.0.1
    port: 9001
    io_root: /tmp/s1
    accepted:
      - name: whisper
        version: "1"
    bare:
      command: ["./run.sh"]
      working_dir: /opt/s1
      stdout_file: /var/log/s1.out
      stderr_file: /var/log/s1.err
  - id: s2
    kind: docker
    host: 127.0.0.1
    port: 9002
    io_root: /tmp/s2
    docker:
      image_prefix: shepherd/sheep
      gpu_devices: ["0"]
`)

	f, err := LoadFleet(path)
	require.NoError(t, err)
	require.Len(t, f.Sheep, 2)
	assert.Equal(t, "s1", f.Sheep[0].ID)
	assert.Equal(t, "bare", f.Sheep[0].Kind)
	assert.Equal(t, "docker", f.Sheep[1].Kind)
	assert.Equal(t, []string{"0"}, f.Sheep[1].Docker.GPUDevices)
}

func TestLoadFleetRejectsMissingID(t *testing.T) {
	path := writeFleetFile(t, `
sheep:
  - kind: bare
    host: 127.0.0.1
    port: 9001
`)
	_, err := LoadFleet(path)
	require.Error(t, err)
}

func TestLoadFleetRejectsInvalidKind(t *testing.T) {
	path := writeFleetFile(t, `
sheep:
  - id: s1
    kind: vm
    host: 127.0.0.1
    port: 9001
`)
	_, err := LoadFleet(path)
	require.Error(t, err)
}

func TestLoadFleetRejectsMissingFile(t *testing.T) {
	_, err := LoadFleet(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestSheepSpecToSheepConfigConvertsAllFields(t *testing.T) {
	spec := SheepSpec{
		ID:     "s1",
		Kind:   "bare",
		Host:   "127.0.0.1",
		Port:   9001,
		IORoot: "/tmp/s1",
		Accepted: []ModelSpec{
			{Name: "whisper", Version: "1"},
		},
		Bare: &BareSpec{
			Command:    []string{"./run.sh"},
			WorkingDir: "/opt/s1",
			StdoutFile: "/var/log/s1.out",
			StderrFile: "/var/log/s1.err",
			GPUEnv:     map[string]string{"CUDA_VISIBLE_DEVICES": "0"},
		},
	}

	cfg := spec.ToSheepConfig()
	assert.Equal(t, "s1", cfg.ID)
	assert.Equal(t, sheep.Kind("bare"), cfg.Kind)
	assert.Equal(t, sheep.Endpoint{Host: "127.0.0.1", Port: 9001}, cfg.Endpoint)
	assert.Equal(t, []sheep.Model{{Name: "whisper", Version: "1"}}, cfg.Accepted)
	require.NotNil(t, cfg.Bare)
	assert.Equal(t, []string{"./run.sh"}, cfg.Bare.Command)
	assert.Equal(t, "0", cfg.Bare.GPUEnv["CUDA_VISIBLE_DEVICES"])
	assert.Nil(t, cfg.Docker)
}

func TestSheepSpecToSheepConfigDockerVariant(t *testing.T) {
	spec := SheepSpec{
		ID:   "s2",
		Kind: "docker",
		Docker: &DockerSpec{
			ImagePrefix: "shepherd/sheep",
			GPUDevices:  []string{"0", "1"},
		},
	}

	cfg := spec.ToSheepConfig()
	require.NotNil(t, cfg.Docker)
	assert.Equal(t, "shepherd/sheep", cfg.Docker.ImagePrefix)
	assert.Equal(t, []string{"0", "1"}, cfg.Docker.GPUDevices)
	assert.Nil(t, cfg.Bare)
}
