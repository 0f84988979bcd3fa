package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mild-blue/shepherd/internal/sheep"
)

// FleetFile is the top-level shape of the YAML sheep-fleet declaration
// loaded at startup (spec.md §6).
type FleetFile struct {
	Sheep []SheepSpec `yaml:"sheep"`
}

// SheepSpec describes one configured sheep.
type SheepSpec struct {
	ID       string      `yaml:"id"`
	Kind     string      `yaml:"kind"` // "bare" or "docker"
	Host     string      `yaml:"host"`
	Port     int         `yaml:"port"`
	Accepted []ModelSpec `yaml:"accepted"`
	IORoot   string      `yaml:"io_root"`
	Bare     *BareSpec   `yaml:"bare,omitempty"`
	Docker   *DockerSpec `yaml:"docker,omitempty"`
}

type ModelSpec struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type BareSpec struct {
	Command    []string          `yaml:"command"`
	WorkingDir string            `yaml:"working_dir"`
	StdoutFile string            `yaml:"stdout_file"`
	StderrFile string            `yaml:"stderr_file"`
	GPUEnv     map[string]string `yaml:"gpu_env,omitempty"`
}

type DockerSpec struct {
	ImagePrefix string   `yaml:"image_prefix"`
	GPUDevices  []string `yaml:"gpu_devices,omitempty"`
}

// LoadFleet reads and parses the sheep-fleet YAML file at path.
func LoadFleet(path string) (FleetFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FleetFile{}, fmt.Errorf("config: read fleet file: %w", err)
	}
	var f FleetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return FleetFile{}, fmt.Errorf("config: parse fleet file: %w", err)
	}
	for i, s := range f.Sheep {
		if s.ID == "" {
			return FleetFile{}, fmt.Errorf("config: sheep at index %d missing id", i)
		}
		if s.Kind != "bare" && s.Kind != "docker" {
			return FleetFile{}, fmt.Errorf("config: sheep %q has invalid kind %q", s.ID, s.Kind)
		}
	}
	return f, nil
}

// ToSheepConfig converts a SheepSpec into the sheep.Config the worker
// packages consume.
func (s SheepSpec) ToSheepConfig() sheep.Config {
	accepted := make([]sheep.Model, 0, len(s.Accepted))
	for _, m := range s.Accepted {
		accepted = append(accepted, sheep.Model{Name: m.Name, Version: m.Version})
	}

	cfg := sheep.Config{
		ID:       s.ID,
		Kind:     sheep.Kind(s.Kind),
		Endpoint: sheep.Endpoint{Host: s.Host, Port: s.Port},
		Accepted: accepted,
		IORoot:   s.IORoot,
	}
	if s.Bare != nil {
		cfg.Bare = &sheep.BareParams{
			Command:    s.Bare.Command,
			WorkingDir: s.Bare.WorkingDir,
			StdoutFile: s.Bare.StdoutFile,
			StderrFile: s.Bare.StderrFile,
			GPUEnv:     s.Bare.GPUEnv,
		}
	}
	if s.Docker != nil {
		cfg.Docker = &sheep.DockerParams{
			ImagePrefix: s.Docker.ImagePrefix,
			GPUDevices:  s.Docker.GPUDevices,
		}
	}
	return cfg
}
