package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// StatusCommand prints a remote Shepherd dispatcher's fleet status.
var StatusCommand = &cli.Command{
	Name:  "status",
	Usage: "Show the status of a remote Shepherd dispatcher's sheep fleet",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "api-url",
			Aliases: []string{"u"},
			Usage:   "Shepherd API URL (e.g., http://localhost:8080)",
			EnvVars: []string{"SHEPHERD_API_URL"},
		},
	},
	Action: statusAction,
}

type statusUsage struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryRSSBytes uint64  `json:"memory_rss_bytes"`
}

type statusSheepBody struct {
	Running     bool            `json:"running"`
	Model       submitModelSpec `json:"model"`
	QueueLength int             `json:"queue_length"`
	InFlight    string          `json:"in_flight,omitempty"`
	Usage       *statusUsage    `json:"usage,omitempty"`
}

type statusResponse struct {
	Sheep map[string]statusSheepBody `json:"sheep"`
}

func statusAction(ctx *cli.Context) error {
	apiURL := strings.TrimSuffix(ctx.String("api-url"), "/")
	if apiURL == "" {
		return fmt.Errorf("API URL is required (use --api-url or SHEPHERD_API_URL)")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(apiURL + "/status")
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	if len(out.Sheep) == 0 {
		fmt.Println("no sheep registered")
		return nil
	}

	for id, s := range out.Sheep {
		state := "idle"
		if s.Running {
			state = "running"
		}
		fmt.Printf("%s: %s", id, state)
		if s.Model.Name != "" {
			fmt.Printf("  model=%s:%s", s.Model.Name, s.Model.Version)
		}
		fmt.Printf("  queue=%d", s.QueueLength)
		if s.InFlight != "" {
			fmt.Printf("  in_flight=%s", s.InFlight)
		}
		if s.Usage != nil {
			fmt.Printf("  cpu=%.1f%% rss=%dB", s.Usage.CPUPercent, s.Usage.MemoryRSSBytes)
		}
		fmt.Println()
	}
	return nil
}
