package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

// SubmitCommand submits a job to a remote Shepherd dispatcher's API Facade.
var SubmitCommand = &cli.Command{
	Name:      "submit",
	Usage:     "Submit a job to a remote Shepherd dispatcher",
	ArgsUsage: "<job-id> <sheep-id> <model-name> <model-version>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "api-url",
			Aliases: []string{"u"},
			Usage:   "Shepherd API URL (e.g., http://localhost:8080)",
			EnvVars: []string{"SHEPHERD_API_URL"},
		},
		&cli.StringFlag{
			Name:  "payload-bucket",
			Usage: "Bucket/prefix holding the job's input payload",
		},
		&cli.StringFlag{
			Name:  "payload-key",
			Usage: "Object key of the job's input payload",
		},
		&cli.StringFlag{
			Name:  "result-bucket",
			Usage: "Bucket/prefix to upload the job's result to",
		},
		&cli.StringFlag{
			Name:  "result-key",
			Usage: "Object key the job's result will be uploaded as",
		},
		&cli.BoolFlag{
			Name:    "wait",
			Aliases: []string{"w"},
			Usage:   "Wait for the job to reach a terminal state and print its outcome",
		},
		&cli.IntFlag{
			Name:  "wait-timeout",
			Value: 300,
			Usage: "Seconds to wait for the job when using --wait (a single wait request)",
		},
	},
	Action: submitAction,
}

type submitModelSpec struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type submitLocation struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

type startJobRequest struct {
	ID      string          `json:"id"`
	SheepID string          `json:"sheep_id"`
	Model   submitModelSpec `json:"model"`
	Payload submitLocation  `json:"payload"`
	Result  submitLocation  `json:"result"`
}

type waitResponse struct {
	State string `json:"state"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type apiErrorBody struct {
	Message string `json:"message"`
}

func submitAction(ctx *cli.Context) error {
	if ctx.NArg() < 4 {
		return fmt.Errorf("usage: shepherd submit <job-id> <sheep-id> <model-name> <model-version>")
	}

	apiURL := strings.TrimSuffix(ctx.String("api-url"), "/")
	if apiURL == "" {
		return fmt.Errorf("API URL is required (use --api-url or SHEPHERD_API_URL)")
	}

	req := startJobRequest{
		ID:      ctx.Args().Get(0),
		SheepID: ctx.Args().Get(1),
		Model:   submitModelSpec{Name: ctx.Args().Get(2), Version: ctx.Args().Get(3)},
		Payload: submitLocation{Bucket: ctx.String("payload-bucket"), Key: ctx.String("payload-key")},
		Result:  submitLocation{Bucket: ctx.String("result-bucket"), Key: ctx.String("result-key")},
	}

	fmt.Printf("Submitting job %q to sheep %q\n", req.ID, req.SheepID)
	if err := postStartJob(apiURL, req); err != nil {
		return fmt.Errorf("failed to submit job: %w", err)
	}
	fmt.Println("Job accepted")

	if !ctx.Bool("wait") {
		return nil
	}

	fmt.Println("Waiting for completion...")
	start := time.Now()
	resp, err := waitForJob(apiURL, req.ID, ctx.Int("wait-timeout"))
	if err != nil {
		return fmt.Errorf("failed while waiting for job: %w", err)
	}

	fmt.Printf("Job %s after %s\n", resp.State, time.Since(start).Round(time.Second))
	if resp.Error != nil {
		fmt.Printf("  error: %s\n", resp.Error.Message)
	}
	if resp.State != "Done" {
		return cli.Exit("", 1)
	}
	return nil
}

func postStartJob(apiURL string, req startJobRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, apiURL+"/start-job", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func waitForJob(apiURL, jobID string, timeoutSeconds int) (*waitResponse, error) {
	url := fmt.Sprintf("%s/jobs/%s/wait?timeout=%d", apiURL, jobID, timeoutSeconds)

	client := &http.Client{Timeout: time.Duration(timeoutSeconds+10) * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("get job wait: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var out waitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &out, nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return fmt.Errorf("api error (%d): %s", resp.StatusCode, parsed.Message)
	}
	return fmt.Errorf("api error (%d): %s", resp.StatusCode, string(body))
}
