package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/avfarm/cli/commands/formatter"
)

var (
	coordinatorURL string
	outputFormat   string
	apiKey         string
)

var rootCmd = &cobra.Command{
	Use:   "avfarmctl",
	Short: "Operate and inspect an avfarm coordinator",
}

// Execute runs the CLI; main just forwards os.Args and reports the error.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&coordinatorURL, "coordinator-url", "http://localhost:8080", "Coordinator base URL")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, csv")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Bearer token, if the coordinator requires one")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(priorityCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(fadeOutCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(configCmd)
}

func newOutput() *formatter.Output {
	return formatter.New(os.Stdout, formatter.ParseFormat(outputFormat))
}

// apiRequest issues an HTTP request against the coordinator and decodes a
// JSON response into out (if non-nil).
func apiRequest(method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, coordinatorURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach coordinator at %s: %w", coordinatorURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("coordinator returned %s: %s", resp.Status, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse coordinator response: %w", err)
	}
	return nil
}
