package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/newtonls/internal/server"
)

var (
	serverURL    string
	wait         bool
	pollInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <optimization-id>",
	Short: "Query the status of a job on a running server",
	Long: `Fetches the status of an optimization job from a running server.
With --wait the server is polled until the job completes, fails or is
cancelled, and the final status is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	statusCmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job reaches a final status")
	statusCmd.Flags().DurationVar(&pollInterval, "interval", time.Second, "Polling interval for --wait")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	endpoint := fmt.Sprintf("%s/api/v1/status/%s", serverURL, url.PathEscape(args[0]))
	client := &http.Client{Timeout: 10 * time.Second}

	for {
		body, status, err := fetchStatus(client, endpoint)
		if err != nil {
			return err
		}
		if !wait || finished(status.Status) {
			var out bytes.Buffer
			if err := json.Indent(&out, body, "", "  "); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out.String())
			return err
		}

		logger.Info("Waiting for optimization", map[string]interface{}{
			"optimization_id": status.ID,
			"status":          status.Status,
			"iterations":      status.Iterations,
		})
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(pollInterval):
		}
	}
}

// fetchStatus returns the raw status document and its decoded form.
func fetchStatus(client *http.Client, endpoint string) ([]byte, server.StatusResult, error) {
	var status server.StatusResult

	logger.Debug("Querying server", map[string]interface{}{"url": endpoint})
	resp, err := client.Get(endpoint)
	if err != nil {
		return nil, status, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, status, fmt.Errorf("failed to read response: %w", err)
	}
	body = bytes.TrimSpace(body)
	if resp.StatusCode != http.StatusOK {
		return nil, status, fmt.Errorf("server returned %s: %s", resp.Status, body)
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, status, fmt.Errorf("failed to decode response: %w", err)
	}
	return body, status, nil
}

func finished(status string) bool {
	switch status {
	case server.StatusCompleted, server.StatusFailed, server.StatusCancelled:
		return true
	}
	return false
}
