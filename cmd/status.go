package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or a specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listJobs(fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func listJobs(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Printf("Job ID: %s\n", job["id"])
		fmt.Printf("  State: %s\n", job["state"])
		if config, ok := job["config"].(map[string]interface{}); ok {
			fmt.Printf("  Expression: %s\n", config["expr"])
			fmt.Printf("  Interval: [%v, %v]\n", config["low"], config["high"])
		}
		if evals, ok := job["evaluations"].(float64); ok && evals > 0 {
			fmt.Printf("  Best: f(%.6g) = %.6g after %.0f evaluations\n",
				job["bestX"], job["bestValue"], evals)
		}
		fmt.Println()
	}

	return nil
}

func getJobStatus(url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Job: %s\n", status["id"])
	fmt.Printf("State: %s\n", status["state"])
	fmt.Println()

	if config, ok := status["config"].(map[string]interface{}); ok {
		fmt.Println("Configuration:")
		fmt.Printf("  Expression: %s\n", config["expr"])
		fmt.Printf("  Interval: [%v, %v]\n", config["low"], config["high"])
		fmt.Printf("  Max Evaluations: %v\n", config["maxEvals"])
		fmt.Println()
	}

	fmt.Println("Progress:")
	if evals, ok := status["evaluations"].(float64); ok {
		fmt.Printf("  Evaluations: %.0f\n", evals)
	}
	if x, ok := status["bestX"].(float64); ok {
		fmt.Printf("  Best X: %.10g\n", x)
	}
	if fx, ok := status["bestValue"].(float64); ok {
		fmt.Printf("  Best f(X): %.10g\n", fx)
	}
	if low, ok := status["low"].(float64); ok {
		if high, ok := status["high"].(float64); ok {
			fmt.Printf("  Bracket: [%.10g, %.10g] (width %.3g)\n", low, high, high-low)
		}
	}
	if converged, ok := status["converged"].(bool); ok && converged {
		fmt.Println("  Converged: yes")
	}
	if elapsed, ok := status["elapsed"].(float64); ok {
		fmt.Printf("  Elapsed: %s\n", time.Duration(elapsed*float64(time.Second)).Round(time.Millisecond))
	}
	if eps, ok := status["eps"].(float64); ok && eps > 0 {
		fmt.Printf("  Throughput: %.0f evaluations/sec\n", eps)
	}
	if errMsg, ok := status["error"].(string); ok && errMsg != "" {
		fmt.Printf("\nError: %s\n", errMsg)
	}

	return nil
}
