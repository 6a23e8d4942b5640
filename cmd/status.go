package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/onefifth/internal/server"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		// List all jobs
		return listJobs(out, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}

	// Get specific job status
	jobID := args[0]
	return getJobStatus(out, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

func listJobs(out io.Writer, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []server.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Job ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Objective: %s (dim %d, %s)\n", job.Config.Objective, job.Config.Dim, job.Config.Rule)
		if job.Generation > 0 {
			fmt.Fprintf(out, "  Generation: %d\n", job.Generation)
			fmt.Fprintf(out, "  Fitness: %.6g -> %.6g\n", job.InitialFitness, job.BestFitness)
		}
		fmt.Fprintln(out)
	}

	return nil
}

// jobStatus mirrors the server's status response.
type jobStatus struct {
	server.Job
	Elapsed float64 `json:"elapsed"`
	EPS     float64 `json:"eps"`
}

func getJobStatus(out io.Writer, url, jobID string) error {
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

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	// Display status
	fmt.Fprintf(out, "Job: %s\n", status.ID)
	fmt.Fprintf(out, "State: %s\n", status.State)
	if status.ResumedFrom != "" {
		fmt.Fprintf(out, "Resumed from: %s\n", status.ResumedFrom)
	}
	fmt.Fprintln(out)

	config := status.Config
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Objective: %s\n", config.Objective)
	fmt.Fprintf(out, "  Dimension: %d\n", config.Dim)
	fmt.Fprintf(out, "  Rule: %s (%s)\n", config.Rule, config.Estimator)
	fmt.Fprintf(out, "  Sigma0: %g, c: %g, lambda: %d\n", config.Sigma0, config.C, config.Lambda)
	fmt.Fprintf(out, "  Generations: %d\n", config.Generations)
	fmt.Fprintf(out, "  Seed: %d\n", config.Seed)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Generation: %d\n", status.Generation)
	fmt.Fprintf(out, "  Evaluations: %d\n", status.Evaluations)
	if status.Generation > 0 {
		fmt.Fprintf(out, "  Initial Fitness: %.6g\n", status.InitialFitness)
		fmt.Fprintf(out, "  Best Fitness: %.6g\n", status.BestFitness)
		fmt.Fprintf(out, "  Sigma: %.4g\n", status.Sigma)
		fmt.Fprintf(out, "  Success Rate: %.3f\n", status.PSucc)
	}

	if status.Elapsed > 0 {
		elapsed := time.Duration(status.Elapsed * float64(time.Second))
		fmt.Fprintf(out, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	}

	if status.EPS > 0 {
		fmt.Fprintf(out, "  Throughput: %.0f evaluations/sec\n", status.EPS)
	}

	if status.StopReason != "" {
		fmt.Fprintf(out, "  Stop Reason: %s\n", status.StopReason)
	}

	if status.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", status.Error)
	}

	return nil
}
