package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avfarm/common/models"
)

var (
	jobsStatus string
	jobsLimit  int
	jobsWatch  bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List files in the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if jobsWatch {
			return watchLoop(printJobs)
		}
		return printJobs()
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status: pending, assigned, processing, completed, failed, skipped")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "Maximum number of files to display")
	jobsCmd.Flags().BoolVar(&jobsWatch, "watch", false, "Refresh every 2 seconds")
}

func printJobs() error {
	path := fmt.Sprintf("/admin/files?limit=%d", jobsLimit)
	if jobsStatus != "" {
		path += "&status=" + jobsStatus
	}

	var resp struct {
		Files []models.FileRecord `json:"files"`
		Count int                 `json:"count"`
	}
	if err := apiRequest("GET", path, nil, &resp); err != nil {
		return err
	}

	headers := []string{"ID", "Status", "Path", "Worker", "Attempts", "Savings%", "Updated"}
	rows := make([][]string, 0, len(resp.Files))
	for _, f := range resp.Files {
		path := f.Path
		if len(path) > 50 {
			path = "..." + path[len(path)-47:]
		}
		worker := f.AssignedWorkerID
		if worker == "" {
			worker = "-"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", f.ID),
			f.Status,
			path,
			worker,
			fmt.Sprintf("%d", f.AttemptCount),
			fmt.Sprintf("%.1f", f.SavingsPercent),
			f.UpdatedAt.Format("01-02 15:04:05"),
		})
	}

	return newOutput().Print(headers, rows, resp)
}
