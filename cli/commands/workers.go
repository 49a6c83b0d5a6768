package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avfarm/common/models"
)

var fadeOutOff bool

var fadeOutCmd = &cobra.Command{
	Use:   "fade-out <worker-id>",
	Short: "Stop (or, with --off, resume) handing new files to a worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var worker models.Worker
		body := map[string]bool{"fade_out": !fadeOutOff}
		if err := apiRequest("POST", "/admin/workers/"+args[0]+"/fade_out", body, &worker); err != nil {
			return err
		}
		out := newOutput()
		return out.Print([]string{"ID", "FadeOut"}, [][]string{{worker.ID, fmt.Sprintf("%v", worker.FadeOut)}}, worker)
	},
}

func init() {
	fadeOutCmd.Flags().BoolVar(&fadeOutOff, "off", false, "Resume scheduling new work to this worker")
}

var watchWorkers bool

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List registered workers and their current activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchWorkers {
			return watchLoop(printWorkers)
		}
		return printWorkers()
	},
}

func init() {
	workersCmd.Flags().BoolVar(&watchWorkers, "watch", false, "Refresh every 2 seconds")
}

func printWorkers() error {
	var resp struct {
		Workers []models.Worker `json:"workers"`
		Count   int             `json:"count"`
	}
	if err := apiRequest("GET", "/admin/workers", nil, &resp); err != nil {
		return err
	}

	headers := []string{"ID", "Status", "FadeOut", "Current File", "Progress%", "Completed", "Failed"}
	rows := make([][]string, 0, len(resp.Workers))
	for _, w := range resp.Workers {
		rows = append(rows, []string{
			w.ID,
			w.Status,
			fmt.Sprintf("%v", w.FadeOut),
			fmt.Sprintf("%d", w.CurrentFileID),
			fmt.Sprintf("%.1f", w.CurrentProgress),
			fmt.Sprintf("%d", w.JobsCompleted),
			fmt.Sprintf("%d", w.JobsFailed),
		})
	}
	return newOutput().Print(headers, rows, resp)
}
