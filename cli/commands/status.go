package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/avfarm/common/models"
)

var watchStatus bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the coordinator's queue and worker snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchStatus {
			return watchLoop(printStatus)
		}
		return printStatus()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&watchStatus, "watch", false, "Refresh every 2 seconds")
}

func printStatus() error {
	var stats models.Stats
	if err := apiRequest("GET", "/status", nil, &stats); err != nil {
		return err
	}

	out := newOutput()
	headers := []string{"Pending", "Assigned", "Processing", "Completed", "Failed", "Skipped", "Workers"}
	row := []string{
		fmt.Sprintf("%d", stats.Pending),
		fmt.Sprintf("%d", stats.Assigned),
		fmt.Sprintf("%d", stats.Processing),
		fmt.Sprintf("%d", stats.Completed),
		fmt.Sprintf("%d", stats.Failed),
		fmt.Sprintf("%d", stats.Skipped),
		fmt.Sprintf("%d/%d", stats.WorkersOnline, stats.WorkersTotal),
	}
	return out.Print(headers, [][]string{row}, stats)
}

// watchLoop runs fn immediately, then every 2 seconds until interrupted.
func watchLoop(fn func() error) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	if err := fn(); err != nil {
		return err
	}
	for range ticker.C {
		fmt.Print("\033[2J\033[H")
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
