package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset <file-id>",
	Short: "Reset a file back to pending, clearing any error state",
	Args:  cobra.ExactArgs(1),
	RunE:  fileOpRunner("reset"),
}

var skipReason string

var skipCmd = &cobra.Command{
	Use:   "skip <file-id>",
	Short: "Mark a file as permanently skipped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid file id %q: %w", args[0], err)
		}
		return simpleAdminOp(fmt.Sprintf("/admin/files/%d/skip", id), map[string]string{"reason": skipReason})
	},
}

var priorityCmd = &cobra.Command{
	Use:   "priority <file-id> <value>",
	Short: "Set a file's queue priority (higher serves first)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid file id %q: %w", args[0], err)
		}
		val, err := strconv.ParseInt(args[1], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid priority %q: %w", args[1], err)
		}
		return simpleAdminOp(fmt.Sprintf("/admin/files/%d/priority", id), map[string]int32{"priority": int32(val)})
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin <file-id> [worker-id]",
	Short: "Soft-pin a pending file to a worker (empty worker-id clears the pin)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid file id %q: %w", args[0], err)
		}
		var workerID string
		if len(args) == 2 {
			workerID = args[1]
		}
		return simpleAdminOp(fmt.Sprintf("/admin/files/%d/pin", id), map[string]string{"worker_id": workerID})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <file-id>",
	Short: "Request that the worker currently processing a file abort the job",
	Args:  cobra.ExactArgs(1),
	RunE:  fileOpRunner("cancel"),
}

func init() {
	skipCmd.Flags().StringVar(&skipReason, "reason", "", "Reason recorded alongside the skip")
}

// fileOpRunner returns a cobra RunE for the single-arg, no-body admin ops
// (reset, cancel) that only need the file ID in the path.
func fileOpRunner(op string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid file id %q: %w", args[0], err)
		}
		return simpleAdminOp(fmt.Sprintf("/admin/files/%d/%s", id, op), nil)
	}
}

func simpleAdminOp(path string, body any) error {
	var resp map[string]bool
	if err := apiRequest("POST", path, body, &resp); err != nil {
		return err
	}
	return newOutput().Print([]string{"OK"}, [][]string{{fmt.Sprintf("%v", resp["ok"])}}, resp)
}
