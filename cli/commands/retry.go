package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reset every failed file back to pending",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Affected int64 `json:"affected"`
		}
		if err := apiRequest("POST", "/admin/files/bulk/reset-failed", nil, &resp); err != nil {
			return err
		}
		out := newOutput()
		return out.Print([]string{"Affected"}, [][]string{{fmt.Sprintf("%d", resp.Affected)}}, resp)
	},
}
