package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avfarm/common/models"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Trigger an immediate rescan of the media root",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp models.AdminScanResponse
		if err := apiRequest("POST", "/admin/scan", nil, &resp); err != nil {
			return err
		}
		out := newOutput()
		headers := []string{"Added", "Updated"}
		row := []string{fmt.Sprintf("%d", resp.Added), fmt.Sprintf("%d", resp.Updated)}
		return out.Print(headers, [][]string{row}, resp)
	},
}
