package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/avfarm/common/models"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or update the cluster's shared tunables",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the live cluster configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg models.ClusterConfig
		if err := apiRequest("GET", "/admin/config", nil, &cfg); err != nil {
			return err
		}
		enc, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(enc))
		return nil
	},
}

var configSetFile string

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Apply a new cluster configuration from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configSetFile == "" {
			return fmt.Errorf("--file is required")
		}
		raw, err := os.ReadFile(configSetFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", configSetFile, err)
		}
		var cfg models.ClusterConfig
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", configSetFile, err)
		}
		var updated models.ClusterConfig
		if err := apiRequest("POST", "/admin/config", cfg, &updated); err != nil {
			return err
		}
		enc, err := yaml.Marshal(updated)
		if err != nil {
			return err
		}
		fmt.Print(string(enc))
		return nil
	},
}

func init() {
	configSetCmd.Flags().StringVar(&configSetFile, "file", "", "Path to a YAML ClusterConfig document")
	configCmd.AddCommand(configGetCmd, configSetCmd)
}
