package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskhopper/hopper/pkg/config"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Run pre-flight checks on directories, the registry file, and dependencies",
	RunE:  runValidateConfig,
}

func init() {
	validateConfigCmd.Flags().Bool("fix", false, "Create missing directories and seed a default agent registry")
}

func runValidateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	fix, _ := cmd.Flags().GetBool("fix")
	if err := config.Validate(cfg, fix); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
	return nil
}
