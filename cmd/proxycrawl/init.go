package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/proxycrawl/internal/config"
)

//go:embed templates/proxycrawl.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a proxycrawl configuration file",
		Long: `Init writes a commented .proxycrawl configuration file.

The generated file documents:
- Defaults applied to every seed host
- Per-host overrides of branch factor, timeout and error tolerance
- Link patterns to ignore or follow

Examples:
  # Create .proxycrawl in current directory
  proxycrawl init

  # Create config file at a specific path
  proxycrawl init -o ~/.config/proxycrawl/config.yaml

  # Force overwrite existing file
  proxycrawl init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/proxycrawl.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to set per-site overrides such as:")
	fmt.Fprintln(out, "  - Links followed per seed (branchFactor)")
	fmt.Fprintln(out, "  - Navigation timeout and error tolerance")
	fmt.Fprintln(out, "  - URL patterns to ignore or follow")

	return nil
}
