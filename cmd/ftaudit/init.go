package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ftaudit/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .ftaudit/config.yaml in the project directory",
	Long: `Write a commented example configuration to .ftaudit/config.yaml.

An existing file is left alone unless --force is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		if err := runInit(os.Stdout, projectRoot, force); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(w io.Writer, root string, force bool) error {
	path := config.Path(root)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(config.ExampleFile()), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(w, "%s Created %s\n", green("✓"), path)
	fmt.Fprintln(w, "  Edit the records path, then run: ftaudit duplicates")
	return nil
}
