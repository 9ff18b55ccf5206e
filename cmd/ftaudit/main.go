package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ftaudit/internal/config"
)

var (
	projectRoot string
	recordsPath string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "ftaudit",
	Short: "Filter a family tree and audit it for possible duplicate people",
	Long: `ftaudit filters a snapshot of person records and finds pairs that may be
the same person entered twice.

Pairs you confirm are different people are remembered in the exclusion
store (.ftaudit/exclusions.yaml or a SQLite database) and skipped by
later runs.

Configuration is read from .ftaudit/config.yaml in the project directory,
then FTAUDIT_* environment variables, then command-line flags. Variables
in .ftaudit/.env are loaded too, but never replace ones already set.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !verbose {
			log.SetOutput(io.Discard)
		}
		if err := loadEnvFile(projectRoot); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectRoot, "project", "C", ".", "Project directory containing .ftaudit/")
	rootCmd.PersistentFlags().StringVar(&recordsPath, "records", "", "Record snapshot (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show diagnostic logging")
}

// loadEnvFile loads the project's .env file if there is one
func loadEnvFile(root string) error {
	path := filepath.Join(root, config.DirName, ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
