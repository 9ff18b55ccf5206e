package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ftaudit/internal/exclusions"
	"github.com/steveyegge/ftaudit/internal/records"
	"github.com/steveyegge/ftaudit/internal/types"
)

var exclusionsCmd = &cobra.Command{
	Use:   "exclusions",
	Short: "List pairs marked as not duplicates",
	Long: `List every pair in the exclusion store.

Pairs naming a record that is no longer in the snapshot are flagged.
Use --prune to remove them.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := listExclusions(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func listExclusions(cmd *cobra.Command) error {
	proj, err := loadProject(projectRoot, recordsPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, closeStore, err := proj.openStore(ctx, "exclusions")
	if err != nil {
		return err
	}

	prune, _ := cmd.Flags().GetBool("prune")
	runErr := runExclusions(ctx, os.Stdout, proj.records, store, prune)
	// Close flushes a prune that is still being retried
	if closeErr := closeStore(); closeErr != nil && runErr == nil {
		return fmt.Errorf("failed to save exclusions: %w", closeErr)
	}
	return runErr
}

func init() {
	exclusionsCmd.Flags().Bool("prune", false, "Remove pairs naming records no longer in the snapshot")
	rootCmd.AddCommand(exclusionsCmd)
}

func runExclusions(ctx context.Context, w io.Writer, recs []*types.Record, store *exclusions.Store, prune bool) error {
	index := records.Index(recs)
	known := func(id types.PersonID) bool {
		_, ok := index[id]
		return ok
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	if prune {
		removed, err := store.Prune(ctx, known)
		if err != nil {
			return fmt.Errorf("failed to prune exclusions: %w", err)
		}
		fmt.Fprintf(w, "%s Removed %d stale pair(s)\n", green("✓"), removed)
	}

	pairs := store.Pairs()
	if len(pairs) == 0 {
		fmt.Fprintln(w, "No pairs marked as not duplicates")
		return nil
	}

	stale := 0
	for _, p := range pairs {
		line := fmt.Sprintf("%-24s %s / %s", cyan(p.Key()), nameOf(index[p.A]), nameOf(index[p.B]))
		if !known(p.A) || !known(p.B) {
			stale++
			line += " " + yellow("(stale)")
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n%d pair(s)", len(pairs))
	if stale > 0 {
		fmt.Fprintf(w, ", %s", yellow(fmt.Sprintf("%d stale (use --prune)", stale)))
	}
	fmt.Fprintln(w)
	return nil
}
