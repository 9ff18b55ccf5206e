package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ftaudit/internal/exclusions"
	"github.com/steveyegge/ftaudit/internal/records"
	"github.com/steveyegge/ftaudit/internal/types"
)

var ignoreCmd = &cobra.Command{
	Use:   "ignore <id> <id>",
	Short: "Toggle whether two records are known to be different people",
	Long: `Mark two records as not duplicates, or clear that mark if it is already set.

Marked pairs are skipped by "ftaudit duplicates" and the explorer.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		proj, err := loadProject(projectRoot, recordsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		store, closeStore, err := proj.openStore(ctx, "ignore")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		toggleErr := runIgnore(ctx, os.Stdout, proj.records, store, types.PersonID(args[0]), types.PersonID(args[1]))
		// Close flushes a write that is still being retried
		closeErr := closeStore()
		if toggleErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", toggleErr)
			os.Exit(1)
		}
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to save exclusions: %v\n", closeErr)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(ignoreCmd)
}

// runIgnore toggles the pair a|b after checking both ids exist
func runIgnore(ctx context.Context, w io.Writer, recs []*types.Record, store *exclusions.Store, a, b types.PersonID) error {
	index := records.Index(recs)
	for _, id := range []types.PersonID{a, b} {
		if _, ok := index[id]; !ok {
			return fmt.Errorf("unknown record %s", id)
		}
	}
	pair, err := types.NewPair(a, b)
	if err != nil {
		return err
	}

	excluded, err := store.Toggle(ctx, pair)
	if err != nil && !errors.Is(err, exclusions.ErrPersistPending) {
		return err
	}

	green := color.New(color.FgGreen).SprintFunc()
	if excluded {
		fmt.Fprintf(w, "%s %s and %s marked as different people\n", green("✓"), nameOf(index[pair.A]), nameOf(index[pair.B]))
	} else {
		fmt.Fprintf(w, "%s %s and %s may be duplicates again\n", green("✓"), nameOf(index[pair.A]), nameOf(index[pair.B]))
	}
	return nil
}

func nameOf(r *types.Record) string {
	if r == nil {
		return "?"
	}
	if n := r.Name(); n != "" {
		return fmt.Sprintf("%s (%s)", n, r.ID)
	}
	return string(r.ID)
}
