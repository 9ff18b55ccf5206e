package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ftaudit/internal/repl"
	"github.com/steveyegge/ftaudit/internal/scoring"
	"github.com/steveyegge/ftaudit/internal/session"
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Interactively explore duplicates at changing thresholds",
	Long: `Start an interactive session. Typing a number re-runs matching at that
threshold, cancelling any run in progress. Use "ignore A B" to mark pairs
and "show" to list the latest result.

The records compared are narrowed by the same selection flags as
"ftaudit filter".`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := explore(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	addFilterFlags(exploreCmd)
	rootCmd.AddCommand(exploreCmd)
}

// explore holds the command body so the session and store are closed,
// and the project lock released, before Run exits
func explore(cmd *cobra.Command) error {
	proj, err := loadProject(projectRoot, recordsPath)
	if err != nil {
		return err
	}
	sel, err := selectionFromFlags(cmd, proj.cfg.Filter)
	if err != nil {
		return err
	}
	candidates, err := narrow(proj.records, sel)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, closeStore, err := proj.openStore(ctx, "explore")
	if err != nil {
		return err
	}
	defer closeQuietly(closeStore)

	cfg := proj.cfg.Session()
	sess, err := session.New(candidates, scoring.Default, store, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if len(candidates) < len(proj.records) {
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Println(gray(fmt.Sprintf("matching %d of %d records", len(candidates), len(proj.records))))
	}

	// Names are looked up across every record so ignore works for any pair
	r, err := repl.New(&repl.Config{
		Session:     sess,
		Records:     proj.records,
		Threshold:   cfg.Matcher.Threshold,
		ShowIgnored: cfg.Matcher.ShowIgnored,
	})
	if err != nil {
		return err
	}
	return r.Run(ctx)
}
