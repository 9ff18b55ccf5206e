package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ftaudit/internal/exclusions"
	"github.com/steveyegge/ftaudit/internal/filter"
	"github.com/steveyegge/ftaudit/internal/matcher"
	"github.com/steveyegge/ftaudit/internal/repl"
	"github.com/steveyegge/ftaudit/internal/scoring"
	"github.com/steveyegge/ftaudit/internal/session"
	"github.com/steveyegge/ftaudit/internal/types"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find pairs of records that may be the same person",
	Long: `Score every pair of records and list those at or above the threshold.

Only records passing the selection are compared. The selection starts
from the "filter" section of .ftaudit/config.yaml and takes the same flags
as "ftaudit filter". Pairs marked with "ftaudit ignore" are skipped. Press
Ctrl+C to stop a long run; nothing is printed for a cancelled run.

Examples:
  ftaudit duplicates
  ftaudit duplicates --threshold 80 --show-ignored
  ftaudit duplicates --relation direct,blood --born-from 1800`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := duplicates(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// duplicates holds the command body so its deferred closes run before
// Run exits
func duplicates(cmd *cobra.Command) error {
	proj, err := loadProject(projectRoot, recordsPath)
	if err != nil {
		return err
	}
	sel, err := selectionFromFlags(cmd, proj.cfg.Filter)
	if err != nil {
		return err
	}

	cfg := proj.cfg.Session()
	if cmd.Flags().Changed("threshold") {
		cfg.Matcher.Threshold, _ = cmd.Flags().GetInt("threshold")
	}
	if cmd.Flags().Changed("show-ignored") {
		cfg.Matcher.ShowIgnored, _ = cmd.Flags().GetBool("show-ignored")
	}
	if noBlocking, _ := cmd.Flags().GetBool("no-blocking"); noBlocking {
		cfg.Matcher.Blocking = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := proj.openStore(ctx, "duplicates")
	if err != nil {
		return err
	}
	defer closeQuietly(closeStore)

	return runDuplicates(ctx, os.Stdout, os.Stderr, proj.records, sel, store, cfg)
}

func init() {
	duplicatesCmd.Flags().Int("threshold", matcher.DefaultConfig().Threshold, "Minimum score for a possible duplicate")
	duplicatesCmd.Flags().Bool("show-ignored", false, "Also list pairs marked as not duplicates")
	duplicatesCmd.Flags().Bool("no-blocking", false, "Compare every pair instead of only those sharing a surname")
	addFilterFlags(duplicatesCmd)
	rootCmd.AddCommand(duplicatesCmd)
}

// runDuplicates matches the records passing sel and runs one session to its
// terminal event. Progress goes to status, the result to out.
func runDuplicates(ctx context.Context, out, status io.Writer, recs []*types.Record, sel filter.Selection, store *exclusions.Store, cfg session.Config) error {
	candidates, err := narrow(recs, sel)
	if err != nil {
		return err
	}

	sess, err := session.New(candidates, scoring.Default, store, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if _, err := sess.Start(ctx, cfg.Matcher.Threshold); err != nil {
		return err
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	if len(candidates) < len(recs) {
		fmt.Fprintln(status, gray(fmt.Sprintf("matching %d of %d records", len(candidates), len(recs))))
	}

	for ev := range sess.Events() {
		switch ev.Type {
		case session.EventProgress:
			pct := 0
			if ev.Total > 0 {
				pct = ev.Processed * 100 / ev.Total
			}
			fmt.Fprintf(status, "\r%s", gray(fmt.Sprintf("scoring %d/%d pairs (%d%%)", ev.Processed, ev.Total, pct)))
		case session.EventMaxScore:
			// The summary carries the final maximum
		case session.EventCompleted:
			fmt.Fprintln(status)
			repl.PrintSummary(out, ev.Result)
			repl.PrintCandidates(out, ev.Result.Candidates, cfg.Matcher.ShowIgnored)
			return nil
		case session.EventCancelled:
			fmt.Fprintf(status, "\n%s Cancelled\n", yellow("⚠"))
			return nil
		case session.EventFailed:
			fmt.Fprintln(status)
			return fmt.Errorf("matching failed: %s", ev.Reason)
		}
	}
	return fmt.Errorf("session closed before the run finished")
}
