package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ftaudit/internal/filter"
	"github.com/steveyegge/ftaudit/internal/types"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "List the records matching a selection",
	Long: `List the records that pass the selected filters.

The selection starts from the "filter" section of .ftaudit/config.yaml;
any flag given on the command line replaces that setting.

Examples:
  # Direct ancestors and blood relatives born in the 1800s
  ftaudit filter --relation direct,blood --born-from 1800 --born-to 1899

  # Anyone called Smith in Scotland, keeping people with unknown dates
  ftaudit filter --surname smith --place scotland --include-unknown

  # People who could not have been older than 5 in 1900
  ftaudit filter --max-age 5 --age-at 1900`,
	Run: func(cmd *cobra.Command, args []string) {
		proj, err := loadProject(projectRoot, recordsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		sel, err := selectionFromFlags(cmd, proj.cfg.Filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := runFilter(os.Stdout, proj.records, sel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	addFilterFlags(filterCmd)
	rootCmd.AddCommand(filterCmd)
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("relation", nil, "Relations to include (direct, descendant, blood, marriage, married_to_direct, linked, unknown)")
	cmd.Flags().String("surname", "", "Surname contains (case-insensitive)")
	cmd.Flags().String("forename", "", "Forenames contain (case-insensitive)")
	cmd.Flags().Int("born-from", 0, "Earliest birth year")
	cmd.Flags().Int("born-to", 0, "Latest birth year")
	cmd.Flags().Int("died-from", 0, "Earliest death year")
	cmd.Flags().Int("died-to", 0, "Latest death year")
	cmd.Flags().StringSlice("place", nil, "Location parts to match (e.g. England,Wales)")
	cmd.Flags().Bool("ignore-locations", false, "Disable the place filter")
	cmd.Flags().Bool("exclude-unknown-births", false, "Drop records without a birth date")
	cmd.Flags().Int("max-age", 0, "Only people who cannot have been older than this")
	cmd.Flags().String("age-at", "", "Reference date for --max-age when no death is recorded (YYYY[-MM[-DD]])")
	cmd.Flags().Bool("include-unknown", false, "Let unknown dates pass date and age bounds")
}

// selectionFromFlags overlays the flags the user actually set on base
func selectionFromFlags(cmd *cobra.Command, base filter.Selection) (filter.Selection, error) {
	sel := base
	flags := cmd.Flags()

	if flags.Changed("relation") {
		rels, _ := flags.GetStringSlice("relation")
		sel.Relations = nil
		for _, r := range rels {
			sel.Relations = append(sel.Relations, types.Relation(r))
		}
	}
	if flags.Changed("surname") {
		sel.Surname, _ = flags.GetString("surname")
	}
	if flags.Changed("forename") {
		sel.Forename, _ = flags.GetString("forename")
	}
	if flags.Changed("born-from") || flags.Changed("born-to") {
		from, _ := flags.GetInt("born-from")
		to, _ := flags.GetInt("born-to")
		sel.Birth = &filter.YearRange{From: from, To: to}
	}
	if flags.Changed("died-from") || flags.Changed("died-to") {
		from, _ := flags.GetInt("died-from")
		to, _ := flags.GetInt("died-to")
		sel.Death = &filter.YearRange{From: from, To: to}
	}
	if flags.Changed("place") {
		sel.Places, _ = flags.GetStringSlice("place")
	}
	if flags.Changed("ignore-locations") {
		sel.IgnoreLocations, _ = flags.GetBool("ignore-locations")
	}
	if flags.Changed("exclude-unknown-births") {
		sel.ExcludeUnknownBirths, _ = flags.GetBool("exclude-unknown-births")
	}
	if flags.Changed("max-age") {
		age, _ := flags.GetInt("max-age")
		sel.MaxAge = &age
	}
	if flags.Changed("age-at") {
		raw, _ := flags.GetString("age-at")
		at, err := types.ParseDate(raw)
		if err != nil {
			return sel, fmt.Errorf("--age-at: %w", err)
		}
		sel.AgeAt = at
	}
	if flags.Changed("include-unknown") {
		if inc, _ := flags.GetBool("include-unknown"); inc {
			sel.Unknowns = filter.IncludeUnknown
		} else {
			sel.Unknowns = filter.ExcludeUnknown
		}
	}
	return sel, nil
}

// narrow returns the records passing sel, in their original order
func narrow(recs []*types.Record, sel filter.Selection) ([]*types.Record, error) {
	pred, err := filter.Build(sel)
	if err != nil {
		return nil, err
	}
	return filter.Apply(recs, pred), nil
}

// runFilter prints the records passing sel
func runFilter(w io.Writer, recs []*types.Record, sel filter.Selection) error {
	matched, err := narrow(recs, sel)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	for _, r := range matched {
		fmt.Fprintf(w, "%-10s %-32s %-12s %-12s %-18s %s\n",
			cyan(string(r.ID)), r.Name(), orUnknown(r.Birth), orUnknown(r.Death),
			r.Relation.Normalize(), gray(r.Location))
	}
	fmt.Fprintf(w, "\n%s %d of %d records\n", green("✓"), len(matched), len(recs))
	return nil
}

func orUnknown(d types.Date) string {
	if !d.IsKnown() {
		return "?"
	}
	return d.String()
}
