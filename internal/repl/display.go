package repl

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/steveyegge/ftaudit/internal/matcher"
	"github.com/steveyegge/ftaudit/internal/types"
)

// PrintCandidates writes the candidate table. Ignored candidates are shown
// dimmed and only when showIgnored is set.
func PrintCandidates(w io.Writer, cands []types.Candidate, showIgnored bool) {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	shown := 0
	for _, c := range cands {
		if c.Ignored && !showIgnored {
			continue
		}
		shown++
		line := fmt.Sprintf("%s  %-30s %-10s  %-30s %-10s  %s",
			bold(fmt.Sprintf("%3d", c.Score)),
			truncate(nameOf(c.Primary), 30), dateOf(c.Primary),
			truncate(nameOf(c.Match), 30), dateOf(c.Match),
			cyan(c.Pair.Key()))
		if c.Ignored {
			line = gray(line + "  (ignored)")
		}
		fmt.Fprintln(w, line)
	}
	if shown == 0 {
		fmt.Fprintln(w, gray("  (no possible duplicates)"))
	}
}

// PrintSummary writes a one-line summary of a completed run
func PrintSummary(w io.Writer, res *matcher.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(w, "%s %d possible duplicate(s) at threshold %d (max score %d, %d pairs, %d excluded, %s)\n",
		green("✓"), len(res.Visible()), res.Threshold, res.MaxScore, res.TotalPairs, res.Excluded,
		res.Duration.Round(time.Millisecond))
}

func nameOf(r *types.Record) string {
	if r == nil {
		return "?"
	}
	if n := r.Name(); n != "" {
		return n
	}
	return string(r.ID)
}

func dateOf(r *types.Record) string {
	if r == nil || !r.Birth.IsKnown() {
		return "?"
	}
	return r.Birth.String()
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return strings.TrimSpace(string(rs[:n-1])) + "…"
}
