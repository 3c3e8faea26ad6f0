package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	domain "github.com/dealbrain/valuation/pkg/types"
)

// tabWriter wraps tabwriter with error tracking.
type tabWriter struct {
	*tabwriter.Writer
	err error
}

func newTabWriter(w io.Writer) *tabWriter {
	return &tabWriter{Writer: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (tw *tabWriter) writef(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.Writer, format, args...)
}

func (tw *tabWriter) finish() error {
	if tw.err != nil {
		return tw.err
	}
	return tw.Flush()
}

func printRulesetsTable(rulesets []domain.Ruleset) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID\tNAME\tVERSION\tACTIVE\tBASELINE\tCREATED\n")
	for i := range rulesets {
		rs := &rulesets[i]
		tw.writef("%s\t%s\t%d\t%v\t%v\t%s\n",
			rs.ID,
			truncate(rs.Name, 40),
			rs.Version,
			rs.Active,
			rs.SystemBaseline,
			rs.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return tw.finish()
}

func printRulesetDetail(rs *domain.Ruleset) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID:\t%s\n", rs.ID)
	tw.writef("Name:\t%s\n", rs.Name)
	tw.writef("Version:\t%d\n", rs.Version)
	tw.writef("Active:\t%v\n", rs.Active)
	tw.writef("System Baseline:\t%v\n", rs.SystemBaseline)
	tw.writef("Content Hash:\t%s\n", rs.ContentHash)
	for _, g := range rs.OrderedGroups() {
		tw.writef("Group:\t%s (%s, %d rules)\n", g.Name, g.Category, len(g.Rules))
		for _, r := range g.OrderedRules() {
			active := ""
			if !r.Active {
				active = " [inactive]"
			}
			tw.writef("  Rule:\t%s%s\n", r.Name, active)
		}
	}
	return tw.finish()
}

func printBreakdown(b *domain.Breakdown) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("Listing:\t%s\n", b.ListingID)
	tw.writef("Ruleset:\t%s v%d\n", b.RulesetID, b.RulesetVersion)
	tw.writef("Base Price:\t$%.2f\n", b.BasePrice)
	tw.writef("\n")
	tw.writef("RULE\tGROUP\tACTION\tDELTA\tNOTE\n")
	for i := range b.Lines {
		line := &b.Lines[i]
		note := line.Description
		if line.Error != "" {
			note = "error: " + line.Error
		}
		tw.writef("%s\t%s\t%s\t%+.2f\t%s\n",
			truncate(line.RuleName, 30),
			line.GroupName,
			line.ActionType,
			line.Delta,
			truncate(note, 50),
		)
	}
	tw.writef("\n")
	tw.writef("Total Adjustment:\t%+.2f\n", b.TotalAdjustment)
	tw.writef("Total Deductions:\t%+.2f\n", b.TotalDeductions)
	tw.writef("Adjusted Price:\t$%.2f\n", b.AdjustedPrice)
	return tw.finish()
}

func printDiff(d *domain.BaselineDiff) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("Candidate Hash:\t%s\n", d.CandidateHash)
	tw.writef("Active Hash:\t%s\n", d.ActiveHash)
	if len(d.Entries) == 0 {
		tw.writef("No differences.\n")
		return tw.finish()
	}
	tw.writef("\n")
	tw.writef("PATH\tKIND\n")
	for i := range d.Entries {
		tw.writef("%s\t%s\n", d.Entries[i].Path, d.Entries[i].Kind)
	}
	return tw.finish()
}

func printAuditTable(entries []domain.AuditEntry) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("AT\tACTOR\tOPERATION\tRULESET\tADOPTED\tSKIPPED\n")
	for i := range entries {
		e := &entries[i]
		tw.writef("%s\t%s\t%s\t%s\t%d\t%d\n",
			e.At.Format("2006-01-02 15:04:05"),
			e.Actor,
			e.Operation,
			e.RulesetID,
			len(e.AdoptedFields),
			len(e.SkippedFields),
		)
	}
	return tw.finish()
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
