package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/register"
)

// FormatRunReport formats a run Result for terminal output.
func FormatRunReport(result Result) string {
	var builder strings.Builder

	builder.WriteString("\nPublish Run Report\n")
	builder.WriteString(strings.Repeat("═", 60) + "\n")
	builder.WriteString(fmt.Sprintf("Run:     %s\n", result.RunID))
	builder.WriteString(fmt.Sprintf("Status:  %s\n", result.Status))
	builder.WriteString(fmt.Sprintf("Message: %s\n", result.Message))
	if result.Records > 0 {
		builder.WriteString(fmt.Sprintf("Records: %d\n", result.Records))
	}

	if result.Closure != nil {
		builder.WriteString(strings.Repeat("─", 60) + "\n")
		builder.WriteString(fmt.Sprintf("  %-20s %d\n", "Open records:", result.Closure.Open))
		builder.WriteString(fmt.Sprintf("  %-20s %d\n", "Held at Parliament:", len(result.Closure.HeldAtParliament)))
		builder.WriteString(fmt.Sprintf("  %-20s %d\n", "Closed to TNA:", len(result.Closure.ClosedTNA)))
	}

	if len(result.Published) > 0 {
		builder.WriteString(strings.Repeat("─", 60) + "\n")
		for _, key := range result.Published {
			builder.WriteString(fmt.Sprintf("  %-8s %s\n", "[OK]", key))
		}
		builder.WriteString(fmt.Sprintf("\nTotal: %d bundles\n", len(result.Published)))
	}

	return builder.String()
}

// FormatRegisterStatus summarizes a transfer register for terminal
// output: identity, last update, and a per-level record histogram.
func FormatRegisterStatus(key string, reg *register.Register) string {
	var builder strings.Builder

	builder.WriteString("\nTransfer Register Status\n")
	builder.WriteString(strings.Repeat("═", 60) + "\n")
	builder.WriteString(fmt.Sprintf("Register:     %s\n", key))
	lastUpdated := reg.LastUpdated
	if lastUpdated == "" {
		lastUpdated = "never"
	}
	builder.WriteString(fmt.Sprintf("Last updated: %s\n", lastUpdated))
	builder.WriteString(fmt.Sprintf("Records:      %d\n", len(reg.Records)))

	byLevel := map[int]int{}
	for _, entry := range reg.Records {
		byLevel[entry.CatalogueLevel]++
	}
	if len(byLevel) > 0 {
		builder.WriteString(strings.Repeat("─", 60) + "\n")
		levels := make([]int, 0, len(byLevel))
		for level := range byLevel {
			levels = append(levels, level)
		}
		sort.Ints(levels)
		for _, level := range levels {
			builder.WriteString(fmt.Sprintf("  level %-3d %d\n", level, byLevel[level]))
		}
	}

	return builder.String()
}
