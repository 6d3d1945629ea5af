package pipeline

import (
	"strings"
	"testing"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/register"
)

func TestFormatRunReportListsBundles(t *testing.T) {
	result := Result{
		RunID:   "run-1",
		Status:  StatusOK,
		Message: "Processed 3 in parl_fonds.xml successfully (Duration: 00:00:01)",
		Records: 3,
		Closure: &ClosureSummary{Open: 2, HeldAtParliament: []string{"C1"}, ClosedTNA: []string{}},
		Published: []string{
			"json_outputs/parl_fonds/parl_fonds.tar.gz",
			"json_outputs/parl_fonds/parl_fonds_fonds_1.tar.gz",
		},
	}

	report := FormatRunReport(result)

	for _, want := range []string{
		"Publish Run Report",
		"Run:     run-1",
		"Status:  ok",
		"Records: 3",
		"Open records:",
		"Held at Parliament:",
		"[OK]     json_outputs/parl_fonds/parl_fonds.tar.gz",
		"Total: 2 bundles",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestFormatRunReportErrorOmitsSections(t *testing.T) {
	report := FormatRunReport(Result{RunID: "run-2", Status: StatusError, Message: "no object store configured"})

	if !strings.Contains(report, "Status:  error") {
		t.Errorf("report missing error status:\n%s", report)
	}
	if strings.Contains(report, "Total:") {
		t.Errorf("error report should not list bundles:\n%s", report)
	}
}

func TestFormatRegisterStatusHistogram(t *testing.T) {
	reg := register.New()
	reg.LastUpdated = "2026-08-12T10:30:00Z"
	reg.Records["C1"] = register.Entry{Reference: "PARL/1", CatalogueLevel: 1}
	reg.Records["C2"] = register.Entry{Reference: "PARL/1/2", CatalogueLevel: 9}
	reg.Records["C3"] = register.Entry{Reference: "PARL/1/3", CatalogueLevel: 9}

	report := FormatRegisterStatus("json_outputs/uploaded_records_transfer_register.json", reg)

	for _, want := range []string{
		"Transfer Register Status",
		"Register:     json_outputs/uploaded_records_transfer_register.json",
		"Last updated: 2026-08-12T10:30:00Z",
		"Records:      3",
		"level 1",
		"level 9",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}

func TestFormatRegisterStatusEmpty(t *testing.T) {
	report := FormatRegisterStatus("json_outputs/register.json", register.New())

	if !strings.Contains(report, "Last updated: never") {
		t.Errorf("empty register should report never:\n%s", report)
	}
	if strings.Contains(report, "level") {
		t.Errorf("empty register should have no histogram:\n%s", report)
	}
}
