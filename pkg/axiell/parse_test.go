package axiell

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleExportXML = `<?xml version="1.0" encoding="UTF-8"?>
<adlibXML>
  <recordList>
    <record priref="100">
      <object_number>PARL/1/2</object_number>
      <record_type>
        <value lang="neutral">FILE</value>
        <value lang="en-GB">File</value>
      </record_type>
      <Alternative_number>
        <alternative_number>C10012345</alternative_number>
        <alternative_number.type>CALM RecordID</alternative_number.type>
      </Alternative_number>
      <Alternative_number>
        <alternative_number>HL/PO/1</alternative_number>
        <alternative_number.type>Former reference (Department)</alternative_number.type>
      </Alternative_number>
      <Part_of>
        <part_of_reference>PARL/1</part_of_reference>
      </Part_of>
      <Title>
        <title>Committee minute book</title>
      </Title>
      <Dating>
        <dating.date.start>1911-05-01</dating.date.start>
        <dating.date.end>1911-12-31</dating.date.end>
      </Dating>
      <access_status>
        <value lang="neutral">OPEN</value>
      </access_status>
      <institution.name>UK Parliament</institution.name>
      <Extent>
        <extent.value>1</extent.value>
        <extent.form>volume</extent.form>
      </Extent>
    </record>
    <record priref="101">
      <object_number>PARL/1</object_number>
      <record_type>
        <value lang="neutral">FONDS</value>
      </record_type>
      <Alternative_number>
        <alternative_number>C10012000</alternative_number>
        <alternative_number.type>CALM RecordID</alternative_number.type>
      </Alternative_number>
      <Title>
        <title>Parliamentary committee records</title>
      </Title>
    </record>
  </recordList>
</adlibXML>`

func TestParseCollectsRecords(t *testing.T) {
	document, err := Parse(strings.NewReader(sampleExportXML))
	if err != nil {
		t.Fatalf("failed to parse sample export: %v", err)
	}
	if len(document.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(document.Records))
	}

	record := document.Records[0]
	if record.ObjectNumber != "PARL/1/2" {
		t.Errorf("expected object number PARL/1/2, got %q", record.ObjectNumber)
	}
	if record.CALMRecordID() != "C10012345" {
		t.Errorf("expected CALM id C10012345, got %q", record.CALMRecordID())
	}
	if record.PartOf.Reference != "PARL/1" {
		t.Errorf("expected part-of reference PARL/1, got %q", record.PartOf.Reference)
	}
	if record.Title.Title != "Committee minute book" {
		t.Errorf("unexpected title %q", record.Title.Title)
	}
	if record.Dating.Start != "1911-05-01" || record.Dating.End != "1911-12-31" {
		t.Errorf("unexpected dating %q to %q", record.Dating.Start, record.Dating.End)
	}
	if len(record.Extents) != 1 || record.Extents[0].Form != "volume" {
		t.Errorf("unexpected extents %+v", record.Extents)
	}
}

func TestParseMergedDocument(t *testing.T) {
	merged := `<MergedData>
  <recordList>
    <record><object_number>A/1</object_number></record>
  </recordList>
  <recordList>
    <record><object_number>B/1</object_number></record>
  </recordList>
</MergedData>`

	document, err := Parse(strings.NewReader(merged))
	if err != nil {
		t.Fatalf("failed to parse merged document: %v", err)
	}
	if len(document.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(document.Records))
	}
	if document.Records[1].ObjectNumber != "B/1" {
		t.Errorf("expected second record B/1, got %q", document.Records[1].ObjectNumber)
	}
}

func TestParseRejectsTruncatedExport(t *testing.T) {
	truncated := strings.TrimSuffix(sampleExportXML, "</adlibXML>")
	if _, err := Parse(strings.NewReader(truncated)); err == nil {
		t.Fatal("expected error for truncated export")
	}
}

func TestParseFileMissing(t *testing.T) {
	if _, err := ParseFile(filepath.Join(t.TempDir(), "absent.xml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parl_fonds.xml")
	if err := os.WriteFile(path, []byte(sampleExportXML), 0644); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}
	document, err := ParseFile(path)
	if err != nil {
		t.Fatalf("failed to parse export file: %v", err)
	}
	if len(document.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(document.Records))
	}
}

func TestValueGroupSelectsLanguage(t *testing.T) {
	group := ValueGroup{Values: []LangValue{
		{Lang: "en-GB", Text: "File"},
		{Lang: "neutral", Text: "FILE"},
	}}
	if got := group.Value("neutral"); got != "FILE" {
		t.Errorf("expected neutral value FILE, got %q", got)
	}
	if got := group.Value("fr-FR"); got != "" {
		t.Errorf("expected empty value for unknown language, got %q", got)
	}
}

func TestAlternativeNumberByType(t *testing.T) {
	record := &Record{AlternativeNumbers: []AlternativeNumber{
		{Number: "HL/PO/1", Type: AlternativeTypeFormerDepartment},
		{Number: "C1", Type: AlternativeTypeCALMRecordID},
		{Number: "C2", Type: AlternativeTypeCALMRecordID},
	}}
	if got := record.AlternativeNumber(AlternativeTypeCALMRecordID); got != "C1" {
		t.Errorf("expected first CALM number C1, got %q", got)
	}
	if got := record.AlternativeNumber(AlternativeTypeFormerArchival); got != "" {
		t.Errorf("expected empty number for absent type, got %q", got)
	}
}

func TestNewParentLookup(t *testing.T) {
	document, err := Parse(strings.NewReader(sampleExportXML))
	if err != nil {
		t.Fatalf("failed to parse sample export: %v", err)
	}
	document.Records = append(document.Records, &Record{ObjectNumber: "PARL/9"})

	lookup := NewParentLookup(document)
	if len(lookup) != 2 {
		t.Fatalf("expected 2 lookup entries, got %d", len(lookup))
	}
	identifier, ok := lookup.Resolve("PARL/1")
	if !ok || identifier != "C10012000" {
		t.Errorf("expected PARL/1 to resolve to C10012000, got %q (ok=%v)", identifier, ok)
	}
	if _, ok := lookup.Resolve("PARL/9"); ok {
		t.Error("expected record without CALM id to be absent from lookup")
	}
}

func TestFilterByIAID(t *testing.T) {
	document, err := Parse(strings.NewReader(sampleExportXML))
	if err != nil {
		t.Fatalf("failed to parse sample export: %v", err)
	}

	filtered, err := FilterByIAID(document, "C10012000")
	if err != nil {
		t.Fatalf("failed to filter by IAID: %v", err)
	}
	if len(filtered.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(filtered.Records))
	}
	if filtered.Records[0].ObjectNumber != "PARL/1" {
		t.Errorf("expected PARL/1, got %q", filtered.Records[0].ObjectNumber)
	}

	if _, err := FilterByIAID(document, "C99999999"); err == nil {
		t.Fatal("expected error for unknown IAID")
	}
}
