package canonical

import (
	"errors"
	"testing"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/axiell"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
)

// canonicalKeyOrder is the full field order the ingest service expects.
var canonicalKeyOrder = []string{
	"iaid", "citableReference", "parentId", "accruals", "accessConditions",
	"administrativeBackground", "arrangement", "catalogueId", "catalogueLevel",
	"coveringFromDate", "coveringToDate", "chargeType", "coveringDates",
	"custodialHistory", "closureCode", "closureStatus", "closureType",
	"recordOpeningDate", "copiesInformation", "creatorName", "digitised",
	"formerReferenceDep", "formerReferencePro", "heldBy",
	"immediateSourceOfAcquisition", "language", "legalStatus",
	"locationOfOriginals", "physicalDescriptionExtent",
	"physicalDescriptionForm", "referencePart", "publicationNote",
	"relatedMaterial", "separatedMaterial", "scopeContent", "source", "title",
	"unpublishedFindingAids",
}

func neutralValue(text string) axiell.ValueGroup {
	return axiell.ValueGroup{Values: []axiell.LangValue{{Lang: "neutral", Text: text}}}
}

func leafRecord() *axiell.Record {
	return &axiell.Record{
		ObjectNumber: "PARL/1/2",
		RecordType:   neutralValue("9"),
		AlternativeNumbers: []axiell.AlternativeNumber{
			{Number: "C10012345", Type: axiell.AlternativeTypeCALMRecordID},
			{Number: "HL/PO/1", Type: axiell.AlternativeTypeFormerDepartment},
		},
		PartOf:          axiell.PartOf{Reference: "PARL/1"},
		CatalogueID:     "5501",
		AccessStatus:    neutralValue("OPEN"),
		InstitutionName: "UK Parliament",
		Title:           axiell.TitleGroup{Title: "Committee minute book"},
		Dating:          axiell.Dating{Start: "19110501", End: "19111231"},
	}
}

func fondsRecord() *axiell.Record {
	return &axiell.Record{
		ObjectNumber: "PARL/1",
		RecordType:   neutralValue("1"),
		AlternativeNumbers: []axiell.AlternativeNumber{
			{Number: "C10012000", Type: axiell.AlternativeTypeCALMRecordID},
		},
		CatalogueID: "5500",
		Title:       axiell.TitleGroup{Title: "Parliamentary committee records"},
	}
}

func innerRecord(t *testing.T, mapping map[string]*jsondoc.Object, iaid string) *jsondoc.Object {
	t.Helper()
	wrapped, ok := mapping[iaid]
	if !ok {
		t.Fatalf("expected record %s in mapping", iaid)
	}
	value, ok := wrapped.Get("record")
	if !ok {
		t.Fatalf("expected record key for %s", iaid)
	}
	object, ok := value.(*jsondoc.Object)
	if !ok {
		t.Fatalf("expected ordered object for %s, got %T", iaid, value)
	}
	return object
}

func TestMapKeyOrder(t *testing.T) {
	document := &axiell.Document{Records: []*axiell.Record{leafRecord()}}

	mapping, err := Map(document, MapOptions{KeepEmpty: true})
	if err != nil {
		t.Fatalf("failed to map document: %v", err)
	}

	record := innerRecord(t, mapping, "C10012345")
	keys := record.Keys()
	if len(keys) != len(canonicalKeyOrder) {
		t.Fatalf("expected %d fields, got %d: %v", len(canonicalKeyOrder), len(keys), keys)
	}
	for index, key := range canonicalKeyOrder {
		if keys[index] != key {
			t.Fatalf("expected field %d to be %s, got %s", index, key, keys[index])
		}
	}
}

func TestMapLeafRecord(t *testing.T) {
	document := &axiell.Document{Records: []*axiell.Record{fondsRecord(), leafRecord()}}

	mapping, err := Map(document, MapOptions{})
	if err != nil {
		t.Fatalf("failed to map document: %v", err)
	}
	if len(mapping) != 2 {
		t.Fatalf("expected 2 records, got %d", len(mapping))
	}

	record := innerRecord(t, mapping, "C10012345")
	if value, _ := record.Get("citableReference"); value != "PARL/1/2" {
		t.Errorf("expected citableReference PARL/1/2, got %v", value)
	}
	if value, _ := record.Get("parentId"); value != "C10012000" {
		t.Errorf("expected parentId resolved to C10012000, got %v", value)
	}
	if value, _ := record.Get("closureStatus"); value != "O" {
		t.Errorf("expected closureStatus O, got %v", value)
	}
	if value, _ := record.Get("catalogueId"); value != 5501 {
		t.Errorf("expected catalogueId 5501, got %v", value)
	}
	if value, _ := record.Get("coveringFromDate"); value != 19110501 {
		t.Errorf("expected coveringFromDate 19110501, got %v", value)
	}
	if value, _ := record.Get("chargeType"); value != 1 {
		t.Errorf("expected chargeType 1, got %v", value)
	}
	if value, _ := record.Get("digitised"); value != false {
		t.Errorf("expected digitised false, got %v", value)
	}
	if value, _ := record.Get("referencePart"); value != "2" {
		t.Errorf("expected referencePart 2, got %v", value)
	}
	if value, _ := record.Get("formerReferenceDep"); value != "HL/PO/1" {
		t.Errorf("expected formerReferenceDep HL/PO/1, got %v", value)
	}
	if value, _ := record.Get("source"); value != "PA" {
		t.Errorf("expected source PA, got %v", value)
	}

	// Leaf levels carry closure fields but no access statement or creators.
	if record.Has("accessConditions") {
		t.Error("expected accessConditions pruned at leaf level")
	}
	if record.Has("creatorName") {
		t.Error("expected creatorName pruned at leaf level")
	}
}

func TestMapAncestorRecord(t *testing.T) {
	fonds := fondsRecord()
	fonds.Productions = []axiell.Production{{Creator: "Clerk of the Parliaments"}}
	document := &axiell.Document{Records: []*axiell.Record{fonds}}

	mapping, err := Map(document, MapOptions{})
	if err != nil {
		t.Fatalf("failed to map document: %v", err)
	}

	record := innerRecord(t, mapping, "C10012000")
	if value, _ := record.Get("accessConditions"); value != "Open unless otherwise stated" {
		t.Errorf("unexpected accessConditions %v", value)
	}
	if value, _ := record.Get("parentId"); value != RootFondsID {
		t.Errorf("expected root fonds parent, got %v", value)
	}
	for _, key := range []string{"closureStatus", "closureCode", "closureType", "recordOpeningDate"} {
		if record.Has(key) {
			t.Errorf("expected %s pruned for ancestor level", key)
		}
	}

	value, _ := record.Get("creatorName")
	creators, ok := value.([]any)
	if !ok || len(creators) != 1 {
		t.Fatalf("expected single creator entry, got %v", value)
	}
	creator := creators[0].(*jsondoc.Object)
	if name, _ := creator.Get("xReferenceName"); name != "Clerk of the Parliaments" {
		t.Errorf("unexpected creator name %v", name)
	}
}

func TestMapCreatorPlaceholderWithoutProductions(t *testing.T) {
	document := &axiell.Document{Records: []*axiell.Record{fondsRecord()}}

	mapping, err := Map(document, MapOptions{KeepEmpty: true})
	if err != nil {
		t.Fatalf("failed to map document: %v", err)
	}

	record := innerRecord(t, mapping, "C10012000")
	value, _ := record.Get("creatorName")
	creators, ok := value.([]any)
	if !ok || len(creators) != 1 {
		t.Fatalf("expected single placeholder creator, got %v", value)
	}
	creator := creators[0].(*jsondoc.Object)
	if name, _ := creator.Get("xReferenceName"); name != nil {
		t.Errorf("expected nil placeholder name, got %v", name)
	}
	if start, _ := creator.Get("startDate"); start != 0 {
		t.Errorf("expected zero startDate, got %v", start)
	}
}

func TestMapKeepEmptyRetainsNulls(t *testing.T) {
	document := &axiell.Document{Records: []*axiell.Record{leafRecord()}}

	mapping, err := Map(document, MapOptions{KeepEmpty: true})
	if err != nil {
		t.Fatalf("failed to map document: %v", err)
	}

	record := innerRecord(t, mapping, "C10012345")
	value, ok := record.Get("accruals")
	if !ok {
		t.Fatal("expected accruals key retained")
	}
	if value != nil {
		t.Errorf("expected nil accruals, got %v", value)
	}
}

func TestMapMissingIAIDFails(t *testing.T) {
	record := leafRecord()
	record.AlternativeNumbers = nil
	document := &axiell.Document{Records: []*axiell.Record{record}}

	_, err := Map(document, MapOptions{})
	if err == nil {
		t.Fatal("expected error for record without CALM id")
	}
	var recordError *RecordError
	if !errors.As(err, &recordError) {
		t.Fatalf("expected RecordError, got %T", err)
	}
	if recordError.Field != "iaid" {
		t.Errorf("expected iaid failure, got %s", recordError.Field)
	}
}

func TestMapUnknownAccessStatusFails(t *testing.T) {
	record := leafRecord()
	record.AccessStatus = neutralValue("RESTRICTED")
	document := &axiell.Document{Records: []*axiell.Record{record}}

	_, err := Map(document, MapOptions{})
	if err == nil {
		t.Fatal("expected error for unrecognized access status")
	}
	var recordError *RecordError
	if !errors.As(err, &recordError) || recordError.Field != "closureStatus" {
		t.Errorf("expected closureStatus failure, got %v", err)
	}
}

func TestMapBadReferenceFails(t *testing.T) {
	record := leafRecord()
	record.ObjectNumber = "PARL/"
	document := &axiell.Document{Records: []*axiell.Record{record}}

	if _, err := Map(document, MapOptions{}); err == nil {
		t.Fatal("expected error for reference without final segment")
	}
}

func TestMapBadCoveringDateFails(t *testing.T) {
	record := leafRecord()
	record.Dating.Start = "c1911"
	document := &axiell.Document{Records: []*axiell.Record{record}}

	if _, err := Map(document, MapOptions{}); err == nil {
		t.Fatal("expected error for non-numeric covering date")
	}
}

func TestMapClosureGateAcrossLevels(t *testing.T) {
	document := &axiell.Document{Records: []*axiell.Record{fondsRecord(), leafRecord()}}

	mapping, err := Map(document, MapOptions{})
	if err != nil {
		t.Fatalf("failed to map document: %v", err)
	}

	leaf := innerRecord(t, mapping, "C10012345")
	if value, _ := leaf.Get("closureStatus"); value != "O" {
		t.Errorf("expected leaf closureStatus O, got %v", value)
	}
	ancestor := innerRecord(t, mapping, "C10012000")
	for _, key := range []string{"closureStatus", "closureCode", "closureType", "recordOpeningDate"} {
		if ancestor.Has(key) {
			t.Errorf("expected ancestor %s absent", key)
		}
	}
}
