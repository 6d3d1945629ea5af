package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/config"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/objectstore"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/register"
)

// Three records across the hierarchy: a fonds, an open file with a
// digitised surrogate, and a closed item held at Parliament.
const pipelineExportXML = `<?xml version="1.0" encoding="UTF-8"?>
<adlibXML>
  <recordList>
    <record priref="200">
      <object_number>PARL/1</object_number>
      <record_type>
        <value lang="neutral">FONDS</value>
      </record_type>
      <Alternative_number>
        <alternative_number>C1000</alternative_number>
        <alternative_number.type>CALM RecordID</alternative_number.type>
      </Alternative_number>
      <Title>
        <title>Parliamentary committee records</title>
      </Title>
    </record>
    <record priref="201">
      <object_number>PARL/1/2</object_number>
      <record_type>
        <value lang="neutral">FILE</value>
      </record_type>
      <Alternative_number>
        <alternative_number>C1001</alternative_number>
        <alternative_number.type>CALM RecordID</alternative_number.type>
      </Alternative_number>
      <Part_of>
        <part_of_reference>PARL/1</part_of_reference>
      </Part_of>
      <Title>
        <title>Committee minute book</title>
      </Title>
      <access_status>
        <value lang="neutral">OPEN</value>
      </access_status>
      <institution.name>UK Parliament</institution.name>
    </record>
    <record priref="202">
      <object_number>PARL/1/2/3</object_number>
      <record_type>
        <value lang="neutral">ITEM</value>
      </record_type>
      <Alternative_number>
        <alternative_number>C1002</alternative_number>
        <alternative_number.type>CALM RecordID</alternative_number.type>
      </Alternative_number>
      <Part_of>
        <part_of_reference>PARL/1/2</part_of_reference>
      </Part_of>
      <Title>
        <title>Minutes for May 1911</title>
      </Title>
      <access_status>
        <value lang="neutral">CLOSED</value>
      </access_status>
      <institution.name>UK Parliament</institution.name>
    </record>
  </recordList>
</adlibXML>`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRunStore(t *testing.T) *objectstore.FileStore {
	t.Helper()
	store, err := objectstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}
	return store
}

func writeExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parl_fonds.xml")
	if err := os.WriteFile(path, []byte(pipelineExportXML), 0644); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}
	return path
}

func runOptions(store objectstore.Store) Options {
	fixed := time.Date(2026, time.August, 12, 10, 30, 0, 0, time.UTC)
	return Options{
		Store:  store,
		Config: config.Default(),
		Logger: quietLogger(),
		Now:    func() time.Time { return fixed },
	}
}

func seedReplica(t *testing.T, store objectstore.Store) {
	t.Helper()
	ctx := context.Background()
	metadata := `{"batchId": "B77", "files": [{"name": "scan1.jpg"}, {"name": "scan2.jpg"}]}`
	if err := store.Put(ctx, "metadata/C1001.json", []byte(metadata)); err != nil {
		t.Fatalf("failed to seed replica metadata: %v", err)
	}
	if err := store.Put(ctx, "files/C1001/scan1.jpg", []byte("image")); err != nil {
		t.Fatalf("failed to seed replica file: %v", err)
	}
}

func readBundle(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zipReader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to open gzip stream: %v", err)
	}
	defer zipReader.Close()

	contents := map[string][]byte{}
	tarReader := tar.NewReader(zipReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read tar entry: %v", err)
		}
		body, err := io.ReadAll(tarReader)
		if err != nil {
			t.Fatalf("failed to read tar entry %s: %v", header.Name, err)
		}
		contents[header.Name] = body
	}
	return contents
}

func TestRunPublishesExport(t *testing.T) {
	ctx := context.Background()
	store := newRunStore(t)
	seedReplica(t, store)
	source := writeExport(t)

	result := Run(ctx, source, runOptions(store))
	if !result.OK() {
		t.Fatalf("run failed: %s", result.Message)
	}
	if result.RunID == "" {
		t.Error("expected a run id")
	}
	if result.Records != 3 {
		t.Errorf("expected 3 records, got %d", result.Records)
	}
	if !strings.HasPrefix(result.Message, "Processed 3 in ") ||
		!strings.HasSuffix(result.Message, "successfully (Duration: 00:00:00)") {
		t.Errorf("unexpected message %q", result.Message)
	}

	if result.Closure == nil {
		t.Fatal("expected a closure summary")
	}
	if result.Closure.Open != 1 {
		t.Errorf("expected 1 open record, got %d", result.Closure.Open)
	}
	if len(result.Closure.HeldAtParliament) != 1 || result.Closure.HeldAtParliament[0] != "C1002" {
		t.Errorf("unexpected held-at-Parliament list %v", result.Closure.HeldAtParliament)
	}
	if len(result.Closure.ClosedTNA) != 0 {
		t.Errorf("unexpected closed-TNA list %v", result.Closure.ClosedTNA)
	}

	wantPublished := []string{
		"json_outputs/parl_fonds/parl_fonds.tar.gz",
		"json_outputs/parl_fonds/parl_fonds_fonds_1.tar.gz",
		"json_outputs/parl_fonds/parl_fonds_file_1.tar.gz",
		"json_outputs/parl_fonds/parl_fonds_item_1.tar.gz",
	}
	if len(result.Published) != len(wantPublished) {
		t.Fatalf("expected %d published keys, got %v", len(wantPublished), result.Published)
	}
	for index, want := range wantPublished {
		if result.Published[index] != want {
			t.Errorf("published[%d]: expected %s, got %s", index, want, result.Published[index])
		}
	}

	fileChunk, err := store.Get(ctx, wantPublished[2])
	if err != nil {
		t.Fatalf("failed to fetch file chunk: %v", err)
	}
	records := readBundle(t, fileChunk)
	raw, ok := records["C1001.json"]
	if !ok {
		t.Fatalf("expected C1001.json in file chunk, got %v", bundleNames(records))
	}
	published, err := jsondoc.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse published record: %v", err)
	}
	if value, _ := jsondoc.GetPath(published, "record.citableReference"); value != "YUKP/1/2" {
		t.Errorf("expected Y-named reference YUKP/1/2, got %v", value)
	}
	wrapper, _ := published.Get("record")
	inner, ok := wrapper.(*jsondoc.Object)
	if !ok {
		t.Fatalf("expected record wrapper, got %T", wrapper)
	}
	if keys := inner.Keys(); len(keys) < 2 || keys[0] != "iaid" || keys[1] != "replicaId" {
		t.Errorf("expected replicaId directly after iaid, got %v", keys)
	}
	if !bytes.Contains(raw, []byte(`"batchId": "B77"`)) {
		t.Error("expected replica metadata in the published record")
	}

	superData, err := store.Get(ctx, wantPublished[0])
	if err != nil {
		t.Fatalf("failed to fetch aggregate bundle: %v", err)
	}
	wrapped := readBundle(t, superData)
	if len(wrapped) != 3 {
		t.Fatalf("expected 3 chunks in aggregate bundle, got %d", len(wrapped))
	}
	if !bytes.Equal(wrapped["parl_fonds_file_1.tar.gz"], fileChunk) {
		t.Error("expected aggregate bundle to wrap chunk archives byte for byte")
	}

	reg, err := register.Load(ctx, store, "json_outputs/uploaded_records_transfer_register.json")
	if err != nil {
		t.Fatalf("failed to load transfer register: %v", err)
	}
	if len(reg.Records) != 2 {
		t.Fatalf("expected 2 register entries, got %d", len(reg.Records))
	}
	if _, ok := reg.Records["C1002"]; ok {
		t.Error("expected leaf record C1002 to stay out of the register")
	}
	entry, ok := reg.Records["C1000"]
	if !ok {
		t.Fatal("expected C1000 in the register")
	}
	if entry.Reference != "PARL/1" {
		t.Errorf("expected pre-transform reference PARL/1, got %q", entry.Reference)
	}
	if entry.CatalogueLevel != 1 {
		t.Errorf("expected catalogue level 1, got %d", entry.CatalogueLevel)
	}
	if entry.SourceFile != source {
		t.Errorf("expected source file %s, got %s", source, entry.SourceFile)
	}
	if entry.Destination != "json_outputs/parl_fonds" {
		t.Errorf("unexpected destination %s", entry.Destination)
	}
	if entry.PublishedAt != "2026-08-12T10:30:00Z" {
		t.Errorf("unexpected published timestamp %s", entry.PublishedAt)
	}
	if entry.QAStatus != register.QAStatusPending {
		t.Errorf("unexpected QA status %s", entry.QAStatus)
	}
}

func TestRunSecondRunRepublishesLeavesOnly(t *testing.T) {
	ctx := context.Background()
	store := newRunStore(t)
	source := writeExport(t)

	if result := Run(ctx, source, runOptions(store)); !result.OK() {
		t.Fatalf("first run failed: %s", result.Message)
	}
	second := Run(ctx, source, runOptions(store))
	if !second.OK() {
		t.Fatalf("second run failed: %s", second.Message)
	}
	if second.Records != 1 {
		t.Errorf("expected only the leaf record, got %d", second.Records)
	}
	wantPublished := []string{
		"json_outputs/parl_fonds/parl_fonds.tar.gz",
		"json_outputs/parl_fonds/parl_fonds_item_1.tar.gz",
	}
	if len(second.Published) != len(wantPublished) {
		t.Fatalf("expected %d published keys, got %v", len(wantPublished), second.Published)
	}
	for index, want := range wantPublished {
		if second.Published[index] != want {
			t.Errorf("published[%d]: expected %s, got %s", index, want, second.Published[index])
		}
	}

	reg, err := register.Load(ctx, store, "json_outputs/uploaded_records_transfer_register.json")
	if err != nil {
		t.Fatalf("failed to load transfer register: %v", err)
	}
	if len(reg.Records) != 2 {
		t.Errorf("expected register unchanged at 2 entries, got %d", len(reg.Records))
	}
}

func TestRunDryRunSkipsUploadAndRegister(t *testing.T) {
	ctx := context.Background()
	store := newRunStore(t)
	source := writeExport(t)

	options := runOptions(store)
	options.DryRun = true
	result := Run(ctx, source, options)
	if !result.OK() {
		t.Fatalf("dry run failed: %s", result.Message)
	}
	if result.Records != 3 {
		t.Errorf("expected 3 records, got %d", result.Records)
	}
	if len(result.Published) != 0 {
		t.Errorf("expected no published keys, got %v", result.Published)
	}
	keys, err := store.List(ctx, "json_outputs")
	if err != nil {
		t.Fatalf("failed to list store: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no uploads, got %v", keys)
	}
}

func TestRunDisabledRegisterSkipsDedupe(t *testing.T) {
	ctx := context.Background()
	store := newRunStore(t)
	source := writeExport(t)

	options := runOptions(store)
	options.DisableRegister = true
	for attempt := 1; attempt <= 2; attempt++ {
		result := Run(ctx, source, options)
		if !result.OK() {
			t.Fatalf("run %d failed: %s", attempt, result.Message)
		}
		if result.Records != 3 {
			t.Errorf("run %d: expected all 3 records, got %d", attempt, result.Records)
		}
	}
	exists, err := store.Exists(ctx, "json_outputs/uploaded_records_transfer_register.json")
	if err != nil {
		t.Fatalf("failed to check register: %v", err)
	}
	if exists {
		t.Error("expected no transfer register to be written")
	}
}

func TestRunIntermediateDumps(t *testing.T) {
	store := newRunStore(t)
	source := writeExport(t)

	options := runOptions(store)
	options.IntermediateDir = t.TempDir()
	if result := Run(context.Background(), source, options); !result.OK() {
		t.Fatalf("run failed: %s", result.Message)
	}

	pre, err := os.ReadFile(filepath.Join(options.IntermediateDir, "pre_transformed", "C1001.json"))
	if err != nil {
		t.Fatalf("failed to read pre-transform dump: %v", err)
	}
	post, err := os.ReadFile(filepath.Join(options.IntermediateDir, "post_transformed", "C1001.json"))
	if err != nil {
		t.Fatalf("failed to read post-transform dump: %v", err)
	}
	if !bytes.Contains(pre, []byte("PARL/1/2")) {
		t.Error("expected original reference in pre-transform dump")
	}
	if !bytes.Contains(post, []byte("YUKP/1/2")) {
		t.Error("expected Y-named reference in post-transform dump")
	}
}

func TestRunFilterIAID(t *testing.T) {
	ctx := context.Background()
	store := newRunStore(t)
	source := writeExport(t)

	options := runOptions(store)
	options.FilterIAID = "C1001"
	result := Run(ctx, source, options)
	if !result.OK() {
		t.Fatalf("run failed: %s", result.Message)
	}
	if result.Records != 1 {
		t.Errorf("expected 1 record, got %d", result.Records)
	}
	wantChunk := "json_outputs/parl_fonds/parl_fonds_file_1.tar.gz"
	records := readBundle(t, mustGet(t, store, wantChunk))
	if _, ok := records["C1001.json"]; !ok || len(records) != 1 {
		t.Errorf("expected only C1001.json in chunk, got %v", bundleNames(records))
	}
}

func bundleNames(contents map[string][]byte) []string {
	names := make([]string, 0, len(contents))
	for name := range contents {
		names = append(names, name)
	}
	return names
}

func mustGet(t *testing.T, store objectstore.Store, key string) []byte {
	t.Helper()
	data, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("failed to fetch %s: %v", key, err)
	}
	return data
}

func TestRunRejectsNonXMLSource(t *testing.T) {
	result := Run(context.Background(), "exports/notes.txt", runOptions(newRunStore(t)))
	if result.OK() {
		t.Fatal("expected failure for non-XML source")
	}
	if result.Message != "invalid or missing XML file key" {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestRunRequiresStore(t *testing.T) {
	result := Run(context.Background(), "export.xml", runOptions(nil))
	if result.OK() {
		t.Fatal("expected failure without a store")
	}
	if result.Message != "no object store configured" {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestRunFailsOnCorruptRegister(t *testing.T) {
	ctx := context.Background()
	store := newRunStore(t)
	key := "json_outputs/uploaded_records_transfer_register.json"
	if err := store.Put(ctx, key, []byte("not json")); err != nil {
		t.Fatalf("failed to seed corrupt register: %v", err)
	}

	result := Run(ctx, writeExport(t), runOptions(store))
	if result.OK() {
		t.Fatal("expected failure on corrupt register")
	}
	if !strings.Contains(result.Message, "transfer register") {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestRunFailsOnMalformedExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xml")
	if err := os.WriteFile(path, []byte("<adlibXML><recordList><record>"), 0644); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}

	result := Run(context.Background(), path, runOptions(newRunStore(t)))
	if result.OK() {
		t.Fatal("expected failure on malformed export")
	}
	if !strings.HasPrefix(result.Message, "conversion failed for broken.xml") {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestRunFailsOnEmptyConfig(t *testing.T) {
	options := runOptions(newRunStore(t))
	options.Config = &config.Config{}

	result := Run(context.Background(), writeExport(t), options)
	if result.OK() {
		t.Fatal("expected failure on empty config")
	}
	if result.Message != "transformation config or record level mapping is missing or empty" {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Run(ctx, writeExport(t), runOptions(newRunStore(t)))
	if result.OK() {
		t.Fatal("expected failure on cancelled context")
	}
	if !strings.HasPrefix(result.Message, "run cancelled") {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestConvertKeepsDocumentOrder(t *testing.T) {
	entries, err := Convert(writeExport(t), ConvertOptions{Config: config.Default(), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("failed to convert: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for index, want := range []string{"C1000", "C1001", "C1002"} {
		if entries[index].ID != want {
			t.Errorf("entry %d: expected %s, got %s", index, want, entries[index].ID)
		}
	}
	if value, _ := jsondoc.GetPath(entries[0].Record, "record.citableReference"); value != "YUKP/1" {
		t.Errorf("expected Y-named reference YUKP/1, got %v", value)
	}

	wrapper, _ := entries[1].Record.Get("record")
	inner, ok := wrapper.(*jsondoc.Object)
	if !ok {
		t.Fatalf("expected record wrapper, got %T", wrapper)
	}
	if _, ok := inner.Get("replicaId"); !ok {
		t.Error("expected replicaId placeholder without a store")
	}
	if _, ok := inner.Get("replica"); ok {
		t.Error("expected no replica metadata without a store")
	}
}

func TestConvertMissingFile(t *testing.T) {
	_, err := Convert(filepath.Join(t.TempDir(), "absent.xml"), ConvertOptions{Config: config.Default(), Logger: quietLogger()})
	if err == nil {
		t.Fatal("expected error for missing export")
	}
}

func TestTallyCountsKnownStatuses(t *testing.T) {
	wrap := func(status, closureType string) *jsondoc.Object {
		inner := jsondoc.NewObject()
		if status != "" {
			inner.Set("closureStatus", status)
		}
		if closureType != "" {
			inner.Set("closureType", closureType)
		}
		record := jsondoc.NewObject()
		record.Set("record", inner)
		return record
	}

	summary := newClosureSummary()
	for _, tally := range []struct {
		id          string
		status      string
		closureType string
	}{
		{"C1", "O", ""},
		{"C2", "U", ""},
		{"C3", "D", "U"},
		{"C4", "", ""},
	} {
		if err := summary.tally(tally.id, wrap(tally.status, tally.closureType)); err != nil {
			t.Fatalf("failed to tally %s: %v", tally.id, err)
		}
	}
	if summary.Open != 1 {
		t.Errorf("expected 1 open record, got %d", summary.Open)
	}
	if len(summary.HeldAtParliament) != 1 || summary.HeldAtParliament[0] != "C2" {
		t.Errorf("unexpected held-at-Parliament list %v", summary.HeldAtParliament)
	}
	if len(summary.ClosedTNA) != 1 || summary.ClosedTNA[0] != "C3" {
		t.Errorf("unexpected closed-TNA list %v", summary.ClosedTNA)
	}

	if err := summary.tally("C5", wrap("X", "")); err == nil {
		t.Fatal("expected error for unknown closure status")
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(3*time.Hour + 25*time.Minute + 45*time.Second); got != "03:25:45" {
		t.Errorf("expected 03:25:45, got %s", got)
	}
	if got := formatDuration(0); got != "00:00:00" {
		t.Errorf("expected 00:00:00, got %s", got)
	}
}
