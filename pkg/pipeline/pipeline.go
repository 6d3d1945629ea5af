// Package pipeline orchestrates a full publish run for one catalogue
// export: parse, map, dedupe, transform, batch, publish, register.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/axiell"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/bundle"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/canonical"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/config"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/objectstore"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/register"
)

// DefaultOutputPrefix is where published bundles and the transfer
// register live in the store.
const DefaultOutputPrefix = "json_outputs"

// Default store prefixes for the replica holdings.
const (
	DefaultMetadataPrefix = "metadata"
	DefaultFilesPrefix    = "files"
)

// Result statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Options configures a pipeline run. Store is required; everything else
// has a production default.
type Options struct {
	// Store holds the replica holdings and the transfer register and
	// receives the published bundles.
	Store objectstore.Store

	// Config is the transformation rule set. Nil loads TRANS_CONFIG from
	// the environment, falling back to the production defaults.
	Config *config.Config

	// OutputPrefix is the store prefix published bundles and the
	// register live under.
	OutputPrefix string

	// RegisterFile overrides the transfer register file name.
	RegisterFile string

	// MetadataPrefix and FilesPrefix locate the replica holdings.
	MetadataPrefix string
	FilesPrefix    string

	// ChunkSize caps records per chunk bundle. Zero falls back to the
	// config value, then the bundle default.
	ChunkSize int

	// IntermediateDir, when set, receives pre- and post-transform JSON
	// dumps for each record.
	IntermediateDir string

	// FilterIAID reduces the document to a single record before mapping.
	FilterIAID string

	// DisableRegister skips deduplication entirely.
	DisableRegister bool

	// DryRun stops after bundle assembly: nothing is uploaded and the
	// register is not touched.
	DryRun bool

	Logger *slog.Logger
	Now    func() time.Time
}

// Result is the structured outcome of one run. Fatal conditions are
// reported here rather than crashing the caller.
type Result struct {
	RunID     string          `json:"run_id"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Records   int             `json:"records,omitempty"`
	Published []string        `json:"published,omitempty"`
	Closure   *ClosureSummary `json:"closure,omitempty"`
}

// OK reports whether the run completed successfully.
func (result Result) OK() bool { return result.Status == StatusOK }

// ClosureSummary tallies closure outcomes across a published batch.
type ClosureSummary struct {
	Open             int      `json:"open"`
	HeldAtParliament []string `json:"held_at_parliament"`
	ClosedTNA        []string `json:"closed_TNA"`
}

func newClosureSummary() *ClosureSummary {
	return &ClosureSummary{HeldAtParliament: []string{}, ClosedTNA: []string{}}
}

// tally records one transformed record's closure outcome. Open records
// are counted; held-at-Parliament and closed-to-TNA records are listed
// by id. A closure status outside the known set is an error.
func (summary *ClosureSummary) tally(id string, record *jsondoc.Object) error {
	value, ok := jsondoc.GetPath(record, "record.closureStatus")
	if !ok {
		return nil
	}
	status, _ := value.(string)
	if status == "" {
		return nil
	}
	typeValue, _ := jsondoc.GetPath(record, "record.closureType")
	closureType, _ := typeValue.(string)
	switch {
	case status == "O":
		summary.Open++
	case status == "U":
		summary.HeldAtParliament = append(summary.HeldAtParliament, id)
	case status == "D" && closureType == "U":
		summary.ClosedTNA = append(summary.ClosedTNA, id)
	default:
		return fmt.Errorf("unknown closureStatus %q in record %s", status, id)
	}
	return nil
}

// Run executes the full publish pipeline for one catalogue export. All
// failure modes surface through the Result; Run never panics.
func Run(ctx context.Context, source string, options Options) Result {
	started := options.clock()()
	runID := uuid.NewString()
	logger := options.logger().With("run_id", runID)

	fail := func(message string) Result {
		result := Result{RunID: runID, Status: StatusError, Message: message}
		logger.Info("pipeline result", "status", result.Status, "message", result.Message)
		return result
	}

	logger.Info("pipeline run started", "source", source)

	if source == "" || !strings.HasSuffix(strings.ToLower(source), ".xml") {
		return fail("invalid or missing XML file key")
	}
	if options.Store == nil {
		return fail("no object store configured")
	}

	cfg := options.Config
	if cfg == nil {
		loaded, err := config.FromEnv()
		if err != nil {
			return fail(fmt.Sprintf("failed to load transformation config: %v", err))
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return fail(err.Error())
	}

	prefix := options.outputPrefix()
	registerKey := path.Join(prefix, options.registerFile())

	var reg *register.Register
	if options.DisableRegister {
		logger.Info("deduplication disabled, skipping transfer register")
	} else {
		loaded, err := register.Load(ctx, options.Store, registerKey)
		if err != nil {
			return fail(fmt.Sprintf("failed to load deduplication transfer register: %v", err))
		}
		reg = loaded
		logger.Info("loaded transfer register", "existing_records", len(reg.Records))
	}

	replicaIDs, replicaFiles, err := replicaIndex(ctx, options.Store, options.metadataPrefix(), options.filesPrefix())
	if err != nil {
		return fail(fmt.Sprintf("failed to list replica holdings: %v", err))
	}
	logger.Info("indexed replica holdings",
		"metadata_records", len(replicaIDs), "file_folders", len(replicaFiles))

	document, err := axiell.ParseFile(source)
	if err != nil {
		return fail(fmt.Sprintf("conversion failed for %s: %v", filepath.Base(source), err))
	}
	if options.FilterIAID != "" {
		document, err = axiell.FilterByIAID(document, options.FilterIAID)
		if err != nil {
			return fail(err.Error())
		}
		logger.Info("filtered document to single record", "iaid", options.FilterIAID)
	}
	document = axiell.Preprocess(document)

	mapped, err := canonical.Map(document, canonical.MapOptions{})
	if err != nil {
		return fail(fmt.Sprintf("conversion failed for %s: %v", filepath.Base(source), err))
	}
	logger.Info("converted records", "count", len(mapped))

	if reg != nil {
		before := len(mapped)
		mapped = reg.FilterNew(mapped)
		if removed := before - len(mapped); removed > 0 {
			logger.Info("dedupe removed already-published records",
				"removed", removed, "remaining", len(mapped))
		}
	}

	fetch := func(iaid string) (*jsondoc.Object, error) {
		data, err := options.Store.Get(ctx, path.Join(options.metadataPrefix(), iaid+".json"))
		if err != nil {
			return nil, err
		}
		return jsondoc.Parse(data)
	}
	chain, err := buildChain(cfg, replicaIDs, fetch, replicaFiles, logger)
	if err != nil {
		return fail(err.Error())
	}

	// Transform in document order so chunk contents are reproducible.
	summary := newClosureSummary()
	entries := make([]bundle.Entry, 0, len(mapped))
	seen := make(map[string]struct{}, len(mapped))
	for _, record := range document.Records {
		id := record.CALMRecordID()
		original, ok := mapped[id]
		if !ok {
			continue
		}
		if _, done := seen[id]; done {
			continue
		}
		seen[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			return fail(fmt.Sprintf("run cancelled: %v", err))
		}

		dumpIntermediate(options.IntermediateDir, "pre_transformed", id, original, logger)
		transformed, err := chain.Apply(original.Clone())
		if err != nil {
			return fail(fmt.Sprintf("error applying transformations for %s.json: %v", id, err))
		}
		dumpIntermediate(options.IntermediateDir, "post_transformed", id, transformed, logger)

		if err := summary.tally(id, transformed); err != nil {
			return fail(err.Error())
		}
		entries = append(entries, bundle.Entry{ID: id, Record: transformed})
	}
	logger.Info("closure status summary", "open", summary.Open,
		"held_at_parliament", len(summary.HeldAtParliament),
		"closed_tna", len(summary.ClosedTNA))

	if len(entries) == 0 {
		result := Result{
			RunID:   runID,
			Status:  StatusOK,
			Message: fmt.Sprintf("No new records to publish for %s", source),
			Closure: summary,
		}
		logger.Info("pipeline result", "status", result.Status, "message", result.Message)
		return result
	}

	var groups []bundle.Group
	if cfg.RecordLevelDirs {
		groups = bundle.GroupByLevel(entries, cfg.RecordLevelMapping)
	} else {
		groups = bundle.GroupAll(entries)
	}

	chunkSize := options.ChunkSize
	if chunkSize == 0 {
		chunkSize = cfg.ChunkSize
	}
	builder := &bundle.Builder{ChunkSize: chunkSize, Now: options.Now, Logger: logger}
	tree := bundle.TreeName(source)

	chunks, err := builder.Chunks(tree, groups)
	if err != nil {
		return fail(fmt.Sprintf("error creating archive bundles for %s: %v", tree, err))
	}
	super, err := builder.Super(tree, chunks)
	if err != nil {
		return fail(fmt.Sprintf("error creating archive bundles for %s: %v", tree, err))
	}

	var published []string
	if options.DryRun {
		logger.Info("dry run, skipping upload and register update",
			"bundles", len(chunks)+1, "tree", tree)
	} else {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Sprintf("run cancelled: %v", err))
		}

		folder := path.Join(prefix, tree)
		superKey := folder + "/" + super.Name
		if err := options.Store.Put(ctx, superKey, super.Data); err != nil {
			return fail(fmt.Sprintf("error uploading bundles: %v", err))
		}
		published = append(published, superKey)
		logger.Info("uploaded aggregate bundle", "key", superKey, "bytes", len(super.Data))
		for _, chunk := range chunks {
			chunkKey := folder + "/" + chunk.Name
			if err := options.Store.Put(ctx, chunkKey, chunk.Data); err != nil {
				return fail(fmt.Sprintf("error uploading bundles: %v", err))
			}
			published = append(published, chunkKey)
		}
		logger.Info("uploaded chunk bundles", "count", len(chunks), "prefix", folder)

		if reg != nil {
			leaf := register.LeafLevel(mapped)
			added := reg.UpdateWithPublished(mapped, leaf, source, folder, options.clock()())
			logger.Info("updated transfer register", "added", added, "total", len(reg.Records))
			if err := reg.Save(ctx, options.Store, registerKey, options.clock()()); err != nil {
				logger.Error("failed to save transfer register", "error", err)
			}
		}
	}

	elapsed := options.clock()().Sub(started)
	result := Result{
		RunID:  runID,
		Status: StatusOK,
		Message: fmt.Sprintf("Processed %d in %s successfully (Duration: %s)",
			len(entries), source, formatDuration(elapsed)),
		Records:   len(entries),
		Published: published,
		Closure:   summary,
	}
	logger.Info("pipeline result", "status", result.Status, "message", result.Message)
	return result
}

// dumpIntermediate writes one record's JSON to dir/stage/id.json.
// Failures are logged, never fatal.
func dumpIntermediate(dir, stage, id string, record *jsondoc.Object, logger *slog.Logger) {
	if dir == "" {
		return
	}
	target := filepath.Join(dir, stage, id+".json")
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		logger.Warn("failed to create intermediate directory", "path", filepath.Dir(target), "error", err)
		return
	}
	data, err := jsondoc.Encode(record)
	if err != nil {
		logger.Warn("failed to encode intermediate JSON", "record", id, "error", err)
		return
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		logger.Warn("failed to save intermediate JSON", "path", target, "error", err)
		return
	}
	logger.Debug("saved intermediate JSON", "path", target)
}

func formatDuration(elapsed time.Duration) string {
	total := int(elapsed.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func (options Options) outputPrefix() string {
	if options.OutputPrefix != "" {
		return strings.Trim(options.OutputPrefix, "/")
	}
	return DefaultOutputPrefix
}

func (options Options) registerFile() string {
	if options.RegisterFile != "" {
		return options.RegisterFile
	}
	return register.DefaultFilename
}

func (options Options) metadataPrefix() string {
	if options.MetadataPrefix != "" {
		return options.MetadataPrefix
	}
	return DefaultMetadataPrefix
}

func (options Options) filesPrefix() string {
	if options.FilesPrefix != "" {
		return options.FilesPrefix
	}
	return DefaultFilesPrefix
}

func (options Options) logger() *slog.Logger {
	if options.Logger != nil {
		return options.Logger
	}
	return slog.Default()
}

func (options Options) clock() func() time.Time {
	if options.Now != nil {
		return options.Now
	}
	return time.Now
}
