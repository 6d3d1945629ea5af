package transform

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
)

// MetadataFetch loads the replica metadata document for a record id.
type MetadataFetch func(iaid string) (*jsondoc.Object, error)

// Replica attaches digitised-surrogate metadata to records that have it.
// Records without metadata pass through untouched apart from gaining the
// replicaId placeholder every published record carries.
type Replica struct {
	ids    map[string]struct{}
	fetch  MetadataFetch
	files  map[string][]string
	logger *slog.Logger
}

// NewReplica builds the stage. ids lists the records with replica
// metadata, fetch loads one metadata document, and files maps each record
// id to the file stems actually present in the store.
func NewReplica(ids []string, fetch MetadataFetch, files map[string][]string, logger *slog.Logger) *Replica {
	if logger == nil {
		logger = slog.Default()
	}
	index := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		index[id] = struct{}{}
	}
	return &Replica{ids: index, fetch: fetch, files: files, logger: logger}
}

// Name implements Transformer.
func (stage *Replica) Name() string { return TaskReplica }

// Transform implements Transformer.
func (stage *Replica) Transform(record *jsondoc.Object) (*jsondoc.Object, error) {
	value, ok := record.Get("record")
	if !ok {
		return nil, errors.New("record wrapper missing")
	}
	inner, ok := value.(*jsondoc.Object)
	if !ok {
		return nil, fmt.Errorf("record wrapper holds %T, not an object", value)
	}

	found, _ := jsondoc.Find(record, "iaid")
	iaid, _ := found.(string)
	if iaid != "" {
		if _, ok := stage.ids[iaid]; ok {
			metadata, err := stage.fetch(iaid)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch replica metadata for %s: %w", iaid, err)
			}
			inner.Set("replica", metadata)
			stage.checkFiles(iaid, metadata)
		}
	}

	// Every record carries the placeholder directly after its iaid.
	inner.InsertAt(1, "replicaId", nil)
	return record, nil
}

// checkFiles cross-references the file names listed in the metadata
// against the store inventory. Missing files are logged rather than
// failing the record.
func (stage *Replica) checkFiles(iaid string, metadata *jsondoc.Object) {
	value, ok := metadata.Get("files")
	if !ok {
		return
	}
	entries, ok := value.([]any)
	if !ok {
		return
	}

	inventory := make(map[string]struct{}, len(stage.files[iaid]))
	for _, stem := range stage.files[iaid] {
		inventory[stem] = struct{}{}
	}

	listed, present := 0, 0
	for _, entry := range entries {
		object, ok := entry.(*jsondoc.Object)
		if !ok {
			continue
		}
		nameValue, _ := object.Get("name")
		name, _ := nameValue.(string)
		if name == "" {
			continue
		}
		listed++
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		if _, ok := inventory[stem]; ok {
			present++
			continue
		}
		stage.logger.Warn("file listed in replica metadata missing from store inventory",
			"iaid", iaid, "file", name)
	}
	if listed > 0 {
		stage.logger.Debug("replica file inventory check",
			"iaid", iaid, "listed", listed, "present", present)
	}
}
