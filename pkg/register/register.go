// Package register tracks which catalogue records have already been
// published so repeated runs over the same tree do not re-publish shared
// ancestor nodes. The register is one JSON document in the object store,
// read and written whole.
package register

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/objectstore"
)

// DefaultFilename is the register's object name under a publish prefix.
const DefaultFilename = "uploaded_records_transfer_register.json"

// QAStatusPending marks an entry that has not yet been reviewed.
const QAStatusPending = "pending"

// Entry records one published record.
type Entry struct {
	Reference      string `json:"reference"`
	PublishedAt    string `json:"published_at"`
	Destination    string `json:"destination"`
	SourceFile     string `json:"source_file"`
	CatalogueLevel int    `json:"catalogue_level"`
	QAStatus       string `json:"qa_status"`
}

// Register is the persisted dedup state for a destination prefix.
type Register struct {
	LastUpdated  string           `json:"last_updated"`
	TotalRecords int              `json:"total_records"`
	Records      map[string]Entry `json:"records"`
}

// New returns an empty register.
func New() *Register {
	return &Register{Records: make(map[string]Entry)}
}

// Load fetches the register at key. A missing object yields a fresh empty
// register; any other failure is returned as-is, since publishing without
// known dedup state is not allowed.
func Load(ctx context.Context, store objectstore.Store, key string) (*Register, error) {
	data, err := store.Get(ctx, key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load register %s: %w", key, err)
	}

	register := New()
	if err := json.Unmarshal(data, register); err != nil {
		return nil, fmt.Errorf("failed to parse register %s: %w", key, err)
	}
	if register.Records == nil {
		register.Records = make(map[string]Entry)
	}
	return register, nil
}

// FilterNew returns the records whose ids are not yet registered.
func (register *Register) FilterNew(records map[string]*jsondoc.Object) map[string]*jsondoc.Object {
	filtered := make(map[string]*jsondoc.Object, len(records))
	for id, record := range records {
		if _, ok := register.Records[id]; ok {
			continue
		}
		filtered[id] = record
	}
	return filtered
}

// LeafLevel returns the maximum catalogue level observed across the
// batch, the level treated as leaf for register purposes. Zero when no
// record carries a level.
func LeafLevel(records map[string]*jsondoc.Object) int {
	leaf := 0
	for _, record := range records {
		if level, ok := jsondoc.FindInt(record, "catalogueLevel"); ok && level > leaf {
			leaf = level
		}
	}
	return leaf
}

// UpdateWithPublished inserts an entry for every published record except
// those at the leaf level. Leaf records are unique per source tree; only
// ancestor nodes recur across runs and need deduplicating. Returns the
// number of entries written.
func (register *Register) UpdateWithPublished(records map[string]*jsondoc.Object, leafLevel int, sourceFile, destination string, publishedAt time.Time) int {
	added := 0
	for id, record := range records {
		level, ok := jsondoc.FindInt(record, "catalogueLevel")
		if ok && level == leafLevel {
			continue
		}
		reference := ""
		if value, ok := jsondoc.Find(record, "citableReference"); ok {
			reference, _ = value.(string)
		}
		register.Records[id] = Entry{
			Reference:      reference,
			PublishedAt:    publishedAt.UTC().Format(time.RFC3339),
			Destination:    destination,
			SourceFile:     sourceFile,
			CatalogueLevel: level,
			QAStatus:       QAStatusPending,
		}
		added++
	}
	return added
}

// Save persists the register, first copying any existing object to a
// timestamped backup key. The backup is skipped silently when no register
// exists yet.
func (register *Register) Save(ctx context.Context, store objectstore.Store, key string, now time.Time) error {
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to check register %s: %w", key, err)
	}
	if exists {
		if err := store.Copy(ctx, key, BackupKey(key, now)); err != nil {
			return fmt.Errorf("failed to back up register %s: %w", key, err)
		}
	}

	register.LastUpdated = now.UTC().Format(time.RFC3339)
	register.TotalRecords = len(register.Records)
	data, err := json.MarshalIndent(register, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode register: %w", err)
	}
	if err := store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write register %s: %w", key, err)
	}
	return nil
}

// BackupKey derives the timestamped key a register is copied to before
// being overwritten.
func BackupKey(key string, now time.Time) string {
	extension := path.Ext(key)
	base := strings.TrimSuffix(key, extension)
	return base + "_backup_" + now.UTC().Format("20060102T150405Z") + extension
}
