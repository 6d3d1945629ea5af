// Package bundle groups transformed records by catalogue level and packs
// them into tar.gz archive bundles for publication.
package bundle

import (
	"archive/tar"
	"bytes"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
)

// DefaultChunkSize caps the number of record files packed into a single
// chunk bundle.
const DefaultChunkSize = 10000

// RootLabel is the single bucket used when level grouping is disabled.
const RootLabel = "root"

// unknownLabel is the bucket for catalogue levels that are missing from
// the level mapping.
const unknownLabel = "UNKNOWN"

// Entry pairs a record identifier with its transformed document.
type Entry struct {
	ID     string
	Record *jsondoc.Object
}

// Group is an ordered run of entries sharing one directory label.
type Group struct {
	Label   string
	Entries []Entry
}

// DirLabel normalizes a label for use in bundle names: lower-cased with
// spaces replaced by underscores.
func DirLabel(label string) string {
	return strings.ReplaceAll(strings.ToLower(label), " ", "_")
}

// TreeName derives the bundle family name from a source document key:
// the file stem, normalized like a directory label.
func TreeName(key string) string {
	base := path.Base(key)
	return DirLabel(strings.TrimSuffix(base, path.Ext(base)))
}

// GroupByLevel buckets each record by its catalogueLevel through the
// level mapping, whose keys are decimal level numbers ("1" through
// "10"). Levels absent from the mapping fall into the "unknown" bucket.
// Groups keep first-seen order and entries keep input order.
func GroupByLevel(entries []Entry, levelLabels map[string]string) []Group {
	var groups []Group
	positions := make(map[string]int)
	for _, entry := range entries {
		label := unknownLabel
		if level, ok := jsondoc.FindInt(entry.Record, "catalogueLevel"); ok {
			if mapped, ok := levelLabels[strconv.Itoa(level)]; ok {
				label = mapped
			}
		}
		label = DirLabel(label)
		position, ok := positions[label]
		if !ok {
			position = len(groups)
			positions[label] = position
			groups = append(groups, Group{Label: label})
		}
		groups[position].Entries = append(groups[position].Entries, entry)
	}
	return groups
}

// GroupAll collapses every record into the single root bucket, for runs
// with level grouping disabled.
func GroupAll(entries []Entry) []Group {
	if len(entries) == 0 {
		return nil
	}
	return []Group{{Label: RootLabel, Entries: entries}}
}

// Archive is one named tar.gz bundle held in memory.
type Archive struct {
	Name string
	Data []byte
}

// Builder assembles chunk and aggregate archive bundles from grouped
// records.
type Builder struct {
	ChunkSize int              // records per chunk bundle; DefaultChunkSize when zero
	Now       func() time.Time // entry timestamp source; time.Now when nil
	Logger    *slog.Logger
}

// Chunks packs each group into fixed-size chunk bundles. A chunk bundle
// holds one two-space-indented JSON file per record, named after the
// record identifier. The chunk name carries the cumulative record count
// through that chunk: <tree>_<label>_<cumulative>.tar.gz.
func (builder *Builder) Chunks(tree string, groups []Group) ([]Archive, error) {
	size := builder.chunkSize()
	var archives []Archive
	for _, group := range groups {
		total := len(group.Entries)
		builder.logger().Info("batching level into chunks",
			"level", group.Label, "records", total, "chunk_size", size)
		for start := 0; start < total; start += size {
			end := start + size
			if end > total {
				end = total
			}
			name := fmt.Sprintf("%s_%s_%d.tar.gz", tree, group.Label, end)
			data, err := builder.packRecords(group.Entries[start:end])
			if err != nil {
				return nil, fmt.Errorf("failed to build chunk bundle %s: %w", name, err)
			}
			builder.logger().Info("built chunk bundle",
				"name", name, "records", end-start, "bytes", len(data))
			archives = append(archives, Archive{Name: name, Data: data})
		}
	}
	return archives, nil
}

// Super wraps already-built chunk bundles into one aggregate
// <tree>.tar.gz. Each chunk's bytes are embedded exactly as built, so
// the aggregate and the individually published chunks stay identical.
func (builder *Builder) Super(tree string, chunks []Archive) (Archive, error) {
	name := tree + ".tar.gz"
	var buffer bytes.Buffer
	gzipWriter := gzip.NewWriter(&buffer)
	tarWriter := tar.NewWriter(gzipWriter)
	modified := builder.now()
	for _, chunk := range chunks {
		if err := writeTarEntry(tarWriter, chunk.Name, chunk.Data, modified); err != nil {
			return Archive{}, fmt.Errorf("failed to build aggregate bundle %s: %w", name, err)
		}
	}
	if err := closeArchive(tarWriter, gzipWriter); err != nil {
		return Archive{}, fmt.Errorf("failed to build aggregate bundle %s: %w", name, err)
	}
	builder.logger().Info("built aggregate bundle",
		"name", name, "chunks", len(chunks), "bytes", buffer.Len())
	return Archive{Name: name, Data: buffer.Bytes()}, nil
}

func (builder *Builder) packRecords(entries []Entry) ([]byte, error) {
	var buffer bytes.Buffer
	gzipWriter := gzip.NewWriter(&buffer)
	tarWriter := tar.NewWriter(gzipWriter)
	modified := builder.now()
	for _, entry := range entries {
		data, err := jsondoc.Encode(entry.Record)
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %s: %w", entry.ID, err)
		}
		if err := writeTarEntry(tarWriter, path.Base(entry.ID)+".json", data, modified); err != nil {
			return nil, err
		}
	}
	if err := closeArchive(tarWriter, gzipWriter); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func writeTarEntry(tarWriter *tar.Writer, name string, data []byte, modified time.Time) error {
	header := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
		// Whole-second mtimes keep the writer on plain ustar headers.
		ModTime: modified.Truncate(time.Second),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	if _, err := tarWriter.Write(data); err != nil {
		return fmt.Errorf("failed to write tar entry %s: %w", name, err)
	}
	return nil
}

func closeArchive(tarWriter *tar.Writer, gzipWriter *gzip.Writer) error {
	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to finalize tar stream: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finalize gzip stream: %w", err)
	}
	return nil
}

func (builder *Builder) chunkSize() int {
	if builder.ChunkSize > 0 {
		return builder.ChunkSize
	}
	return DefaultChunkSize
}

func (builder *Builder) now() time.Time {
	if builder.Now != nil {
		return builder.Now()
	}
	return time.Now()
}

func (builder *Builder) logger() *slog.Logger {
	if builder.Logger != nil {
		return builder.Logger
	}
	return slog.Default()
}
