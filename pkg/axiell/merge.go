package axiell

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// exportNameMarkers identify the catalogue tree levels an export file can
// carry. Files without a marker in their name are not exports.
var exportNameMarkers = []string{"fonds", "series", "item", "file"}

// ListExports returns the XML exports under dir whose names identify a
// catalogue tree level, in filename order. Other XML files in the
// directory (replica sidecars, register snapshots) are left alone.
func ListExports(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xml") {
			continue
		}
		name := strings.ToLower(entry.Name())
		for _, marker := range exportNameMarkers {
			if strings.Contains(name, marker) {
				paths = append(paths, filepath.Join(dir, entry.Name()))
				break
			}
		}
	}
	return paths, nil
}

// Merge combines several exports into one document under a <MergedData>
// root, copying each file's top-level elements verbatim. Files that fail
// to parse are skipped with a warning so a single corrupt export does not
// sink the batch. Returns the number of files merged.
func Merge(writer io.Writer, paths []string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := io.WriteString(writer, xml.Header); err != nil {
		return 0, fmt.Errorf("failed to write merged export: %w", err)
	}
	encoder := xml.NewEncoder(writer)
	root := xml.StartElement{Name: xml.Name{Local: "MergedData"}}
	if err := encoder.EncodeToken(root); err != nil {
		return 0, fmt.Errorf("failed to write merged export: %w", err)
	}

	merged := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return merged, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := checkWellFormed(data); err != nil {
			logger.Warn("skipping unparseable export", "path", path, "error", err)
			continue
		}
		if err := copyTopLevel(encoder, data); err != nil {
			return merged, fmt.Errorf("failed to merge %s: %w", path, err)
		}
		merged++
	}

	if err := encoder.EncodeToken(root.End()); err != nil {
		return merged, fmt.Errorf("failed to write merged export: %w", err)
	}
	if err := encoder.Flush(); err != nil {
		return merged, fmt.Errorf("failed to write merged export: %w", err)
	}
	return merged, nil
}

// checkWellFormed runs a full strict decode pass so a file is only copied
// into the merged document once it is known to parse end to end.
func checkWellFormed(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	sawRoot := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, ok := token.(xml.StartElement); ok {
			sawRoot = true
		}
	}
	if !sawRoot {
		return errors.New("no root element")
	}
	return nil
}

// copyTopLevel streams every element under the source document's root into
// the encoder, dropping the root itself.
func copyTopLevel(encoder *xml.Encoder, data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch typed := token.(type) {
		case xml.StartElement:
			depth++
			if depth >= 2 {
				if err := encoder.EncodeToken(typed); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if depth >= 2 {
				if err := encoder.EncodeToken(typed); err != nil {
					return err
				}
			}
			depth--
		case xml.CharData:
			if depth >= 1 {
				if err := encoder.EncodeToken(typed); err != nil {
					return err
				}
			}
		}
	}
}
