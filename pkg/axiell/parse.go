package axiell

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// Parse reads a catalogue export and collects every <record> element,
// wherever it sits in the document tree. Exports arrive both as plain
// Axiell dumps and as merged trees, so the surrounding structure is not
// assumed. Parsing is strict: a malformed or truncated export is an
// error, never a partial document.
func Parse(reader io.Reader) (*Document, error) {
	decoder := xml.NewDecoder(reader)

	document := &Document{}
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse export XML: %w", err)
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "record" {
			continue
		}
		record := &Record{}
		if err := decoder.DecodeElement(record, &start); err != nil {
			return nil, fmt.Errorf("failed to parse record element: %w", err)
		}
		document.Records = append(document.Records, record)
	}
	return document, nil
}

// ParseFile parses the export at the given path.
func ParseFile(path string) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export file: %w", err)
	}
	defer file.Close()

	document, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return document, nil
}
