// Package canonical maps parsed catalogue records onto the Discovery
// record schema. Field order is part of the output contract, so records
// are built as insertion-ordered documents rather than plain maps.
package canonical

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/axiell"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
)

var errNoCALMRecordID = errors.New("record has no CALM RecordID alternative number")

// RecordError reports the record and field that failed during mapping.
type RecordError struct {
	ObjectNumber string
	Field        string
	Err          error
}

func (err *RecordError) Error() string {
	if err.ObjectNumber == "" {
		return fmt.Sprintf("failed to map field %s: %v", err.Field, err.Err)
	}
	return fmt.Sprintf("failed to map field %s of record %s: %v", err.Field, err.ObjectNumber, err.Err)
}

func (err *RecordError) Unwrap() error { return err.Err }

// MapOptions adjust how a document is mapped.
type MapOptions struct {
	// KeepEmpty retains null fields and empty containers instead of
	// pruning them from each record.
	KeepEmpty bool
}

// Map converts every record of a preprocessed document into its canonical
// form, keyed by IAID. Each value wraps the record under a "record" key;
// a record pruned down to nothing still appears as an empty object so
// every input id shows up in the output exactly once. Any per-record
// failure aborts the whole document.
func Map(document *axiell.Document, options MapOptions) (map[string]*jsondoc.Object, error) {
	lookup := axiell.NewParentLookup(document)
	records := make(map[string]*jsondoc.Object, len(document.Records))
	for _, record := range document.Records {
		iaid := record.CALMRecordID()
		if iaid == "" {
			return nil, &RecordError{ObjectNumber: record.ObjectNumber, Field: "iaid", Err: errNoCALMRecordID}
		}
		level, err := catalogueLevel(record)
		if err != nil {
			return nil, &RecordError{ObjectNumber: record.ObjectNumber, Field: "catalogueLevel", Err: err}
		}
		closure, err := deriveClosure(record, level)
		if err != nil {
			return nil, &RecordError{ObjectNumber: record.ObjectNumber, Field: "closureStatus", Err: err}
		}

		context := &fieldContext{
			record:  record,
			lookup:  lookup,
			iaid:    iaid,
			level:   level,
			closure: closure,
		}
		object, err := buildRecord(context)
		if err != nil {
			return nil, err
		}

		wrapped := jsondoc.NewObject()
		if options.KeepEmpty {
			wrapped.Set("record", object)
		} else {
			pruned := jsondoc.Prune(object)
			if pruned == nil {
				pruned = jsondoc.NewObject()
			}
			wrapped.Set("record", pruned)
		}
		records[iaid] = wrapped
	}
	return records, nil
}

func buildRecord(context *fieldContext) (*jsondoc.Object, error) {
	object := jsondoc.NewObject()
	for _, field := range canonicalFields {
		value, err := field.compute(context)
		if err != nil {
			return nil, &RecordError{ObjectNumber: context.record.ObjectNumber, Field: field.key, Err: err}
		}
		object.Set(field.key, value)
	}
	return object, nil
}

func catalogueLevel(record *axiell.Record) (int, error) {
	raw := strings.TrimSpace(record.RecordType.Value("neutral"))
	if raw == "" {
		return 0, errors.New("record has no neutral record_type value")
	}
	level, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("record_type %q is not a level number", raw)
	}
	return level, nil
}
