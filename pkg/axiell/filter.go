package axiell

import "fmt"

// FilterByIAID returns a new document holding only the record whose CALM
// identifier matches. Used to cut a single record out of a large export
// for QA reruns.
func FilterByIAID(document *Document, iaid string) (*Document, error) {
	for _, record := range document.Records {
		if record.CALMRecordID() == iaid {
			return &Document{Records: []*Record{record}}, nil
		}
	}
	return nil, fmt.Errorf("no record with CALM identifier %q in export", iaid)
}
