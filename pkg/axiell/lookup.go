package axiell

// ParentLookup maps object numbers to CALM record identifiers so child
// records can resolve their parent id from a part-of reference.
type ParentLookup map[string]string

// NewParentLookup indexes every record that carries both an object number
// and a CALM identifier. Records missing either are skipped; they can
// never be referenced as parents.
func NewParentLookup(document *Document) ParentLookup {
	lookup := make(ParentLookup)
	for _, record := range document.Records {
		if record.ObjectNumber == "" {
			continue
		}
		identifier := record.CALMRecordID()
		if identifier == "" {
			continue
		}
		lookup[record.ObjectNumber] = identifier
	}
	return lookup
}

// Resolve returns the CALM identifier for a part-of reference.
func (lookup ParentLookup) Resolve(reference string) (string, bool) {
	identifier, ok := lookup[reference]
	return identifier, ok
}
