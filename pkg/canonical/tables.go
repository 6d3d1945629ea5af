package canonical

// RootFondsID is the Discovery identifier of the root fonds. It doubles
// as the default parentId for records whose part-of reference cannot be
// resolved.
const RootFondsID = "A13530124"

// Source is the archive code every record is published under.
const Source = "PA"

// institutionParliament is the holding institution whose closed records
// stay at the Palace of Westminster rather than transferring to Kew.
const institutionParliament = "UK Parliament"

// openAccessConditions is the access statement for levels above the leaf
// threshold.
const openAccessConditions = "Open unless otherwise stated"

// LeafLevel is the first catalogue level treated as a leaf. Closure
// fields exist from this level down; creator and access-condition fields
// exist above it.
const LeafLevel = 9

// heldByReference is one row of the holding-institution table.
type heldByReference struct {
	id   string
	code string
	name string
}

var heldByReferences = map[string]heldByReference{
	"The National Archives, Kew": {id: RootFondsID, code: "66", name: "The National Archives, Kew"},
	institutionParliament:        {id: "A13531051", code: "61", name: institutionParliament},
	"British Film Institute":     {id: "A13532152", code: "2870", name: "British Film Institute (BFI) National Archive"},
}
