// Package axiell parses Axiell catalogue management exports into typed
// records and applies the document-wide normalizations the mapping stage
// expects.
package axiell

// Alternative number types carried by catalogue exports.
const (
	AlternativeTypeCALMRecordID    = "CALM RecordID"
	AlternativeTypeFormerDepartment = "Former reference (Department)"
	AlternativeTypeFormerArchival   = "Former archival reference"
)

// Document is a parsed catalogue export.
type Document struct {
	Records []*Record
}

// Record is one <record> element of an export.
type Record struct {
	ObjectNumber         string              `xml:"object_number"`
	RecordType           ValueGroup          `xml:"record_type"`
	AlternativeNumbers   []AlternativeNumber `xml:"Alternative_number"`
	PartOf               PartOf              `xml:"Part_of"`
	Accruals             string              `xml:"accruals"`
	AdminHistory         string              `xml:"admin_history"`
	SystemOfArrangement  string              `xml:"system_of_arrangement"`
	ClientFilepath       string              `xml:"client_filepath"`
	CatalogueID          string              `xml:"catid"`
	Dating               Dating              `xml:"Dating"`
	DatingNotes          string              `xml:"dating.notes"`
	ObjectHistoryNote    string              `xml:"object_history_note"`
	InstitutionName      string              `xml:"institution.name"`
	AccessStatus         ValueGroup          `xml:"access_status"`
	ClosedUntil          string              `xml:"closed_until"`
	ExistenceOfCopies    string              `xml:"existence_of_copies"`
	Productions          []Production        `xml:"Production"`
	Digitised            string              `xml:"digitised"`
	AcquisitionNotes     string              `xml:"acquisition.notes"`
	Inscription          Inscription         `xml:"Inscription"`
	LegalStatus          ValueGroup          `xml:"legal_status"`
	ExistenceOfOriginals string              `xml:"existence_of_originals"`
	Extents              []Extent            `xml:"Extent"`
	PublicationNote      string              `xml:"publication_note"`
	RelatedMaterial      string              `xml:"related_material.free_text"`
	SeparatedMaterial    string              `xml:"separated_material.free_text"`
	ContentDescription   ContentDescription  `xml:"Content_description"`
	Title                TitleGroup          `xml:"Title"`
	FindingAids          FindingAids         `xml:"Finding_aids"`
}

// ValueGroup holds the language-qualified values of a coded field such as
// record_type or access_status.
type ValueGroup struct {
	Values []LangValue `xml:"value"`
}

// Value returns the text of the first value carrying the given language
// code, or the empty string.
func (group ValueGroup) Value(lang string) string {
	for _, value := range group.Values {
		if value.Lang == lang {
			return value.Text
		}
	}
	return ""
}

// LangValue is a <value lang="..."> element.
type LangValue struct {
	Lang string `xml:"lang,attr"`
	Text string `xml:",chardata"`
}

// AlternativeNumber is one <Alternative_number> grouping.
type AlternativeNumber struct {
	Number string `xml:"alternative_number"`
	Type   string `xml:"alternative_number.type"`
}

// PartOf links a record to its parent via the parent's object number.
type PartOf struct {
	Reference string `xml:"part_of_reference"`
}

// Dating carries the machine-readable covering dates.
type Dating struct {
	Start string `xml:"dating.date.start"`
	End   string `xml:"dating.date.end"`
}

// Production names one creator of the material.
type Production struct {
	Creator string `xml:"creator"`
}

// Inscription carries the language note.
type Inscription struct {
	Language string `xml:"inscription.language"`
}

// Extent is one physical description pairing.
type Extent struct {
	Value string `xml:"extent.value"`
	Form  string `xml:"extent.form"`
}

// ContentDescription carries the scope and content free text.
type ContentDescription struct {
	Description string `xml:"content.description"`
}

// TitleGroup carries the record title.
type TitleGroup struct {
	Title string `xml:"title"`
}

// FindingAids carries the unpublished finding aids note.
type FindingAids struct {
	Text string `xml:"finding_aids"`
}

// AlternativeNumber returns the first alternative number of the given type,
// or the empty string.
func (record *Record) AlternativeNumber(numberType string) string {
	for _, alternative := range record.AlternativeNumbers {
		if alternative.Type == numberType {
			return alternative.Number
		}
	}
	return ""
}

// CALMRecordID returns the record's CALM identifier, the id records are
// published under.
func (record *Record) CALMRecordID() string {
	return record.AlternativeNumber(AlternativeTypeCALMRecordID)
}
