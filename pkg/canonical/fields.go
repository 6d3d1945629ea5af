package canonical

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/axiell"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
)

// fieldContext carries the per-record inputs shared by field computations.
type fieldContext struct {
	record  *axiell.Record
	lookup  axiell.ParentLookup
	iaid    string
	level   int
	closure closureState
}

// fieldSpec computes one canonical field.
type fieldSpec struct {
	key     string
	compute func(*fieldContext) (any, error)
}

// canonicalFields lists every field of a canonical record in output order.
var canonicalFields = []fieldSpec{
	{"iaid", func(context *fieldContext) (any, error) {
		return context.iaid, nil
	}},
	{"citableReference", func(context *fieldContext) (any, error) {
		return textOrNil(context.record.ObjectNumber), nil
	}},
	{"parentId", func(context *fieldContext) (any, error) {
		if reference := context.record.PartOf.Reference; reference != "" {
			if identifier, ok := context.lookup.Resolve(reference); ok {
				return identifier, nil
			}
		}
		return RootFondsID, nil
	}},
	{"accruals", func(context *fieldContext) (any, error) {
		return textOrNil(context.record.Accruals), nil
	}},
	{"accessConditions", func(context *fieldContext) (any, error) {
		if context.level < LeafLevel {
			return openAccessConditions, nil
		}
		return nil, nil
	}},
	{"administrativeBackground", func(context *fieldContext) (any, error) {
		return textOrNil(context.record.AdminHistory), nil
	}},
	{"arrangement", func(context *fieldContext) (any, error) {
		joined := strings.TrimSpace(context.record.SystemOfArrangement + " " + context.record.ClientFilepath)
		return textOrNil(joined), nil
	}},
	{"catalogueId", func(context *fieldContext) (any, error) {
		raw := strings.TrimSpace(context.record.CatalogueID)
		if raw == "" {
			return nil, errors.New("record has no catid")
		}
		identifier, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("catid %q is not numeric", raw)
		}
		return identifier, nil
	}},
	{"catalogueLevel", func(context *fieldContext) (any, error) {
		return context.level, nil
	}},
	{"coveringFromDate", func(context *fieldContext) (any, error) {
		return numericDateOrNil(context.record.Dating.Start)
	}},
	{"coveringToDate", func(context *fieldContext) (any, error) {
		return numericDateOrNil(context.record.Dating.End)
	}},
	{"chargeType", func(context *fieldContext) (any, error) {
		return 1, nil
	}},
	{"coveringDates", func(context *fieldContext) (any, error) {
		return textOrNil(context.record.DatingNotes), nil
	}},
	{"custodialHistory", func(context *fieldContext) (any, error) {
		return textOrNil(context.record.ObjectHistoryNote), nil
	}},
	{"closureCode", func(context *fieldContext) (any, error) {
		return context.closure.code, nil
	}},
	{"closureStatus", func(context *fieldContext) (any, error) {
		return context.closure.status, nil
	}},
	{"closureType", func(context *fieldContext) (any, error) {
		return context.closure.closureType, nil
	}},
	{"recordOpeningDate", func(context *fieldContext) (any, error) {
		return context.closure.openingDate, nil
	}},
	{"copiesInformation", func(context *fieldContext) (any, error) {
		entry := jsondoc.NewObject()
		entry.Set("xReferenceName", nil)
		entry.Set("xReferenceDescription", nil)
		entry.Set("description", textOrNil(context.record.ExistenceOfCopies))
		return []any{entry}, nil
	}},
	{"creatorName", func(context *fieldContext) (any, error) {
		if context.level >= LeafLevel {
			return nil, nil
		}
		creators := []any{}
		for _, production := range context.record.Productions {
			creators = append(creators, nameReference(textOrNil(production.Creator)))
		}
		if len(creators) == 0 {
			creators = append(creators, nameReference(nil))
		}
		return creators, nil
	}},
	{"digitised", func(context *fieldContext) (any, error) {
		return context.record.Digitised == "x", nil
	}},
	{"formerReferenceDep", func(context *fieldContext) (any, error) {
		return textOrNil(context.record.AlternativeNumber(axiell.AlternativeTypeFormerDepartment)), nil
	}},
	{"formerReferencePro", func(context *fieldContext) (any, error) {
		return textOrNil(context.record.AlternativeNumber(axiell.AlternativeTypeFormerArchival)), nil
	}},
	{"heldBy", func(context *fieldContext) (any, error) {
		reference, ok := heldByReferences[context.record.InstitutionName]
		if !ok {
			return []any{}, nil
		}
		entry := jsondoc.NewObject()
		entry.Set("xReferenceId", reference.id)
		entry.Set("xReferenceCode", reference.code)
		entry.Set("xReferenceName", reference.name)
		return []any{entry}, nil
	}},
	{"immediateSourceOfAcquisition", func(context *fieldContext) (any, error) {
		entry := jsondoc.NewObject()
		entry.Set("xReferenceName", nil)
		entry.Set("xReferenceDescription", textOrNil(context.record.AcquisitionNotes))
		entry.Set("preTitle", nil)
		entry.Set("title", nil)
		entry.Set("firstName", nil)
		entry.Set("surname", nil)
		entry.Set("startDate", 0)
		entry.Set("endDate", 0)
		return []any{entry}, nil
	}},
	{"language", func(context *fieldContext) (any, error) {
		return textOrNil(context.record.Inscription.Language), nil
	}},
	{"legalStatus", func(context *fieldContext) (any, error) {
		return textOrNil(context.record.LegalStatus.Value("0")), nil
	}},
	{"locationOfOriginals", func(context *fieldContext) (any, error) {
		entry := jsondoc.NewObject()
		entry.Set("xReferenceName", nil)
		entry.Set("xReferenceDescription", textOrNil(context.record.ExistenceOfOriginals))
		return []any{entry}, nil
	}},
	{"physicalDescriptionExtent", func(context *fieldContext) (any, error) {
		pairs := extentPairs(context.record)
		if len(pairs) == 0 {
			return nil, nil
		}
		return pairs[0].value, nil
	}},
	{"physicalDescriptionForm", func(context *fieldContext) (any, error) {
		forms := []any{}
		for index, pair := range extentPairs(context.record) {
			if index == 0 {
				if pair.form != "" {
					forms = append(forms, " "+pair.form)
				}
				continue
			}
			forms = append(forms, strings.TrimSpace(pair.value+" "+pair.form))
		}
		return forms, nil
	}},
	{"referencePart", func(context *fieldContext) (any, error) {
		return referencePart(context.record.ObjectNumber)
	}},
	{"publicationNote", func(context *fieldContext) (any, error) {
		return []any{textOrNil(context.record.PublicationNote)}, nil
	}},
	{"relatedMaterial", func(context *fieldContext) (any, error) {
		entry := jsondoc.NewObject()
		entry.Set("xReferenceId", nil)
		entry.Set("description", textOrNil(context.record.RelatedMaterial))
		return []any{entry}, nil
	}},
	{"separatedMaterial", func(context *fieldContext) (any, error) {
		entry := jsondoc.NewObject()
		entry.Set("xReferenceId", nil)
		entry.Set("description", textOrNil(context.record.SeparatedMaterial))
		return []any{entry}, nil
	}},
	{"scopeContent", func(context *fieldContext) (any, error) {
		return scopeContent(context.record), nil
	}},
	{"source", func(context *fieldContext) (any, error) {
		return Source, nil
	}},
	{"title", func(context *fieldContext) (any, error) {
		return textOrNil(context.record.Title.Title), nil
	}},
	{"unpublishedFindingAids", func(context *fieldContext) (any, error) {
		return []any{textOrNil(context.record.FindingAids.Text)}, nil
	}},
}

var referencePartPattern = regexp.MustCompile(`[^/]+$`)

// referencePart cuts the final segment from a citable reference. A
// reference with no final segment cannot be published.
func referencePart(objectNumber string) (any, error) {
	if objectNumber == "" {
		return nil, errors.New("record has no object_number")
	}
	part := referencePartPattern.FindString(objectNumber)
	if part == "" {
		return nil, fmt.Errorf("object_number %q has no final reference segment", objectNumber)
	}
	return part, nil
}

// nameReference builds one creator entry. Dates default to zero rather
// than null to keep the ingest schema's numeric typing.
func nameReference(name any) *jsondoc.Object {
	entry := jsondoc.NewObject()
	entry.Set("xReferenceName", name)
	entry.Set("preTitle", nil)
	entry.Set("title", nil)
	entry.Set("firstName", nil)
	entry.Set("surname", nil)
	entry.Set("startDate", 0)
	entry.Set("endDate", 0)
	return entry
}

// scopeContent builds the scope-and-content block around the description
// text. The refferedToDate spelling matches the ingest schema.
func scopeContent(record *axiell.Record) *jsondoc.Object {
	person := jsondoc.NewObject()
	person.Set("firstName", nil)
	person.Set("surname", nil)
	place := jsondoc.NewObject()
	place.Set("xReferenceName", nil)
	organization := jsondoc.NewObject()
	organization.Set("xReferenceName", nil)

	content := jsondoc.NewObject()
	content.Set("personNames", []any{person})
	content.Set("placeNames", []any{place})
	content.Set("refferedToDate", nil)
	content.Set("organizations", []any{organization})
	content.Set("description", textOrNil(record.ContentDescription.Description))
	content.Set("ephemera", nil)
	content.Set("occupations", nil)
	content.Set("schema", nil)
	return content
}

type extentPair struct {
	value string
	form  string
}

func extentPairs(record *axiell.Record) []extentPair {
	var pairs []extentPair
	for _, extent := range record.Extents {
		if extent.Value == "" && extent.Form == "" {
			continue
		}
		pairs = append(pairs, extentPair{value: extent.Value, form: extent.Form})
	}
	return pairs
}

func textOrNil(text string) any {
	if text == "" {
		return nil
	}
	return text
}

func numericDateOrNil(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}
	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, fmt.Errorf("covering date %q is not numeric", text)
	}
	return value, nil
}
