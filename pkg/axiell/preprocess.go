package axiell

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// recordTypeLevels maps the export's hierarchy labels to catalogue level
// numbers.
var recordTypeLevels = map[string]int{
	"FONDS":                  1,
	"SUB-FONDS":              2,
	"SUB-SUB-FONDS":          3,
	"SUB-SUB-SUB-FONDS":      4,
	"SUB-SUB-SUB-SUB-FONDS":  5,
	"SERIES":                 6,
	"SUB-SERIES":             7,
	"SUB-SUB-SERIES":         8,
	"FILE":                   9,
	"ITEM":                   10,
}

var isoDatePattern = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)

// Preprocess returns a copy of the document with the export-wide
// normalizations applied: record type labels become level numbers, client
// filepaths gain their provenance prefix, covering dates are compacted to
// digits, and language lists are joined into prose. The input document is
// left untouched.
func Preprocess(document *Document) *Document {
	normalized := document.clone()
	for _, record := range normalized.Records {
		normalizeRecordType(record)
		normalizeClientFilepath(record)
		record.Dating.Start = compactISODates(record.Dating.Start)
		record.Dating.End = compactISODates(record.Dating.End)
		record.Inscription.Language = joinLanguages(record.Inscription.Language)
	}
	return normalized
}

func normalizeRecordType(record *Record) {
	for index, value := range record.RecordType.Values {
		if value.Lang != "neutral" {
			continue
		}
		if level, ok := recordTypeLevels[strings.TrimSpace(value.Text)]; ok {
			record.RecordType.Values[index].Text = strconv.Itoa(level)
		}
	}
}

func normalizeClientFilepath(record *Record) {
	trimmed := strings.TrimSpace(record.ClientFilepath)
	if trimmed == "" {
		return
	}
	record.ClientFilepath = "Original filepath:" + trimmed
}

func compactISODates(text string) string {
	if text == "" {
		return text
	}
	return isoDatePattern.ReplaceAllString(text, "${1}${2}${3}")
}

// joinLanguages turns "English; French; Latin" into "English, French and
// Latin". All entries before the final one are sorted; the final entry
// keeps its place.
func joinLanguages(text string) string {
	if text == "" {
		return text
	}
	parts := strings.Split(text, ";")
	languages := make([]string, len(parts))
	for index, part := range parts {
		languages[index] = strings.TrimSpace(part)
	}
	if len(languages) < 2 {
		return text
	}
	head := append([]string(nil), languages[:len(languages)-1]...)
	sort.Strings(head)
	return strings.Join(head, ", ") + " and " + languages[len(languages)-1]
}

func (document *Document) clone() *Document {
	records := make([]*Record, len(document.Records))
	for index, record := range document.Records {
		copied := *record
		copied.RecordType.Values = append([]LangValue(nil), record.RecordType.Values...)
		copied.AccessStatus.Values = append([]LangValue(nil), record.AccessStatus.Values...)
		copied.LegalStatus.Values = append([]LangValue(nil), record.LegalStatus.Values...)
		copied.AlternativeNumbers = append([]AlternativeNumber(nil), record.AlternativeNumbers...)
		copied.Productions = append([]Production(nil), record.Productions...)
		copied.Extents = append([]Extent(nil), record.Extents...)
		records[index] = &copied
	}
	return &Document{Records: records}
}
