package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
)

// DefaultNewlineReplacement is the paragraph marker Discovery renders in
// place of line breaks.
const DefaultNewlineReplacement = "<p>"

// Newline rewrites line breaks in string values into a display marker.
// Carriage returns are collapsed to bare newlines before the configured
// pattern is applied.
type Newline struct {
	pattern *regexp.Regexp
	replace string
	targets []string
}

// NewNewline builds the stage. An empty match pattern defaults to a bare
// newline; the replacement is used as given. Targets limit the rewrite to
// those field paths; no targets means every string in the record.
func NewNewline(match, replace string, targets []string) (*Newline, error) {
	if match == "" {
		match = `\n`
	}
	pattern, err := regexp.Compile(match)
	if err != nil {
		return nil, fmt.Errorf("failed to compile newline pattern %q: %w", match, err)
	}
	return &Newline{pattern: pattern, replace: replace, targets: targets}, nil
}

// Name implements Transformer.
func (stage *Newline) Name() string { return TaskNewline }

// Transform implements Transformer.
func (stage *Newline) Transform(record *jsondoc.Object) (*jsondoc.Object, error) {
	rewriteRecord(record, stage.targets, stage.rewrite)
	return record, nil
}

func (stage *Newline) rewrite(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return stage.pattern.ReplaceAllString(text, stage.replace)
}
