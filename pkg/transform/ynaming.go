package transform

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
)

var (
	aptPattern      = regexp.MustCompile(`(?i)\bAPT/`)
	segmentPattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	alphaPattern    = regexp.MustCompile(`^[A-Za-z]+$`)
	embeddedPattern = regexp.MustCompile(`[A-Z0-9-]+(?:/[A-Z0-9-]+)+/?`)
)

// IsReferenceLike reports whether a token has the shape of a citable
// reference: an alphabetic prefix followed by one to nine slash-separated
// alphanumeric segments, with no internal whitespace. Single-letter
// prefixes other than "S" are rejected, as is anything in the APT
// accession series.
func IsReferenceLike(token string) bool {
	stripped := strings.TrimSpace(token)
	if len(stripped) < 2 || len(stripped) > 250 {
		return false
	}
	if aptPattern.MatchString(token) {
		return false
	}
	if count := strings.Count(stripped, "/"); count < 1 || count > 9 {
		return false
	}
	segments := strings.Split(stripped, "/")
	for _, segment := range segments {
		if !segmentPattern.MatchString(segment) {
			return false
		}
	}
	prefix := segments[0]
	if !alphaPattern.MatchString(prefix) {
		return false
	}
	return len(prefix) > 1 || prefix == "S"
}

// ApplyYNaming rewrites a reference's prefix to its Y-form: PARL becomes
// YUKP, a prefix already starting with Y is left alone, and anything else
// gains a leading Y and is truncated to four characters.
func ApplyYNaming(token string) string {
	stripped := strings.TrimSpace(token)
	prefix, rest, found := strings.Cut(stripped, "/")
	if !found || !alphaPattern.MatchString(prefix) {
		return token
	}
	switch {
	case prefix == "PARL":
		prefix = "YUKP"
	case strings.HasPrefix(prefix, "Y"):
		return stripped
	default:
		prefix = "Y" + strings.ToUpper(prefix)
		if len(prefix) > 4 {
			prefix = prefix[:4]
		}
	}
	return prefix + "/" + rest
}

// YNaming rewrites Parliamentary Archives references to the Y-prefixed
// series Discovery files them under. An optional allow-list restricts
// rewriting to known references; without one, every reference-like token
// is rewritten.
type YNaming struct {
	targets []string
	allowed map[string]struct{}
}

// NewYNaming builds the stage. Targets limit the rewrite to those field
// paths; no targets means every string in the record.
func NewYNaming(targets []string, allowedReferences []string) *YNaming {
	stage := &YNaming{targets: targets}
	if len(allowedReferences) > 0 {
		stage.allowed = make(map[string]struct{}, len(allowedReferences))
		for _, reference := range allowedReferences {
			stage.allowed[strings.TrimSpace(reference)] = struct{}{}
		}
	}
	return stage
}

// Name implements Transformer.
func (stage *YNaming) Name() string { return TaskYNaming }

// Transform implements Transformer.
func (stage *YNaming) Transform(record *jsondoc.Object) (*jsondoc.Object, error) {
	rewriteRecord(record, stage.targets, stage.rewrite)
	return record, nil
}

func (stage *YNaming) permitted(token string) bool {
	if stage.allowed == nil {
		return true
	}
	_, ok := stage.allowed[strings.TrimSpace(token)]
	return ok
}

// rewrite normalizes a value that is itself reference-like; otherwise it
// scans for embedded reference-like tokens and rewrites each in place,
// leaving all surrounding text untouched.
func (stage *YNaming) rewrite(text string) string {
	if IsReferenceLike(text) {
		if stage.permitted(text) {
			return ApplyYNaming(text)
		}
		return text
	}
	return embeddedPattern.ReplaceAllStringFunc(text, func(match string) string {
		if !IsReferenceLike(match) || !stage.permitted(match) {
			return match
		}
		return ApplyYNaming(match)
	})
}

// LoadAllowedReferences reads an allow-list file with one reference per
// line. Blank lines and #-prefixed comments are skipped.
func LoadAllowedReferences(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open allow-list: %w", err)
	}
	defer file.Close()

	var references []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		references = append(references, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read allow-list: %w", err)
	}
	return references, nil
}
