// Package transform holds the per-record rewrite stages applied between
// mapping and publication. Stages are stateless and run in a fixed order;
// a failure on any record stops the whole batch.
package transform

import (
	"fmt"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
)

// Task names as they appear in pipeline configuration.
const (
	TaskNewline = "newline_to_p"
	TaskYNaming = "y_naming"
	TaskReplica = "replica"
)

// Transformer rewrites one canonical record.
type Transformer interface {
	Name() string
	Transform(record *jsondoc.Object) (*jsondoc.Object, error)
}

// Chain applies transformers in order, stopping at the first failure.
type Chain struct {
	transformers []Transformer
}

// NewChain builds a chain from the given stages.
func NewChain(transformers ...Transformer) *Chain {
	return &Chain{transformers: transformers}
}

// Names lists the chain's stages in execution order.
func (chain *Chain) Names() []string {
	names := make([]string, len(chain.transformers))
	for index, transformer := range chain.transformers {
		names[index] = transformer.Name()
	}
	return names
}

// Apply runs every stage against the record.
func (chain *Chain) Apply(record *jsondoc.Object) (*jsondoc.Object, error) {
	var err error
	for _, transformer := range chain.transformers {
		record, err = transformer.Transform(record)
		if err != nil {
			return nil, fmt.Errorf("failed to apply %s transform: %w", transformer.Name(), err)
		}
	}
	return record, nil
}

// rewriteRecord applies a string rewrite either across the whole record or
// to a configured set of field paths. Scoped paths are resolved both bare
// and under the record wrapper, since configurations predate the wrapper.
func rewriteRecord(record *jsondoc.Object, targets []string, rewrite func(string) string) {
	if len(targets) == 0 {
		jsondoc.WalkStrings(record, rewrite)
		return
	}
	for _, target := range targets {
		for _, path := range []string{target, "record." + target} {
			value, ok := jsondoc.GetPath(record, path)
			if !ok {
				continue
			}
			if text, ok := value.(string); ok {
				jsondoc.SetPath(record, path, rewrite(text))
			}
		}
	}
}
