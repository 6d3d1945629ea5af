package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/axiell"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/bundle"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/canonical"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/config"
)

// ConvertOptions configures a mapping-only conversion.
type ConvertOptions struct {
	// Config is the transformation rule set; nil falls back to the
	// environment, then the production defaults.
	Config *config.Config

	// FilterIAID reduces the document to a single record before mapping.
	FilterIAID string

	// KeepEmpty retains null fields and empty containers in the output.
	KeepEmpty bool

	Logger *slog.Logger
}

// Convert maps one export to transformed canonical records without
// touching an object store: no replica metadata is attached and nothing
// is published. Records keep their document order.
func Convert(source string, options ConvertOptions) ([]bundle.Entry, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := options.Config
	if cfg == nil {
		loaded, err := config.FromEnv()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	document, err := axiell.ParseFile(source)
	if err != nil {
		return nil, err
	}
	if options.FilterIAID != "" {
		if document, err = axiell.FilterByIAID(document, options.FilterIAID); err != nil {
			return nil, err
		}
	}
	document = axiell.Preprocess(document)

	mapped, err := canonical.Map(document, canonical.MapOptions{KeepEmpty: options.KeepEmpty})
	if err != nil {
		return nil, err
	}

	chain, err := buildChain(cfg, nil, nil, nil, logger)
	if err != nil {
		return nil, err
	}

	entries := make([]bundle.Entry, 0, len(mapped))
	seen := make(map[string]struct{}, len(mapped))
	for _, record := range document.Records {
		id := record.CALMRecordID()
		original, ok := mapped[id]
		if !ok {
			continue
		}
		if _, done := seen[id]; done {
			continue
		}
		seen[id] = struct{}{}

		transformed, err := chain.Apply(original)
		if err != nil {
			return nil, fmt.Errorf("failed to transform record %s: %w", id, err)
		}
		entries = append(entries, bundle.Entry{ID: id, Record: transformed})
	}
	return entries, nil
}
