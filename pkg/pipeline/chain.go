package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/config"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/objectstore"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/transform"
)

// buildChain assembles the transform stages from configuration plus the
// replica holdings listed from the store. A nil fetch with no replica
// ids yields a chain whose replica stage only inserts the placeholder.
func buildChain(cfg *config.Config, replicaIDs []string, fetch transform.MetadataFetch, replicaFiles map[string][]string, logger *slog.Logger) (*transform.Chain, error) {
	var newlineTargets []string
	match, replace := "", ""
	if task := cfg.Tasks.NewlineToP; task != nil {
		newlineTargets = task.TargetColumns
		match = task.Params.Match
		replace = task.Params.Replace
	}
	if replace == "" {
		replace = transform.DefaultNewlineReplacement
	}
	newline, err := transform.NewNewline(match, replace, newlineTargets)
	if err != nil {
		return nil, fmt.Errorf("failed to build newline stage: %w", err)
	}

	var referenceTargets []string
	var allowed []string
	if task := cfg.Tasks.YNaming; task != nil {
		referenceTargets = task.TargetColumns
		if task.ReferenceList != "" {
			allowed, err = transform.LoadAllowedReferences(task.ReferenceList)
			if err != nil {
				return nil, fmt.Errorf("failed to load reference list: %w", err)
			}
		}
	}

	return transform.NewChain(
		newline,
		transform.NewYNaming(referenceTargets, allowed),
		transform.NewReplica(replicaIDs, fetch, replicaFiles, logger),
	), nil
}

// replicaIndex lists the digitised-surrogate holdings: the ids of
// records with a metadata document, and each record's file inventory
// keyed by folder name. File keys must have the exact shape
// <prefix>/<folder>/<file>; anything deeper or shallower is ignored.
func replicaIndex(ctx context.Context, store objectstore.Store, metadataPrefix, filesPrefix string) ([]string, map[string][]string, error) {
	metadataKeys, err := store.List(ctx, metadataPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list replica metadata under %s: %w", metadataPrefix, err)
	}
	seen := make(map[string]struct{}, len(metadataKeys))
	ids := make([]string, 0, len(metadataKeys))
	for _, key := range metadataKeys {
		stem := stemOf(path.Base(key))
		if stem == "" {
			continue
		}
		if _, ok := seen[stem]; ok {
			continue
		}
		seen[stem] = struct{}{}
		ids = append(ids, stem)
	}

	fileKeys, err := store.List(ctx, filesPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list replica files under %s: %w", filesPrefix, err)
	}
	files := make(map[string][]string)
	for _, key := range fileKeys {
		parts := strings.Split(key, "/")
		if len(parts) != 3 || parts[1] == "" {
			continue
		}
		files[parts[1]] = append(files[parts[1]], stemOf(parts[2]))
	}
	return ids, files, nil
}

func stemOf(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}
