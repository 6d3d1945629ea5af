package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/axiell"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/config"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/jsondoc"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/objectstore"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/pipeline"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/register"
	"github.com/nationalarchives/ctd-pa-transformations-for-discovery/pkg/watch"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ctd",
		Short: "Parliamentary Archives catalogue transformations for Discovery",
		Long: `ctd converts Axiell catalogue exports from the Parliamentary Archives
into Discovery JSON records and publishes them as archive bundles,
tracking what has already been transferred.

It parses catalogue export XML and produces:
  - Canonical Discovery JSON for every record
  - Y-named citable references and newline markup cleanup
  - Replica metadata attached to digitised records
  - Chunked tar.gz bundles grouped by catalogue level
  - A transfer register that stops double publication`,
		Version: version,
	}

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		configureLogging(level)
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(convertCmd())
	rootCmd.AddCommand(mergeCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func configureLogging(level string) {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Transform one catalogue export and publish it",
		Long: `Run the full publish pipeline for a catalogue export: parse the XML,
map every record to Discovery JSON, apply the configured transformations,
pack the records into tar.gz bundles grouped by catalogue level, upload
them to the store, and update the transfer register.

Example:
  ctd run --source exports/parl_fonds.xml --store ./store
  ctd run --source exports/parl_fonds.xml --store ./store --dry-run --intermediate-dir ./debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, _ := cmd.Flags().GetString("source")
			if source == "" {
				return fmt.Errorf("--source flag is required")
			}
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			result := pipeline.Run(cmd.Context(), source, pipelineOptions(cmd, store, cfg))
			return printResult(cmd, result)
		},
	}

	cmd.Flags().StringP("source", "s", "", "Catalogue export XML to process")
	cmd.Flags().Bool("json", false, "Print the run result as JSON")
	addStoreFlags(cmd)
	addPipelineFlags(cmd)
	return cmd
}

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a catalogue export to Discovery JSON files",
		Long: `Convert maps a catalogue export to transformed Discovery JSON without
publishing anything: no store is touched, no replica metadata is
attached, and the transfer register is left alone. One JSON file is
written per record, named by its IAID.

Example:
  ctd convert --source exports/parl_fonds.xml --output ./json
  ctd convert --source exports/parl_fonds.xml --output ./json --keep-empty`,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, _ := cmd.Flags().GetString("source")
			output, _ := cmd.Flags().GetString("output")
			keepEmpty, _ := cmd.Flags().GetBool("keep-empty")
			filterIAID, _ := cmd.Flags().GetString("filter-iaid")

			if source == "" {
				return fmt.Errorf("--source flag is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			fmt.Printf("Converting %s\n", source)
			started := time.Now()
			entries, err := pipeline.Convert(source, pipeline.ConvertOptions{
				Config:     cfg,
				FilterIAID: filterIAID,
				KeepEmpty:  keepEmpty,
			})
			if err != nil {
				return err
			}

			if err := os.MkdirAll(output, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			for _, entry := range entries {
				data, err := jsondoc.Encode(entry.Record)
				if err != nil {
					return fmt.Errorf("failed to encode %s: %w", entry.ID, err)
				}
				target := filepath.Join(output, entry.ID+".json")
				if err := os.WriteFile(target, data, 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", target, err)
				}
			}
			fmt.Printf("Converted %d records to %s in %v\n",
				len(entries), output, time.Since(started).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringP("source", "s", "", "Catalogue export XML to convert")
	cmd.Flags().StringP("output", "o", "json_outputs", "Directory for the JSON files")
	cmd.Flags().Bool("keep-empty", false, "Keep null fields and empty containers in the output")
	cmd.Flags().String("filter-iaid", "", "Convert only the record with this IAID")
	cmd.Flags().String("config", "", "Transformation config file (JSON or YAML); defaults to TRANS_CONFIG")
	return cmd
}

func mergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge catalogue exports into one document",
		Long: `Merge combines every catalogue export in a directory into a single
document under a MergedData root, so one run can publish a whole batch.
Files whose names do not identify a catalogue tree level are ignored,
and unparseable files are skipped with a warning.

Example:
  ctd merge --input-dir ./exports --output merged.xml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputDir, _ := cmd.Flags().GetString("input-dir")
			output, _ := cmd.Flags().GetString("output")

			paths, err := axiell.ListExports(inputDir)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no catalogue exports found in %s", inputDir)
			}

			var buffer bytes.Buffer
			merged, err := axiell.Merge(&buffer, paths, slog.Default())
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, buffer.Bytes(), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Printf("Merged %d of %d exports into %s\n", merged, len(paths), output)
			return nil
		},
	}

	cmd.Flags().StringP("input-dir", "i", ".", "Directory containing catalogue exports")
	cmd.Flags().StringP("output", "o", "merged.xml", "Merged output file")
	return cmd
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Inspect the transfer register",
	}

	cmd.PersistentFlags().String("store", "", "Store root directory the register lives in")
	cmd.PersistentFlags().String("output-prefix", pipeline.DefaultOutputPrefix, "Store prefix the register lives under")
	cmd.PersistentFlags().String("register-file", register.DefaultFilename, "Transfer register file name")

	cmd.AddCommand(registerStatusCmd())
	cmd.AddCommand(registerShowCmd())
	return cmd
}

func registerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize what has been published",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, key, err := loadRegister(cmd)
			if err != nil {
				return err
			}
			fmt.Print(pipeline.FormatRegisterStatus(key, reg))
			return nil
		},
	}
}

func registerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [iaid]",
		Short: "Show register entries as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := loadRegister(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				entry, ok := reg.Records[args[0]]
				if !ok {
					return fmt.Errorf("no register entry for %s", args[0])
				}
				return printJSON(map[string]register.Entry{args[0]: entry})
			}
			return printJSON(reg.Records)
		},
	}
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and publish new exports",
		Long: `Watch monitors a drop directory and runs the publish pipeline for
every catalogue export that lands in it, once the file has settled.
Processed files are remembered across restarts when --state is set.

Runs until interrupted.

Example:
  ctd watch --input-dir ./exports --store ./store --state ./exports/.processed.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("input-dir")
			statePath, _ := cmd.Flags().GetString("state")
			pattern, _ := cmd.Flags().GetString("pattern")
			debounce, _ := cmd.Flags().GetDuration("debounce")
			computeHash, _ := cmd.Flags().GetBool("hash")

			if dir == "" {
				return fmt.Errorf("--input-dir flag is required")
			}
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			options := pipelineOptions(cmd, store, cfg)

			watcher, err := watch.New(func(ctx context.Context, source string) error {
				result := pipeline.Run(ctx, source, options)
				if !result.OK() {
					return errors.New(result.Message)
				}
				fmt.Println(result.Message)
				return nil
			}, watch.Options{
				Dir:         dir,
				Pattern:     pattern,
				Debounce:    debounce,
				StatePath:   statePath,
				ComputeHash: computeHash,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := watcher.Start(ctx); err != nil {
				return err
			}
			fmt.Printf("Watching %s for catalogue exports (Ctrl-C to stop)\n", dir)
			<-ctx.Done()
			_ = watcher.Stop()
			fmt.Printf("\nStopped after processing %d exports\n", watcher.ProcessedCount())
			return nil
		},
	}

	cmd.Flags().StringP("input-dir", "i", "", "Directory to watch for exports")
	cmd.Flags().String("state", "", "File persisting which exports were processed")
	cmd.Flags().String("pattern", watch.DefaultPattern, "File name pattern to react to")
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "How long a file must sit unchanged before processing")
	cmd.Flags().Bool("hash", false, "Hash file contents to detect re-exports with unchanged timestamps")
	addStoreFlags(cmd)
	addPipelineFlags(cmd)
	return cmd
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", "", "Store root directory the bundles and register live in")
	cmd.Flags().String("output-prefix", pipeline.DefaultOutputPrefix, "Store prefix for published bundles and the register")
	cmd.Flags().String("metadata-prefix", pipeline.DefaultMetadataPrefix, "Store prefix for replica metadata")
	cmd.Flags().String("files-prefix", pipeline.DefaultFilesPrefix, "Store prefix for replica files")
	cmd.Flags().String("register-file", register.DefaultFilename, "Transfer register file name")
}

func addPipelineFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Transformation config file (JSON or YAML); defaults to TRANS_CONFIG")
	cmd.Flags().Int("chunk-size", 0, "Records per chunk bundle (0 uses the config value)")
	cmd.Flags().String("intermediate-dir", "", "Directory for pre- and post-transform JSON dumps")
	cmd.Flags().String("filter-iaid", "", "Process only the record with this IAID")
	cmd.Flags().Bool("no-register", false, "Skip transfer register deduplication")
	cmd.Flags().Bool("no-level-dirs", false, "Pack all records into one bundle instead of per-level bundles")
	cmd.Flags().Bool("dry-run", false, "Build bundles without uploading or updating the register")
}

func openStore(cmd *cobra.Command) (*objectstore.FileStore, error) {
	root, _ := cmd.Flags().GetString("store")
	if root == "" {
		return nil, fmt.Errorf("--store flag is required")
	}
	return objectstore.NewFileStore(root)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		return config.FromEnv()
	}
	return config.LoadFile(configPath)
}

func pipelineOptions(cmd *cobra.Command, store objectstore.Store, cfg *config.Config) pipeline.Options {
	outputPrefix, _ := cmd.Flags().GetString("output-prefix")
	registerFile, _ := cmd.Flags().GetString("register-file")
	metadataPrefix, _ := cmd.Flags().GetString("metadata-prefix")
	filesPrefix, _ := cmd.Flags().GetString("files-prefix")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	intermediateDir, _ := cmd.Flags().GetString("intermediate-dir")
	filterIAID, _ := cmd.Flags().GetString("filter-iaid")
	noRegister, _ := cmd.Flags().GetBool("no-register")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noLevelDirs, _ := cmd.Flags().GetBool("no-level-dirs")

	if noLevelDirs {
		cfg.RecordLevelDirs = false
	}
	return pipeline.Options{
		Store:           store,
		Config:          cfg,
		OutputPrefix:    outputPrefix,
		RegisterFile:    registerFile,
		MetadataPrefix:  metadataPrefix,
		FilesPrefix:     filesPrefix,
		ChunkSize:       chunkSize,
		IntermediateDir: intermediateDir,
		FilterIAID:      filterIAID,
		DisableRegister: noRegister,
		DryRun:          dryRun,
	}
}

func loadRegister(cmd *cobra.Command) (*register.Register, string, error) {
	store, err := openStore(cmd)
	if err != nil {
		return nil, "", err
	}
	prefix, _ := cmd.Flags().GetString("output-prefix")
	file, _ := cmd.Flags().GetString("register-file")
	key := path.Join(strings.Trim(prefix, "/"), file)

	reg, err := register.Load(cmd.Context(), store, key)
	if err != nil {
		return nil, "", err
	}
	return reg, key, nil
}

func printResult(cmd *cobra.Command, result pipeline.Result) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		if err := printJSON(result); err != nil {
			return err
		}
		if !result.OK() {
			return fmt.Errorf("run failed: %s", result.Message)
		}
		return nil
	}

	if !result.OK() {
		return fmt.Errorf("run failed: %s", result.Message)
	}
	fmt.Print(pipeline.FormatRunReport(result))
	return nil
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
