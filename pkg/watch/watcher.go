// Package watch monitors a drop directory for catalogue exports and
// hands each one to a handler once it has settled, with debouncing and
// state persistence so restarts do not reprocess old exports.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/fsnotify.v1"
)

// DefaultPattern matches the catalogue export files the watcher reacts to.
const DefaultPattern = "*.xml"

// DefaultDebounce is how long a file must sit unchanged before it is
// handed to the handler. Exports are written incrementally, so reacting
// to the first event would read a partial file.
const DefaultDebounce = 2 * time.Second

// Handler processes one settled export. A non-nil error leaves the file
// unprocessed so a later change can retry it.
type Handler func(ctx context.Context, path string) error

// FileState records a processed export.
type FileState struct {
	Path        string    `json:"path"`
	ModTime     time.Time `json:"mod_time"`
	Hash        string    `json:"hash,omitempty"`
	Size        int64     `json:"size"`
	ProcessedAt time.Time `json:"processed_at"`
}

// State tracks processed exports for persistence across restarts.
type State struct {
	ProcessedFiles map[string]FileState `json:"processed_files"`
	LastCheck      time.Time            `json:"last_check"`
	Version        int                  `json:"version"`
}

// NewState creates an empty watcher state.
func NewState() *State {
	return &State{
		ProcessedFiles: make(map[string]FileState),
		Version:        1,
	}
}

// Options configures a Watcher. Dir is required.
type Options struct {
	// Dir is the directory exports are dropped into. Subdirectories are
	// not watched.
	Dir string

	// Pattern is the file name glob to react to.
	Pattern string

	// Debounce is how long a file must sit unchanged before processing.
	Debounce time.Duration

	// StatePath, when set, persists processed-file state as JSON.
	StatePath string

	// ComputeHash enables content hashing so a re-exported file with an
	// unchanged modification time is still picked up.
	ComputeHash bool

	Logger *slog.Logger
}

// Watcher watches one directory and feeds settled exports to a handler.
type Watcher struct {
	dir         string
	pattern     string
	debounce    time.Duration
	statePath   string
	computeHash bool
	logger      *slog.Logger
	handler     Handler

	state   *State
	stateMu sync.RWMutex

	pending   map[string]time.Time
	pendingMu sync.Mutex

	notifier  *fsnotify.Watcher
	stopChan  chan struct{}
	running   bool
	runningMu sync.Mutex
}

// New creates a watcher that calls handler for each settled export.
func New(handler Handler, options Options) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch handler is required")
	}
	if options.Dir == "" {
		return nil, errors.New("watch directory is required")
	}
	if options.Pattern == "" {
		options.Pattern = DefaultPattern
	}
	if options.Debounce == 0 {
		options.Debounce = DefaultDebounce
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:         options.Dir,
		pattern:     options.Pattern,
		debounce:    options.Debounce,
		statePath:   options.StatePath,
		computeHash: options.ComputeHash,
		logger:      logger,
		handler:     handler,
		state:       NewState(),
		pending:     make(map[string]time.Time),
	}, nil
}

// Start loads any persisted state, queues exports already sitting in the
// directory, and begins watching for new ones. It returns once the
// watch loop is running.
func (watcher *Watcher) Start(ctx context.Context) error {
	watcher.runningMu.Lock()
	if watcher.running {
		watcher.runningMu.Unlock()
		return errors.New("watcher is already running")
	}
	watcher.running = true
	watcher.stopChan = make(chan struct{})
	watcher.runningMu.Unlock()

	fail := func(err error) error {
		watcher.runningMu.Lock()
		watcher.running = false
		watcher.runningMu.Unlock()
		return err
	}

	if watcher.statePath != "" {
		if err := watcher.LoadState(); err != nil {
			return fail(err)
		}
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return fail(fmt.Errorf("failed to create directory watcher: %w", err))
	}
	if err := notifier.Add(watcher.dir); err != nil {
		notifier.Close()
		return fail(fmt.Errorf("failed to watch %s: %w", watcher.dir, err))
	}
	watcher.notifier = notifier

	// Exports that arrived while the watcher was down go through the
	// same debounce as live ones.
	existing, err := watcher.scan()
	if err != nil {
		notifier.Close()
		return fail(err)
	}
	for _, path := range existing {
		watcher.notifyChange(path)
	}
	watcher.logger.Info("watching for exports",
		"dir", watcher.dir, "pattern", watcher.pattern, "queued", len(existing))

	go watcher.loop(ctx)
	return nil
}

// Stop ends the watch loop.
func (watcher *Watcher) Stop() error {
	watcher.runningMu.Lock()
	defer watcher.runningMu.Unlock()

	if !watcher.running {
		return errors.New("watcher is not running")
	}
	close(watcher.stopChan)
	watcher.running = false
	return nil
}

// CheckNow scans the directory and processes every unprocessed export
// immediately, without waiting for the debounce. It returns the number
// of exports handled successfully.
func (watcher *Watcher) CheckNow(ctx context.Context) (int, error) {
	paths, err := watcher.scan()
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !watcher.isNew(path, info) {
			continue
		}
		if watcher.process(ctx, path) {
			processed++
		}
	}

	watcher.stateMu.Lock()
	watcher.state.LastCheck = time.Now()
	watcher.stateMu.Unlock()
	return processed, nil
}

func (watcher *Watcher) loop(ctx context.Context) {
	defer watcher.notifier.Close()

	ticker := time.NewTicker(watcher.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-watcher.stopChan:
			return
		case event, ok := <-watcher.notifier.Events:
			if !ok {
				return
			}
			if !watcher.matches(event.Name) {
				continue
			}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				watcher.logger.Debug("export created", "path", event.Name)
				watcher.notifyChange(event.Name)
			case event.Op&fsnotify.Write == fsnotify.Write:
				watcher.notifyChange(event.Name)
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				watcher.dropPending(event.Name)
			case event.Op&fsnotify.Rename == fsnotify.Rename:
				watcher.dropPending(event.Name)
			}
		case err, ok := <-watcher.notifier.Errors:
			if !ok {
				return
			}
			watcher.logger.Error("directory watcher error", "error", err)
		case <-ticker.C:
			watcher.processSettled(ctx, time.Now())
		}
	}
}

// processSettled hands every settled pending export to the handler, in
// path order so multi-file drops process deterministically.
func (watcher *Watcher) processSettled(ctx context.Context, now time.Time) {
	for _, path := range watcher.drainSettled(now) {
		watcher.process(ctx, path)
	}
	watcher.stateMu.Lock()
	watcher.state.LastCheck = now
	watcher.stateMu.Unlock()
}

// process runs the handler for one export and marks it processed on
// success. Failures stay unmarked so the next change retries them.
func (watcher *Watcher) process(ctx context.Context, path string) bool {
	started := time.Now()
	if err := watcher.handler(ctx, path); err != nil {
		watcher.logger.Error("failed to process export", "path", path, "error", err)
		return false
	}
	if err := watcher.markProcessed(path); err != nil {
		watcher.logger.Warn("failed to record processed export", "path", path, "error", err)
	}
	watcher.logger.Info("processed export", "path", path, "elapsed", time.Since(started))
	return true
}

// drainSettled removes and returns pending paths whose last change is
// older than the debounce window and that still need processing.
func (watcher *Watcher) drainSettled(now time.Time) []string {
	watcher.pendingMu.Lock()
	defer watcher.pendingMu.Unlock()

	threshold := now.Add(-watcher.debounce)
	var settled []string
	for path, changed := range watcher.pending {
		if changed.After(threshold) {
			continue
		}
		delete(watcher.pending, path)

		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if !watcher.isNew(path, info) {
			continue
		}
		settled = append(settled, path)
	}
	sort.Strings(settled)
	return settled
}

// isNew reports whether the file is absent from the processed state or
// has changed since it was recorded.
func (watcher *Watcher) isNew(path string, info os.FileInfo) bool {
	watcher.stateMu.RLock()
	previous, known := watcher.state.ProcessedFiles[path]
	watcher.stateMu.RUnlock()

	if !known {
		return true
	}
	if info.ModTime().After(previous.ModTime) {
		return true
	}
	if watcher.computeHash && previous.Hash != "" {
		hash, err := fileHash(path)
		if err == nil && hash != previous.Hash {
			return true
		}
	}
	return false
}

// markProcessed records the export in the state and persists it when a
// state path is configured.
func (watcher *Watcher) markProcessed(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat processed export: %w", err)
	}

	var hash string
	if watcher.computeHash {
		if hash, err = fileHash(path); err != nil {
			return fmt.Errorf("failed to hash processed export: %w", err)
		}
	}

	watcher.stateMu.Lock()
	watcher.state.ProcessedFiles[path] = FileState{
		Path:        path,
		ModTime:     info.ModTime(),
		Hash:        hash,
		Size:        info.Size(),
		ProcessedAt: time.Now(),
	}
	watcher.stateMu.Unlock()

	if watcher.statePath != "" {
		return watcher.SaveState()
	}
	return nil
}

// IsProcessed reports whether the export has been handled.
func (watcher *Watcher) IsProcessed(path string) bool {
	watcher.stateMu.RLock()
	defer watcher.stateMu.RUnlock()
	_, ok := watcher.state.ProcessedFiles[path]
	return ok
}

// ProcessedCount returns the number of exports handled so far.
func (watcher *Watcher) ProcessedCount() int {
	watcher.stateMu.RLock()
	defer watcher.stateMu.RUnlock()
	return len(watcher.state.ProcessedFiles)
}

// PendingCount returns the number of exports waiting out the debounce.
func (watcher *Watcher) PendingCount() int {
	watcher.pendingMu.Lock()
	defer watcher.pendingMu.Unlock()
	return len(watcher.pending)
}

// Reset forgets all processed exports.
func (watcher *Watcher) Reset() {
	watcher.stateMu.Lock()
	defer watcher.stateMu.Unlock()
	watcher.state = NewState()
}

// SaveState writes the processed-file state to the configured path,
// using a temp file and rename so a crash never leaves a torn state.
func (watcher *Watcher) SaveState() error {
	if watcher.statePath == "" {
		return errors.New("no state path configured")
	}
	watcher.stateMu.RLock()
	data, err := json.MarshalIndent(watcher.state, "", "  ")
	watcher.stateMu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode watcher state: %w", err)
	}

	temp := watcher.statePath + ".tmp"
	if err := os.WriteFile(temp, data, 0644); err != nil {
		return fmt.Errorf("failed to write watcher state: %w", err)
	}
	if err := os.Rename(temp, watcher.statePath); err != nil {
		os.Remove(temp)
		return fmt.Errorf("failed to replace watcher state: %w", err)
	}
	return nil
}

// LoadState reads persisted state from the configured path. A missing
// file starts fresh.
func (watcher *Watcher) LoadState() error {
	data, err := os.ReadFile(watcher.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read watcher state: %w", err)
	}

	state := NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return fmt.Errorf("failed to parse watcher state: %w", err)
	}
	if state.ProcessedFiles == nil {
		state.ProcessedFiles = make(map[string]FileState)
	}

	watcher.stateMu.Lock()
	watcher.state = state
	watcher.stateMu.Unlock()
	return nil
}

func (watcher *Watcher) notifyChange(path string) {
	watcher.pendingMu.Lock()
	watcher.pending[path] = time.Now()
	watcher.pendingMu.Unlock()
}

func (watcher *Watcher) dropPending(path string) {
	watcher.pendingMu.Lock()
	delete(watcher.pending, path)
	watcher.pendingMu.Unlock()
}

func (watcher *Watcher) matches(path string) bool {
	matched, err := filepath.Match(watcher.pattern, filepath.Base(path))
	return err == nil && matched
}

// scan lists the exports currently sitting in the directory.
func (watcher *Watcher) scan() ([]string, error) {
	entries, err := os.ReadDir(watcher.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", watcher.dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !watcher.matches(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(watcher.dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func fileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
