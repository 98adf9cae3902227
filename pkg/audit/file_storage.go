package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStorage implements Storage as newline-delimited JSON under a fixed
// directory. The file it appends to is named audit-YYYY-MM-DD.log after the
// date NewFileStorage opened it; it does not switch files while open.
type FileStorage struct {
	directory string
	file      *os.File
	writer    *bufio.Writer
	mu        sync.Mutex
}

// FileConfig configures a FileStorage.
type FileConfig struct {
	Directory string

	// FilePattern, RotateInterval and MaxFileSize are not read by
	// NewFileStorage: file names always follow audit-2006-01-02.log, and
	// no rotation by interval or size takes place.
	FilePattern    string
	RotateInterval time.Duration
	MaxFileSize    int64
}

// NewFileStorage opens (creating if needed) a directory of append-only
// audit log files.
func NewFileStorage(config FileConfig) (*FileStorage, error) {
	if config.Directory == "" {
		return nil, fmt.Errorf("directory is required")
	}
	if err := os.MkdirAll(config.Directory, 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	fs := &FileStorage{directory: config.Directory}
	if err := fs.rotate(); err != nil {
		return nil, err
	}
	return fs, nil
}

// safePath joins name onto the storage directory and rejects any result
// that escapes it (defense against a chain ID or entry ID containing path
// separators making its way into a filename).
func (fs *FileStorage) safePath(name string) (string, error) {
	joined := filepath.Clean(filepath.Join(fs.directory, name))
	dir := filepath.Clean(fs.directory)
	rel, err := filepath.Rel(dir, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid file path: %q escapes audit directory", name)
	}
	return joined, nil
}

func (fs *FileStorage) rotate() error {
	if fs.file != nil {
		if err := fs.Close(); err != nil {
			return err
		}
	}

	name := fmt.Sprintf("audit-%s.log", time.Now().Format("2006-01-02"))
	path, err := fs.safePath(name)
	if err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	fs.file = file
	fs.writer = bufio.NewWriter(file)
	return nil
}

// Store appends entry as one JSON line to the current log file.
func (fs *FileStorage) Store(_ context.Context, entry *Entry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if _, err := fs.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if _, err := fs.writer.WriteString("\n"); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return fs.writer.Flush()
}

// Search scans every log file in the directory for entries matching filter.
func (fs *FileStorage) Search(ctx context.Context, filter *Filter) ([]*Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(fs.directory, "audit-*.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}

	var results []*Entry
	for _, file := range files {
		if err := fs.searchFile(ctx, file, filter, &results); err != nil {
			return nil, err
		}
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

func (fs *FileStorage) searchFile(ctx context.Context, filename string, filter *Filter, results *[]*Entry) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if fs.matchesFilter(&entry, filter) {
			*results = append(*results, &entry)
			if filter.Limit > 0 && len(*results) >= filter.Limit {
				break
			}
		}
	}
	return scanner.Err()
}

// GetByID scans every log file for the first entry with a matching ID.
func (fs *FileStorage) GetByID(_ context.Context, id string) (*Entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(fs.directory, "audit-*.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}

	for _, file := range files {
		entry, err := fs.findInFile(file, id)
		if err != nil {
			continue
		}
		if entry != nil {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("entry not found")
}

func (fs *FileStorage) findInFile(filename, id string) (*Entry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.ID == id {
			return &entry, nil
		}
	}
	return nil, nil
}

// GetChain retrieves every entry sharing chainID.
func (fs *FileStorage) GetChain(ctx context.Context, chainID string) ([]*Entry, error) {
	return fs.Search(ctx, &Filter{ChainID: chainID})
}

// Cleanup rewrites every log file, dropping entries at or before before; a
// file left with nothing to keep is removed outright. Rewrite happens via
// temp-file-then-rename so a crash mid-cleanup never truncates a log.
func (fs *FileStorage) Cleanup(_ context.Context, before time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(fs.directory, "audit-*.log"))
	if err != nil {
		return fmt.Errorf("failed to list log files: %w", err)
	}
	for _, file := range files {
		if err := fs.cleanupFile(file, before); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileStorage) cleanupFile(file string, before time.Time) error {
	tmpPath, err := fs.safePath(filepath.Base(file) + ".tmp")
	if err != nil {
		return err
	}

	in, err := os.Open(file)
	if err != nil {
		return nil // already gone; nothing to clean up
	}
	defer in.Close()

	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	scanner := bufio.NewScanner(in)
	writer := bufio.NewWriter(out)
	kept := 0
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !entry.Timestamp.After(before) {
			continue
		}
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		if _, err := writer.Write(data); err != nil {
			continue
		}
		if _, err := writer.WriteString("\n"); err != nil {
			continue
		}
		kept++
	}
	if err := writer.Flush(); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush %s: %w", tmpPath, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}

	if kept == 0 {
		os.Remove(tmpPath)
		return os.Remove(file)
	}
	return os.Rename(tmpPath, file)
}

// Close flushes the current writer and closes the underlying file.
func (fs *FileStorage) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.writer != nil {
		if err := fs.writer.Flush(); err != nil {
			return err
		}
	}
	if fs.file != nil {
		return fs.file.Close()
	}
	return nil
}

func (fs *FileStorage) matchesFilter(entry *Entry, filter *Filter) bool {
	if filter == nil {
		return true
	}
	return fs.matchesActorIDs(entry, filter) &&
		fs.matchesTypes(entry, filter) &&
		fs.matchesActions(entry, filter) &&
		fs.matchesResults(entry, filter) &&
		fs.matchesTimeRange(entry, filter) &&
		fs.matchesChainID(entry, filter) &&
		fs.matchesTags(entry, filter) &&
		fs.matchesMetadata(entry, filter)
}

func (fs *FileStorage) matchesActorIDs(entry *Entry, filter *Filter) bool {
	if len(filter.ActorIDs) == 0 {
		return true
	}
	for _, id := range filter.ActorIDs {
		if entry.ActorID == id {
			return true
		}
	}
	return false
}

func (fs *FileStorage) matchesTypes(entry *Entry, filter *Filter) bool {
	if len(filter.Types) == 0 {
		return true
	}
	for _, t := range filter.Types {
		if entry.Type == t {
			return true
		}
	}
	return false
}

func (fs *FileStorage) matchesActions(entry *Entry, filter *Filter) bool {
	if len(filter.Actions) == 0 {
		return true
	}
	for _, a := range filter.Actions {
		if entry.Action == a {
			return true
		}
	}
	return false
}

func (fs *FileStorage) matchesResults(entry *Entry, filter *Filter) bool {
	if len(filter.Results) == 0 {
		return true
	}
	for _, r := range filter.Results {
		if entry.Result == r {
			return true
		}
	}
	return false
}

func (fs *FileStorage) matchesTimeRange(entry *Entry, filter *Filter) bool {
	if filter.TimeRange == nil {
		return true
	}
	return !entry.Timestamp.Before(filter.TimeRange.Start) &&
		!entry.Timestamp.After(filter.TimeRange.End)
}

func (fs *FileStorage) matchesChainID(entry *Entry, filter *Filter) bool {
	return filter.ChainID == "" || entry.ChainID == filter.ChainID
}

func (fs *FileStorage) matchesTags(entry *Entry, filter *Filter) bool {
	if len(filter.Tags) == 0 {
		return true
	}
	for _, wantTag := range filter.Tags {
		for _, tag := range entry.Tags {
			if tag == wantTag {
				return true
			}
		}
	}
	return false
}

func (fs *FileStorage) matchesMetadata(entry *Entry, filter *Filter) bool {
	for _, mf := range filter.Metadata {
		value, exists := entry.Metadata[mf.Key]
		if !exists {
			return false
		}
		if !matchesMetadataField(value, mf) {
			return false
		}
	}
	return true
}

func matchesMetadataField(value string, mf MetaFilter) bool {
	switch mf.Operator {
	case "ne":
		return value != mf.Value
	case "contains":
		return strings.Contains(value, mf.Value)
	default: // "eq" and unrecognized operators fall back to equality
		return value == mf.Value
	}
}
