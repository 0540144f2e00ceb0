package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"loom/internal/logging"
)

// CleanStaleResult lists what a cleanup pass removed and what it could not.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory with the error that kept it on disk.
type CleanupError struct {
	Path  string
	Error error
}

// DirInfo describes one staging directory for disk usage reporting.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// CleanStale removes per-item staging directories older than maxAge.
// Publishing clears staging on success, so anything left past maxAge
// belongs to an abandoned or failed run.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	var result CleanStaleResult
	entries, ok := readStagingDir(stagingDir, &result)
	if !ok {
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(stagingDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		age := time.Since(info.ModTime())
		result.remove(dirPath, "stale", logger, logging.Duration("age", age))
	}
	return result
}

// CleanOrphaned removes staging directories whose run token no longer maps
// to a queue item. Directories in the queue-{ID} fallback format are left
// for CleanStale since their items may simply predate run tokens.
func CleanOrphaned(ctx context.Context, stagingDir string, activeTokens map[string]struct{}, logger *slog.Logger) CleanStaleResult {
	var result CleanStaleResult
	entries, ok := readStagingDir(stagingDir, &result)
	if !ok {
		return result
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		token := strings.ToLower(entry.Name())
		if _, active := activeTokens[token]; active {
			continue
		}
		if strings.HasPrefix(token, "queue-") {
			continue
		}
		result.remove(filepath.Join(stagingDir, entry.Name()), "orphaned", logger)
	}
	return result
}

// ListDirectories returns staging directories with size and age metadata.
// Sizes are best effort; unreadable entries are skipped.
func ListDirectories(stagingDir string) ([]DirInfo, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(stagingDir, entry.Name())
		size, _ := dirSize(dirPath)
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}
	return dirs, nil
}

// dirSize sums the file bytes under path. Entries that cannot be read are
// skipped so one bad permission does not zero the whole report.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if info, infoErr := entry.Info(); infoErr == nil {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// readStagingDir lists the staging root, recording a read failure on result.
// A blank or missing directory means nothing to clean.
func readStagingDir(stagingDir string, result *CleanStaleResult) ([]os.DirEntry, bool) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, false
	}
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return nil, false
	}
	return entries, true
}

// remove deletes dirPath and records the outcome, logging with the reason
// ("stale" or "orphaned") when a logger is present.
func (r *CleanStaleResult) remove(dirPath, reason string, logger *slog.Logger, extra ...slog.Attr) {
	if err := os.RemoveAll(dirPath); err != nil {
		r.Errors = append(r.Errors, CleanupError{Path: dirPath, Error: err})
		if logger != nil {
			logger.Warn("failed to remove "+reason+" staging directory",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
		return
	}
	r.Removed = append(r.Removed, dirPath)
	if logger != nil {
		attrs := append([]slog.Attr{
			logging.String("path", dirPath),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		}, extra...)
		args := make([]any, 0, len(attrs))
		for _, attr := range attrs {
			args = append(args, attr)
		}
		logger.Info("removed "+reason+" staging directory", args...)
	}
}
