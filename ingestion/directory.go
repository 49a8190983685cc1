package ingestion

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/kbsearch/core"
)

// DefaultExtensions is the extension allow-list used when none is given.
var DefaultExtensions = []string{"md", "txt", "php", "json"}

// DirectoryOptions controls a directory walk.
type DirectoryOptions struct {
	// Extensions lists the allowed file extensions, with or without a
	// leading dot. Empty means DefaultExtensions.
	Extensions []string
	// Recursive descends into subdirectories.
	Recursive bool
	// Metadata is caller metadata applied to every indexed file.
	Metadata core.Metadata
}

// DefaultDirectoryOptions returns options with the default extension
// allow-list and recursion enabled.
func DefaultDirectoryOptions() *DirectoryOptions {
	return &DirectoryOptions{
		Extensions: slices.Clone(DefaultExtensions),
		Recursive:  true,
	}
}

// SkippedFile is a file that was not indexed, with the reason.
type SkippedFile struct {
	Path   string
	Reason string
}

// DirectorySummary aggregates a directory run.
type DirectorySummary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Chunks    int
	Duration  time.Duration
}

// DirectoryResult reports the outcome of IndexDirectory. Each list is
// sorted by path. When Success is false because the root itself was
// unusable, the lists are empty.
type DirectoryResult struct {
	Success   bool
	Root      string
	Succeeded []*DocumentResult
	Failed    []*DocumentResult
	Skipped   []SkippedFile
	Summary   DirectorySummary
	Err       error
}

// Error returns the failure message, or "" on success.
func (r *DirectoryResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// IndexDirectory indexes every allowed file under root. Files are indexed
// concurrently on the worker pool; per-file failures are collected and do
// not stop the walk. A nil opts uses DefaultDirectoryOptions.
func (ix *Indexer) IndexDirectory(ctx context.Context, root string, opts *DirectoryOptions) *DirectoryResult {
	start := time.Now()
	if opts == nil {
		opts = DefaultDirectoryOptions()
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	info, err := os.Stat(root)
	if err != nil {
		return ix.failDirectory(root, start, classifyFSError(root, err))
	}
	if !info.IsDir() {
		return ix.failDirectory(root, start, fmt.Errorf("%w: %s is not a directory", core.ErrValidation, root))
	}

	allowed := normalizeExtensions(opts.Extensions)
	result := &DirectoryResult{Root: root}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	collect := func(doc *DocumentResult) {
		mu.Lock()
		defer mu.Unlock()
		if doc.Success {
			result.Succeeded = append(result.Succeeded, doc)
		} else {
			result.Failed = append(result.Failed, doc)
		}
	}
	skip := func(path, reason string) {
		mu.Lock()
		defer mu.Unlock()
		result.Skipped = append(result.Skipped, SkippedFile{Path: path, Reason: reason})
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			collect(&DocumentResult{Path: path, Err: classifyFSError(path, err)})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && !opts.Recursive {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			target, statErr := os.Stat(path)
			if statErr != nil || !target.Mode().IsRegular() {
				skip(path, "not a regular file")
				return nil
			}
		}

		ext := fileType(path)
		if _, ok := allowed[ext]; !ok {
			skip(path, fmt.Sprintf("extension %q not allowed", ext))
			return nil
		}

		wg.Add(1)
		submitErr := ix.pool.Submit(func() {
			defer wg.Done()
			collect(ix.IndexFile(ctx, path, opts.Metadata))
		})
		if submitErr != nil {
			wg.Done()
			collect(&DocumentResult{Path: path, Err: fmt.Errorf("%w: submit: %w", core.ErrIO, submitErr)})
		}
		return nil
	})
	wg.Wait()

	byPath := func(a, b *DocumentResult) int { return cmp.Compare(a.Path, b.Path) }
	slices.SortFunc(result.Succeeded, byPath)
	slices.SortFunc(result.Failed, byPath)
	slices.SortFunc(result.Skipped, func(a, b SkippedFile) int { return cmp.Compare(a.Path, b.Path) })

	chunks := 0
	for _, doc := range result.Succeeded {
		chunks += len(doc.ChunkIDs)
	}
	result.Summary = DirectorySummary{
		Total:     len(result.Succeeded) + len(result.Failed) + len(result.Skipped),
		Succeeded: len(result.Succeeded),
		Failed:    len(result.Failed),
		Skipped:   len(result.Skipped),
		Chunks:    chunks,
		Duration:  time.Since(start),
	}

	switch {
	case walkErr == nil:
		result.Success = true
	case errors.Is(walkErr, context.Canceled), errors.Is(walkErr, context.DeadlineExceeded):
		result.Err = walkErr
	default:
		result.Err = classifyFSError(root, walkErr)
	}

	ix.logger.Info("indexed directory",
		"root", root,
		"succeeded", result.Summary.Succeeded,
		"failed", result.Summary.Failed,
		"skipped", result.Summary.Skipped,
		"chunks", chunks,
		"duration", result.Summary.Duration)
	return result
}

func (ix *Indexer) failDirectory(root string, start time.Time, err error) *DirectoryResult {
	ix.logger.Error("cannot index directory", "root", root, "err", err)
	return &DirectoryResult{
		Root:    root,
		Err:     err,
		Summary: DirectorySummary{Duration: time.Since(start)},
	}
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			out[ext] = struct{}{}
		}
	}
	return out
}
