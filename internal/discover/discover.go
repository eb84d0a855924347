// Package discover finds indexable source files in a repository checkout.
package discover

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/codegraph/internal/parse"
)

// DefaultMaxFileSize skips generated bundles and vendored blobs.
const DefaultMaxFileSize = 1 << 20

// Repository identifies one tenant's source tree.
type Repository struct {
	ID   string
	Root string
}

// SourceFile is a discovered file. Path is slash separated and relative to
// the repository root.
type SourceFile struct {
	Path    string
	Content []byte
}

// Discoverer supplies the files of a repository in path order.
type Discoverer interface {
	Discover(ctx context.Context, repo Repository) ([]SourceFile, error)
}

var skipDirs = map[string]struct{}{
	"node_modules":     {},
	".git":             {},
	".hg":              {},
	".svn":             {},
	"build":            {},
	"dist":             {},
	"out":              {},
	"coverage":         {},
	".next":            {},
	".turbo":           {},
	".cache":           {},
	"bower_components": {},
}

// Local walks a directory on disk. It honors git's view of the tree when
// the root is a git checkout and .gitignore otherwise.
type Local struct {
	// Ignore holds extra gitignore-style patterns.
	Ignore []string
	// MaxFileSize skips larger files; zero means DefaultMaxFileSize.
	MaxFileSize int64
	// Supported filters paths; nil means parse.IsSupported.
	Supported func(path string) bool
	Logger    *slog.Logger
}

var _ Discoverer = (*Local)(nil)

// Discover implements Discoverer.
func (l *Local) Discover(ctx context.Context, repo Repository) ([]SourceFile, error) {
	root := repo.Root
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", repo.ID, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discover %s: %s is not a directory", repo.ID, root)
	}

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	supported := l.Supported
	if supported == nil {
		supported = parse.IsSupported
	}
	maxSize := l.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	gitFiles := gitLsFiles(ctx, root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}
	var extra *ignore.GitIgnore
	if len(l.Ignore) > 0 {
		extra = ignore.CompileIgnoreLines(l.Ignore...)
	}

	var files []SourceFile
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if extra != nil && extra.MatchesPath(rel) {
			return nil
		}
		if !supported(rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		if fi.Size() > maxSize {
			logger.Debug("skipping large file", "repository_id", repo.ID, "path", rel, "size", fi.Size())
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("skipping unreadable file", "repository_id", repo.ID, "path", rel, "error", err)
			return nil
		}
		files = append(files, SourceFile{Path: rel, Content: content})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", repo.ID, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func gitLsFiles(ctx context.Context, root string) map[string]struct{} {
	info, err := os.Stat(filepath.Join(root, ".git"))
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}

// Static serves a fixed file set. It backs tests and callers that acquire
// content themselves.
type Static map[string][]SourceFile

var _ Discoverer = Static(nil)

// Discover implements Discoverer.
func (s Static) Discover(_ context.Context, repo Repository) ([]SourceFile, error) {
	files := append([]SourceFile(nil), s[repo.ID]...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
