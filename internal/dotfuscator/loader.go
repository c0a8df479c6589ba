package dotfuscator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"

	"unfuscator/internal/mapping"
	"unfuscator/internal/version"
)

// IgnoreFile names the file in a map directory whose gitignore-style
// patterns exclude map files from LoadDir and the watcher.
const IgnoreFile = ".unfuscatorignore"

// fileNamePattern matches map files named <name>-<version>.xml, where the
// version has one to four components and may be left out.
var fileNamePattern = regexp.MustCompile(`\w+-(?P<ver>\d+((\.\d+){0,3})?)?\.xml`)

// MatchesFileName reports whether the base name of path follows the
// <name>-<version>.xml convention.
func MatchesFileName(path string) bool {
	return fileNamePattern.MatchString(filepath.Base(path))
}

// VersionFromFilename extracts the version encoded in a map file name.
// It returns nil when the name does not follow the convention or carries no
// version, and an error when the encoded version is not a valid version.
func VersionFromFilename(path string) (*version.Version, error) {
	m := fileNamePattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return nil, nil
	}
	text := m[fileNamePattern.SubexpIndex("ver")]
	if text == "" {
		return nil, nil
	}
	v, err := version.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("version in file name %q: %w", filepath.Base(path), err)
	}
	return v, nil
}

// CleanPath trims the surrounding spaces and quotes users paste around
// paths.
func CleanPath(path string) string {
	return strings.Trim(path, "\" ")
}

// OpenMap opens a map file for reading.
func OpenMap(path string) (*os.File, error) {
	f, err := os.Open(CleanPath(path))
	if err != nil {
		return nil, fmt.Errorf("opening map: %w", err)
	}
	return f, nil
}

// LoadResult describes one loaded map file.
type LoadResult struct {
	Path     string           `json:"path"`
	Version  *version.Version `json:"version,omitempty"`
	Records  int              `json:"records"`
	Stats    ReadStats        `json:"stats"`
	Duration time.Duration    `json:"duration"`
}

// Loader reads map files into a store. Stores implementing
// mapping.SourceInserter get the absolute file path as source, so loading a
// file again replaces its earlier records.
type Loader struct {
	store  mapping.Store
	logger *slog.Logger
}

// NewLoader returns a Loader for store. A nil logger uses slog.Default.
func NewLoader(store mapping.Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, logger: logger}
}

// LoadFile reads the map file at path into the store, tagging every record
// with ver (nil for none). The file is loaded in one store transaction.
func (l *Loader) LoadFile(ctx context.Context, path string, ver *version.Version, progress func(float64)) (LoadResult, error) {
	start := time.Now()
	path = CleanPath(path)
	res := LoadResult{Path: path, Version: ver}

	f, err := OpenMap(path)
	if err != nil {
		filesLoaded.WithLabelValues("error").Inc()
		return res, err
	}
	defer f.Close()

	rd := NewReader(l.logger)
	records := rd.Read(f, ver, progress)
	if si, ok := l.store.(mapping.SourceInserter); ok {
		source, err := filepath.Abs(path)
		if err != nil {
			source = path
		}
		res.Records, err = si.InsertSource(ctx, source, records)
	} else {
		res.Records, err = l.store.Insert(ctx, records)
	}
	res.Stats = rd.Stats()
	res.Duration = time.Since(start)
	if err != nil {
		filesLoaded.WithLabelValues("error").Inc()
		return res, fmt.Errorf("loading %s: %w", path, err)
	}

	filesLoaded.WithLabelValues("ok").Inc()
	l.logger.Info("map loaded",
		slog.String("path", path),
		slog.String("version", versionText(ver)),
		slog.Int("records", res.Records),
		slog.Int("skipped", res.Stats.Filtered+res.Stats.Unsupported+res.Stats.Failed),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// LoadFiles loads each path with the version found in its file name. A file
// that fails to load is reported to onError and does not stop the others.
// progress receives the path being loaded and the overall fraction done.
// Only a cancelled context ends the run early.
func (l *Loader) LoadFiles(ctx context.Context, paths []string, onError func(path string, err error), progress func(path string, done float64)) ([]LoadResult, error) {
	var results []LoadResult
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := l.loadNamed(ctx, path, func(f float64) {
			if progress != nil {
				progress(path, (float64(i)+f)/float64(len(paths)))
			}
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return results, err
			}
			if onError != nil {
				onError(path, err)
			} else {
				l.logger.Error("loading map failed", slog.String("path", path), slog.Any("error", err))
			}
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (l *Loader) loadNamed(ctx context.Context, path string, progress func(float64)) (LoadResult, error) {
	ver, err := VersionFromFilename(path)
	if err != nil {
		return LoadResult{Path: path}, err
	}
	return l.LoadFile(ctx, path, ver, progress)
}

// LoadDir loads every map file in dir (not recursive) named after the
// <name>-<version>.xml convention and not excluded by the directory's
// .unfuscatorignore file.
func (l *Loader) LoadDir(ctx context.Context, dir string, onError func(path string, err error), progress func(path string, done float64)) ([]LoadResult, error) {
	paths, err := ListDir(dir)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("loading map directory", slog.String("dir", dir), slog.Int("files", len(paths)))
	return l.LoadFiles(ctx, paths, onError, progress)
}

// ListDir returns the loadable map files in dir, sorted by name.
func ListDir(dir string) ([]string, error) {
	dir = CleanPath(dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing map directory: %w", err)
	}
	ign := LoadIgnore(dir)

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			continue
		}
		if !MatchesFileName(e.Name()) || ign.MatchesPath(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

// LoadIgnore compiles dir's ignore file. A missing or unreadable file
// ignores nothing.
func LoadIgnore(dir string) *ignore.GitIgnore {
	data, err := os.ReadFile(filepath.Join(dir, IgnoreFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("reading ignore file", slog.String("dir", dir), slog.Any("error", err))
		}
		return ignore.CompileIgnoreLines()
	}
	var patterns []string
	for line := range strings.SplitSeq(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return ignore.CompileIgnoreLines(patterns...)
}

func versionText(v *version.Version) string {
	if v == nil {
		return ""
	}
	return v.String()
}
