package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/gzip"
)

// Dir reads shard files below a root directory. Paths are matched relative
// to the root with doublestar patterns; a file is loaded when it matches an
// include pattern and no exclude pattern.
type Dir struct {
	root    string
	fsys    fs.FS
	include []string
	exclude []string
	logger  *slog.Logger
}

// NewDir validates the patterns and returns a Dir for root.
func NewDir(root string, include, exclude []string) (*Dir, error) {
	for _, p := range append(append([]string(nil), include...), exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid shard pattern %q", p)
		}
	}
	if len(include) == 0 {
		return nil, fmt.Errorf("no include patterns for %s", root)
	}
	return &Dir{
		root:    root,
		fsys:    os.DirFS(root),
		include: include,
		exclude: exclude,
		logger:  slog.Default().With("component", "dir-source", "root", root),
	}, nil
}

func (d *Dir) Name() string { return "dir:" + d.root }

func (d *Dir) Root() string { return d.root }

// Matches reports whether the slash-separated path rel, relative to the
// root, selects a shard file.
func (d *Dir) Matches(rel string) bool {
	included := false
	for _, p := range d.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, p := range d.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	return true
}

// Fetch returns one payload per matching file, sorted by path. A file that
// cannot be read becomes a payload carrying ReadErr; only an unreadable
// root fails the fetch.
func (d *Dir) Fetch(ctx context.Context) ([]shard.Payload, error) {
	var paths []string
	err := fs.WalkDir(d.fsys, ".", func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			d.logger.Warn("skipping unreadable path", "path", p, "error", err)
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !entry.IsDir() && d.Matches(p) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking shard directory %s: %w", d.root, err)
	}
	sort.Strings(paths)

	payloads := make([]shard.Payload, 0, len(paths))
	for _, p := range paths {
		data, readErr := d.read(p)
		payloads = append(payloads, shard.Payload{
			Key:      ShardKey(p),
			Category: shard.CategoryFromName(p),
			Format:   shard.FormatFromName(p),
			Data:     data,
			ReadErr:  readErr,
		})
	}
	d.logger.Debug("shard files fetched", "count", len(payloads))
	return payloads, nil
}

func (d *Dir) read(p string) ([]byte, error) {
	f, err := d.fsys.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(p), ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	return io.ReadAll(r)
}

// ShardKey is the slash path with its extensions removed:
// "search/functions_5.js.gz" -> "search/functions_5".
func ShardKey(p string) string {
	dir, base := path.Split(p)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return dir + base
}
