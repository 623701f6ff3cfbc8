package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// filter decides whether a path in the watched directory is a tile.
type filter struct {
	extensions map[string]struct{}
	ignore     ignoreList
	// names the session writes itself, keyed by directory: each output,
	// its sidecars, and the prefix of its temp and lock files.
	outputs  map[string]map[string]struct{}
	prefixes map[string][]string
}

// newFilter builds the filter for dir from opts and the directory's
// IgnoreFile, whose patterns apply after opts.Exclude.
func newFilter(dir string, opts Options) *filter {
	f := &filter{
		extensions: make(map[string]struct{}, len(opts.Extensions)),
		outputs:    make(map[string]map[string]struct{}),
		prefixes:   make(map[string][]string),
	}
	for _, p := range opts.Exclude {
		f.ignore.add(p)
	}
	ignorePath := filepath.Join(dir, IgnoreFile)
	if err := f.ignore.addFromFile(ignorePath); err != nil && !os.IsNotExist(err) {
		opts.Logger.Warn("ignore file not applied",
			slog.String("path", ignorePath),
			slog.String("error", err.Error()))
	}
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.extensions[ext] = struct{}{}
	}
	for _, p := range opts.ExcludePaths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		dir, name := filepath.Split(abs)
		dir = filepath.Clean(dir)
		if f.outputs[dir] == nil {
			f.outputs[dir] = make(map[string]struct{})
		}
		for _, n := range ownedNames(name) {
			f.outputs[dir][n] = struct{}{}
		}
		f.prefixes[dir] = append(f.prefixes[dir], "."+name+".")
	}
	return f
}

// accept reports whether path should be treated as a tile.
func (f *filter) accept(path string) bool {
	name := filepath.Base(path)
	if _, ok := f.extensions[strings.ToLower(filepath.Ext(name))]; !ok {
		return false
	}
	if f.ignore.match(name) {
		return false
	}
	dir := filepath.Dir(path)
	if _, excluded := f.outputs[dir][name]; excluded {
		return false
	}
	for _, prefix := range f.prefixes[dir] {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}
	return true
}

// ownedNames lists the file names written alongside output: the raster, its
// world file variants, its .prj and a GDAL .aux.xml.
func ownedNames(output string) []string {
	ext := filepath.Ext(output)
	base := strings.TrimSuffix(output, ext)
	e := strings.TrimPrefix(ext, ".")
	names := []string{output, output + ".aux.xml", base + ".prj", base + ".wld"}
	if len(e) >= 2 {
		names = append(names, base+"."+string(e[0])+string(e[len(e)-1])+"w")
	}
	if e != "" {
		names = append(names, base+"."+e+"w")
	}
	return names
}
