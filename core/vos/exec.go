package vos

import (
	"io/fs"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotFound is the error resulting if a path search failed to find an executable file.
var ErrNotFound = exec.ErrNotFound

// PathResolver finds executables on the search path of an environment.
type PathResolver struct {
	Fs  afero.Fs
	Env VEnv
	// Dir returns the directory relative paths are resolved against. If nil,
	// relative paths are left as is.
	Dir func() string
}

func (r *PathResolver) abs(name string) string {
	if filepath.IsAbs(name) || r.Dir == nil {
		return name
	}
	return filepath.Join(r.Dir(), name)
}

func (r *PathResolver) findExecutable(file string) error {
	d, err := r.Fs.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

func (r *PathResolver) searchPath() []string {
	var dirs []string
	for _, dir := range filepath.SplitList(r.Env.Getenv("PATH")) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		dirs = append(dirs, r.abs(dir))
	}
	return dirs
}

// Resolve searches for an executable named file in the directories named by
// the PATH environment variable. If file contains a slash, it is tried directly
// and the PATH is not consulted. Relative results are made absolute against
// Dir.
func (r *PathResolver) Resolve(file string) (string, error) {
	if file == "" {
		return "", ErrNotFound
	}

	if strings.Contains(file, "/") {
		path := r.abs(file)
		if err := r.findExecutable(path); err != nil {
			return "", err
		}
		return path, nil
	}

	for _, dir := range r.searchPath() {
		path := filepath.Join(dir, file)
		if err := r.findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}

// CandidatesByPrefix lists the unique names of executables on the search path
// starting with prefix, sorted.
func (r *PathResolver) CandidatesByPrefix(prefix string) []string {
	seen := make(map[string]bool)
	for _, dir := range r.searchPath() {
		entries, err := afero.ReadDir(r.Fs, dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			name := entry.Name()
			if seen[name] || !strings.HasPrefix(name, prefix) {
				continue
			}
			// Stat follows symlinks, which ReadDir may not.
			if r.findExecutable(filepath.Join(dir, name)) == nil {
				seen[name] = true
			}
		}
	}

	var out []string
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
