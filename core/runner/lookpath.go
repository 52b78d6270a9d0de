package runner

import (
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotFound is the error resulting if a path search failed to find an executable file.
var ErrNotFound = exec.ErrNotFound

func findExecutable(fsys afero.Fs, file string) error {
	d, err := fsys.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// LookPath searches for the trainer executable the way the child process
// would see it: using the PATH in environ and resolving relative names
// against dir. If file contains a slash, it is tried directly and the PATH is
// not consulted. The result is always absolute.
func LookPath(fsys afero.Fs, file string, environ []string, dir string) (string, error) {
	if strings.Contains(file, "/") {
		path := file
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}
		if err := findExecutable(fsys, path); err != nil {
			return "", &exec.Error{Name: file, Err: err}
		}
		return absPath(file, path)
	}

	for _, pathDir := range filepath.SplitList(getenv(environ, "PATH")) {
		if pathDir == "" {
			// Unix shell semantics: path element "" means "."
			pathDir = "."
		}
		if !filepath.IsAbs(pathDir) && dir != "" {
			pathDir = filepath.Join(dir, pathDir)
		}
		path := filepath.Join(pathDir, file)
		if err := findExecutable(fsys, path); err == nil {
			return absPath(file, path)
		}
	}
	return "", &exec.Error{Name: file, Err: ErrNotFound}
}

// absPath anchors path to our working directory. exec would otherwise search
// PATH again for bare names and resolve relative ones against the child's Dir.
func absPath(file, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &exec.Error{Name: file, Err: err}
	}
	return abs, nil
}

// getenv returns the last value of key in environ, matching how the child
// process resolves duplicates.
func getenv(environ []string, key string) string {
	prefix := key + "="
	value := ""
	for _, kv := range environ {
		if strings.HasPrefix(kv, prefix) {
			value = kv[len(prefix):]
		}
	}
	return value
}
