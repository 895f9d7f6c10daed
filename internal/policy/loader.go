// Package policy: loader.go fetches policy sets from durable storage,
// kept separate from evaluation (loading and evaluating are independent
// concerns, split the same way as loader.go vs evaluate.go).
package policy

import (
	"errors"
	"fmt"
	"os"
)

// ErrPolicySetNotFound is returned when the requested policy source does
// not exist.
var ErrPolicySetNotFound = errors.New("policy: set not found")

// fileAPI defines the filesystem operations used by FileLoader, a narrow
// per-dependency client interface in the same style as SSMAPI, so tests
// can substitute an in-memory filesystem.
type fileAPI interface {
	ReadFile(name string) ([]byte, error)
}

type osFileAPI struct{}

func (osFileAPI) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// FileLoader loads a policy Set from a local YAML file. It replaces the
// teacher's SSM-Parameter-Store-backed Loader with a filesystem-backed one:
// an admission node has no AWS dependency, but the load/parse contract is
// identical.
type FileLoader struct {
	fs fileAPI
}

// NewFileLoader creates a FileLoader reading from the local filesystem.
func NewFileLoader() *FileLoader {
	return &FileLoader{fs: osFileAPI{}}
}

// newFileLoaderWithFS is used by tests to inject a fake filesystem.
func newFileLoaderWithFS(fs fileAPI) *FileLoader {
	return &FileLoader{fs: fs}
}

// Load reads and parses the policy set at path. Returns ErrPolicySetNotFound
// (wrapped) if the file does not exist.
func (l *FileLoader) Load(path string) (*Set, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrPolicySetNotFound)
		}
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	return ParseSet(data)
}
