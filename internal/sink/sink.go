// package sink stores downloaded artifacts.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/redlist/internal/shared"
)

// DirSink writes each artifact to a file in a single directory.
type DirSink struct {
	dir    string
	logger *log.Logger
}

// NewDirSink creates the directory if needed and returns a sink writing into it.
func NewDirSink(dir string, logger *log.Logger) (*DirSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: download directory", shared.ErrMissingConfig)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &DirSink{dir: dir, logger: shared.WithLogger(logger, "component", "sink")}, nil
}

// Dir returns the directory artifacts are written to.
func (s *DirSink) Dir() string { return s.dir }

// Add writes data to <dir>/<filename>, replacing an existing file of the same name.
//
// filename must be a bare file name.
func (s *DirSink) Add(ctx context.Context, filename string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := filepath.Base(filename)
	if name != filename || name == "." || name == ".." || strings.ContainsRune(filename, '\\') {
		return fmt.Errorf("%w: %q is not a plain file name", shared.ErrInvalidInput, filename)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}

	s.logger.Debug("stored artifact", "path", path, "bytes", len(data))
	return nil
}
