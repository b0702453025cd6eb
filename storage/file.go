package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scttfrdmn/acbench/aggregate"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

// FileStore writes every comparison to <dir>/<id>.json.
//
// Files are written to a temporary name first and renamed, so a crashed
// writer never leaves a truncated result behind.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, acerrors.NewArgumentError("NewFileStore", "empty directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create result directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the result directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", acerrors.NewArgumentError("FileStore", fmt.Sprintf("invalid comparison id %q", id))
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Save writes the comparison file.
func (s *FileStore) Save(ctx context.Context, c *aggregate.ScenarioComparison) error {
	if err := checkID("FileStore.Save", c); err != nil {
		return err
	}
	path, err := s.path(c.ID)
	if err != nil {
		return err
	}
	data, err := encode(c)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write comparison file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write comparison file: %w", err)
	}
	return nil
}

// Load reads the comparison file.
func (s *FileStore) Load(ctx context.Context, id string) (*aggregate.ScenarioComparison, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read comparison file: %w", err)
	}
	return decode(data)
}

// List reads every comparison file. Unreadable files are skipped.
func (s *FileStore) List(ctx context.Context, limit int) ([]*aggregate.ScenarioComparison, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*aggregate.ScenarioComparison{}, nil
		}
		return nil, fmt.Errorf("failed to read result directory: %w", err)
	}

	out := make([]*aggregate.ScenarioComparison, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		c, err := decode(data)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return newestFirst(out, limit), nil
}

// Delete removes the comparison file.
func (s *FileStore) Delete(ctx context.Context, id string) (bool, error) {
	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete comparison file: %w", err)
	}
	return true, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}
