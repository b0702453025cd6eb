package trajectory

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/scttfrdmn/acbench/acbench"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

// RunDir is one run directory of an experiment tree
// <root>/<scenario>/<configurator>/run-<id>.
type RunDir struct {
	Path         string
	Scenario     string
	Configurator string
	ID           int
}

// Meta returns the parse metadata of the run directory.
func (d RunDir) Meta() RunMeta {
	return RunMeta{Configurator: d.Configurator, Scenario: d.Scenario, ID: d.ID}
}

// RunFilter restricts discovery to a range of run ids. A zero MaxRunID means
// no upper bound.
type RunFilter struct {
	MinRunID int
	MaxRunID int
}

func (f RunFilter) accepts(id int) bool {
	if id < f.MinRunID {
		return false
	}
	return f.MaxRunID <= 0 || id <= f.MaxRunID
}

// Discover lists the run directories of one configurator on one scenario,
// ordered by id. No matching directory is reported as a MissingArtifactError.
func Discover(root, scenario, configurator string, filter RunFilter) ([]RunDir, error) {
	base := filepath.Join(root, scenario, configurator)
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, acerrors.NewMissingArtifactError(base, "")
	}

	var dirs []RunDir
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "run-") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "run-"))
		if err != nil || !filter.accepts(id) {
			continue
		}
		dirs = append(dirs, RunDir{
			Path:         filepath.Join(base, e.Name()),
			Scenario:     scenario,
			Configurator: configurator,
			ID:           id,
		})
	}
	if len(dirs) == 0 {
		return nil, acerrors.NewMissingArtifactError(base, "run-*")
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].ID < dirs[j].ID })
	return dirs, nil
}

// FindArtifact returns the first file in dir matching one of the patterns.
func FindArtifact(dir string, patterns []string) (string, bool) {
	matches := globFirst(dir, patterns)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0], true
}

// ParseRunDir parses the run in dir. The boolean is false when no run could
// be recovered; the reasons were logged by the parser.
func ParseRunDir(ctx context.Context, p Parser, dir string, meta RunMeta) (*acbench.Run, bool) {
	result := p.Parse(ctx, dir, meta)
	if len(result.Runs) == 0 {
		return nil, false
	}
	return result.Runs[0], true
}
