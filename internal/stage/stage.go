// Package stage loads stage files and runs their commands while holding
// read locks on dependencies and write locks on outputs.
package stage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/efiop/dvc/internal/errors"
)

// Dependency is a path a stage reads or produces. Relative paths are
// resolved against the stage's working directory.
type Dependency struct {
	Path string `yaml:"path"`
}

// Stage describes one pipeline step.
type Stage struct {
	Cmd  string       `yaml:"cmd"`
	Wdir string       `yaml:"wdir,omitempty"`
	Deps []Dependency `yaml:"deps,omitempty"`
	Outs []Dependency `yaml:"outs,omitempty"`

	// file is where the stage was loaded from; empty for in-memory stages.
	file string
}

// Load reads and validates a stage file.
func Load(path string) (*Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading stage file: %w", err)
	}

	st, err := Parse(data)
	if err != nil {
		return nil, errors.NewStageError("cannot parse stage file", err).WithStage(path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	st.file = abs

	if err := st.Validate(); err != nil {
		return nil, errors.NewStageError("invalid stage", err).WithStage(path)
	}
	return st, nil
}

// Parse decodes a stage from YAML. Unknown keys are rejected.
func Parse(data []byte) (*Stage, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var st Stage
	if err := dec.Decode(&st); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStageInvalid, err)
	}
	return &st, nil
}

// File returns the absolute path of the stage file, if any.
func (s *Stage) File() string {
	return s.file
}

// Dir returns the directory the command runs in and relative paths are
// resolved against.
func (s *Stage) Dir() string {
	base := "."
	if s.file != "" {
		base = filepath.Dir(s.file)
	}
	if s.Wdir == "" {
		return base
	}
	if filepath.IsAbs(s.Wdir) {
		return filepath.Clean(s.Wdir)
	}
	return filepath.Join(base, s.Wdir)
}

// DepPaths returns the resolved dependency paths.
func (s *Stage) DepPaths() []string {
	return s.resolve(s.Deps)
}

// OutPaths returns the resolved output paths.
func (s *Stage) OutPaths() []string {
	return s.resolve(s.Outs)
}

func (s *Stage) resolve(deps []Dependency) []string {
	dir := s.Dir()
	paths := make([]string, 0, len(deps))
	for _, d := range deps {
		p := filepath.FromSlash(d.Path)
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		paths = append(paths, filepath.Clean(p))
	}
	return paths
}

// Validate checks that the stage can be locked and run. Path locks register
// every occurrence of a path, so repeated paths are rejected here.
func (s *Stage) Validate() error {
	if strings.TrimSpace(s.Cmd) == "" {
		return errors.NewValidationError("cmd cannot be empty").WithField("cmd").WithCause(errors.ErrStageInvalid)
	}

	if err := checkPaths("deps", s.Deps); err != nil {
		return err
	}
	if err := checkPaths("outs", s.Outs); err != nil {
		return err
	}

	deps := make(map[string]bool, len(s.Deps))
	for _, p := range s.DepPaths() {
		deps[p] = true
	}
	for i, p := range s.OutPaths() {
		if deps[p] {
			return errors.NewValidationError("path is both a dependency and an output").
				WithField("outs").WithValue(s.Outs[i].Path).WithCause(errors.ErrStageInvalid)
		}
	}
	return nil
}

func checkPaths(field string, deps []Dependency) error {
	seen := make(map[string]bool, len(deps))
	for _, d := range deps {
		if strings.TrimSpace(d.Path) == "" {
			return errors.NewValidationError("path cannot be empty").WithField(field).WithCause(errors.ErrStageInvalid)
		}
		key := filepath.Clean(filepath.FromSlash(d.Path))
		if seen[key] {
			return errors.NewValidationError("duplicate path").
				WithField(field).WithValue(d.Path).WithCause(errors.ErrStageInvalid)
		}
		seen[key] = true
	}
	return nil
}
