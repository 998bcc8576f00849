package scenario

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/sdrun/internal/model"
	"github.com/nvandessel/sdrun/internal/pathutil"
	"gopkg.in/yaml.v3"
)

// FileCatalog is a MemoryCatalog populated from scenario files.
type FileCatalog struct {
	*MemoryCatalog

	// Files lists the loaded files in load order.
	Files []string

	// root confines model_file references. Empty means the directory of
	// each scenario file.
	root string
}

// runspecsFile allows partial run bounds so scenarios can override single
// fields of their manager's bounds.
type runspecsFile struct {
	Start *float64 `yaml:"starttime"`
	Stop  *float64 `yaml:"stoptime"`
	DT    *float64 `yaml:"dt"`
}

func (r *runspecsFile) overlay(base Runspecs) Runspecs {
	if r == nil {
		return base
	}
	if r.Start != nil {
		base.Start = *r.Start
	}
	if r.Stop != nil {
		base.Stop = *r.Stop
	}
	if r.DT != nil {
		base.DT = *r.DT
	}
	return base
}

type managerFile struct {
	Type          Kind                     `yaml:"type"`
	Model         yaml.Node                `yaml:"model"`
	ModelFile     string                   `yaml:"model_file"`
	Runspecs      *runspecsFile            `yaml:"runspecs"`
	BaseConstants map[string]float64       `yaml:"base_constants"`
	BasePoints    map[string][]model.Point `yaml:"base_points"`
	Scenarios     yaml.Node                `yaml:"scenarios"`
}

type scenarioFile struct {
	Constants map[string]float64       `yaml:"constants"`
	Points    map[string][]model.Point `yaml:"points"`
	Runspecs  *runspecsFile            `yaml:"runspecs"`
}

// LoadDir loads every *.yaml and *.yml file below dir except model files
// (*.model.yaml, *.model.yml), which are only read through model_file. A
// missing directory yields an empty catalog.
func LoadDir(dir string) (*FileCatalog, error) {
	cat := &FileCatalog{MemoryCatalog: NewMemoryCatalog(), root: dir}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return cat, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isScenarioFile(path) {
			return nil
		}
		return cat.LoadFile(path)
	})
	if err != nil {
		return nil, fmt.Errorf("loading scenarios from %s: %w", dir, err)
	}
	return cat, nil
}

func isScenarioFile(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(lower, ext) {
			return !strings.HasSuffix(lower, ".model"+ext)
		}
	}
	return false
}

// LoadFile adds the managers defined in one scenario file. Manager names
// must be unique across all loaded files.
func (c *FileCatalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading scenario file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(doc.Content) == 0 {
		c.Files = append(c.Files, path)
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level must map manager names to definitions", path)
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		if _, exists := c.Kind(name); exists {
			return fmt.Errorf("%s: duplicate scenario manager %q (line %d)", path, name, root.Content[i].Line)
		}
		kind, scenarios, err := decodeManager(path, c.modelRoot(path), name, root.Content[i+1])
		if err != nil {
			return err
		}
		if err := c.Add(kind, scenarios...); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	c.Files = append(c.Files, path)
	return nil
}

func (c *FileCatalog) modelRoot(path string) string {
	if c.root != "" {
		return c.root
	}
	return filepath.Dir(path)
}

func decodeManager(path, modelRoot, name string, node *yaml.Node) (Kind, []*Scenario, error) {
	var mf managerFile
	if err := node.Decode(&mf); err != nil {
		return "", nil, fmt.Errorf("%s: manager %q: %w", path, name, err)
	}
	if mf.Type == "" {
		mf.Type = KindSD
	}

	m, err := managerModel(path, modelRoot, name, &mf)
	if err != nil {
		return "", nil, err
	}
	base := mf.Runspecs.overlay(DefaultRunspecs)

	if mf.Scenarios.Kind != yaml.MappingNode {
		return "", nil, fmt.Errorf("%s: manager %q defines no scenarios", path, name)
	}

	var out []*Scenario
	for i := 0; i+1 < len(mf.Scenarios.Content); i += 2 {
		scenarioName := mf.Scenarios.Content[i].Value
		var sf scenarioFile
		if err := mf.Scenarios.Content[i+1].Decode(&sf); err != nil {
			return "", nil, fmt.Errorf("%s: scenario %s/%s: %w", path, name, scenarioName, err)
		}

		s := &Scenario{
			Name:      scenarioName,
			Manager:   name,
			Model:     m,
			Constants: overlay(mf.BaseConstants, sf.Constants),
			Points:    overlay(mf.BasePoints, sf.Points),
			Runspecs:  sf.Runspecs.overlay(base),
		}
		if err := s.Runspecs.Validate(); err != nil {
			return "", nil, fmt.Errorf("%s: scenario %s/%s: %w", path, name, scenarioName, err)
		}
		out = append(out, s)
	}
	return mf.Type, out, nil
}

func managerModel(path, modelRoot, name string, mf *managerFile) (*model.Model, error) {
	switch {
	case mf.ModelFile != "" && mf.Model.Kind != 0:
		return nil, fmt.Errorf("%s: manager %q sets both model and model_file", path, name)
	case mf.ModelFile != "":
		modelPath := mf.ModelFile
		if !filepath.IsAbs(modelPath) {
			modelPath = filepath.Join(filepath.Dir(path), modelPath)
		}
		if err := pathutil.Within(modelPath, modelRoot); err != nil {
			return nil, fmt.Errorf("%s: manager %q: model_file: %w", path, name, err)
		}
		return model.LoadFile(modelPath)
	case mf.Model.Kind != 0:
		m, err := model.Decode(&mf.Model)
		if err != nil {
			return nil, fmt.Errorf("%s: manager %q: %w", path, name, err)
		}
		if m.Name == "" {
			m.Name = name
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%s: manager %q has no model", path, name)
	}
}

// overlay returns base with top's entries applied on top.
func overlay[V any](base, top map[string]V) map[string]V {
	out := make(map[string]V, len(base)+len(top))
	maps.Copy(out, base)
	maps.Copy(out, top)
	return out
}
