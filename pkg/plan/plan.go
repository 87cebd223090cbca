package plan

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/yurifrl/budgetu/pkg/models"
	"github.com/yurifrl/budgetu/pkg/normalize"
)

type Plan struct {
	DatePolicy string      `yaml:"date_policy"`
	Statements []Statement `yaml:"statements"`
}

// Statement is one file to import. Mapping, when present, replaces alias
// resolution for that file.
type Statement struct {
	File    string            `yaml:"file"`
	Source  string            `yaml:"source"`
	Mapping map[string]string `yaml:"mapping"`
}

// Load reads a plan file. Relative statement paths are resolved against the
// plan's directory.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}

	if len(p.Statements) == 0 {
		return nil, fmt.Errorf("plan has no statements")
	}
	if _, err := normalize.ParseDatePolicy(p.DatePolicy); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	base := filepath.Dir(path)
	for i := range p.Statements {
		st := &p.Statements[i]
		if st.File == "" {
			return nil, fmt.Errorf("statement %d: missing file", i+1)
		}
		if !filepath.IsAbs(st.File) {
			st.File = filepath.Join(base, st.File)
		}
		if st.Source == "" {
			st.Source = filepath.Base(st.File)
		}
		if _, err := st.FieldMapping(); err != nil {
			return nil, fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return &p, nil
}

// Policy returns the plan's date policy, or fallback when the plan sets none.
func (p *Plan) Policy(fallback normalize.DatePolicy) normalize.DatePolicy {
	if p.DatePolicy == "" {
		return fallback
	}
	policy, _ := normalize.ParseDatePolicy(p.DatePolicy)
	return policy
}

// FieldMapping converts the YAML mapping. A statement without one returns
// nil so the importer resolves columns from aliases.
func (s Statement) FieldMapping() (models.FieldMapping, error) {
	if len(s.Mapping) == 0 {
		return nil, nil
	}
	m := make(models.FieldMapping, len(s.Mapping))
	for name, header := range s.Mapping {
		f, ok := models.ParseField(name)
		if !ok {
			return nil, fmt.Errorf("mapping: unknown field %q", name)
		}
		m[f] = header
	}
	if err := normalize.Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Plan) Print(w io.Writer) {
	policy := p.DatePolicy
	if policy == "" {
		policy = "(config)"
	}
	fmt.Fprintf(w, "Date policy: %s\n", policy)
	for i, st := range p.Statements {
		fmt.Fprintf(w, "[%d] file=%s source=%s", i+1, st.File, st.Source)
		if len(st.Mapping) > 0 {
			fields := make([]string, 0, len(st.Mapping))
			for f := range st.Mapping {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			fmt.Fprint(w, " mapping=")
			for j, f := range fields {
				if j > 0 {
					fmt.Fprint(w, ",")
				}
				fmt.Fprintf(w, "%s:%q", f, st.Mapping[f])
			}
		}
		fmt.Fprintln(w)
	}
}
