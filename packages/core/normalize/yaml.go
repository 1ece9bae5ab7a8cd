package normalize

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

const commonKey = "case_common"

type YAMLSource struct {
	root string
}

func NewYAMLSource(root string) *YAMLSource {
	return &YAMLSource{root: root}
}

func (s *YAMLSource) Kind() string { return "yaml" }

func (s *YAMLSource) Root() string { return s.root }

func (s *YAMLSource) Modules() ([]string, error) {
	return listModules(s.root, ".yaml", ".yml")
}

func (s *YAMLSource) Files(module string) ([]string, error) {
	return listFiles(filepath.Join(s.root, module), ".yaml", ".yml")
}

// Read walks each document's top-level mapping node so cases keep the order
// they were written in.
func (s *YAMLSource) Read(module string) (Common, []Record, []error, error) {
	files, err := s.Files(module)
	if err != nil {
		return nil, nil, nil, err
	}

	common := Common{}
	var (
		records []Record
		errs    []error
	)
	seen := make(map[string]string)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reading %s: %w", file, err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			errs = append(errs, &cases.DataFormatError{Module: module, Origin: filepath.Base(file), Err: err})
			continue
		}
		if len(doc.Content) == 0 {
			continue
		}
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			errs = append(errs, &cases.DataFormatError{
				Module: module,
				Origin: filepath.Base(file),
				Err:    fmt.Errorf("top level must be a mapping of case ids"),
			})
			continue
		}

		for i := 0; i+1 < len(root.Content); i += 2 {
			key, val := root.Content[i], root.Content[i+1]
			origin := fmt.Sprintf("%s:%d", filepath.Base(file), key.Line)

			if key.Value == commonKey {
				var m map[string]any
				if err := val.Decode(&m); err != nil {
					errs = append(errs, &cases.DataFormatError{Module: module, Field: commonKey, Origin: origin, Err: err})
					continue
				}
				for k, v := range m {
					common[k] = canonical(v)
				}
				continue
			}

			if prev, dup := seen[key.Value]; dup {
				errs = append(errs, &cases.DataFormatError{
					Module: module,
					CaseID: key.Value,
					Origin: origin,
					Err:    fmt.Errorf("duplicate case id, first defined at %s", prev),
				})
				continue
			}
			seen[key.Value] = origin

			if val.Kind != yaml.MappingNode {
				errs = append(errs, &cases.DataFormatError{
					Module: module,
					CaseID: key.Value,
					Origin: origin,
					Err:    fmt.Errorf("case must be a mapping"),
				})
				continue
			}
			var fields map[string]any
			if err := val.Decode(&fields); err != nil {
				errs = append(errs, &cases.DataFormatError{Module: module, CaseID: key.Value, Origin: origin, Err: err})
				continue
			}
			records = append(records, Record{ID: key.Value, Fields: fields, Origin: origin})
		}
	}
	return common, records, errs, nil
}
