package normalize

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

const (
	SheetCommon = "case_common"
	SheetCases  = "test_cases"
	ColumnID    = "case_id"
)

// ExcelSource reads workbooks with a key/value case_common sheet and a
// test_cases sheet holding one case per row under a header row.
type ExcelSource struct {
	root string
}

func NewExcelSource(root string) *ExcelSource {
	return &ExcelSource{root: root}
}

func (s *ExcelSource) Kind() string { return "excel" }

func (s *ExcelSource) Root() string { return s.root }

func (s *ExcelSource) Modules() ([]string, error) {
	return listModules(s.root, ".xlsx")
}

func (s *ExcelSource) Files(module string) ([]string, error) {
	return listFiles(filepath.Join(s.root, module), ".xlsx")
}

func (s *ExcelSource) Read(module string) (Common, []Record, []error, error) {
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
		name := filepath.Base(file)
		fileErr := func(field string, err error) {
			errs = append(errs, &cases.DataFormatError{Module: module, Field: field, Origin: name, Err: err})
		}

		f, err := excelize.OpenFile(file)
		if err != nil {
			fileErr("", err)
			continue
		}

		if rows, err := f.GetRows(SheetCommon); err == nil {
			// first row is the header
			for i, row := range rows {
				if i == 0 || len(row) < 2 || strings.TrimSpace(row[0]) == "" {
					continue
				}
				common[strings.TrimSpace(row[0])] = parseCell(row[1])
			}
		}

		rows, err := f.GetRows(SheetCases)
		_ = f.Close()
		if err != nil {
			fileErr(SheetCases, fmt.Errorf("sheet %s not found: %w", SheetCases, err))
			continue
		}
		if len(rows) == 0 {
			continue
		}

		header := make([]string, len(rows[0]))
		idCol := -1
		for i, h := range rows[0] {
			header[i] = strings.TrimSpace(h)
			if header[i] == ColumnID {
				idCol = i
			}
		}
		if idCol < 0 {
			fileErr(SheetCases, fmt.Errorf("header row has no %s column", ColumnID))
			continue
		}

		for r, row := range rows[1:] {
			if idCol >= len(row) || strings.TrimSpace(row[idCol]) == "" {
				continue
			}
			id := strings.TrimSpace(row[idCol])
			origin := fmt.Sprintf("%s:%s!%d", name, SheetCases, r+2)
			if prev, dup := seen[id]; dup {
				errs = append(errs, &cases.DataFormatError{
					Module: module,
					CaseID: id,
					Origin: origin,
					Err:    fmt.Errorf("duplicate case id, first defined at %s", prev),
				})
				continue
			}
			seen[id] = origin

			fields := make(map[string]any, len(header))
			for c, col := range header {
				if col == "" || c == idCol {
					continue
				}
				if c < len(row) {
					fields[col] = parseCell(row[c])
				} else {
					fields[col] = nil
				}
			}
			records = append(records, Record{ID: id, Fields: fields, Origin: origin})
		}
	}
	return common, records, errs, nil
}

// parseCell types a cell's text: blanks and none/null become nil, then
// booleans, numbers, flow mappings/sequences, and finally plain text.
func parseCell(raw string) any {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "", "none", "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}

	if strings.Contains(v, ".") {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	} else if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}

	if strings.HasPrefix(v, "{") || strings.HasPrefix(v, "[") {
		var out any
		if err := yaml.Unmarshal([]byte(v), &out); err == nil {
			return canonical(out)
		}
	}
	return v
}
