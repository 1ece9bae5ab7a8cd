package normalize

import (
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
	"github.com/abdul-hamid-achik/caserun/packages/logging"
)

type DivergenceKind string

const (
	OnlyLeft  DivergenceKind = "only_left"
	OnlyRight DivergenceKind = "only_right"
	Mismatch  DivergenceKind = "mismatch"
)

// Divergence describes one difference between two sources for a module.
type Divergence struct {
	Module string         `json:"module"`
	CaseID string         `json:"case_id"`
	Kind   DivergenceKind `json:"kind"`
	Diff   string         `json:"diff,omitempty"`
}

func (d Divergence) String() string {
	switch d.Kind {
	case OnlyLeft:
		return fmt.Sprintf("%s/%s: only in left source", d.Module, d.CaseID)
	case OnlyRight:
		return fmt.Sprintf("%s/%s: only in right source", d.Module, d.CaseID)
	}
	return fmt.Sprintf("%s/%s: definitions differ\n%s", d.Module, d.CaseID, d.Diff)
}

var caseCompareOpts = cmp.Options{
	cmpopts.IgnoreFields(cases.Case{}, "Origin"),
	cmpopts.EquateEmpty(),
}

// Compare normalizes module from both sources and reports cases that exist
// on one side only or normalize differently. It never modifies either side.
func Compare(left, right Source, module string) ([]Divergence, error) {
	l, err := loadOnce(left, module)
	if err != nil {
		return nil, fmt.Errorf("left source: %w", err)
	}
	r, err := loadOnce(right, module)
	if err != nil {
		return nil, fmt.Errorf("right source: %w", err)
	}
	return CompareModules(l, r), nil
}

// CompareModules diffs two already normalized modules.
func CompareModules(l, r *cases.Module) []Divergence {
	var out []Divergence
	rightByID := make(map[string]*cases.Case, len(r.Cases))
	for _, c := range r.Cases {
		rightByID[c.ID] = c
	}
	leftIDs := make(map[string]bool, len(l.Cases))
	for _, lc := range l.Cases {
		leftIDs[lc.ID] = true
		rc, ok := rightByID[lc.ID]
		if !ok {
			out = append(out, Divergence{Module: l.Name, CaseID: lc.ID, Kind: OnlyLeft})
			continue
		}
		if diff := cmp.Diff(lc, rc, caseCompareOpts); diff != "" {
			out = append(out, Divergence{Module: l.Name, CaseID: lc.ID, Kind: Mismatch, Diff: diff})
		}
	}
	for _, rc := range r.Cases {
		if !leftIDs[rc.ID] {
			out = append(out, Divergence{Module: l.Name, CaseID: rc.ID, Kind: OnlyRight})
		}
	}
	return out
}

func loadOnce(src Source, module string) (*cases.Module, error) {
	fp, err := Fingerprint(src, module)
	if err != nil {
		return nil, err
	}
	common, records, errs, err := src.Read(module)
	if err != nil {
		return nil, err
	}
	return assemble(module, src.Kind(), fp, common, records, errs, logging.Discard()), nil
}
