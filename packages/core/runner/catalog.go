package runner

import (
	"fmt"
	"slices"
	"strings"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

// Catalog indexes normalized modules so dependencies can be found by case
// id. Ids are looked up in the dependent's own module first.
type Catalog struct {
	modules []*cases.Module
	byName  map[string]*cases.Module
	byID    map[string][]*cases.Case
}

func NewCatalog(modules ...*cases.Module) *Catalog {
	c := &Catalog{
		byName: make(map[string]*cases.Module),
		byID:   make(map[string][]*cases.Case),
	}
	for _, m := range modules {
		c.Add(m)
	}
	return c
}

// Add registers m, replacing a module of the same name.
func (c *Catalog) Add(m *cases.Module) {
	if old, ok := c.byName[m.Name]; ok {
		for _, oc := range old.Cases {
			c.byID[oc.ID] = slices.DeleteFunc(c.byID[oc.ID], func(x *cases.Case) bool { return x.Module == old.Name })
		}
		c.modules = slices.DeleteFunc(c.modules, func(x *cases.Module) bool { return x.Name == m.Name })
	}
	c.modules = append(c.modules, m)
	c.byName[m.Name] = m
	for _, cs := range m.Cases {
		c.byID[cs.ID] = append(c.byID[cs.ID], cs)
	}
}

func (c *Catalog) Modules() []*cases.Module {
	return c.modules
}

func (c *Catalog) Module(name string) (*cases.Module, bool) {
	m, ok := c.byName[name]
	return m, ok
}

// Case finds id, preferring a case in module.
func (c *Catalog) Case(module, id string) (*cases.Case, bool) {
	found := c.byID[id]
	for _, cs := range found {
		if cs.Module == module {
			return cs, true
		}
	}
	if len(found) > 0 {
		return found[0], true
	}
	return nil, false
}

// Check walks everything c depends on with an explicit in-progress stack and
// reports the first cycle or unknown prerequisite. Nothing is executed.
func (c *Catalog) Check(root *cases.Case) error {
	done := make(map[string]bool)
	var visit func(cs *cases.Case, stack []string) error
	visit = func(cs *cases.Case, stack []string) error {
		key := cs.Module + "/" + cs.ID
		if i := slices.Index(stack, key); i >= 0 {
			return &cases.CircularDependencyError{Cycle: cycleIDs(stack[i:], cs.ID)}
		}
		if done[key] {
			return nil
		}
		stack = append(stack[:len(stack):len(stack)], key)
		for _, step := range cs.Dependencies {
			pre, ok := c.Case(cs.Module, step.CaseID)
			if !ok {
				return unknownCase(cs, step.CaseID, "dependence_case_data")
			}
			if err := visit(pre, stack); err != nil {
				return err
			}
		}
		done[key] = true
		return nil
	}
	return visit(root, nil)
}

// Chain returns the ids that must run on the same worker as id: its
// transitive prerequisites and teardown cases, prerequisites first, id last.
func (c *Catalog) Chain(module, id string) ([]string, error) {
	root, ok := c.Case(module, id)
	if !ok {
		return nil, fmt.Errorf("case %s not found", id)
	}
	if err := c.Check(root); err != nil {
		return nil, err
	}
	var (
		order []string
		seen  = make(map[string]bool)
	)
	var walk func(cs *cases.Case) error
	walk = func(cs *cases.Case) error {
		if seen[cs.ID] {
			return nil
		}
		seen[cs.ID] = true
		for _, step := range cs.Dependencies {
			pre, _ := c.Case(cs.Module, step.CaseID)
			if err := walk(pre); err != nil {
				return err
			}
		}
		order = append(order, cs.ID)
		for _, td := range cs.Teardown {
			tc, ok := c.Case(cs.Module, td.CaseID)
			if !ok {
				return unknownCase(cs, td.CaseID, "teardown")
			}
			if err := c.Check(tc); err != nil {
				return err
			}
			if err := walk(tc); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	// the root goes last so a scheduler can read the chain as run order
	if i := slices.Index(order, root.ID); i >= 0 && i != len(order)-1 {
		order = append(slices.Delete(order, i, i+1), root.ID)
	}
	return order, nil
}

// Chains groups a module's cases into sets that share prerequisites or
// teardown cases. Each group must stay on one worker. Groups and their
// members keep declaration order.
func (c *Catalog) Chains(module string) ([][]string, error) {
	m, ok := c.byName[module]
	if !ok {
		return nil, fmt.Errorf("module %s not found", module)
	}

	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" || parent[x] == x {
			parent[x] = x
			return x
		}
		root := find(parent[x])
		parent[x] = root
		return root
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for _, cs := range m.Cases {
		chain, err := c.Chain(module, cs.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range chain {
			union(cs.ID, id)
		}
	}

	var (
		groups [][]string
		index  = make(map[string]int)
	)
	for _, cs := range m.Cases {
		r := find(cs.ID)
		i, ok := index[r]
		if !ok {
			i = len(groups)
			index[r] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], cs.ID)
	}
	return groups, nil
}

func cycleIDs(stack []string, closing string) []string {
	out := make([]string, 0, len(stack)+1)
	for _, key := range stack {
		out = append(out, idOf(key))
	}
	return append(out, closing)
}

func idOf(key string) string {
	if _, id, ok := strings.Cut(key, "/"); ok {
		return id
	}
	return key
}

func unknownCase(cs *cases.Case, id, field string) error {
	return &cases.DataFormatError{
		Module: cs.Module,
		CaseID: cs.ID,
		Field:  field,
		Origin: cs.Origin,
		Err:    fmt.Errorf("unknown case %s", id),
	}
}
