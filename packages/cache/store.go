package cache

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

// Store holds the values one dependency chain passes between its requests.
// A store is created per chain and dropped when the chain finishes; nothing
// in it outlives the case that created it.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

func New() *Store {
	return &Store{values: make(map[string]any)}
}

// NewWithSeed returns a fresh store pre-populated with copies of seed.
func NewWithSeed(seed map[string]any) *Store {
	s := New()
	for k, v := range seed {
		s.values[k] = cases.CloneValue(v)
	}
	return s
}

func (s *Store) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// SetTyped coerces value to typ before storing it.
func (s *Store) SetTyped(name string, value any, typ string) error {
	v, err := Coerce(value, typ)
	if err != nil {
		return fmt.Errorf("cache %s: %w", name, err)
	}
	s.Set(name, v)
	return nil
}

// Get fails with *cases.CacheKeyNotFoundError for a name nothing has written.
func (s *Store) Get(name string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	if !ok {
		return nil, &cases.CacheKeyNotFoundError{Key: name}
	}
	return v, nil
}

func (s *Store) GetTyped(name, typ string) (any, error) {
	v, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	out, err := Coerce(v, typ)
	if err != nil {
		return nil, fmt.Errorf("cache %s: %w", name, err)
	}
	return out, nil
}

func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[name]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot copies the current contents for reporting.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = cases.CloneValue(v)
	}
	return out
}

// Clone returns an independent store with the same contents.
func (s *Store) Clone() *Store {
	return NewWithSeed(s.Snapshot())
}

// Coerce converts value to one of int, float, bool, str, list or dict.
// An empty typ returns value unchanged.
func Coerce(value any, typ string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "":
		return value, nil
	case "int", "integer":
		return toInt(value)
	case "float", "number":
		return toFloat(value)
	case "bool", "boolean":
		return toBool(value)
	case "str", "string":
		return toString(value), nil
	case "list", "array", "tuple":
		return toList(value)
	case "dict", "map", "object":
		return toDict(value)
	default:
		return nil, fmt.Errorf("unknown coercion type %q", typ)
	}
}

func toInt(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("cannot coerce %v to int: not a whole number", n)
		}
		return int(n), nil
	case float32:
		return toInt(float64(n))
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to int: %w", n, err)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to int", n)
		}
		return i, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	}
	return nil, fmt.Errorf("cannot coerce %T to int", v)
}

func toFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to float: %w", n, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to float", n)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot coerce %T to float", v)
}

func toBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to bool", b)
		}
		return parsed, nil
	case int:
		return b != 0, nil
	case int64:
		return b != 0, nil
	case float64:
		return b != 0, nil
	case json.Number:
		f, err := b.Float64()
		if err != nil {
			return nil, fmt.Errorf("cannot coerce %q to bool", b)
		}
		return f != 0, nil
	}
	return nil, fmt.Errorf("cannot coerce %T to bool", v)
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case map[string]any, []any:
		data, err := json.Marshal(s)
		if err == nil {
			return string(data)
		}
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}

func toList(v any) (any, error) {
	switch l := v.(type) {
	case []any:
		return l, nil
	case string:
		var out []any
		if err := unmarshal(l, &out); err != nil {
			return nil, fmt.Errorf("cannot coerce %q to list: %w", l, err)
		}
		return out, nil
	case nil:
		return []any{}, nil
	}
	return []any{v}, nil
}

func toDict(v any) (any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case string:
		var out map[string]any
		if err := unmarshal(m, &out); err != nil {
			return nil, fmt.Errorf("cannot coerce %q to dict: %w", m, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot coerce %T to dict", v)
}

func unmarshal(s string, out any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	return dec.Decode(out)
}
