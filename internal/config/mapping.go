package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Mapping is an arbitrarily nested YAML document.
type Mapping map[string]any

// ErrNotFound is returned when a config path does not name an existing file.
var ErrNotFound = errors.New("config file not found")

// ParseError reports content that is not a valid YAML mapping.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse config %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LoadMapping reads a YAML file into a nested Mapping. An empty or null
// document yields an empty, non-nil Mapping.
func LoadMapping(path string) (Mapping, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseMapping(path, data)
}

// ParseMapping decodes YAML bytes. name is used in error messages only.
func ParseMapping(name string, data []byte) (Mapping, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: name, Err: err}
	}
	if doc == nil {
		return Mapping{}, nil
	}
	m, ok := asMapping(normalize(doc))
	if !ok {
		return nil, &ParseError{Path: name, Err: fmt.Errorf("top-level document is %T, want mapping", doc)}
	}
	return m, nil
}

// normalize converts map[any]any nodes, which yaml.v3 produces for
// non-string keys, into map[string]any.
func normalize(v any) any {
	switch n := v.(type) {
	case map[string]any:
		for k, child := range n {
			n[k] = normalize(child)
		}
		return n
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, child := range n {
			out[fmt.Sprint(k)] = normalize(child)
		}
		return out
	case []any:
		for i, child := range n {
			n[i] = normalize(child)
		}
		return n
	default:
		return v
	}
}

func asMapping(v any) (Mapping, bool) {
	switch m := v.(type) {
	case Mapping:
		return m, true
	case map[string]any:
		return Mapping(m), true
	default:
		return nil, false
	}
}

// Merge deep-merges configs in order of increasing priority into a new
// Mapping. Nested mappings present on both sides are merged key by key;
// any other value from a later config replaces the earlier one. Inputs are
// never modified and the result shares no nested state with them.
func Merge(configs ...Mapping) Mapping {
	result := Mapping{}
	for _, cfg := range configs {
		deepMerge(result, cfg)
	}
	return result
}

func deepMerge(base, override Mapping) {
	for key, value := range override {
		if existing, ok := asMapping(base[key]); ok {
			if incoming, ok := asMapping(value); ok {
				deepMerge(existing, incoming)
				continue
			}
		}
		base[key] = clone(value)
	}
}

func clone(v any) any {
	switch n := v.(type) {
	case Mapping:
		out := make(Mapping, len(n))
		for k, child := range n {
			out[k] = clone(child)
		}
		return out
	case map[string]any:
		out := make(Mapping, len(n))
		for k, child := range n {
			out[k] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, child := range n {
			out[i] = clone(child)
		}
		return out
	default:
		return v
	}
}

// Lookup walks a dotted path of keys, e.g. Lookup(m, "loader", "retries").
func (m Mapping) Lookup(keys ...string) (any, bool) {
	var cur any = m
	for _, k := range keys {
		node, ok := asMapping(cur)
		if !ok {
			return nil, false
		}
		cur, ok = node[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
