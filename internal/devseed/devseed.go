// Package devseed loads seed data for the in-memory database used by the
// sandbox and tests.
package devseed

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadTree reads a YAML or JSON document from path and returns it as a tree of
// map[string]any, []any and scalar values. An empty file yields nil.
func LoadTree(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devseed: read %s: %w", path, err)
	}
	tree, err := ParseTree(raw)
	if err != nil {
		return nil, fmt.Errorf("devseed: %s: %w", path, err)
	}
	return tree, nil
}

// ParseTree decodes a YAML or JSON document. JSON is accepted because it is a
// subset of YAML.
func ParseTree(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return convert(doc, "")
}

// convert rewrites mappings with non-string keys, which encoding/json cannot
// marshal, and rejects values that have no JSON form.
func convert(v any, at string) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			c, err := convert(child, at+"/"+k)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			key := fmt.Sprint(k)
			c, err := convert(child, at+"/"+key)
			if err != nil {
				return nil, err
			}
			out[key] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			c, err := convert(child, fmt.Sprintf("%s/%d", at, i))
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case nil, string, bool, int, int64, uint64, float64:
		return t, nil
	default:
		if at == "" {
			at = "/"
		}
		return nil, fmt.Errorf("unsupported seed value %T at %s", v, at)
	}
}
