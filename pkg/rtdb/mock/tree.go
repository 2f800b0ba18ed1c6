package mock

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/Skycoder42/firebox/pkg/rtdb"
)

// The tree holds decoded JSON: map[string]any for objects and float64,
// string or bool for leaves. Arrays are stored as objects keyed by index and
// empty objects and nulls are pruned, as the real database does.

func splitPath(p string) []string {
	cleaned := strings.Trim(path.Clean("/"+p), "/")
	if cleaned == "" {
		return nil
	}
	return strings.Split(cleaned, "/")
}

func joinPath(segs []string) string {
	return "/" + strings.Join(segs, "/")
}

func hasPrefix(segs, prefix []string) bool {
	if len(prefix) > len(segs) {
		return false
	}
	for i := range prefix {
		if segs[i] != prefix[i] {
			return false
		}
	}
	return true
}

// decodeValue parses raw JSON into the tree representation.
func decodeValue(raw []byte) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

// toTree converts an arbitrary Go value by round-tripping it through JSON.
func toTree(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeValue(raw)
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if n := normalize(child); n != nil {
				out[k] = n
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		out := make(map[string]any, len(t))
		for i, child := range t {
			if n := normalize(child); n != nil {
				out[strconv.Itoa(i)] = n
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return v
	}
}

func getAt(root any, segs []string) any {
	node := root
	for _, seg := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[seg]
	}
	return node
}

// setAt returns root with the value at segs replaced by v. A nil v deletes
// the location and prunes parents left empty. Maps along the path are copied
// so earlier snapshots stay intact.
func setAt(root any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	m, _ := root.(map[string]any)
	out := make(map[string]any, len(m)+1)
	for k, child := range m {
		out[k] = child
	}
	child := setAt(out[segs[0]], segs[1:], v)
	if child == nil {
		delete(out, segs[0])
	} else {
		out[segs[0]] = child
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func shallow(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func encode(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		// The tree only ever holds values that came out of encoding/json.
		panic(fmt.Sprintf("mock rtdb: encode tree: %v", err))
	}
	return raw
}

// etagOf hashes the canonical encoding of v. json.Marshal sorts map keys, so
// equal trees hash equally.
func etagOf(v any) string {
	if v == nil {
		return rtdb.NullETag
	}
	sum := sha1.Sum(encode(v))
	return base64.StdEncoding.EncodeToString(sum[:])
}
