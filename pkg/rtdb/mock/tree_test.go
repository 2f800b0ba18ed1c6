package mock

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skycoder42/firebox/pkg/rtdb"
)

func TestSplitPath(t *testing.T) {
	assert.Nil(t, splitPath(""))
	assert.Nil(t, splitPath("/"))
	assert.Equal(t, []string{"a", "b"}, splitPath("//a/./b/"))
	assert.Equal(t, []string{"b"}, splitPath("a/../b"))
}

func TestSetAtCopiesOnWrite(t *testing.T) {
	before, err := toTree(map[string]any{"a": map[string]any{"b": 1, "c": 2}})
	require.NoError(t, err)

	after := setAt(before, []string{"a", "b"}, nil)
	after = setAt(after, []string{"x", "y"}, "z")

	wantBefore := map[string]any{"a": map[string]any{"b": 1.0, "c": 2.0}}
	wantAfter := map[string]any{"a": map[string]any{"c": 2.0}, "x": map[string]any{"y": "z"}}
	if diff := cmp.Diff(wantBefore, before); diff != "" {
		t.Errorf("snapshot changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantAfter, after); diff != "" {
		t.Errorf("unexpected tree (-want +got):\n%s", diff)
	}
	assert.Nil(t, setAt(after, nil, nil))
}

func TestNormalizeDropsEmpty(t *testing.T) {
	tree, err := decodeValue([]byte(`{"a":{},"b":null,"c":[null,{"d":{}}],"e":[1,null,3]}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"e": map[string]any{"0": 1.0, "2": 3.0}}, tree)
}

func TestETagIsContentAddressed(t *testing.T) {
	a, err := decodeValue([]byte(`{"x":1,"y":2}`))
	require.NoError(t, err)
	b, err := decodeValue([]byte(`{"y":2,"x":1}`))
	require.NoError(t, err)

	assert.Equal(t, etagOf(a), etagOf(b))
	assert.NotEqual(t, etagOf(a), etagOf(1.0))
	assert.Equal(t, rtdb.NullETag, etagOf(nil))
}

func TestCompareKeys(t *testing.T) {
	sorted := []string{"-3", "9", "10", "99999999999", "a", "b"}
	for i := 1; i < len(sorted); i++ {
		assert.Negative(t, compareKeys(sorted[i-1], sorted[i]), "%s < %s", sorted[i-1], sorted[i])
	}
	assert.Zero(t, compareKeys("a", "a"))
}

func TestCompareValues(t *testing.T) {
	ordered := []any{nil, false, true, -1.0, 2.5, "", "a", map[string]any{"k": 1.0}}
	for i := 1; i < len(ordered); i++ {
		assert.Negative(t, compareValues(ordered[i-1], ordered[i]), "%v < %v", ordered[i-1], ordered[i])
		assert.Positive(t, compareValues(ordered[i], ordered[i-1]), "%v > %v", ordered[i], ordered[i-1])
	}
}

func TestParseQuery(t *testing.T) {
	q, err := parseQuery(url.Values{})
	require.NoError(t, err)
	assert.Nil(t, q)

	_, err = parseQuery(url.Values{"limitToFirst": {"1"}})
	require.ErrorIs(t, err, errOrderByRequired)

	q, err = parseQuery(url.Values{"orderBy": {`"a/b"`}, "equalTo": {`"x"`}, "limitToLast": {"3"}})
	require.NoError(t, err)
	assert.Equal(t, orderByChild, q.order)
	assert.Equal(t, []string{"a", "b"}, q.child)
	assert.Equal(t, 3, q.limitLast)
	assert.Equal(t, "x", q.start.value)
	assert.Equal(t, "x", q.end.value)

	for name, values := range map[string]url.Values{
		"bare orderBy":     {"orderBy": {"$key"}},
		"negative limit":   {"orderBy": {`"$key"`}, "limitToFirst": {"-1"}},
		"object bound":     {"orderBy": {`"$value"`}, "startAt": {`{"a":1}`}},
		"two lower bounds": {"orderBy": {`"$value"`}, "startAt": {"1"}, "startAfter": {"1"}},
		"equal and range":  {"orderBy": {`"$value"`}, "equalTo": {"1"}, "endAt": {"2"}},
	} {
		_, err := parseQuery(values)
		assert.Error(t, err, name)
	}
}
