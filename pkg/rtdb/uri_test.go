package rtdb

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New("", append([]Option{WithEndpoint("https://db.example.com")}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestResourcePath(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"", "", "/.json"},
		{"", "/", "/.json"},
		{"", "a//b/../c", "/a/c.json"},
		{"", "users/alice", "/users/alice.json"},
		{"app", "users", "/app/users.json"},
		{"/app/", "/users/", "/app/users.json"},
		{"app", "../..", "/.json"},
		{"a/./b", "./c", "/a/b/c.json"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, resourcePath(tc.base, tc.path), "base=%q path=%q", tc.base, tc.path)
	}
}

func TestBuildURLNormalizesPath(t *testing.T) {
	c := newTestClient(t)
	got, err := c.buildURL("a//b/../c", query{})
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "db.example.com", u.Host)
	assert.Equal(t, "/a/c.json", u.Path)
}

func TestBuildURLDefaultHost(t *testing.T) {
	c, err := New("my-db")
	require.NoError(t, err)
	got, err := c.buildURL("x", query{})
	require.NoError(t, err)
	assert.Equal(t, "https://my-db.firebaseio.com/x.json?timeout=15s&writeSizeLimit=large", got)
}

func TestBuildURLParameterMatrix(t *testing.T) {
	prints := []PrintMode{PrintNormal, PrintPretty, PrintSilent}
	formats := []FormatMode{FormatNormal, FormatExport}
	shallows := []*bool{nil, Bool(true), Bool(false)}
	filters := []*Filter{nil, OrderByKey().LimitToFirst(2)}
	tokens := []string{"", "secret"}

	for _, pm := range prints {
		for _, fm := range formats {
			for _, sh := range shallows {
				for _, f := range filters {
					for _, token := range tokens {
						c := newTestClient(t, WithAuthToken(token))
						raw, err := c.buildURL("items", query{print: pm, format: fm, shallow: sh, filter: f})
						require.NoError(t, err)
						u, err := url.Parse(raw)
						require.NoError(t, err)
						q := u.Query()

						assert.Equal(t, "15s", q.Get(QueryTimeout))
						assert.Equal(t, "large", q.Get(QueryWriteSizeLimit))
						assert.Equal(t, token != "", q.Has(QueryAuth))
						if token != "" {
							assert.Equal(t, token, q.Get(QueryAuth))
						}
						assert.Equal(t, pm != PrintNormal, q.Has(QueryPrint))
						assert.Equal(t, string(pm), q.Get(QueryPrint))
						assert.Equal(t, fm != FormatNormal, q.Has(QueryFormat))
						assert.Equal(t, string(fm), q.Get(QueryFormat))
						assert.Equal(t, sh != nil, q.Has(QueryShallow))
						if sh != nil {
							assert.Equal(t, map[bool]string{true: "true", false: "false"}[*sh], q.Get(QueryShallow))
						}
						assert.Equal(t, f != nil, q.Has(QueryOrderBy))
						if f != nil {
							assert.Equal(t, `"$key"`, q.Get(QueryOrderBy))
							assert.Equal(t, "2", q.Get(QueryLimitToFirst))
						}
					}
				}
			}
		}
	}
}

func TestBuildURLIsDeterministic(t *testing.T) {
	c := newTestClient(t, WithAuthToken("tok"), WithTimeout(3*time.Minute), WithWriteSizeLimit(WriteSizeSmall))
	q := query{print: PrintPretty, shallow: Bool(true), filter: OrderByChild("age").StartAt(18).EndAt(65)}

	first, err := c.buildURL("people", q)
	require.NoError(t, err)
	second, err := c.buildURL("people", q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildURLFilterOverridesReservedKeys(t *testing.T) {
	c := newTestClient(t)
	f := OrderByKey()
	f.set(QueryTimeout, "1s")

	raw, err := c.buildURL("", query{filter: f})
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"1s"}, u.Query()[QueryTimeout])
}

func TestBuildURLReportsFilterEncodingError(t *testing.T) {
	c := newTestClient(t)
	_, err := c.buildURL("", query{filter: OrderByKey().StartAt(make(chan int))})
	require.Error(t, err)
}

func TestBuildURLReadsTokenAtBuildTime(t *testing.T) {
	c := newTestClient(t)
	before, err := c.buildURL("x", query{})
	require.NoError(t, err)

	c.SetAuthToken("rotated")
	after, err := c.buildURL("x", query{})
	require.NoError(t, err)

	assert.NotContains(t, before, "auth=")
	assert.Contains(t, after, "auth=rotated")

	c.SetAuthToken("")
	cleared, err := c.buildURL("x", query{})
	require.NoError(t, err)
	assert.Equal(t, before, cleared)
}

func TestFormatTimeout(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{15 * time.Second, "15s"},
		{3 * time.Minute, "3min"},
		{90 * time.Second, "90s"},
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1500ms"},
		{time.Microsecond, "1ms"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, formatTimeout(tc.in), tc.in.String())
	}
}

func TestSessionNormalize(t *testing.T) {
	c := newTestClient(t, WithTimeout(time.Hour), WithWriteSizeLimit("huge"))
	s := c.Session()
	assert.Equal(t, MaxTimeout, s.Timeout)
	assert.Equal(t, DefaultWriteSizeLimit, s.WriteSizeLimit)

	c.SetTimeout(0)
	c.SetWriteSizeLimit(WriteSizeTiny)
	s = c.Session()
	assert.Equal(t, DefaultTimeout, s.Timeout)
	assert.Equal(t, WriteSizeTiny, s.WriteSizeLimit)
}

func TestNewValidatesDatabase(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	_, err = New("bad/name")
	require.Error(t, err)
	_, err = New("", WithEndpoint("not a url"))
	require.Error(t, err)
}
