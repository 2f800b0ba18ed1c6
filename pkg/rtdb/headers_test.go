package rtdb

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildHeaders(t *testing.T) {
	tests := []struct {
		name string
		in   headerOptions
		want http.Header
	}{
		{
			name: "get",
			in:   headerOptions{},
			want: http.Header{"Accept": {"application/json"}},
		},
		{
			name: "get with etag",
			in:   headerOptions{eTag: true},
			want: http.Header{"Accept": {"application/json"}, "X-Firebase-ETag": {"true"}},
		},
		{
			name: "put conditional",
			in:   headerOptions{body: true, ifMatch: "abc"},
			want: http.Header{"Accept": {"application/json"}, "Content-Type": {"application/json"}, "if-match": {"abc"}},
		},
		{
			name: "delete conditional",
			in:   headerOptions{ifMatch: "abc", eTag: true},
			want: http.Header{"Accept": {"application/json"}, "if-match": {"abc"}, "X-Firebase-ETag": {"true"}},
		},
		{
			name: "stream",
			in:   headerOptions{accept: ContentTypeEventStream},
			want: http.Header{"Accept": {"text/event-stream"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, buildHeaders(tc.in))
		})
	}
}
