package rtdb

import (
	"net/url"
	"path"
	"strconv"
)

// query holds the read modifiers of a single request.
type query struct {
	print   PrintMode
	format  FormatMode
	shallow *bool
	filter  *Filter
}

// buildURL returns the absolute request URL for p. It reads the session once
// and has no other inputs.
func (c *Client) buildURL(p string, q query) (string, error) {
	if err := q.filter.Err(); err != nil {
		return "", err
	}
	session := c.Session()
	return c.http.ResolveURL(resourcePath(c.basePath, p), queryValues(session, q)), nil
}

// resourcePath joins base and p, cleans the result and appends ".json".
func resourcePath(base, p string) string {
	cleaned := path.Clean("/" + base + "/" + p)
	if cleaned == "/" {
		return "/.json"
	}
	return cleaned + ".json"
}

func queryValues(session Session, q query) url.Values {
	values := url.Values{}
	values.Set(QueryTimeout, formatTimeout(session.Timeout))
	values.Set(QueryWriteSizeLimit, string(session.WriteSizeLimit))
	if session.AuthToken != "" {
		values.Set(QueryAuth, session.AuthToken)
	}
	if q.print != PrintNormal {
		values.Set(QueryPrint, string(q.print))
	}
	if q.format != FormatNormal {
		values.Set(QueryFormat, string(q.format))
	}
	if q.shallow != nil {
		values.Set(QueryShallow, strconv.FormatBool(*q.shallow))
	}
	for _, param := range q.filter.Params() {
		values.Set(param.Key, param.Value)
	}
	return values
}
