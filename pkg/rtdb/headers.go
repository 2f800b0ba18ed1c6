package rtdb

import "net/http"

type headerOptions struct {
	accept  string
	body    bool
	eTag    bool
	ifMatch string
}

// buildHeaders assigns header keys directly so they keep their exact
// spelling on the wire.
func buildHeaders(o headerOptions) http.Header {
	h := http.Header{}
	accept := o.accept
	if accept == "" {
		accept = ContentTypeJSON
	}
	h[HeaderAccept] = []string{accept}
	if o.body {
		h[HeaderContentType] = []string{ContentTypeJSON}
	}
	if o.eTag {
		h[HeaderETagRequest] = []string{"true"}
	}
	if o.ifMatch != "" {
		h[HeaderIfMatch] = []string{o.ifMatch}
	}
	return h
}
