package rtdb

// Query parameter names understood by the database.
const (
	QueryAuth           = "auth"
	QueryTimeout        = "timeout"
	QueryWriteSizeLimit = "writeSizeLimit"
	QueryPrint          = "print"
	QueryFormat         = "format"
	QueryShallow        = "shallow"

	QueryOrderBy      = "orderBy"
	QueryLimitToFirst = "limitToFirst"
	QueryLimitToLast  = "limitToLast"
	QueryStartAt      = "startAt"
	QueryStartAfter   = "startAfter"
	QueryEndAt        = "endAt"
	QueryEndBefore    = "endBefore"
	QueryEqualTo      = "equalTo"
)

// Header names. Request headers are sent with exactly this spelling.
const (
	HeaderAccept      = "Accept"
	HeaderContentType = "Content-Type"
	HeaderETagRequest = "X-Firebase-ETag"
	HeaderIfMatch     = "if-match"
	HeaderETag        = "ETag"
)

// Content types.
const (
	ContentTypeJSON        = "application/json"
	ContentTypeEventStream = "text/event-stream"
)

// Event labels sent on event streams.
const (
	EventPut         = "put"
	EventPatch       = "patch"
	EventKeepAlive   = "keep-alive"
	EventCancel      = "cancel"
	EventAuthRevoked = "auth_revoked"
)

// NullETag is the ETag the server reports for a location holding no data.
const NullETag = "null_etag"

// PrintMode selects the "print" query parameter.
type PrintMode string

const (
	// PrintNormal omits the parameter.
	PrintNormal PrintMode = ""
	// PrintPretty asks for indented JSON.
	PrintPretty PrintMode = "pretty"
	// PrintSilent suppresses the response body; writes answer 204.
	PrintSilent PrintMode = "silent"
)

// FormatMode selects the "format" query parameter.
type FormatMode string

const (
	// FormatNormal omits the parameter.
	FormatNormal FormatMode = ""
	// FormatExport includes priority metadata in the response.
	FormatExport FormatMode = "export"
)
