// Package rtdb is a client for the Firebase Realtime Database REST protocol.
//
// A Client addresses one database instance and issues GET, POST, PUT, PATCH
// and DELETE requests against slash-delimited paths. Every request URL carries
// the session's timeout and write size limit, plus the auth token when one is
// set. Responses decode into a Response holding the raw JSON document and,
// when requested via the ETag option, the server's ETag.
//
// Stream opens a long-lived server-sent event connection and decodes it into
// PutEvent, PatchEvent and AuthRevokedEvent values. keep-alive frames and
// unknown event types are swallowed; a cancel frame ends the stream with an
// *Error.
//
// Failures are reported as one of three types: *Error when the server answered
// with a structured error, *DecodeError when a payload was not the expected
// JSON, and *TransportError when the request never produced a response.
//
// The auth token is session state owned by the Client. External token
// providers push new tokens with SetAuthToken; requests snapshot the session
// when their URL is built. The Client never retries.
package rtdb
