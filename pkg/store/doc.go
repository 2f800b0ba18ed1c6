// Package store provides a typed view over one location of a realtime
// database. Every child of the location is an entry of type T addressed by
// its key; values are converted with a Codec, JSON by default.
//
// Reads and writes map onto single REST calls of the underlying rtdb.Client.
// Stream translates the raw put and patch events of a location into entry
// level events, and Watch keeps such a stream alive across auth revocations
// and dropped connections.
package store
