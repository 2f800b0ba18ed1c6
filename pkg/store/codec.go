package store

import "encoding/json"

// Codec converts entries to and from their JSON representation.
type Codec[T any] interface {
	Encode(value T) (json.RawMessage, error)
	Decode(raw json.RawMessage) (T, error)
}

// JSONCodec encodes entries with encoding/json.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(value T) (json.RawMessage, error) {
	return json.Marshal(value)
}

func (JSONCodec[T]) Decode(raw json.RawMessage) (T, error) {
	var value T
	err := json.Unmarshal(raw, &value)
	return value, err
}

// CodecFuncs adapts a pair of functions to the Codec interface.
type CodecFuncs[T any] struct {
	EncodeFunc func(T) (json.RawMessage, error)
	DecodeFunc func(json.RawMessage) (T, error)
}

func (c CodecFuncs[T]) Encode(value T) (json.RawMessage, error) {
	return c.EncodeFunc(value)
}

func (c CodecFuncs[T]) Decode(raw json.RawMessage) (T, error) {
	return c.DecodeFunc(raw)
}
