package serialization

import "errors"

// Sentinel errors for the latched engine error field (spec §7): once set,
// every subsequent Run call short-circuits without touching the buffer.
var (
	ErrLimitString    = errors.New("serialization: string exceeds max_string")
	ErrLimitContainer = errors.New("serialization: container exceeds max_container")
	ErrLimitStream    = errors.New("serialization: stream exceeds max_stream")
	ErrLimitBlob      = errors.New("serialization: blob exceeds max_blob")
	ErrCrossInteger   = errors.New("serialization: malformed cross-integer")
	ErrNoType         = errors.New("serialization: unknown type id")
	ErrNoCast         = errors.New("serialization: missing cast registration")
)
