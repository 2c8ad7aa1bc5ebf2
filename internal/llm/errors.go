package llm

import "errors"

// Oracle failures the engine recovers from locally. Anything wrapping
// ErrTimeout means the call did not come back in time; ErrMalformed means
// it came back but could not be turned into a usable value. Both trigger
// the same deterministic fallbacks upstream.
var (
	ErrTimeout   = errors.New("oracle timeout")
	ErrMalformed = errors.New("oracle malformed output")
)
