package orchestrator

import "errors"

// errTruncatedStream marks a stream whose adapter returned without
// firing a terminal callback.
var errTruncatedStream = errors.New("stream ended without completion")
