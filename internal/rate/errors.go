package rate

import "errors"

// ErrRateLimited is returned when a key has no tokens left.
var ErrRateLimited = errors.New("rate limited")
