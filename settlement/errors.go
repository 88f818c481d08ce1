package settlement

import "errors"

// ErrNotAwaited marks a confirmation wait stopped by the caller. The
// transaction may still confirm on chain.
var ErrNotAwaited = errors.New("confirmation not awaited")
