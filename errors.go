// SPDX-License-Identifier: MIT

package forest

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
)

// Sentinel errors. Per §7, only the connectivity parser (see connio)
// returns a recoverable error; every other sentinel here is wrapped into
// a fatal abort by assertf/fatalf rather than returned to a caller, since
// §7 treats any core-algorithm error as an unrecoverable logic bug.
var (
	ErrPartitionTotalMismatch = errors.New("forest: sum(new_count) does not equal global_num_quadrants")
	ErrNegativeCount          = errors.New("forest: partition count entry is negative")
	ErrEmptyConnectivity      = errors.New("forest: connectivity has zero trees")
	ErrUnknownTransform       = errors.New("forest: transform index out of range 0..7")
)

// AbortFunc is called by fatalf after logging and flushing, matching §7's
// "flush both streams, optionally print a backtrace, invoke a user
// supplied abort handler, then call the runtime abort". Tests override it
// to turn fatal aborts into recoverable panics instead of killing the
// test binary.
var AbortFunc func() = func() { os.Exit(1) }

// assertf aborts the process with a formatted message if cond is false,
// matching §7's "Invariant violation (assertion): abort with file/line
// and rank".
func assertf(cond bool, rank int, format string, args ...any) {
	if cond {
		return
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		fatalf(rank, "%s:%d: %s", file, line, fmt.Sprintf(format, args...))
		return
	}
	fatalf(rank, format, args...)
}

// fatalf logs a diagnostic tagged with the calling rank and aborts,
// matching §7's fail-stop error model for everything except the
// connectivity parser.
func fatalf(rank int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("rank %d: FATAL: %s", rank, msg)
	AbortFunc()
}
