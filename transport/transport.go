// SPDX-License-Identifier: MIT

// Package transport is the narrow MPI surface the forest core consumes
// (§6): collectives plus non-blocking point-to-point byte messages on a
// single tag, with a dummy single-process/in-process shim so a build
// without a real MPI library still runs identically (§6, §9).
//
// No example in the retrieval pack implements point-to-point message
// passing (see ../SPEC_FULL.md Domain Stack); this package is built
// fresh against §6's enumerated surface.
package transport

import "time"

// Request is an opaque handle to a pending Isend or Irecv, resolved by
// Waitall.
type Request struct {
	kind   reqKind
	rank   int
	peer   int
	tag    int
	data   []byte
	result *[]byte
}

type reqKind int

const (
	reqSend reqKind = iota
	reqRecv
)

// ReduceOp combines two byte-encoded values for Reduce/Allreduce.
type ReduceOp func(a, b []byte) []byte

// Transport is the point-to-point and collective surface the forest core
// consumes. A `(sender, receiver, tag)` triple is FIFO-ordered (§5); this
// package uses a single dedicated tag space for repartition so the
// `(sender -> receiver)` pairing plus each message's self-describing
// per-tree count header (§4.J) lets ranks receive out of post-order.
type Transport interface {
	Rank() int
	Size() int

	Barrier()
	Bcast(data []byte, root int) []byte
	Allgather(send []byte) [][]byte
	Reduce(send []byte, root int, op ReduceOp) []byte
	Allreduce(send []byte, op ReduceOp) []byte

	Isend(dest, tag int, data []byte) Request
	Irecv(source, tag int) Request
	Waitall(reqs []Request) [][]byte

	Wtime() float64
	Abort(code int)
}

// abortFunc is overridden in tests so Abort doesn't kill the test binary.
var abortFunc = func(code int) { panic(abortPanic{code}) }

type abortPanic struct{ code int }

// SetAbortFunc overrides the process-abort action (§7's "invoke a user
// supplied abort handler, then call the runtime abort"); tests use this
// to recover from Abort instead of terminating.
func SetAbortFunc(f func(code int)) { abortFunc = f }

func wtime() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
