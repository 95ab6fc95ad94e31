// Package walk traverses a book's remote chapter list.
//
// The remote list is a mutable, possibly stale linked list. Select derives a
// strategy once per run from the local bundle and the remote metadata:
//
//   - ForwardWalk from the first chapter when no usable bundle exists.
//   - ResumeWalk from the remote ID stored in the highest bundle block.
//   - ReverseWalk from the latest chapter for legacy bundles, stopping where
//     local data begins.
//   - ReverseWalk for v2 bundles with a hole below the highest block, so the
//     gap is filled before the walk stops.
//
// Run executes the plan as an explicit state machine. Every state change is
// a named Transition recorded in the Result, including the fallbacks
// ResumeWalk -> ReverseWalk (anchor gone) and ReverseWalk -> ForwardWalk
// (latest chapter unavailable).
package walk
