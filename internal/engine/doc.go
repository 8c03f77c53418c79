// Package engine runs sync cycles between an edge and a hub database.
//
// A cycle moves through these states:
//
//	Idle -> Locking -> Fetching -> Merging -> Applying -> Advancing -> Idle
//
// Locking takes the hub's sync flag with a single conditional update and
// short-circuits to Rejected when another cycle holds it, unless forced.
// Fetching reads both change logs past the stored watermark. Merging
// stable-sorts all changes by capture time and coalesces updates that share
// a pre-image: the earlier one is absorbed and the later one inherits its
// new values as precondition. Applying replays each surviving change on the
// opposite side through the schema mapper, under the original timestamp.
// Advancing, only when something was fetched, stores each side's current
// maximum change id, which already includes the rows the replays produced.
//
// The lock is released on every exit after it was acquired. A failed apply
// aborts the rest of the cycle; earlier applies are not rolled back and the
// watermark does not move, so the next cycle sees the same changes again.
package engine
