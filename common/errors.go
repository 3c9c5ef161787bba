package common

// ConstError is an error type that can be used to define immutable
// error constants.
type ConstError string

func (e ConstError) Error() string {
	return string(e)
}

const (
	// ErrFormat indicates malformed binary input: a bad magic number, a
	// truncated buffer, an over-capacity cell, a dangling or non-monotonic
	// reference, or an exceeded structural limit. Data failing with this
	// error cannot be trusted past the point of failure.
	ErrFormat = ConstError("format error")

	// ErrProof indicates a hash mismatch, inconsistent pruning, or a failed
	// update grafting while handling Merkle proofs or updates.
	ErrProof = ConstError("proof error")

	// ErrIncompleteData is reported when full resolution was explicitly
	// requested but only proof-level (pruned) data is available. It is a
	// caller-policy signal and is never raised by default.
	ErrIncompleteData = ConstError("incomplete data")

	// ErrSchema indicates that a cell's shape does not match the decoder's
	// expectation for its role. It is localized to a single record and does
	// not invalidate the surrounding parse.
	ErrSchema = ConstError("schema error")

	// ErrNotFound is reported by cell loaders for hashes they do not know.
	ErrNotFound = ConstError("cell not found")
)
