package pipeline

import "sync/atomic"

// sequence issues monotonically increasing fetch tokens for one pipeline.
// Only the holder of the most recently issued token may write visible
// state; responses carrying superseded tokens are discarded on arrival,
// success and failure alike. Issuance order is authoritative, arrival order
// is irrelevant: a slow early request can never clobber a later one.
//
// There is no hard cancellation here. Superseded requests still run to
// completion; their results are simply ignored.
type sequence struct {
	n atomic.Uint64
}

// issue mints the next token, superseding all previously issued ones.
func (s *sequence) issue() uint64 {
	return s.n.Add(1)
}

// latest reports whether token is still the most recently issued one.
func (s *sequence) latest(token uint64) bool {
	return s.n.Load() == token
}
