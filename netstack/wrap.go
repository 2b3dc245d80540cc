package netstack

////////////////////////////////////////////////////////////////////////////////
// 32-bit sequence numbers and 64-bit absolute offsets.
////////////////////////////////////////////////////////////////////////////////

// SeqNum is a TCP sequence number: a 32-bit value with arithmetic mod 2^32.
// Each direction of a connection has its own ISN offsetting the space.
type SeqNum uint32

// Add advances the sequence number by n, wrapping.
func (s SeqNum) Add(n uint32) SeqNum { return s + SeqNum(n) }

// Sub returns the distance s - o mod 2^32.
func (s SeqNum) Sub(o SeqNum) uint32 { return uint32(s - o) }

// Wrap maps a 64-bit absolute offset (SYN at 0) into sequence space.
func Wrap(n uint64, isn SeqNum) SeqNum {
	return isn + SeqNum(uint32(n))
}

// Unwrap maps a sequence number back to the absolute 64-bit offset that wraps
// to it and lies nearest to checkpoint, ties broken toward the smaller value.
//
// The low 32 bits are fixed by n; candidates differ only in the upper 32
// bits, taken from the checkpoint's 2^32-aligned block and its two neighbors.
// Candidates are tried in increasing order with a strict comparison, which
// settles ties toward the smaller value.
func Unwrap(n, isn SeqNum, checkpoint uint64) uint64 {
	const block = uint64(1) << 32

	low := uint64(n.Sub(isn))
	same := checkpoint&^(block-1) | low

	candidates := make([]uint64, 0, 3)
	if same >= block {
		candidates = append(candidates, same-block)
	}
	candidates = append(candidates, same, same+block)

	best := candidates[0]
	for _, c := range candidates[1:] {
		if absDiff(c, checkpoint) < absDiff(best, checkpoint) {
			best = c
		}
	}
	return best
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
