package netstack

import "math"

////////////////////////////////////////////////////////////////////////////////
// StreamReassembler: out-of-order substrings -> in-order byte stream.
////////////////////////////////////////////////////////////////////////////////

// StreamReassembler accepts substrings of a logical byte stream at absolute
// indices, possibly out of order and overlapping, and writes the contiguous
// prefix into an output ByteStream.
//
// Staging is a capacity-sized ring keyed by absolute index mod capacity with
// an occupancy bit per slot. The acceptance window for absolute indices is
// [next, next + capacity - output.Buffered()), so staged bytes plus buffered
// output never exceed the capacity. Bytes outside the window are dropped.
type StreamReassembler struct {
	output   *ByteStream
	capacity int
	next     uint64 // first unassembled absolute index
	eofIndex uint64 // one past the last byte of the stream, once known
	staged   int    // occupied slots not yet drained
	ring     []byte
	occupied []bool
}

// NewStreamReassembler constructs a reassembler whose staging area and output
// stream together hold at most capacity bytes.
func NewStreamReassembler(capacity int) *StreamReassembler {
	return &StreamReassembler{
		output:   NewByteStream(capacity),
		capacity: capacity,
		eofIndex: math.MaxUint64,
		ring:     make([]byte, capacity),
		occupied: make([]bool, capacity),
	}
}

// PushSubstring stages data starting at the given absolute index. eof marks
// index+len(data) as the end of the stream. A byte that contradicts one
// already staged at the same index aborts the rest of that substring; the
// staged bytes win.
func (r *StreamReassembler) PushSubstring(data []byte, index uint64, eof bool) {
	if eof {
		if end := index + uint64(len(data)); end < r.eofIndex {
			r.eofIndex = end
		}
	}

	left := index
	if r.next > left {
		left = r.next
	}
	right := index + uint64(len(data))
	if limit := r.next + uint64(r.capacity-r.output.Buffered()); limit < right {
		right = limit
	}
	if r.eofIndex < right {
		right = r.eofIndex
	}

	for i := left; i < right; i++ {
		slot := int(i % uint64(r.capacity))
		b := data[i-index]
		if r.occupied[slot] {
			if r.ring[slot] != b {
				return // inconsistent retransmission, drop the rest
			}
			continue
		}
		r.ring[slot] = b
		r.occupied[slot] = true
		r.staged++
	}

	var assembled []byte
	for r.staged > 0 && r.next < r.eofIndex && r.occupied[r.next%uint64(r.capacity)] {
		slot := r.next % uint64(r.capacity)
		assembled = append(assembled, r.ring[slot])
		r.occupied[slot] = false
		r.staged--
		r.next++
	}
	r.output.Write(assembled)

	if r.next >= r.eofIndex {
		r.output.EndInput()
	}
}

// UnassembledBytes returns the count of staged, not yet drained bytes.
func (r *StreamReassembler) UnassembledBytes() int { return r.staged }

// Output returns the stream the contiguous prefix is written to.
func (r *StreamReassembler) Output() *ByteStream { return r.output }
