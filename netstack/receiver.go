package netstack

////////////////////////////////////////////////////////////////////////////////
// TCPReceiver: sequence-space accounting for the inbound half.
////////////////////////////////////////////////////////////////////////////////

// TCPReceiver tracks the peer's ISN and feeds segment payloads into a
// StreamReassembler. Everything before the first SYN is dropped.
type TCPReceiver struct {
	reassembler *StreamReassembler
	capacity    int
	isn         SeqNum
	synSeen     bool
}

// NewTCPReceiver constructs a receiver with the given reassembly capacity.
func NewTCPReceiver(capacity int) *TCPReceiver {
	return &TCPReceiver{
		reassembler: NewStreamReassembler(capacity),
		capacity:    capacity,
	}
}

// SegmentReceived unwraps the segment's seqno against the bytes already
// assembled and pushes the payload into the reassembler. The SYN occupies
// absolute position 0, so the first payload byte lands at stream index 0.
func (r *TCPReceiver) SegmentReceived(seg *TCPSegment) {
	if !r.synSeen {
		if !seg.SYN {
			return
		}
		r.isn = seg.SeqNo
		r.synSeen = true
	}

	checkpoint := r.reassembler.Output().BytesWritten()
	absSeq := Unwrap(seg.SeqNo, r.isn, checkpoint)

	// A stale segment at the ISN without SYN underflows to a huge index
	// here; the reassembler's acceptance window drops it.
	streamIndex := absSeq - 1
	if seg.SYN {
		streamIndex++
	}
	r.reassembler.PushSubstring(seg.Payload, streamIndex, seg.FIN)
}

// AckNo returns the next sequence number the receiver expects, once a SYN
// has established the ISN. The +1s account for the SYN and, after the input
// ended, the FIN.
func (r *TCPReceiver) AckNo() (SeqNum, bool) {
	if !r.synSeen {
		return 0, false
	}
	abs := r.reassembler.Output().BytesWritten() + 1
	if r.reassembler.Output().InputEnded() {
		abs++
	}
	return Wrap(abs, r.isn), true
}

// WindowSize is the room between the first unassembled byte and the first
// byte past what the stream can hold.
func (r *TCPReceiver) WindowSize() int {
	return r.capacity - r.reassembler.Output().Buffered()
}

// SynReceived reports whether the ISN has been established.
func (r *TCPReceiver) SynReceived() bool { return r.synSeen }

// FinReceived reports whether the inbound stream has ended.
func (r *TCPReceiver) FinReceived() bool { return r.reassembler.Output().InputEnded() }

// UnassembledBytes returns the bytes staged but not yet in order.
func (r *TCPReceiver) UnassembledBytes() int { return r.reassembler.UnassembledBytes() }

// Stream returns the reassembled inbound byte stream.
func (r *TCPReceiver) Stream() *ByteStream { return r.reassembler.Output() }
