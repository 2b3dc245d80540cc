package netstack

////////////////////////////////////////////////////////////////////////////////
// TCPSegment: the unit passed between sender, receiver and the wire codec.
////////////////////////////////////////////////////////////////////////////////

// TCPSegment is a parsed TCP segment. The transport machinery reads and
// writes the sequencing fields; ports only matter to the wire codec and to
// whoever demultiplexes connections.
type TCPSegment struct {
	SrcPort uint16
	DstPort uint16
	SeqNo   SeqNum
	AckNo   SeqNum
	SYN     bool
	ACK     bool
	FIN     bool
	RST     bool
	Window  uint16
	Payload []byte
}

// SequenceLength is the segment's length in sequence space: the payload plus
// one position each for SYN and FIN.
func (s *TCPSegment) SequenceLength() int {
	n := len(s.Payload)
	if s.SYN {
		n++
	}
	if s.FIN {
		n++
	}
	return n
}
