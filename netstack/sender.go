package netstack

////////////////////////////////////////////////////////////////////////////////
// TCPSender: windowed transmit with retransmission.
////////////////////////////////////////////////////////////////////////////////

// outstandingSegment is a sent segment awaiting cumulative acknowledgment,
// tagged with its absolute sequence number. The queue is a FIFO ordered by
// abs; acks are cumulative so only the head is ever examined.
type outstandingSegment struct {
	abs uint64
	seg *TCPSegment
}

// TCPSender turns its outbound ByteStream into segments that fit the peer's
// advertised window, keeps them until acknowledged, and retransmits the
// oldest on timeout with exponential backoff.
//
// When the peer advertises a zero window the sender acts as if it were one:
// a single byte past the window edge keeps getting transmitted so the peer
// eventually reveals a reopened window. Retransmissions in that mode do not
// back off, keeping the probing cadence bounded.
type TCPSender struct {
	isn    SeqNum
	stream *ByteStream

	segmentsOut []*TCPSegment
	outstanding []outstandingSegment

	nextSeq  uint64 // next absolute sequence number to send
	inFlight uint64 // total sequence-space length of outstanding segments
	window   uint16 // last advertised peer window

	synSent bool
	finSent bool

	timer      retxTimer
	initialRTO uint64
	retxCount  int

	maxPayload int
	metrics    *Metrics
}

// NewTCPSender constructs a sender. The config decides the outbound stream
// capacity, the initial RTO, the per-segment payload cap and the ISN.
func NewTCPSender(cfg Config, metrics *Metrics) *TCPSender {
	cfg = cfg.withDefaults()
	s := &TCPSender{
		isn:        cfg.isn(),
		stream:     NewByteStream(cfg.SendCapacity),
		initialRTO: cfg.RetxTimeout,
		maxPayload: cfg.MaxPayloadSize,
		metrics:    metrics,
	}
	s.timer.setRTO(cfg.RetxTimeout)
	return s
}

// FillWindow emits as many segments as the peer's window allows: first the
// SYN, then payload read from the stream, finally a FIN once the stream has
// ended and the window has room for it.
func (s *TCPSender) FillWindow() {
	window := uint64(s.window)
	if window == 0 {
		window = 1 // stop-and-wait probe into a closed window
	}

	for s.inFlight < window {
		seg := &TCPSegment{}
		if !s.synSent {
			seg.SYN = true
			s.synSent = true
		}

		room := window - s.inFlight
		if seg.SYN {
			room--
		}
		payloadLen := room
		if limit := uint64(s.maxPayload); payloadLen > limit {
			payloadLen = limit
		}
		if buffered := uint64(s.stream.Buffered()); payloadLen > buffered {
			payloadLen = buffered
		}
		seg.Payload = s.stream.Read(int(payloadLen))

		// The FIN rides along only if it still fits under the window.
		if !s.finSent && s.stream.EOF() &&
			s.inFlight+uint64(seg.SequenceLength()) < window {
			seg.FIN = true
			s.finSent = true
		}

		length := uint64(seg.SequenceLength())
		if length == 0 {
			break // nothing left to say
		}

		seg.SeqNo = Wrap(s.nextSeq, s.isn)
		s.segmentsOut = append(s.segmentsOut, seg)
		s.outstanding = append(s.outstanding, outstandingSegment{abs: s.nextSeq, seg: seg})

		if !s.timer.running {
			s.timer.restart()
		}
		s.nextSeq += length
		s.inFlight += length
	}
}

// AckReceived processes a cumulative acknowledgment and the window that came
// with it. Acks covering data never sent are ignored outright.
func (s *TCPSender) AckReceived(ackNo SeqNum, window uint16) {
	absAck := Unwrap(ackNo, s.isn, s.nextSeq)
	if absAck > s.nextSeq {
		return
	}

	progressed := false
	for len(s.outstanding) > 0 {
		front := s.outstanding[0]
		length := uint64(front.seg.SequenceLength())
		if front.abs+length-1 >= absAck {
			break // first not-fully-covered segment, cumulative acks stop here
		}
		s.inFlight -= length
		s.outstanding = s.outstanding[1:]
		progressed = true
	}

	if progressed {
		s.retxCount = 0
		s.timer.setRTO(s.initialRTO)
		s.timer.restart()
	}
	if s.inFlight == 0 {
		s.timer.stop()
	}

	s.window = window
	s.FillWindow()
}

// Tick advances the retransmission timer. On expiry the oldest outstanding
// segment goes out again; the RTO doubles and the consecutive counter grows
// only when the peer's window is open, so zero-window probing stays at the
// base cadence.
func (s *TCPSender) Tick(ms uint64) {
	s.timer.tick(ms)
	if !s.timer.expired() || len(s.outstanding) == 0 {
		return
	}

	s.segmentsOut = append(s.segmentsOut, s.outstanding[0].seg)
	if s.metrics != nil {
		s.metrics.Retransmissions.Inc()
	}
	if s.window > 0 {
		s.retxCount++
		s.timer.setRTO(s.timer.rto * 2)
	}
	s.timer.restart()
}

// SendEmptySegment queues a zero-length segment at the next sequence number.
// It occupies no sequence space and is never retransmitted.
func (s *TCPSender) SendEmptySegment() {
	s.segmentsOut = append(s.segmentsOut, &TCPSegment{SeqNo: s.NextSeqNo()})
}

// NextSeqNo is the wrapped sequence number of the next byte to send.
func (s *TCPSender) NextSeqNo() SeqNum { return Wrap(s.nextSeq, s.isn) }

// BytesInFlight is the sequence-space total of unacknowledged segments.
func (s *TCPSender) BytesInFlight() uint64 { return s.inFlight }

// ConsecutiveRetransmissions counts backed-off retransmissions since the
// last acknowledged progress.
func (s *TCPSender) ConsecutiveRetransmissions() int { return s.retxCount }

// Stream returns the outbound byte stream applications write into.
func (s *TCPSender) Stream() *ByteStream { return s.stream }

// started reports whether the SYN has been emitted.
func (s *TCPSender) started() bool { return s.nextSeq > 0 }

// finAcked reports whether the FIN was sent and everything, FIN included,
// has been acknowledged.
func (s *TCPSender) finAcked() bool { return s.finSent && s.inFlight == 0 }
