package netstack

import "log/slog"

////////////////////////////////////////////////////////////////////////////////
// TCPConnection: the composite state machine.
////////////////////////////////////////////////////////////////////////////////

// TCPConnection composes a TCPSender and a TCPReceiver into one endpoint.
// The classic state names (LISTEN, SYN_SENT, ESTABLISHED, ...) are never
// stored; they are a function of the two halves' progress, and every
// transition happens where those halves change.
//
// All methods must be called from one thread of control. Outbound segments
// accumulate in an internal queue the owner drains with PopSegment.
type TCPConnection struct {
	cfg     Config
	log     *slog.Logger
	metrics *Metrics

	sender   *TCPSender
	receiver *TCPReceiver

	segmentsOut []*TCPSegment

	// sinceSegment is the idle clock feeding the linger timeout.
	sinceSegment uint64

	// linger decides whether this endpoint waits out the quiet period after
	// both streams finish. A passive closer (peer FINed first) clears it
	// and can go inactive immediately.
	linger bool
	active bool
}

// NewTCPConnection constructs an endpoint. Call Connect for an active open,
// or just feed segments in for a passive one. logger and metrics may be nil.
func NewTCPConnection(cfg Config, logger *slog.Logger, metrics *Metrics) *TCPConnection {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &TCPConnection{
		cfg:      cfg,
		log:      logger,
		metrics:  metrics,
		sender:   NewTCPSender(cfg, metrics),
		receiver: NewTCPReceiver(cfg.RecvCapacity),
		linger:   true,
		active:   true,
	}
}

// SegmentReceived runs one inbound segment through the whole machine.
func (c *TCPConnection) SegmentReceived(seg *TCPSegment) {
	c.sinceSegment = 0
	if c.metrics != nil {
		c.metrics.SegmentsReceived.Inc()
	}

	if seg.RST {
		c.log.Warn("tcp: reset by peer")
		c.abort(false)
		return
	}

	c.receiver.SegmentReceived(seg)

	// Anything occupying sequence space must be acknowledged.
	needAck := seg.SequenceLength() > 0

	if seg.ACK {
		c.sender.AckReceived(seg.AckNo, seg.Window)
		// A segment the ack can piggyback on makes the empty one redundant.
		if needAck && len(c.sender.segmentsOut) > 0 {
			needAck = false
		}
	}

	// SYN in LISTEN: answer with our own SYN (the ack rides on it below).
	if c.receiver.SynReceived() && !c.receiver.FinReceived() && !c.sender.started() {
		c.log.Debug("tcp: passive open")
		c.Connect()
		return
	}

	// The peer finished first while our stream is still open, so this is a
	// passive close and no quiet period is owed.
	if c.receiver.FinReceived() && !c.sender.finSent {
		c.linger = false
	}

	// Both directions done and nothing owed: the passive closer stops here.
	if !c.linger && c.receiver.FinReceived() && c.sender.finAcked() {
		c.active = false
		return
	}

	// A keep-alive probe sits one left of the ackno with no data; answer it.
	if ackNo, ok := c.receiver.AckNo(); ok &&
		seg.SequenceLength() == 0 && seg.SeqNo == ackNo-1 {
		needAck = true
	}

	if needAck {
		c.sender.SendEmptySegment()
	}
	c.flushSender()
}

// Write feeds application data to the outbound stream and sends what fits.
// Returns how many bytes were accepted.
func (c *TCPConnection) Write(data []byte) int {
	n := c.sender.Stream().Write(data)
	c.sender.FillWindow()
	c.flushSender()
	return n
}

// EndInputStream closes the outbound stream; the FIN follows the remaining
// data out.
func (c *TCPConnection) EndInputStream() {
	c.sender.Stream().EndInput()
	c.sender.FillWindow()
	c.flushSender()
}

// Connect starts the handshake by letting the sender emit its SYN.
func (c *TCPConnection) Connect() {
	c.sender.FillWindow()
	c.flushSender()
}

// Tick advances time by ms: the idle clock, the retransmission machinery,
// the give-up-and-reset path, and the end of the linger period.
func (c *TCPConnection) Tick(ms uint64) {
	c.sinceSegment += ms
	c.sender.Tick(ms)

	if c.sender.ConsecutiveRetransmissions() > c.cfg.MaxRetxAttempts {
		c.log.Warn("tcp: retransmission limit reached, resetting",
			"attempts", c.sender.ConsecutiveRetransmissions())
		c.sender.segmentsOut = c.sender.segmentsOut[:0]
		c.abort(true)
		return
	}

	c.flushSender()

	// Active close: once both streams are done, wait out ten RTOs of
	// silence in case our last ack got lost, then call it over.
	if c.linger && c.receiver.FinReceived() && c.sender.finAcked() &&
		c.sinceSegment >= 10*c.cfg.RetxTimeout {
		c.active = false
	}
}

// Close tears the connection down. A still-active connection goes out with
// an RST; a finished one is left alone.
func (c *TCPConnection) Close() {
	if !c.active {
		return
	}
	c.log.Warn("tcp: unclean shutdown")
	c.abort(true)
}

// abort errors both streams and deactivates the connection, optionally
// emitting a single RST at the next sequence number first.
func (c *TCPConnection) abort(sendRST bool) {
	if sendRST {
		c.segmentsOut = append(c.segmentsOut, &TCPSegment{
			SeqNo: c.sender.NextSeqNo(),
			RST:   true,
		})
		if c.metrics != nil {
			c.metrics.SegmentsSent.Inc()
		}
	}
	if c.metrics != nil {
		c.metrics.Resets.Inc()
	}
	c.sender.Stream().SetError()
	c.receiver.Stream().SetError()
	c.linger = false
	c.active = false
}

// flushSender decorates everything the sender queued with the receiver's
// current ackno and window, then moves it to the connection's out queue.
// The ack reflects receiver state at flush time, not fill time.
func (c *TCPConnection) flushSender() {
	for _, seg := range c.sender.segmentsOut {
		if ackNo, ok := c.receiver.AckNo(); ok {
			seg.ACK = true
			seg.AckNo = ackNo
		}
		window := c.receiver.WindowSize()
		if window > 65535 {
			window = 65535
		}
		seg.Window = uint16(window)
		c.segmentsOut = append(c.segmentsOut, seg)
		if c.metrics != nil {
			c.metrics.SegmentsSent.Inc()
		}
	}
	c.sender.segmentsOut = c.sender.segmentsOut[:0]
}

// PopSegment removes and returns the oldest queued outbound segment.
func (c *TCPConnection) PopSegment() (*TCPSegment, bool) {
	if len(c.segmentsOut) == 0 {
		return nil, false
	}
	seg := c.segmentsOut[0]
	c.segmentsOut = c.segmentsOut[1:]
	return seg, true
}

// Active reports whether the connection still participates in the protocol.
func (c *TCPConnection) Active() bool { return c.active }

// InboundStream is the reassembled stream the application reads from.
func (c *TCPConnection) InboundStream() *ByteStream { return c.receiver.Stream() }

// RemainingOutboundCapacity is how many bytes Write currently accepts.
func (c *TCPConnection) RemainingOutboundCapacity() int {
	return c.sender.Stream().RemainingCapacity()
}

// BytesInFlight is the sender's unacknowledged sequence-space total.
func (c *TCPConnection) BytesInFlight() uint64 { return c.sender.BytesInFlight() }

// UnassembledBytes counts inbound bytes staged out of order.
func (c *TCPConnection) UnassembledBytes() int { return c.receiver.UnassembledBytes() }

// TimeSinceLastSegmentReceived is the idle clock in milliseconds.
func (c *TCPConnection) TimeSinceLastSegmentReceived() uint64 { return c.sinceSegment }
