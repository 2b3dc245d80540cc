package netstack

import (
	"bytes"
	"testing"
)

func newTestSender(tb testing.TB, isn uint32) *TCPSender {
	tb.Helper()
	return NewTCPSender(testConfig(isn), nil)
}

func popSenderSegment(tb testing.TB, s *TCPSender) *TCPSegment {
	tb.Helper()
	if len(s.segmentsOut) == 0 {
		tb.Fatalf("expected a queued segment")
	}
	seg := s.segmentsOut[0]
	s.segmentsOut = s.segmentsOut[1:]
	return seg
}

func TestSenderSYN(t *testing.T) {
	s := newTestSender(t, 1000)
	s.FillWindow()

	seg := popSenderSegment(t, s)
	if !seg.SYN || seg.SeqNo != 1000 || len(seg.Payload) != 0 {
		t.Fatalf("first segment: %+v", seg)
	}
	if s.BytesInFlight() != 1 {
		t.Fatalf("in flight = %d", s.BytesInFlight())
	}
	if len(s.segmentsOut) != 0 {
		t.Fatalf("only the SYN should go out into a fresh window")
	}

	s.AckReceived(1001, 1000)
	if s.BytesInFlight() != 0 {
		t.Fatalf("in flight after ack = %d", s.BytesInFlight())
	}
	if s.timer.running {
		t.Fatalf("timer should stop once everything is acked")
	}
}

func TestSenderFillsWindowWithData(t *testing.T) {
	s := newTestSender(t, 0)
	s.FillWindow()
	popSenderSegment(t, s)
	s.AckReceived(1, 1000)

	s.Stream().Write([]byte("hello"))
	s.FillWindow()
	seg := popSenderSegment(t, s)
	if seg.SeqNo != 1 || !bytes.Equal(seg.Payload, []byte("hello")) {
		t.Fatalf("data segment: %+v", seg)
	}
	if s.BytesInFlight() != 5 {
		t.Fatalf("in flight = %d", s.BytesInFlight())
	}
}

func TestSenderRespectsWindow(t *testing.T) {
	s := newTestSender(t, 0)
	s.FillWindow()
	popSenderSegment(t, s)
	s.AckReceived(1, 3)

	s.Stream().Write([]byte("abcdef"))
	s.FillWindow()
	seg := popSenderSegment(t, s)
	if !bytes.Equal(seg.Payload, []byte("abc")) {
		t.Fatalf("payload %q", seg.Payload)
	}
	if len(s.segmentsOut) != 0 {
		t.Fatalf("window is full, nothing more may go out")
	}

	// Opening the window releases the rest.
	s.AckReceived(4, 10)
	seg = popSenderSegment(t, s)
	if !bytes.Equal(seg.Payload, []byte("def")) {
		t.Fatalf("payload %q", seg.Payload)
	}
}

func TestSenderSplitsByMaxPayload(t *testing.T) {
	cfg := testConfig(0)
	cfg.MaxPayloadSize = 2
	s := NewTCPSender(cfg, nil)
	s.FillWindow()
	popSenderSegment(t, s)
	s.AckReceived(1, 1000)

	s.Stream().Write([]byte("abcde"))
	s.FillWindow()
	for _, want := range []string{"ab", "cd", "e"} {
		seg := popSenderSegment(t, s)
		if !bytes.Equal(seg.Payload, []byte(want)) {
			t.Fatalf("payload %q, want %q", seg.Payload, want)
		}
	}
}

func TestSenderFIN(t *testing.T) {
	s := newTestSender(t, 0)
	s.FillWindow()
	popSenderSegment(t, s)
	s.AckReceived(1, 1000)

	s.Stream().Write([]byte("xy"))
	s.Stream().EndInput()
	s.FillWindow()

	seg := popSenderSegment(t, s)
	if !seg.FIN || !bytes.Equal(seg.Payload, []byte("xy")) {
		t.Fatalf("fin segment: %+v", seg)
	}
	if s.BytesInFlight() != 3 {
		t.Fatalf("in flight = %d", s.BytesInFlight())
	}

	s.AckReceived(4, 1000)
	if !s.finAcked() {
		t.Fatalf("fin should be acked")
	}
}

func TestSenderFINWaitsForWindow(t *testing.T) {
	s := newTestSender(t, 0)
	s.FillWindow()
	popSenderSegment(t, s)
	s.AckReceived(1, 2)

	s.Stream().Write([]byte("ab"))
	s.Stream().EndInput()
	s.FillWindow()

	seg := popSenderSegment(t, s)
	if seg.FIN {
		t.Fatalf("fin must not squeeze past the window")
	}
	s.AckReceived(3, 2)
	seg = popSenderSegment(t, s)
	if !seg.FIN || seg.SeqNo != 3 || len(seg.Payload) != 0 {
		t.Fatalf("lone fin segment: %+v", seg)
	}
}

func TestSenderRetransmissionBackoff(t *testing.T) {
	s := newTestSender(t, 0)
	s.FillWindow()
	if syn := popSenderSegment(t, s); !syn.SYN {
		t.Fatalf("first segment: %+v", syn)
	}
	s.AckReceived(1, 1000)

	s.Stream().Write([]byte("data"))
	s.FillWindow()
	first := popSenderSegment(t, s)

	s.Tick(999)
	if len(s.segmentsOut) != 0 {
		t.Fatalf("retransmitted before the RTO")
	}
	s.Tick(1)
	if got := popSenderSegment(t, s); got != first {
		t.Fatalf("retransmission should resend the oldest outstanding segment")
	}
	if s.ConsecutiveRetransmissions() != 1 {
		t.Fatalf("consecutive = %d", s.ConsecutiveRetransmissions())
	}

	// Doubled RTO: nothing at +1000, the second copy at +2000.
	s.Tick(1000)
	if len(s.segmentsOut) != 0 {
		t.Fatalf("retransmitted before the doubled RTO")
	}
	s.Tick(1000)
	popSenderSegment(t, s)
	if s.ConsecutiveRetransmissions() != 2 {
		t.Fatalf("consecutive = %d", s.ConsecutiveRetransmissions())
	}

	// Progress resets the backoff.
	s.AckReceived(5, 1000)
	if s.ConsecutiveRetransmissions() != 0 {
		t.Fatalf("consecutive after ack = %d", s.ConsecutiveRetransmissions())
	}
	if s.timer.rto != 1000 {
		t.Fatalf("rto after ack = %d", s.timer.rto)
	}
}

func TestSenderZeroWindowProbe(t *testing.T) {
	cfg := testConfig(0)
	cfg.SendCapacity = 100
	s := NewTCPSender(cfg, nil)
	s.FillWindow()
	popSenderSegment(t, s)
	s.AckReceived(1, 0)

	s.Stream().Write([]byte("abc"))
	s.FillWindow()
	probe := popSenderSegment(t, s)
	if !bytes.Equal(probe.Payload, []byte("a")) {
		t.Fatalf("probe payload %q", probe.Payload)
	}
	if len(s.segmentsOut) != 0 {
		t.Fatalf("one probe at a time")
	}

	// The probe retransmits at the base cadence without backing off.
	s.Tick(999)
	if len(s.segmentsOut) != 0 {
		t.Fatalf("probe retransmitted early")
	}
	s.Tick(1)
	if got := popSenderSegment(t, s); got != probe {
		t.Fatalf("expected the same probe again")
	}
	if s.ConsecutiveRetransmissions() != 0 {
		t.Fatalf("probing must not count retransmissions")
	}
	if s.timer.rto != 1000 {
		t.Fatalf("probing must not back off, rto = %d", s.timer.rto)
	}

	// Window opens: the rest flows and the probe is credited.
	s.AckReceived(2, 10)
	seg := popSenderSegment(t, s)
	if !bytes.Equal(seg.Payload, []byte("bc")) {
		t.Fatalf("payload %q", seg.Payload)
	}
}

func TestSenderIgnoresInvalidAck(t *testing.T) {
	s := newTestSender(t, 0)
	s.FillWindow()
	popSenderSegment(t, s)

	// Acks data never sent.
	s.AckReceived(500, 1000)
	if s.BytesInFlight() != 1 {
		t.Fatalf("invalid ack changed state: in flight = %d", s.BytesInFlight())
	}
	if s.window != 0 {
		t.Fatalf("invalid ack updated the window")
	}
}

func TestSenderEmptySegment(t *testing.T) {
	s := newTestSender(t, 42)
	s.SendEmptySegment()
	seg := popSenderSegment(t, s)
	if seg.SequenceLength() != 0 || seg.SeqNo != 42 {
		t.Fatalf("empty segment: %+v", seg)
	}
	if s.BytesInFlight() != 0 || len(s.outstanding) != 0 {
		t.Fatalf("empty segments must not be tracked")
	}
}
