package netstack

import "github.com/prometheus/client_golang/prometheus"

////////////////////////////////////////////////////////////////////////////////
// Prometheus instrumentation.
////////////////////////////////////////////////////////////////////////////////

// Metrics holds the stack's activity counters. Components take an optional
// *Metrics; a nil pointer disables instrumentation entirely.
type Metrics struct {
	SegmentsSent     prometheus.Counter
	SegmentsReceived prometheus.Counter
	Retransmissions  prometheus.Counter
	Resets           prometheus.Counter

	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
	ARPRequests    prometheus.Counter
	ARPReplies     prometheus.Counter

	DatagramsRouted  prometheus.Counter
	DatagramsDropped prometheus.Counter
}

// NewMetrics builds the counter set and registers it with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(subsystem, name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "usernet",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
		reg.MustRegister(c)
		return c
	}

	return &Metrics{
		SegmentsSent:     counter("tcp", "segments_sent_total", "Segments handed to the wire, including retransmissions."),
		SegmentsReceived: counter("tcp", "segments_received_total", "Segments delivered to a connection."),
		Retransmissions:  counter("tcp", "retransmissions_total", "Timer-driven retransmissions."),
		Resets:           counter("tcp", "resets_total", "Connections aborted by RST, sent or received."),
		FramesSent:       counter("link", "frames_sent_total", "Ethernet frames emitted by interfaces."),
		FramesReceived:   counter("link", "frames_received_total", "Ethernet frames accepted by interfaces."),
		ARPRequests:      counter("link", "arp_requests_total", "ARP requests broadcast."),
		ARPReplies:       counter("link", "arp_replies_total", "ARP replies sent."),
		DatagramsRouted:  counter("ip", "datagrams_routed_total", "Datagrams forwarded by the router."),
		DatagramsDropped: counter("ip", "datagrams_dropped_total", "Datagrams dropped for no route or TTL."),
	}
}
