// Package netstack implements a tiny, purpose-built user-space TCP/IP stack.
//
// The goals are:
//   - Full transport-layer correctness for a single bidirectional TCP
//     connection: windowed sending with retransmission and exponential
//     backoff, out-of-order reassembly, flow control, clean and unclean
//     close, zero-window probing, keep-alive replies.
//   - A link layer that resolves next hops over ARP with a timed cache and
//     queued pending datagrams, and a longest-prefix-match IP router.
//   - Fully deterministic execution: no goroutines, no internal clock. Time
//     advances only through Tick(ms) and all output is drained from queues.
//
// Notes and limitations:
//   - No IPv6 support.
//   - No IP fragmentation/reassembly.
//   - No congestion control and no TCP options: the send window is strictly
//     the peer's advertised window and segments carry a fixed 20B header.
//   - One connection per TCPConnection value; port demultiplexing belongs
//     to the caller.
package netstack

import (
	"encoding/binary"
	"fmt"
	"net"
)

////////////////////////////////////////////////////////////////////////////////
// Protocol constants.
////////////////////////////////////////////////////////////////////////////////

// EtherTypes we care about.
const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeARP  uint16 = 0x0806
)

// Basic protocol numbers for IPv4's Protocol field.
const (
	IPProtoTCP uint8 = 6
)

// Header sizes (bytes).
const (
	ethernetHeaderLen = 14
	arpMessageLen     = 28
	ipv4HeaderLen     = 20
	tcpHeaderLen      = 20
)

// EthernetBroadcast is the all-ones destination every station accepts.
var EthernetBroadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

////////////////////////////////////////////////////////////////////////////////
// MAC helpers.
////////////////////////////////////////////////////////////////////////////////

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != 6 || len(b) != 6 {
		return false
	}
	for i := 0; i < 6; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneMAC(mac net.HardwareAddr) net.HardwareAddr {
	out := make(net.HardwareAddr, len(mac))
	copy(out, mac)
	return out
}

////////////////////////////////////////////////////////////////////////////////
// IPv4 address helpers.
//
// The stack keys its tables on the numeric (host-order uint32) form and only
// converts to net.IP at the edges for logging.
////////////////////////////////////////////////////////////////////////////////

// IPv4Numeric converts an IP to its raw 32-bit representation.
func IPv4Numeric(ip net.IP) (uint32, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("not an ipv4 address: %v", ip)
	}
	return binary.BigEndian.Uint32(ip4), nil
}

// MustIPv4Numeric is IPv4Numeric for addresses known to be valid.
func MustIPv4Numeric(s string) uint32 {
	n, err := IPv4Numeric(net.ParseIP(s))
	if err != nil {
		panic(err)
	}
	return n
}

// IPv4FromNumeric converts a raw 32-bit address back to a net.IP.
func IPv4FromNumeric(n uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, n)
	return ip
}

func ipv4String(n uint32) string {
	return IPv4FromNumeric(n).String()
}
