package netstack

import (
	"log/slog"
	"net"
)

////////////////////////////////////////////////////////////////////////////////
// NetworkInterface: IPv4 datagrams <-> Ethernet frames with ARP resolution.
////////////////////////////////////////////////////////////////////////////////

// ARP timing (milliseconds).
const (
	arpEntryTTL   = 30_000 // how long a learned mapping stays valid
	arpRequestTTL = 5_000  // how long before an unanswered request gives up
)

type arpEntry struct {
	mac net.HardwareAddr
	ttl uint64
}

// pendingDatagram is a datagram parked until ARP resolves its next hop.
type pendingDatagram struct {
	nextHop uint32
	dgram   IPv4Datagram
}

// NetworkInterface adapts between IPv4 datagrams and Ethernet frames. A
// datagram whose next hop has no cached MAC waits in a per-IP queue while a
// single ARP request per 5s window is outstanding; a timed-out request drops
// its queue. Learned mappings expire after 30s.
//
// Outbound frames accumulate in a queue the owner drains with PopFrame.
// Like the rest of the stack, time advances only through Tick.
type NetworkInterface struct {
	mac net.HardwareAddr
	ip  uint32

	log     *slog.Logger
	metrics *Metrics

	framesOut []EthernetFrame

	arpCache map[uint32]*arpEntry

	// pendingRequests has an entry per next hop with an unanswered ARP
	// request in flight; pendingDatagrams holds what waits on it, in
	// arrival order.
	pendingRequests  map[uint32]uint64
	pendingDatagrams map[uint32][]pendingDatagram
}

// NewNetworkInterface constructs an interface with the given Ethernet and
// IPv4 addresses. logger and metrics may be nil.
func NewNetworkInterface(mac net.HardwareAddr, ip uint32, logger *slog.Logger, metrics *Metrics) *NetworkInterface {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("link: interface up", "mac", mac.String(), "ip", ipv4String(ip))
	return &NetworkInterface{
		mac:              cloneMAC(mac),
		ip:               ip,
		log:              logger,
		metrics:          metrics,
		arpCache:         make(map[uint32]*arpEntry),
		pendingRequests:  make(map[uint32]uint64),
		pendingDatagrams: make(map[uint32][]pendingDatagram),
	}
}

// SendDatagram emits dgram toward nextHop. On a cache miss the datagram is
// queued and at most one ARP request per 5s window goes out for that hop.
func (n *NetworkInterface) SendDatagram(dgram IPv4Datagram, nextHop uint32) {
	if entry, ok := n.arpCache[nextHop]; ok {
		n.transmit(entry.mac, dgram)
		return
	}

	if _, inFlight := n.pendingRequests[nextHop]; !inFlight {
		request := ARPMessage{
			Opcode:    ARPOpRequest,
			SenderMAC: n.mac,
			SenderIP:  n.ip,
			TargetIP:  nextHop,
		}
		n.sendFrame(EthernetFrame{
			Dst:     EthernetBroadcast,
			Src:     n.mac,
			Type:    EtherTypeARP,
			Payload: request.Marshal(),
		})
		n.pendingRequests[nextHop] = arpRequestTTL
		if n.metrics != nil {
			n.metrics.ARPRequests.Inc()
		}
		n.log.Debug("arp: who-has", "ip", ipv4String(nextHop))
	}
	n.pendingDatagrams[nextHop] = append(n.pendingDatagrams[nextHop],
		pendingDatagram{nextHop: nextHop, dgram: dgram})
}

// RecvFrame accepts one inbound frame. IPv4 payloads parse into the returned
// datagram; ARP traffic updates the cache, answers requests for our address
// and flushes whatever waited on the learned mapping. Frames for somebody
// else, and frames that fail to parse, are dropped.
func (n *NetworkInterface) RecvFrame(frame *EthernetFrame) (IPv4Datagram, bool) {
	if !macEqual(frame.Dst, EthernetBroadcast) && !macEqual(frame.Dst, n.mac) {
		return IPv4Datagram{}, false
	}
	if n.metrics != nil {
		n.metrics.FramesReceived.Inc()
	}

	switch frame.Type {
	case EtherTypeIPv4:
		dgram, err := ParseIPv4Datagram(frame.Payload)
		if err != nil {
			n.log.Debug("link: drop bad ipv4", "err", err)
			return IPv4Datagram{}, false
		}
		return dgram, true

	case EtherTypeARP:
		msg, err := ParseARPMessage(frame.Payload)
		if err != nil {
			n.log.Debug("link: drop bad arp", "err", err)
			return IPv4Datagram{}, false
		}
		n.handleARP(msg)
	}
	return IPv4Datagram{}, false
}

func (n *NetworkInterface) handleARP(msg ARPMessage) {
	// Requests and replies both teach us the sender's mapping.
	n.arpCache[msg.SenderIP] = &arpEntry{mac: msg.SenderMAC, ttl: arpEntryTTL}

	if msg.Opcode == ARPOpRequest && msg.TargetIP == n.ip {
		reply := ARPMessage{
			Opcode:    ARPOpReply,
			SenderMAC: n.mac,
			SenderIP:  n.ip,
			TargetMAC: msg.SenderMAC,
			TargetIP:  msg.SenderIP,
		}
		n.sendFrame(EthernetFrame{
			Dst:     msg.SenderMAC,
			Src:     n.mac,
			Type:    EtherTypeARP,
			Payload: reply.Marshal(),
		})
		if n.metrics != nil {
			n.metrics.ARPReplies.Inc()
		}
	}

	if waiting, ok := n.pendingDatagrams[msg.SenderIP]; ok {
		for _, p := range waiting {
			n.transmit(msg.SenderMAC, p.dgram)
		}
		delete(n.pendingDatagrams, msg.SenderIP)
		delete(n.pendingRequests, msg.SenderIP)
	}
}

// Tick ages the ARP cache and the outstanding requests. A request that
// times out takes its queued datagrams with it; the next SendDatagram for
// that hop starts over with a fresh request.
func (n *NetworkInterface) Tick(ms uint64) {
	for ip, entry := range n.arpCache {
		if entry.ttl <= ms {
			delete(n.arpCache, ip)
		} else {
			entry.ttl -= ms
		}
	}

	for ip, ttl := range n.pendingRequests {
		if ttl <= ms {
			if dropped := len(n.pendingDatagrams[ip]); dropped > 0 {
				n.log.Debug("arp: request timed out, dropping queued datagrams",
					"ip", ipv4String(ip), "count", dropped)
			}
			delete(n.pendingDatagrams, ip)
			delete(n.pendingRequests, ip)
		} else {
			n.pendingRequests[ip] = ttl - ms
		}
	}
}

// transmit wraps dgram in an IPv4 frame to a resolved MAC.
func (n *NetworkInterface) transmit(dst net.HardwareAddr, dgram IPv4Datagram) {
	n.sendFrame(EthernetFrame{
		Dst:     dst,
		Src:     n.mac,
		Type:    EtherTypeIPv4,
		Payload: dgram.Marshal(),
	})
}

func (n *NetworkInterface) sendFrame(frame EthernetFrame) {
	n.framesOut = append(n.framesOut, frame)
	if n.metrics != nil {
		n.metrics.FramesSent.Inc()
	}
}

// PopFrame removes and returns the oldest queued outbound frame.
func (n *NetworkInterface) PopFrame() (EthernetFrame, bool) {
	if len(n.framesOut) == 0 {
		return EthernetFrame{}, false
	}
	frame := n.framesOut[0]
	n.framesOut = n.framesOut[1:]
	return frame, true
}

// MAC returns the interface's Ethernet address.
func (n *NetworkInterface) MAC() net.HardwareAddr { return n.mac }

// IP returns the interface's IPv4 address in numeric form.
func (n *NetworkInterface) IP() uint32 { return n.ip }
