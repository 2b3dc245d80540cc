package netstack

import (
	"net"
	"testing"
)

// newTestRouter wires three interfaces into a router and pre-resolves a MAC
// on each so forwarded datagrams surface as IPv4 frames instead of parking
// behind ARP.
func newTestRouter(tb testing.TB) (*Router, []*RouterPort) {
	tb.Helper()
	r := NewRouter(nil, nil)
	ports := make([]*RouterPort, 3)
	for i := range ports {
		mac := net.HardwareAddr{0x02, 0, 0, 0, 0x10, byte(i)}
		ip := MustIPv4Numeric("192.168.0.1") + uint32(i)<<8
		r.AddInterface(NewNetworkInterface(mac, ip, nil, nil))
		ports[i] = r.Interface(i)
	}
	return r, ports
}

// resolveAll seeds the port's ARP cache so any next hop resolves at once.
func resolveAll(port *RouterPort, hops ...uint32) {
	for _, hop := range hops {
		port.arpCache[hop] = &arpEntry{mac: testMACB, ttl: arpEntryTTL}
	}
}

func sendThrough(tb testing.TB, r *Router, port *RouterPort, dgram IPv4Datagram) {
	tb.Helper()
	frame := EthernetFrame{Dst: port.MAC(), Src: testMACB, Type: EtherTypeIPv4,
		Payload: dgram.Marshal()}
	port.RecvFrame(&frame)
	r.Route()
}

func popDatagram(tb testing.TB, port *RouterPort) IPv4Datagram {
	tb.Helper()
	frame := mustPopFrame(tb, port.NetworkInterface)
	if frame.Type != EtherTypeIPv4 {
		tb.Fatalf("expected ipv4 frame, got 0x%04x", frame.Type)
	}
	dgram, err := ParseIPv4Datagram(frame.Payload)
	if err != nil {
		tb.Fatalf("parse forwarded datagram: %v", err)
	}
	return dgram
}

func TestRouterLongestPrefixMatch(t *testing.T) {
	r, ports := newTestRouter(t)
	r.AddDirectRoute(MustIPv4Numeric("10.0.0.0"), 8, 0)
	r.AddDirectRoute(MustIPv4Numeric("10.1.0.0"), 16, 1)
	r.AddDirectRoute(MustIPv4Numeric("0.0.0.0"), 0, 2)
	for _, port := range ports {
		resolveAll(port,
			MustIPv4Numeric("10.1.2.3"),
			MustIPv4Numeric("10.2.0.1"),
			MustIPv4Numeric("8.8.8.8"))
	}

	// /16 beats /8.
	sendThrough(t, r, ports[2], testDatagram(t, MustIPv4Numeric("1.2.3.4"), MustIPv4Numeric("10.1.2.3"), "a"))
	dgram := popDatagram(t, ports[1])
	if dgram.Header.TTL != 63 {
		t.Fatalf("ttl = %d", dgram.Header.TTL)
	}
	wantNoFrame(t, ports[0].NetworkInterface)
	wantNoFrame(t, ports[2].NetworkInterface)

	// Only the /8 matches.
	sendThrough(t, r, ports[2], testDatagram(t, MustIPv4Numeric("1.2.3.4"), MustIPv4Numeric("10.2.0.1"), "b"))
	popDatagram(t, ports[0])

	// Nothing but the default matches.
	sendThrough(t, r, ports[0], testDatagram(t, MustIPv4Numeric("1.2.3.4"), MustIPv4Numeric("8.8.8.8"), "c"))
	popDatagram(t, ports[2])
}

func TestRouterTTL(t *testing.T) {
	r, ports := newTestRouter(t)
	r.AddDirectRoute(MustIPv4Numeric("0.0.0.0"), 0, 1)
	resolveAll(ports[1], MustIPv4Numeric("5.5.5.5"))

	dgram := testDatagram(t, MustIPv4Numeric("1.2.3.4"), MustIPv4Numeric("5.5.5.5"), "x")
	dgram.Header.TTL = 1
	sendThrough(t, r, ports[0], dgram)
	wantNoFrame(t, ports[1].NetworkInterface)

	dgram.Header.TTL = 2
	sendThrough(t, r, ports[0], dgram)
	if got := popDatagram(t, ports[1]); got.Header.TTL != 1 {
		t.Fatalf("ttl = %d", got.Header.TTL)
	}
}

func TestRouterNoRouteDrops(t *testing.T) {
	r, ports := newTestRouter(t)
	r.AddDirectRoute(MustIPv4Numeric("10.0.0.0"), 8, 1)

	sendThrough(t, r, ports[0], testDatagram(t, MustIPv4Numeric("1.2.3.4"), MustIPv4Numeric("11.0.0.1"), "x"))
	for _, port := range ports {
		wantNoFrame(t, port.NetworkInterface)
	}
}

func TestRouterTieGoesToFirstRoute(t *testing.T) {
	r, ports := newTestRouter(t)
	r.AddDirectRoute(MustIPv4Numeric("10.0.0.0"), 8, 1)
	r.AddDirectRoute(MustIPv4Numeric("10.0.0.0"), 8, 2)
	dst := MustIPv4Numeric("10.9.9.9")
	resolveAll(ports[1], dst)
	resolveAll(ports[2], dst)

	sendThrough(t, r, ports[0], testDatagram(t, MustIPv4Numeric("1.2.3.4"), dst, "x"))
	popDatagram(t, ports[1])
	wantNoFrame(t, ports[2].NetworkInterface)
}

func TestRouterNextHopRoute(t *testing.T) {
	r, ports := newTestRouter(t)
	gateway := MustIPv4Numeric("192.168.1.254")
	r.AddRoute(MustIPv4Numeric("0.0.0.0"), 0, gateway, 1)

	// No ARP entry for the gateway: the forwarded datagram waits behind a
	// request that targets the gateway, not the final destination.
	sendThrough(t, r, ports[0], testDatagram(t, MustIPv4Numeric("1.2.3.4"), MustIPv4Numeric("8.8.8.8"), "x"))
	frame := mustPopFrame(t, ports[1].NetworkInterface)
	if frame.Type != EtherTypeARP {
		t.Fatalf("expected arp request, got 0x%04x", frame.Type)
	}
	msg, err := ParseARPMessage(frame.Payload)
	if err != nil || msg.TargetIP != gateway {
		t.Fatalf("arp target = %s, err=%v", ipv4String(msg.TargetIP), err)
	}
}
