package netstack

import "log/slog"

////////////////////////////////////////////////////////////////////////////////
// Router: longest-prefix-match forwarding across interfaces.
////////////////////////////////////////////////////////////////////////////////

// route is one routing table entry. nextHop is meaningful only when
// hasNextHop is set; otherwise the network is directly attached and the
// datagram's own destination is the next hop.
type route struct {
	prefix     uint32
	prefixLen  uint8
	nextHop    uint32
	hasNextHop bool
	iface      int
}

// RouterPort is a NetworkInterface attached to a Router, with an inbound
// datagram queue the router drains on Route. Feed frames in through
// RecvFrame; datagrams addressed through this port land in the queue.
type RouterPort struct {
	*NetworkInterface
	datagramsIn []IPv4Datagram
}

// RecvFrame accepts a frame and queues any resulting datagram for routing.
func (p *RouterPort) RecvFrame(frame *EthernetFrame) {
	if dgram, ok := p.NetworkInterface.RecvFrame(frame); ok {
		p.datagramsIn = append(p.datagramsIn, dgram)
	}
}

// Router forwards datagrams between its ports by longest prefix match,
// decrementing the TTL as it goes. The table is append-only and unordered;
// the longest matching prefix wins and ties go to the earliest entry.
type Router struct {
	log     *slog.Logger
	metrics *Metrics
	ports   []*RouterPort
	routes  []route
}

// NewRouter constructs an empty router. logger and metrics may be nil.
func NewRouter(logger *slog.Logger, metrics *Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{log: logger, metrics: metrics}
}

// AddInterface attaches an interface and returns its index for AddRoute.
func (r *Router) AddInterface(nic *NetworkInterface) int {
	r.ports = append(r.ports, &RouterPort{NetworkInterface: nic})
	return len(r.ports) - 1
}

// Interface returns the port at the given index.
func (r *Router) Interface(n int) *RouterPort { return r.ports[n] }

// AddRoute appends a route through a gateway: datagrams matching the first
// prefixLen bits of prefix leave on interface ifaceNum toward nextHop.
func (r *Router) AddRoute(prefix uint32, prefixLen uint8, nextHop uint32, ifaceNum int) {
	r.log.Debug("route: add",
		"prefix", ipv4String(prefix), "len", prefixLen,
		"via", ipv4String(nextHop), "iface", ifaceNum)
	r.routes = append(r.routes, route{
		prefix: prefix, prefixLen: prefixLen,
		nextHop: nextHop, hasNextHop: true,
		iface: ifaceNum,
	})
}

// AddDirectRoute appends a route to a directly attached network: matching
// datagrams leave on interface ifaceNum toward their own destination.
func (r *Router) AddDirectRoute(prefix uint32, prefixLen uint8, ifaceNum int) {
	r.log.Debug("route: add direct",
		"prefix", ipv4String(prefix), "len", prefixLen, "iface", ifaceNum)
	r.routes = append(r.routes, route{
		prefix: prefix, prefixLen: prefixLen,
		iface: ifaceNum,
	})
}

// Route drains every port's inbound queue through the routing table.
func (r *Router) Route() {
	for _, port := range r.ports {
		for _, dgram := range port.datagramsIn {
			r.routeOneDatagram(dgram)
		}
		port.datagramsIn = port.datagramsIn[:0]
	}
}

// routeOneDatagram forwards a single datagram, or drops it when no route
// matches or the TTL is spent.
func (r *Router) routeOneDatagram(dgram IPv4Datagram) {
	dst := dgram.Header.Dst

	best := -1
	for i, rt := range r.routes {
		// A zero-length prefix matches everything; it must be special-cased
		// because a 32-bit shift by 32 does not mean "all bits".
		if rt.prefixLen == 0 || (rt.prefix^dst)>>(32-rt.prefixLen) == 0 {
			if best == -1 || rt.prefixLen > r.routes[best].prefixLen {
				best = i
			}
		}
	}

	if best == -1 {
		r.log.Debug("route: no route", "dst", ipv4String(dst))
		if r.metrics != nil {
			r.metrics.DatagramsDropped.Inc()
		}
		return
	}
	if dgram.Header.TTL <= 1 {
		r.log.Debug("route: ttl expired", "dst", ipv4String(dst))
		if r.metrics != nil {
			r.metrics.DatagramsDropped.Inc()
		}
		return
	}
	dgram.Header.TTL--

	rt := r.routes[best]
	nextHop := dst
	if rt.hasNextHop {
		nextHop = rt.nextHop
	}
	r.ports[rt.iface].SendDatagram(dgram, nextHop)
	if r.metrics != nil {
		r.metrics.DatagramsRouted.Inc()
	}
}
