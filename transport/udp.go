// Package transport provides the default AODVv2 Transport: a UDP/269
// socket bound to all interfaces, with the router joining the
// All-MANET-Routers multicast group on each participating interface.
package transport

import (
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv6"
)

// UDP is the engine.Transport implementation backing a live router: one
// *net.UDPConn wrapped in an *ipv6.PacketConn so interfaces can join the
// multicast group individually, the way mDNS joins per-interface groups
// (see mDNSConn4.JoinGroup) rather than relying on a single wildcard join.
type UDP struct {
	conn  *net.UDPConn
	pconn *ipv6.PacketConn
	group *net.UDPAddr
}

// Listen opens a UDP/269 socket on all interfaces and returns a UDP ready
// to have interfaces joined via JoinGroup. port and group default to
// config.Default()'s UDPPort/MulticastAddr when zero/invalid.
func Listen(port uint16, group netip.Addr) (*UDP, error) {
	if port == 0 {
		port = 269
	}
	if !group.IsValid() {
		group = netip.MustParseAddr("ff02::6d")
	}
	conn, err := net.ListenUDP("udp6", &net.UDPAddr{Port: int(port)})
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp6/%d: %w", port, err)
	}
	pconn := ipv6.NewPacketConn(conn)
	if err := pconn.SetControlMessage(ipv6.FlagDst|ipv6.FlagInterface, true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: set control message: %w", err)
	}
	return &UDP{
		conn:  conn,
		pconn: pconn,
		group: &net.UDPAddr{IP: group.AsSlice(), Port: int(port), Zone: group.Zone()},
	}, nil
}

// JoinGroup joins the All-MANET-Routers multicast group on iface. Call
// once per interface the router should participate on.
func (u *UDP) JoinGroup(iface *net.Interface) error {
	if err := u.pconn.JoinGroup(iface, u.group); err != nil {
		return fmt.Errorf("transport: join group on %s: %w", iface.Name, err)
	}
	return nil
}

// RecvFrom implements engine.Transport. The sender address returned is
// always a valid netip.Addr; link-local senders carry their zone.
func (u *UDP) RecvFrom(buf []byte) (int, netip.Addr, error) {
	n, _, src, err := u.pconn.ReadFrom(buf)
	if err != nil {
		return 0, netip.Addr{}, err
	}
	udpAddr, ok := src.(*net.UDPAddr)
	if !ok {
		return 0, netip.Addr{}, fmt.Errorf("transport: unexpected source address type %T", src)
	}
	addr, ok := netip.AddrFromSlice(udpAddr.IP)
	if !ok {
		return 0, netip.Addr{}, fmt.Errorf("transport: invalid source address %v", udpAddr.IP)
	}
	if udpAddr.Zone != "" {
		addr = addr.WithZone(udpAddr.Zone)
	}
	return n, addr, nil
}

// SendTo implements engine.Transport: it writes buf to dst on the AODVv2
// port. No outgoing interface is selected, so a multicast dst leaves
// through dst's zone if it has one, otherwise through the kernel's default
// multicast interface, not through every joined interface.
func (u *UDP) SendTo(buf []byte, dst netip.Addr) error {
	addr := &net.UDPAddr{IP: dst.AsSlice(), Port: u.group.Port, Zone: dst.Zone()}
	_, err := u.pconn.WriteTo(buf, nil, addr)
	return err
}

// Close releases the underlying socket.
func (u *UDP) Close() error {
	return u.conn.Close()
}
