package internal

import (
	"log/slog"
	"net/netip"
)

// SlogNetipAddr returns a slog.Attr for an IP address. This does allocate a
// string: netip.Addr has no fixed-width numeric representation worth
// packing for AODVv2's already-infrequent log call sites (route
// install/expire, packet drop).
func SlogNetipAddr(key string, addr netip.Addr) slog.Attr {
	return slog.String(key, addr.String())
}
